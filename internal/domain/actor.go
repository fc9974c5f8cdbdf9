package domain

// ActorType differentiates staff members from end users.
type ActorType string

const (
	ActorTypeStaff ActorType = "staff"
	ActorTypeUser  ActorType = "user"
)

// IsValid reports enum membership.
func (a ActorType) IsValid() bool {
	return a == ActorTypeStaff || a == ActorTypeUser
}

// Actor is the already-identified caller of a lifecycle operation.
type Actor struct {
	ID    string    `json:"id"`
	Type  ActorType `json:"type"`
	Email string    `json:"email,omitempty"`
}

// IsStaff reports whether the actor is a staff member.
func (a Actor) IsStaff() bool { return a.Type == ActorTypeStaff }

// StaffActor builds a staff actor.
func StaffActor(id string) Actor { return Actor{ID: id, Type: ActorTypeStaff} }

// UserActor builds an end-user actor.
func UserActor(id string) Actor { return Actor{ID: id, Type: ActorTypeUser} }
