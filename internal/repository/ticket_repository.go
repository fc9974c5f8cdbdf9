package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-desk/internal/clock"
	"github.com/spec-kit/support-desk/internal/domain"
)

const ticketColumns = `ticket_id, category, priority, status, user_id, user_email, user_name, assigned_to,
               subject, description, tags, attachments, metadata, responses,
               first_response_at, last_response_at, resolved_at, closed_at, escalated_at,
               due_date, estimated_resolution_time, actual_resolution_time,
               escalated_to, escalation_reason, satisfaction_rating, satisfaction_feedback,
               internal_notes, created_at, updated_at`

const uniqueViolation = "23505"

type ticketRepository struct {
	pool  *pgxpool.Pool
	clock clock.Clock
}

// NewTicketRepository returns a Postgres-backed TicketStore.
func NewTicketRepository(pool *pgxpool.Pool, clk clock.Clock) TicketStore {
	if clk == nil {
		clk = clock.Real()
	}
	return &ticketRepository{pool: pool, clock: clk}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	docs, err := encodeDocuments(ticket)
	if err != nil {
		return err
	}
	query := `INSERT INTO tickets (` + ticketColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29)`
	_, err = r.pool.Exec(ctx, query,
		ticket.TicketID,
		ticket.Category,
		ticket.Priority,
		ticket.Status,
		ticket.UserID,
		ticket.UserEmail,
		ticket.UserName,
		ticket.AssignedTo,
		ticket.Subject,
		ticket.Description,
		nonNilTags(ticket.Tags),
		docs.attachments,
		docs.metadata,
		docs.responses,
		ticket.FirstResponseAt,
		ticket.LastResponseAt,
		ticket.ResolvedAt,
		ticket.ClosedAt,
		ticket.EscalatedAt,
		ticket.DueDate,
		ticket.EstimatedResolutionTime,
		ticket.ActualResolutionTime,
		ticket.EscalatedTo,
		ticket.EscalationReason,
		ticket.SatisfactionRating,
		ticket.SatisfactionFeedback,
		ticket.InternalNotes,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket, expectedUpdatedAt time.Time) error {
	docs, err := encodeDocuments(ticket)
	if err != nil {
		return err
	}
	version := nextVersion(ticket.UpdatedAt, expectedUpdatedAt)
	const query = `
        UPDATE tickets SET category=$1, priority=$2, status=$3, user_id=$4, user_email=$5, user_name=$6,
            assigned_to=$7, subject=$8, description=$9, tags=$10, attachments=$11, metadata=$12, responses=$13,
            first_response_at=$14, last_response_at=$15, resolved_at=$16, closed_at=$17, escalated_at=$18,
            due_date=$19, estimated_resolution_time=$20, actual_resolution_time=$21,
            escalated_to=$22, escalation_reason=$23, satisfaction_rating=$24, satisfaction_feedback=$25,
            internal_notes=$26, updated_at=$27
        WHERE ticket_id=$28 AND updated_at=$29`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Category,
		ticket.Priority,
		ticket.Status,
		ticket.UserID,
		ticket.UserEmail,
		ticket.UserName,
		ticket.AssignedTo,
		ticket.Subject,
		ticket.Description,
		nonNilTags(ticket.Tags),
		docs.attachments,
		docs.metadata,
		docs.responses,
		ticket.FirstResponseAt,
		ticket.LastResponseAt,
		ticket.ResolvedAt,
		ticket.ClosedAt,
		ticket.EscalatedAt,
		ticket.DueDate,
		ticket.EstimatedResolutionTime,
		ticket.ActualResolutionTime,
		ticket.EscalatedTo,
		ticket.EscalationReason,
		ticket.SatisfactionRating,
		ticket.SatisfactionFeedback,
		ticket.InternalNotes,
		version,
		ticket.TicketID,
		expectedUpdatedAt,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() > 0 {
		ticket.UpdatedAt = version
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE ticket_id=$1)`, ticket.TicketID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStaleWrite
}

func (r *ticketRepository) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ticket_id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ticket, err
}

func (r *ticketRepository) List(ctx context.Context, filter domain.TicketFilter) ([]domain.Ticket, int, error) {
	filter, err := filter.Validate()
	if err != nil {
		return nil, 0, err
	}
	where, args := buildTicketWhere(filter, r.clock.Now())

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY %s LIMIT %d OFFSET %d`,
		ticketColumns, where, buildTicketOrder(filter), filter.Limit, filter.Offset())
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	tickets, err := scanTickets(rows)
	return tickets, total, err
}

func (r *ticketRepository) All(ctx context.Context) ([]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ticketColumns+` FROM tickets ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

// buildTicketWhere translates a validated filter into a WHERE clause and its
// positional arguments.
func buildTicketWhere(filter domain.TicketFilter, now time.Time) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}
	add := func(format string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(format, len(args)))
	}

	if filter.Status != nil {
		add("status=$%d", string(*filter.Status))
	}
	if filter.Priority != nil {
		add("priority=$%d", string(*filter.Priority))
	}
	if filter.Category != nil {
		add("category=$%d", string(*filter.Category))
	}
	if filter.AssignedTo != nil {
		add("assigned_to=$%d", *filter.AssignedTo)
	}
	if filter.UserID != nil {
		add("user_id=$%d", *filter.UserID)
	}
	if filter.Search != nil {
		search := "%" + escapeLike(strings.ToLower(*filter.Search)) + "%"
		args = append(args, search)
		p := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(
			"(LOWER(subject) LIKE %[1]s OR LOWER(description) LIKE %[1]s OR LOWER(user_email) LIKE %[1]s OR LOWER(COALESCE(user_name, '')) LIKE %[1]s)", p))
	}
	if filter.IsOverdue != nil {
		args = append(args, now)
		overdue := fmt.Sprintf("(due_date IS NOT NULL AND due_date < $%d AND status IN ('open','in_progress','waiting_for_user'))", len(args))
		if *filter.IsOverdue {
			clauses = append(clauses, overdue)
		} else {
			clauses = append(clauses, "NOT "+overdue)
		}
	}
	if filter.HasResponses != nil {
		if *filter.HasResponses {
			clauses = append(clauses, "jsonb_array_length(responses) > 0")
		} else {
			clauses = append(clauses, "jsonb_array_length(responses) = 0")
		}
	}
	return strings.Join(clauses, " AND "), args
}

const priorityRank = `CASE priority WHEN 'low' THEN 1 WHEN 'normal' THEN 2 WHEN 'high' THEN 3 WHEN 'urgent' THEN 4 WHEN 'critical' THEN 5 ELSE 0 END`

// buildTicketOrder mirrors compareTickets.
func buildTicketOrder(filter domain.TicketFilter) string {
	dir := "DESC"
	if filter.SortOrder == domain.SortAsc {
		dir = "ASC"
	}
	switch filter.SortBy {
	case domain.SortByPriority:
		return fmt.Sprintf("%s %s, created_at ASC, ticket_id ASC", priorityRank, dir)
	case domain.SortByUpdatedAt:
		return fmt.Sprintf("updated_at %s, ticket_id ASC", dir)
	case domain.SortByDueDate:
		return fmt.Sprintf("due_date %s NULLS LAST, ticket_id ASC", dir)
	default:
		return fmt.Sprintf("created_at %s, ticket_id ASC", dir)
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

type ticketDocuments struct {
	attachments []byte
	metadata    []byte
	responses   []byte
}

func encodeDocuments(ticket *domain.Ticket) (ticketDocuments, error) {
	var (
		docs ticketDocuments
		err  error
	)
	attachments := ticket.Attachments
	if attachments == nil {
		attachments = []domain.Attachment{}
	}
	if docs.attachments, err = json.Marshal(attachments); err != nil {
		return docs, fmt.Errorf("encode attachments: %w", err)
	}
	metadata := ticket.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	if docs.metadata, err = json.Marshal(metadata); err != nil {
		return docs, fmt.Errorf("encode metadata: %w", err)
	}
	responses := ticket.Responses
	if responses == nil {
		responses = []domain.Response{}
	}
	if docs.responses, err = json.Marshal(responses); err != nil {
		return docs, fmt.Errorf("encode responses: %w", err)
	}
	return docs, nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket                           domain.Ticket
		attachments, metadata, responses []byte
	)
	if err := row.Scan(
		&ticket.TicketID,
		&ticket.Category,
		&ticket.Priority,
		&ticket.Status,
		&ticket.UserID,
		&ticket.UserEmail,
		&ticket.UserName,
		&ticket.AssignedTo,
		&ticket.Subject,
		&ticket.Description,
		&ticket.Tags,
		&attachments,
		&metadata,
		&responses,
		&ticket.FirstResponseAt,
		&ticket.LastResponseAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
		&ticket.EscalatedAt,
		&ticket.DueDate,
		&ticket.EstimatedResolutionTime,
		&ticket.ActualResolutionTime,
		&ticket.EscalatedTo,
		&ticket.EscalationReason,
		&ticket.SatisfactionRating,
		&ticket.SatisfactionFeedback,
		&ticket.InternalNotes,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(attachments, &ticket.Attachments); err != nil {
		return nil, fmt.Errorf("decode attachments of %s: %w", ticket.TicketID, err)
	}
	if err := json.Unmarshal(metadata, &ticket.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata of %s: %w", ticket.TicketID, err)
	}
	if err := json.Unmarshal(responses, &ticket.Responses); err != nil {
		return nil, fmt.Errorf("decode responses of %s: %w", ticket.TicketID, err)
	}
	normalizeTimes(&ticket)
	return &ticket, nil
}

// normalizeTimes moves every timestamp pgx decoded in time.Local to UTC.
func normalizeTimes(t *domain.Ticket) {
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	for _, p := range []**time.Time{
		&t.FirstResponseAt,
		&t.LastResponseAt,
		&t.ResolvedAt,
		&t.ClosedAt,
		&t.EscalatedAt,
		&t.DueDate,
	} {
		if *p != nil {
			utc := (*p).UTC()
			*p = &utc
		}
	}
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
