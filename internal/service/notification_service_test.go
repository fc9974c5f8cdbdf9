package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
)

func TestNotificationServiceSkipsInternalResponses(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	dispatcher := events.NewInMemoryDispatcher()
	n := NewNotificationService(dispatcher, zap.New(core), config.NotificationConfig{
		EmailFrom:  "desk@example.com",
		WebhookURL: "https://hooks.example.com/desk",
	})
	n.RegisterHandlers()
	ctx := context.Background()

	require.NoError(t, dispatcher.Publish(ctx, events.Event{
		Type:     events.EventTicketResponseAdded,
		TicketID: "t1",
		Payload:  events.TicketResponseAddedPayload{ResponseID: "r1", IsInternal: true},
	}))
	assert.Zero(t, logs.FilterMessage("sendEmailNotificationStub").Len())

	require.NoError(t, dispatcher.Publish(ctx, events.Event{
		Type:     events.EventTicketResponseAdded,
		TicketID: "t1",
		Payload: events.TicketResponseAddedPayload{
			ResponseID:    "r2",
			ResponderType: domain.ActorTypeStaff,
			UserEmail:     "jane@example.com",
		},
	}))
	emails := logs.FilterMessage("sendEmailNotificationStub").All()
	require.Len(t, emails, 1)
	assert.Equal(t, "jane@example.com", emails[0].ContextMap()["to"])
}

func TestNotificationServiceAddressesUserRepliesToAssignee(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(dispatcher, zap.New(core), config.NotificationConfig{EmailFrom: "desk@example.com"}).RegisterHandlers()
	ctx := context.Background()

	assignee := "staff-7"
	require.NoError(t, dispatcher.Publish(ctx, events.Event{
		Type:     events.EventTicketResponseAdded,
		TicketID: "t1",
		Payload: events.TicketResponseAddedPayload{
			ResponseID:    "r3",
			ResponderType: domain.ActorTypeUser,
			UserEmail:     "jane@example.com",
			AssignedTo:    &assignee,
		},
	}))
	emails := logs.FilterMessage("sendEmailNotificationStub").All()
	require.Len(t, emails, 1)
	assert.Equal(t, "staff-7", emails[0].ContextMap()["to"])

	require.NoError(t, dispatcher.Publish(ctx, events.Event{
		Type:     events.EventTicketResponseAdded,
		TicketID: "t2",
		Payload: events.TicketResponseAddedPayload{
			ResponseID:    "r4",
			ResponderType: domain.ActorTypeUser,
			UserEmail:     "jane@example.com",
		},
	}))
	assert.Equal(t, 1, logs.FilterMessage("sendEmailNotificationStub").Len(), "unassigned ticket has no recipient")
}

func TestNotificationServiceEscalationNotifiesAssignee(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(dispatcher, zap.New(core), config.NotificationConfig{EmailFrom: "desk@example.com"}).RegisterHandlers()

	require.NoError(t, dispatcher.Publish(context.Background(), events.Event{
		Type:     events.EventTicketEscalated,
		TicketID: "t1",
		Payload:  events.TicketEscalatedPayload{EscalatedTo: "lead-1", Reason: "needs a specialist"},
	}))

	emails := logs.FilterMessage("sendEmailNotificationStub").All()
	require.Len(t, emails, 1)
	assert.Equal(t, "lead-1", emails[0].ContextMap()["to"])
	assert.Zero(t, logs.FilterMessage("sendWebhookNotificationStub").Len(), "webhook not configured")
	assert.Equal(t, 1, logs.FilterMessage("TicketEscalated").Len())
}
