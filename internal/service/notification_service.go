package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
)

// NotificationService handles emitting notifications for domain events.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
	routes     map[events.EventType]events.EventHandler
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
	n.routes = map[events.EventType]events.EventHandler{
		events.EventTicketCreated:         n.handleTicketCreated,
		events.EventTicketStatusChanged:   n.handleWebhookOnly,
		events.EventTicketPriorityChanged: n.handleWebhookOnly,
		events.EventTicketAssigned:        n.handleWebhookOnly,
		events.EventTicketResponseAdded:   n.handleTicketResponseAdded,
		events.EventTicketEscalated:       n.handleTicketEscalated,
		events.EventTicketRated:           n.handleWebhookOnly,
		events.EventTicketOverdue:         n.handleTicketOverdue,
	}
	return n
}

// RegisterHandlers subscribes Handle to every event type so notifications
// are sent inline with Publish.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	events.SubscribeAll(n.dispatcher, n.Handle)
}

// Handle sends the notifications for one event. Unknown types are ignored.
func (n *NotificationService) Handle(ctx context.Context, event events.Event) error {
	route, ok := n.routes[event.Type]
	if !ok {
		return nil
	}
	return route(ctx, event)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketCreated", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	if p, ok := event.Payload.(events.TicketCreatedPayload); ok {
		n.sendEmailNotificationStub(ctx, event, p.UserEmail)
	}
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleWebhookOnly(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type), zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

// Internal notes never leave the building.
func (n *NotificationService) handleTicketResponseAdded(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketResponseAdded", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	if p, ok := event.Payload.(events.TicketResponseAddedPayload); ok && !p.IsInternal {
		if to := responseRecipient(p); to != "" {
			n.sendEmailNotificationStub(ctx, event, to)
		}
	}
	return nil
}

// responseRecipient is the requester for staff replies and the assignee for
// user replies. An unassigned ticket has no one to tell about a user reply.
func responseRecipient(p events.TicketResponseAddedPayload) string {
	if p.ResponderType == domain.ActorTypeUser {
		if p.AssignedTo == nil {
			return ""
		}
		return *p.AssignedTo
	}
	return p.UserEmail
}

func (n *NotificationService) handleTicketEscalated(ctx context.Context, event events.Event) error {
	n.logger.Warn("TicketEscalated", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	if p, ok := event.Payload.(events.TicketEscalatedPayload); ok {
		n.sendEmailNotificationStub(ctx, event, p.EscalatedTo)
	}
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleTicketOverdue(ctx context.Context, event events.Event) error {
	n.logger.Warn("TicketOverdue", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) sendEmailNotificationStub(ctx context.Context, event events.Event, to string) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("to", to),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}
