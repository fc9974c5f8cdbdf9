package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryDispatcherRunsEveryHandler(t *testing.T) {
	d := NewInMemoryDispatcher()
	var calls []string
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("boom")
	})
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls = append(calls, "second")
		return nil
	})
	d.Subscribe(EventTicketRated, func(context.Context, Event) error {
		calls = append(calls, "rated")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketCreated, TicketID: "t1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, []string{"first", "second"}, calls)

	assert.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketOverdue}))
}

func TestDispatcherRecoversHandlerPanic(t *testing.T) {
	d := NewInMemoryDispatcher()
	delivered := 0
	SubscribeAll(d, func(context.Context, Event) error {
		panic("nil template")
	})
	SubscribeAll(d, func(context.Context, Event) error {
		delivered++
		return nil
	})

	for _, eventType := range AllEventTypes {
		err := d.Publish(context.Background(), Event{Type: eventType})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "panic: nil template")
	}
	assert.Equal(t, len(AllEventTypes), delivered)
}

type recordingPublisher struct {
	channel  string
	messages [][]byte
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	p.channel = channel
	p.messages = append(p.messages, message.([]byte))
	return redis.NewIntResult(1, p.err)
}

func TestRedisFanoutMirrorsEvents(t *testing.T) {
	local := NewInMemoryDispatcher()
	delivered := 0
	local.Subscribe(EventTicketEscalated, func(context.Context, Event) error {
		delivered++
		return nil
	})
	pub := &recordingPublisher{}
	d := NewRedisFanout(local, pub, "", nil)

	event := Event{
		ID:       "evt_1",
		Type:     EventTicketEscalated,
		TicketID: "ticket_1",
		Payload:  TicketEscalatedPayload{EscalatedTo: "lead-1", Reason: "customer is blocked"},
	}
	require.NoError(t, d.Publish(context.Background(), event))
	assert.Equal(t, 1, delivered)
	assert.Equal(t, DefaultChannel, pub.channel)
	require.Len(t, pub.messages, 1)

	var decoded Event
	require.NoError(t, json.Unmarshal(pub.messages[0], &decoded))
	assert.Equal(t, EventTicketEscalated, decoded.Type)
	assert.Equal(t, "ticket_1", decoded.TicketID)
	assert.Equal(t, "lead-1", decoded.Payload.(map[string]any)["escalated_to"])
}

func TestRedisFanoutIgnoresRedisFailure(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("redis down")}
	d := NewRedisFanout(NewInMemoryDispatcher(), pub, "custom", nil)

	assert.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketRated}))
	assert.Equal(t, "custom", pub.channel)
}
