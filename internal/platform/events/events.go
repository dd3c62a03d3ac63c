// Package events publishes appointment and medical-record lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event types.
const (
	AppointmentCreated       = "appointment.created"
	AppointmentStatusChanged = "appointment.status_changed"
	MedicalRecordCreated     = "medical_record.created"
)

// Event is one lifecycle notification. Key orders events for the same
// aggregate onto one partition.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	Key        string          `json:"key"`
	OccurredAt time.Time       `json:"occurred_at"`
	ActorID    string          `json:"actor_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

// New builds an event with a JSON payload.
func New(eventType, key string, at time.Time, actor uuid.UUID, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	evt := Event{
		ID:         uuid.New(),
		Type:       eventType,
		Key:        key,
		OccurredAt: at.UTC(),
		Payload:    raw,
	}
	if actor != uuid.Nil {
		evt.ActorID = actor.String()
	}
	return evt, nil
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close()
}

// Emit publishes evt and logs a failure instead of returning it. Events are
// sent after the state change commits, so a lost event never undoes it.
func Emit(ctx context.Context, p Publisher, logger zerolog.Logger, eventType, key string, at time.Time, actor uuid.UUID, payload any) {
	if p == nil {
		return
	}
	evt, err := New(eventType, key, at, actor, payload)
	if err == nil {
		err = p.Publish(ctx, evt)
	}
	if err != nil {
		logger.Error().Err(err).Str("event_type", eventType).Str("key", key).Msg("publish event failed")
	}
}

// LogPublisher writes events to the log. It is used when no broker is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, evt Event) error {
	p.logger.Info().
		Str("event_id", evt.ID.String()).
		Str("event_type", evt.Type).
		Str("key", evt.Key).
		RawJSON("payload", evt.Payload).
		Msg("event")
	return nil
}

func (p *LogPublisher) Close() {}

// MemoryPublisher keeps published events in memory.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

// FailWith makes subsequent Publish calls return err.
func (p *MemoryPublisher) FailWith(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *MemoryPublisher) Publish(_ context.Context, evt Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *MemoryPublisher) Close() {}

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// OfType returns published events with the given type.
func (p *MemoryPublisher) OfType(eventType string) []Event {
	var out []Event
	for _, e := range p.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
