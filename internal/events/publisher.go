// Package events emits scheduling domain events for an external real-time
// layer. Delivery is best-effort and unordered; a publish failure is logged
// and never surfaces to the operation that produced the event.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	AppointmentCreated           = "appointment.created"
	AppointmentRescheduled       = "appointment.rescheduled"
	AppointmentFollowUpScheduled = "appointment.followUpScheduled"
	AppointmentCanceled          = "appointment.canceled"
	QueuePromoted                = "queue.promoted"
)

type Event struct {
	Type          string     `json:"type"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	QueueEntryID  *uuid.UUID `json:"queue_entry_id,omitempty"`
	PatientID     uuid.UUID  `json:"patient_id"`
	DoctorID      uuid.UUID  `json:"doctor_id"`
	ScheduledAt   *time.Time `json:"scheduled_at,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

type RedisPublisher struct {
	client  *redis.Client
	channel string
	log     zerolog.Logger
}

func NewRedisPublisher(client *redis.Client, channel string, log zerolog.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel, log: log}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Error().Err(err).Str("type", ev.Type).Msg("marshal event")
		return
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		p.log.Error().Err(err).Str("type", ev.Type).Msg("publish event")
	}
}

// NopPublisher backs tests and setups without a real-time layer.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}
