// Package notify defines the side-channel contract for informing patients and
// doctors about booking events. Delivery transport is an external concern;
// the scheduling core only needs a fire-and-forget dispatch that can never
// fail or delay a booking.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Kind string

const (
	KindBookingConfirmation Kind = "booking_confirmation"
	KindReschedule          Kind = "reschedule"
	KindFollowUp            Kind = "follow_up"
	KindCancellation        Kind = "cancellation"
)

const (
	MethodEmail = "email"
	MethodSMS   = "sms"
)

type Notification struct {
	Kind          Kind
	AppointmentID uuid.UUID
	PatientName   string
	PatientEmail  *string
	PatientPhone  *string
	DoctorName    string
	ScheduledAt   time.Time
	Reason        string
}

// Method picks the delivery method for the patient's contact record. The
// second return is false when no contact is on file and nothing can be sent.
func (n Notification) Method() (string, bool) {
	if n.PatientEmail != nil && *n.PatientEmail != "" {
		return MethodEmail, true
	}
	if n.PatientPhone != nil && *n.PatientPhone != "" {
		return MethodSMS, true
	}
	return "", false
}

type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// LogNotifier records deliveries to the log. It stands in for the real
// email/SMS gateway, which lives outside this service.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (l *LogNotifier) Send(_ context.Context, n Notification) error {
	method, ok := n.Method()
	if !ok {
		l.log.Warn().
			Str("kind", string(n.Kind)).
			Str("appointment_id", n.AppointmentID.String()).
			Msg("no contact on file, notification skipped")
		return nil
	}

	l.log.Info().
		Str("kind", string(n.Kind)).
		Str("method", method).
		Str("appointment_id", n.AppointmentID.String()).
		Str("patient", n.PatientName).
		Str("doctor", n.DoctorName).
		Time("scheduled_at", n.ScheduledAt).
		Msg("notification dispatched")

	return nil
}
