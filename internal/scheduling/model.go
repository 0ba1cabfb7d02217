package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending     AppointmentStatus = "pending"
	StatusConfirmed   AppointmentStatus = "confirmed"
	StatusCompleted   AppointmentStatus = "completed"
	StatusCanceled    AppointmentStatus = "canceled"
	StatusRescheduled AppointmentStatus = "rescheduled"
)

// Active reports whether the appointment counts for conflict detection.
// Completed, canceled and rescheduled appointments never conflict.
func (s AppointmentStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCanceled, StatusRescheduled:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Rank orders priorities for queue listing, urgent highest.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

type QueueStatus string

const (
	QueueWaiting   QueueStatus = "waiting"
	QueueScheduled QueueStatus = "scheduled"
	QueueExpired   QueueStatus = "expired"
	QueueCanceled  QueueStatus = "canceled"
)

func (s QueueStatus) Valid() bool {
	switch s {
	case QueueWaiting, QueueScheduled, QueueExpired, QueueCanceled:
		return true
	}
	return false
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	Email     *string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Appointment is one scheduled encounter between a patient and a doctor.
// Appointments are never deleted: cancellation and rescheduling are status
// transitions, so the chain pointers stay resolvable for audit.
type Appointment struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	DoctorID    uuid.UUID
	ScheduledAt time.Time
	Status      AppointmentStatus
	Notes       string
	BillID      *uuid.UUID

	// Confirmation tracking
	ConfirmationSentAt *time.Time
	ConfirmationMethod *string
	ConfirmedByPatient bool
	ConfirmedAt        *time.Time

	// Reschedule chain. OriginalDate is the first date in the whole chain and
	// is carried forward at creation time so no traversal is needed to answer
	// "when was this originally booked".
	OriginalDate     *time.Time
	RescheduledFrom  *uuid.UUID
	RescheduledTo    *uuid.UUID
	RescheduleReason *string

	// Follow-up chain. Traversal is via ParentAppointmentID; FollowUpDate and
	// FollowUpReason on the parent are denormalized convenience fields.
	IsFollowUp          bool
	ParentAppointmentID *uuid.UUID
	FollowUpDate        *time.Time
	FollowUpReason      *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FirstScheduledAt resolves the original date of the booking chain.
func (a *Appointment) FirstScheduledAt() time.Time {
	if a.OriginalDate != nil {
		return *a.OriginalDate
	}
	return a.ScheduledAt
}

// QueueEntry is unmet demand for a doctor, waiting to be promoted into a
// real appointment by staff action.
type QueueEntry struct {
	ID             uuid.UUID
	PatientID      uuid.UUID
	DoctorID       uuid.UUID
	RequestedDate  time.Time
	FlexibleDates  []time.Time
	Priority       Priority
	Status         QueueStatus
	AppointmentID  *uuid.UUID
	ExpiresAt      time.Time
	NotifiedCount  int
	LastNotifiedAt *time.Time
	Notes          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type AppointmentDetail struct {
	Appointment
	Patient *Patient
	Doctor  *Doctor
}
