package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrQueueEntryNotFound  = errors.New("queue entry not found")
)

// QueueFilter narrows ListQueueEntries. A nil Status means the caller wants
// the default view (waiting entries only).
type QueueFilter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Status    *QueueStatus
}

// Repository contains all DB interactions needed by the scheduling services.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error)

	// Conflict checks: count of active appointments for the doctor whose
	// scheduled time falls inside (from, to), optionally excluding one id.
	CountActiveInWindow(ctx context.Context, doctorID uuid.UUID, from, to time.Time, exclude *uuid.UUID) (int, error)

	CreateAppointment(ctx context.Context, a *Appointment) error
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) (*Appointment, error)
	MarkConfirmedByPatient(ctx context.Context, id uuid.UUID, at time.Time) (*Appointment, error)
	StampConfirmation(ctx context.Context, id uuid.UUID, sentAt time.Time, method string) error

	// Two-write mutations, each atomic as a unit.
	InsertRescheduled(ctx context.Context, originalID uuid.UUID, successor *Appointment) error
	InsertFollowUp(ctx context.Context, parentID uuid.UUID, child *Appointment) error
	PromoteQueueEntry(ctx context.Context, entryID uuid.UUID, appt *Appointment) (*QueueEntry, error)

	CreateQueueEntry(ctx context.Context, e *QueueEntry) error
	GetQueueEntryByID(ctx context.Context, id uuid.UUID) (*QueueEntry, error)
	GetWaitingEntry(ctx context.Context, patientID, doctorID uuid.UUID) (*QueueEntry, error)
	UpdateQueueEntry(ctx context.Context, e *QueueEntry) error
	// ListQueueEntries returns entries ordered by priority descending then
	// creation time ascending (FIFO within a priority band).
	ListQueueEntries(ctx context.Context, f QueueFilter) ([]QueueEntry, error)
	// ExpireOverdueEntries flips waiting entries past their deadline to
	// expired and returns how many were flipped.
	ExpireOverdueEntries(ctx context.Context, now time.Time) (int64, error)
}
