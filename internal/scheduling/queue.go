package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medisched/hospital-scheduling/internal/events"
	"github.com/medisched/hospital-scheduling/internal/notify"
	redisclient "github.com/medisched/hospital-scheduling/internal/redis"
)

var (
	ErrDuplicateQueueEntry = errors.New("patient already has a waiting entry for this doctor")
	ErrEntryNotWaiting     = errors.New("queue entry is not in waiting status")
	ErrEntryExpired        = errors.New("queue entry has expired")
	ErrInvalidPriority     = errors.New("unknown queue priority")
	ErrInvalidQueueStatus  = errors.New("unknown queue status")
)

// QueueService holds deferred booking demand and promotes entries into real
// appointments. Promotion reuses the lifecycle service's lock and conflict
// machinery so a promoted booking obeys the same no-double-booking property
// as a direct one.
type QueueService struct {
	repo Repository
	svc  *Service
	log  zerolog.Logger
}

func NewQueueService(repo Repository, svc *Service, log zerolog.Logger) *QueueService {
	return &QueueService{repo: repo, svc: svc, log: log}
}

type JoinParams struct {
	PatientID     uuid.UUID
	DoctorID      uuid.UUID
	RequestedDate time.Time
	FlexibleDates []time.Time
	Priority      Priority
	Notes         string
}

// Join registers unmet demand for a doctor. One waiting entry per
// (patient, doctor) pair; a second join while the first is still waiting is
// rejected.
func (q *QueueService) Join(ctx context.Context, p JoinParams) (*QueueEntry, error) {
	if p.RequestedDate.IsZero() {
		return nil, ErrInvalidDate
	}
	if p.Priority == "" {
		p.Priority = PriorityMedium
	}
	if !p.Priority.Valid() {
		return nil, ErrInvalidPriority
	}

	if _, err := q.repo.GetPatientByID(ctx, p.PatientID); err != nil {
		return nil, err
	}
	if _, err := q.repo.GetDoctorByID(ctx, p.DoctorID); err != nil {
		return nil, err
	}

	existing, err := q.repo.GetWaitingEntry(ctx, p.PatientID, p.DoctorID)
	if err != nil && !errors.Is(err, ErrQueueEntryNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateQueueEntry
	}

	entry := &QueueEntry{
		PatientID:     p.PatientID,
		DoctorID:      p.DoctorID,
		RequestedDate: p.RequestedDate,
		FlexibleDates: p.FlexibleDates,
		Priority:      p.Priority,
		Status:        QueueWaiting,
		ExpiresAt:     time.Now().Add(q.svc.cfg.QueueTTL),
		Notes:         p.Notes,
	}
	if err := q.repo.CreateQueueEntry(ctx, entry); err != nil {
		return nil, err
	}

	return entry, nil
}

// Leave cancels a waiting entry. Leaving an entry that already reached a
// terminal status is an error, not a silent no-op.
func (q *QueueService) Leave(ctx context.Context, id uuid.UUID) (*QueueEntry, error) {
	entry, err := q.repo.GetQueueEntryByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Status != QueueWaiting {
		return nil, ErrEntryNotWaiting
	}

	entry.Status = QueueCanceled
	if err := q.repo.UpdateQueueEntry(ctx, entry); err != nil {
		return nil, err
	}

	return entry, nil
}

type QueueUpdate struct {
	Priority      *Priority
	RequestedDate *time.Time
	FlexibleDates []time.Time
	Notes         *string
}

// Update is a staff-only mutation of a still-waiting entry.
func (q *QueueService) Update(ctx context.Context, id uuid.UUID, u QueueUpdate) (*QueueEntry, error) {
	entry, err := q.repo.GetQueueEntryByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Status != QueueWaiting {
		return nil, ErrEntryNotWaiting
	}

	if u.Priority != nil {
		if !u.Priority.Valid() {
			return nil, ErrInvalidPriority
		}
		entry.Priority = *u.Priority
	}
	if u.RequestedDate != nil {
		if u.RequestedDate.IsZero() {
			return nil, ErrInvalidDate
		}
		entry.RequestedDate = *u.RequestedDate
	}
	if u.FlexibleDates != nil {
		entry.FlexibleDates = u.FlexibleDates
	}
	if u.Notes != nil {
		entry.Notes = *u.Notes
	}

	if err := q.repo.UpdateQueueEntry(ctx, entry); err != nil {
		return nil, err
	}

	return entry, nil
}

// List returns entries ordered by priority descending then arrival
// ascending. This ordering is the contract a scheduler UI relies on to
// decide who to call next. Without an explicit status filter only waiting
// entries are returned.
func (q *QueueService) List(ctx context.Context, f QueueFilter) ([]QueueEntry, error) {
	if f.Status != nil && !f.Status.Valid() {
		return nil, ErrInvalidQueueStatus
	}

	return q.repo.ListQueueEntries(ctx, f)
}

// Promote converts a waiting entry into a confirmed booking. The appointment
// insert and the entry flip commit as one transaction inside the per-doctor
// lock, so a promoted entry always points at a real appointment and never
// stays waiting once its appointment exists.
func (q *QueueService) Promote(ctx context.Context, entryID uuid.UUID, at time.Time, notes string) (*Appointment, *QueueEntry, error) {
	if at.IsZero() {
		return nil, nil, ErrInvalidDate
	}

	entry, err := q.repo.GetQueueEntryByID(ctx, entryID)
	if err != nil {
		return nil, nil, err
	}
	if entry.Status != QueueWaiting {
		return nil, nil, ErrEntryNotWaiting
	}
	if !entry.ExpiresAt.IsZero() && entry.ExpiresAt.Before(time.Now()) {
		return nil, nil, ErrEntryExpired
	}

	patient, err := q.repo.GetPatientByID(ctx, entry.PatientID)
	if err != nil {
		return nil, nil, err
	}
	doctor, err := q.repo.GetDoctorByID(ctx, entry.DoctorID)
	if err != nil {
		return nil, nil, err
	}

	if err := q.svc.checkBookable(ctx, entry.DoctorID, at); err != nil {
		return nil, nil, err
	}

	var (
		appt    *Appointment
		updated *QueueEntry
	)

	err = q.svc.locker.WithDoctorLock(ctx, entry.DoctorID, func(lockCtx context.Context) error {
		conflict, err := q.svc.checker.HasConflict(lockCtx, entry.DoctorID, at, q.svc.cfg.BookingWindow, nil)
		if err != nil {
			return err
		}
		if conflict {
			return ErrSlotConflict
		}

		a := &Appointment{
			PatientID:   entry.PatientID,
			DoctorID:    entry.DoctorID,
			ScheduledAt: at,
			Status:      StatusPending,
			Notes:       notes,
		}
		e, err := q.repo.PromoteQueueEntry(lockCtx, entryID, a)
		if err != nil {
			return err
		}

		appt = a
		updated = e
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, nil, ErrDoctorBusy
		}
		return nil, nil, err
	}

	q.svc.sendBookingNotice(ctx, appt, patient, doctor, notify.KindBookingConfirmation, "")
	q.svc.events.Publish(ctx, events.Event{
		Type:          events.QueuePromoted,
		AppointmentID: &appt.ID,
		QueueEntryID:  &updated.ID,
		PatientID:     appt.PatientID,
		DoctorID:      appt.DoctorID,
		ScheduledAt:   &appt.ScheduledAt,
	})
	q.svc.publish(ctx, events.AppointmentCreated, appt)

	return appt, updated, nil
}

// ExpireOverdue flips waiting entries past their deadline to expired. It is
// called by the sweep job, not from request handling.
func (q *QueueService) ExpireOverdue(ctx context.Context) (int64, error) {
	n, err := q.repo.ExpireOverdueEntries(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	if n > 0 {
		q.log.Info().Int64("expired", n).Msg("waiting-queue entries expired")
	}

	return n, nil
}
