package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medisched/hospital-scheduling/internal/availability"
	"github.com/medisched/hospital-scheduling/internal/config"
	"github.com/medisched/hospital-scheduling/internal/events"
	"github.com/medisched/hospital-scheduling/internal/notify"
	redisclient "github.com/medisched/hospital-scheduling/internal/redis"
)

var (
	ErrSlotConflict       = errors.New("doctor already has an appointment near that time")
	ErrDoctorBusy         = errors.New("doctor schedule is being modified, please retry")
	ErrInvalidDate        = errors.New("appointment date is missing or malformed")
	ErrPastDate           = errors.New("appointment date must be in the future")
	ErrOutsideHours       = errors.New("doctor is not bookable at that time")
	ErrInvalidStatus      = errors.New("unknown appointment status")
	ErrAlreadyRescheduled = errors.New("appointment was already rescheduled")
	ErrMissingContact     = errors.New("no contact record on file")
)

// ServiceDeps wires the lifecycle service. Availability may be nil when the
// staffing system is not connected; bookable-hours checks are then skipped.
type ServiceDeps struct {
	Repo         Repository
	Locker       redisclient.Locker
	Dispatcher   *notify.Dispatcher
	Notifier     notify.Notifier
	Events       events.Publisher
	Availability availability.Provider
	Config       config.Config
	Log          zerolog.Logger
}

// Service owns the appointment lifecycle: booking, status transitions,
// reschedule chains, follow-up chains and confirmation tracking. Every write
// that could double-book a doctor runs inside the per-doctor lock.
type Service struct {
	repo       Repository
	locker     redisclient.Locker
	checker    *ConflictChecker
	dispatcher *notify.Dispatcher
	notifier   notify.Notifier
	events     events.Publisher
	avail      availability.Provider
	cfg        config.Config
	log        zerolog.Logger
}

func NewService(d ServiceDeps) *Service {
	return &Service{
		repo:       d.Repo,
		locker:     d.Locker,
		checker:    NewConflictChecker(d.Repo),
		dispatcher: d.Dispatcher,
		notifier:   d.Notifier,
		events:     d.Events,
		avail:      d.Availability,
		cfg:        d.Config,
		log:        d.Log,
	}
}

type CreateParams struct {
	PatientID   uuid.UUID
	DoctorID    uuid.UUID
	ScheduledAt time.Time
	Notes       string
}

// Create books a new appointment in pending status. The conflict check and
// the insert run as one critical section per doctor, so two concurrent
// requests for overlapping times cannot both commit.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Appointment, error) {
	if p.ScheduledAt.IsZero() {
		return nil, ErrInvalidDate
	}

	patient, err := s.repo.GetPatientByID(ctx, p.PatientID)
	if err != nil {
		return nil, err
	}
	doctor, err := s.repo.GetDoctorByID(ctx, p.DoctorID)
	if err != nil {
		return nil, err
	}

	if err := s.checkBookable(ctx, p.DoctorID, p.ScheduledAt); err != nil {
		return nil, err
	}

	var created *Appointment

	err = s.locker.WithDoctorLock(ctx, p.DoctorID, func(lockCtx context.Context) error {
		conflict, err := s.checker.HasConflict(lockCtx, p.DoctorID, p.ScheduledAt, s.cfg.BookingWindow, nil)
		if err != nil {
			return err
		}
		if conflict {
			return ErrSlotConflict
		}

		appt := &Appointment{
			PatientID:   p.PatientID,
			DoctorID:    p.DoctorID,
			ScheduledAt: p.ScheduledAt,
			Status:      StatusPending,
			Notes:       p.Notes,
		}
		if err := s.repo.CreateAppointment(lockCtx, appt); err != nil {
			return err
		}

		created = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrDoctorBusy
		}
		return nil, err
	}

	s.sendBookingNotice(ctx, created, patient, doctor, notify.KindBookingConfirmation, "")
	s.publish(ctx, events.AppointmentCreated, created)

	return created, nil
}

// UpdateStatus applies any requested transition. The state machine is
// deliberately permissive: authorization and workflow policy live with the
// caller, and any status may move to any other.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) (*Appointment, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	return s.repo.UpdateAppointmentStatus(ctx, id, status)
}

// Cancel transitions the appointment to canceled, records the reason and
// notifies the patient. The record itself is kept for audit.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, err
	}

	appt, err := s.repo.UpdateAppointmentStatus(ctx, id, StatusCanceled)
	if err != nil {
		return nil, err
	}

	n := s.buildNotification(appt, detail.Patient, detail.Doctor, notify.KindCancellation, reason)
	if _, ok := n.Method(); ok {
		s.dispatcher.Enqueue(n)
	}
	s.publish(ctx, events.AppointmentCanceled, appt)

	return appt, nil
}

// Reschedule moves a booking to a new time by creating a successor
// appointment and marking the original rescheduled. The two writes are
// atomic, and the successor carries the chain's first-ever date forward.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newAt time.Time, reason string) (*Appointment, error) {
	if newAt.IsZero() {
		return nil, ErrInvalidDate
	}
	if !newAt.After(time.Now()) {
		return nil, ErrPastDate
	}

	detail, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	orig := &detail.Appointment

	// A rescheduled appointment has exactly one successor; forking the
	// chain is never allowed.
	if orig.Status == StatusRescheduled || orig.RescheduledTo != nil {
		return nil, ErrAlreadyRescheduled
	}

	if err := s.checkBookable(ctx, orig.DoctorID, newAt); err != nil {
		return nil, err
	}

	var successor *Appointment

	err = s.locker.WithDoctorLock(ctx, orig.DoctorID, func(lockCtx context.Context) error {
		// A reschedule presumes a meaningfully different appointment, so
		// the conflict margin is wider than for a fresh booking.
		conflict, err := s.checker.HasConflict(lockCtx, orig.DoctorID, newAt, s.cfg.RescheduleWin, &orig.ID)
		if err != nil {
			return err
		}
		if conflict {
			return ErrSlotConflict
		}

		originalDate := orig.FirstScheduledAt()
		succ := &Appointment{
			PatientID:           orig.PatientID,
			DoctorID:            orig.DoctorID,
			ScheduledAt:         newAt,
			Status:              StatusPending,
			Notes:               orig.Notes,
			OriginalDate:        &originalDate,
			RescheduledFrom:     &orig.ID,
			RescheduleReason:    &reason,
			IsFollowUp:          orig.IsFollowUp,
			ParentAppointmentID: orig.ParentAppointmentID,
			FollowUpReason:      orig.FollowUpReason,
		}
		if err := s.repo.InsertRescheduled(lockCtx, orig.ID, succ); err != nil {
			return err
		}

		successor = succ
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrDoctorBusy
		}
		return nil, err
	}

	s.sendBookingNotice(ctx, successor, detail.Patient, detail.Doctor, notify.KindReschedule, reason)
	s.publish(ctx, events.AppointmentRescheduled, successor)

	return successor, nil
}

// ConfirmByPatient is the public endpoint behind the emailed confirmation
// link. No auth, fails only when the appointment does not exist.
func (s *Service) ConfirmByPatient(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.MarkConfirmedByPatient(ctx, id, time.Now())
}

// ScheduleFollowUp books a follow-up visit with the same doctor as the
// parent appointment and stamps the denormalized follow-up fields back onto
// the parent.
func (s *Service) ScheduleFollowUp(ctx context.Context, parentID uuid.UUID, at time.Time, reason string) (*Appointment, error) {
	if at.IsZero() {
		return nil, ErrInvalidDate
	}
	if !at.After(time.Now()) {
		return nil, ErrPastDate
	}

	detail, err := s.repo.GetAppointmentDetail(ctx, parentID)
	if err != nil {
		return nil, err
	}
	parent := &detail.Appointment

	if err := s.checkBookable(ctx, parent.DoctorID, at); err != nil {
		return nil, err
	}

	var child *Appointment

	err = s.locker.WithDoctorLock(ctx, parent.DoctorID, func(lockCtx context.Context) error {
		conflict, err := s.checker.HasConflict(lockCtx, parent.DoctorID, at, s.cfg.BookingWindow, nil)
		if err != nil {
			return err
		}
		if conflict {
			return ErrSlotConflict
		}

		c := &Appointment{
			PatientID:           parent.PatientID,
			DoctorID:            parent.DoctorID,
			ScheduledAt:         at,
			Status:              StatusPending,
			IsFollowUp:          true,
			ParentAppointmentID: &parent.ID,
			FollowUpReason:      &reason,
		}
		if err := s.repo.InsertFollowUp(lockCtx, parent.ID, c); err != nil {
			return err
		}

		child = c
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrDoctorBusy
		}
		return nil, err
	}

	s.sendBookingNotice(ctx, child, detail.Patient, detail.Doctor, notify.KindFollowUp, reason)
	s.publish(ctx, events.AppointmentFollowUpScheduled, child)

	return child, nil
}

// ResendConfirmation re-sends the booking confirmation synchronously. Unlike
// every other notification path this one surfaces delivery failure: resend
// is a deliberate user action and the user needs to know it did not go out.
func (s *Service) ResendConfirmation(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, err
	}

	if !hasContact(detail.Doctor.Email, detail.Doctor.Phone) {
		return nil, ErrMissingContact
	}

	n := s.buildNotification(&detail.Appointment, detail.Patient, detail.Doctor, notify.KindBookingConfirmation, "")
	method, ok := n.Method()
	if !ok {
		return nil, ErrMissingContact
	}

	if err := s.notifier.Send(ctx, n); err != nil {
		return nil, fmt.Errorf("resend confirmation: %w", err)
	}

	if err := s.repo.StampConfirmation(ctx, id, time.Now(), method); err != nil {
		return nil, err
	}

	return s.repo.GetAppointmentByID(ctx, id)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	return s.repo.GetAppointmentDetail(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	return s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	return s.repo.ListAppointmentsByDoctor(ctx, doctorID, limit, offset)
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *Service) checkBookable(ctx context.Context, doctorID uuid.UUID, at time.Time) error {
	if s.avail == nil {
		return nil
	}

	ok, err := s.avail.IsBookable(ctx, doctorID, at)
	if err != nil {
		return fmt.Errorf("availability check: %w", err)
	}
	if !ok {
		return ErrOutsideHours
	}

	return nil
}

func (s *Service) buildNotification(appt *Appointment, patient *Patient, doctor *Doctor, kind notify.Kind, reason string) notify.Notification {
	return notify.Notification{
		Kind:          kind,
		AppointmentID: appt.ID,
		PatientName:   patient.Name,
		PatientEmail:  patient.Email,
		PatientPhone:  patient.Phone,
		DoctorName:    doctor.Name,
		ScheduledAt:   appt.ScheduledAt,
		Reason:        reason,
	}
}

// sendBookingNotice dispatches the confirmation asynchronously, after the
// booking has committed and outside the doctor lock. Confirmation fields are
// stamped only when a dispatch was actually attempted.
func (s *Service) sendBookingNotice(ctx context.Context, appt *Appointment, patient *Patient, doctor *Doctor, kind notify.Kind, reason string) {
	n := s.buildNotification(appt, patient, doctor, kind, reason)

	method, ok := n.Method()
	if !ok {
		s.log.Debug().
			Str("appointment_id", appt.ID.String()).
			Msg("patient has no contact on file, skipping notification")
		return
	}

	if !s.dispatcher.Enqueue(n) {
		return
	}

	sentAt := time.Now()
	if err := s.repo.StampConfirmation(ctx, appt.ID, sentAt, method); err != nil {
		s.log.Error().Err(err).
			Str("appointment_id", appt.ID.String()).
			Msg("stamp confirmation bookkeeping failed")
		return
	}

	appt.ConfirmationSentAt = &sentAt
	appt.ConfirmationMethod = &method
}

func (s *Service) publish(ctx context.Context, eventType string, appt *Appointment) {
	s.events.Publish(ctx, events.Event{
		Type:          eventType,
		AppointmentID: &appt.ID,
		PatientID:     appt.PatientID,
		DoctorID:      appt.DoctorID,
		ScheduledAt:   &appt.ScheduledAt,
	})
}

func hasContact(email, phone *string) bool {
	return (email != nil && *email != "") || (phone != nil && *phone != "")
}
