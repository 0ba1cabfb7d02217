package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const appointmentCols = `
	id, patient_id, doctor_id, scheduled_at, status, notes, bill_id,
	confirmation_sent_at, confirmation_method, confirmed_by_patient, confirmed_at,
	original_date, rescheduled_from, rescheduled_to, reschedule_reason,
	is_follow_up, parent_appointment_id, follow_up_date, follow_up_reason,
	created_at, updated_at`

const queueEntryCols = `
	id, patient_id, doctor_id, requested_date, flexible_dates, priority, status,
	appointment_id, expires_at, notified_count, last_notified_at, notes,
	created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Phone,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Specialty,
		&d.Email,
		&d.Phone,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	return &d, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.ScheduledAt,
		&a.Status,
		&a.Notes,
		&a.BillID,
		&a.ConfirmationSentAt,
		&a.ConfirmationMethod,
		&a.ConfirmedByPatient,
		&a.ConfirmedAt,
		&a.OriginalDate,
		&a.RescheduledFrom,
		&a.RescheduledTo,
		&a.RescheduleReason,
		&a.IsFollowUp,
		&a.ParentAppointmentID,
		&a.FollowUpDate,
		&a.FollowUpReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func scanQueueEntry(row pgx.Row) (*QueueEntry, error) {
	var e QueueEntry

	err := row.Scan(
		&e.ID,
		&e.PatientID,
		&e.DoctorID,
		&e.RequestedDate,
		&e.FlexibleDates,
		&e.Priority,
		&e.Status,
		&e.AppointmentID,
		&e.ExpiresAt,
		&e.NotifiedCount,
		&e.LastNotifiedAt,
		&e.Notes,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQueueEntryNotFound
		}
		return nil, err
	}

	return &e, nil
}

// rowQuerier is satisfied by both *pgxpool.Pool and pgx.Tx so the insert can
// run standalone or inside the two-write transactions.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertAppointment(ctx context.Context, q rowQuerier, a *Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := q.QueryRow(ctx, `
		INSERT INTO appointments (
			id, patient_id, doctor_id, scheduled_at, status, notes, bill_id,
			confirmation_sent_at, confirmation_method, confirmed_by_patient, confirmed_at,
			original_date, rescheduled_from, rescheduled_to, reschedule_reason,
			is_follow_up, parent_appointment_id, follow_up_date, follow_up_reason,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, now(), now())
		RETURNING`+appointmentCols,
		a.ID, a.PatientID, a.DoctorID, a.ScheduledAt, a.Status, a.Notes, a.BillID,
		a.ConfirmationSentAt, a.ConfirmationMethod, a.ConfirmedByPatient, a.ConfirmedAt,
		a.OriginalDate, a.RescheduledFrom, a.RescheduledTo, a.RescheduleReason,
		a.IsFollowUp, a.ParentAppointmentID, a.FollowUpDate, a.FollowUpReason,
	)

	return scanAppointment(row)
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, email, phone, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+appointmentCols+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := r.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	patient, err := r.GetPatientByID(ctx, appt.PatientID)
	if err != nil {
		return nil, fmt.Errorf("load patient for appointment %s: %w", id, err)
	}

	doctor, err := r.GetDoctorByID(ctx, appt.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("load doctor for appointment %s: %w", id, err)
	}

	return &AppointmentDetail{Appointment: *appt, Patient: patient, Doctor: doctor}, nil
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+appointmentCols+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY scheduled_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+appointmentCols+`
		FROM appointments
		WHERE doctor_id = $1
		ORDER BY scheduled_at DESC
		LIMIT $2 OFFSET $3
	`, doctorID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CountActiveInWindow(ctx context.Context, doctorID uuid.UUID, from, to time.Time, exclude *uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE doctor_id = $1
		  AND status IN ('pending', 'confirmed')
		  AND scheduled_at > $2
		  AND scheduled_at < $3
		  AND ($4::uuid IS NULL OR id <> $4)
	`, doctorID, from, to, exclude).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active appointments: %w", err)
	}

	return count, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	created, err := insertAppointment(ctx, r.pool, a)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}

	*a = *created
	return nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING`+appointmentCols, id, status)

	return scanAppointment(row)
}

func (r *PgRepository) MarkConfirmedByPatient(ctx context.Context, id uuid.UUID, at time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'confirmed',
		    confirmed_by_patient = true,
		    confirmed_at = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING`+appointmentCols, id, at)

	return scanAppointment(row)
}

func (r *PgRepository) StampConfirmation(ctx context.Context, id uuid.UUID, sentAt time.Time, method string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET confirmation_sent_at = $2,
		    confirmation_method = $3,
		    updated_at = now()
		WHERE id = $1
	`, id, sentAt, method)
	if err != nil {
		return fmt.Errorf("stamp confirmation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}

	return nil
}

// InsertRescheduled inserts the successor appointment and marks the original
// rescheduled in one transaction, so the chain pointers can never end up
// half-written.
func (r *PgRepository) InsertRescheduled(ctx context.Context, originalID uuid.UUID, successor *Appointment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reschedule tx: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := insertAppointment(ctx, tx, successor)
	if err != nil {
		return fmt.Errorf("insert successor appointment: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'rescheduled',
		    rescheduled_to = $2,
		    reschedule_reason = $3,
		    updated_at = now()
		WHERE id = $1
	`, originalID, created.ID, successor.RescheduleReason)
	if err != nil {
		return fmt.Errorf("mark original rescheduled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reschedule tx: %w", err)
	}

	*successor = *created
	return nil
}

// InsertFollowUp inserts the follow-up appointment and stamps the denormalized
// follow-up fields on the parent in one transaction.
func (r *PgRepository) InsertFollowUp(ctx context.Context, parentID uuid.UUID, child *Appointment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin follow-up tx: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := insertAppointment(ctx, tx, child)
	if err != nil {
		return fmt.Errorf("insert follow-up appointment: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET follow_up_date = $2,
		    follow_up_reason = $3,
		    updated_at = now()
		WHERE id = $1
	`, parentID, created.ScheduledAt, child.FollowUpReason)
	if err != nil {
		return fmt.Errorf("stamp follow-up on parent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit follow-up tx: %w", err)
	}

	*child = *created
	return nil
}

// PromoteQueueEntry inserts the appointment and flips the entry to scheduled
// in one transaction. The status guard on the UPDATE converts a concurrent
// promotion into ErrEntryNotWaiting instead of a double booking.
func (r *PgRepository) PromoteQueueEntry(ctx context.Context, entryID uuid.UUID, appt *Appointment) (*QueueEntry, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin promote tx: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := insertAppointment(ctx, tx, appt)
	if err != nil {
		return nil, fmt.Errorf("insert promoted appointment: %w", err)
	}

	row := tx.QueryRow(ctx, `
		UPDATE queue_entries
		SET status = 'scheduled',
		    appointment_id = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'waiting'
		RETURNING`+queueEntryCols, entryID, created.ID)

	entry, err := scanQueueEntry(row)
	if err != nil {
		if errors.Is(err, ErrQueueEntryNotFound) {
			return nil, ErrEntryNotWaiting
		}
		return nil, fmt.Errorf("mark entry scheduled: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit promote tx: %w", err)
	}

	*appt = *created
	return entry, nil
}

func (r *PgRepository) CreateQueueEntry(ctx context.Context, e *QueueEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO queue_entries (
			id, patient_id, doctor_id, requested_date, flexible_dates, priority, status,
			appointment_id, expires_at, notified_count, last_notified_at, notes,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		RETURNING`+queueEntryCols,
		e.ID, e.PatientID, e.DoctorID, e.RequestedDate, e.FlexibleDates, e.Priority, e.Status,
		e.AppointmentID, e.ExpiresAt, e.NotifiedCount, e.LastNotifiedAt, e.Notes,
	)

	created, err := scanQueueEntry(row)
	if err != nil {
		return fmt.Errorf("insert queue entry: %w", err)
	}

	*e = *created
	return nil
}

func (r *PgRepository) GetQueueEntryByID(ctx context.Context, id uuid.UUID) (*QueueEntry, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+queueEntryCols+` FROM queue_entries WHERE id = $1`, id)
	return scanQueueEntry(row)
}

func (r *PgRepository) GetWaitingEntry(ctx context.Context, patientID, doctorID uuid.UUID) (*QueueEntry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+queueEntryCols+`
		FROM queue_entries
		WHERE patient_id = $1
		  AND doctor_id = $2
		  AND status = 'waiting'
	`, patientID, doctorID)
	return scanQueueEntry(row)
}

func (r *PgRepository) UpdateQueueEntry(ctx context.Context, e *QueueEntry) error {
	row := r.pool.QueryRow(ctx, `
		UPDATE queue_entries
		SET requested_date = $2,
		    flexible_dates = $3,
		    priority = $4,
		    status = $5,
		    notified_count = $6,
		    last_notified_at = $7,
		    notes = $8,
		    updated_at = now()
		WHERE id = $1
		RETURNING`+queueEntryCols,
		e.ID, e.RequestedDate, e.FlexibleDates, e.Priority, e.Status,
		e.NotifiedCount, e.LastNotifiedAt, e.Notes,
	)

	updated, err := scanQueueEntry(row)
	if err != nil {
		return err
	}

	*e = *updated
	return nil
}

func (r *PgRepository) ListQueueEntries(ctx context.Context, f QueueFilter) ([]QueueEntry, error) {
	status := QueueWaiting
	if f.Status != nil {
		status = *f.Status
	}

	rows, err := r.pool.Query(ctx, `
		SELECT`+queueEntryCols+`
		FROM queue_entries
		WHERE status = $1
		  AND ($2::uuid IS NULL OR doctor_id = $2)
		  AND ($3::uuid IS NULL OR patient_id = $3)
		ORDER BY CASE priority
		           WHEN 'urgent' THEN 4
		           WHEN 'high' THEN 3
		           WHEN 'medium' THEN 2
		           ELSE 1
		         END DESC,
		         created_at ASC
	`, status, f.DoctorID, f.PatientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ExpireOverdueEntries(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE queue_entries
		SET status = 'expired',
		    updated_at = now()
		WHERE status = 'waiting'
		  AND expires_at < $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("expire overdue entries: %w", err)
	}

	return tag.RowsAffected(), nil
}
