package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medisched/hospital-scheduling/internal/notify"
)

func TestCreateAppointment(t *testing.T) {
	env := newTestEnv()
	at := futureInstant(0)

	appt, err := env.svc.Create(context.Background(), CreateParams{
		PatientID:   env.patient.ID,
		DoctorID:    env.doctor.ID,
		ScheduledAt: at,
		Notes:       "annual checkup",
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, appt.ID)
	assert.Equal(t, StatusPending, appt.Status)
	assert.True(t, appt.ScheduledAt.Equal(at))
	assert.Equal(t, "annual checkup", appt.Notes)

	// The patient has an email on file and the dispatcher accepted the
	// notification, so confirmation bookkeeping is stamped.
	require.NotNil(t, appt.ConfirmationSentAt)
	require.NotNil(t, appt.ConfirmationMethod)
	assert.Equal(t, notify.MethodEmail, *appt.ConfirmationMethod)

	stored, err := env.repo.GetAppointmentByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.ConfirmationSentAt)
}

func TestCreateRejectsUnknownParticipants(t *testing.T) {
	env := newTestEnv()
	at := futureInstant(0)

	_, err := env.svc.Create(context.Background(), CreateParams{
		PatientID:   uuid.New(),
		DoctorID:    env.doctor.ID,
		ScheduledAt: at,
	})
	assert.ErrorIs(t, err, ErrPatientNotFound)

	_, err = env.svc.Create(context.Background(), CreateParams{
		PatientID:   env.patient.ID,
		DoctorID:    uuid.New(),
		ScheduledAt: at,
	})
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestCreateRejectsZeroDate(t *testing.T) {
	env := newTestEnv()

	_, err := env.svc.Create(context.Background(), CreateParams{
		PatientID: env.patient.ID,
		DoctorID:  env.doctor.ID,
	})
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestCreateConflictWindow(t *testing.T) {
	env := newTestEnv()
	base := futureInstant(0)

	_, err := env.svc.Create(context.Background(), CreateParams{
		PatientID:   env.patient.ID,
		DoctorID:    env.doctor.ID,
		ScheduledAt: base,
	})
	require.NoError(t, err)

	other := env.repo.addPatient(Patient{Name: "Sam Roe"})

	// 29 minutes away is inside the margin.
	_, err = env.svc.Create(context.Background(), CreateParams{
		PatientID:   other.ID,
		DoctorID:    env.doctor.ID,
		ScheduledAt: base.Add(29 * time.Minute),
	})
	assert.ErrorIs(t, err, ErrSlotConflict)

	// 31 minutes away is clear.
	_, err = env.svc.Create(context.Background(), CreateParams{
		PatientID:   other.ID,
		DoctorID:    env.doctor.ID,
		ScheduledAt: base.Add(31 * time.Minute),
	})
	assert.NoError(t, err)
}

func TestCreateIgnoresInactiveAppointments(t *testing.T) {
	env := newTestEnv()
	base := futureInstant(0)

	first, err := env.svc.Create(context.Background(), CreateParams{
		PatientID:   env.patient.ID,
		DoctorID:    env.doctor.ID,
		ScheduledAt: base,
	})
	require.NoError(t, err)

	_, err = env.svc.Cancel(context.Background(), first.ID, "patient request")
	require.NoError(t, err)

	// The canceled booking no longer blocks the slot.
	_, err = env.svc.Create(context.Background(), CreateParams{
		PatientID:   env.patient.ID,
		DoctorID:    env.doctor.ID,
		ScheduledAt: base,
	})
	assert.NoError(t, err)
}

// Concurrent bookings for the same slot must resolve to exactly one success;
// the rest observe the conflict that the per-doctor lock makes visible.
func TestConcurrentCreateSingleSuccess(t *testing.T) {
	env := newTestEnv()
	at := futureInstant(0)

	const attempts = 25

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)

	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			_, err := env.svc.Create(context.Background(), CreateParams{
				PatientID:   env.patient.ID,
				DoctorID:    env.doctor.ID,
				ScheduledAt: at,
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrSlotConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, conflicts)
}

func TestUpdateStatus(t *testing.T) {
	env := newTestEnv()

	appt, err := env.svc.Create(context.Background(), CreateParams{
		PatientID:   env.patient.ID,
		DoctorID:    env.doctor.ID,
		ScheduledAt: futureInstant(0),
	})
	require.NoError(t, err)

	updated, err := env.svc.UpdateStatus(context.Background(), appt.ID, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, updated.Status)

	// Transitions are unrestricted; completed may move back to pending.
	updated, err = env.svc.UpdateStatus(context.Background(), appt.ID, StatusPending)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, updated.Status)

	_, err = env.svc.UpdateStatus(context.Background(), appt.ID, AppointmentStatus("archived"))
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = env.svc.UpdateStatus(context.Background(), uuid.New(), StatusConfirmed)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestRescheduleChain(t *testing.T) {
	env := newTestEnv()
	firstAt := futureInstant(0)

	orig, err := env.svc.Create(context.Background(), CreateParams{
		PatientID:   env.patient.ID,
		DoctorID:    env.doctor.ID,
		ScheduledAt: firstAt,
		Notes:       "knee pain",
	})
	require.NoError(t, err)

	secondAt := firstAt.Add(3 * time.Hour)
	succ, err := env.svc.Reschedule(context.Background(), orig.ID, secondAt, "doctor unavailable")
	require.NoError(t, err)

	assert.Equal(t, StatusPending, succ.Status)
	assert.True(t, succ.ScheduledAt.Equal(secondAt))
	assert.Equal(t, "knee pain", succ.Notes)
	require.NotNil(t, succ.RescheduledFrom)
	assert.Equal(t, orig.ID, *succ.RescheduledFrom)
	require.NotNil(t, succ.OriginalDate)
	assert.True(t, succ.OriginalDate.Equal(firstAt))

	stored, err := env.repo.GetAppointmentByID(context.Background(), orig.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRescheduled, stored.Status)
	require.NotNil(t, stored.RescheduledTo)
	assert.Equal(t, succ.ID, *stored.RescheduledTo)
	require.NotNil(t, stored.RescheduleReason)
	assert.Equal(t, "doctor unavailable", *stored.RescheduleReason)

	// Rescheduling the successor keeps pointing OriginalDate at the very
	// first date in the chain.
	thirdAt := secondAt.Add(3 * time.Hour)
	third, err := env.svc.Reschedule(context.Background(), succ.ID, thirdAt, "again")
	require.NoError(t, err)
	require.NotNil(t, third.OriginalDate)
	assert.True(t, third.OriginalDate.Equal(firstAt))
}

func TestRescheduleGuards(t *testing.T) {
	env := newTestEnv()
	firstAt := futureInstant(0)

	orig, err := env.svc.Create(context.Background(), CreateParams{
		PatientID:   env.patient.ID,
		DoctorID:    env.doctor.ID,
		ScheduledAt: firstAt,
	})
	require.NoError(t, err)

	_, err = env.svc.Reschedule(context.Background(), orig.ID, time.Now().Add(-time.Hour), "")
	assert.ErrorIs(t, err, ErrPastDate)

	_, err = env.svc.Reschedule(context.Background(), uuid.New(), futureInstant(time.Hour), "")
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	_, err = env.svc.Reschedule(context.Background(), orig.ID, firstAt.Add(3*time.Hour), "move")
	require.NoError(t, err)

	// The original now has a successor; a second reschedule would fork the
	// chain.
	_, err = env.svc.Reschedule(context.Background(), orig.ID, firstAt.Add(6*time.Hour), "fork")
	assert.ErrorIs(t, err, ErrAlreadyRescheduled)
}

func TestRescheduleUsesWiderWindow(t *testing.T) {
	env := newTestEnv()
	base := futureInstant(0)

	orig, err := env.svc.Create(context.Background(), CreateParams{
		PatientID:   env.patient.ID,
		DoctorID:    env.doctor.ID,
		ScheduledAt: base,
	})
	require.NoError(t, err)

	other := env.repo.addPatient(Patient{Name: "Sam Roe"})
	_, err = env.svc.Create(context.Background(), CreateParams{
		PatientID:   other.ID,
		DoctorID:    env.doctor.ID,
		ScheduledAt: base.Add(4 * time.Hour),
	})
	require.NoError(t, err)

	// 45 minutes from the other booking: fine for a fresh create, but
	// inside the 60-minute reschedule margin.
	target := base.Add(4*time.Hour + 45*time.Minute)
	_, err = env.svc.Reschedule(context.Background(), orig.ID, target, "")
	assert.ErrorIs(t, err, ErrSlotConflict)

	// The moved appointment itself never conflicts with its own old slot.
	succ, err := env.svc.Reschedule(context.Background(), orig.ID, base.Add(30*time.Minute), "")
	require.NoError(t, err)
	assert.True(t, succ.ScheduledAt.Equal(base.Add(30*time.Minute)))
}

func TestConfirmByPatient(t *testing.T) {
	env := newTestEnv()

	appt, err := env.svc.Create(context.Background(), CreateParams{
		PatientID:   env.patient.ID,
		DoctorID:    env.doctor.ID,
		ScheduledAt: futureInstant(0),
	})
	require.NoError(t, err)

	confirmed, err := env.svc.ConfirmByPatient(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)
	assert.True(t, confirmed.ConfirmedByPatient)
	require.NotNil(t, confirmed.ConfirmedAt)

	_, err = env.svc.ConfirmByPatient(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestScheduleFollowUp(t *testing.T) {
	env := newTestEnv()
	parentAt := futureInstant(0)

	parent, err := env.svc.Create(context.Background(), CreateParams{
		PatientID:   env.patient.ID,
		DoctorID:    env.doctor.ID,
		ScheduledAt: parentAt,
	})
	require.NoError(t, err)

	followAt := parentAt.Add(14 * 24 * time.Hour)
	child, err := env.svc.ScheduleFollowUp(context.Background(), parent.ID, followAt, "review bloodwork")
	require.NoError(t, err)

	assert.True(t, child.IsFollowUp)
	require.NotNil(t, child.ParentAppointmentID)
	assert.Equal(t, parent.ID, *child.ParentAppointmentID)
	require.NotNil(t, child.FollowUpReason)
	assert.Equal(t, "review bloodwork", *child.FollowUpReason)
	assert.Equal(t, parent.PatientID, child.PatientID)
	assert.Equal(t, parent.DoctorID, child.DoctorID)

	stored, err := env.repo.GetAppointmentByID(context.Background(), parent.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.FollowUpDate)
	assert.True(t, stored.FollowUpDate.Equal(followAt))

	_, err = env.svc.ScheduleFollowUp(context.Background(), parent.ID, time.Now().Add(-time.Hour), "")
	assert.ErrorIs(t, err, ErrPastDate)

	// A follow-up competes for the doctor's time like any booking.
	_, err = env.svc.ScheduleFollowUp(context.Background(), parent.ID, followAt.Add(10*time.Minute), "")
	assert.ErrorIs(t, err, ErrSlotConflict)
}

func TestResendConfirmation(t *testing.T) {
	env := newTestEnv()

	appt, err := env.svc.Create(context.Background(), CreateParams{
		PatientID:   env.patient.ID,
		DoctorID:    env.doctor.ID,
		ScheduledAt: futureInstant(0),
	})
	require.NoError(t, err)

	before := env.notifier.count()
	resent, err := env.svc.ResendConfirmation(context.Background(), appt.ID)
	require.NoError(t, err)

	// Resend delivers inline, so the send is visible immediately.
	assert.Equal(t, before+1, env.notifier.count())
	require.NotNil(t, resent.ConfirmationSentAt)
	require.NotNil(t, resent.ConfirmationMethod)
	assert.Equal(t, notify.MethodEmail, *resent.ConfirmationMethod)
}

func TestResendConfirmationMissingContact(t *testing.T) {
	env := newTestEnv()

	noContact := env.repo.addPatient(Patient{Name: "Ghost"})
	appt, err := env.svc.Create(context.Background(), CreateParams{
		PatientID:   noContact.ID,
		DoctorID:    env.doctor.ID,
		ScheduledAt: futureInstant(0),
	})
	require.NoError(t, err)

	// No contact, so the create never stamped confirmation either.
	assert.Nil(t, appt.ConfirmationSentAt)

	_, err = env.svc.ResendConfirmation(context.Background(), appt.ID)
	assert.ErrorIs(t, err, ErrMissingContact)
}

func TestResendConfirmationDeliveryFailure(t *testing.T) {
	env := newTestEnv()

	appt, err := env.svc.Create(context.Background(), CreateParams{
		PatientID:   env.patient.ID,
		DoctorID:    env.doctor.ID,
		ScheduledAt: futureInstant(0),
	})
	require.NoError(t, err)

	env.notifier.fail = errors.New("smtp unreachable")
	_, err = env.svc.ResendConfirmation(context.Background(), appt.ID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMissingContact)
}

func TestCancel(t *testing.T) {
	env := newTestEnv()

	appt, err := env.svc.Create(context.Background(), CreateParams{
		PatientID:   env.patient.ID,
		DoctorID:    env.doctor.ID,
		ScheduledAt: futureInstant(0),
	})
	require.NoError(t, err)

	canceled, err := env.svc.Cancel(context.Background(), appt.ID, "patient request")
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, canceled.Status)

	// The record survives cancellation.
	stored, err := env.repo.GetAppointmentByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, stored.Status)
}

func TestGetAndList(t *testing.T) {
	env := newTestEnv()
	base := futureInstant(0)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		appt, err := env.svc.Create(context.Background(), CreateParams{
			PatientID:   env.patient.ID,
			DoctorID:    env.doctor.ID,
			ScheduledAt: base.Add(time.Duration(i) * 2 * time.Hour),
		})
		require.NoError(t, err)
		ids = append(ids, appt.ID)
	}

	detail, err := env.svc.Get(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, env.patient.Name, detail.Patient.Name)
	assert.Equal(t, env.doctor.Name, detail.Doctor.Name)

	byPatient, err := env.svc.ListByPatient(context.Background(), env.patient.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, byPatient, 3)

	byDoctor, err := env.svc.ListByDoctor(context.Background(), env.doctor.ID, 2, 0)
	require.NoError(t, err)
	assert.Len(t, byDoctor, 2)

	_, err = env.svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}
