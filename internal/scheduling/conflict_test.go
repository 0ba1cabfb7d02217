package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConflictWindowBoundaries(t *testing.T) {
	repo := newMemRepo()
	patient := repo.addPatient(Patient{Name: "Pat Doe"})
	doctor := repo.addDoctor(Doctor{Name: "Dr. Grey"})
	checker := NewConflictChecker(repo)

	base := futureInstant(0)
	require.NoError(t, repo.CreateAppointment(context.Background(), &Appointment{
		PatientID:   patient.ID,
		DoctorID:    doctor.ID,
		ScheduledAt: base,
		Status:      StatusConfirmed,
	}))

	window := 30 * time.Minute

	cases := []struct {
		name   string
		offset time.Duration
		want   bool
	}{
		{"same instant", 0, true},
		{"29 minutes after", 29 * time.Minute, true},
		{"29 minutes before", -29 * time.Minute, true},
		{"exactly 30 minutes", 30 * time.Minute, false},
		{"31 minutes after", 31 * time.Minute, false},
		{"31 minutes before", -31 * time.Minute, false},
		{"29 minutes 59 seconds", 29*time.Minute + 59*time.Second, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := checker.HasConflict(context.Background(), doctor.ID, base.Add(tc.offset), window, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestConflictIgnoresOtherDoctorsAndInactive(t *testing.T) {
	repo := newMemRepo()
	patient := repo.addPatient(Patient{Name: "Pat Doe"})
	doctorA := repo.addDoctor(Doctor{Name: "Dr. Grey"})
	doctorB := repo.addDoctor(Doctor{Name: "Dr. Shepherd"})
	checker := NewConflictChecker(repo)

	base := futureInstant(0)
	require.NoError(t, repo.CreateAppointment(context.Background(), &Appointment{
		PatientID:   patient.ID,
		DoctorID:    doctorA.ID,
		ScheduledAt: base,
		Status:      StatusCanceled,
	}))
	require.NoError(t, repo.CreateAppointment(context.Background(), &Appointment{
		PatientID:   patient.ID,
		DoctorID:    doctorB.ID,
		ScheduledAt: base,
		Status:      StatusPending,
	}))

	// Doctor A's only appointment near the slot is canceled, and doctor B's
	// booking is someone else's schedule entirely.
	got, err := checker.HasConflict(context.Background(), doctorA.ID, base, 30*time.Minute, nil)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestConflictExclusion(t *testing.T) {
	repo := newMemRepo()
	patient := repo.addPatient(Patient{Name: "Pat Doe"})
	doctor := repo.addDoctor(Doctor{Name: "Dr. Grey"})
	checker := NewConflictChecker(repo)

	base := futureInstant(0)
	appt := &Appointment{
		PatientID:   patient.ID,
		DoctorID:    doctor.ID,
		ScheduledAt: base,
		Status:      StatusPending,
	}
	require.NoError(t, repo.CreateAppointment(context.Background(), appt))

	got, err := checker.HasConflict(context.Background(), doctor.ID, base.Add(10*time.Minute), 60*time.Minute, &appt.ID)
	require.NoError(t, err)
	assert.False(t, got)
}
