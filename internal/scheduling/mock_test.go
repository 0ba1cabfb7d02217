package scheduling

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medisched/hospital-scheduling/internal/config"
	"github.com/medisched/hospital-scheduling/internal/events"
	"github.com/medisched/hospital-scheduling/internal/notify"
)

var errInjectedCrash = errors.New("injected crash")

// memRepo is an in-memory Repository. All methods hold one mutex so the
// concurrent booking tests exercise the locker, not accidental data races.
type memRepo struct {
	mu       sync.Mutex
	patients map[uuid.UUID]Patient
	doctors  map[uuid.UUID]Doctor
	appts    map[uuid.UUID]Appointment
	entries  map[uuid.UUID]QueueEntry
	seq      int

	// crashPromote simulates a failure between the promotion's two writes.
	// The contract is atomicity, so the fake fails without mutating.
	crashPromote bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		patients: make(map[uuid.UUID]Patient),
		doctors:  make(map[uuid.UUID]Doctor),
		appts:    make(map[uuid.UUID]Appointment),
		entries:  make(map[uuid.UUID]QueueEntry),
	}
}

// tick produces strictly increasing creation timestamps so FIFO ordering
// within a priority band is deterministic.
func (m *memRepo) tick() time.Time {
	m.seq++
	return time.Unix(1700000000, 0).Add(time.Duration(m.seq) * time.Millisecond)
}

func (m *memRepo) addPatient(p Patient) Patient {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.patients[p.ID] = p
	return p
}

func (m *memRepo) addDoctor(d Doctor) Doctor {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	m.doctors[d.ID] = d
	return d
}

func (m *memRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (m *memRepo) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (m *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *memRepo) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := m.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	patient, err := m.GetPatientByID(ctx, appt.PatientID)
	if err != nil {
		return nil, err
	}
	doctor, err := m.GetDoctorByID(ctx, appt.DoctorID)
	if err != nil {
		return nil, err
	}
	return &AppointmentDetail{Appointment: *appt, Patient: patient, Doctor: doctor}, nil
}

func (m *memRepo) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.After(out[j].ScheduledAt) })
	return page(out, limit, offset), nil
}

func (m *memRepo) ListAppointmentsByDoctor(_ context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if a.DoctorID == doctorID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.After(out[j].ScheduledAt) })
	return page(out, limit, offset), nil
}

func page(in []Appointment, limit, offset int) []Appointment {
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if limit < len(in) {
		in = in[:limit]
	}
	return in
}

func (m *memRepo) CountActiveInWindow(_ context.Context, doctorID uuid.UUID, from, to time.Time, exclude *uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, a := range m.appts {
		if a.DoctorID != doctorID || !a.Status.Active() {
			continue
		}
		if exclude != nil && a.ID == *exclude {
			continue
		}
		if a.ScheduledAt.After(from) && a.ScheduledAt.Before(to) {
			count++
		}
	}
	return count, nil
}

func (m *memRepo) CreateAppointment(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertAppointmentLocked(a)
	return nil
}

func (m *memRepo) insertAppointmentLocked(a *Appointment) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = m.tick()
	a.UpdatedAt = a.CreatedAt
	m.appts[a.ID] = *a
}

func (m *memRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, status AppointmentStatus) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.Status = status
	m.appts[id] = a
	return &a, nil
}

func (m *memRepo) MarkConfirmedByPatient(_ context.Context, id uuid.UUID, at time.Time) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.Status = StatusConfirmed
	a.ConfirmedByPatient = true
	a.ConfirmedAt = &at
	m.appts[id] = a
	return &a, nil
}

func (m *memRepo) StampConfirmation(_ context.Context, id uuid.UUID, sentAt time.Time, method string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	a.ConfirmationSentAt = &sentAt
	a.ConfirmationMethod = &method
	m.appts[id] = a
	return nil
}

func (m *memRepo) InsertRescheduled(_ context.Context, originalID uuid.UUID, successor *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	orig, ok := m.appts[originalID]
	if !ok {
		return ErrAppointmentNotFound
	}

	m.insertAppointmentLocked(successor)

	orig.Status = StatusRescheduled
	orig.RescheduledTo = &successor.ID
	orig.RescheduleReason = successor.RescheduleReason
	m.appts[originalID] = orig
	return nil
}

func (m *memRepo) InsertFollowUp(_ context.Context, parentID uuid.UUID, child *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	parent, ok := m.appts[parentID]
	if !ok {
		return ErrAppointmentNotFound
	}

	m.insertAppointmentLocked(child)

	parent.FollowUpDate = &child.ScheduledAt
	parent.FollowUpReason = child.FollowUpReason
	m.appts[parentID] = parent
	return nil
}

func (m *memRepo) PromoteQueueEntry(_ context.Context, entryID uuid.UUID, appt *Appointment) (*QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.crashPromote {
		return nil, errInjectedCrash
	}

	e, ok := m.entries[entryID]
	if !ok {
		return nil, ErrQueueEntryNotFound
	}
	if e.Status != QueueWaiting {
		return nil, ErrEntryNotWaiting
	}

	m.insertAppointmentLocked(appt)

	e.Status = QueueScheduled
	e.AppointmentID = &appt.ID
	m.entries[entryID] = e
	return &e, nil
}

func (m *memRepo) CreateQueueEntry(_ context.Context, e *QueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = m.tick()
	e.UpdatedAt = e.CreatedAt
	m.entries[e.ID] = *e
	return nil
}

func (m *memRepo) GetQueueEntryByID(_ context.Context, id uuid.UUID) (*QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, ErrQueueEntryNotFound
	}
	return &e, nil
}

func (m *memRepo) GetWaitingEntry(_ context.Context, patientID, doctorID uuid.UUID) (*QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.PatientID == patientID && e.DoctorID == doctorID && e.Status == QueueWaiting {
			return &e, nil
		}
	}
	return nil, ErrQueueEntryNotFound
}

func (m *memRepo) UpdateQueueEntry(_ context.Context, e *QueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.ID]; !ok {
		return ErrQueueEntryNotFound
	}
	e.UpdatedAt = m.tick()
	m.entries[e.ID] = *e
	return nil
}

func (m *memRepo) ListQueueEntries(_ context.Context, f QueueFilter) ([]QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := QueueWaiting
	if f.Status != nil {
		status = *f.Status
	}

	var out []QueueEntry
	for _, e := range m.entries {
		if e.Status != status {
			continue
		}
		if f.DoctorID != nil && e.DoctorID != *f.DoctorID {
			continue
		}
		if f.PatientID != nil && e.PatientID != *f.PatientID {
			continue
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority.Rank() != out[j].Priority.Rank() {
			return out[i].Priority.Rank() > out[j].Priority.Rank()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *memRepo) ExpireOverdueEntries(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, e := range m.entries {
		if e.Status == QueueWaiting && e.ExpiresAt.Before(now) {
			e.Status = QueueExpired
			m.entries[id] = e
			n++
		}
	}
	return n, nil
}

// mutexLocker serializes per doctor with plain mutexes, standing in for the
// distributed lock.
type mutexLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newMutexLocker() *mutexLocker {
	return &mutexLocker{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *mutexLocker) WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[doctorID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[doctorID] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

// recordingNotifier captures sends for assertions and can be told to fail.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
	fail error
}

func (r *recordingNotifier) Send(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type testEnv struct {
	repo     *memRepo
	notifier *recordingNotifier
	svc      *Service
	queue    *QueueService

	patient Patient
	doctor  Doctor
}

func testConfig() config.Config {
	return config.Config{
		BookingWindow:   30 * time.Minute,
		RescheduleWin:   60 * time.Minute,
		QueueTTL:        30 * 24 * time.Hour,
		NotifyQueueSize: 64,
	}
}

func newTestEnv() *testEnv {
	repo := newMemRepo()
	notifier := &recordingNotifier{}
	log := zerolog.Nop()

	svc := NewService(ServiceDeps{
		Repo:       repo,
		Locker:     newMutexLocker(),
		Dispatcher: notify.NewDispatcher(notifier, 64, log),
		Notifier:   notifier,
		Events:     events.NopPublisher{},
		Config:     testConfig(),
		Log:        log,
	})

	email := "pat@example.com"
	phone := "555-0100"
	patient := repo.addPatient(Patient{Name: "Pat Doe", Email: &email, Phone: &phone})
	doctor := repo.addDoctor(Doctor{Name: "Dr. Grey", Email: &email})

	return &testEnv{
		repo:     repo,
		notifier: notifier,
		svc:      svc,
		queue:    NewQueueService(repo, svc, log),
		patient:  patient,
		doctor:   doctor,
	}
}

func futureInstant(offset time.Duration) time.Time {
	return time.Now().Add(24*time.Hour + offset).Truncate(time.Second)
}
