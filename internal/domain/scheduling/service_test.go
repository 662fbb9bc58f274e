package scheduling

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/lifecycle"
)

// -- Mock Repositories --

type mockAppointmentRepo struct {
	store  map[uuid.UUID]*Appointment
	locked []uuid.UUID
	marked []uuid.UUID
	due    []*ReminderCandidate
	dueErr error
	// afterGet runs once after GetByID has copied the row, standing in for a
	// writer that commits between a read and the following update.
	afterGet func(stored *Appointment)
}

func newMockAppointmentRepo() *mockAppointmentRepo {
	return &mockAppointmentRepo{store: make(map[uuid.UUID]*Appointment)}
}

func (m *mockAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	a.ID = uuid.New()
	a.Lifecycle = lifecycle.Active
	cp := *a
	m.store[a.ID] = &cp
	return nil
}

func (m *mockAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := m.store[id]
	if !ok || !a.Lifecycle.IsActive() {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	if hook := m.afterGet; hook != nil {
		m.afterGet = nil
		hook(a)
	}
	return &cp, nil
}

func (m *mockAppointmentRepo) Update(_ context.Context, a *Appointment) error {
	stored, ok := m.store[a.ID]
	if !ok || !stored.Lifecycle.IsActive() || stored.Status != StatusScheduled {
		return pgx.ErrNoRows
	}
	cp := *a
	cp.Status = stored.Status
	m.store[a.ID] = &cp
	return nil
}

func (m *mockAppointmentRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to string) error {
	a, ok := m.store[id]
	if !ok || !a.Lifecycle.IsActive() || a.Status != from {
		return pgx.ErrNoRows
	}
	a.Status = to
	return nil
}

func (m *mockAppointmentRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	a, ok := m.store[id]
	if !ok || !a.Lifecycle.IsActive() {
		return pgx.ErrNoRows
	}
	a.Lifecycle = lifecycle.Deleted
	return nil
}

func (m *mockAppointmentRepo) Search(_ context.Context, params map[string]string, limit, offset int) ([]*Appointment, int, error) {
	var result []*Appointment
	for _, a := range m.store {
		if !a.Lifecycle.IsActive() {
			continue
		}
		if v, ok := params["doctor_id"]; ok && a.DoctorID.String() != v {
			continue
		}
		if v, ok := params["patient_id"]; ok && a.PatientID.String() != v {
			continue
		}
		if v, ok := params["status"]; ok && a.Status != v {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}
	return result, len(result), nil
}

func (m *mockAppointmentRepo) LockDoctor(_ context.Context, doctorID uuid.UUID) error {
	m.locked = append(m.locked, doctorID)
	return nil
}

func (m *mockAppointmentRepo) HasConflict(_ context.Context, doctorID uuid.UUID, at time.Time, window time.Duration, exclude *uuid.UUID) (bool, error) {
	for _, a := range m.store {
		if a.DoctorID != doctorID || a.Status != StatusScheduled || !a.Lifecycle.IsActive() {
			continue
		}
		if exclude != nil && a.ID == *exclude {
			continue
		}
		diff := a.ScheduledAt.Sub(at)
		if diff < 0 {
			diff = -diff
		}
		if diff <= window {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockAppointmentRepo) DueForReminder(_ context.Context, from, to time.Time) ([]*ReminderCandidate, error) {
	return m.due, m.dueErr
}

func (m *mockAppointmentRepo) MarkReminderSent(_ context.Context, id uuid.UUID) error {
	m.marked = append(m.marked, id)
	return nil
}

type mockDirectory struct {
	patients map[uuid.UUID]bool
	doctors  map[uuid.UUID]bool
	accounts map[uuid.UUID]uuid.UUID // account id -> doctor id
}

func (m *mockDirectory) PatientExists(_ context.Context, id uuid.UUID) (bool, error) {
	return m.patients[id], nil
}

func (m *mockDirectory) DoctorExists(_ context.Context, id uuid.UUID) (bool, error) {
	return m.doctors[id], nil
}

func (m *mockDirectory) DoctorIDForAccount(_ context.Context, accountID uuid.UUID) (*uuid.UUID, error) {
	if id, ok := m.accounts[accountID]; ok {
		return &id, nil
	}
	return nil, nil
}

type passthroughTx struct{ calls int }

func (p *passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	p.calls++
	return fn(ctx)
}

// Fixed clock: 2 March 2026, 08:00 UTC.
var testNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
}

type fixture struct {
	svc     *Service
	repo    *mockAppointmentRepo
	dir     *mockDirectory
	tx      *passthroughTx
	patient uuid.UUID
	doctor  uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		repo:    newMockAppointmentRepo(),
		tx:      &passthroughTx{},
		patient: uuid.New(),
		doctor:  uuid.New(),
	}
	f.dir = &mockDirectory{
		patients: map[uuid.UUID]bool{f.patient: true},
		doctors:  map[uuid.UUID]bool{f.doctor: true},
		accounts: map[uuid.UUID]uuid.UUID{},
	}
	f.svc = NewService(f.repo, f.dir, f.tx, DefaultRules(), zerolog.Nop())
	f.svc.now = func() time.Time { return testNow }
	return f
}

func (f *fixture) book(t *testing.T, when time.Time) *Appointment {
	t.Helper()
	a, err := f.svc.CreateAppointment(context.Background(), AppointmentRequest{PatientID: f.patient, DoctorID: f.doctor, ScheduledAt: when})
	if err != nil {
		t.Fatalf("book %s: %v", when.Format("15:04"), err)
	}
	return a
}

func expectStatus(t *testing.T, err error, status int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with status %d, got nil", status)
	}
	if got := apperror.StatusOf(err); got != status {
		t.Fatalf("expected status %d, got %d (%v)", status, got, err)
	}
}

// -- Booking --

func TestCreateAppointment(t *testing.T) {
	f := newFixture()
	a := f.book(t, at(10, 0))

	if a.Status != StatusScheduled || a.StatusLabel != "Đã đặt" {
		t.Errorf("expected scheduled, got %s/%s", a.Status, a.StatusLabel)
	}
	if len(f.repo.locked) != 1 || f.repo.locked[0] != f.doctor {
		t.Error("expected the doctor to be locked for the booking")
	}
	if f.tx.calls != 1 {
		t.Errorf("expected booking inside one transaction, got %d", f.tx.calls)
	}
}

func TestCreateAppointment_ConflictWindow(t *testing.T) {
	tests := []struct {
		when     time.Time
		conflict bool
	}{
		{at(10, 20), true},
		{at(9, 40), true},
		{at(10, 29), true},
		{at(9, 31), true},
		{at(10, 35), false},
		{at(9, 25), false},
	}
	for _, tt := range tests {
		f := newFixture()
		f.book(t, at(10, 0))
		_, err := f.svc.CreateAppointment(context.Background(), AppointmentRequest{PatientID: f.patient, DoctorID: f.doctor, ScheduledAt: tt.when})
		if tt.conflict {
			expectStatus(t, err, http.StatusConflict)
		} else if err != nil {
			t.Errorf("%s: expected success, got %v", tt.when.Format("15:04"), err)
		}
	}
}

func TestCreateAppointment_OtherDoctorNotInConflict(t *testing.T) {
	f := newFixture()
	f.book(t, at(10, 0))

	other := uuid.New()
	f.dir.doctors[other] = true
	if _, err := f.svc.CreateAppointment(context.Background(), AppointmentRequest{PatientID: f.patient, DoctorID: other, ScheduledAt: at(10, 0)}); err != nil {
		t.Fatalf("different doctor should not conflict: %v", err)
	}
}

func TestCreateAppointment_CancelledDoesNotBlock(t *testing.T) {
	f := newFixture()
	a := f.book(t, at(10, 0))
	if _, err := f.svc.CancelAppointment(context.Background(), &auth.Session{Role: auth.RoleReceptionist}, a.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	f.book(t, at(10, 10))
}

func TestCreateAppointment_LeadTime(t *testing.T) {
	f := newFixture()
	for _, when := range []time.Time{testNow.Add(-time.Hour), testNow, testNow.Add(14 * time.Minute)} {
		_, err := f.svc.CreateAppointment(context.Background(), AppointmentRequest{PatientID: f.patient, DoctorID: f.doctor, ScheduledAt: when})
		expectStatus(t, err, http.StatusBadRequest)
	}
	f.book(t, testNow.Add(15*time.Minute))
}

func TestCreateAppointment_UnknownParticipants(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CreateAppointment(context.Background(), AppointmentRequest{PatientID: uuid.New(), DoctorID: f.doctor, ScheduledAt: at(10, 0)})
	expectStatus(t, err, http.StatusBadRequest)
	_, err = f.svc.CreateAppointment(context.Background(), AppointmentRequest{PatientID: f.patient, DoctorID: uuid.New(), ScheduledAt: at(10, 0)})
	expectStatus(t, err, http.StatusBadRequest)
	_, err = f.svc.CreateAppointment(context.Background(), AppointmentRequest{ScheduledAt: at(10, 0)})
	expectStatus(t, err, http.StatusBadRequest)
}

// -- Update --

func TestUpdateAppointment_SameSlotSkipsConflictCheck(t *testing.T) {
	f := newFixture()
	a := f.book(t, at(10, 0))
	f.repo.locked = nil

	updated, err := f.svc.UpdateAppointment(context.Background(), a.ID, AppointmentRequest{
		PatientID: f.patient, DoctorID: f.doctor, ScheduledAt: at(10, 0), Notes: "tái khám",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Notes != "tái khám" {
		t.Errorf("expected notes updated, got %q", updated.Notes)
	}
	if len(f.repo.locked) != 0 {
		t.Error("conflict check should not run when doctor and time are unchanged")
	}
}

func TestUpdateAppointment_MovingChecksOthersOnly(t *testing.T) {
	f := newFixture()
	a := f.book(t, at(10, 0))
	f.book(t, at(11, 0))

	// Moving within its own window does not conflict with itself.
	if _, err := f.svc.UpdateAppointment(context.Background(), a.ID, AppointmentRequest{PatientID: f.patient, DoctorID: f.doctor, ScheduledAt: at(10, 10)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := f.svc.UpdateAppointment(context.Background(), a.ID, AppointmentRequest{PatientID: f.patient, DoctorID: f.doctor, ScheduledAt: at(10, 45)})
	expectStatus(t, err, http.StatusConflict)
}

func TestUpdateAppointment_FinalStatesAreFrozen(t *testing.T) {
	for _, status := range []string{StatusCompleted, StatusCancelled} {
		f := newFixture()
		a := f.book(t, at(10, 0))
		f.repo.store[a.ID].Status = status

		_, err := f.svc.UpdateAppointment(context.Background(), a.ID, AppointmentRequest{PatientID: f.patient, DoctorID: f.doctor, ScheduledAt: at(12, 0)})
		expectStatus(t, err, http.StatusConflict)
	}
}

func TestUpdateAppointment_CompletedAfterRead(t *testing.T) {
	f := newFixture()
	a := f.book(t, at(10, 0))
	f.repo.afterGet = func(stored *Appointment) { stored.Status = StatusCompleted }

	_, err := f.svc.UpdateAppointment(context.Background(), a.ID, AppointmentRequest{PatientID: f.patient, DoctorID: f.doctor, ScheduledAt: at(12, 0)})
	expectStatus(t, err, http.StatusConflict)

	stored := f.repo.store[a.ID]
	if stored.Status != StatusCompleted || !stored.ScheduledAt.Equal(at(10, 0)) {
		t.Errorf("completed appointment was modified: status=%s at=%s", stored.Status, stored.ScheduledAt)
	}
}

func TestUpdateAppointment_NotFound(t *testing.T) {
	f := newFixture()
	_, err := f.svc.UpdateAppointment(context.Background(), uuid.New(), AppointmentRequest{PatientID: f.patient, DoctorID: f.doctor, ScheduledAt: at(12, 0)})
	expectStatus(t, err, http.StatusNotFound)
}

// -- Cancel --

func TestCancelAppointment(t *testing.T) {
	f := newFixture()
	a := f.book(t, at(10, 0))
	desk := &auth.Session{AccountID: uuid.New(), Role: auth.RoleReceptionist}

	got, err := f.svc.CancelAppointment(context.Background(), desk, a.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusCancelled || got.StatusLabel != "Đã hủy" {
		t.Errorf("expected cancelled, got %s", got.Status)
	}

	// Second cancel is a no-op.
	got, err = f.svc.CancelAppointment(context.Background(), desk, a.ID)
	if err != nil || got.Status != StatusCancelled {
		t.Fatalf("expected idempotent cancel, got %v %v", got, err)
	}
}

func TestCancelAppointment_CompletedFails(t *testing.T) {
	f := newFixture()
	a := f.book(t, at(10, 0))
	f.repo.store[a.ID].Status = StatusCompleted

	_, err := f.svc.CancelAppointment(context.Background(), &auth.Session{Role: auth.RoleAdmin}, a.ID)
	expectStatus(t, err, http.StatusConflict)
	if f.repo.store[a.ID].Status != StatusCompleted {
		t.Error("completed appointment must stay completed")
	}
}

func TestCancelAppointment_CompletedAfterRead(t *testing.T) {
	f := newFixture()
	a := f.book(t, at(10, 0))
	f.repo.afterGet = func(stored *Appointment) { stored.Status = StatusCompleted }

	_, err := f.svc.CancelAppointment(context.Background(), &auth.Session{Role: auth.RoleReceptionist}, a.ID)
	expectStatus(t, err, http.StatusConflict)
	if f.repo.store[a.ID].Status != StatusCompleted {
		t.Errorf("expected completed to stick, got %s", f.repo.store[a.ID].Status)
	}
}

func TestCancelAppointment_CancelledAfterRead(t *testing.T) {
	f := newFixture()
	a := f.book(t, at(10, 0))
	f.repo.afterGet = func(stored *Appointment) { stored.Status = StatusCancelled }

	got, err := f.svc.CancelAppointment(context.Background(), &auth.Session{Role: auth.RoleReceptionist}, a.ID)
	if err != nil {
		t.Fatalf("expected concurrent cancel to be a no-op, got %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", got.Status)
	}
}

func TestCancelAppointment_PatientOwnOnly(t *testing.T) {
	f := newFixture()
	a := f.book(t, at(10, 0))

	stranger := uuid.New()
	_, err := f.svc.CancelAppointment(context.Background(), &auth.Session{Role: auth.RolePatient, PatientID: &stranger}, a.ID)
	expectStatus(t, err, http.StatusForbidden)

	if _, err := f.svc.CancelAppointment(context.Background(), &auth.Session{Role: auth.RolePatient, PatientID: &f.patient}, a.ID); err != nil {
		t.Fatalf("owner should be able to cancel: %v", err)
	}
}

func TestDeleteAppointment(t *testing.T) {
	f := newFixture()
	a := f.book(t, at(10, 0))
	if err := f.svc.DeleteAppointment(context.Background(), a.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectStatus(t, f.svc.DeleteAppointment(context.Background(), a.ID), http.StatusNotFound)
}

// -- Visibility --

func TestListAppointments_DoctorSeesOwn(t *testing.T) {
	f := newFixture()
	f.book(t, at(10, 0))
	other := uuid.New()
	f.dir.doctors[other] = true
	f.svc.CreateAppointment(context.Background(), AppointmentRequest{PatientID: f.patient, DoctorID: other, ScheduledAt: at(10, 0)})

	account := uuid.New()
	f.dir.accounts[account] = f.doctor
	caller := &auth.Session{AccountID: account, Role: auth.RoleDoctor}

	items, total, err := f.svc.ListAppointments(context.Background(), caller, map[string]string{}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || items[0].DoctorID != f.doctor {
		t.Errorf("expected only own appointment, got %d", total)
	}

	_, _, err = f.svc.ListAppointments(context.Background(), caller, map[string]string{"doctor_id": other.String()}, 20, 0)
	expectStatus(t, err, http.StatusForbidden)
}

func TestListAppointments_PatientWithoutProfileGetsEmptyPage(t *testing.T) {
	f := newFixture()
	f.book(t, at(10, 0))

	items, total, err := f.svc.ListAppointments(context.Background(), &auth.Session{Role: auth.RolePatient}, map[string]string{}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 0 || len(items) != 0 {
		t.Errorf("expected empty page, got %d", total)
	}
}

func TestListAppointments_FilterValidation(t *testing.T) {
	f := newFixture()
	desk := &auth.Session{Role: auth.RoleReceptionist}

	_, _, err := f.svc.ListAppointments(context.Background(), desk, map[string]string{"date": "02/03/2026"}, 20, 0)
	expectStatus(t, err, http.StatusBadRequest)
	_, _, err = f.svc.ListAppointments(context.Background(), desk, map[string]string{"status": "lost"}, 20, 0)
	expectStatus(t, err, http.StatusBadRequest)
	_, _, err = f.svc.ListAppointments(context.Background(), desk, map[string]string{"doctor_id": "x"}, 20, 0)
	expectStatus(t, err, http.StatusBadRequest)

	params := map[string]string{"status": "Đã đặt"}
	if _, _, err := f.svc.ListAppointments(context.Background(), desk, params, 20, 0); err != nil {
		t.Fatalf("label should be accepted: %v", err)
	}
	if params["status"] != StatusScheduled {
		t.Errorf("expected label mapped to code, got %q", params["status"])
	}
}

func TestGetAppointment_Ownership(t *testing.T) {
	f := newFixture()
	a := f.book(t, at(10, 0))

	stranger := uuid.New()
	_, err := f.svc.GetAppointment(context.Background(), &auth.Session{Role: auth.RolePatient, PatientID: &stranger}, a.ID)
	expectStatus(t, err, http.StatusForbidden)

	_, err = f.svc.GetAppointment(context.Background(), &auth.Session{AccountID: uuid.New(), Role: auth.RoleDoctor}, a.ID)
	expectStatus(t, err, http.StatusForbidden)

	if _, err := f.svc.GetAppointment(context.Background(), &auth.Session{Role: auth.RoleReceptionist}, a.ID); err != nil {
		t.Fatalf("receptionist should see any appointment: %v", err)
	}
}

func TestParseStatus(t *testing.T) {
	tests := map[string]string{
		"scheduled": StatusScheduled,
		"Completed": StatusCompleted,
		"Đã hủy":    StatusCancelled,
	}
	for in, want := range tests {
		got, ok := ParseStatus(in)
		if !ok || got != want {
			t.Errorf("ParseStatus(%q) = %q, %v", in, got, ok)
		}
	}
	if _, ok := ParseStatus("pending"); ok {
		t.Error("expected unknown status to fail")
	}
}
