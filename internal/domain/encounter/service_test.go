package encounter

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/lifecycle"
)

// -- In-memory stores. Values, not pointers, so fakeTx can snapshot them. --

type mockRepo struct {
	encounters map[uuid.UUID]Encounter
	items      []PrescriptionItem
}

func (m *mockRepo) Create(_ context.Context, e *Encounter) error {
	for _, other := range m.encounters {
		if other.AppointmentID == e.AppointmentID {
			return errors.New("duplicate appointment")
		}
	}
	e.ID = uuid.New()
	e.Lifecycle = lifecycle.Active
	e.EncounterDate = time.Now()
	m.encounters[e.ID] = *e
	return nil
}

func (m *mockRepo) AddItem(_ context.Context, item *PrescriptionItem) error {
	item.ID = uuid.New()
	m.items = append(m.items, *item)
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Encounter, error) {
	e, ok := m.encounters[id]
	if !ok || !e.Lifecycle.IsActive() {
		return nil, pgx.ErrNoRows
	}
	e.Items = nil
	return &e, nil
}

func (m *mockRepo) ListItems(_ context.Context, encounterID uuid.UUID) ([]*PrescriptionItem, error) {
	var out []*PrescriptionItem
	for _, it := range m.items {
		if it.EncounterID == encounterID {
			cp := it
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	e, ok := m.encounters[id]
	if !ok || !e.Lifecycle.IsActive() {
		return pgx.ErrNoRows
	}
	e.Lifecycle = lifecycle.Deleted
	m.encounters[id] = e
	return nil
}

func (m *mockRepo) Search(_ context.Context, params map[string]string, limit, offset int) ([]*Encounter, int, error) {
	var out []*Encounter
	for _, e := range m.encounters {
		if !e.Lifecycle.IsActive() {
			continue
		}
		if v, ok := params["doctor_id"]; ok && e.DoctorID.String() != v {
			continue
		}
		if v, ok := params["patient_id"]; ok && e.PatientID.String() != v {
			continue
		}
		cp := e
		out = append(out, &cp)
	}
	return out, len(out), nil
}

type mockClinic struct {
	doctors      map[uuid.UUID]uuid.UUID
	appointments map[uuid.UUID]AppointmentRef
	drugs        map[uuid.UUID]DrugRef
	stock        map[uuid.UUID]int
}

func (m *mockClinic) DoctorIDForAccount(_ context.Context, accountID uuid.UUID) (*uuid.UUID, error) {
	id, ok := m.doctors[accountID]
	if !ok {
		return nil, nil
	}
	return &id, nil
}

func (m *mockClinic) LockAppointment(_ context.Context, id uuid.UUID) (*AppointmentRef, error) {
	a, ok := m.appointments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &a, nil
}

func (m *mockClinic) CompleteAppointment(_ context.Context, id uuid.UUID) error {
	a, ok := m.appointments[id]
	if !ok || a.Status != scheduling.StatusScheduled {
		return pgx.ErrNoRows
	}
	a.Status = scheduling.StatusCompleted
	m.appointments[id] = a
	return nil
}

func (m *mockClinic) Drug(_ context.Context, id uuid.UUID) (*DrugRef, error) {
	d, ok := m.drugs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &d, nil
}

func (m *mockClinic) Dispense(_ context.Context, drugID uuid.UUID, quantity int) (bool, error) {
	if m.stock[drugID] < quantity {
		return false, nil
	}
	m.stock[drugID] -= quantity
	return true, nil
}

type mockInvoices struct {
	store   map[uuid.UUID]billing.Invoice
	failing bool
}

func (m *mockInvoices) Create(_ context.Context, inv *billing.Invoice) error {
	if m.failing {
		return errors.New("invoice insert failed")
	}
	inv.ID = uuid.New()
	inv.CreatedAt = time.Now()
	m.store[inv.ID] = *inv
	return nil
}

// fakeTx restores every store when fn fails.
type fakeTx struct {
	repo     *mockRepo
	clinic   *mockClinic
	invoices *mockInvoices
	calls    int
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (f *fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	encounters := copyMap(f.repo.encounters)
	items := append([]PrescriptionItem(nil), f.repo.items...)
	appointments := copyMap(f.clinic.appointments)
	stock := copyMap(f.clinic.stock)
	invoices := copyMap(f.invoices.store)
	if err := fn(ctx); err != nil {
		f.repo.encounters = encounters
		f.repo.items = items
		f.clinic.appointments = appointments
		f.clinic.stock = stock
		f.invoices.store = invoices
		return err
	}
	return nil
}

// -- Fixture --

type fixture struct {
	svc      *Service
	repo     *mockRepo
	clinic   *mockClinic
	invoices *mockInvoices
	tx       *fakeTx

	doctorAccount uuid.UUID
	doctor        uuid.UUID
	patient       uuid.UUID
	appointment   uuid.UUID
	paracetamol   uuid.UUID
	amoxicillin   uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		repo:          &mockRepo{encounters: map[uuid.UUID]Encounter{}},
		invoices:      &mockInvoices{store: map[uuid.UUID]billing.Invoice{}},
		doctorAccount: uuid.New(),
		doctor:        uuid.New(),
		patient:       uuid.New(),
		appointment:   uuid.New(),
		paracetamol:   uuid.New(),
		amoxicillin:   uuid.New(),
	}
	f.clinic = &mockClinic{
		doctors: map[uuid.UUID]uuid.UUID{f.doctorAccount: f.doctor},
		appointments: map[uuid.UUID]AppointmentRef{
			f.appointment: {ID: f.appointment, PatientID: f.patient, DoctorID: f.doctor, Status: scheduling.StatusScheduled},
		},
		drugs: map[uuid.UUID]DrugRef{
			f.paracetamol: {ID: f.paracetamol, Name: "Paracetamol 500mg", Price: 5000},
			f.amoxicillin: {ID: f.amoxicillin, Name: "Amoxicillin 250mg", Price: 1234.5},
		},
		stock: map[uuid.UUID]int{f.paracetamol: 10, f.amoxicillin: 1},
	}
	f.tx = &fakeTx{repo: f.repo, clinic: f.clinic, invoices: f.invoices}
	f.svc = NewService(f.repo, f.clinic, f.invoices, f.tx, zerolog.Nop())
	return f
}

func (f *fixture) request(items ...ItemRequest) CompleteRequest {
	return CompleteRequest{
		AppointmentID: f.appointment,
		Notes:         "Sốt nhẹ, ho khan",
		Diagnosis:     "Viêm họng cấp",
		ServiceFee:    150000,
		Items:         items,
	}
}

// assertUntouched checks nothing from a failed completion persisted.
func (f *fixture) assertUntouched(t *testing.T) {
	t.Helper()
	if len(f.repo.encounters) != 0 || len(f.repo.items) != 0 {
		t.Errorf("expected no encounter rows, got %d encounters and %d items", len(f.repo.encounters), len(f.repo.items))
	}
	if len(f.invoices.store) != 0 {
		t.Errorf("expected no invoice, got %d", len(f.invoices.store))
	}
	if got := f.clinic.stock[f.paracetamol]; got != 10 {
		t.Errorf("paracetamol stock changed to %d", got)
	}
	if got := f.clinic.stock[f.amoxicillin]; got != 1 {
		t.Errorf("amoxicillin stock changed to %d", got)
	}
	if got := f.clinic.appointments[f.appointment].Status; got != scheduling.StatusScheduled {
		t.Errorf("appointment status changed to %s", got)
	}
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

// -- Completion --

func TestCompleteEncounter(t *testing.T) {
	f := newFixture()
	out, err := f.svc.CompleteEncounter(context.Background(), f.doctorAccount, f.request(
		ItemRequest{DrugID: f.paracetamol, Quantity: 3, Usage: " Uống sau ăn, ngày 3 lần "},
		ItemRequest{DrugID: f.amoxicillin, Quantity: 1},
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	enc := out.Encounter
	if enc.DoctorID != f.doctor || enc.PatientID != f.patient || enc.AppointmentID != f.appointment {
		t.Errorf("unexpected encounter: %+v", enc)
	}
	if len(enc.Items) != 2 || enc.Items[0].UnitPrice != 5000 || enc.Items[0].Usage != "Uống sau ăn, ngày 3 lần" {
		t.Errorf("unexpected items: %+v", enc.Items)
	}

	inv := out.Invoice
	if inv.ServiceFee != 150000 || inv.DrugFee != 16234.5 || inv.Total != 166234.5 {
		t.Errorf("unexpected invoice amounts: %+v", inv)
	}
	if inv.Status != billing.StatusUnpaid || inv.EncounterID != enc.ID || inv.PatientID != f.patient {
		t.Errorf("unexpected invoice: %+v", inv)
	}

	if got := f.clinic.stock[f.paracetamol]; got != 7 {
		t.Errorf("expected paracetamol stock 7, got %d", got)
	}
	if got := f.clinic.stock[f.amoxicillin]; got != 0 {
		t.Errorf("expected amoxicillin stock 0, got %d", got)
	}
	if got := f.clinic.appointments[f.appointment].Status; got != scheduling.StatusCompleted {
		t.Errorf("expected appointment completed, got %s", got)
	}
	if len(f.repo.encounters) != 1 || len(f.repo.items) != 2 || len(f.invoices.store) != 1 {
		t.Error("expected one encounter, two items and one invoice persisted")
	}
	if f.tx.calls != 1 {
		t.Errorf("expected one transaction, got %d", f.tx.calls)
	}
}

func TestCompleteEncounter_NoPrescription(t *testing.T) {
	f := newFixture()
	out, err := f.svc.CompleteEncounter(context.Background(), f.doctorAccount, f.request())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Invoice.DrugFee != 0 || out.Invoice.Total != 150000 {
		t.Errorf("unexpected invoice: %+v", out.Invoice)
	}
}

func TestCompleteEncounter_InsufficientStockRollsBack(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CompleteEncounter(context.Background(), f.doctorAccount, f.request(
		ItemRequest{DrugID: f.paracetamol, Quantity: 5},
		ItemRequest{DrugID: f.amoxicillin, Quantity: 2},
	))
	expectStatus(t, err, http.StatusConflict)
	if !strings.Contains(err.Error(), "Amoxicillin 250mg") {
		t.Errorf("expected error to name the drug, got %q", err.Error())
	}
	f.assertUntouched(t)
}

func TestCompleteEncounter_SameDrugTwiceCountsBoth(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CompleteEncounter(context.Background(), f.doctorAccount, f.request(
		ItemRequest{DrugID: f.paracetamol, Quantity: 6},
		ItemRequest{DrugID: f.paracetamol, Quantity: 6},
	))
	expectStatus(t, err, http.StatusConflict)
	f.assertUntouched(t)
}

func TestCompleteEncounter_InvoiceFailureRollsBack(t *testing.T) {
	f := newFixture()
	f.invoices.failing = true
	_, err := f.svc.CompleteEncounter(context.Background(), f.doctorAccount, f.request(
		ItemRequest{DrugID: f.paracetamol, Quantity: 2},
	))
	expectStatus(t, err, http.StatusInternalServerError)
	f.assertUntouched(t)
}

func TestCompleteEncounter_UnknownDrug(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CompleteEncounter(context.Background(), f.doctorAccount, f.request(
		ItemRequest{DrugID: f.paracetamol, Quantity: 1},
		ItemRequest{DrugID: uuid.New(), Quantity: 1},
	))
	expectStatus(t, err, http.StatusNotFound)
	f.assertUntouched(t)
}

func TestCompleteEncounter_AppointmentState(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fixture) uuid.UUID
		status int
	}{
		{"missing", func(f *fixture) uuid.UUID { return uuid.New() }, http.StatusNotFound},
		{"completed", func(f *fixture) uuid.UUID {
			a := f.clinic.appointments[f.appointment]
			a.Status = scheduling.StatusCompleted
			f.clinic.appointments[f.appointment] = a
			return f.appointment
		}, http.StatusConflict},
		{"cancelled", func(f *fixture) uuid.UUID {
			a := f.clinic.appointments[f.appointment]
			a.Status = scheduling.StatusCancelled
			f.clinic.appointments[f.appointment] = a
			return f.appointment
		}, http.StatusConflict},
		{"other doctor", func(f *fixture) uuid.UUID {
			a := f.clinic.appointments[f.appointment]
			a.DoctorID = uuid.New()
			f.clinic.appointments[f.appointment] = a
			return f.appointment
		}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			req := f.request(ItemRequest{DrugID: f.paracetamol, Quantity: 1})
			req.AppointmentID = tt.mutate(f)
			_, err := f.svc.CompleteEncounter(context.Background(), f.doctorAccount, req)
			expectStatus(t, err, tt.status)
			if len(f.repo.encounters) != 0 || f.clinic.stock[f.paracetamol] != 10 {
				t.Error("failed completion must not persist anything")
			}
		})
	}
}

func TestCompleteEncounter_Twice(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.CompleteEncounter(context.Background(), f.doctorAccount, f.request()); err != nil {
		t.Fatalf("first completion: %v", err)
	}
	_, err := f.svc.CompleteEncounter(context.Background(), f.doctorAccount, f.request())
	expectStatus(t, err, http.StatusConflict)
	if len(f.invoices.store) != 1 {
		t.Errorf("expected a single invoice, got %d", len(f.invoices.store))
	}
}

func TestCompleteEncounter_NoDoctorProfile(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CompleteEncounter(context.Background(), uuid.New(), f.request())
	expectStatus(t, err, http.StatusConflict)
	if f.tx.calls != 0 {
		t.Error("no transaction should start without a doctor profile")
	}
}

func TestCompleteEncounter_Validation(t *testing.T) {
	f := newFixture()
	tests := []struct {
		name string
		req  CompleteRequest
	}{
		{"negative fee", func() CompleteRequest { r := f.request(); r.ServiceFee = -1; return r }()},
		{"missing appointment", func() CompleteRequest { r := f.request(); r.AppointmentID = uuid.Nil; return r }()},
		{"zero quantity", f.request(ItemRequest{DrugID: f.paracetamol, Quantity: 0})},
		{"negative quantity", f.request(ItemRequest{DrugID: f.paracetamol, Quantity: -2})},
		{"quantity over cap", f.request(ItemRequest{DrugID: f.paracetamol, Quantity: MaxItemQuantity + 1})},
		{"missing drug", f.request(ItemRequest{Quantity: 1})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CompleteEncounter(context.Background(), f.doctorAccount, tt.req)
			expectStatus(t, err, http.StatusBadRequest)
		})
	}
	f.assertUntouched(t)
	if f.tx.calls != 0 {
		t.Errorf("validation failures must not open a transaction, got %d", f.tx.calls)
	}
}

// -- Reads --

func TestGetEncounter(t *testing.T) {
	f := newFixture()
	out, err := f.svc.CompleteEncounter(context.Background(), f.doctorAccount, f.request(
		ItemRequest{DrugID: f.paracetamol, Quantity: 2},
	))
	if err != nil {
		t.Fatal(err)
	}
	id := out.Encounter.ID

	own := &auth.Session{AccountID: f.doctorAccount, Role: auth.RoleDoctor}
	e, err := f.svc.GetEncounter(context.Background(), own, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(e.Items) != 1 || e.Items[0].Quantity != 2 {
		t.Errorf("expected prescription items, got %+v", e.Items)
	}

	desk := &auth.Session{AccountID: uuid.New(), Role: auth.RoleReceptionist}
	if _, err := f.svc.GetEncounter(context.Background(), desk, id); err != nil {
		t.Errorf("receptionist read: %v", err)
	}

	otherAccount := uuid.New()
	f.clinic.doctors[otherAccount] = uuid.New()
	_, err = f.svc.GetEncounter(context.Background(), &auth.Session{AccountID: otherAccount, Role: auth.RoleDoctor}, id)
	expectStatus(t, err, http.StatusForbidden)

	_, err = f.svc.GetEncounter(context.Background(), desk, uuid.New())
	expectStatus(t, err, http.StatusNotFound)
}

func TestSearchEncounters(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.CompleteEncounter(context.Background(), f.doctorAccount, f.request()); err != nil {
		t.Fatal(err)
	}

	items, total, err := f.svc.SearchEncounters(context.Background(),
		map[string]string{"doctor_id": strings.ToUpper(f.doctor.String())}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || items[0].DoctorID != f.doctor {
		t.Errorf("expected the doctor's encounter, got %d", total)
	}

	_, _, err = f.svc.SearchEncounters(context.Background(), map[string]string{"patient_id": "x"}, 20, 0)
	expectStatus(t, err, http.StatusBadRequest)
}

func TestDeleteEncounter(t *testing.T) {
	f := newFixture()
	out, err := f.svc.CompleteEncounter(context.Background(), f.doctorAccount, f.request())
	if err != nil {
		t.Fatal(err)
	}
	if err := f.svc.DeleteEncounter(context.Background(), out.Encounter.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectStatus(t, f.svc.DeleteEncounter(context.Background(), out.Encounter.ID), http.StatusNotFound)

	_, total, _ := f.svc.SearchEncounters(context.Background(), map[string]string{}, 20, 0)
	if total != 0 {
		t.Errorf("deleted encounter still listed")
	}
}
