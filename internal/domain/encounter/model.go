package encounter

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/platform/lifecycle"
)

// MaxItemQuantity caps a single prescription line.
const MaxItemQuantity = 1000

type Encounter struct {
	ID            uuid.UUID           `json:"encounter_id"`
	AppointmentID uuid.UUID           `json:"appointment_id"`
	DoctorID      uuid.UUID           `json:"doctor_id"`
	DoctorName    string              `json:"doctor_name,omitempty"`
	PatientID     uuid.UUID           `json:"patient_id"`
	PatientName   string              `json:"patient_name,omitempty"`
	Notes         string              `json:"notes"`
	Diagnosis     string              `json:"diagnosis"`
	ServiceFee    float64             `json:"service_fee"`
	EncounterDate time.Time           `json:"encounter_date"`
	Lifecycle     lifecycle.State     `json:"lifecycle"`
	Items         []*PrescriptionItem `json:"items,omitempty"`
}

type PrescriptionItem struct {
	ID          uuid.UUID `json:"item_id"`
	EncounterID uuid.UUID `json:"encounter_id"`
	DrugID      uuid.UUID `json:"drug_id"`
	DrugName    string    `json:"drug_name,omitempty"`
	Quantity    int       `json:"quantity"`
	UnitPrice   float64   `json:"unit_price"`
	Usage       string    `json:"usage,omitempty"`
}

type ItemRequest struct {
	DrugID   uuid.UUID `json:"drug_id"`
	Quantity int       `json:"quantity"`
	Usage    string    `json:"usage"`
}

type CompleteRequest struct {
	AppointmentID uuid.UUID     `json:"appointment_id"`
	Notes         string        `json:"notes"`
	Diagnosis     string        `json:"diagnosis"`
	ServiceFee    float64       `json:"service_fee"`
	Items         []ItemRequest `json:"items"`
}

// Completion is the outcome of finishing a visit.
type Completion struct {
	Encounter *Encounter       `json:"encounter"`
	Invoice   *billing.Invoice `json:"invoice"`
}

// AppointmentRef is the slice of an appointment row completion needs.
type AppointmentRef struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Status    string
}

type DrugRef struct {
	ID    uuid.UUID
	Name  string
	Price float64
}
