package encounter

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/billing"
)

type Repository interface {
	Create(ctx context.Context, e *Encounter) error
	AddItem(ctx context.Context, item *PrescriptionItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*Encounter, error)
	ListItems(ctx context.Context, encounterID uuid.UUID) ([]*PrescriptionItem, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Encounter, int, error)
}

// Clinic is what completion reads and writes outside the encounter tables.
type Clinic interface {
	DoctorIDForAccount(ctx context.Context, accountID uuid.UUID) (*uuid.UUID, error)
	// LockAppointment returns the appointment row locked for the rest of the transaction.
	LockAppointment(ctx context.Context, id uuid.UUID) (*AppointmentRef, error)
	CompleteAppointment(ctx context.Context, id uuid.UUID) error
	Drug(ctx context.Context, id uuid.UUID) (*DrugRef, error)
	// Dispense decrements stock and reports false when not enough is available.
	Dispense(ctx context.Context, drugID uuid.UUID, quantity int) (bool, error)
}

type InvoiceWriter interface {
	Create(ctx context.Context, inv *billing.Invoice) error
}
