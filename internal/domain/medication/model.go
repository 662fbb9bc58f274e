package medication

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/lifecycle"
)

type Drug struct {
	ID          uuid.UUID       `json:"drug_id"`
	Name        string          `json:"name"`
	Unit        string          `json:"unit"`
	Price       float64         `json:"price"`
	Description string          `json:"description,omitempty"`
	Lifecycle   lifecycle.State `json:"lifecycle"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type DrugRequest struct {
	Name        string   `json:"name"`
	Unit        string   `json:"unit"`
	Price       *float64 `json:"price"`
	Description string   `json:"description"`
}

// StockLevel is one row of the stock listing. Quantity is 0 for a drug that
// has no stock row yet.
type StockLevel struct {
	DrugID            uuid.UUID  `json:"drug_id"`
	Name              string     `json:"name"`
	Unit              string     `json:"unit"`
	Price             float64    `json:"price"`
	QuantityAvailable int        `json:"quantity_available"`
	LastUpdated       *time.Time `json:"last_updated,omitempty"`
}

// Stock movement types.
const (
	AdjustImport = "import"
	AdjustExport = "export"
)

type AdjustRequest struct {
	DrugID   uuid.UUID `json:"drug_id"`
	Quantity int       `json:"quantity"`
	Type     string    `json:"type"`
}

// AdjustResult reports what an adjustment actually did. Exports never take
// stock below zero, so Applied can be less than Requested; Clamped is then true.
type AdjustResult struct {
	DrugID            uuid.UUID `json:"drug_id"`
	Type              string    `json:"type"`
	Requested         int       `json:"requested"`
	Applied           int       `json:"applied"`
	QuantityAvailable int       `json:"quantity_available"`
	Clamped           bool      `json:"clamped"`
}
