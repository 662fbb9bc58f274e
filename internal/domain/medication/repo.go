package medication

import (
	"context"

	"github.com/google/uuid"
)

type DrugRepository interface {
	Create(ctx context.Context, d *Drug) error
	GetByID(ctx context.Context, id uuid.UUID) (*Drug, error)
	// GetByName matches active drugs case-insensitively.
	GetByName(ctx context.Context, name string) (*Drug, error)
	Update(ctx context.Context, d *Drug) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Drug, int, error)
}

type StockRepository interface {
	// Init creates the stock row at quantity 0 if it does not exist.
	Init(ctx context.Context, drugID uuid.UUID) error
	List(ctx context.Context) ([]*StockLevel, error)
	// Adjust adds delta to the stock, floored at zero, creating the row if
	// needed. It returns the quantity before and after the change.
	Adjust(ctx context.Context, drugID uuid.UUID, delta int) (before, after int, err error)
}
