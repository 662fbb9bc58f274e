package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, inv *Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	GetDetail(ctx context.Context, id uuid.UUID) (*InvoiceDetail, error)
	// MarkPaid only touches unpaid invoices and returns pgx.ErrNoRows otherwise.
	MarkPaid(ctx context.Context, id uuid.UUID, method string, at time.Time) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Invoice, int, error)
}
