package account

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/lifecycle"
)

type AccountRepository interface {
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	// GetByUsername matches case-insensitively.
	GetByUsername(ctx context.Context, username string) (*Account, error)
	Update(ctx context.Context, a *Account) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
	SetLifecycle(ctx context.Context, id uuid.UUID, state lifecycle.State) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Account, int, error)
}

// ProfileLookup resolves the patient profile linked to an account.
type ProfileLookup interface {
	// PatientIDForAccount returns nil when the account has no active profile.
	PatientIDForAccount(ctx context.Context, accountID uuid.UUID) (*uuid.UUID, error)
}
