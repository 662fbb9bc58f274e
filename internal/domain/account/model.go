package account

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/lifecycle"
)

// Account is a login identity. Accounts are deactivated, never removed.
type Account struct {
	ID           uuid.UUID       `json:"account_id"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"`
	Role         string          `json:"role"`
	Lifecycle    lifecycle.State `json:"lifecycle"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// IsActive reports whether the account may log in.
func (a *Account) IsActive() bool { return a.Lifecycle.IsActive() }

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type UpdateRequest struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type PasswordRequest struct {
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// UserInfo is the account summary returned with a token.
type UserInfo struct {
	AccountID uuid.UUID  `json:"account_id"`
	Username  string     `json:"username"`
	Role      string     `json:"role"`
	PatientID *uuid.UUID `json:"patient_id,omitempty"`
}

// LoginResponse carries the issued token. ProfileLinked is false for a
// Patient account that has no patient profile yet, so the client can prompt
// for one.
type LoginResponse struct {
	Token         string    `json:"token"`
	ExpiresAt     time.Time `json:"expires_at"`
	User          UserInfo  `json:"user"`
	ProfileLinked bool      `json:"profile_linked"`
}
