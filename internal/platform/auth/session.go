package auth

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Clinic roles. Stored on accounts and carried in tokens exactly as written here.
const (
	RoleAdmin        = "Admin"
	RoleReceptionist = "Receptionist"
	RoleDoctor       = "Doctor"
	RolePatient      = "Patient"
)

var knownRoles = []string{RoleAdmin, RoleReceptionist, RoleDoctor, RolePatient}

// NormalizeRole maps any casing of a known role to its canonical spelling.
func NormalizeRole(role string) (string, bool) {
	role = strings.TrimSpace(role)
	for _, r := range knownRoles {
		if strings.EqualFold(r, role) {
			return r, true
		}
	}
	return "", false
}

// Session is the authenticated caller of a request. It is built once by
// JWTMiddleware and passed down through the request context.
type Session struct {
	AccountID uuid.UUID
	Username  string
	Role      string
	// PatientID is set for Patient accounts that have a linked profile.
	PatientID *uuid.UUID
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasRole reports whether the session holds one of roles.
func (s *Session) HasRole(roles ...string) bool {
	if s == nil {
		return false
	}
	for _, r := range roles {
		if strings.EqualFold(s.Role, r) {
			return true
		}
	}
	return false
}

// WithSession stores s on ctx together with the role values read by
// RequireRole.
func WithSession(ctx context.Context, s *Session) context.Context {
	ctx = context.WithValue(ctx, SessionKey, s)
	ctx = context.WithValue(ctx, UserRolesKey, []string{s.Role})
	return ctx
}

// SessionFromContext returns the caller's session, or nil for anonymous requests.
func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(SessionKey).(*Session)
	return s
}
