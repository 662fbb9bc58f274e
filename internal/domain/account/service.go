package account

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/lifecycle"
	"github.com/clinic/clinic/internal/platform/metrics"
)

const maxUsernameLength = 100

// Revoker cuts off the outstanding tokens of an account.
type Revoker interface {
	RevokeAccount(accountID uuid.UUID)
}

type Service struct {
	accounts AccountRepository
	profiles ProfileLookup
	tokens   *auth.TokenIssuer
	revoker  Revoker
	logger   zerolog.Logger
}

func NewService(accounts AccountRepository, profiles ProfileLookup, tokens *auth.TokenIssuer, logger zerolog.Logger) *Service {
	return &Service{accounts: accounts, profiles: profiles, tokens: tokens, logger: logger}
}

// SetRevoker makes deactivation revoke the account's tokens immediately
// instead of letting them run out.
func (s *Service) SetRevoker(r Revoker) {
	s.revoker = r
}

func validateCredentials(username, password string) error {
	details := map[string]string{}
	if strings.TrimSpace(username) == "" {
		details["username"] = "is required"
	} else if len(username) > maxUsernameLength {
		details["username"] = "must be at most 100 characters"
	}
	if len(password) < auth.MinPasswordLength {
		details["password"] = "must be at least 6 characters"
	}
	if len(details) > 0 {
		return apperror.Validation("invalid account data", details)
	}
	return nil
}

// CreateAccount validates and stores a new active account with the given role.
// It joins the caller's transaction when there is one, which is how doctor and
// patient creation register their login in the same unit of work.
func (s *Service) CreateAccount(ctx context.Context, username, password, role string) (*Account, error) {
	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return nil, err
	}
	canonical, ok := auth.NormalizeRole(role)
	if !ok {
		return nil, apperror.Validationf("unknown role %q", role)
	}

	existing, err := s.accounts.GetByUsername(ctx, username)
	if err == nil && existing != nil {
		return nil, apperror.Conflictf("username %q is already taken", username)
	}
	if err != nil && !apperror.IsNotFound(err) {
		return nil, apperror.FromDB(err, "account", username)
	}

	hash, err := auth.HashPassword(password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return nil, apperror.Validation(err.Error(), map[string]string{"password": err.Error()})
	}
	if err != nil {
		return nil, apperror.Internal(err)
	}

	a := &Account{Username: username, PasswordHash: hash, Role: canonical, Lifecycle: lifecycle.Active}
	if err := s.accounts.Create(ctx, a); err != nil {
		// A concurrent registration can still hit the unique index.
		return nil, apperror.FromDB(err, "account", username)
	}
	s.logger.Info().Str("account_id", a.ID.String()).Str("role", a.Role).Msg("account created")
	return a, nil
}

// Register creates a self-service account. Anonymous callers always get the
// Patient role.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Account, error) {
	return s.CreateAccount(ctx, req.Username, req.Password, auth.RolePatient)
}

// Login checks credentials for the requested role and issues a token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return nil, apperror.Validation("username and password are required", nil)
	}

	a, err := s.accounts.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if apperror.IsNotFound(err) {
			metrics.RecordLogin("invalid")
			return nil, apperror.Unauthorized("account does not exist or is locked")
		}
		return nil, apperror.FromDB(err, "account", req.Username)
	}
	if !a.IsActive() {
		metrics.RecordLogin("invalid")
		return nil, apperror.Unauthorized("account does not exist or is locked")
	}
	if !auth.CheckPassword(req.Password, a.PasswordHash) {
		metrics.RecordLogin("invalid")
		return nil, apperror.Unauthorized("incorrect password")
	}
	if !strings.EqualFold(strings.TrimSpace(req.Role), a.Role) {
		metrics.RecordLogin("forbidden")
		return nil, apperror.Forbidden("this account does not have the " + strings.TrimSpace(req.Role) + " role")
	}

	session := auth.Session{AccountID: a.ID, Username: a.Username, Role: a.Role}
	linked := true
	if a.Role == auth.RolePatient {
		pid, err := s.profiles.PatientIDForAccount(ctx, a.ID)
		if err != nil {
			return nil, apperror.Internal(err)
		}
		session.PatientID = pid
		linked = pid != nil
	}

	token, expiresAt, err := s.tokens.Issue(session)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	metrics.RecordLogin("success")

	return &LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User: UserInfo{
			AccountID: a.ID,
			Username:  a.Username,
			Role:      a.Role,
			PatientID: session.PatientID,
		},
		ProfileLinked: linked,
	}, nil
}

func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	a, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.FromDB(err, "account", id.String())
	}
	return a, nil
}

func (s *Service) SearchAccounts(ctx context.Context, params map[string]string, limit, offset int) ([]*Account, int, error) {
	if role, ok := params["role"]; ok {
		canonical, valid := auth.NormalizeRole(role)
		if !valid {
			return nil, 0, apperror.Validationf("unknown role %q", role)
		}
		params["role"] = canonical
	}
	items, total, err := s.accounts.Search(ctx, params, limit, offset)
	if err != nil {
		return nil, 0, apperror.Internal(err)
	}
	return items, total, nil
}

// UpdateAccount changes username and role. A role change revokes the
// account's outstanding tokens.
func (s *Service) UpdateAccount(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Account, error) {
	a, err := s.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	previousRole := a.Role

	if name := strings.TrimSpace(req.Username); name != "" && !strings.EqualFold(name, a.Username) {
		if len(name) > maxUsernameLength {
			return nil, apperror.Validation("invalid account data", map[string]string{"username": "must be at most 100 characters"})
		}
		other, err := s.accounts.GetByUsername(ctx, name)
		if err != nil && !apperror.IsNotFound(err) {
			return nil, apperror.FromDB(err, "account", name)
		}
		if err == nil && other != nil && other.ID != a.ID {
			return nil, apperror.Conflictf("username %q is already taken", name)
		}
		a.Username = name
	} else if name != "" {
		a.Username = name
	}
	if req.Role != "" {
		role, ok := auth.NormalizeRole(req.Role)
		if !ok {
			return nil, apperror.Validationf("unknown role %q", req.Role)
		}
		a.Role = role
	}

	if err := s.accounts.Update(ctx, a); err != nil {
		return nil, apperror.FromDB(err, "account", id.String())
	}
	// Issued tokens carry the old role.
	if a.Role != previousRole && s.revoker != nil {
		s.revoker.RevokeAccount(id)
		s.logger.Info().Str("account_id", id.String()).Str("from", previousRole).Str("to", a.Role).
			Msg("role changed, sessions revoked")
	}
	return a, nil
}

// ChangePassword sets a new password for id.
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, password string) error {
	if len(password) < auth.MinPasswordLength {
		return apperror.Validation("invalid password", map[string]string{"password": "must be at least 6 characters"})
	}
	hash, err := auth.HashPassword(password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return apperror.Validation(err.Error(), map[string]string{"password": err.Error()})
	}
	if err != nil {
		return apperror.Internal(err)
	}
	if err := s.accounts.UpdatePasswordHash(ctx, id, hash); err != nil {
		return apperror.FromDB(err, "account", id.String())
	}
	return nil
}

// SetActive activates or deactivates an account. Admins cannot lock
// themselves out.
func (s *Service) SetActive(ctx context.Context, actor *auth.Session, id uuid.UUID, active bool) (*Account, error) {
	if !active && actor != nil && actor.AccountID == id {
		return nil, apperror.Conflict("you cannot deactivate your own account")
	}

	a, err := s.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	target := lifecycle.Inactive
	if active {
		target = lifecycle.Active
	}
	next, err := a.Lifecycle.Transition(target)
	if err != nil {
		return nil, apperror.Conflict(err.Error())
	}
	if next == a.Lifecycle {
		return a, nil
	}
	if err := s.accounts.SetLifecycle(ctx, id, next); err != nil {
		return nil, apperror.FromDB(err, "account", id.String())
	}
	a.Lifecycle = next
	if !active && s.revoker != nil {
		s.revoker.RevokeAccount(id)
	}
	s.logger.Info().Str("account_id", id.String()).Str("lifecycle", string(next)).Msg("account lifecycle changed")
	return a, nil
}
