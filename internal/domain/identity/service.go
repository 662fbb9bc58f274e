package identity

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
)

type Service struct {
	patients    PatientRepository
	doctors     DoctorRepository
	specialties SpecialtyRepository
	accounts    AccountCreator
	tx          db.TxRunner
	logger      zerolog.Logger
}

func NewService(patients PatientRepository, doctors DoctorRepository, specialties SpecialtyRepository,
	accounts AccountCreator, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		patients:    patients,
		doctors:     doctors,
		specialties: specialties,
		accounts:    accounts,
		tx:          tx,
		logger:      logger,
	}
}

func parseDOB(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, apperror.Validation("invalid patient data", map[string]string{"date_of_birth": "must be YYYY-MM-DD"})
	}
	if t.After(time.Now()) {
		return nil, apperror.Validation("invalid patient data", map[string]string{"date_of_birth": "cannot be in the future"})
	}
	return &t, nil
}

func (req PatientRequest) apply(p *Patient) error {
	name := strings.TrimSpace(req.FullName)
	if name == "" {
		return apperror.Validation("invalid patient data", map[string]string{"full_name": "is required"})
	}
	dob, err := parseDOB(req.DateOfBirth)
	if err != nil {
		return err
	}
	p.FullName = name
	p.DateOfBirth = dob
	p.Gender = strings.TrimSpace(req.Gender)
	p.Phone = strings.TrimSpace(req.Phone)
	p.Email = strings.TrimSpace(req.Email)
	p.Address = strings.TrimSpace(req.Address)
	p.MedicalHistory = req.MedicalHistory
	return nil
}

// -- Patient --

// CreatePatient stores a profile. When the request carries credentials a
// Patient account is created and linked in the same transaction.
func (s *Service) CreatePatient(ctx context.Context, req PatientRequest) (*Patient, error) {
	p := &Patient{}
	if err := req.apply(p); err != nil {
		return nil, err
	}
	withAccount := req.Username != "" || req.Password != ""

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if withAccount {
			a, err := s.accounts.CreateAccount(ctx, req.Username, req.Password, auth.RolePatient)
			if err != nil {
				return err
			}
			p.AccountID = &a.ID
		}
		return s.patients.Create(ctx, p)
	})
	if err != nil {
		return nil, apperror.FromDB(err, "patient", "")
	}
	s.logger.Info().Str("patient_id", p.ID.String()).Bool("with_account", withAccount).Msg("patient created")
	return p, nil
}

// CreateOwnProfile links a new profile to the calling Patient account.
func (s *Service) CreateOwnProfile(ctx context.Context, accountID uuid.UUID, req PatientRequest) (*Patient, error) {
	if existing, err := s.patients.GetByAccountID(ctx, accountID); err == nil && existing != nil {
		return nil, apperror.Conflict("a patient profile is already linked to this account")
	} else if err != nil && !apperror.IsNotFound(err) {
		return nil, apperror.FromDB(err, "patient", accountID.String())
	}

	p := &Patient{AccountID: &accountID}
	if err := req.apply(p); err != nil {
		return nil, err
	}
	if err := s.patients.Create(ctx, p); err != nil {
		return nil, apperror.FromDB(err, "patient", "")
	}
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.FromDB(err, "patient", id.String())
	}
	return p, nil
}

// GetPatientFor applies the ownership rule: Patient callers may only read
// their own profile.
func (s *Service) GetPatientFor(ctx context.Context, caller *auth.Session, id uuid.UUID) (*Patient, error) {
	if caller.HasRole(auth.RolePatient) && (caller.PatientID == nil || *caller.PatientID != id) {
		return nil, apperror.Forbidden("patients may only view their own profile")
	}
	return s.GetPatient(ctx, id)
}

func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, req PatientRequest) (*Patient, error) {
	p, err := s.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := req.apply(p); err != nil {
		return nil, err
	}
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, apperror.FromDB(err, "patient", id.String())
	}
	return p, nil
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return apperror.FromDB(s.patients.SoftDelete(ctx, id), "patient", id.String())
}

func (s *Service) SearchPatients(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error) {
	items, total, err := s.patients.Search(ctx, params, limit, offset)
	if err != nil {
		return nil, 0, apperror.Internal(err)
	}
	return items, total, nil
}

// -- Doctor --

func (s *Service) checkSpecialty(ctx context.Context, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	if _, err := s.specialties.GetByID(ctx, *id); err != nil {
		return apperror.FromDB(err, "specialty", id.String())
	}
	return nil
}

// CreateDoctor registers the doctor's Doctor-role account and profile as one
// unit of work.
func (s *Service) CreateDoctor(ctx context.Context, req DoctorCreateRequest) (*Doctor, error) {
	name := strings.TrimSpace(req.FullName)
	details := map[string]string{}
	if name == "" {
		details["full_name"] = "is required"
	}
	if strings.TrimSpace(req.Username) == "" {
		details["username"] = "is required"
	}
	if req.Password == "" {
		details["password"] = "is required"
	}
	if len(details) > 0 {
		return nil, apperror.Validation("invalid doctor data", details)
	}
	if err := s.checkSpecialty(ctx, req.SpecialtyID); err != nil {
		return nil, err
	}

	d := &Doctor{
		FullName:    name,
		SpecialtyID: req.SpecialtyID,
		Phone:       strings.TrimSpace(req.Phone),
		Email:       strings.TrimSpace(req.Email),
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.accounts.CreateAccount(ctx, req.Username, req.Password, auth.RoleDoctor)
		if err != nil {
			return err
		}
		d.AccountID = a.ID
		return s.doctors.Create(ctx, d)
	})
	if err != nil {
		return nil, apperror.FromDB(err, "doctor", "")
	}
	s.logger.Info().Str("doctor_id", d.ID.String()).Str("account_id", d.AccountID.String()).Msg("doctor created")
	return s.GetDoctor(ctx, d.ID)
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.FromDB(err, "doctor", id.String())
	}
	return d, nil
}

func (s *Service) UpdateDoctor(ctx context.Context, id uuid.UUID, req DoctorUpdateRequest) (*Doctor, error) {
	d, err := s.GetDoctor(ctx, id)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.FullName)
	if name == "" {
		return nil, apperror.Validation("invalid doctor data", map[string]string{"full_name": "is required"})
	}
	if err := s.checkSpecialty(ctx, req.SpecialtyID); err != nil {
		return nil, err
	}
	d.FullName = name
	d.SpecialtyID = req.SpecialtyID
	d.Phone = strings.TrimSpace(req.Phone)
	d.Email = strings.TrimSpace(req.Email)
	if err := s.doctors.Update(ctx, d); err != nil {
		return nil, apperror.FromDB(err, "doctor", id.String())
	}
	return s.GetDoctor(ctx, id)
}

func (s *Service) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	return apperror.FromDB(s.doctors.SoftDelete(ctx, id), "doctor", id.String())
}

func (s *Service) SearchDoctors(ctx context.Context, params map[string]string, limit, offset int) ([]*Doctor, int, error) {
	if v, ok := params["specialty_id"]; ok {
		if _, err := uuid.Parse(v); err != nil {
			return nil, 0, apperror.BadRequest("invalid specialty_id")
		}
	}
	items, total, err := s.doctors.Search(ctx, params, limit, offset)
	if err != nil {
		return nil, 0, apperror.Internal(err)
	}
	return items, total, nil
}

// -- Specialty --

func (s *Service) ensureSpecialtyNameFree(ctx context.Context, name string, self uuid.UUID) error {
	other, err := s.specialties.GetByName(ctx, name)
	if err == nil && other != nil && other.ID != self {
		return apperror.Conflictf("specialty %q already exists", name)
	}
	if err != nil && !apperror.IsNotFound(err) {
		return apperror.FromDB(err, "specialty", name)
	}
	return nil
}

func (s *Service) CreateSpecialty(ctx context.Context, req SpecialtyRequest) (*Specialty, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperror.Validation("invalid specialty data", map[string]string{"name": "is required"})
	}
	if err := s.ensureSpecialtyNameFree(ctx, name, uuid.Nil); err != nil {
		return nil, err
	}
	sp := &Specialty{Name: name, Description: strings.TrimSpace(req.Description)}
	if err := s.specialties.Create(ctx, sp); err != nil {
		return nil, apperror.FromDB(err, "specialty", name)
	}
	return sp, nil
}

func (s *Service) GetSpecialty(ctx context.Context, id uuid.UUID) (*Specialty, error) {
	sp, err := s.specialties.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.FromDB(err, "specialty", id.String())
	}
	return sp, nil
}

func (s *Service) UpdateSpecialty(ctx context.Context, id uuid.UUID, req SpecialtyRequest) (*Specialty, error) {
	sp, err := s.GetSpecialty(ctx, id)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperror.Validation("invalid specialty data", map[string]string{"name": "is required"})
	}
	if err := s.ensureSpecialtyNameFree(ctx, name, id); err != nil {
		return nil, err
	}
	sp.Name = name
	sp.Description = strings.TrimSpace(req.Description)
	if err := s.specialties.Update(ctx, sp); err != nil {
		return nil, apperror.FromDB(err, "specialty", id.String())
	}
	return sp, nil
}

func (s *Service) DeleteSpecialty(ctx context.Context, id uuid.UUID) error {
	return apperror.FromDB(s.specialties.SoftDelete(ctx, id), "specialty", id.String())
}

func (s *Service) ListSpecialties(ctx context.Context) ([]*Specialty, error) {
	items, err := s.specialties.List(ctx)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return items, nil
}
