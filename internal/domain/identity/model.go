package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/lifecycle"
)

// DateLayout is the wire format of dates of birth.
const DateLayout = "2006-01-02"

type Patient struct {
	ID             uuid.UUID       `json:"patient_id"`
	AccountID      *uuid.UUID      `json:"account_id,omitempty"`
	FullName       string          `json:"full_name"`
	DateOfBirth    *time.Time      `json:"date_of_birth,omitempty"`
	Gender         string          `json:"gender,omitempty"`
	Phone          string          `json:"phone,omitempty"`
	Email          string          `json:"email,omitempty"`
	Address        string          `json:"address,omitempty"`
	MedicalHistory string          `json:"medical_history,omitempty"`
	Lifecycle      lifecycle.State `json:"lifecycle"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type Doctor struct {
	ID            uuid.UUID       `json:"doctor_id"`
	AccountID     uuid.UUID       `json:"account_id"`
	FullName      string          `json:"full_name"`
	SpecialtyID   *uuid.UUID      `json:"specialty_id,omitempty"`
	SpecialtyName string          `json:"specialty_name,omitempty"`
	Phone         string          `json:"phone,omitempty"`
	Email         string          `json:"email,omitempty"`
	Lifecycle     lifecycle.State `json:"lifecycle"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type Specialty struct {
	ID          uuid.UUID       `json:"specialty_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Lifecycle   lifecycle.State `json:"lifecycle"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// OwnProfileResponse answers POST /patients/me. Token is a replacement that
// carries the new patient_id; when it is absent ReloginRequired is set.
type OwnProfileResponse struct {
	Patient         *Patient   `json:"patient"`
	Token           string     `json:"token,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	ReloginRequired bool       `json:"relogin_required"`
}

// PatientRequest is the body of patient create and update calls. Username and
// Password are only read on create; when both are set a Patient account is
// registered together with the profile.
type PatientRequest struct {
	FullName       string `json:"full_name"`
	DateOfBirth    string `json:"date_of_birth"`
	Gender         string `json:"gender"`
	Phone          string `json:"phone"`
	Email          string `json:"email"`
	Address        string `json:"address"`
	MedicalHistory string `json:"medical_history"`
	Username       string `json:"username,omitempty"`
	Password       string `json:"password,omitempty"`
}

type DoctorCreateRequest struct {
	Username    string     `json:"username"`
	Password    string     `json:"password"`
	FullName    string     `json:"full_name"`
	SpecialtyID *uuid.UUID `json:"specialty_id"`
	Phone       string     `json:"phone"`
	Email       string     `json:"email"`
}

type DoctorUpdateRequest struct {
	FullName    string     `json:"full_name"`
	SpecialtyID *uuid.UUID `json:"specialty_id"`
	Phone       string     `json:"phone"`
	Email       string     `json:"email"`
}

type SpecialtyRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}
