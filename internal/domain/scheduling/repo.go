package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// Update and UpdateStatus only write rows still in the expected status and
	// return pgx.ErrNoRows otherwise, so a concurrent completion is never
	// overwritten. Update expects Scheduled.
	Update(ctx context.Context, a *Appointment) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Appointment, int, error)

	// LockDoctor serializes bookings for one doctor until the surrounding
	// transaction ends.
	LockDoctor(ctx context.Context, doctorID uuid.UUID) error
	// HasConflict reports whether the doctor has a scheduled appointment
	// starting within window of at, ignoring exclude.
	HasConflict(ctx context.Context, doctorID uuid.UUID, at time.Time, window time.Duration, exclude *uuid.UUID) (bool, error)
}

// ReminderStore is the part of storage the reminder worker uses.
type ReminderStore interface {
	DueForReminder(ctx context.Context, from, to time.Time) ([]*ReminderCandidate, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID) error
}

// AppointmentStore is implemented by the Postgres repository, which serves
// both the service and the reminder worker.
type AppointmentStore interface {
	AppointmentRepository
	ReminderStore
}

// Directory answers questions about the people an appointment refers to.
type Directory interface {
	PatientExists(ctx context.Context, id uuid.UUID) (bool, error)
	DoctorExists(ctx context.Context, id uuid.UUID) (bool, error)
	// DoctorIDForAccount returns nil when the account has no doctor profile.
	DoctorIDForAccount(ctx context.Context, accountID uuid.UUID) (*uuid.UUID, error)
}
