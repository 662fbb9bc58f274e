package scheduling

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/metrics"
)

// Rules holds the booking constraints.
type Rules struct {
	// LeadTime is how far in the future an appointment must start.
	LeadTime time.Duration
	// ConflictWindow is the minimum gap between two scheduled appointments of
	// the same doctor.
	ConflictWindow time.Duration
}

func DefaultRules() Rules {
	return Rules{LeadTime: 15 * time.Minute, ConflictWindow: 29 * time.Minute}
}

type Service struct {
	appts  AppointmentRepository
	dir    Directory
	tx     db.TxRunner
	rules  Rules
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(appts AppointmentRepository, dir Directory, tx db.TxRunner, rules Rules, logger zerolog.Logger) *Service {
	return &Service{appts: appts, dir: dir, tx: tx, rules: rules, logger: logger, now: time.Now}
}

func (s *Service) validateRequest(ctx context.Context, req AppointmentRequest) error {
	details := map[string]string{}
	if req.PatientID == uuid.Nil {
		details["patient_id"] = "is required"
	}
	if req.DoctorID == uuid.Nil {
		details["doctor_id"] = "is required"
	}
	if req.ScheduledAt.IsZero() {
		details["scheduled_at"] = "is required"
	}
	if len(details) > 0 {
		return apperror.Validation("invalid appointment data", details)
	}

	if req.ScheduledAt.Before(s.now().Add(s.rules.LeadTime)) {
		metrics.RecordBookingRejected("lead_time")
		return apperror.Validationf("appointment must start at least %s from now", s.rules.LeadTime)
	}

	if ok, err := s.dir.PatientExists(ctx, req.PatientID); err != nil {
		return apperror.Internal(err)
	} else if !ok {
		return apperror.Validation("patient does not exist", map[string]string{"patient_id": req.PatientID.String()})
	}
	if ok, err := s.dir.DoctorExists(ctx, req.DoctorID); err != nil {
		return apperror.Internal(err)
	} else if !ok {
		return apperror.Validation("doctor does not exist", map[string]string{"doctor_id": req.DoctorID.String()})
	}
	return nil
}

// checkConflict must run inside a transaction holding the doctor lock.
func (s *Service) checkConflict(ctx context.Context, doctorID uuid.UUID, at time.Time, exclude *uuid.UUID) error {
	conflict, err := s.appts.HasConflict(ctx, doctorID, at, s.rules.ConflictWindow, exclude)
	if err != nil {
		return err
	}
	if conflict {
		metrics.RecordBookingRejected("conflict")
		return apperror.Conflict("doctor already booked at this time, choose another time")
	}
	return nil
}

// CreateAppointment books a new Scheduled appointment.
func (s *Service) CreateAppointment(ctx context.Context, req AppointmentRequest) (*Appointment, error) {
	if err := s.validateRequest(ctx, req); err != nil {
		return nil, err
	}

	a := &Appointment{
		PatientID:   req.PatientID,
		DoctorID:    req.DoctorID,
		ScheduledAt: req.ScheduledAt,
		Status:      StatusScheduled,
		Notes:       strings.TrimSpace(req.Notes),
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.appts.LockDoctor(ctx, req.DoctorID); err != nil {
			return err
		}
		if err := s.checkConflict(ctx, req.DoctorID, req.ScheduledAt, nil); err != nil {
			return err
		}
		return s.appts.Create(ctx, a)
	})
	if err != nil {
		return nil, apperror.FromDB(err, "appointment", "")
	}
	a.StatusLabel = StatusLabel(a.Status)
	metrics.RecordAppointmentBooked()
	s.logger.Info().Str("appointment_id", a.ID.String()).Str("doctor_id", a.DoctorID.String()).
		Time("scheduled_at", a.ScheduledAt).Msg("appointment booked")
	return a, nil
}

// UpdateAppointment reschedules or reassigns a Scheduled appointment. The
// conflict check only runs again when the doctor or time changed.
func (s *Service) UpdateAppointment(ctx context.Context, id uuid.UUID, req AppointmentRequest) (*Appointment, error) {
	current, err := s.getAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusScheduled {
		return nil, apperror.Conflictf("cannot modify an appointment that is %s", StatusLabel(current.Status))
	}
	if err := s.validateRequest(ctx, req); err != nil {
		return nil, err
	}

	moved := current.DoctorID != req.DoctorID || !current.ScheduledAt.Equal(req.ScheduledAt)
	current.PatientID = req.PatientID
	current.DoctorID = req.DoctorID
	current.ScheduledAt = req.ScheduledAt
	current.Notes = strings.TrimSpace(req.Notes)

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if moved {
			if err := s.appts.LockDoctor(ctx, req.DoctorID); err != nil {
				return err
			}
			if err := s.checkConflict(ctx, req.DoctorID, req.ScheduledAt, &id); err != nil {
				return err
			}
		}
		return s.appts.Update(ctx, current)
	})
	if apperror.IsNotFound(err) {
		// Completed or cancelled since it was read.
		latest, rerr := s.getAppointment(ctx, id)
		if rerr != nil {
			return nil, rerr
		}
		return nil, apperror.Conflictf("cannot modify an appointment that is %s", latest.StatusLabel)
	}
	if err != nil {
		return nil, apperror.FromDB(err, "appointment", id.String())
	}
	return s.getAppointment(ctx, id)
}

// CancelAppointment moves a Scheduled appointment to Cancelled. Cancelling
// twice is a no-op; a Completed appointment cannot be cancelled. Patients may
// only cancel their own appointments.
func (s *Service) CancelAppointment(ctx context.Context, caller *auth.Session, id uuid.UUID) (*Appointment, error) {
	a, err := s.getAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.HasRole(auth.RolePatient) && (caller.PatientID == nil || *caller.PatientID != a.PatientID) {
		return nil, apperror.Forbidden("patients may only cancel their own appointments")
	}

	switch a.Status {
	case StatusCancelled:
		return a, nil
	case StatusCompleted:
		return nil, apperror.Conflict("cannot cancel a completed appointment")
	}
	if !canTransition(a.Status, StatusCancelled) {
		return nil, apperror.Conflictf("cannot cancel an appointment that is %s", a.Status)
	}

	err = s.appts.UpdateStatus(ctx, id, a.Status, StatusCancelled)
	if apperror.IsNotFound(err) {
		latest, rerr := s.getAppointment(ctx, id)
		if rerr != nil {
			return nil, rerr
		}
		if latest.Status == StatusCancelled {
			return latest, nil
		}
		return nil, apperror.Conflictf("cannot cancel an appointment that is %s", latest.StatusLabel)
	}
	if err != nil {
		return nil, apperror.FromDB(err, "appointment", id.String())
	}
	a.Status = StatusCancelled
	a.StatusLabel = StatusLabel(a.Status)
	metrics.RecordAppointmentCancelled()
	return a, nil
}

func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	return apperror.FromDB(s.appts.SoftDelete(ctx, id), "appointment", id.String())
}

func (s *Service) getAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.FromDB(err, "appointment", id.String())
	}
	a.StatusLabel = StatusLabel(a.Status)
	return a, nil
}

// ownDoctorID resolves the doctor profile of a Doctor caller.
func (s *Service) ownDoctorID(ctx context.Context, caller *auth.Session) (*uuid.UUID, error) {
	id, err := s.dir.DoctorIDForAccount(ctx, caller.AccountID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return id, nil
}

// GetAppointment returns one appointment if the caller may see it.
func (s *Service) GetAppointment(ctx context.Context, caller *auth.Session, id uuid.UUID) (*Appointment, error) {
	a, err := s.getAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case caller.HasRole(auth.RoleDoctor):
		own, err := s.ownDoctorID(ctx, caller)
		if err != nil {
			return nil, err
		}
		if own == nil || *own != a.DoctorID {
			return nil, apperror.Forbidden("doctors may only view their own appointments")
		}
	case caller.HasRole(auth.RolePatient):
		if caller.PatientID == nil || *caller.PatientID != a.PatientID {
			return nil, apperror.Forbidden("patients may only view their own appointments")
		}
	}
	return a, nil
}

// ListAppointments searches appointments, narrowing Doctor and Patient
// callers to their own.
func (s *Service) ListAppointments(ctx context.Context, caller *auth.Session, params map[string]string, limit, offset int) ([]*Appointment, int, error) {
	for _, k := range []string{"doctor_id", "patient_id"} {
		if v, ok := params[k]; ok {
			id, err := uuid.Parse(v)
			if err != nil {
				return nil, 0, apperror.BadRequest("invalid " + k)
			}
			params[k] = id.String()
		}
	}
	if v, ok := params["date"]; ok {
		if _, err := time.Parse("2006-01-02", v); err != nil {
			return nil, 0, apperror.Validation("invalid date", map[string]string{"date": "must be YYYY-MM-DD"})
		}
	}
	if v, ok := params["status"]; ok {
		code, valid := ParseStatus(v)
		if !valid {
			return nil, 0, apperror.Validationf("unknown status %q", v)
		}
		params["status"] = code
	}

	switch {
	case caller.HasRole(auth.RoleDoctor):
		own, err := s.ownDoctorID(ctx, caller)
		if err != nil {
			return nil, 0, err
		}
		if own == nil {
			return nil, 0, nil
		}
		if v, ok := params["doctor_id"]; ok && v != own.String() {
			return nil, 0, apperror.Forbidden("doctors may only view their own appointments")
		}
		params["doctor_id"] = own.String()
	case caller.HasRole(auth.RolePatient):
		if caller.PatientID == nil {
			return nil, 0, nil
		}
		if v, ok := params["patient_id"]; ok && v != caller.PatientID.String() {
			return nil, 0, apperror.Forbidden("patients may only view their own appointments")
		}
		params["patient_id"] = caller.PatientID.String()
	}

	items, total, err := s.appts.Search(ctx, params, limit, offset)
	if err != nil {
		return nil, 0, apperror.Internal(err)
	}
	for _, a := range items {
		a.StatusLabel = StatusLabel(a.Status)
	}
	return items, total, nil
}
