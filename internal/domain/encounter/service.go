package encounter

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/metrics"
)

type Service struct {
	repo     Repository
	clinic   Clinic
	invoices InvoiceWriter
	tx       db.TxRunner
	logger   zerolog.Logger
}

func NewService(repo Repository, clinic Clinic, invoices InvoiceWriter, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{repo: repo, clinic: clinic, invoices: invoices, tx: tx, logger: logger}
}

func (req CompleteRequest) validate() error {
	details := map[string]string{}
	if req.AppointmentID == uuid.Nil {
		details["appointment_id"] = "is required"
	}
	if req.ServiceFee < 0 {
		details["service_fee"] = "must not be negative"
	}
	for i, it := range req.Items {
		key := fmt.Sprintf("items[%d]", i)
		switch {
		case it.DrugID == uuid.Nil:
			details[key] = "drug_id is required"
		case it.Quantity <= 0:
			details[key] = "quantity must be greater than 0"
		case it.Quantity > MaxItemQuantity:
			details[key] = fmt.Sprintf("quantity must be at most %d", MaxItemQuantity)
		}
	}
	if len(details) > 0 {
		return apperror.Validation("invalid encounter data", details)
	}
	return nil
}

func (s *Service) doctorFor(ctx context.Context, accountID uuid.UUID) (uuid.UUID, error) {
	id, err := s.clinic.DoctorIDForAccount(ctx, accountID)
	if err != nil {
		return uuid.Nil, apperror.Internal(err)
	}
	if id == nil {
		return uuid.Nil, apperror.Conflict("account is not linked to a doctor profile")
	}
	return *id, nil
}

// CompleteEncounter records the visit, its prescription, the stock it consumes
// and the resulting invoice in one transaction, and marks the appointment
// completed. Any failure leaves storage untouched.
func (s *Service) CompleteEncounter(ctx context.Context, doctorAccountID uuid.UUID, req CompleteRequest) (*Completion, error) {
	doctorID, err := s.doctorFor(ctx, doctorAccountID)
	if err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	var out Completion
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		appt, err := s.clinic.LockAppointment(ctx, req.AppointmentID)
		if err != nil {
			return apperror.FromDB(err, "appointment", req.AppointmentID.String())
		}
		if appt.Status != scheduling.StatusScheduled {
			return apperror.Conflictf("appointment is already %s", appt.Status)
		}
		if appt.DoctorID != doctorID {
			return apperror.Conflict("appointment belongs to another doctor")
		}

		drugs := make(map[uuid.UUID]*DrugRef, len(req.Items))
		for _, it := range req.Items {
			if _, ok := drugs[it.DrugID]; ok {
				continue
			}
			d, err := s.clinic.Drug(ctx, it.DrugID)
			if err != nil {
				return apperror.FromDB(err, "drug", it.DrugID.String())
			}
			drugs[it.DrugID] = d
		}

		enc := &Encounter{
			AppointmentID: appt.ID,
			DoctorID:      doctorID,
			PatientID:     appt.PatientID,
			Notes:         strings.TrimSpace(req.Notes),
			Diagnosis:     strings.TrimSpace(req.Diagnosis),
			ServiceFee:    billing.RoundMoney(req.ServiceFee),
		}
		if err := s.repo.Create(ctx, enc); err != nil {
			return apperror.FromDB(err, "encounter", appt.ID.String())
		}

		var drugFee float64
		for _, it := range req.Items {
			d := drugs[it.DrugID]
			ok, err := s.clinic.Dispense(ctx, d.ID, it.Quantity)
			if err != nil {
				return apperror.FromDB(err, "stock", d.ID.String())
			}
			if !ok {
				return apperror.Conflictf("insufficient stock for drug %s", d.Name)
			}
			item := &PrescriptionItem{
				EncounterID: enc.ID,
				DrugID:      d.ID,
				DrugName:    d.Name,
				Quantity:    it.Quantity,
				UnitPrice:   d.Price,
				Usage:       strings.TrimSpace(it.Usage),
			}
			if err := s.repo.AddItem(ctx, item); err != nil {
				return apperror.FromDB(err, "prescription item", d.ID.String())
			}
			enc.Items = append(enc.Items, item)
			drugFee += float64(it.Quantity) * d.Price
		}

		if err := s.clinic.CompleteAppointment(ctx, appt.ID); err != nil {
			return apperror.FromDB(err, "appointment", appt.ID.String())
		}

		drugFee = billing.RoundMoney(drugFee)
		inv := &billing.Invoice{
			EncounterID: enc.ID,
			PatientID:   appt.PatientID,
			ServiceFee:  enc.ServiceFee,
			DrugFee:     drugFee,
			Total:       billing.RoundMoney(enc.ServiceFee + drugFee),
			Status:      billing.StatusUnpaid,
		}
		if err := s.invoices.Create(ctx, inv); err != nil {
			return apperror.FromDB(err, "invoice", enc.ID.String())
		}

		out = Completion{Encounter: enc, Invoice: inv}
		return nil
	})
	if err != nil {
		return nil, apperror.FromDB(err, "encounter", req.AppointmentID.String())
	}

	metrics.RecordEncounterCompleted(out.Invoice.Total)
	s.logger.Info().
		Str("encounter_id", out.Encounter.ID.String()).
		Str("appointment_id", req.AppointmentID.String()).
		Int("items", len(out.Encounter.Items)).
		Float64("total", out.Invoice.Total).
		Msg("encounter completed")
	return &out, nil
}

// GetEncounter returns the encounter with its prescription. Doctors only see
// their own.
func (s *Service) GetEncounter(ctx context.Context, caller *auth.Session, id uuid.UUID) (*Encounter, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.FromDB(err, "encounter", id.String())
	}
	if caller.HasRole(auth.RoleDoctor) {
		own, err := s.clinic.DoctorIDForAccount(ctx, caller.AccountID)
		if err != nil {
			return nil, apperror.Internal(err)
		}
		if own == nil || *own != e.DoctorID {
			return nil, apperror.Forbidden("encounter belongs to another doctor")
		}
	}
	items, err := s.repo.ListItems(ctx, id)
	if err != nil {
		return nil, apperror.FromDB(err, "encounter", id.String())
	}
	e.Items = items
	return e, nil
}

func (s *Service) SearchEncounters(ctx context.Context, params map[string]string, limit, offset int) ([]*Encounter, int, error) {
	clean := map[string]string{}
	for _, k := range []string{"doctor_id", "patient_id"} {
		v, ok := params[k]
		if !ok {
			continue
		}
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, 0, apperror.Validationf("invalid %s %q", k, v)
		}
		clean[k] = id.String()
	}
	items, total, err := s.repo.Search(ctx, clean, limit, offset)
	if err != nil {
		return nil, 0, apperror.FromDB(err, "encounter", "")
	}
	return items, total, nil
}

func (s *Service) DeleteEncounter(ctx context.Context, id uuid.UUID) error {
	return apperror.FromDB(s.repo.SoftDelete(ctx, id), "encounter", id.String())
}
