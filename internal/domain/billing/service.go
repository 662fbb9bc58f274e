package billing

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperror"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

func (s *Service) GetInvoice(ctx context.Context, id uuid.UUID) (*InvoiceDetail, error) {
	d, err := s.repo.GetDetail(ctx, id)
	if err != nil {
		return nil, apperror.FromDB(err, "invoice", id.String())
	}
	return d, nil
}

func (s *Service) SearchInvoices(ctx context.Context, params map[string]string, limit, offset int) ([]*Invoice, int, error) {
	clean := map[string]string{}
	if v, ok := params["status"]; ok {
		code, valid := ParseStatus(v)
		if !valid {
			return nil, 0, apperror.Validationf("invalid status %q", v)
		}
		clean["status"] = code
	}
	if v, ok := params["patient_id"]; ok {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, 0, apperror.Validationf("invalid patient_id %q", v)
		}
		clean["patient_id"] = id.String()
	}
	items, total, err := s.repo.Search(ctx, clean, limit, offset)
	if err != nil {
		return nil, 0, apperror.FromDB(err, "invoice", "")
	}
	return items, total, nil
}

// RecordPayment moves an unpaid invoice to paid. Paying twice is a conflict.
func (s *Service) RecordPayment(ctx context.Context, id uuid.UUID, req PaymentRequest) (*Invoice, error) {
	method := strings.TrimSpace(req.PaymentMethod)
	if method == "" {
		return nil, apperror.Validation("payment_method is required", map[string]string{"payment_method": "is required"})
	}
	if len([]rune(method)) > maxPaymentMethodLength {
		return nil, apperror.Validationf("payment_method must be at most %d characters", maxPaymentMethodLength)
	}

	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.FromDB(err, "invoice", id.String())
	}
	if inv.Status != StatusUnpaid {
		return nil, apperror.Conflict("invoice is already paid")
	}

	if err := s.repo.MarkPaid(ctx, id, method, s.now().UTC()); err != nil {
		if apperror.IsNotFound(err) {
			// Lost a race with another payment.
			return nil, apperror.Conflict("invoice is already paid")
		}
		return nil, apperror.FromDB(err, "invoice", id.String())
	}

	s.logger.Info().Str("invoice_id", id.String()).Str("payment_method", method).Float64("total", inv.Total).Msg("invoice paid")

	inv, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.FromDB(err, "invoice", id.String())
	}
	return inv, nil
}
