package medication

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/metrics"
)

type Service struct {
	drugs  DrugRepository
	stock  StockRepository
	tx     db.TxRunner
	logger zerolog.Logger
}

func NewService(drugs DrugRepository, stock StockRepository, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{drugs: drugs, stock: stock, tx: tx, logger: logger}
}

func (req DrugRequest) validate() error {
	details := map[string]string{}
	if strings.TrimSpace(req.Name) == "" {
		details["name"] = "is required"
	}
	if strings.TrimSpace(req.Unit) == "" {
		details["unit"] = "is required"
	}
	if req.Price == nil {
		details["price"] = "is required"
	} else if *req.Price < 0 {
		details["price"] = "must not be negative"
	}
	if len(details) > 0 {
		return apperror.Validation("invalid drug data", details)
	}
	return nil
}

func (s *Service) ensureNameFree(ctx context.Context, name string, self uuid.UUID) error {
	other, err := s.drugs.GetByName(ctx, name)
	if err == nil && other != nil && other.ID != self {
		return apperror.Conflictf("drug %q already exists", name)
	}
	if err != nil && !apperror.IsNotFound(err) {
		return apperror.FromDB(err, "drug", name)
	}
	return nil
}

// CreateDrug stores the drug and its empty stock row together.
func (s *Service) CreateDrug(ctx context.Context, req DrugRequest) (*Drug, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if err := s.ensureNameFree(ctx, name, uuid.Nil); err != nil {
		return nil, err
	}

	d := &Drug{
		Name:        name,
		Unit:        strings.TrimSpace(req.Unit),
		Price:       *req.Price,
		Description: strings.TrimSpace(req.Description),
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.drugs.Create(ctx, d); err != nil {
			return err
		}
		return s.stock.Init(ctx, d.ID)
	})
	if err != nil {
		return nil, apperror.FromDB(err, "drug", name)
	}
	return d, nil
}

func (s *Service) GetDrug(ctx context.Context, id uuid.UUID) (*Drug, error) {
	d, err := s.drugs.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.FromDB(err, "drug", id.String())
	}
	return d, nil
}

func (s *Service) UpdateDrug(ctx context.Context, id uuid.UUID, req DrugRequest) (*Drug, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	d, err := s.GetDrug(ctx, id)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if err := s.ensureNameFree(ctx, name, id); err != nil {
		return nil, err
	}
	d.Name = name
	d.Unit = strings.TrimSpace(req.Unit)
	d.Price = *req.Price
	d.Description = strings.TrimSpace(req.Description)
	if err := s.drugs.Update(ctx, d); err != nil {
		return nil, apperror.FromDB(err, "drug", id.String())
	}
	return d, nil
}

func (s *Service) DeleteDrug(ctx context.Context, id uuid.UUID) error {
	return apperror.FromDB(s.drugs.SoftDelete(ctx, id), "drug", id.String())
}

func (s *Service) SearchDrugs(ctx context.Context, params map[string]string, limit, offset int) ([]*Drug, int, error) {
	items, total, err := s.drugs.Search(ctx, params, limit, offset)
	if err != nil {
		return nil, 0, apperror.Internal(err)
	}
	return items, total, nil
}

func (s *Service) ListStock(ctx context.Context) ([]*StockLevel, error) {
	items, err := s.stock.List(ctx)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return items, nil
}

// AdjustStock imports or exports quantity units of a drug. An export larger
// than the available stock empties it and reports the clamp.
func (s *Service) AdjustStock(ctx context.Context, req AdjustRequest) (*AdjustResult, error) {
	kind := strings.ToLower(strings.TrimSpace(req.Type))
	details := map[string]string{}
	if req.DrugID == uuid.Nil {
		details["drug_id"] = "is required"
	}
	if req.Quantity <= 0 {
		details["quantity"] = "must be greater than 0"
	}
	if kind != AdjustImport && kind != AdjustExport {
		details["type"] = "must be import or export"
	}
	if len(details) > 0 {
		return nil, apperror.Validation("invalid stock adjustment", details)
	}

	delta := req.Quantity
	if kind == AdjustExport {
		delta = -req.Quantity
	}

	res := &AdjustResult{DrugID: req.DrugID, Type: kind, Requested: req.Quantity}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.drugs.GetByID(ctx, req.DrugID); err != nil {
			return err
		}
		before, after, err := s.stock.Adjust(ctx, req.DrugID, delta)
		if err != nil {
			return err
		}
		res.QuantityAvailable = after
		if kind == AdjustImport {
			res.Applied = after - before
		} else {
			res.Applied = before - after
		}
		return nil
	})
	if err != nil {
		return nil, apperror.FromDB(err, "drug", req.DrugID.String())
	}

	if res.Applied < res.Requested {
		res.Clamped = true
		metrics.RecordStockClamped()
		s.logger.Warn().
			Str("drug_id", req.DrugID.String()).
			Int("requested", res.Requested).
			Int("applied", res.Applied).
			Msg("stock export exceeded available quantity, clamped at zero")
	}
	return res, nil
}
