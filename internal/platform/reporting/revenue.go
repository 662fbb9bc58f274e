package reporting

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/db"
)

const dateLayout = "2006-01-02"

// DoctorRevenue is one row of the revenue-by-doctor report.
type DoctorRevenue struct {
	DoctorID          uuid.UUID `json:"doctor_id"`
	DoctorName        string    `json:"doctor_name"`
	SpecialtyName     string    `json:"specialty_name"`
	TotalEncounters   int       `json:"total_encounters"`
	TotalRevenue      float64   `json:"total_revenue"`
	AverageServiceFee float64   `json:"average_service_fee"`
}

// RevenueReport wraps the rows with the range they cover.
type RevenueReport struct {
	StartDate string          `json:"start_date"`
	EndDate   string          `json:"end_date"`
	Rows      []DoctorRevenue `json:"rows"`
}

// parseRange reads startDate and endDate (YYYY-MM-DD). Missing values default
// to the first day of the current month and today.
func parseRange(startParam, endParam string, now time.Time) (time.Time, time.Time, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := today

	if startParam != "" {
		t, err := time.Parse(dateLayout, startParam)
		if err != nil {
			return time.Time{}, time.Time{}, apperror.Validation("invalid startDate, expected YYYY-MM-DD", map[string]string{"startDate": startParam})
		}
		start = t
	}
	if endParam != "" {
		t, err := time.Parse(dateLayout, endParam)
		if err != nil {
			return time.Time{}, time.Time{}, apperror.Validation("invalid endDate, expected YYYY-MM-DD", map[string]string{"endDate": endParam})
		}
		end = t
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, apperror.BadRequest("startDate must not be after endDate")
	}
	return start, end, nil
}

// DoctorRevenue handles GET /reports/doctor-revenue. Both dates are inclusive.
func (h *Handler) DoctorRevenue(c echo.Context) error {
	start, end, err := parseRange(c.QueryParam("startDate"), c.QueryParam("endDate"), h.now())
	if err != nil {
		return err
	}

	rows, err := h.store.DoctorRevenue(c.Request().Context(), start, end.AddDate(0, 0, 1))
	if err != nil {
		return apperror.Internal(err)
	}
	if rows == nil {
		rows = []DoctorRevenue{}
	}

	return c.JSON(http.StatusOK, RevenueReport{
		StartDate: start.Format(dateLayout),
		EndDate:   end.Format(dateLayout),
		Rows:      rows,
	})
}

// PGStore is the Postgres implementation of Store.
type PGStore struct {
	q db.Querier
}

func NewPGStore(q db.Querier) *PGStore {
	return &PGStore{q: q}
}

// DoctorRevenue aggregates encounters in [from, to) per active doctor.
// Doctors without encounters appear with zero totals.
func (s *PGStore) DoctorRevenue(ctx context.Context, from, to time.Time) ([]DoctorRevenue, error) {
	rows, err := s.q.Query(ctx, `
		SELECT d.id, d.full_name, COALESCE(sp.name, ''),
		       COUNT(e.id),
		       COALESCE(SUM(i.total), 0)::float8,
		       COALESCE(AVG(e.service_fee), 0)::float8
		FROM doctors d
		LEFT JOIN specialties sp ON sp.id = d.specialty_id
		LEFT JOIN encounters e ON e.doctor_id = d.id
		     AND e.lifecycle = 'active'
		     AND e.encounter_date >= $1 AND e.encounter_date < $2
		LEFT JOIN invoices i ON i.encounter_id = e.id
		WHERE d.lifecycle = 'active'
		GROUP BY d.id, d.full_name, sp.name
		ORDER BY 5 DESC, d.full_name`, from, to)
	if err != nil {
		return nil, fmt.Errorf("doctor revenue: %w", err)
	}
	defer rows.Close()

	var out []DoctorRevenue
	for rows.Next() {
		var r DoctorRevenue
		if err := rows.Scan(&r.DoctorID, &r.DoctorName, &r.SpecialtyName,
			&r.TotalEncounters, &r.TotalRevenue, &r.AverageServiceFee); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Evaluate runs a measure query and returns each row as a column map.
func (s *PGStore) Evaluate(ctx context.Context, sql string) ([]map[string]interface{}, error) {
	rows, err := s.q.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	results, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []map[string]interface{}{}
	}
	return results, nil
}
