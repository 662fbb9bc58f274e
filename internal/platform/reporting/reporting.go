// Package reporting serves the Admin reports: revenue per doctor over a date
// range and a fixed set of predefined SQL measures.
package reporting

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/auth"
)

// MeasureDefinition defines a reporting measure with its SQL query.
type MeasureDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SQL         string `json:"-"`
}

// MeasureReport holds the results of evaluating a measure.
type MeasureReport struct {
	MeasureID   string                   `json:"measure_id"`
	MeasureName string                   `json:"measure_name"`
	GeneratedAt time.Time                `json:"generated_at"`
	Results     []map[string]interface{} `json:"results"`
}

// PredefinedMeasures is the list of available reporting measures.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "appointments-by-status",
		Name:        "Appointments by Status",
		Description: "Number of active appointments grouped by status",
		SQL: `SELECT status, COUNT(*) AS total FROM appointments
			WHERE lifecycle = 'active' GROUP BY status ORDER BY total DESC`,
	},
	{
		ID:          "low-stock",
		Name:        "Low Stock",
		Description: "Active drugs with ten or fewer units on hand",
		SQL: `SELECT d.id, d.name, d.unit, COALESCE(s.quantity_available, 0) AS quantity_available
			FROM drugs d LEFT JOIN drug_stock s ON s.drug_id = d.id
			WHERE d.lifecycle = 'active' AND COALESCE(s.quantity_available, 0) <= 10
			ORDER BY quantity_available, d.name`,
	},
	{
		ID:          "unpaid-invoices",
		Name:        "Unpaid Invoices",
		Description: "Count and outstanding amount of unpaid invoices",
		SQL: `SELECT COUNT(*) AS total, COALESCE(SUM(total), 0)::float8 AS outstanding
			FROM invoices WHERE status = 'unpaid'`,
	},
	{
		ID:          "patient-count",
		Name:        "Patient Count",
		Description: "Active patients, split by whether they have a linked account",
		SQL: `SELECT COUNT(*) AS total, COUNT(account_id) AS with_account
			FROM patients WHERE lifecycle = 'active'`,
	},
}

// FindMeasure looks up a measure by ID.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}

// Store runs report queries.
type Store interface {
	DoctorRevenue(ctx context.Context, from, to time.Time) ([]DoctorRevenue, error)
	Evaluate(ctx context.Context, sql string) ([]map[string]interface{}, error)
}

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	store Store
	now   func() time.Time
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store, now: time.Now}
}

// RegisterRoutes registers the reporting API routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/reports", auth.RequireRole(auth.RoleAdmin))
	g.GET("/doctor-revenue", h.DoctorRevenue)
	g.GET("/measures", h.ListMeasures)
	g.GET("/measures/:id/evaluate", h.EvaluateMeasure)
}

// ListMeasures returns all available measure definitions.
func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

// EvaluateMeasure executes a measure's SQL and returns the results.
func (h *Handler) EvaluateMeasure(c echo.Context) error {
	measure := FindMeasure(c.Param("id"))
	if measure == nil {
		return apperror.NotFound("measure", c.Param("id"))
	}

	results, err := h.store.Evaluate(c.Request().Context(), measure.SQL)
	if err != nil {
		return apperror.Internal(err)
	}

	return c.JSON(http.StatusOK, MeasureReport{
		MeasureID:   measure.ID,
		MeasureName: measure.Name,
		GeneratedAt: h.now().UTC(),
		Results:     results,
	})
}
