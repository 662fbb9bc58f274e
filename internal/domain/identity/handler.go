package identity

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

// SessionIssuer signs a replacement token once a Patient links a profile.
type SessionIssuer interface {
	Issue(s auth.Session) (string, time.Time, error)
}

type Handler struct {
	svc    *Service
	tokens SessionIssuer
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// SetSessionIssuer enables token re-issue on POST /patients/me. Without it
// the response asks the client to sign in again.
func (h *Handler) SetSessionIssuer(tokens SessionIssuer) { h.tokens = tokens }

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := []string{auth.RoleReceptionist, auth.RoleDoctor}

	// Patients
	p := api.Group("/patients")
	p.GET("", h.ListPatients, auth.RequireRole(staff...))
	p.GET("/:id", h.GetPatient, auth.RequireRole(auth.RoleReceptionist, auth.RoleDoctor, auth.RolePatient))
	p.POST("", h.CreatePatient, auth.RequireRole(auth.RoleReceptionist))
	p.POST("/me", h.CreateOwnProfile, auth.RequireRole(auth.RolePatient))
	p.PUT("/:id", h.UpdatePatient, auth.RequireRole(auth.RoleReceptionist))
	p.DELETE("/:id", h.DeletePatient, auth.RequireRole(auth.RoleAdmin))

	// Doctors
	d := api.Group("/doctors")
	d.GET("", h.ListDoctors, auth.RequireRole(staff...))
	d.GET("/:id", h.GetDoctor, auth.RequireRole(staff...))
	d.POST("", h.CreateDoctor, auth.RequireRole(auth.RoleAdmin))
	d.PUT("/:id", h.UpdateDoctor, auth.RequireRole(auth.RoleAdmin))
	d.DELETE("/:id", h.DeleteDoctor, auth.RequireRole(auth.RoleAdmin))

	// Specialties
	s := api.Group("/specialties")
	s.GET("", h.ListSpecialties, auth.RequireRole(staff...))
	s.GET("/:id", h.GetSpecialty, auth.RequireRole(staff...))
	s.POST("", h.CreateSpecialty, auth.RequireRole(auth.RoleAdmin))
	s.PUT("/:id", h.UpdateSpecialty, auth.RequireRole(auth.RoleAdmin))
	s.DELETE("/:id", h.DeleteSpecialty, auth.RequireRole(auth.RoleAdmin))
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperror.BadRequest("invalid id")
	}
	return id, nil
}

func queryParams(c echo.Context, keys ...string) map[string]string {
	params := map[string]string{}
	for _, k := range keys {
		if v := c.QueryParam(k); v != "" {
			params[k] = v
		}
	}
	return params
}

// -- Patient handlers --

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.SearchPatients(c.Request().Context(), queryParams(c, "name", "phone"), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Patient{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	p, err := h.svc.GetPatientFor(ctx, auth.SessionFromContext(ctx), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var req PatientRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("invalid request body")
	}
	p, err := h.svc.CreatePatient(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) CreateOwnProfile(c echo.Context) error {
	ctx := c.Request().Context()
	s := auth.SessionFromContext(ctx)
	if s == nil {
		return apperror.Unauthorized("authentication required")
	}
	var req PatientRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("invalid request body")
	}
	p, err := h.svc.CreateOwnProfile(ctx, s.AccountID, req)
	if err != nil {
		return err
	}

	// The caller's token predates the link and has no patient_id.
	resp := OwnProfileResponse{Patient: p, ReloginRequired: true}
	if h.tokens != nil {
		next := auth.Session{AccountID: s.AccountID, Username: s.Username, Role: s.Role, PatientID: &p.ID}
		token, expiresAt, err := h.tokens.Issue(next)
		if err != nil {
			return apperror.Internal(err)
		}
		resp = OwnProfileResponse{Patient: p, Token: token, ExpiresAt: &expiresAt}
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req PatientRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("invalid request body")
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatient(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "patient deleted"})
}

// -- Doctor handlers --

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.SearchDoctors(c.Request().Context(), queryParams(c, "specialty_id", "name"), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Doctor{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) CreateDoctor(c echo.Context) error {
	var req DoctorCreateRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("invalid request body")
	}
	d, err := h.svc.CreateDoctor(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) UpdateDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req DoctorUpdateRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("invalid request body")
	}
	d, err := h.svc.UpdateDoctor(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDoctor(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "doctor deleted"})
}

// -- Specialty handlers --

func (h *Handler) ListSpecialties(c echo.Context) error {
	items, err := h.svc.ListSpecialties(c.Request().Context())
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Specialty{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetSpecialty(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	sp, err := h.svc.GetSpecialty(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sp)
}

func (h *Handler) CreateSpecialty(c echo.Context) error {
	var req SpecialtyRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("invalid request body")
	}
	sp, err := h.svc.CreateSpecialty(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, sp)
}

func (h *Handler) UpdateSpecialty(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req SpecialtyRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("invalid request body")
	}
	sp, err := h.svc.UpdateSpecialty(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sp)
}

func (h *Handler) DeleteSpecialty(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteSpecialty(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "specialty deleted"})
}
