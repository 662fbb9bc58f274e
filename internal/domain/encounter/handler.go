package encounter

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/encounters")

	g.POST("/complete", h.CompleteEncounter, auth.RequireRole(auth.RoleDoctor))

	read := auth.RequireRole(auth.RoleDoctor, auth.RoleReceptionist)
	g.GET("", h.ListEncounters, read)
	g.GET("/:id", h.GetEncounter, read)

	g.DELETE("/:id", h.DeleteEncounter, auth.RequireRole(auth.RoleAdmin))
}

func (h *Handler) CompleteEncounter(c echo.Context) error {
	caller := auth.SessionFromContext(c.Request().Context())
	if caller == nil {
		return apperror.Unauthorized("authentication required")
	}
	var req CompleteRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("invalid request body")
	}
	out, err := h.svc.CompleteEncounter(c.Request().Context(), caller.AccountID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) ListEncounters(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := map[string]string{}
	for _, k := range []string{"doctor_id", "patient_id"} {
		if v := c.QueryParam(k); v != "" {
			params[k] = v
		}
	}
	items, total, err := h.svc.SearchEncounters(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Encounter{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetEncounter(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.BadRequest("invalid id")
	}
	ctx := c.Request().Context()
	e, err := h.svc.GetEncounter(ctx, auth.SessionFromContext(ctx), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) DeleteEncounter(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.BadRequest("invalid id")
	}
	if err := h.svc.DeleteEncounter(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
