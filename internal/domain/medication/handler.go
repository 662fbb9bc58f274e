package medication

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
	pharmacy := auth.RequireRole(auth.RoleDoctor)

	drugs := api.Group("/drugs")
	drugs.GET("", h.ListDrugs, pharmacy)
	drugs.GET("/:id", h.GetDrug, pharmacy)
	drugs.POST("", h.CreateDrug, pharmacy)
	drugs.PUT("/:id", h.UpdateDrug, pharmacy)
	drugs.DELETE("/:id", h.DeleteDrug, auth.RequireRole(auth.RoleAdmin))

	stock := api.Group("/stock", pharmacy)
	stock.GET("", h.ListStock)
	stock.POST("/adjust", h.AdjustStock)
}

func (h *Handler) ListDrugs(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := map[string]string{}
	if v := c.QueryParam("name"); v != "" {
		params["name"] = v
	}
	items, total, err := h.svc.SearchDrugs(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Drug{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetDrug(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.BadRequest("invalid id")
	}
	d, err := h.svc.GetDrug(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) CreateDrug(c echo.Context) error {
	var req DrugRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("invalid request body")
	}
	d, err := h.svc.CreateDrug(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) UpdateDrug(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.BadRequest("invalid id")
	}
	var req DrugRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("invalid request body")
	}
	d, err := h.svc.UpdateDrug(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDrug(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.BadRequest("invalid id")
	}
	if err := h.svc.DeleteDrug(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "drug deleted"})
}

func (h *Handler) ListStock(c echo.Context) error {
	items, err := h.svc.ListStock(c.Request().Context())
	if err != nil {
		return err
	}
	if items == nil {
		items = []*StockLevel{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) AdjustStock(c echo.Context) error {
	var req AdjustRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("invalid request body")
	}
	res, err := h.svc.AdjustStock(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}
