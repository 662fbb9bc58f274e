package account

import (
	"net/http"
	"strconv"

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
	g := api.Group("/accounts")

	// Public
	g.POST("/register", h.Register)
	g.POST("/role-login", h.RoleLogin)

	g.GET("/me", h.Me, auth.RequireRole(auth.RoleReceptionist, auth.RoleDoctor, auth.RolePatient))

	// Self or admin
	g.GET("/:id", h.GetAccount, auth.RequireSelfOrRole("id", auth.RoleAdmin))
	g.PATCH("/:id/password", h.ChangePassword, auth.RequireSelfOrRole("id", auth.RoleAdmin))

	admin := g.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.GET("", h.ListAccounts)
	admin.POST("", h.CreateAccount)
	admin.PUT("/:id", h.UpdateAccount)
	admin.PATCH("/:id/active", h.SetActive)
	admin.DELETE("/:id", h.DeactivateAccount)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperror.BadRequest("invalid id")
	}
	return id, nil
}

func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("invalid request body")
	}
	a, err := h.svc.Register(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) RoleLogin(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("invalid request body")
	}
	resp, err := h.svc.Login(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) Me(c echo.Context) error {
	s := auth.SessionFromContext(c.Request().Context())
	if s == nil {
		return apperror.Unauthorized("authentication required")
	}
	a, err := h.svc.GetAccount(c.Request().Context(), s.AccountID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAccounts(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := map[string]string{}
	for _, k := range []string{"role", "username", "lifecycle"} {
		if v := c.QueryParam(k); v != "" {
			params[k] = v
		}
	}
	items, total, err := h.svc.SearchAccounts(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Account{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) CreateAccount(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("invalid request body")
	}
	a, err := h.svc.CreateAccount(c.Request().Context(), req.Username, req.Password, req.Role)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAccount(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAccount(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateAccount(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("invalid request body")
	}
	a, err := h.svc.UpdateAccount(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ChangePassword(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req PasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("invalid request body")
	}
	if err := h.svc.ChangePassword(c.Request().Context(), id, req.Password); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "password updated"})
}

// SetActive handles PATCH /accounts/:id/active?value=true|false.
func (h *Handler) SetActive(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	active, err := strconv.ParseBool(c.QueryParam("value"))
	if err != nil {
		return apperror.BadRequest("value must be true or false")
	}
	a, err := h.svc.SetActive(c.Request().Context(), auth.SessionFromContext(c.Request().Context()), id, active)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

// DeactivateAccount handles DELETE; accounts are locked, not removed.
func (h *Handler) DeactivateAccount(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if _, err := h.svc.SetActive(c.Request().Context(), auth.SessionFromContext(c.Request().Context()), id, false); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "account deactivated"})
}
