package auth

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type revokeAccountRequest struct {
	AccountID string `json:"account_id"`
}

type revocationListResponse struct {
	Count   int              `json:"count"`
	Entries []RevocationInfo `json:"entries"`
}

// RegisterRevocationRoutes registers sign-out for any caller and revocation
// management for admins.
func RegisterRevocationRoutes(g *echo.Group, list *RevocationList) {
	authGroup := g.Group("/auth")
	authGroup.POST("/logout", handleLogout(list))

	admin := authGroup.Group("", RequireRole(RoleAdmin))
	admin.POST("/revoke-account", handleRevokeAccount(list))
	admin.GET("/revocations", handleListRevocations(list))
}

// handleLogout revokes the token the request was made with.
func handleLogout(list *RevocationList) echo.HandlerFunc {
	return func(c echo.Context) error {
		s := SessionFromContext(c.Request().Context())
		if s == nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}
		list.RevokeToken(s.TokenID, s.ExpiresAt)
		return c.NoContent(http.StatusNoContent)
	}
}

func handleRevokeAccount(list *RevocationList) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req revokeAccountRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		id, err := uuid.Parse(req.AccountID)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "account_id is required")
		}
		list.RevokeAccount(id)
		return c.NoContent(http.StatusNoContent)
	}
}

func handleListRevocations(list *RevocationList) echo.HandlerFunc {
	return func(c echo.Context) error {
		entries := list.Entries()
		return c.JSON(http.StatusOK, revocationListResponse{
			Count:   len(entries),
			Entries: entries,
		})
	}
}
