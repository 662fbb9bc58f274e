package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type route struct {
	method string
	path   string
}

// publicRoutes bypass authentication. Matching is on the registered route
// pattern and method, so /api/v1/accounts/:id never matches here.
var publicRoutes = map[route]bool{
	{http.MethodGet, "/health"}:                      true,
	{http.MethodGet, "/health/db"}:                   true,
	{http.MethodGet, "/metrics"}:                     true,
	{http.MethodPost, "/api/v1/accounts/register"}:   true,
	{http.MethodPost, "/api/v1/accounts/role-login"}: true,
}

// AuthSkipper is the JWTConfig.Skipper used by the server.
func AuthSkipper(c echo.Context) bool {
	return IsPublicRoute(c.Request().Method, c.Path())
}

// IsPublicRoute reports whether method and route pattern name a public
// endpoint. HEAD is treated as GET.
func IsPublicRoute(method, path string) bool {
	if method == http.MethodHead {
		method = http.MethodGet
	}
	return publicRoutes[route{method, path}]
}
