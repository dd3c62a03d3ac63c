package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths are route patterns reachable without a bearer token.
var publicPaths = map[string]bool{
	"/health":               true,
	"/health/db":            true,
	"/api/v1/auth/login":    true,
	"/api/v1/auth/register": true,
}

// AuthSkipper returns true for requests whose matched route should skip
// authentication. The raw request URL is not consulted.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}
