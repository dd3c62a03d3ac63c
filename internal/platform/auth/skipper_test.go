package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestAuthSkipper(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/health", true},
		{"/health/db", true},
		{"/api/v1/auth/login", true},
		{"/api/v1/auth/register", true},
		{"/api/v1/auth/profile", false},
		{"/api/v1/patients", false},
		{"/api/v1/medical-records/:id", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			c := e.NewContext(req, httptest.NewRecorder())
			c.SetPath(tt.path)

			if got := AuthSkipper(c); got != tt.want {
				t.Errorf("AuthSkipper(%s) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestAuthSkipper_UsesRoutePattern(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/login", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/v1/patients/:id")

	if AuthSkipper(c) {
		t.Error("a public-looking URL routed to a protected pattern must not skip auth")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/register?next=/api/v1/patients", nil)
	c = e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/v1/auth/register")
	if !AuthSkipper(c) {
		t.Error("register route must skip auth regardless of query string")
	}
}
