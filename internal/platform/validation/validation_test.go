package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ehr/records/internal/platform/apperr"
)

type signup struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"required,oneof=Admin Doctor Employee Patient"`
	Name     string `json:"user_name" validate:"notblank"`
}

func TestValidate_Messages(t *testing.T) {
	v := New()
	ok := signup{Email: "a@x.com", Password: "secret1", Role: "Patient", Name: "ana"}

	tests := []struct {
		name   string
		mutate func(s *signup)
		want   string
	}{
		{"valid", func(s *signup) {}, ""},
		{"missing email", func(s *signup) { s.Email = "" }, "email is required"},
		{"bad email", func(s *signup) { s.Email = "nope" }, "email must be a valid email"},
		{"short password", func(s *signup) { s.Password = "abc" }, "password must be at least 6 characters"},
		{"unknown role", func(s *signup) { s.Role = "Root" }, "role must be one of: Admin, Doctor, Employee, Patient"},
		{"blank name", func(s *signup) { s.Name = "   " }, "user_name is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ok
			tt.mutate(&s)
			err := v.Validate(&s)
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if apperr.KindOf(err) != apperr.KindValidation {
				t.Errorf("expected validation kind, got %s", apperr.KindOf(err))
			}
			if err.Error() != tt.want {
				t.Errorf("expected %q, got %q", tt.want, err.Error())
			}
		})
	}
}

func bindRequest(body string) (echo.Context, *signup) {
	e := echo.New()
	e.Validator = New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return e.NewContext(req, httptest.NewRecorder()), &signup{}
}

func TestBind(t *testing.T) {
	c, dst := bindRequest(`{"email":"a@x.com","password":"secret1","role":"Patient","user_name":"ana"}`)
	if err := Bind(c, dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dst.Email != "a@x.com" {
		t.Errorf("expected bound email, got %q", dst.Email)
	}

	c, dst = bindRequest(`{"email":`)
	if he, ok := Bind(c, dst).(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest || he.Message != "invalid request body" {
		t.Errorf("expected 400 for malformed body, got %v", he)
	}

	c, dst = bindRequest(`{"email":"a@x.com","password":"abc","role":"Patient","user_name":"ana"}`)
	he, ok := Bind(c, dst).(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid field, got %v", he)
	}
	if he.Message != "password must be at least 6 characters" {
		t.Errorf("unexpected message %v", he.Message)
	}
}

func TestPathUUID(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	_, err := PathUUID(c, "id")
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}

	c.SetParamValues("6f1c1f5e-2b8a-4d7e-9a51-0c7d6b2f4e10")
	id, err := PathUUID(c, "id")
	if err != nil || id.String() != "6f1c1f5e-2b8a-4d7e-9a51-0c7d6b2f4e10" {
		t.Errorf("unexpected result %s, %v", id, err)
	}
}
