package identity

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/records/internal/platform/apperr"
	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/internal/platform/validation"
	"github.com/ehr/records/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts auth, patient and doctor routes on api. loginMW
// wraps only the login route.
func (h *Handler) RegisterRoutes(api *echo.Group, loginMW ...echo.MiddlewareFunc) {
	api.POST("/auth/login", h.Login, loginMW...)
	api.POST("/auth/register", h.Register)
	api.GET("/auth/profile", h.Profile)

	staff := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor, auth.RoleEmployee))
	staff.GET("/patients", h.ListPatients)
	staff.GET("/patients/search", h.SearchPatients)

	api.GET("/patients/:id", h.GetPatient, auth.RequireRole(auth.Roles...))
	api.PUT("/patients/:id", h.UpdatePatient, auth.RequireRole(auth.RoleAdmin, auth.RoleEmployee, auth.RolePatient))

	office := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleEmployee))
	office.POST("/patients", h.CreatePatient)
	office.DELETE("/patients/:id", h.DeletePatient)

	api.GET("/doctors/:id", h.GetDoctor, auth.RequireRole(auth.RoleAdmin, auth.RoleEmployee, auth.RoleDoctor))
}

// -- Auth Handlers --

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.Register(c.Request().Context(), req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) Profile(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}
	u, err := h.svc.Profile(c.Request().Context(), p)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, u)
}

// -- Patient Handlers --

func (h *Handler) ListPatients(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatients(c.Request().Context(), p, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewPage(items, total, pg))
}

func (h *Handler) SearchPatients(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.SearchPatients(c.Request().Context(), p, c.QueryParam("term"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewPage(items, total, pg))
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}
	id, err := validation.PathUUID(c, "id")
	if err != nil {
		return err
	}
	rec, err := h.svc.GetPatient(c.Request().Context(), p, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}
	var req PatientRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.CreatePatient(c.Request().Context(), p, req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}
	id, err := validation.PathUUID(c, "id")
	if err != nil {
		return err
	}
	var req PatientRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	rec, err := h.svc.UpdatePatient(c.Request().Context(), p, id, req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}
	id, err := validation.PathUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatient(c.Request().Context(), p, id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Doctor Handlers --

func (h *Handler) GetDoctor(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}
	id, err := validation.PathUUID(c, "id")
	if err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), p, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}
