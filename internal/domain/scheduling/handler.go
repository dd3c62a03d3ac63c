package scheduling

import (
	"net/http"
	"strconv"
	"strings"

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

// UpdateStatusRequest carries the version the caller read. When Version is
// omitted the If-Match header is used.
type UpdateStatusRequest struct {
	Status  string `json:"status" validate:"required"`
	Version int    `json:"version" validate:"omitempty,min=1"`
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/appointments")

	staff := auth.RequireRole(auth.RoleAdmin, auth.RoleEmployee, auth.RoleDoctor)
	g.GET("", h.List, staff)
	g.GET("/status/:status", h.ListByStatus, staff)
	g.GET("/doctor/:doctorId", h.ListByDoctor, staff)
	g.GET("/patient/:patientId", h.ListByPatient, auth.RequireRole(auth.Roles...))
	g.GET("/:id", h.Get, auth.RequireRole(auth.Roles...))

	g.POST("", h.Create, auth.RequireRole(auth.RoleAdmin, auth.RoleEmployee, auth.RolePatient))

	office := auth.RequireRole(auth.RoleAdmin, auth.RoleEmployee)
	g.PUT("/:id/status", h.UpdateStatus, office)
	g.DELETE("/:id", h.Cancel, office)
}

func (h *Handler) List(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), p, pg.Limit, pg.Offset)
	return page(c, items, total, pg, err)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}
	patientID, err := validation.PathUUID(c, "patientId")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), p, patientID, pg.Limit, pg.Offset)
	return page(c, items, total, pg, err)
}

func (h *Handler) ListByDoctor(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}
	doctorID, err := validation.PathUUID(c, "doctorId")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByDoctor(c.Request().Context(), p, doctorID, pg.Limit, pg.Offset)
	return page(c, items, total, pg, err)
}

func (h *Handler) ListByStatus(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByStatus(c.Request().Context(), p, c.Param("status"), pg.Limit, pg.Offset)
	return page(c, items, total, pg, err)
}

func (h *Handler) Get(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}
	id, err := validation.PathUUID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.Get(c.Request().Context(), p, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return respond(c, http.StatusOK, a)
}

func (h *Handler) Create(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}
	var req CreateRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	a, err := h.svc.Create(c.Request().Context(), p, req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return respond(c, http.StatusCreated, a)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}
	id, err := validation.PathUUID(c, "id")
	if err != nil {
		return err
	}
	var req UpdateStatusRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	version := req.Version
	if version == 0 {
		if version, err = requestVersion(c); err != nil {
			return err
		}
	}
	a, err := h.svc.UpdateStatus(c.Request().Context(), p, id, req.Status, version)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return respond(c, http.StatusOK, a)
}

func (h *Handler) Cancel(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}
	id, err := validation.PathUUID(c, "id")
	if err != nil {
		return err
	}
	version, err := requestVersion(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Cancel(c.Request().Context(), p, id, version)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return respond(c, http.StatusOK, a)
}

// respond writes a with its version as a strong ETag.
func respond(c echo.Context, code int, a *Appointment) error {
	c.Response().Header().Set("ETag", strconv.Quote(strconv.Itoa(a.VersionID)))
	return c.JSON(code, a)
}

func page(c echo.Context, items []*Appointment, total int, pg pagination.Params, err error) error {
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewPage(items, total, pg))
}

// requestVersion reads the expected version from If-Match or ?version=.
// Absent means 0, which the service rejects.
func requestVersion(c echo.Context) (int, error) {
	raw := strings.TrimSpace(c.Request().Header.Get("If-Match"))
	raw = strings.TrimPrefix(raw, "W/")
	raw = strings.Trim(raw, `"`)
	if raw == "" {
		raw = c.QueryParam("version")
	}
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid version")
	}
	return v, nil
}
