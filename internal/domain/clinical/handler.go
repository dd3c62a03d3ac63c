package clinical

import (
	"fmt"
	"net/http"
	"strings"
	"time"

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

// DocumentRequest is the optional body of the history document endpoint.
// Dates are RFC 3339 timestamps or plain yyyy-mm-dd days.
type DocumentRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/medical-records")
	everyone := auth.RequireRole(auth.Roles...)

	g.GET("", h.List, auth.RequireRole(auth.RoleAdmin, auth.RoleEmployee, auth.RoleDoctor))
	g.GET("/patient/:patientId", h.History, everyone)
	g.POST("/patient/:patientId/pdf", h.Document, everyone)
	g.GET("/patient/:patientId/pdf/download", h.Download, everyone)
	g.GET("/:id", h.Get, everyone)
	g.POST("", h.Create, auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor))
}

func (h *Handler) List(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), p, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewPage(items, total, pg))
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
	rec, err := h.svc.Get(c.Request().Context(), p, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, rec)
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
	rec, err := h.svc.Create(c.Request().Context(), p, req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

// History accepts ?from= and ?to=, with start_date and end_date as aliases.
func (h *Handler) History(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}
	patientID, err := validation.PathUUID(c, "patientId")
	if err != nil {
		return err
	}
	r, err := ParseDateRange(firstOf(c.QueryParam("from"), c.QueryParam("start_date")),
		firstOf(c.QueryParam("to"), c.QueryParam("end_date")))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	recs, err := h.svc.History(c.Request().Context(), p, patientID, r)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if recs == nil {
		recs = []*MedicalRecord{}
	}
	return c.JSON(http.StatusOK, recs)
}

func (h *Handler) Document(c echo.Context) error {
	var req DocumentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return h.render(c, req.StartDate, req.EndDate)
}

func (h *Handler) Download(c echo.Context) error {
	return h.render(c, c.QueryParam("start_date"), c.QueryParam("end_date"))
}

func (h *Handler) render(c echo.Context, start, end string) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}
	patientID, err := validation.PathUUID(c, "patientId")
	if err != nil {
		return err
	}
	r, err := ParseDateRange(start, end)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	doc, err := h.svc.HistoryDocument(c.Request().Context(), p, patientID, r)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", doc.FileName))
	return c.Blob(http.StatusOK, doc.ContentType, doc.Data)
}

var ErrInvalidDate = apperr.New(apperr.KindValidation, "invalid_date", "dates must be RFC 3339 or yyyy-mm-dd")

// ParseDateRange parses optional range ends. A plain day as the end covers
// that whole day.
func ParseDateRange(start, end string) (DateRange, error) {
	var r DateRange
	if s := strings.TrimSpace(start); s != "" {
		t, _, err := parseDate(s)
		if err != nil {
			return r, err
		}
		r.From = &t
	}
	if s := strings.TrimSpace(end); s != "" {
		t, dayOnly, err := parseDate(s)
		if err != nil {
			return r, err
		}
		if dayOnly {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		r.To = &t
	}
	if !r.valid() {
		return r, ErrInvalidDateRange
	}
	return r, nil
}

func parseDate(s string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), false, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, ErrInvalidDate
}

func firstOf(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
