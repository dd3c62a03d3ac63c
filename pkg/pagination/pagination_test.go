package pagination

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(target string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext_Defaults(t *testing.T) {
	p := paramsFor("/api/v1/patients")
	if p.Limit != DefaultLimit {
		t.Errorf("expected limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected offset 0, got %d", p.Offset)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	p := paramsFor("/api/v1/patients?limit=50&offset=10")
	if p.Limit != 50 || p.Offset != 10 {
		t.Errorf("expected 50/10, got %d/%d", p.Limit, p.Offset)
	}
}

func TestFromContext_MaxLimit(t *testing.T) {
	if p := paramsFor("/api/v1/patients?limit=500"); p.Limit != MaxLimit {
		t.Errorf("expected limit capped at %d, got %d", MaxLimit, p.Limit)
	}
}

func TestFromContext_InvalidValues(t *testing.T) {
	p := paramsFor("/api/v1/patients?limit=abc&offset=-5")
	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit, got %d", p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected offset 0, got %d", p.Offset)
	}
}

func TestNewPage(t *testing.T) {
	page := NewPage([]string{"a", "b"}, 50, Params{Limit: 20, Offset: 0})
	if page.Total != 50 || page.Limit != 20 || page.Offset != 0 || len(page.Data) != 2 {
		t.Errorf("unexpected page %+v", page)
	}
	if !page.HasMore {
		t.Error("expected has_more to be true")
	}

	last := NewPage[string](nil, 50, Params{Limit: 20, Offset: 40})
	if last.HasMore {
		t.Error("expected has_more to be false on the last page")
	}
	if last.Data == nil {
		t.Error("expected empty data slice, got nil")
	}

	body, err := json.Marshal(NewPage[int](nil, 0, Params{Limit: 20}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(body), `"data":[]`) {
		t.Errorf("expected empty array in %s", body)
	}
}

func TestParams_Window(t *testing.T) {
	tests := []struct {
		name       string
		p          Params
		n          int
		start, end int
	}{
		{"first page", Params{Limit: 2, Offset: 0}, 5, 0, 2},
		{"last partial", Params{Limit: 2, Offset: 4}, 5, 4, 5},
		{"past end", Params{Limit: 2, Offset: 9}, 5, 5, 5},
		{"empty", Params{Limit: 20}, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := tt.p.Window(tt.n)
			if start != tt.start || end != tt.end {
				t.Errorf("Window(%d) = [%d,%d), want [%d,%d)", tt.n, start, end, tt.start, tt.end)
			}
		})
	}
}
