package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(query string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		query  string
		limit  int
		offset int
	}{
		{"", DefaultLimit, 0},
		{"limit=5&offset=10", 5, 10},
		{"limit=500", MaxLimit, 0},
		{"limit=-1&offset=-3", DefaultLimit, 0},
		{"limit=abc", DefaultLimit, 0},
	}
	for _, tt := range tests {
		p := paramsFor(tt.query)
		if p.Limit != tt.limit || p.Offset != tt.offset {
			t.Errorf("%q: expected limit=%d offset=%d, got %+v", tt.query, tt.limit, tt.offset, p)
		}
	}
}

func TestNewResponse_HasMore(t *testing.T) {
	if !NewResponse(nil, 30, 10, 10).HasMore {
		t.Error("expected has_more for offset 10 of 30")
	}
	if NewResponse(nil, 30, 10, 20).HasMore {
		t.Error("expected no more results on last page")
	}
}

func TestWindow(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	got := Window(items, Params{Limit: 2, Offset: 3})
	if len(got) != 2 || got[0] != 4 || got[1] != 5 {
		t.Errorf("unexpected window %v", got)
	}
	if got := Window(items, Params{Limit: 2, Offset: 9}); len(got) != 0 {
		t.Errorf("expected empty window past end, got %v", got)
	}
}
