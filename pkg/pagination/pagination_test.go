package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(t *testing.T, query string) Params {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest("GET", "/?"+query, nil)
	rec := httptest.NewRecorder()
	return FromContext(e.NewContext(req, rec))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", DefaultLimit, 0},
		{"limit=50&offset=10", 50, 10},
		{"limit=0", DefaultLimit, 0},
		{"limit=-5", DefaultLimit, 0},
		{"limit=500", MaxLimit, 0},
		{"offset=-1", DefaultLimit, 0},
		{"limit=abc&offset=xyz", DefaultLimit, 0},
	}
	for _, tt := range tests {
		p := paramsFor(t, tt.query)
		if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
			t.Errorf("query %q: got limit=%d offset=%d, want limit=%d offset=%d",
				tt.query, p.Limit, p.Offset, tt.wantLimit, tt.wantOffset)
		}
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]int{1, 2, 3}, 10, 3, 0)
	if !r.HasMore {
		t.Error("expected HasMore at offset 0 of 10")
	}
	r = NewResponse([]int{1}, 10, 3, 9)
	if r.HasMore {
		t.Error("expected no more past the last page")
	}
}
