package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestLoggerSkipsHealthAndWS(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	e := echo.New()
	e.Use(Logger(logger))
	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	e.GET("/health", ok)
	e.GET("/ws", ok)
	e.GET("/api/v1/patients", ok)

	do := func(path string) {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
	}

	do("/health")
	do("/ws")
	if buf.Len() != 0 {
		t.Fatalf("skipped paths logged: %s", buf.String())
	}

	do("/api/v1/patients")
	if !strings.Contains(buf.String(), "/api/v1/patients") {
		t.Errorf("request not logged: %s", buf.String())
	}
}

func TestRecoveryTurnsPanicInto500(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	e := echo.New()
	e.Use(Recovery(logger))
	e.GET("/", func(c echo.Context) error { panic("boom") })

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
	if !strings.Contains(buf.String(), "panic recovered") || !strings.Contains(buf.String(), "boom") {
		t.Errorf("panic not logged: %s", buf.String())
	}
}
