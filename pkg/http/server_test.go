package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type pingRoutes struct{}

func (pingRoutes) RegisterRoutes(e *echo.Echo) {
	e.GET("/ping/:id", func(c echo.Context) error {
		return SuccessResponse(c, map[string]string{"id": c.Param("id")})
	})
}

func TestServerExposesRequestMetrics(t *testing.T) {
	s := NewServer(pingRoutes{})

	req := httptest.NewRequest(http.MethodGet, "/ping/42", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "http_requests_total") {
		t.Fatal("http_requests_total not exported")
	}
	if !strings.Contains(body, `route="/ping/:id"`) {
		t.Fatal("route label is not the registered template")
	}
}

func TestAppErrorResponseUsesTaxonomyStatus(t *testing.T) {
	e := echo.New()

	cases := []struct {
		err    error
		status int
		body   string
	}{
		{NotFoundErrorf("no chain for %s", "NIFTY"), http.StatusNotFound, "no chain for NIFTY"},
		{BadRequestError("date must be YYYY-MM-DD"), http.StatusBadRequest, "date must be YYYY-MM-DD"},
		{UnavailableError("historical store not configured"), http.StatusServiceUnavailable, "historical store not configured"},
		{InternalError("lookup failed").WithError(http.ErrServerClosed), http.StatusInternalServerError, "lookup failed"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		if err := AppErrorResponse(e.NewContext(req, rec), tc.err); err != nil {
			t.Fatalf("respond: %v", err)
		}
		if rec.Code != tc.status {
			t.Fatalf("status = %d, want %d", rec.Code, tc.status)
		}
		if !strings.Contains(rec.Body.String(), tc.body) {
			t.Fatalf("body = %s, want %q", rec.Body.String(), tc.body)
		}
		if !strings.Contains(rec.Body.String(), `"success":false`) {
			t.Fatalf("body = %s, want failure envelope", rec.Body.String())
		}
	}
}
