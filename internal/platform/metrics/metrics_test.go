package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware_RecordsRoute(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.GET("/api/v1/appointments/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/v1/appointments/:id", "200"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments/123", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/v1/appointments/:id", "200"))
	if after-before != 1 {
		t.Errorf("expected counter to increase by 1, got %v", after-before)
	}
}

func TestRecordJob(t *testing.T) {
	before := testutil.ToFloat64(jobRuns.WithLabelValues("alegeus.submit_claim", "failure"))
	RecordJob("alegeus.submit_claim", 10*time.Millisecond, errors.New("boom"))
	after := testutil.ToFloat64(jobRuns.WithLabelValues("alegeus.submit_claim", "failure"))
	if after-before != 1 {
		t.Errorf("expected failure counter +1, got %v", after-before)
	}
}

func TestRecordReconciliation_IgnoresZero(t *testing.T) {
	before := testutil.ToFloat64(reconciliation.WithLabelValues("skipped"))
	RecordReconciliation("skipped", 0)
	RecordReconciliation("skipped", 3)
	after := testutil.ToFloat64(reconciliation.WithLabelValues("skipped"))
	if after-before != 3 {
		t.Errorf("expected +3, got %v", after-before)
	}
}

func TestHandler_Exposes(t *testing.T) {
	RecordAccumulationRows("Cigna", "processed", 2)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "benefits_accumulation_rows_total") {
		t.Error("expected accumulation metric in exposition")
	}
}
