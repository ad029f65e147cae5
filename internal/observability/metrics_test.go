package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	jobmetrics "github.com/pricewatch/pricewatch/internal/jobs"
)

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	jobs := jobmetrics.NewMetrics(metrics.Registerer())
	_ = jobs.Track("price_snapshot").End(nil)
	metrics.CountDenial("product", "add")

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	metrics.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	body := rr.Body.String()
	if !strings.Contains(body, "pricewatch_jobs_total") {
		t.Fatalf("expected body to contain pricewatch_jobs_total, got: %s", body)
	}
	if !strings.Contains(body, "pricewatch_authz_denials_total") {
		t.Fatalf("expected body to contain pricewatch_authz_denials_total, got: %s", body)
	}
}

func TestMetricsMiddlewareCountsRequests(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/products", nil))

	exp := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(exp, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !strings.Contains(exp.Body.String(), `code="418"`) {
		t.Fatalf("expected a 418 sample in metrics output, got: %s", exp.Body.String())
	}
}
