package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	m.IncFetch("ok")
	m.IncFetchError("timeout")
	m.IncStageItem("scrape", "ok")
	m.AddTokens(10)
	m.ObserveRequest(http.MethodGet, 200, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rec.Code)
	}
}

func TestCountersAccumulate(t *testing.T) {
	m := New()
	m.IncStageItem("generate", "ok")
	m.IncStageItem("generate", "ok")
	m.AddTokens(42)
	m.AddTokens(-1)

	if got := testutil.ToFloat64(m.StageItemsTotal.WithLabelValues("generate", "ok")); got != 2 {
		t.Fatalf("stage items=%v, want 2", got)
	}
	if got := testutil.ToFloat64(m.LLMTokensTotal); got != 42 {
		t.Fatalf("tokens=%v, want 42", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "enricher_llm_tokens_total 42") {
		t.Fatalf("exposition missing token counter:\n%s", rec.Body.String())
	}
}
