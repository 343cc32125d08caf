package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mohammed-shakir/featureinfo-service/internal/core/config"
)

func TestInit_BuildInfoDefaultsVersion(t *testing.T) {
	p := Init(config.BuildInfo{Revision: "abc123"})

	if got := sample(t, p.Gatherer(), "featureinfo_build_info", map[string]string{"version": "dev", "revision": "abc123"}); got != 1 {
		t.Fatalf("build info got=%v want=1", got)
	}
	if n, err := testutil.GatherAndCount(p.Gatherer(), "go_goroutines"); err != nil || n != 1 {
		t.Fatalf("go_goroutines n=%d err=%v", n, err)
	}
}

func TestHandler_ServesRegisteredCollectors(t *testing.T) {
	p := Init(config.BuildInfo{Version: "test"})
	layers := prometheus.NewGauge(prometheus.GaugeOpts{Name: "featureinfo_loaded_tenants", Help: "test"})
	p.Register(layers)
	layers.Set(2)

	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status got=%d want=%d", rr.Code, http.StatusOK)
	}
	body := rr.Body.String()
	for _, want := range []string{"featureinfo_loaded_tenants 2", "process_", `featureinfo_build_info{`} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in\n%s", want, body)
		}
	}
}
