package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"
	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/featureinfo-service/internal/auth"
	"github.com/mohammed-shakir/featureinfo-service/internal/cache/redisstore"
	"github.com/mohammed-shakir/featureinfo-service/internal/core/server"
	"github.com/mohammed-shakir/featureinfo-service/internal/featureinfo"
	"github.com/mohammed-shakir/featureinfo-service/internal/invalidation"
	"github.com/mohammed-shakir/featureinfo-service/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/featureinfo-service/internal/provider"
	"github.com/mohammed-shakir/featureinfo-service/internal/render"
	"github.com/mohammed-shakir/featureinfo-service/internal/tenant"
)

const tenantTmpl = `
config:
  default_wms_url: %s/ows/
resources:
  wms_services:
    - name: demo
      root_layer:
        name: demo
        layers:
          - name: lakes
            title: Lakes
            display_field: name
            attributes:
              - name: name
                alias: Name
              - name: depth
                format: ".2f"
          - name: roads
permissions:
  roles:
    - role: public
      services:
        - name: demo
          layers:
            - name: demo
            - name: lakes
              attributes: [name, depth]
            - name: roads
`

type stack struct {
	router   http.Handler
	upstream atomic.Int32
	consumer *kafkaconsumer.Consumer
}

func newStack(t *testing.T) *stack {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := &stack{}

	wms := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.upstream.Add(1)
		if r.URL.Path != "/ows/demo" {
			http.NotFound(w, r)
			return
		}
		layer := r.URL.Query().Get("QUERY_LAYERS")
		w.Header().Set("Content-Type", "text/xml")
		if layer == "roads" {
			_, _ = io.WriteString(w, `<ServiceExceptionReport><ServiceException>boom</ServiceException></ServiceExceptionReport>`)
			return
		}
		fmt.Fprintf(w, `<GetFeatureInfoResponse><Layer name=%q>
<Feature id="7"><Attribute name="name" value="Greifensee"/><Attribute name="depth" value="32.4"/><Attribute name="internal" value="x"/></Feature>
</Layer></GetFeatureInfoResponse>`, layer)
	}))
	t.Cleanup(wms.Close)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "default.yaml"), []byte(fmt.Sprintf(tenantTmpl, wms.URL)), 0o600); err != nil {
		t.Fatal(err)
	}
	registry := tenant.NewRegistry(logger, dir)

	mr := miniredis.RunT(t)
	store, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	sources, err := render.NewSources("", 16)
	if err != nil {
		t.Fatal(err)
	}
	wmsProvider := provider.NewCached(logger, provider.NewWMS(logger, wms.Client(), "http://unused/"), store, time.Minute, time.Second)
	dispatcher := provider.NewDispatcher(logger, wmsProvider, provider.NewSQL(logger, "", 1), provider.DefaultModules())
	svc, err := featureinfo.New(logger, registry, dispatcher, sources, nil, featureinfo.Options{LayerTimeout: 2 * time.Second})
	if err != nil {
		t.Fatal(err)
	}

	s.router = server.NewRouter(logger, server.Deps{
		Handler:  featureinfo.NewHandler(logger, svc, featureinfo.HandlerOptions{RequestTimeout: 5 * time.Second}),
		Verifier: auth.NewVerifier("", ""),
	})
	s.consumer, err = kafkaconsumer.New(kafkaconsumer.Config{}, logger, nil, kafkaconsumer.Deps{
		Cache: store, Tenants: registry, Purge: sources.Purge,
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func (s *stack) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

const query = "/demo?SERVICE=WMS&REQUEST=GetFeatureInfo&LAYERS=lakes,roads&CRS=EPSG:2056" +
	"&WIDTH=100&HEIGHT=100&I=50&J=50&BBOX=2690000,1240000,2690100,1240100"

func TestEndToEnd_XMLResponse(t *testing.T) {
	s := newStack(t)
	rr := s.get(t, query)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{
		`<Layer name="Lakes" layername="lakes" layerinfo="lakes" displayfield="name">`,
		`<Feature id="7">`,
		`<Attribute name="Name" value="Greifensee" attrname="name"`,
		`value="32.40"`,
		`<Layer name="roads" layername="roads" layerinfo="roads" error="UpstreamError">`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
	if strings.Contains(body, "internal") {
		t.Fatalf("unconfigured attribute leaked:\n%s", body)
	}
}

func TestEndToEnd_CacheAndInvalidation(t *testing.T) {
	s := newStack(t)
	q := "/demo?LAYERS=lakes&CRS=EPSG:2056&WIDTH=100&HEIGHT=100&I=50&J=50&BBOX=0,0,100,100&INFO_FORMAT=application/json"

	first := s.get(t, q)
	second := s.get(t, q)
	if first.Body.String() != second.Body.String() {
		t.Fatalf("cached response differs:\n%s\n%s", first.Body.String(), second.Body.String())
	}
	if n := s.upstream.Load(); n != 1 {
		t.Fatalf("upstream calls=%d want 1", n)
	}
	var doc map[string]any
	if err := json.Unmarshal(first.Body.Bytes(), &doc); err != nil {
		t.Fatalf("json: %v", err)
	}

	ev, _ := json.Marshal(invalidation.Event{Version: 1, Op: invalidation.OpUpdate, Tenant: "default", Layer: "lakes", TS: time.Now().UTC()})
	if err := s.consumer.ProcessOne(t.Context(), &sarama.ConsumerMessage{Value: ev}); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	s.get(t, q)
	if n := s.upstream.Load(); n != 2 {
		t.Fatalf("upstream calls=%d want 2 after invalidation", n)
	}
}
