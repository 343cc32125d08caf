package featureinfo

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/featureinfo-service/internal/core/router"
)

func serve(t *testing.T, h *Handler, target string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/*", router.HandleQuery(discard(), h))
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

const demoParams = "?LAYERS=a,nope&CRS=EPSG:2056&WIDTH=10&HEIGHT=10&I=5&J=5&BBOX=0,0,10,20"

func TestHandler_XML(t *testing.T) {
	h := NewHandler(discard(), newService(t, &fakeWMS{}, time.Second), HandlerOptions{RequestTimeout: time.Second})
	rr := serve(t, h, "/demo"+demoParams, nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/xml; charset=utf-8" {
		t.Fatalf("content-type=%q", ct)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`<GetFeatureInfoResponse>`,
		`<Layer name="Lakes" layername="a" layerinfo="a" displayfield="name">`,
		`<Feature id="1">`,
		`<Layer name="nope" layername="nope" layerinfo="nope" error="UnknownLayer">`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in %s", want, body)
		}
	}
}

func TestHandler_JSONViaInfoFormat(t *testing.T) {
	h := NewHandler(discard(), newService(t, &fakeWMS{}, time.Second), HandlerOptions{})
	rr := serve(t, h, "/demo"+demoParams+"&INFO_FORMAT=application/json", nil)

	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		t.Fatalf("content-type=%q", rr.Header().Get("Content-Type"))
	}
	var doc struct {
		Response struct {
			Layers []map[string]any `json:"layers"`
		} `json:"GetFeatureInfoResponse"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &doc); err != nil {
		t.Fatalf("json: %v body=%s", err, rr.Body.String())
	}
	if len(doc.Response.Layers) != 2 {
		t.Fatalf("layers=%v", doc.Response.Layers)
	}
}

func TestHandler_MapNotDefined(t *testing.T) {
	h := NewHandler(discard(), newService(t, &fakeWMS{}, time.Second), HandlerOptions{})
	rr := serve(t, h, "/other"+demoParams, nil)

	if rr.Code != http.StatusOK || !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/xml") {
		t.Fatalf("status=%d content-type=%q", rr.Code, rr.Header().Get("Content-Type"))
	}
	want := `<ServiceException code="MapNotDefined">Map &#34;other&#34; does not exist or is not permitted</ServiceException>`
	if !strings.Contains(rr.Body.String(), want) {
		t.Fatalf("body=%s", rr.Body.String())
	}
}

func TestHandler_TenantHeader(t *testing.T) {
	h := NewHandler(discard(), newService(t, &fakeWMS{}, time.Second), HandlerOptions{TenantHeader: "X-Tenant"})
	if rr := serve(t, h, "/demo"+demoParams, map[string]string{"X-Tenant": "elsewhere"}); rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d want 404", rr.Code)
	}
	if rr := serve(t, h, "/demo"+demoParams, map[string]string{"X-Tenant": "default"}); rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
}
