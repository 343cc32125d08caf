package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/featureinfo-service/internal/core/model"
	"github.com/mohammed-shakir/featureinfo-service/internal/core/observability"
)

// receives validated query requests and serves them
type QueryHandler interface {
	HandleQuery(ctx context.Context, w http.ResponseWriter, r *http.Request, q model.QueryRequest)
}

const route = "/{service}"

// validates input query params and calls the handler; the service name is
// the wildcard part of the path
func HandleQuery(logger *slog.Logger, h QueryHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}

		q, err := ParseQueryRequest(r, chi.URLParam(r, "*"))
		if err != nil {
			logger.DebugContext(r.Context(), "rejected feature info request", "err", err)
			http.Error(sw, err.Error(), http.StatusBadRequest)
			observability.ObserveHTTP(r.Method, route, http.StatusBadRequest, time.Since(start).Seconds())
			return
		}

		h.HandleQuery(r.Context(), sw, r, q)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// parameters consumed here; anything else is forwarded to wms backends
var known = map[string]bool{
	"layers": true, "styles": true, "i": true, "j": true, "bbox": true,
	"filter": true, "filter_geom": true, "height": true, "width": true,
	"crs": true, "feature_count": true, "with_geometry": true, "with_maptip": true,
	"fi_point_tolerance": true, "fi_line_tolerance": true, "fi_polygon_tolerance": true,
	"layerattribs": true, "with_htmlcontent": true, "with_bbox": true,
	"info_format": true, "geomcentroid": true,
	// set per backend request
	"service": true, "request": true, "version": true, "query_layers": true,
}

// params is a case insensitive view of the query string and form body.
type params map[string]string

func (p params) get(k string) string { return strings.TrimSpace(p[k]) }

func (p params) number(k string, def int, required bool) (int, error) {
	v := p.get(k)
	if v == "" {
		if required {
			return 0, fmt.Errorf("missing required parameter: %s", k)
		}
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", k, err)
	}
	return n, nil
}

func (p params) flag(k string, def bool) bool {
	v := strings.ToLower(p.get(k))
	if v == "" {
		return def
	}
	return v == "true" || v == "1"
}

// ParseQueryRequest reads GET query parameters and POST form values.
func ParseQueryRequest(r *http.Request, service string) (model.QueryRequest, error) {
	if err := r.ParseForm(); err != nil {
		return model.QueryRequest{}, fmt.Errorf("parse form: %w", err)
	}
	service = strings.Trim(service, "/")
	if service == "" {
		return model.QueryRequest{}, errors.New("missing service name")
	}

	p := params{}
	extra := url.Values{}
	for k, vs := range r.Form {
		if len(vs) == 0 {
			continue
		}
		lk := strings.ToLower(k)
		if known[lk] {
			if _, dup := p[lk]; !dup {
				p[lk] = vs[0]
			}
			continue
		}
		extra[k] = vs
	}

	q := model.QueryRequest{
		Service:         service,
		CRS:             p.get("crs"),
		Filter:          p.get("filter"),
		FilterGeom:      p.get("filter_geom"),
		WithGeometry:    p.flag("with_geometry", true),
		WithMaptip:      p.flag("with_maptip", true),
		WithHTMLContent: p.flag("with_htmlcontent", true),
		WithBBox:        p.flag("with_bbox", true),
		InfoFormat:      p.get("info_format"),
		Extra:           extra,
	}
	if q.InfoFormat == "" {
		q.InfoFormat = "text/xml"
	}

	layers := splitList(p.get("layers"))
	if len(layers) == 0 {
		return model.QueryRequest{}, errors.New("missing required parameter: layers")
	}
	q.Layers = layers
	if s := p["styles"]; s != "" {
		q.Styles = strings.Split(s, ",")
	}
	if q.CRS == "" {
		return model.QueryRequest{}, errors.New("missing required parameter: crs")
	}

	var err error
	if q.Width, err = p.number("width", 0, true); err != nil {
		return model.QueryRequest{}, err
	}
	if q.Height, err = p.number("height", 0, true); err != nil {
		return model.QueryRequest{}, err
	}
	if q.FeatureCount, err = p.number("feature_count", 1, false); err != nil {
		return model.QueryRequest{}, err
	}
	if q.Tolerances.Point, err = p.number("fi_point_tolerance", 16, false); err != nil {
		return model.QueryRequest{}, err
	}
	if q.Tolerances.Line, err = p.number("fi_line_tolerance", 8, false); err != nil {
		return model.QueryRequest{}, err
	}
	if q.Tolerances.Polygon, err = p.number("fi_polygon_tolerance", 4, false); err != nil {
		return model.QueryRequest{}, err
	}

	if raw := p.get("bbox"); raw != "" {
		bb, err := parseBBOX(raw)
		if err != nil {
			return model.QueryRequest{}, fmt.Errorf("invalid bbox: %w", err)
		}
		q.BBox = &bb
	}
	if p.get("i") != "" && p.get("j") != "" {
		if q.I, err = p.number("i", 0, true); err != nil {
			return model.QueryRequest{}, err
		}
		if q.J, err = p.number("j", 0, true); err != nil {
			return model.QueryRequest{}, err
		}
		q.HasPixel = true
	}
	if q.Filter == "" && q.FilterGeom == "" && (!q.HasPixel || q.BBox == nil) {
		return model.QueryRequest{}, errors.New("either filter, filter_geom, or i and j with bbox are required")
	}

	if raw := p.get("layerattribs"); raw != "" {
		var la map[string][]string
		if err := json.Unmarshal([]byte(raw), &la); err != nil {
			return model.QueryRequest{}, fmt.Errorf("invalid LAYERATTRIBS: %w", err)
		}
		for k, v := range la {
			if v == nil {
				la[k] = []string{}
			}
		}
		q.LayerAttribs = la
	}
	return q, nil
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// wms 1.3.0 bbox: minx,miny,maxx,maxy in crs axis order
func parseBBOX(bboxParam string) (model.BBox, error) {
	parts := strings.Split(bboxParam, ",")
	if len(parts) != 4 {
		return model.BBox{}, errors.New("expected 4 comma-separated values: x1,y1,x2,y2")
	}
	var v [4]float64
	for i, s := range parts {
		f, err := parseFloat(s)
		if err != nil {
			return model.BBox{}, fmt.Errorf("value %d: %w", i+1, err)
		}
		v[i] = f
	}
	if v[2] < v[0] || v[3] < v[1] {
		return model.BBox{}, errors.New("coordinates must satisfy x2>=x1 and y2>=y1")
	}
	return model.BBox{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}, nil
}

func parseFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("parse float: %w", err)
	}
	return f, nil
}
