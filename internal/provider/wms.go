package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/mohammed-shakir/featureinfo-service/internal/core/model"
	"github.com/mohammed-shakir/featureinfo-service/internal/core/observability"
	"github.com/mohammed-shakir/featureinfo-service/internal/core/ogc"
)

// WMS forwards GetFeatureInfo requests to a wms backend.
type WMS struct {
	logger     *slog.Logger
	client     *http.Client
	defaultURL string
	maxBody    int64
	startNow   func() time.Time // for tests
}

// DefaultMaxResponseBytes bounds a GetFeatureInfo payload.
const DefaultMaxResponseBytes = 16 << 20

func NewWMS(logger *slog.Logger, client *http.Client, defaultURL string) *WMS {
	return &WMS{
		logger:     logger,
		client:     client,
		defaultURL: defaultURL,
		maxBody:    DefaultMaxResponseBytes,
		startNow:   time.Now,
	}
}

// WithMaxResponseBytes sets the largest accepted payload; n <= 0 keeps
// the default.
func (w *WMS) WithMaxResponseBytes(n int64) *WMS {
	if n > 0 {
		w.maxBody = n
	}
	return w
}

// endpoint picks the layer wms_url, else the default url joined with the
// service name. The caller's Authorization header only goes to the default.
func (w *WMS) endpoint(req Request) (string, bool, error) {
	if req.Template != nil && req.Template.WMSURL != "" {
		return req.Template.WMSURL, false, nil
	}
	base := req.DefaultWMSURL
	if base == "" {
		base = w.defaultURL
	}
	if base == "" {
		return "", false, fmt.Errorf("%w: no wms url for layer %q", model.ErrConfig, req.Layer)
	}
	u, err := ogc.WMSEndpoint(base, req.Service)
	if err != nil {
		return "", false, fmt.Errorf("%w: %w", model.ErrConfig, err)
	}
	return u, true, nil
}

func formats(req Request) (model.Format, string) {
	if req.Template != nil && req.Template.InfoFormat == model.FormatGeoJSON {
		return model.FormatGeoJSON, ogc.InfoFormatJSON
	}
	return model.FormatXML, ogc.InfoFormatXML
}

// CacheKey identifies the upstream request of req. Requests forwarding the
// caller's credentials are not shareable.
func (w *WMS) CacheKey(req Request) (string, url.Values, bool) {
	endpoint, isDefault, err := w.endpoint(req)
	if err != nil || (isDefault && req.Identity.Authorization != "") {
		return "", nil, false
	}
	_, f := formats(req)
	return endpoint, ogc.BuildGetFeatureInfoParams(req.Query, req.Layer, req.Style, f), true
}

func (w *WMS) Fetch(ctx context.Context, req Request) (model.RawResult, error) {
	endpoint, isDefault, err := w.endpoint(req)
	if err != nil {
		return model.RawResult{}, err
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return model.RawResult{}, fmt.Errorf("%w: parse wms url: %w", model.ErrConfig, err)
	}

	format, infoFormat := formats(req)
	params := ogc.BuildGetFeatureInfoParams(req.Query, req.Layer, req.Style, infoFormat)
	q := u.Query()
	for k, vs := range params {
		q[k] = vs
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return model.RawResult{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", infoFormat)
	if isDefault && req.Identity.Authorization != "" {
		httpReq.Header.Set("Authorization", req.Identity.Authorization)
	}
	observability.InjectTraceHeaders(ctx, httpReq.Header)

	w.logger.DebugContext(ctx, "forward GetFeatureInfo",
		"layer", req.Layer, "url", u.Redacted())

	start := w.startNow()
	resp, err := w.client.Do(httpReq)
	observability.ObserveUpstreamLatency("wms", time.Since(start).Seconds())
	if err != nil {
		if isTimeout(ctx, err) {
			return model.RawResult{}, fmt.Errorf("%w: wms %s: %w", model.ErrTimeout, u.Host, err)
		}
		return model.RawResult{}, fmt.Errorf("%w: wms %s: %w", model.ErrUpstream, u.Host, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.RawResult{}, fmt.Errorf("%w: upstream status %d: %s", model.ErrUpstream, resp.StatusCode, string(b))
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, w.maxBody+1))
	if err == nil && int64(len(b)) > w.maxBody {
		return model.RawResult{}, fmt.Errorf("%w: wms %s: response larger than %d bytes", model.ErrUpstream, u.Host, w.maxBody)
	}
	if err != nil {
		if isTimeout(ctx, err) {
			return model.RawResult{}, fmt.Errorf("%w: read body: %w", model.ErrTimeout, err)
		}
		return model.RawResult{}, fmt.Errorf("%w: read body: %w", model.ErrUpstream, err)
	}
	return model.RawResult{Format: format, ContentType: resp.Header.Get("Content-Type"), Payload: b}, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
