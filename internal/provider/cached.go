package provider

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/mohammed-shakir/featureinfo-service/internal/cache"
	"github.com/mohammed-shakir/featureinfo-service/internal/cache/keys"
	"github.com/mohammed-shakir/featureinfo-service/internal/core/model"
	"github.com/mohammed-shakir/featureinfo-service/internal/core/observability"
)

// Keyer identifies shareable upstream requests.
type Keyer interface {
	CacheKey(req Request) (endpoint string, params url.Values, ok bool)
}

type CachedProvider interface {
	Provider
	Keyer
}

// Cached serves repeated wms payloads from the cache. Keys include the
// layer generation, so an invalidation event makes old entries unreachable.
// Cache failures are logged and fall through to the upstream.
type Cached struct {
	logger    *slog.Logger
	next      CachedProvider
	store     cache.Interface
	ttl       time.Duration
	ttlOvr    map[string]time.Duration
	opTimeout time.Duration
}

func NewCached(logger *slog.Logger, next CachedProvider, store cache.Interface, ttl, opTimeout time.Duration) *Cached {
	if opTimeout <= 0 {
		opTimeout = 150 * time.Millisecond
	}
	return &Cached{logger: logger, next: next, store: store, ttl: ttl, opTimeout: opTimeout}
}

// WithTTLOverrides sets per layer ttls keyed by layer name. A zero ttl disables caching for
// that layer.
func (c *Cached) WithTTLOverrides(ovr map[string]time.Duration) *Cached {
	c.ttlOvr = ovr
	return c
}

func (c *Cached) ttlFor(layer string) time.Duration {
	if d, ok := c.ttlOvr[layer]; ok {
		return d
	}
	return c.ttl
}

func (c *Cached) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opTimeout)
}

func (c *Cached) generation(ctx context.Context, tenant, layer string) (int64, error) {
	cctx, cancel := c.withTimeout(ctx)
	defer cancel()
	k := keys.GenerationKey(tenant, layer)
	got, err := c.store.MGet(cctx, []string{k})
	if err != nil {
		return 0, err
	}
	b, ok := got[k]
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (c *Cached) Fetch(ctx context.Context, req Request) (model.RawResult, error) {
	endpoint, params, ok := c.next.CacheKey(req)
	ttl := c.ttlFor(req.Layer)
	if !ok || ttl <= 0 {
		return c.next.Fetch(ctx, req)
	}
	gen, err := c.generation(ctx, req.Tenant, req.Layer)
	if err != nil {
		c.logger.WarnContext(ctx, "cache generation lookup failed", "err", err)
		return c.next.Fetch(ctx, req)
	}
	key := keys.Key(req.Tenant, req.Service, req.Layer, gen, endpoint, params)

	cctx, cancel := c.withTimeout(ctx)
	got, err := c.store.MGet(cctx, []string{key})
	cancel()
	if err != nil {
		c.logger.WarnContext(ctx, "cache read failed", "err", err)
	} else if b, hit := got[key]; hit {
		if res, ok := decodeEntry(b); ok {
			observability.AddCacheHits(1)
			trace.SpanFromContext(ctx).SetAttributes(observability.AttrCacheHit.Bool(true))
			return res, nil
		}
	}
	observability.AddCacheMisses(1)

	res, err := c.next.Fetch(ctx, req)
	if err != nil {
		return res, err
	}
	if res.Format == model.FormatXML || res.Format == model.FormatGeoJSON {
		cctx, cancel := c.withTimeout(ctx)
		defer cancel()
		if err := c.store.Set(cctx, key, encodeEntry(res), ttl); err != nil {
			c.logger.WarnContext(ctx, "cache write failed", "err", err)
		}
	}
	return res, nil
}

// entry layout: format \n content type \n payload
func encodeEntry(res model.RawResult) []byte {
	var b bytes.Buffer
	b.WriteString(string(res.Format))
	b.WriteByte('\n')
	b.WriteString(res.ContentType)
	b.WriteByte('\n')
	b.Write(res.Payload)
	return b.Bytes()
}

func decodeEntry(b []byte) (model.RawResult, bool) {
	format, rest, ok := bytes.Cut(b, []byte{'\n'})
	if !ok {
		return model.RawResult{}, false
	}
	ct, payload, ok := bytes.Cut(rest, []byte{'\n'})
	if !ok {
		return model.RawResult{}, false
	}
	f := model.Format(format)
	if f != model.FormatXML && f != model.FormatGeoJSON {
		return model.RawResult{}, false
	}
	return model.RawResult{Format: f, ContentType: string(ct), Payload: payload}, true
}
