// Package featureinfo runs a feature info query end to end: resolve the
// requested layers, fetch every layer concurrently, normalize, process and
// render, then aggregate the outcomes in resolved order.
package featureinfo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mohammed-shakir/featureinfo-service/internal/attribute"
	"github.com/mohammed-shakir/featureinfo-service/internal/auth"
	"github.com/mohammed-shakir/featureinfo-service/internal/core/model"
	"github.com/mohammed-shakir/featureinfo-service/internal/core/observability"
	"github.com/mohammed-shakir/featureinfo-service/internal/layertree"
	"github.com/mohammed-shakir/featureinfo-service/internal/logger"
	"github.com/mohammed-shakir/featureinfo-service/internal/provider"
	"github.com/mohammed-shakir/featureinfo-service/internal/render"
	"github.com/mohammed-shakir/featureinfo-service/internal/tenant"
)

type Tenants interface {
	Get(name string) (*tenant.Tenant, error)
}

type Options struct {
	LayerTimeout      time.Duration
	MaxWorkers        int
	TemplateCacheSize int
}

// Query is one validated request of one caller.
type Query struct {
	Tenant   string
	Service  string
	Request  model.QueryRequest
	Identity auth.Identity
}

type Service struct {
	logger   *slog.Logger
	tenants  Tenants
	provider provider.Provider
	sources  *render.Sources
	// indexed by transform_image_urls
	engines [2]*render.Engine
	opts    Options
}

// New wires the pipeline. embed may be nil to keep image urls as links.
func New(logger *slog.Logger, tenants Tenants, p provider.Provider, sources *render.Sources, embed render.Embedder, opts Options) (*Service, error) {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 8
	}
	if opts.LayerTimeout <= 0 {
		opts.LayerTimeout = 20 * time.Second
	}
	s := &Service{logger: logger, tenants: tenants, provider: p, sources: sources, opts: opts}
	for i, transform := range []bool{false, true} {
		var e render.Embedder
		if transform {
			e = embed
		}
		eng, err := render.NewEngine(opts.TemplateCacheSize, render.NewValueRenderer(render.ValueOptions{TransformImageURLs: transform}, e))
		if err != nil {
			return nil, err
		}
		s.engines[i] = eng
	}
	return s, nil
}

func (s *Service) engine(transform bool) *render.Engine {
	if transform {
		return s.engines[1]
	}
	return s.engines[0]
}

// Execute answers q. Only request level problems are returned as errors:
// an unknown tenant, or a service that does not exist or is not permitted
// (ErrMapNotDefined). Everything else ends up in a per layer outcome.
func (s *Service) Execute(ctx context.Context, q Query) (*ResolvedQuery, error) {
	t, err := s.tenants.Get(q.Tenant)
	if err != nil {
		return nil, err
	}
	tree, ok := t.Service(q.Service)
	perm, permitted := t.Permissions.For(q.Identity, q.Service)
	if !ok || !permitted {
		return nil, fmt.Errorf("%w: Map %q does not exist or is not permitted", model.ErrMapNotDefined, q.Service)
	}

	ctx = logger.WithService(logger.WithTenant(ctx, q.Tenant), q.Service)
	resolved := tree.Resolve(q.Request.Layers, perm, layertree.Options{
		PermissionOrder: t.Settings.UsePermissionAttributeOrder,
	})

	rq := &ResolvedQuery{
		Tenant:    q.Tenant,
		Service:   q.Service,
		Requested: q.Request.Layers,
		Outcomes:  make([]Outcome, len(resolved)),
	}
	run := &layerRun{svc: s, tenant: t, query: q}

	jobs := make(chan int)
	workerN := min(s.opts.MaxWorkers, len(resolved))
	var wg sync.WaitGroup
	wg.Add(workerN)
	for range workerN {
		go func() {
			defer wg.Done()
			for i := range jobs {
				rq.Outcomes[i] = run.layer(ctx, resolved[i])
			}
		}()
	}
	for i := range resolved {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return rq, nil
}

type layerRun struct {
	svc    *Service
	tenant *tenant.Tenant
	query  Query
}

// layer never returns an error; failures and panics become the outcome.
func (r *layerRun) layer(ctx context.Context, res layertree.Resolved) (out Outcome) {
	out = Outcome{Requested: res.Requested, Node: res.Node, Err: res.Err}
	if res.Err != nil {
		r.svc.logger.WarnContext(ctx, "layer not resolved", "requested", res.Requested, "err_class", model.ErrorCode(res.Err), "err", res.Err)
		return out
	}

	ctx = logger.WithLayer(ctx, res.Node.Name)
	// the deadline covers fetch, processing and rendering
	ctx, cancel := context.WithTimeout(ctx, r.svc.opts.LayerTimeout)
	defer cancel()
	ctx, span := observability.StartSpan(ctx, "featureinfo.layer",
		observability.AttrTenant.String(r.query.Tenant),
		observability.AttrService.String(r.query.Service),
		observability.AttrLayer.String(res.Node.Name),
	)
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			out.Features, out.HTML = nil, nil
			out.Err = fmt.Errorf("%w: panic while processing layer: %v", model.ErrUpstream, p)
		}
		outcome := "ok"
		switch {
		case out.Err != nil:
			outcome = model.ErrorCode(out.Err)
			r.svc.logger.WarnContext(ctx, "layer failed", "err_class", outcome, "err", out.Err, "dur", time.Since(start).String())
		case len(out.Features) == 0:
			outcome = "empty"
		}
		observability.IncLayerResult(string(out.Provider), outcome)
		span.SetAttributes(observability.AttrProvider.String(string(out.Provider)), observability.AttrFeatures.Int(len(out.Features)))
		observability.EndSpanWithError(span, out.Err)
	}()

	if res.Node.ConfigErr != nil {
		out.Err = res.Node.ConfigErr
		return out
	}

	tpl, custom := effectiveTemplate(res)
	out.Provider = tpl.Provider

	features, err := r.fetch(ctx, res, tpl)
	if err != nil {
		out.Err = err
		return out
	}
	features = r.filter(features, res, tpl.Provider)
	if len(features) == 0 {
		out.Features = []model.Feature{}
		return out
	}

	var renderTpl *layertree.InfoTemplate
	if custom {
		renderTpl = tpl
	}
	src, err := r.svc.sources.Resolve(renderTpl, r.tenant.Settings.DefaultTemplate)
	if err != nil {
		out.Err = err
		return out
	}
	eng := r.svc.engine(r.tenant.Settings.TransformImageURLs)
	compiled, err := eng.Compile(src)
	if err != nil {
		out.Err = err
		return out
	}

	proc := attribute.New(attribute.Options{
		HideUnaliasedJSONKeys: r.tenant.Settings.HideUnaliasedJSONKeys,
		DataServiceURL:        r.tenant.Settings.DataServiceURL,
	})
	x, y := r.query.Request.Position()
	out.Features = make([]model.Feature, 0, len(features))
	out.HTML = make([]string, 0, len(features))
	for _, f := range features {
		if err := ctx.Err(); err != nil {
			out.Features, out.HTML = nil, nil
			out.Err = classify(ctx, err)
			return out
		}
		pf := proc.Feature(f, res.Attributes, r.query.Service, res.Node.Name)
		html, err := eng.Render(ctx, compiled, render.Context{
			Feature:  render.NewFeatureView(pf),
			FID:      pf.ID,
			BBox:     pf.BBox,
			Geometry: pf.Geometry,
			Layer:    res.Node.Name,
			X:        x,
			Y:        y,
			CRS:      r.query.Request.CRS,
		})
		if err != nil {
			out.Features, out.HTML = nil, nil
			out.Err = err
			return out
		}
		out.Features = append(out.Features, pf)
		out.HTML = append(out.HTML, html)
	}
	if err := ctx.Err(); err != nil {
		out.Features, out.HTML = nil, nil
		out.Err = classify(ctx, err)
	}
	return out
}

// effectiveTemplate falls back to a plain wms query with the default
// template when the layer has no info template or the caller may not use it.
func effectiveTemplate(res layertree.Resolved) (*layertree.InfoTemplate, bool) {
	if res.Node.Template == nil || !res.TemplateAllowed {
		return &layertree.InfoTemplate{Provider: layertree.ProviderWMS, InfoFormat: model.FormatXML}, false
	}
	return res.Node.Template, true
}

func (r *layerRun) fetch(ctx context.Context, res layertree.Resolved, tpl *layertree.InfoTemplate) ([]model.Feature, error) {
	raw, err := r.svc.provider.Fetch(ctx, provider.Request{
		Tenant:        r.query.Tenant,
		Service:       r.query.Service,
		Layer:         res.Node.Name,
		Style:         r.query.Request.Style(res.RequestIndex),
		Template:      tpl,
		Query:         r.query.Request,
		Identity:      r.query.Identity,
		DefaultWMSURL: r.tenant.Settings.DefaultWMSURL,
		DefaultDBURL:  r.tenant.Settings.DefaultDBURL,
	})
	if err != nil {
		return nil, classify(ctx, err)
	}
	if ctx.Err() != nil {
		return nil, classify(ctx, ctx.Err())
	}
	features, err := normalizeResult(raw, tpl)
	if err != nil {
		return nil, err
	}
	return features, nil
}

// classify maps context failures from providers that do not know the
// taxonomy.
func classify(ctx context.Context, err error) error {
	if model.ErrorCode(err) != "InternalError" {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", model.ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %w", model.ErrUpstream, err)
	}
}

// filter applies permissions and display settings to backend attributes.
func (r *layerRun) filter(features []model.Feature, res layertree.Resolved, kind layertree.ProviderKind) []model.Feature {
	out := make([]model.Feature, 0, len(features))
	for _, f := range features {
		f.Layer = res.Node.Name
		f.Attributes = attribute.Select(f.Attributes, res.Attributes, attribute.SelectOptions{
			SkipEmpty:       r.tenant.Settings.SkipEmptyAttributes,
			PermissionOrder: r.tenant.Settings.UsePermissionAttributeOrder,
			Restrict:        res.Restrict,
		})
		if kind == layertree.ProviderWMS && len(f.Attributes) == 0 {
			continue
		}
		out = append(out, f)
	}
	return out
}
