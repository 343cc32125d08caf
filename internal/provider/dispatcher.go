package provider

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/mohammed-shakir/featureinfo-service/internal/core/model"
	"github.com/mohammed-shakir/featureinfo-service/internal/layertree"
)

// Dispatcher selects the provider of a layer from its info template.
type Dispatcher struct {
	logger  *slog.Logger
	wms     Provider
	sql     Provider
	modules Provider
}

func NewDispatcher(logger *slog.Logger, wms, sql, modules Provider) *Dispatcher {
	return &Dispatcher{logger: logger, wms: wms, sql: sql, modules: modules}
}

// Fetch never panics; a panicking provider is reported as an upstream
// failure of this layer only.
func (d *Dispatcher) Fetch(ctx context.Context, req Request) (res model.RawResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.ErrorContext(ctx, "provider panic", "layer", req.Layer, "panic", rec, "stack", string(debug.Stack()))
			res, err = model.RawResult{}, fmt.Errorf("%w: provider panic: %v", model.ErrUpstream, rec)
		}
	}()

	kind := layertree.ProviderWMS
	if req.Template != nil && req.Template.Provider != "" {
		kind = req.Template.Provider
	}

	var p Provider
	switch kind {
	case layertree.ProviderWMS:
		p = d.wms
	case layertree.ProviderSQL:
		p = d.sql
	case layertree.ProviderModule:
		p = d.modules
	}
	if p == nil {
		return model.RawResult{}, fmt.Errorf("%w: provider %q is not available", model.ErrConfig, kind)
	}
	return p.Fetch(ctx, req)
}
