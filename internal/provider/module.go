package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/featureinfo-service/internal/core/model"
)

// Module is a named custom info handler. It must answer with xml, geojson
// or prebuilt features.
type Module interface {
	Fetch(ctx context.Context, req Request) (model.RawResult, error)
}

type Modules struct {
	mu  sync.RWMutex
	reg map[string]Module
}

func NewModules() *Modules {
	return &Modules{reg: map[string]Module{}}
}

// Register adds or replaces a module.
func (m *Modules) Register(name string, mod Module) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reg[name] = mod
}

func (m *Modules) Lookup(name string) (Module, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mod, ok := m.reg[name]
	return mod, ok
}

func (m *Modules) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.reg))
	for n := range m.reg {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Fetch runs the module named by the layer template and checks the format
// it declares.
func (m *Modules) Fetch(ctx context.Context, req Request) (model.RawResult, error) {
	name := ""
	if req.Template != nil {
		name = req.Template.Module
	}
	mod, ok := m.Lookup(name)
	if !ok {
		return model.RawResult{}, fmt.Errorf("%w: unknown info module %q", model.ErrConfig, name)
	}
	res, err := mod.Fetch(ctx, req)
	if err != nil {
		return model.RawResult{}, err
	}
	switch res.Format {
	case model.FormatXML, model.FormatGeoJSON, model.FormatFeatures:
		return res, nil
	default:
		return model.RawResult{}, fmt.Errorf("%w: module %q returned format %q", model.ErrMalformedResponse, name, res.Format)
	}
}

// Coordinates answers with the query position as a single point feature.
type Coordinates struct{}

func (Coordinates) Fetch(_ context.Context, req Request) (model.RawResult, error) {
	x, y := req.Position()
	f := geojson.NewFeature(orb.Point{x, y})
	f.ID = "position"
	f.Properties["x"] = x
	f.Properties["y"] = y
	f.Properties["crs"] = req.Query.CRS

	fc := geojson.NewFeatureCollection()
	fc.Append(f)
	b, err := fc.MarshalJSON()
	if err != nil {
		return model.RawResult{}, fmt.Errorf("marshal position: %w", err)
	}
	return model.RawResult{Format: model.FormatGeoJSON, ContentType: "application/geo+json", Payload: b}, nil
}

// DefaultModules holds the modules shipped with the service.
func DefaultModules() *Modules {
	m := NewModules()
	m.Register("coordinates", Coordinates{})
	return m
}
