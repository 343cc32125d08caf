// Package render executes info templates against processed features.
package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/featureinfo-service/internal/core/model"
)

// Context is the data every info template sees.
type Context struct {
	Feature  FeatureView
	FID      string
	BBox     *model.BBox
	Geometry string
	Layer    string
	X, Y     float64
	CRS      string
}

// FeatureView exposes attributes in order and by name.
type FeatureView struct {
	Attributes []model.Attribute
	// name -> display value
	Attrs map[string]model.Value
}

func NewFeatureView(f model.Feature) FeatureView {
	v := FeatureView{Attributes: f.Attributes, Attrs: make(map[string]model.Value, len(f.Attributes))}
	for _, a := range f.Attributes {
		v.Attrs[a.Name] = a.Value
	}
	return v
}

// Engine compiles templates once per distinct source and renders them
// with a fixed helper set: render_value plus the html/template builtins.
type Engine struct {
	values *ValueRenderer
	// keyed by the full source text
	cache *lru.Cache[string, *template.Template]
}

func NewEngine(size int, values *ValueRenderer) (*Engine, error) {
	if size <= 0 {
		size = 256
	}
	c, err := lru.New[string, *template.Template](size)
	if err != nil {
		return nil, fmt.Errorf("template cache: %w", err)
	}
	return &Engine{values: values, cache: c}, nil
}

func (e *Engine) funcs(ctx context.Context) template.FuncMap {
	return template.FuncMap{
		"render_value": e.values.bind(ctx),
	}
}

// Compile parses src or returns the cached template for it. The returned
// template is never executed itself; Render works on a clone.
func (e *Engine) Compile(src string) (*template.Template, error) {
	if t, ok := e.cache.Get(src); ok {
		return t, nil
	}
	t, err := template.New("info").Funcs(e.funcs(context.Background())).Option("missingkey=zero").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrTemplate, err)
	}
	e.cache.Add(src, t)
	return t, nil
}

// Render executes t for one feature. Interpolated values are html
// escaped; only render_value emits markup. Image embedding done by
// render_value stops when ctx ends.
func (e *Engine) Render(ctx context.Context, t *template.Template, data Context) (string, error) {
	run, err := t.Clone()
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrTemplate, err)
	}
	var buf bytes.Buffer
	if err := run.Funcs(e.funcs(ctx)).Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrTemplate, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
