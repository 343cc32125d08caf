package featureinfo

import (
	"github.com/mohammed-shakir/featureinfo-service/internal/attribute"
	"github.com/mohammed-shakir/featureinfo-service/internal/composer"
	"github.com/mohammed-shakir/featureinfo-service/internal/core/model"
	"github.com/mohammed-shakir/featureinfo-service/internal/layertree"
	"github.com/mohammed-shakir/featureinfo-service/internal/normalize"
)

// Outcome is the result of one resolved layer: features with their
// rendered html, an empty list, or Err.
type Outcome struct {
	Requested string
	// nil when Requested did not resolve
	Node     *layertree.Node
	Provider layertree.ProviderKind
	Features []model.Feature
	HTML     []string
	Err      error
}

// ResolvedQuery holds the outcomes of one request in resolved order.
type ResolvedQuery struct {
	Tenant    string
	Service   string
	Requested []string
	Outcomes  []Outcome
}

func normalizeResult(raw model.RawResult, tpl *layertree.InfoTemplate) ([]model.Feature, error) {
	return normalize.Normalize(raw, normalize.Options{IDProperty: tpl.IDProperty})
}

// Envelope builds the response document, one section per outcome.
func (rq *ResolvedQuery) Envelope(req model.QueryRequest) composer.Response {
	opts := composer.Options{
		CRS:             req.CRS,
		WithHTMLContent: req.WithHTMLContent,
		WithBBox:        req.WithBBox,
		WithGeometry:    req.WithGeometry,
	}
	resp := composer.Response{Layers: make([]composer.Layer, 0, len(rq.Outcomes))}
	for _, o := range rq.Outcomes {
		resp.Layers = append(resp.Layers, section(o, req, opts))
	}
	return resp
}

func section(o Outcome, req model.QueryRequest, opts composer.Options) composer.Layer {
	if o.Node == nil {
		l := composer.Layer{Name: o.Requested, LayerName: o.Requested, LayerInfo: o.Requested}
		return composer.Failed(l, o.Err)
	}
	n := o.Node
	l := composer.Layer{
		Name:          n.Title,
		LayerName:     n.Name,
		LayerInfo:     n.Name,
		FeatureReport: n.FeatureReport,
		DisplayField:  n.DisplayField,
		Features:      []composer.Feature{},
	}
	if n.Facade != "" {
		l.LayerInfo = n.Facade
	}
	if o.Err != nil {
		return composer.Failed(l, o.Err)
	}
	keep, limited := req.LayerAttribs[n.Name]
	for i, f := range o.Features {
		if limited {
			f.Attributes = attribute.Only(f.Attributes, keep, n.DisplayField)
		}
		l.Features = append(l.Features, composer.FeatureElement(f, o.HTML[i], opts))
	}
	return l
}
