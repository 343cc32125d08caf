// Package attribute post-processes normalized attribute values before they
// reach templates: aliases, json detection, format expressions and json key
// aliases. Nothing in here performs I/O.
package attribute

import (
	"strings"

	"github.com/mohammed-shakir/featureinfo-service/internal/core/model"
	"github.com/mohammed-shakir/featureinfo-service/internal/layertree"
)

type Options struct {
	// hide list item keys missing from json_attribute_aliases in the
	// display value; Raw always keeps them
	HideUnaliasedJSONKeys bool
	// base of attachment:// urls, e.g. "/api/v1/data/"
	DataServiceURL string
}

type Processor struct {
	opts Options
}

func New(opts Options) *Processor {
	return &Processor{opts: opts}
}

// Process resolves one attribute against its spec. JSON detection runs
// first; the format expression only applies when the parsed value is a
// scalar.
func (p *Processor) Process(a model.Attribute, spec layertree.AttributeSpec) model.Attribute {
	out := model.Attribute{
		Name:        a.Name,
		Alias:       spec.Alias,
		JSONAliases: spec.JSONAliases,
	}
	if out.Alias == "" {
		out.Alias = a.Name
	}

	v := DetectJSON(a.Raw)
	if v.IsScalar() {
		v = ApplyFormat(v, spec.Format)
		out.Raw, out.Value = v, v
		out.Type = v.Type()
		return out
	}

	out.Raw = v
	out.Value = v
	if v.Kind() == model.KindList && len(spec.JSONAliases) > 0 {
		out.Raw = reorderItems(v, spec.JSONAliases, false)
		out.Value = reorderItems(v, spec.JSONAliases, p.opts.HideUnaliasedJSONKeys)
	}
	out.Type = v.Type()
	return out
}

// Feature processes every attribute of f. attachment:// values are
// expanded against the data service of service/layer.
func (p *Processor) Feature(f model.Feature, specs []layertree.AttributeSpec, service, layer string) model.Feature {
	byName := make(map[string]layertree.AttributeSpec, len(specs))
	for _, s := range specs {
		byName[s.Name] = s
	}
	out := f
	out.Attributes = make([]model.Attribute, 0, len(f.Attributes))
	for _, a := range f.Attributes {
		pa := p.Process(a, byName[a.Name])
		if s := pa.Value.Str(); pa.Value.Kind() == model.KindString && strings.HasPrefix(s, "attachment://") {
			expanded := model.String(p.attachmentURL(service, layer, strings.TrimPrefix(s, "attachment://")))
			pa.Raw, pa.Value = expanded, expanded
		}
		out.Attributes = append(out.Attributes, pa)
	}
	return out
}

func (p *Processor) attachmentURL(service, layer, file string) string {
	base := strings.TrimRight(p.opts.DataServiceURL, "/") + "/"
	return "attachment://" + base + service + "." + layer + "/attachment?file=" + file
}

// DetectJSON parses string values shaped like a json object or array.
// Anything that fails to parse is returned untouched.
func DetectJSON(v model.Value) model.Value {
	if v.Kind() != model.KindString {
		return v
	}
	s := v.Str()
	if !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, "[") {
		return v
	}
	parsed, err := model.ParseJSON([]byte(s))
	if err != nil {
		return v
	}
	return parsed
}

// configured keys first (in alias order), then the remaining keys unless
// hidden
func reorderItems(list model.Value, aliases []model.KeyAlias, hideUnknown bool) model.Value {
	items := make([]model.Value, 0, len(list.Items()))
	for _, it := range list.Items() {
		if it.Kind() != model.KindDict {
			items = append(items, it)
			continue
		}
		var entries []model.Entry
		used := map[string]bool{}
		for _, ka := range aliases {
			if v, ok := it.Lookup(ka.Key); ok {
				label := ka.Alias
				if label == "" {
					label = ka.Key
				}
				entries = append(entries, model.Entry{Key: ka.Key, Label: label, Value: v})
				used[ka.Key] = true
			}
		}
		if !hideUnknown {
			for _, e := range it.Entries() {
				if !used[e.Key] {
					entries = append(entries, model.Entry{Key: e.Key, Label: e.Key, Value: e.Value})
				}
			}
		}
		items = append(items, model.Dict(entries...))
	}
	return model.List(items...)
}
