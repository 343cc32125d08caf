package attribute

import (
	"github.com/mohammed-shakir/featureinfo-service/internal/core/model"
	"github.com/mohammed-shakir/featureinfo-service/internal/layertree"
)

type SelectOptions struct {
	// drop attributes whose value is "", NULL or null
	SkipEmpty bool
	// emit in permitted order instead of backend order
	PermissionOrder bool
	// only keep attributes listed in specs
	Restrict bool
}

// IsEmpty reports values skipped by skip_empty_attributes.
func IsEmpty(v model.Value) bool {
	switch v.Kind() {
	case model.KindNull:
		return true
	case model.KindString:
		s := v.Str()
		return s == "" || s == "NULL" || s == "null"
	}
	return false
}

// Select canonicalizes backend attribute names (backends may report
// aliases), then filters and orders attrs against the permitted specs.
// Later duplicates of a name replace the earlier value in place.
func Select(attrs []model.Attribute, specs []layertree.AttributeSpec, opts SelectOptions) []model.Attribute {
	byAlias := make(map[string]string, len(specs))
	permitted := make(map[string]bool, len(specs))
	for _, s := range specs {
		permitted[s.Name] = true
		if s.Alias != "" {
			byAlias[s.Alias] = s.Name
		}
	}

	pos := map[string]int{}
	var out []model.Attribute
	for _, a := range attrs {
		if !permitted[a.Name] {
			if name, ok := byAlias[a.Name]; ok {
				a.Name = name
			}
		}
		if opts.Restrict && !permitted[a.Name] {
			continue
		}
		if opts.SkipEmpty && IsEmpty(a.Raw) {
			continue
		}
		if i, ok := pos[a.Name]; ok {
			out[i] = a
			continue
		}
		pos[a.Name] = len(out)
		out = append(out, a)
	}

	if !opts.PermissionOrder || len(specs) == 0 {
		return out
	}
	ordered := make([]model.Attribute, 0, len(out))
	for _, s := range specs {
		if i, ok := pos[s.Name]; ok {
			ordered = append(ordered, out[i])
		}
	}
	for _, a := range out {
		if !permitted[a.Name] {
			ordered = append(ordered, a)
		}
	}
	return ordered
}

// Only keeps the named attributes plus keep, in feature order. A nil names
// slice keeps everything.
func Only(attrs []model.Attribute, names []string, keep string) []model.Attribute {
	if names == nil {
		return attrs
	}
	want := make(map[string]bool, len(names)+1)
	for _, n := range names {
		want[n] = true
	}
	if keep != "" {
		want[keep] = true
	}
	out := make([]model.Attribute, 0, len(attrs))
	for _, a := range attrs {
		if want[a.Name] {
			out = append(out, a)
		}
	}
	return out
}
