package layertree

import (
	"fmt"

	"github.com/mohammed-shakir/featureinfo-service/internal/core/model"
)

// Grant is what a caller may see of one layer.
type Grant struct {
	// permitted attribute names, in permission order
	Attributes []string
	// All permits every configured attribute
	All          bool
	InfoTemplate bool
	Queryable    bool
}

type Permission interface {
	Layer(name string) (Grant, bool)
}

type allowAll struct{}

func (allowAll) Layer(string) (Grant, bool) {
	return Grant{All: true, InfoTemplate: true, Queryable: true}, true
}

// AllowAll grants every layer with every attribute.
func AllowAll() Permission { return allowAll{} }

type Options struct {
	// reorder permitted attributes to the permission's declared order
	PermissionOrder bool
}

// Resolved is one leaf (or facade group) to query, or the failure of one
// requested name.
type Resolved struct {
	Requested string
	// index of Requested in the caller's list
	RequestIndex    int
	Node            *Node
	Attributes      []AttributeSpec
	// Restrict drops backend attributes not listed in Attributes. Only an
	// unrestricted grant on a layer without configured attributes passes
	// everything through.
	Restrict        bool
	TemplateAllowed bool
	Err             error
}

// Resolve expands the requested names in caller order. Names that match
// nothing visible yield an ErrUnknownLayer entry of their own; they never
// affect the other names.
func (t *Tree) Resolve(requested []string, perm Permission, opts Options) []Resolved {
	if perm == nil {
		perm = AllowAll()
	}
	var out []Resolved
	for ri, name := range requested {
		unknown := Resolved{
			Requested:    name,
			RequestIndex: ri,
			Err:          fmt.Errorf("%w: %q", model.ErrUnknownLayer, name),
		}

		n, ok := t.Node(name)
		if !ok {
			out = append(out, unknown)
			continue
		}
		g, visible := visibleGrant(n, perm)
		if !visible {
			out = append(out, unknown)
			continue
		}

		if n.Kind == Group && !n.HideSublayers {
			leaves := t.expand(n, perm, opts, name, ri, map[string]bool{})
			if len(leaves) == 0 {
				unknown.Err = fmt.Errorf("%w: %q has no visible sublayers", model.ErrUnknownLayer, name)
				out = append(out, unknown)
				continue
			}
			out = append(out, leaves...)
			continue
		}

		r, ok := leaf(n, g, opts)
		if !ok {
			unknown.Err = fmt.Errorf("%w: %q has no permitted attributes", model.ErrUnknownLayer, name)
			out = append(out, unknown)
			continue
		}
		r.Requested, r.RequestIndex = name, ri
		out = append(out, r)
	}
	return out
}

func (t *Tree) expand(group *Node, perm Permission, opts Options, requested string, ri int, onPath map[string]bool) []Resolved {
	onPath[group.Name] = true
	defer delete(onPath, group.Name)

	var out []Resolved
	for _, c := range t.Children(group) {
		if onPath[c.Name] {
			continue
		}
		g, visible := visibleGrant(c, perm)
		if !visible {
			continue
		}
		if c.Kind == Group && !c.HideSublayers {
			out = append(out, t.expand(c, perm, opts, requested, ri, onPath)...)
			continue
		}
		if r, ok := leaf(c, g, opts); ok {
			r.Requested, r.RequestIndex = requested, ri
			out = append(out, r)
		}
	}
	return out
}

func visibleGrant(n *Node, perm Permission) (Grant, bool) {
	g, ok := perm.Layer(n.Name)
	if !ok || !g.Queryable {
		return Grant{}, false
	}
	return g, true
}

func leaf(n *Node, g Grant, opts Options) (Resolved, bool) {
	specs := n.Attributes
	if len(specs) == 0 && !g.All {
		// no configuration: the grant alone names what may be shown
		specs = make([]AttributeSpec, 0, len(g.Attributes))
		for _, name := range g.Attributes {
			specs = append(specs, AttributeSpec{Name: name})
		}
	}
	attrs := filterAttributes(specs, g, opts)
	if len(n.Attributes) > 0 && len(attrs) == 0 {
		return Resolved{}, false
	}
	return Resolved{
		Node:            n,
		Attributes:      attrs,
		Restrict:        len(n.Attributes) > 0 || !g.All,
		TemplateAllowed: g.InfoTemplate,
	}, true
}

func filterAttributes(specs []AttributeSpec, g Grant, opts Options) []AttributeSpec {
	if g.All {
		return append([]AttributeSpec(nil), specs...)
	}
	out := make([]AttributeSpec, 0, len(specs))
	if opts.PermissionOrder {
		byName := make(map[string]AttributeSpec, len(specs))
		for _, s := range specs {
			byName[s.Name] = s
		}
		for _, name := range g.Attributes {
			if s, ok := byName[name]; ok {
				out = append(out, s)
				delete(byName, name)
			}
		}
		return out
	}
	permitted := make(map[string]bool, len(g.Attributes))
	for _, name := range g.Attributes {
		permitted[name] = true
	}
	for _, s := range specs {
		if permitted[s.Name] {
			out = append(out, s)
		}
	}
	return out
}
