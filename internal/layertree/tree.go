// Package layertree turns configured layer trees into flat immutable
// structures and resolves requested layer names against them.
package layertree

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/mohammed-shakir/featureinfo-service/internal/core/model"
)

type Kind uint8

const (
	Leaf Kind = iota
	Group
)

type ProviderKind string

const (
	ProviderWMS    ProviderKind = "wms"
	ProviderSQL    ProviderKind = "sql"
	ProviderModule ProviderKind = "module"
)

type AttributeSpec struct {
	Name        string
	Alias       string
	Format      string
	JSONAliases []model.KeyAlias
}

// DisplayName is the alias, or the name when no alias is configured.
func (a AttributeSpec) DisplayName() string {
	if a.Alias != "" {
		return a.Alias
	}
	return a.Name
}

// InfoTemplate selects the provider of a layer and its rendering template.
type InfoTemplate struct {
	Provider ProviderKind

	WMSURL     string
	InfoFormat model.Format
	IDProperty string

	DBURL string
	SQL   string

	Module string

	// decoded inline source; empty when TemplatePath or the default applies
	Template     string
	TemplatePath string
}

// Node is one entry of the flattened tree. Nodes are read-only once built.
type Node struct {
	Name          string
	Title         string
	Kind          Kind
	Attributes    []AttributeSpec
	DisplayField  string
	FeatureReport string
	// nil when the layer has no info_template configured
	Template      *InfoTemplate
	HideSublayers bool
	// name of the closest ancestor group hiding its sublayers
	Facade string
	// per-layer configuration problem, reported when the layer is queried
	ConfigErr error

	children []int
}

// Tree is an arena of nodes indexed by name.
type Tree struct {
	nodes []Node
	index map[string]int
	root  int
}

var (
	ErrDuplicateLayer = errors.New("duplicate layer name")
	ErrCycle          = errors.New("layer tree cycle")
	ErrUnknownRef     = errors.New("unknown sublayer reference")
)

type pending struct {
	nested []string
	refs   []string
}

// Build validates a configured tree and flattens it. Duplicate names,
// unresolvable sublayer references and cycles are rejected.
func Build(root LayerConfig) (*Tree, error) {
	t := &Tree{index: map[string]int{}}
	links := map[int]pending{}

	var collect func(c LayerConfig) error
	collect = func(c LayerConfig) error {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return errors.New("layer without name")
		}
		if _, dup := t.index[name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateLayer, name)
		}
		idx := len(t.nodes)
		t.nodes = append(t.nodes, newNode(name, c))
		t.index[name] = idx

		if c.isGroup() {
			p := pending{refs: c.Sublayers}
			for _, sub := range c.Layers {
				p.nested = append(p.nested, strings.TrimSpace(sub.Name))
				if err := collect(sub); err != nil {
					return err
				}
			}
			links[idx] = p
		}
		return nil
	}
	if err := collect(root); err != nil {
		return nil, err
	}

	for idx, p := range links {
		for _, name := range append(p.nested, p.refs...) {
			ci, ok := t.index[name]
			if !ok {
				return nil, fmt.Errorf("%w: %q in group %q", ErrUnknownRef, name, t.nodes[idx].Name)
			}
			t.nodes[idx].children = append(t.nodes[idx].children, ci)
		}
	}

	if err := t.checkCycles(); err != nil {
		return nil, err
	}
	t.assignFacades(t.root, "")
	return t, nil
}

func newNode(name string, c LayerConfig) Node {
	n := Node{
		Name:          name,
		Title:         c.Title,
		DisplayField:  c.DisplayField,
		FeatureReport: c.FeatureReport,
		HideSublayers: c.HideSublayers,
	}
	if n.Title == "" {
		n.Title = name
	}
	if c.isGroup() {
		n.Kind = Group
	}

	seen := map[string]bool{}
	for _, ac := range c.Attributes {
		if seen[ac.Name] {
			n.ConfigErr = fmt.Errorf("%w: duplicate attribute %q", model.ErrConfig, ac.Name)
			continue
		}
		seen[ac.Name] = true
		spec := AttributeSpec{
			Name:        ac.Name,
			Alias:       ac.Alias,
			Format:      ac.Format,
			JSONAliases: ac.JSONAttributeAliases,
		}
		if spec.Format == "" && ac.FormatBase64 != "" {
			f, err := decodeBase64(ac.FormatBase64)
			if err != nil {
				n.ConfigErr = fmt.Errorf("%w: format of attribute %q: %w", model.ErrConfig, ac.Name, err)
			}
			spec.Format = f
		}
		n.Attributes = append(n.Attributes, spec)
	}

	if c.InfoTemplate != nil {
		tpl, err := newInfoTemplate(*c.InfoTemplate)
		if err != nil && n.ConfigErr == nil {
			n.ConfigErr = err
		}
		n.Template = &tpl
	}
	return n
}

func newInfoTemplate(c InfoTemplateConfig) (InfoTemplate, error) {
	t := InfoTemplate{
		Provider:     ProviderKind(strings.ToLower(strings.TrimSpace(c.Type))),
		WMSURL:       c.WMSURL,
		IDProperty:   c.IDProperty,
		DBURL:        c.DBURL,
		SQL:          c.SQL,
		Module:       c.Module,
		Template:     c.Template,
		TemplatePath: c.TemplatePath,
		InfoFormat:   model.FormatXML,
	}
	if t.Provider == "" {
		t.Provider = ProviderWMS
	}
	switch strings.ToLower(c.InfoFormat) {
	case "", "xml", "text/xml":
	case "geojson", "json", "application/json", "application/geo+json":
		t.InfoFormat = model.FormatGeoJSON
	default:
		return t, fmt.Errorf("%w: unsupported info_format %q", model.ErrConfig, c.InfoFormat)
	}

	if t.Template == "" && c.TemplateBase64 != "" {
		s, err := decodeBase64(c.TemplateBase64)
		if err != nil {
			return t, fmt.Errorf("%w: template_base64: %w", model.ErrConfig, err)
		}
		t.Template = s
	}

	switch t.Provider {
	case ProviderWMS:
	case ProviderSQL:
		if t.SQL == "" && c.SQLBase64 != "" {
			s, err := decodeBase64(c.SQLBase64)
			if err != nil {
				return t, fmt.Errorf("%w: sql_base64: %w", model.ErrConfig, err)
			}
			t.SQL = s
		}
		if strings.TrimSpace(t.SQL) == "" {
			return t, fmt.Errorf("%w: sql info template without query", model.ErrConfig)
		}
	case ProviderModule:
		if strings.TrimSpace(t.Module) == "" {
			return t, fmt.Errorf("%w: module info template without module name", model.ErrConfig)
		}
	default:
		return t, fmt.Errorf("%w: unknown info template type %q", model.ErrConfig, c.Type)
	}
	return t, nil
}

func decodeBase64(s string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("decode base64: %w", err)
	}
	return string(b), nil
}

func (t *Tree) checkCycles() error {
	const (
		white = iota
		grey
		black
	)
	color := make([]int, len(t.nodes))
	var visit func(i int) error
	visit = func(i int) error {
		color[i] = grey
		for _, c := range t.nodes[i].children {
			switch color[c] {
			case grey:
				return fmt.Errorf("%w: %q -> %q", ErrCycle, t.nodes[i].Name, t.nodes[c].Name)
			case white:
				if err := visit(c); err != nil {
					return err
				}
			}
		}
		color[i] = black
		return nil
	}
	for i := range t.nodes {
		if color[i] == white {
			if err := visit(i); err != nil {
				return err
			}
		}
	}
	return nil
}

// first hiding ancestor wins when a layer is reachable through several groups
func (t *Tree) assignFacades(i int, facade string) {
	n := &t.nodes[i]
	if n.Facade == "" {
		n.Facade = facade
	}
	if n.Kind == Group && n.HideSublayers && facade == "" {
		facade = n.Name
	}
	for _, c := range n.children {
		t.assignFacades(c, facade)
	}
}

// Root is the top level node of the tree.
func (t *Tree) Root() *Node { return &t.nodes[t.root] }

func (t *Tree) Node(name string) (*Node, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return &t.nodes[i], true
}

// Children returns the configured child order of a group.
func (t *Tree) Children(n *Node) []*Node {
	i, ok := t.index[n.Name]
	if !ok {
		return nil
	}
	out := make([]*Node, 0, len(t.nodes[i].children))
	for _, c := range t.nodes[i].children {
		out = append(out, &t.nodes[c])
	}
	return out
}

func (t *Tree) Len() int { return len(t.nodes) }

// Walk visits every node in definition order.
func (t *Tree) Walk(fn func(*Node)) {
	for i := range t.nodes {
		fn(&t.nodes[i])
	}
}
