// Package permissions combines role permissions into per service grants.
package permissions

import (
	"slices"

	"github.com/mohammed-shakir/featureinfo-service/internal/auth"
	"github.com/mohammed-shakir/featureinfo-service/internal/layertree"
)

// PublicRole applies to every caller, anonymous included.
const PublicRole = "public"

type LayerPermission struct {
	Name       string   `yaml:"name"`
	Attributes []string `yaml:"attributes"`
	// takes precedence over Attributes when present
	InfoAttributes *[]string `yaml:"info_attributes"`
	InfoTemplate   bool      `yaml:"info_template"`
	Queryable      *bool     `yaml:"queryable"`
}

type ServicePermission struct {
	Name   string            `yaml:"name"`
	Layers []LayerPermission `yaml:"layers"`
}

type Role struct {
	Role     string              `yaml:"role"`
	Services []ServicePermission `yaml:"services"`
}

type Config struct {
	Roles []Role              `yaml:"roles"`
	Users map[string][]string `yaml:"users"`
}

type Store struct {
	roles map[string][]ServicePermission
	users map[string][]string
}

func New(cfg Config) *Store {
	s := &Store{roles: map[string][]ServicePermission{}, users: cfg.Users}
	for _, r := range cfg.Roles {
		s.roles[r.Role] = append(s.roles[r.Role], r.Services...)
	}
	return s
}

// RolesFor lists the roles of id: public first, then token roles, then
// configured user roles, without duplicates.
func (s *Store) RolesFor(id auth.Identity) []string {
	seen := map[string]bool{}
	var out []string
	add := func(rs ...string) {
		for _, r := range rs {
			if r != "" && !seen[r] {
				seen[r] = true
				out = append(out, r)
			}
		}
	}
	add(PublicRole)
	add(id.Roles...)
	if id.User != "" {
		add(s.users[id.User]...)
	}
	return out
}

// For unions the permissions of every role of id for one service. The
// boolean is false when no role grants the service at all.
func (s *Store) For(id auth.Identity, service string) (*Set, bool) {
	set := &Set{grants: map[string]layertree.Grant{}}
	permitted := false
	for _, role := range s.RolesFor(id) {
		for _, sp := range s.roles[role] {
			if sp.Name != service {
				continue
			}
			permitted = true
			for _, lp := range sp.Layers {
				set.merge(lp)
			}
		}
	}
	return set, permitted
}

// Set is the combined grant of one caller for one service.
type Set struct {
	grants map[string]layertree.Grant
}

func (s *Set) merge(lp LayerPermission) {
	g := s.grants[lp.Name]
	attrs := lp.Attributes
	if lp.InfoAttributes != nil {
		attrs = *lp.InfoAttributes
	}
	for _, a := range attrs {
		if !slices.Contains(g.Attributes, a) {
			g.Attributes = append(g.Attributes, a)
		}
	}
	g.InfoTemplate = g.InfoTemplate || lp.InfoTemplate
	g.Queryable = g.Queryable || lp.Queryable == nil || *lp.Queryable
	s.grants[lp.Name] = g
}

func (s *Set) Layer(name string) (layertree.Grant, bool) {
	g, ok := s.grants[name]
	return g, ok
}
