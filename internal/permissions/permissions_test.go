package permissions

import (
	"reflect"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/mohammed-shakir/featureinfo-service/internal/auth"
)

const doc = `
roles:
  - role: public
    services:
      - name: demo
        layers:
          - name: countries
            attributes: [name]
          - name: rivers
            queryable: false
  - role: editor
    services:
      - name: demo
        layers:
          - name: countries
            attributes: [name, pop]
            info_attributes: [pop, name, area]
            info_template: true
          - name: rivers
users:
  alice: [editor]
`

func load(t *testing.T) *Store {
	t.Helper()
	var cfg Config
	if err := yaml.Unmarshal([]byte(doc), &cfg); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	return New(cfg)
}

func TestFor_AnonymousUsesPublic(t *testing.T) {
	s := load(t)
	set, ok := s.For(auth.Identity{}, "demo")
	if !ok {
		t.Fatal("demo should be permitted for public")
	}
	g, ok := set.Layer("countries")
	if !ok || !reflect.DeepEqual(g.Attributes, []string{"name"}) || g.InfoTemplate {
		t.Fatalf("grant=%+v", g)
	}
	if g, _ := set.Layer("rivers"); g.Queryable {
		t.Fatal("rivers is not queryable for public")
	}
	if _, ok := s.For(auth.Identity{}, "other"); ok {
		t.Fatal("unknown service must not be permitted")
	}
}

func TestFor_UnionAcrossRoles(t *testing.T) {
	s := load(t)
	set, _ := s.For(auth.Identity{User: "alice"}, "demo")
	g, _ := set.Layer("countries")
	// public first, then editor info_attributes in declared order
	if !reflect.DeepEqual(g.Attributes, []string{"name", "pop", "area"}) {
		t.Fatalf("attributes=%v", g.Attributes)
	}
	if !g.InfoTemplate {
		t.Fatal("info_template should be granted by editor")
	}
	if r, _ := set.Layer("rivers"); !r.Queryable {
		t.Fatal("queryable defaults to true and unions")
	}
}

func TestRolesFor(t *testing.T) {
	s := load(t)
	got := s.RolesFor(auth.Identity{User: "alice", Roles: []string{"editor", "viewer"}})
	if !reflect.DeepEqual(got, []string{"public", "editor", "viewer"}) {
		t.Fatalf("roles=%v", got)
	}
}
