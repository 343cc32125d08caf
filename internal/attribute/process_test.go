package attribute

import (
	"testing"

	"github.com/mohammed-shakir/featureinfo-service/internal/core/model"
	"github.com/mohammed-shakir/featureinfo-service/internal/layertree"
)

func raw(name string, v model.Value) model.Attribute {
	return model.Attribute{Name: name, Raw: v, Value: v}
}

func TestProcess_LookupTable(t *testing.T) {
	p := New(Options{})
	spec := layertree.AttributeSpec{Name: "flag", Format: `{"t":"Yes","f":"No"}`}

	got := p.Process(raw("flag", model.String("t")), spec)
	if got.Value.Text() != "Yes" {
		t.Fatalf("got=%q want=%q", got.Value.Text(), "Yes")
	}
	got = p.Process(raw("flag", model.String("x")), spec)
	if got.Value.Text() != "x" {
		t.Fatalf("got=%q want=%q", got.Value.Text(), "x")
	}
	if got.Alias != "flag" {
		t.Fatalf("alias got=%q want=flag", got.Alias)
	}
}

func TestProcess_Idempotent(t *testing.T) {
	p := New(Options{})
	spec := layertree.AttributeSpec{Name: "pop", Alias: "Population", Format: ",d"}
	in := raw("pop", model.String("1234567"))

	first := p.Process(in, spec)
	second := p.Process(in, spec)
	if !first.Value.Equal(second.Value) || first.Alias != second.Alias {
		t.Fatalf("first=%v second=%v", first.Value, second.Value)
	}
	if first.Value.Text() != "1,234,567" {
		t.Fatalf("got=%q", first.Value.Text())
	}
	if in.Raw.Text() != "1234567" {
		t.Fatalf("input mutated: %q", in.Raw.Text())
	}
}

// JSON detection runs before the format expression; structured values are
// never passed to it.
func TestProcess_JSONBeforeFormat(t *testing.T) {
	p := New(Options{})
	spec := layertree.AttributeSpec{Name: "v", Format: `{"[1,2]":"mapped","7":"seven"}`}

	got := p.Process(raw("v", model.String("[1,2]")), spec)
	if got.Type != "list" || got.Value.Text() != "[1,2]" {
		t.Fatalf("type=%s value=%s", got.Type, got.Value.Text())
	}

	// "7" parses to nothing structured, so the lookup applies
	got = p.Process(raw("v", model.String("7")), spec)
	if got.Value.Text() != "seven" {
		t.Fatalf("got=%q want=seven", got.Value.Text())
	}

	// invalid json stays a scalar and is formatted
	got = p.Process(raw("v", model.String("[1,2")), layertree.AttributeSpec{Name: "v", Format: `{"[1,2":"broken"}`})
	if got.Type != "string" || got.Value.Text() != "broken" {
		t.Fatalf("type=%s value=%s", got.Type, got.Value.Text())
	}
}

func TestProcess_JSONAliases(t *testing.T) {
	v := model.String(`[{"b":2,"a":1,"c":3}]`)
	spec := layertree.AttributeSpec{
		Name: "items",
		JSONAliases: []model.KeyAlias{
			{Key: "a", Alias: "Alpha"},
			{Key: "b", Alias: "Beta"},
		},
	}

	hidden := New(Options{HideUnaliasedJSONKeys: true}).Process(raw("items", v), spec)
	entries := hidden.Value.Items()[0].Entries()
	if len(entries) != 2 || entries[0].Label != "Alpha" || entries[1].Label != "Beta" {
		t.Fatalf("entries=%+v", entries)
	}
	if len(hidden.Raw.Items()[0].Entries()) != 3 {
		t.Fatalf("raw should keep all keys: %s", hidden.Raw.Text())
	}

	shown := New(Options{}).Process(raw("items", v), spec)
	if got := shown.Value.Text(); got != `[{"a":1,"b":2,"c":3}]` {
		t.Fatalf("got=%s", got)
	}
	if l := shown.Value.Items()[0].Entries()[2].Label; l != "c" {
		t.Fatalf("unknown key label=%q want=c", l)
	}
}

func TestProcess_DatesAndNull(t *testing.T) {
	p := New(Options{})
	cases := []struct {
		in, format, want string
	}{
		{"2024-03-01", "", "01.03.2024"},
		{"2024-03-01T13:04:05", "", "01.03.2024 13:04:05"},
		{"2024-03-01 13:04:05.250000", "%Y/%m/%d %f", "2024/03/01 250000"},
		{"2024-03-01", "%d %B %Y", "01 March 2024"},
		{"NULL", "", "-"},
	}
	for _, c := range cases {
		got := p.Process(raw("d", model.String(c.in)), layertree.AttributeSpec{Name: "d", Format: c.format})
		if got.Value.Text() != c.want {
			t.Fatalf("in=%q format=%q got=%q want=%q", c.in, c.format, got.Value.Text(), c.want)
		}
	}
	if got := p.Process(raw("d", model.Null()), layertree.AttributeSpec{Name: "d"}); got.Value.Text() != "-" {
		t.Fatalf("null got=%q", got.Value.Text())
	}
}

func TestFeature_Attachments(t *testing.T) {
	p := New(Options{DataServiceURL: "/api/v1/data"})
	f := model.Feature{Attributes: []model.Attribute{raw("doc", model.String("attachment://a/b.png"))}}

	got := p.Feature(f, nil, "demo", "rivers")
	want := "attachment:///api/v1/data/demo.rivers/attachment?file=a/b.png"
	if got.Attributes[0].Value.Text() != want {
		t.Fatalf("got=%q want=%q", got.Attributes[0].Value.Text(), want)
	}
	if f.Attributes[0].Value.Text() != "attachment://a/b.png" {
		t.Fatal("input feature mutated")
	}
}

func TestProcess_XMLAndGeoJSONAgree(t *testing.T) {
	p := New(Options{})
	specs := map[string]layertree.AttributeSpec{
		"name": {Name: "name", Alias: "Name"},
		"pop":  {Name: "pop"},
	}
	fromXML := []model.Attribute{raw("name", model.String("Lake")), raw("pop", model.String("120"))}
	fromJSON := []model.Attribute{raw("name", model.String("Lake")), raw("pop", model.NumberText("120"))}

	for i := range fromXML {
		a := p.Process(fromXML[i], specs[fromXML[i].Name])
		b := p.Process(fromJSON[i], specs[fromJSON[i].Name])
		if a.Alias != b.Alias || a.Value.Text() != b.Value.Text() {
			t.Fatalf("xml=%s:%s geojson=%s:%s", a.Alias, a.Value.Text(), b.Alias, b.Value.Text())
		}
	}
}
