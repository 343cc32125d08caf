package attribute

import (
	"errors"
	"testing"

	"github.com/mohammed-shakir/featureinfo-service/internal/core/model"
	"github.com/mohammed-shakir/featureinfo-service/internal/layertree"
)

func TestFormatSpec(t *testing.T) {
	cases := []struct {
		text, spec, want string
	}{
		{"1234.5", ".2f", "1234.50"},
		{"1234.5", ",.1f", "1,234.5"},
		{"1234567", ",d", "1,234,567"},
		{"1234567", "_d", "1_234_567"},
		{"42", "05d", "00042"},
		{"-42", "06d", "-00042"},
		{"42", "+d", "+42"},
		{"255", "x", "ff"},
		{"255", "#X", "0XFF"},
		{"5", "b", "101"},
		{"8", "#o", "0o10"},
		{"0.256", ".1%", "25.6%"},
		{"12345.678", ".3e", "1.235e+04"},
		{"0.00001234", "g", "1.234e-05"},
		{"3.5", "*^9.1f", "***3.5***"},
		{"7", "<4d", "7   "},
		{"abc", ">5", "  abc"},
		{"abcdef", ".3", "abc"},
		{"12", "n", "12"},
	}
	for _, c := range cases {
		got, err := FormatSpec(c.text, c.spec)
		if err != nil {
			t.Fatalf("FormatSpec(%q, %q): %v", c.text, c.spec, err)
		}
		if got != c.want {
			t.Fatalf("FormatSpec(%q, %q) got=%q want=%q", c.text, c.spec, got, c.want)
		}
	}
}

func TestFormatSpec_Errors(t *testing.T) {
	for _, c := range []struct{ text, spec string }{
		{"12.5", "d"},
		{"abc", ".2f"},
		{"abc", ","},
		{"1", "q"},
		{"1", ".f"},
		{"1", "1000000000d"},
		{"1", ".999999999f"},
		{"1", "99999999999999999999d"},
		{"1", "65d"},
	} {
		if _, err := FormatSpec(c.text, c.spec); !errors.Is(err, ErrBadFormatSpec) {
			t.Fatalf("FormatSpec(%q, %q) err=%v want ErrBadFormatSpec", c.text, c.spec, err)
		}
	}
}

func TestFormatSpec_WidthAtLimit(t *testing.T) {
	got, err := FormatSpec("1", "64d")
	if err != nil || len(got) != 64 {
		t.Fatalf("got len=%d err=%v want=64", len(got), err)
	}
	got, err = FormatSpec("1", ".64f")
	if err != nil || len(got) != 66 {
		t.Fatalf("got len=%d err=%v want=66", len(got), err)
	}
}

func TestApplyFormat_FailurePassesThrough(t *testing.T) {
	got := ApplyFormat(model.String("12.5"), "d")
	if got.Text() != "12.5" {
		t.Fatalf("got=%q want=12.5", got.Text())
	}
	got = ApplyFormat(model.String("t"), `{"t": broken`)
	if got.Text() != "t" {
		t.Fatalf("got=%q want=t", got.Text())
	}
}

func TestSelect(t *testing.T) {
	specs := []layertree.AttributeSpec{
		{Name: "pop", Alias: "Population"},
		{Name: "name"},
	}
	attrs := []model.Attribute{
		raw("name", model.String("Lake")),
		raw("secret", model.String("x")),
		raw("Population", model.String("120")),
		raw("empty", model.String("NULL")),
	}

	got := Select(attrs, specs, SelectOptions{Restrict: true})
	if len(got) != 2 || got[0].Name != "name" || got[1].Name != "pop" {
		t.Fatalf("got=%+v", got)
	}

	got = Select(attrs, specs, SelectOptions{Restrict: true, PermissionOrder: true})
	if got[0].Name != "pop" || got[1].Name != "name" {
		t.Fatalf("permission order got=%s,%s", got[0].Name, got[1].Name)
	}

	got = Select(attrs, nil, SelectOptions{SkipEmpty: true})
	if len(got) != 3 {
		t.Fatalf("skip empty got=%d attrs", len(got))
	}
}

func TestOnly(t *testing.T) {
	attrs := []model.Attribute{raw("a", model.Null()), raw("b", model.Null()), raw("c", model.Null())}
	got := Only(attrs, []string{"c"}, "a")
	if len(got) != 2 || got[0].Name != "a" || got[1].Name != "c" {
		t.Fatalf("got=%+v", got)
	}
	if len(Only(attrs, nil, "")) != 3 {
		t.Fatal("nil names keeps everything")
	}
}
