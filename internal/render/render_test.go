package render

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mohammed-shakir/featureinfo-service/internal/core/model"
	"github.com/mohammed-shakir/featureinfo-service/internal/layertree"
)

type stubEmbedder map[string]string

func (s stubEmbedder) DataURI(_ context.Context, url string) (string, bool) {
	v, ok := s[url]
	return v, ok
}

func TestRenderValue(t *testing.T) {
	r := NewValueRenderer(ValueOptions{TransformImageURLs: true}, nil)
	cases := []struct {
		in   any
		want string
	}{
		{"http://example.org/a.png", `<a href="http://example.org/a.png" target="_blank"><img src="http://example.org/a.png" /></a>`},
		{"http://example.org/page", `<a href="http://example.org/page" target="_blank">Link</a>`},
		{"plain text", "plain text"},
		{"<script>alert(1)</script>", "&lt;script&gt;alert(1)&lt;/script&gt;"},
		{"a\nb", "a<br />b"},
		{"mailto:info@example.org", `<a href="mailto:info@example.org">info@example.org</a>`},
		{model.Number(3), "3"},
		{nil, ""},
		{"attachment:///files/a.jpg", `<a href="/files/a.jpg" target="_blank"><img src="/files/a.jpg" style="width: 100%" /></a>`},
		{"attachment://javascript:alert(1)", "attachment://javascript:alert(1)"},
	}
	for _, c := range cases {
		if got := string(r.Render(c.in)); got != c.want {
			t.Fatalf("in=%v got=%q want=%q", c.in, got, c.want)
		}
	}
}

func TestRenderValue_ImageURLsAsLinksWhenDisabled(t *testing.T) {
	r := NewValueRenderer(ValueOptions{}, nil)
	got := string(r.Render("https://example.org/a.JPG"))
	if !strings.Contains(got, ">Link</a>") {
		t.Fatalf("got=%q", got)
	}
}

func TestRenderValue_EmbedsImages(t *testing.T) {
	r := NewValueRenderer(ValueOptions{TransformImageURLs: true}, stubEmbedder{"http://x/a.png": "data:image/png;base64,AAAA"})
	got := string(r.Render("http://x/a.png"))
	if !strings.Contains(got, `src="data:image/png;base64,AAAA"`) || !strings.Contains(got, `href="http://x/a.png"`) {
		t.Fatalf("got=%q", got)
	}
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(8, NewValueRenderer(ValueOptions{TransformImageURLs: true}, nil))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func feature() model.Feature {
	return model.Feature{
		Layer: "lakes",
		ID:    "7",
		Attributes: []model.Attribute{
			{Name: "name", Alias: "Name", Value: model.String("<b>Lake</b>"), Type: "string"},
			{Name: "url", Alias: "Web", Value: model.String("http://example.org/page"), Type: "string"},
			{Name: "owners", Alias: "Owners", Type: "list", Value: model.List(
				model.Dict(model.Entry{Key: "n", Label: "Owner", Value: model.String("Ann")}),
			)},
		},
	}
}

func TestEngine_DefaultTemplate(t *testing.T) {
	e := newEngine(t)
	tpl, err := e.Compile(DefaultTemplate)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	out, err := e.Render(t.Context(), tpl, Context{Feature: NewFeatureView(feature()), FID: "7", Layer: "lakes"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{
		`<i>Name</i>`,
		`&lt;b&gt;Lake&lt;/b&gt;`,
		`target="_blank">Link</a>`,
		`<i>Owner</i>`,
		`>Ann</td>`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %s", want, out)
		}
	}
	if strings.Contains(out, "<b>Lake") {
		t.Fatalf("unescaped markup in %s", out)
	}
}

func TestEngine_InlineTemplateEscapesInterpolation(t *testing.T) {
	e := newEngine(t)
	tpl, err := e.Compile(`<p>{{ .Layer }}/{{ .FID }}: {{ .Feature.Attrs.name }}{{ .Feature.Attrs.missing }}</p>`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	out, err := e.Render(t.Context(), tpl, Context{Feature: NewFeatureView(feature()), FID: "7", Layer: "lakes"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if want := "<p>lakes/7: &lt;b&gt;Lake&lt;/b&gt;</p>"; out != want {
		t.Fatalf("got=%q want=%q", out, want)
	}
}

func TestEngine_CompileCachesAndReportsErrors(t *testing.T) {
	e := newEngine(t)
	a, err := e.Compile("{{ .Layer }}")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	b, _ := e.Compile("{{ .Layer }}")
	if a != b {
		t.Fatal("expected cached template")
	}
	if _, err := e.Compile("{{ if }"); !errors.Is(err, model.ErrTemplate) {
		t.Fatalf("err=%v want template error", err)
	}
	if _, err := e.Compile(`{{ readFile "/etc/passwd" }}`); !errors.Is(err, model.ErrTemplate) {
		t.Fatalf("err=%v want template error for unknown function", err)
	}
}

func TestSources_ResolutionOrder(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "lake.html"), []byte("file"), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := NewSources(dir, 4)
	if err != nil {
		t.Fatalf("NewSources: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	cases := []struct {
		tpl  *layertree.InfoTemplate
		def  TenantDefault
		want string
	}{
		{&layertree.InfoTemplate{Template: "inline", TemplatePath: "lake.html"}, TenantDefault{}, "inline"},
		{&layertree.InfoTemplate{TemplatePath: "lake.html"}, TenantDefault{Inline: "tenant"}, "file"},
		{nil, TenantDefault{Inline: "tenant"}, "tenant"},
		{&layertree.InfoTemplate{}, TenantDefault{Path: "/lake.html"}, "file"},
		{nil, TenantDefault{}, DefaultTemplate},
	}
	for i, c := range cases {
		got, err := s.Resolve(c.tpl, c.def)
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if got != c.want {
			t.Fatalf("case %d got=%q want=%q", i, got, c.want)
		}
	}
}

func TestSources_RejectsEscapesAndMissingFiles(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "templates")
	if err := os.Mkdir(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(parent, "secret.html"), []byte("secret"), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := NewSources(dir, 4)
	if err != nil {
		t.Fatalf("NewSources: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	for _, p := range []string{"../secret.html", "missing.html"} {
		if _, err := s.Resolve(&layertree.InfoTemplate{TemplatePath: p}, TenantDefault{}); !errors.Is(err, model.ErrConfig) {
			t.Fatalf("path=%s err=%v want config error", p, err)
		}
	}

	none, err := NewSources("", 4)
	if err != nil {
		t.Fatalf("NewSources: %v", err)
	}
	if _, err := none.Resolve(&layertree.InfoTemplate{TemplatePath: "a.html"}, TenantDefault{}); !errors.Is(err, model.ErrConfig) {
		t.Fatalf("err=%v want config error", err)
	}
}

func TestImageEmbedder_StopsWithContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow.png" {
			select {
			case <-r.Context().Done():
			case <-release:
			}
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer srv.Close()
	defer close(release)

	e, err := NewImageEmbedder(slog.New(slog.NewTextHandler(io.Discard, nil)), srv.Client(), 1024, 10*time.Second, 8)
	if err != nil {
		t.Fatalf("NewImageEmbedder: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, ok := e.DataURI(ctx, srv.URL+"/slow.png"); ok {
		t.Fatal("expected no data uri after deadline")
	}
	if took := time.Since(start); took > time.Second {
		t.Fatalf("embedding took %v, deadline was 50ms", took)
	}
	if _, ok := e.seen.Get(srv.URL + "/slow.png"); ok {
		t.Fatal("a canceled fetch must not be remembered")
	}

	got, ok := e.DataURI(t.Context(), srv.URL+"/a.png")
	if !ok || !strings.HasPrefix(got, "data:image/png;base64,") {
		t.Fatalf("got=%q ok=%v", got, ok)
	}
}

func TestEngine_RenderRepeatedly(t *testing.T) {
	e, err := NewEngine(8, NewValueRenderer(ValueOptions{}, nil))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	tpl, err := e.Compile(`<b>{{ .Layer }}</b>`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	for _, layer := range []string{"lakes", "rivers"} {
		out, err := e.Render(t.Context(), tpl, Context{Layer: layer})
		if err != nil {
			t.Fatalf("Render: %v", err)
		}
		if want := "<b>" + layer + "</b>"; out != want {
			t.Fatalf("got=%q want=%q", out, want)
		}
	}
	other, _ := e.Compile(`<i>{{ .Layer }}</i>`)
	if other == tpl {
		t.Fatal("distinct sources must not share a compiled template")
	}
}
