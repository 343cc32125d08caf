package render

import (
	"context"
	"html"
	"html/template"
	"regexp"
	"strings"

	"github.com/mohammed-shakir/featureinfo-service/internal/core/model"
)

var (
	imageURLRe = regexp.MustCompile(`(?i)^https?://\S*\.(jpg|jpeg|png|bmp)$`)
	linkRe     = regexp.MustCompile(`^https?://\S+$`)
	emailRe    = regexp.MustCompile(`^(?:mailto:)?([\w.+-]+@[\w-]+(?:\.[\w-]+)+)$`)
)

const attachmentPrefix = "attachment://"

type ValueOptions struct {
	// render image urls as <img> instead of a link
	TransformImageURLs bool
}

// Embedder turns an image url into a data: uri. It gives up when ctx ends.
type Embedder interface {
	DataURI(ctx context.Context, url string) (string, bool)
}

// ValueRenderer backs the render_value template helper. It is the only
// place that emits markup built from attribute data; everything is
// escaped before matching, so the emitted markup only ever wraps escaped
// text.
type ValueRenderer struct {
	opts  ValueOptions
	embed Embedder
}

func NewValueRenderer(opts ValueOptions, embed Embedder) *ValueRenderer {
	return &ValueRenderer{opts: opts, embed: embed}
}

// Render accepts a model.Value, a string or any printable value.
func (r *ValueRenderer) Render(v any) template.HTML {
	return r.RenderContext(context.Background(), v)
}

func (r *ValueRenderer) bind(ctx context.Context) func(any) template.HTML {
	return func(v any) template.HTML { return r.RenderContext(ctx, v) }
}

// RenderContext is Render with image embedding bounded by ctx.
func (r *ValueRenderer) RenderContext(ctx context.Context, v any) template.HTML {
	var text string
	switch t := v.(type) {
	case nil:
		return ""
	case model.Value:
		text = t.Text()
	case *model.Value:
		if t == nil {
			return ""
		}
		text = t.Text()
	case string:
		text = t
	case template.HTML:
		// already safe markup from a nested helper call
		return t
	default:
		text = toString(t)
	}
	return template.HTML(r.renderText(ctx, text))
}

func (r *ValueRenderer) renderText(ctx context.Context, s string) string {
	trimmed := strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(trimmed, attachmentPrefix) && safeURL(strings.TrimPrefix(trimmed, attachmentPrefix)):
		u := html.EscapeString(strings.TrimPrefix(trimmed, attachmentPrefix))
		return `<a href="` + u + `" target="_blank"><img src="` + u + `" style="width: 100%" /></a>`
	case r.opts.TransformImageURLs && imageURLRe.MatchString(trimmed):
		u := html.EscapeString(trimmed)
		src := u
		if r.embed != nil {
			if data, ok := r.embed.DataURI(ctx, trimmed); ok {
				src = html.EscapeString(data)
			}
		}
		return `<a href="` + u + `" target="_blank"><img src="` + src + `" /></a>`
	case linkRe.MatchString(trimmed):
		return `<a href="` + html.EscapeString(trimmed) + `" target="_blank">Link</a>`
	}
	if m := emailRe.FindStringSubmatch(trimmed); m != nil {
		addr := html.EscapeString(m[1])
		return `<a href="mailto:` + addr + `">` + addr + `</a>`
	}
	escaped := html.EscapeString(s)
	escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
	return strings.ReplaceAll(escaped, "\n", "<br />")
}

// only site relative or http(s) urls end up in href/src
func safeURL(u string) bool {
	return (strings.HasPrefix(u, "/") && !strings.HasPrefix(u, "//")) || linkRe.MatchString(u)
}

func toString(v any) string {
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return model.FromAny(v).Text()
}
