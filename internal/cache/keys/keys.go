// Package keys builds redis keys for cached payloads and layer generations.
package keys

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const prefix = "fi"

// Key addresses one upstream payload. Params are normalized (sorted keys,
// upper-cased names) before hashing so equivalent requests share a key.
func Key(tenant, service, layer string, gen int64, endpoint string, params url.Values) string {
	norm := endpoint + "?" + normalizeParams(params)
	return fmt.Sprintf("%s:%s:%s:%s:g=%d:p=%016x",
		prefix, sanitize(tenant), sanitize(service), sanitize(layer), gen, xxhash.Sum64String(norm))
}

// GenerationKey holds the counter bumped when a layer's data changes.
func GenerationKey(tenant, layer string) string {
	return fmt.Sprintf("%s:gen:%s:%s", prefix, sanitize(tenant), sanitize(layer))
}

func normalizeParams(params url.Values) string {
	upper := make(map[string][]string, len(params))
	names := make([]string, 0, len(params))
	for k, vs := range params {
		k = strings.ToUpper(strings.TrimSpace(k))
		if _, ok := upper[k]; !ok {
			names = append(names, k)
		}
		upper[k] = append(upper[k], vs...)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, k := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(strings.Join(upper[k], ",")))
	}
	return b.String()
}

// sanitize keeps keys printable: whitespace runs become '_', anything
// outside [A-Za-z0-9_.-] becomes '-'.
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		var out rune
		switch {
		case unicode.IsSpace(r):
			out = '_'
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.'):
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}
