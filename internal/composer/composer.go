package composer

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"mime"
	"strconv"
	"strings"
)

// Format is an output encoding of the aggregated response.
type Format int

const (
	FormatXML Format = iota
	FormatJSON
)

func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json; charset=utf-8"
	}
	return "text/xml; charset=utf-8"
}

func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "xml"
}

var mediaFormats = map[string]Format{
	"xml":              FormatXML,
	"text/xml":         FormatXML,
	"application/xml":  FormatXML,
	"application/gml":  FormatXML,
	"json":             FormatJSON,
	"application/json": FormatJSON,
	"text/json":        FormatJSON,
}

func lookup(mediaType string) (Format, bool) {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	f, ok := mediaFormats[mt]
	return f, ok
}

// Negotiate picks the output format. A recognised info_format wins, then
// the Accept entry with the highest q value, then def.
func Negotiate(infoFormat, accept string, def Format) Format {
	if f, ok := lookup(infoFormat); ok {
		return f
	}
	best, bestQ := def, -1.0
	for _, rng := range strings.Split(accept, ",") {
		mt, params, err := mime.ParseMediaType(strings.TrimSpace(rng))
		if err != nil {
			continue
		}
		q := 1.0
		if v, err := strconv.ParseFloat(params["q"], 64); err == nil {
			q = v
		}
		f, ok := lookup(mt)
		if mt == "*/*" {
			f, ok = def, true
		}
		if ok && q > bestQ {
			best, bestQ = f, q
		}
	}
	return best
}

// Compose encodes resp in the format negotiated from infoFormat and accept.
// XML is the default encoding.
func Compose(resp Response, infoFormat, accept string) (body []byte, contentType string, err error) {
	f := Negotiate(infoFormat, accept, FormatXML)
	switch f {
	case FormatJSON:
		body, err = json.Marshal(struct {
			Response Response `json:"GetFeatureInfoResponse"`
		}{resp})
	default:
		body, err = xml.Marshal(resp)
	}
	if err != nil {
		return nil, "", fmt.Errorf("encode %s response: %w", f, err)
	}
	return body, f.ContentType(), nil
}
