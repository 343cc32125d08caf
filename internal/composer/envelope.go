// Package composer builds and encodes the aggregated feature info
// response envelope.
package composer

import (
	"encoding/json"
	"encoding/xml"
	"html"
	"strconv"

	"github.com/mohammed-shakir/featureinfo-service/internal/core/model"
)

type Response struct {
	XMLName xml.Name `xml:"GetFeatureInfoResponse" json:"-"`
	Layers  []Layer  `xml:"Layer" json:"layers"`
}

// Layer is one section per resolved layer. Name carries the title.
type Layer struct {
	Name          string    `xml:"name,attr" json:"name"`
	LayerName     string    `xml:"layername,attr" json:"layername"`
	LayerInfo     string    `xml:"layerinfo,attr" json:"layerinfo"`
	FeatureReport string    `xml:"featurereport,attr,omitempty" json:"featurereport,omitempty"`
	DisplayField  string    `xml:"displayfield,attr,omitempty" json:"displayfield,omitempty"`
	Error         string    `xml:"error,attr,omitempty" json:"error,omitempty"`
	Features      []Feature `xml:"Feature" json:"features"`
}

type Feature struct {
	ID          string       `xml:"id,attr" json:"id"`
	HTMLContent *HTMLContent `xml:"HtmlContent,omitempty" json:"htmlcontent,omitempty"`
	BBox        *BoundingBox `xml:"BoundingBox,omitempty" json:"bbox,omitempty"`
	Attributes  []Attribute  `xml:"Attribute" json:"attributes"`
}

// HTMLContent is the rendered fragment, carried as escaped text.
type HTMLContent struct {
	Inline  string `xml:"inline,attr"`
	Content string `xml:",chardata"`
}

func (h HTMLContent) MarshalJSON() ([]byte, error) { return json.Marshal(h.Content) }

type BoundingBox struct {
	CRS  string `xml:"CRS,attr" json:"crs"`
	MinX string `xml:"minx,attr" json:"minx"`
	MinY string `xml:"miny,attr" json:"miny"`
	MaxX string `xml:"maxx,attr" json:"maxx"`
	MaxY string `xml:"maxy,attr" json:"maxy"`
}

type Attribute struct {
	Name     string `xml:"name,attr" json:"name"`
	Value    string `xml:"value,attr" json:"value"`
	AttrName string `xml:"attrname,attr,omitempty" json:"attrname,omitempty"`
	Type     string `xml:"type,attr,omitempty" json:"type,omitempty"`
}

// Options mirror the with_* request flags.
type Options struct {
	CRS             string
	WithHTMLContent bool
	WithBBox        bool
	WithGeometry    bool
}

func content(s string) *HTMLContent { return &HTMLContent{Inline: "1", Content: s} }

// FeatureElement converts a processed feature and its rendered html.
func FeatureElement(f model.Feature, fragment string, opts Options) Feature {
	out := Feature{ID: f.ID, Attributes: make([]Attribute, 0, len(f.Attributes)+1)}
	if opts.WithHTMLContent {
		out.HTMLContent = content(fragment)
	}
	if opts.WithBBox && f.BBox != nil {
		crs := f.BBox.SRID
		if crs == "" {
			crs = opts.CRS
		}
		out.BBox = &BoundingBox{
			CRS:  crs,
			MinX: formatFloat(f.BBox.X1),
			MinY: formatFloat(f.BBox.Y1),
			MaxX: formatFloat(f.BBox.X2),
			MaxY: formatFloat(f.BBox.Y2),
		}
	}
	if opts.WithGeometry && f.Geometry != "" {
		out.Attributes = append(out.Attributes, Attribute{Name: "geometry", Value: f.Geometry, Type: "derived"})
	}
	for _, a := range f.Attributes {
		alias := a.Alias
		if alias == "" {
			alias = a.Name
		}
		out.Attributes = append(out.Attributes, Attribute{Name: alias, Value: a.Value.Text(), AttrName: a.Name})
	}
	return out
}

// ErrorFragment is the html failure marker shown in place of a layer's
// features.
func ErrorFragment(msg string) string {
	return `<span class="info_error" style="color: red">` + html.EscapeString(msg) + `</span>`
}

// failureText is what clients see per error code. Causes stay in the logs.
var failureText = map[string]string{
	"UnknownLayer":      "Unknown layer",
	"Timeout":           "The layer did not answer in time",
	"UpstreamError":     "The map server could not answer the query",
	"MalformedResponse": "The map server sent an unreadable answer",
	"ConfigError":       "The layer is not configured correctly",
	"TemplateError":     "The layer info could not be rendered",
	"MapNotDefined":     "Map not defined",
}

// FailureMessage returns the client facing text for an error code.
func FailureMessage(code string) string {
	if msg, ok := failureText[code]; ok {
		return msg
	}
	return "Internal error"
}

// Failed marks l as failed with a single id-less feature holding the
// failure marker. Only the error code reaches the marker text.
func Failed(l Layer, err error) Layer {
	l.Error = model.ErrorCode(err)
	l.Features = []Feature{{HTMLContent: content(ErrorFragment(FailureMessage(l.Error))), Attributes: []Attribute{}}}
	return l
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
