// Package model defines core domain types shared across the service.
package model

import (
	"net/url"
	"strconv"
	"strings"
)

type BBox struct {
	X1, Y1 float64
	X2, Y2 float64
	SRID   string
}

// String representation matching the wms 1.3.0 bbox format
func (b BBox) String() string {
	parts := []string{
		strconv.FormatFloat(b.X1, 'f', -1, 64),
		strconv.FormatFloat(b.Y1, 'f', -1, 64),
		strconv.FormatFloat(b.X2, 'f', -1, 64),
		strconv.FormatFloat(b.Y2, 'f', -1, 64),
	}
	return strings.Join(parts, ",")
}

type Tolerances struct {
	Point   int
	Line    int
	Polygon int
}

// QueryRequest is a validated feature info request for one map.
type QueryRequest struct {
	Service      string
	Layers       []string
	Styles       []string
	I, J         int
	HasPixel     bool
	BBox         *BBox
	CRS          string
	Width        int
	Height       int
	Filter       string
	FilterGeom   string
	FeatureCount int
	Tolerances   Tolerances

	WithGeometry    bool
	WithMaptip      bool
	WithHTMLContent bool
	WithBBox        bool

	// layer name -> attribute names kept in the response
	LayerAttribs map[string][]string
	InfoFormat   string

	// unrecognized parameters, forwarded to wms backends
	Extra url.Values
}

// Position returns the query coordinates (bbox center, or origin without a bbox).
func (q QueryRequest) Position() (x, y float64) {
	if q.BBox == nil {
		return 0, 0
	}
	return 0.5 * (q.BBox.X1 + q.BBox.X2), 0.5 * (q.BBox.Y1 + q.BBox.Y2)
}

func (q QueryRequest) Resolution() float64 {
	if q.BBox == nil || q.Width <= 0 || q.Height <= 0 {
		return 0
	}
	xres := (q.BBox.X2 - q.BBox.X1) / float64(q.Width)
	yres := (q.BBox.Y2 - q.BBox.Y1) / float64(q.Height)
	return max(xres, yres)
}

// Style returns the requested style for the idx-th requested layer.
func (q QueryRequest) Style(idx int) string {
	if idx < 0 || idx >= len(q.Styles) {
		return ""
	}
	return q.Styles[idx]
}

// KeyAlias relabels one key of a structured (json) attribute value.
type KeyAlias struct {
	Key   string `yaml:"name" json:"name"`
	Alias string `yaml:"alias" json:"alias"`
}

type Attribute struct {
	Name  string
	Alias string
	// Type is "list", "dict" or the scalar type name of Value
	Type string
	// Raw holds the value after json detection, without key filtering
	Raw Value
	// Value is what templates and the envelope display
	Value       Value
	JSONAliases []KeyAlias
}

// Feature is one provider agnostic record returned for a layer.
type Feature struct {
	Layer      string
	ID         string
	BBox       *BBox
	Geometry   string
	Attributes []Attribute
}

// Attr looks up an attribute by its source name.
func (f Feature) Attr(name string) (Attribute, bool) {
	for _, a := range f.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

type Format string

const (
	FormatXML      Format = "xml"
	FormatGeoJSON  Format = "geojson"
	FormatTabular  Format = "tabular"
	FormatFeatures Format = "features"
)

// Table is the uniform tabular result of database providers.
type Table struct {
	Columns []string
	Rows    [][]Value
}

// RawResult is a provider payload tagged with its declared format.
type RawResult struct {
	Format      Format
	ContentType string
	Payload     []byte
	Table       *Table
	Features    []Feature
}
