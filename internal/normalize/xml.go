package normalize

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/featureinfo-service/internal/core/model"
)

type xmlAttribute struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
	Type  string `xml:"type,attr"`
}

type xmlBBox struct {
	CRS  string `xml:"CRS,attr"`
	SRS  string `xml:"SRS,attr"`
	MinX string `xml:"minx,attr"`
	MinY string `xml:"miny,attr"`
	MaxX string `xml:"maxx,attr"`
	MaxY string `xml:"maxy,attr"`
}

type xmlFeature struct {
	ID         string         `xml:"id,attr"`
	BBoxAttr   string         `xml:"bbox,attr"`
	Attributes []xmlAttribute `xml:"Attribute"`
	BBoxes     []xmlBBox      `xml:"BoundingBox"`
	Geometry   string         `xml:"Geometry"`
}

type xmlLayer struct {
	Name       string         `xml:"name,attr"`
	Features   []xmlFeature   `xml:"Feature"`
	Attributes []xmlAttribute `xml:"Attribute"`
}

type xmlResponse struct {
	Layers []xmlLayer `xml:"Layer"`
}

type xmlException struct {
	Exceptions []struct {
		Code    string `xml:"code,attr"`
		Message string `xml:",chardata"`
	} `xml:"ServiceException"`
}

// ParseXML reads a feature info document. Vector layers yield one feature
// per Feature element; raster layers (attributes directly under Layer)
// yield a single id-less feature.
func ParseXML(payload []byte) ([]model.Feature, error) {
	root, err := rootElement(payload)
	if err != nil {
		return nil, err
	}
	if root == "ServiceExceptionReport" {
		var ex xmlException
		if err := xml.Unmarshal(payload, &ex); err != nil {
			return nil, fmt.Errorf("%w: service exception: %w", model.ErrMalformedResponse, err)
		}
		msgs := make([]string, 0, len(ex.Exceptions))
		for _, e := range ex.Exceptions {
			msgs = append(msgs, strings.TrimSpace(e.Message))
		}
		return nil, fmt.Errorf("%w: service exception: %s", model.ErrUpstream, strings.Join(msgs, "; "))
	}
	if root != "GetFeatureInfoResponse" {
		return nil, fmt.Errorf("%w: unexpected root element %q", model.ErrMalformedResponse, root)
	}

	var doc xmlResponse
	if err := xml.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrMalformedResponse, err)
	}

	features := []model.Feature{}
	for _, l := range doc.Layers {
		if len(l.Features) == 0 {
			if len(l.Attributes) > 0 {
				features = append(features, model.Feature{Layer: l.Name, Attributes: toAttributes(l.Attributes, nil)})
			}
			continue
		}
		for _, xf := range l.Features {
			f := model.Feature{Layer: l.Name, ID: xf.ID, Geometry: strings.TrimSpace(xf.Geometry)}
			f.Attributes = toAttributes(xf.Attributes, &f)
			bbox, err := featureBBox(xf)
			if err != nil {
				return nil, err
			}
			f.BBox = bbox
			features = append(features, f)
		}
	}
	return features, nil
}

func rootElement(payload []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(payload))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("%w: empty document", model.ErrMalformedResponse)
		}
		if err != nil {
			return "", fmt.Errorf("%w: %w", model.ErrMalformedResponse, err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name.Local, nil
		}
	}
}

// a derived geometry attribute moves into f.Geometry
func toAttributes(in []xmlAttribute, f *model.Feature) []model.Attribute {
	out := make([]model.Attribute, 0, len(in))
	for _, a := range in {
		if f != nil && a.Name == "geometry" && a.Type == "derived" {
			f.Geometry = a.Value
			continue
		}
		v := model.String(a.Value)
		out = append(out, model.Attribute{Name: a.Name, Alias: a.Name, Type: v.Type(), Raw: v, Value: v})
	}
	return out
}

func featureBBox(xf xmlFeature) (*model.BBox, error) {
	if len(xf.BBoxes) > 0 {
		b := xf.BBoxes[len(xf.BBoxes)-1]
		crs := b.CRS
		if crs == "" {
			crs = b.SRS
		}
		return parseBBox([]string{b.MinX, b.MinY, b.MaxX, b.MaxY}, crs)
	}
	if s := strings.TrimSpace(xf.BBoxAttr); s != "" {
		parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
		return parseBBox(parts, "")
	}
	return nil, nil
}

func parseBBox(parts []string, crs string) (*model.BBox, error) {
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: bbox needs 4 numbers, got %d", model.ErrMalformedResponse, len(parts))
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bbox value %q", model.ErrMalformedResponse, p)
		}
		v[i] = f
	}
	return &model.BBox{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3], SRID: crs}, nil
}
