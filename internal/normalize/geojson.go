package normalize

import (
	"fmt"

	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/featureinfo-service/internal/core/model"
)

// ParseGeoJSON accepts a FeatureCollection, a single Feature or a bare
// array of features. Properties keep their document order; geometries are
// converted to WKT. idProperty names a property used as id when the
// feature has no id member.
func ParseGeoJSON(payload []byte, idProperty string) ([]model.Feature, error) {
	doc, err := model.ParseJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrMalformedResponse, err)
	}

	var items []model.Value
	switch doc.Kind() {
	case model.KindList:
		items = doc.Items()
	case model.KindDict:
		typ, _ := doc.Lookup("type")
		switch typ.Str() {
		case "FeatureCollection":
			fs, ok := doc.Lookup("features")
			if !ok || fs.Kind() != model.KindList {
				return nil, fmt.Errorf("%w: feature collection without features", model.ErrMalformedResponse)
			}
			items = fs.Items()
		case "Feature":
			items = []model.Value{doc}
		default:
			return nil, fmt.Errorf("%w: unexpected geojson type %q", model.ErrMalformedResponse, typ.Str())
		}
	default:
		return nil, fmt.Errorf("%w: geojson must be an object or array", model.ErrMalformedResponse)
	}

	features := make([]model.Feature, 0, len(items))
	for i, it := range items {
		f, err := geoJSONFeature(it, idProperty)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		features = append(features, f)
	}
	return features, nil
}

func geoJSONFeature(v model.Value, idProperty string) (model.Feature, error) {
	if v.Kind() != model.KindDict {
		return model.Feature{}, fmt.Errorf("%w: feature is not an object", model.ErrMalformedResponse)
	}
	var f model.Feature

	if id, ok := v.Lookup("id"); ok && !id.IsNull() {
		f.ID = id.Text()
	}

	if g, ok := v.Lookup("geometry"); ok && !g.IsNull() {
		raw, err := g.MarshalJSON()
		if err != nil {
			return f, fmt.Errorf("%w: geometry: %w", model.ErrMalformedResponse, err)
		}
		geom, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			return f, fmt.Errorf("%w: geometry: %w", model.ErrMalformedResponse, err)
		}
		f.Geometry = wkt.MarshalString(geom.Geometry())
	}

	if b, ok := v.Lookup("bbox"); ok && b.Kind() == model.KindList {
		parts := make([]string, 0, 4)
		for _, n := range b.Items() {
			parts = append(parts, n.Text())
		}
		// 3d boxes are [minx, miny, minz, maxx, maxy, maxz]
		if len(parts) == 6 {
			parts = []string{parts[0], parts[1], parts[3], parts[4]}
		}
		bbox, err := parseBBox(parts, "")
		if err != nil {
			return f, err
		}
		f.BBox = bbox
	}

	props, ok := v.Lookup("properties")
	if ok && !props.IsNull() && props.Kind() != model.KindDict {
		return f, fmt.Errorf("%w: properties is not an object", model.ErrMalformedResponse)
	}
	for _, e := range props.Entries() {
		if f.ID == "" && idProperty != "" && e.Key == idProperty {
			f.ID = e.Value.Text()
		}
		val := e.Value
		// nested json arrives as text from wms backends; keep that shape
		if !val.IsScalar() {
			val = model.String(val.Text())
		}
		f.Attributes = append(f.Attributes, model.Attribute{
			Name: e.Key, Alias: e.Key, Type: val.Type(), Raw: val, Value: val,
		})
	}
	return f, nil
}
