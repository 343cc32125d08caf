// Package normalize turns provider payloads into ordered features.
package normalize

import (
	"fmt"

	"github.com/mohammed-shakir/featureinfo-service/internal/core/model"
)

const (
	// tabular column holding the feature id
	ColumnFID = "_fid_"
	// tabular column holding the geometry as wkt
	ColumnGeometry = "wkt_geom"
)

type Options struct {
	IDProperty string
}

// Normalize parses res according to its declared format. An empty result
// is an empty, non-nil slice.
func Normalize(res model.RawResult, opts Options) ([]model.Feature, error) {
	switch res.Format {
	case model.FormatXML:
		return ParseXML(res.Payload)
	case model.FormatGeoJSON:
		return ParseGeoJSON(res.Payload, opts.IDProperty)
	case model.FormatTabular:
		if res.Table == nil {
			return nil, fmt.Errorf("%w: tabular result without table", model.ErrMalformedResponse)
		}
		return FromTable(*res.Table)
	case model.FormatFeatures:
		if res.Features == nil {
			return []model.Feature{}, nil
		}
		return res.Features, nil
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", model.ErrMalformedResponse, res.Format)
	}
}

// FromTable maps each row to a feature, columns to attributes in column
// order. The _fid_ and wkt_geom columns become id and geometry.
func FromTable(t model.Table) ([]model.Feature, error) {
	features := make([]model.Feature, 0, len(t.Rows))
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return nil, fmt.Errorf("%w: row %d has %d values for %d columns",
				model.ErrMalformedResponse, i, len(row), len(t.Columns))
		}
		var f model.Feature
		for c, col := range t.Columns {
			v := row[c]
			switch col {
			case ColumnFID:
				f.ID = v.Text()
			case ColumnGeometry:
				f.Geometry = v.Text()
			default:
				f.Attributes = append(f.Attributes, model.Attribute{
					Name: col, Alias: col, Type: v.Type(), Raw: v, Value: v,
				})
			}
		}
		features = append(features, f)
	}
	return features, nil
}
