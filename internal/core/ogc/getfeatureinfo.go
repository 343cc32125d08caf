// Package ogc builds WMS GetFeatureInfo requests and exception reports.
package ogc

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/featureinfo-service/internal/core/model"
)

const (
	InfoFormatXML  = "text/xml"
	InfoFormatJSON = "application/json"
)

// WMSEndpoint resolves service against base the way a browser resolves a
// relative link, so "http://qgis/ows/" + "a/b" gives "http://qgis/ows/a/b".
func WMSEndpoint(base, service string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse wms url %q: %w", base, err)
	}
	return u.ResolveReference(&url.URL{Path: strings.TrimLeft(service, "/")}).String(), nil
}

// BuildGetFeatureInfoParams forwards the query for a single layer. Extra
// request parameters are copied first so the protocol parameters win.
func BuildGetFeatureInfoParams(q model.QueryRequest, layer, style, infoFormat string) url.Values {
	params := url.Values{}
	for k, vs := range q.Extra {
		for _, v := range vs {
			params.Add(k, v)
		}
	}
	if strings.TrimSpace(infoFormat) == "" {
		infoFormat = InfoFormatXML
	}

	params.Set("SERVICE", "WMS")
	params.Set("VERSION", "1.3.0")
	params.Set("REQUEST", "GetFeatureInfo")
	params.Set("LAYERS", layer)
	params.Set("QUERY_LAYERS", layer)
	params.Set("STYLES", style)
	params.Set("INFO_FORMAT", infoFormat)
	params.Set("CRS", q.CRS)
	params.Set("WIDTH", strconv.Itoa(q.Width))
	params.Set("HEIGHT", strconv.Itoa(q.Height))
	params.Set("FEATURE_COUNT", strconv.Itoa(max(q.FeatureCount, 1)))
	params.Set("FI_POINT_TOLERANCE", strconv.Itoa(q.Tolerances.Point))
	params.Set("FI_LINE_TOLERANCE", strconv.Itoa(q.Tolerances.Line))
	params.Set("FI_POLYGON_TOLERANCE", strconv.Itoa(q.Tolerances.Polygon))
	params.Set("WITH_GEOMETRY", strconv.FormatBool(q.WithGeometry))
	params.Set("WITH_MAPTIP", strconv.FormatBool(q.WithMaptip))

	if q.BBox != nil {
		params.Set("BBOX", q.BBox.String())
	}
	if q.HasPixel {
		params.Set("I", strconv.Itoa(q.I))
		params.Set("J", strconv.Itoa(q.J))
	}
	if q.Filter != "" {
		params.Set("FILTER", q.Filter)
	}
	if q.FilterGeom != "" {
		params.Set("FILTER_GEOM", q.FilterGeom)
	}
	return params
}
