package composer

import "testing"

func TestNegotiate(t *testing.T) {
	cases := []struct {
		name       string
		infoFormat string
		accept     string
		def        Format
		want       Format
	}{
		{"info format wins", "application/json", "text/xml", FormatXML, FormatJSON},
		{"info format with params", "text/xml; subtype=gml/3.1.1", "application/json", FormatJSON, FormatXML},
		{"accept by q", "", "text/xml;q=0.4, application/json;q=0.9", FormatXML, FormatJSON},
		{"unknown accept", "", "image/png", FormatXML, FormatXML},
		{"wildcard uses default", "", "*/*", FormatJSON, FormatJSON},
		{"unknown info format falls through", "text/html", "application/json", FormatXML, FormatJSON},
		{"empty", "", "", FormatXML, FormatXML},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Negotiate(tc.infoFormat, tc.accept, tc.def); got != tc.want {
				t.Fatalf("got=%v want=%v", got, tc.want)
			}
		})
	}
}

func TestFormatContentType(t *testing.T) {
	if got := FormatJSON.ContentType(); got != "application/json; charset=utf-8" {
		t.Fatalf("got=%q", got)
	}
	if got := FormatXML.ContentType(); got != "text/xml; charset=utf-8" {
		t.Fatalf("got=%q", got)
	}
}
