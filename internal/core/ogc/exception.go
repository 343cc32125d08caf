package ogc

import (
	"encoding/xml"
	"fmt"
)

type serviceExceptionReport struct {
	XMLName    xml.Name         `xml:"ServiceExceptionReport"`
	Version    string           `xml:"version,attr"`
	Exceptions []serviceExcItem `xml:"ServiceException"`
}

type serviceExcItem struct {
	Code    string `xml:"code,attr,omitempty"`
	Message string `xml:",chardata"`
}

// ServiceException renders a single entry ServiceExceptionReport.
func ServiceException(code, message string) ([]byte, error) {
	b, err := xml.Marshal(serviceExceptionReport{
		Version:    "1.3.0",
		Exceptions: []serviceExcItem{{Code: code, Message: message}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal service exception: %w", err)
	}
	return b, nil
}
