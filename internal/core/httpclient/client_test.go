package httpclient

import (
	"net/http"
	"testing"
	"time"
)

func TestNewOutbound(t *testing.T) {
	c := NewOutbound(0)
	if c.Timeout != 30*time.Second {
		t.Fatalf("timeout got=%v want=30s", c.Timeout)
	}
	tr, ok := c.Transport.(*http.Transport)
	if !ok || tr.ResponseHeaderTimeout != 30*time.Second || tr.MaxIdleConnsPerHost != 64 {
		t.Fatalf("transport=%+v", c.Transport)
	}
	if c := NewOutbound(2 * time.Second); c.Timeout != 2*time.Second {
		t.Fatalf("timeout got=%v", c.Timeout)
	}
}
