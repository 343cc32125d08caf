// Package invalidation defines the events that expire cached feature info
// payloads and loaded tenant configurations.
package invalidation

import (
	"fmt"
	"strings"
	"time"
)

const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
	// drops the tenant's loaded configuration; layer is ignored
	OpReload = "reload"
)

type Event struct {
	Version int       `json:"version"`
	Op      string    `json:"op"`
	Tenant  string    `json:"tenant"`
	Layer   string    `json:"layer,omitempty"`
	TS      time.Time `json:"ts"`
	Source  string    `json:"source,omitempty"`
}

// DataChange reports whether the event bumps a layer generation.
func (e Event) DataChange() bool {
	switch e.Op {
	case OpInsert, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Scope identifies what the event applies to; events with the same scope
// are ordered by TS.
func (e Event) Scope() string {
	if e.Op == OpReload {
		return e.Tenant + "|*"
	}
	return e.Tenant + "|" + e.Layer
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case OpInsert, OpUpdate, OpDelete, OpReload:
	default:
		return fmt.Errorf("op must be insert|update|delete|reload")
	}
	if strings.TrimSpace(e.Tenant) == "" {
		return fmt.Errorf("tenant is required")
	}
	if e.DataChange() && strings.TrimSpace(e.Layer) == "" {
		return fmt.Errorf("layer is required for %s", e.Op)
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}
