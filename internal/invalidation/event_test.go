package invalidation

import (
	"testing"
	"time"
)

func mustTS() time.Time { return time.Date(2025, 10, 26, 12, 30, 45, 0, time.UTC) }

func TestEvent_Validate(t *testing.T) {
	cases := []struct {
		name    string
		ev      Event
		wantErr bool
	}{
		{"update", Event{Version: 1, Op: OpUpdate, Tenant: "default", Layer: "lakes", TS: mustTS()}, false},
		{"reload without layer", Event{Version: 1, Op: OpReload, Tenant: "default", TS: mustTS()}, false},
		{"bad version", Event{Version: 2, Op: OpUpdate, Tenant: "default", Layer: "lakes", TS: mustTS()}, true},
		{"bad op", Event{Version: 1, Op: "truncate", Tenant: "default", Layer: "lakes", TS: mustTS()}, true},
		{"missing tenant", Event{Version: 1, Op: OpInsert, Layer: "lakes", TS: mustTS()}, true},
		{"missing layer", Event{Version: 1, Op: OpDelete, Tenant: "default", TS: mustTS()}, true},
		{"missing ts", Event{Version: 1, Op: OpUpdate, Tenant: "default", Layer: "lakes"}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.ev.Validate()
			if (err != nil) != c.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, c.wantErr)
			}
		})
	}
}

func TestEvent_Scope(t *testing.T) {
	a := Event{Op: OpUpdate, Tenant: "t", Layer: "lakes"}
	b := Event{Op: OpDelete, Tenant: "t", Layer: "lakes"}
	r := Event{Op: OpReload, Tenant: "t", Layer: "lakes"}
	if a.Scope() != b.Scope() {
		t.Fatalf("data ops on one layer must share a scope: %q %q", a.Scope(), b.Scope())
	}
	if r.Scope() == a.Scope() || r.DataChange() {
		t.Fatalf("reload scope=%q", r.Scope())
	}
}
