package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestSlog_CarriesContextFields(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "debug", Component: "featureinfo"}, &buf)
	log := NewSlog(&zl)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithTenant(ctx, "acme")
	ctx = WithLayer(ctx, "rivers")
	ctx = WithService(ctx, "")

	log.InfoContext(ctx, "layer done", "features", 3)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	for k, want := range map[string]any{
		"request_id": "req-1",
		"tenant":     "acme",
		"layer":      "rivers",
		"msg":        "layer done",
		"features":   float64(3),
	} {
		if line[k] != want {
			t.Fatalf("%s got=%v want=%v", k, line[k], want)
		}
	}
	if _, ok := line["service"]; ok {
		t.Fatal("empty service must not be logged")
	}
}

func TestWithRequestID_Generates(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	if id := RequestID(ctx); len(id) != 16 {
		t.Fatalf("id=%q want 16 hex chars", id)
	}
}

func TestSlog_LevelAndGroups(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "warn"}, &buf)
	log := NewSlog(&zl)

	log.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info line written at warn level: %q", buf.String())
	}

	log.WithGroup("sql").Warn("slow query", "rows", 12, slog.Group("conn", "pool", "main"))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if line["level"] != "warn" {
		t.Fatalf("level got=%v want=warn", line["level"])
	}
	if line["sql.rows"] != float64(12) {
		t.Fatalf("sql.rows got=%v want=12", line["sql.rows"])
	}
	if line["sql.conn.pool"] != "main" {
		t.Fatalf("sql.conn.pool got=%v want=main", line["sql.conn.pool"])
	}
}

func TestFromContext_NilParent(t *testing.T) {
	l := FromContext(WithTenant(context.Background(), "acme"), nil)
	l.Info().Msg("nothing")
}
