// Package logger builds the zerolog root logger and carries request scoped
// fields (request id, tenant, service, layer) through context.
package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level   string
	Console bool
	// SampleN keeps one in N debug and info lines. Warnings always pass.
	SampleN   int
	Component string
}

// Fields are the request scoped values stamped on every log line.
type Fields struct {
	RequestID string
	Tenant    string
	Service   string
	Layer     string
	Component string
}

type fieldsKey struct{}

func fieldsFrom(ctx context.Context) Fields {
	f, _ := ctx.Value(fieldsKey{}).(Fields)
	return f
}

func update(ctx context.Context, fn func(*Fields)) context.Context {
	f := fieldsFrom(ctx)
	fn(&f)
	return context.WithValue(ctx, fieldsKey{}, f)
}

// WithRequestID stores id, generating one when empty.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = NewID()
	}
	return update(ctx, func(f *Fields) { f.RequestID = id })
}

func RequestID(ctx context.Context) string { return fieldsFrom(ctx).RequestID }

func WithTenant(ctx context.Context, v string) context.Context {
	if v == "" {
		return ctx
	}
	return update(ctx, func(f *Fields) { f.Tenant = v })
}

func WithService(ctx context.Context, v string) context.Context {
	if v == "" {
		return ctx
	}
	return update(ctx, func(f *Fields) { f.Service = v })
}

func WithLayer(ctx context.Context, v string) context.Context {
	if v == "" {
		return ctx
	}
	return update(ctx, func(f *Fields) { f.Layer = v })
}

func WithComponent(ctx context.Context, v string) context.Context {
	if v == "" {
		return ctx
	}
	return update(ctx, func(f *Fields) { f.Component = v })
}

func NewID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func (f Fields) apply(c zerolog.Context) zerolog.Context {
	for _, kv := range [...][2]string{
		{"request_id", f.RequestID},
		{"tenant", f.Tenant},
		{"service", f.Service},
		{"layer", f.Layer},
		{"component", f.Component},
	} {
		if kv[1] != "" {
			c = c.Str(kv[0], kv[1])
		}
	}
	return c
}

func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Build returns the root logger. The level is set on the logger itself so
// tests can build several loggers side by side.
func Build(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.MessageFieldName = "msg"

	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	zl := zerolog.New(out).Level(parseLevel(cfg.Level))
	if cfg.SampleN > 1 {
		zl = zl.Sample(zerolog.LevelSampler{
			DebugSampler: &zerolog.BasicSampler{N: uint32(min(cfg.SampleN, 1<<20))},
			InfoSampler:  &zerolog.BasicSampler{N: uint32(min(cfg.SampleN, 1<<20))},
		})
	}

	c := zl.With().Timestamp()
	if cfg.Component != "" {
		c = c.Str("component", cfg.Component)
	}
	return c.Logger()
}

// FromContext derives a child of parent carrying the context fields.
// A nil parent yields a discarding logger.
func FromContext(ctx context.Context, parent *zerolog.Logger) *zerolog.Logger {
	if parent == nil {
		l := zerolog.Nop()
		return &l
	}
	l := fieldsFrom(ctx).apply(parent.With()).Logger()
	return &l
}
