// Package provider fetches raw feature info payloads for one layer from a
// wms backend, a database or a registered module.
package provider

import (
	"context"

	"github.com/mohammed-shakir/featureinfo-service/internal/auth"
	"github.com/mohammed-shakir/featureinfo-service/internal/core/model"
	"github.com/mohammed-shakir/featureinfo-service/internal/layertree"
)

// Request is everything a provider may use for one layer fetch.
type Request struct {
	Tenant  string
	Service string
	Layer   string
	Style   string
	// effective info template; never nil
	Template *layertree.InfoTemplate
	Query    model.QueryRequest
	Identity auth.Identity

	// tenant level fallbacks
	DefaultWMSURL string
	DefaultDBURL  string
}

// Position is the query coordinate handed to providers.
func (r Request) Position() (float64, float64) { return r.Query.Position() }

type Provider interface {
	Fetch(ctx context.Context, req Request) (model.RawResult, error)
}

// Func adapts a function to Provider.
type Func func(ctx context.Context, req Request) (model.RawResult, error)

func (f Func) Fetch(ctx context.Context, req Request) (model.RawResult, error) { return f(ctx, req) }
