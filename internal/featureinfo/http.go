package featureinfo

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mohammed-shakir/featureinfo-service/internal/auth"
	"github.com/mohammed-shakir/featureinfo-service/internal/composer"
	"github.com/mohammed-shakir/featureinfo-service/internal/core/model"
	"github.com/mohammed-shakir/featureinfo-service/internal/core/ogc"
	"github.com/mohammed-shakir/featureinfo-service/internal/logger"
	"github.com/mohammed-shakir/featureinfo-service/internal/tenant"
)

type HandlerOptions struct {
	// request header carrying the tenant name
	TenantHeader   string
	DefaultTenant  string
	RequestTimeout time.Duration
}

// Handler serves validated requests through a Service.
type Handler struct {
	logger *slog.Logger
	svc    *Service
	opts   HandlerOptions
}

func NewHandler(logger *slog.Logger, svc *Service, opts HandlerOptions) *Handler {
	if opts.TenantHeader == "" {
		opts.TenantHeader = "Tenant"
	}
	if opts.DefaultTenant == "" {
		opts.DefaultTenant = "default"
	}
	return &Handler{logger: logger, svc: svc, opts: opts}
}

func (h *Handler) tenant(r *http.Request) string {
	if t := strings.TrimSpace(r.Header.Get(h.opts.TenantHeader)); t != "" {
		return t
	}
	return h.opts.DefaultTenant
}

func (h *Handler) HandleQuery(ctx context.Context, w http.ResponseWriter, r *http.Request, q model.QueryRequest) {
	if h.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.RequestTimeout)
		defer cancel()
	}
	query := Query{
		Tenant:   h.tenant(r),
		Service:  q.Service,
		Request:  q,
		Identity: auth.FromContext(ctx),
	}
	ctx = logger.WithComponent(ctx, "featureinfo")

	rq, err := h.svc.Execute(ctx, query)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrMapNotDefined):
		msg := strings.TrimPrefix(err.Error(), model.ErrMapNotDefined.Error()+": ")
		h.serviceException(ctx, w, model.ErrorCode(err), msg)
		return
	case errors.Is(err, tenant.ErrUnknownTenant):
		http.Error(w, "unknown tenant", http.StatusNotFound)
		return
	default:
		h.logger.ErrorContext(ctx, "feature info request failed", "tenant", query.Tenant, "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	body, ct, err := composer.Compose(rq.Envelope(q), q.InfoFormat, r.Header.Get("Accept"))
	if err != nil {
		h.logger.ErrorContext(ctx, "compose failed", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.logger.DebugContext(ctx, "write response", "err", err)
	}
}

// serviceException answers with an OGC exception report and status 200,
// which is what wms clients expect.
func (h *Handler) serviceException(ctx context.Context, w http.ResponseWriter, code, msg string) {
	body, err := ogc.ServiceException(code, msg)
	if err != nil {
		h.logger.ErrorContext(ctx, "service exception", "err", err)
		http.Error(w, msg, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
