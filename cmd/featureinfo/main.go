package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/featureinfo-service/internal/auth"
	"github.com/mohammed-shakir/featureinfo-service/internal/cache"
	"github.com/mohammed-shakir/featureinfo-service/internal/cache/redisstore"
	"github.com/mohammed-shakir/featureinfo-service/internal/core/config"
	"github.com/mohammed-shakir/featureinfo-service/internal/core/health"
	"github.com/mohammed-shakir/featureinfo-service/internal/core/httpclient"
	"github.com/mohammed-shakir/featureinfo-service/internal/core/observability"
	"github.com/mohammed-shakir/featureinfo-service/internal/core/server"
	"github.com/mohammed-shakir/featureinfo-service/internal/featureinfo"
	"github.com/mohammed-shakir/featureinfo-service/internal/invalidation"
	"github.com/mohammed-shakir/featureinfo-service/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/featureinfo-service/internal/logger"
	"github.com/mohammed-shakir/featureinfo-service/internal/metrics"
	"github.com/mohammed-shakir/featureinfo-service/internal/provider"
	"github.com/mohammed-shakir/featureinfo-service/internal/render"
	"github.com/mohammed-shakir/featureinfo-service/internal/tenant"
)

// set with -ldflags
var (
	Version   = "dev"
	Revision  = ""
	Branch    = ""
	BuildDate = ""
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "featureinfo",
		Short:         "Feature info service for configured map layers",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newServeCmd(), newCheckConfigCmd(), newInvalidateCmd(), newVersionCmd())
	return root
}

func loadConfig() config.Config {
	cfg := config.FromEnv()
	if os.Getenv("BUILD_VERSION") == "" {
		cfg.Build = config.BuildInfo{Version: Version, Revision: Revision, Branch: Branch, Date: BuildDate}
	}
	return cfg
}

func buildLogger(cfg config.Config, out io.Writer, component string) (zerolog.Logger, *slog.Logger) {
	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   int(cfg.LogSampleN),
		Component: component,
	}, out)
	return zl, logger.NewSlog(&zl)
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve feature info requests over http",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadConfig()
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Addr = addr
			}
			if dir, _ := cmd.Flags().GetString("config-dir"); dir != "" {
				cfg.ConfigDir = dir
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides ADDR)")
	cmd.Flags().String("config-dir", "", "tenant config directory (overrides CONFIG_DIR)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	zl, appLog := buildLogger(cfg, os.Stdout, "featureinfo")
	appLog.Info("starting featureinfo",
		"addr", cfg.Addr,
		"version", cfg.Build.Version,
		"config_dir", cfg.ConfigDir,
		"cache", cfg.CacheEnabled,
		"invalidation", cfg.Invalidation.Enabled)

	prom := metrics.Init(cfg.Build)
	observability.Init(prom.Registerer())

	shutdownTracing, err := observability.InitTracing(ctx, cfg.TracingExporter, "featureinfo", cfg.Build.Version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	a, err := assemble(ctx, cfg, appLog)
	if err != nil {
		appLog.Error("startup failed", "err", err)
		return err
	}
	defer a.close()

	checks := map[string]health.Check{
		"config": func(context.Context) error {
			_, err := os.Stat(cfg.ConfigDir)
			return err
		},
	}
	if a.redis != nil {
		checks["redis"] = a.redis.Ping
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, cfg, appLog, server.Deps{
			Handler:  a.handler,
			Verifier: auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer),
			Checks:   checks,
			Metrics:  prom.Handler(),
		})
	})
	if cfg.Invalidation.Enabled {
		consumer, err := kafkaconsumer.New(kafkaconsumer.FromConfig(cfg.Invalidation), appLog, &zl, kafkaconsumer.Deps{
			Cache:   a.store,
			Tenants: a.registry,
			Purge:   a.sources.Purge,
		})
		if err != nil {
			return fmt.Errorf("invalidation consumer: %w", err)
		}
		g.Go(func() error { return consumer.Start(gctx) })
	}

	if err := g.Wait(); err != nil {
		appLog.Error("server exited with error", "err", err)
		return err
	}
	appLog.Info("server stopped")
	return nil
}

// app holds the long lived collaborators of one process.
type app struct {
	registry *tenant.Registry
	sources  *render.Sources
	sql      *provider.SQL
	redis    *redisstore.Client
	// nil when caching is disabled
	store   cache.Interface
	service *featureinfo.Service
	handler *featureinfo.Handler
}

func assemble(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{registry: tenant.NewRegistry(log, cfg.ConfigDir)}

	sources, err := render.NewSources(cfg.TemplateDir, cfg.TemplateCacheSize)
	if err != nil {
		return nil, err
	}
	a.sources = sources

	client := httpclient.NewOutbound(cfg.LayerTimeout)
	wms := provider.NewWMS(log, client, cfg.DefaultWMSURL).WithMaxResponseBytes(cfg.WMSMaxResponseBytes)
	var wmsProvider provider.Provider = wms
	if cfg.CacheEnabled {
		rc, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.redis, a.store = rc, rc
		wmsProvider = provider.NewCached(log, wms, rc, cfg.CacheTTLDefault, cfg.CacheOpTimeout).
			WithTTLOverrides(cfg.CacheTTLOvr)
	}
	a.sql = provider.NewSQL(log, cfg.DefaultDBURL, cfg.DBMaxConns)
	dispatcher := provider.NewDispatcher(log, wmsProvider, a.sql, provider.DefaultModules())

	var embed render.Embedder
	if cfg.EmbedImages {
		e, err := render.NewImageEmbedder(log, client, cfg.EmbedImageMaxBytes, cfg.LayerTimeout, cfg.TemplateCacheSize)
		if err != nil {
			a.close()
			return nil, err
		}
		embed = e
	}

	a.service, err = featureinfo.New(log, a.registry, dispatcher, sources, embed, featureinfo.Options{
		LayerTimeout:      cfg.LayerTimeout,
		MaxWorkers:        cfg.MaxLayerWorkers,
		TemplateCacheSize: cfg.TemplateCacheSize,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.handler = featureinfo.NewHandler(log, a.service, featureinfo.HandlerOptions{
		TenantHeader:   cfg.TenantHeader,
		DefaultTenant:  cfg.DefaultTenant,
		RequestTimeout: cfg.RequestTimeout,
	})
	return a, nil
}

func (a *app) close() {
	if a.sql != nil {
		a.sql.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.sources != nil {
		_ = a.sources.Close()
	}
}

func newCheckConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config [tenant...]",
		Short: "Load tenant configs and compile their templates",
		Long: "Loads every tenant config in CONFIG_DIR (or the named tenants), builds the layer trees " +
			"and compiles every reachable template. No backend is contacted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			cfg.CacheEnabled = false
			_, log := buildLogger(cfg, io.Discard, "check-config")
			a, err := assemble(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			names := args
			if len(names) == 0 {
				if names, err = tenantNames(cfg.ConfigDir); err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			failed := 0
			for _, name := range names {
				t, err := a.registry.Get(name)
				if err != nil {
					failed++
					fmt.Fprintf(out, "FAIL %s: %v\n", name, err)
					continue
				}
				errs := a.service.Check(t)
				if len(errs) == 0 {
					fmt.Fprintf(out, "ok   %s (%s)\n", name, strings.Join(t.Services(), ", "))
					continue
				}
				failed++
				for _, e := range errs {
					fmt.Fprintf(out, "FAIL %v\n", e)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d tenants have errors", failed, len(names))
			}
			return nil
		},
	}
}

func tenantNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read config dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	if len(names) == 0 {
		return nil, errors.New("no tenant configs found in " + dir)
	}
	sort.Strings(names)
	return names, nil
}

func newInvalidateCmd() *cobra.Command {
	var ev invalidation.Event
	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Publish an invalidation event to KAFKA_TOPIC",
		Long: "Bumps a layer generation (--op insert|update|delete) or drops a tenant's loaded " +
			"config (--op reload) on every running instance.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadConfig()
			kc := kafkaconsumer.FromConfig(cfg.Invalidation)
			pub, err := invalidation.DialPublisher(kc.Brokers, kc.Topic)
			if err != nil {
				return err
			}
			defer func() { _ = pub.Close() }()

			if ev.Source == "" {
				ev.Source = "cli"
			}
			part, off, err := pub.Publish(cmd.Context(), ev)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %s %s to %s (partition %d, offset %d)\n",
				ev.Op, ev.Scope(), kc.Topic, part, off)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&ev.Op, "op", invalidation.OpUpdate, "insert|update|delete|reload")
	f.StringVar(&ev.Tenant, "tenant", "default", "tenant name")
	f.StringVar(&ev.Layer, "layer", "", "layer name (not needed for reload)")
	f.StringVar(&ev.Source, "source", "", "free form origin recorded with the event")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			b := loadConfig().Build
			fmt.Fprintf(cmd.OutOrStdout(), "featureinfo %s (revision %s, branch %s, built %s)\n",
				b.Version, b.Revision, b.Branch, b.Date)
		},
	}
}
