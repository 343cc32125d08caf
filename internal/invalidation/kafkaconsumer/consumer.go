package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/featureinfo-service/internal/cache"
	"github.com/mohammed-shakir/featureinfo-service/internal/cache/keys"
	obs "github.com/mohammed-shakir/featureinfo-service/internal/core/observability"
	"github.com/mohammed-shakir/featureinfo-service/internal/invalidation"
	mylog "github.com/mohammed-shakir/featureinfo-service/internal/logger"
)

// TenantReloader drops a loaded tenant configuration.
type TenantReloader interface {
	Invalidate(name string) bool
}

// Deps are the targets of invalidation. Cache may be nil when payload
// caching is disabled; Purge may be nil.
type Deps struct {
	Cache   cache.Interface
	Tenants TenantReloader
	// forgets cached template files
	Purge func()
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	deps   Deps
	zlog   *zerolog.Logger

	mu sync.Mutex
	// scope -> newest applied event time
	seen *lru.Cache[string, time.Time]
}

func New(cfg Config, logger *slog.Logger, zl *zerolog.Logger, deps Deps) (*Consumer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	size := cfg.DedupeSize
	if size <= 0 {
		size = 4096
	}
	seen, err := lru.New[string, time.Time](size)
	if err != nil {
		return nil, fmt.Errorf("dedupe cache: %w", err)
	}
	return &Consumer{cfg: cfg, logger: logger, zlog: zl, deps: deps, seen: seen}, nil
}

// consumes invalidation events from kafka until ctx is done
func (c *Consumer) Start(ctx context.Context) error {
	if c.deps.Tenants == nil {
		return errors.New("kafkaconsumer: missing dependencies (tenants)")
	}
	if err := c.cfg.validate(); err != nil {
		return err
	}

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, c.cfg.sarama())
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &claimHandler{apply: c.ProcessOne, log: c.logger}
	ctx = mylog.WithComponent(ctx, "kafka_consumer")

	c.logger.InfoContext(ctx, "kafka invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "kafka invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				c.logger.ErrorContext(ctx, "consumer error", "err", err)
				mylog.FromContext(ctx, c.zlog).Error().Err(err).
					Strs("brokers", c.cfg.Brokers).
					Str("topic", c.cfg.Topic).
					Msg("kafka consumer error")
				select {
				case <-ctx.Done():
				case <-time.After(2 * time.Second):
				}
			}
		}
	}
}

// ProcessOne applies a single event. Undecodable or invalid events are
// logged and skipped so they do not block the partition; only failures of
// the cache are returned, which leaves the offset unmarked.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()

	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.IncInvalidation("unknown", "decode_error")
		c.kafkaError(ctx, msg, "decode", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		obs.IncInvalidation(ev.Op, "invalid")
		c.kafkaError(ctx, msg, "validate", err)
		return nil
	}
	ctx = mylog.WithTenant(ctx, ev.Tenant)
	if ev.Layer != "" {
		ctx = mylog.WithLayer(ctx, ev.Layer)
	}

	if c.stale(ev) {
		obs.IncInvalidation(ev.Op, "stale")
		c.logger.DebugContext(ctx, "skipping stale invalidation", "op", ev.Op, "ts", ev.TS)
		return nil
	}

	switch {
	case ev.Op == invalidation.OpReload:
		loaded := c.deps.Tenants.Invalidate(ev.Tenant)
		if c.deps.Purge != nil {
			c.deps.Purge()
		}
		c.logger.InfoContext(ctx, "tenant config dropped", "was_loaded", loaded, "source", ev.Source)
	case c.deps.Cache == nil:
		c.logger.DebugContext(ctx, "payload cache disabled, nothing to invalidate", "op", ev.Op)
	default:
		gen, err := c.deps.Cache.Incr(ctx, keys.GenerationKey(ev.Tenant, ev.Layer))
		if err != nil {
			obs.IncInvalidation(ev.Op, "error")
			c.kafkaError(ctx, msg, "redis_incr", err)
			return fmt.Errorf("bump generation: %w", err)
		}
		mylog.FromContext(ctx, c.zlog).Info().
			Str("event", "invalidation").
			Str("op", ev.Op).
			Int64("generation", gen).
			Dur("took", time.Since(start)).
			Msg("layer generation bumped")
	}

	c.markApplied(ev)
	obs.IncInvalidation(ev.Op, "applied")
	return nil
}

// stale reports whether a newer or equal event for the same scope was
// already applied.
func (c *Consumer) stale(ev invalidation.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.seen.Get(ev.Scope())
	return ok && !ev.TS.After(last)
}

func (c *Consumer) markApplied(ev invalidation.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.seen.Get(ev.Scope()); ok && last.After(ev.TS) {
		return
	}
	c.seen.Add(ev.Scope(), ev.TS)
}

func (c *Consumer) kafkaError(ctx context.Context, msg *sarama.ConsumerMessage, kind string, err error) {
	c.logger.WarnContext(ctx, "invalidation event rejected", "kind", kind, "err", err)
	mylog.FromContext(ctx, c.zlog).Error().
		Str("kind", kind).
		Str("topic", msg.Topic).
		Int32("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Err(err).
		Msg("kafka error")
}
