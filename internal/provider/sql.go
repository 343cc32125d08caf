package provider

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mohammed-shakir/featureinfo-service/internal/core/model"
	"github.com/mohammed-shakir/featureinfo-service/internal/core/observability"
)

const DefaultSRID = 2056

// Beginner starts transactions; *pgxpool.Pool satisfies it.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

type Connector func(ctx context.Context, dbURL string) (Beginner, error)

// SQL runs the configured layer query in a read-only transaction.
type SQL struct {
	logger     *slog.Logger
	defaultURL string
	connect    Connector

	mu    sync.Mutex
	dbs   map[string]Beginner
	pools []*pgxpool.Pool
}

func NewSQL(logger *slog.Logger, defaultURL string, maxConns int32) *SQL {
	s := &SQL{logger: logger, defaultURL: defaultURL, dbs: map[string]Beginner{}}
	s.connect = func(ctx context.Context, dbURL string) (Beginner, error) {
		cfg, err := pgxpool.ParseConfig(dbURL)
		if err != nil {
			return nil, fmt.Errorf("parse db url: %w", err)
		}
		if maxConns > 0 {
			cfg.MaxConns = maxConns
		}
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create pool: %w", err)
		}
		s.pools = append(s.pools, pool)
		return pool, nil
	}
	return s
}

// NewSQLWithConnector is used by tests to bypass pgxpool.
func NewSQLWithConnector(logger *slog.Logger, defaultURL string, c Connector) *SQL {
	return &SQL{logger: logger, defaultURL: defaultURL, connect: c, dbs: map[string]Beginner{}}
}

func (s *SQL) db(ctx context.Context, dbURL string) (Beginner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[dbURL]; ok {
		return db, nil
	}
	db, err := s.connect(ctx, dbURL)
	if err != nil {
		return nil, err
	}
	s.dbs[dbURL] = db
	return db, nil
}

func (s *SQL) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pools {
		p.Close()
	}
	s.pools = nil
	s.dbs = map[string]Beginner{}
}

var placeholderRe = regexp.MustCompile(`(^|[^:]):(x|y|geom|srid|crs|layer|resolution)\b`)

// RewritePlaceholders accepts :name placeholders and turns them into pgx
// named arguments. Casts like ::int are left alone.
func RewritePlaceholders(query string) string {
	return placeholderRe.ReplaceAllString(query, "${1}@${2}")
}

// SRID extracts the numeric code of an "EPSG:nnnn" style crs.
func SRID(crs string) int {
	i := strings.LastIndex(crs, ":")
	n, err := strconv.Atoi(strings.TrimSpace(crs[i+1:]))
	if err != nil {
		return DefaultSRID
	}
	return n
}

// Args are the bound parameters of a layer query.
func Args(req Request) pgx.NamedArgs {
	x, y := req.Position()
	geom := req.Query.FilterGeom
	if geom == "" {
		geom = fmt.Sprintf("POINT(%s %s)",
			strconv.FormatFloat(x, 'f', -1, 64), strconv.FormatFloat(y, 'f', -1, 64))
	}
	return pgx.NamedArgs{
		"x":          x,
		"y":          y,
		"geom":       geom,
		"srid":       SRID(req.Query.CRS),
		"crs":        req.Query.CRS,
		"layer":      req.Layer,
		"resolution": req.Query.Resolution(),
	}
}

func (s *SQL) Fetch(ctx context.Context, req Request) (model.RawResult, error) {
	if req.Template == nil || strings.TrimSpace(req.Template.SQL) == "" {
		return model.RawResult{}, fmt.Errorf("%w: layer %q has no sql query", model.ErrConfig, req.Layer)
	}
	dbURL := req.Template.DBURL
	if dbURL == "" {
		dbURL = req.DefaultDBURL
	}
	if dbURL == "" {
		dbURL = s.defaultURL
	}
	if dbURL == "" {
		return model.RawResult{}, fmt.Errorf("%w: no database for layer %q", model.ErrConfig, req.Layer)
	}

	db, err := s.db(ctx, dbURL)
	if err != nil {
		return model.RawResult{}, fmt.Errorf("%w: %w", model.ErrConfig, err)
	}

	start := time.Now()
	table, err := s.query(ctx, db, RewritePlaceholders(req.Template.SQL), Args(req))
	observability.ObserveUpstreamLatency("sql", time.Since(start).Seconds())
	if err != nil {
		if isTimeout(ctx, err) {
			return model.RawResult{}, fmt.Errorf("%w: sql: %w", model.ErrTimeout, err)
		}
		return model.RawResult{}, fmt.Errorf("%w: sql: %w", model.ErrUpstream, err)
	}
	s.logger.DebugContext(ctx, "layer query done", "layer", req.Layer, "rows", len(table.Rows))
	return model.RawResult{Format: model.FormatTabular, Table: table}, nil
}

func (s *SQL) query(ctx context.Context, db Beginner, query string, args pgx.NamedArgs) (*model.Table, error) {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	// read only: never commit
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	rows, err := tx.Query(ctx, query, args)
	if err != nil {
		return nil, describe(err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	table := &model.Table{Columns: make([]string, len(fields)), Rows: [][]model.Value{}}
	for i, f := range fields {
		table.Columns[i] = f.Name
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make([]model.Value, len(vals))
		for i, v := range vals {
			row[i] = valueOf(v)
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, describe(err)
	}
	return table, nil
}

func valueOf(v any) model.Value {
	if dv, ok := v.(driver.Valuer); ok {
		if x, err := dv.Value(); err == nil {
			v = x
		}
	}
	return model.FromAny(v)
}

func describe(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s (%s): %w", pgErr.Message, pgErr.Code, err)
	}
	return err
}
