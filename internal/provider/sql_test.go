package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mohammed-shakir/featureinfo-service/internal/core/model"
	"github.com/mohammed-shakir/featureinfo-service/internal/layertree"
)

type fakeRows struct {
	pgx.Rows
	cols []string
	data [][]any
	i    int
	err  error
}

func (r *fakeRows) Close()     {}
func (r *fakeRows) Err() error { return r.err }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	out := make([]pgconn.FieldDescription, len(r.cols))
	for i, c := range r.cols {
		out[i] = pgconn.FieldDescription{Name: c}
	}
	return out
}
func (r *fakeRows) Next() bool {
	if r.i >= len(r.data) {
		return false
	}
	r.i++
	return true
}
func (r *fakeRows) Values() ([]any, error) { return r.data[r.i-1], nil }

type fakeTx struct {
	pgx.Tx
	rows       *fakeRows
	queryErr   error
	query      string
	args       pgx.NamedArgs
	rolledBack bool
}

func (t *fakeTx) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	t.query = sql
	if len(args) == 1 {
		t.args, _ = args[0].(pgx.NamedArgs)
	}
	if t.queryErr != nil {
		return nil, t.queryErr
	}
	return t.rows, nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.rolledBack = true
	return nil
}

type fakeDB struct {
	tx   *fakeTx
	opts pgx.TxOptions
}

func (d *fakeDB) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	d.opts = opts
	return d.tx, nil
}

func sqlRequest(query string) Request {
	req := baseRequest()
	req.Template = &layertree.InfoTemplate{Provider: layertree.ProviderSQL, SQL: query}
	req.DefaultDBURL = "postgres://geo"
	return req
}

func TestSQL_FetchRowsAsTable(t *testing.T) {
	tx := &fakeTx{rows: &fakeRows{
		cols: []string{"_fid_", "name", "pop", "wkt_geom"},
		data: [][]any{{int64(7), "Lake", int32(120), "POINT(5 5)"}},
	}}
	db := &fakeDB{tx: tx}
	var connected string
	p := NewSQLWithConnector(discard(), "", func(_ context.Context, url string) (Beginner, error) {
		connected = url
		return db, nil
	})

	res, err := p.Fetch(context.Background(), sqlRequest(
		"SELECT * FROM lakes WHERE ST_Intersects(geom, ST_SetSRID(ST_GeomFromText(:geom), :srid)) AND id::text <> ''"))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if connected != "postgres://geo" {
		t.Fatalf("connected=%q", connected)
	}
	if db.opts.AccessMode != pgx.ReadOnly || !tx.rolledBack {
		t.Fatalf("access=%v rolledBack=%v", db.opts.AccessMode, tx.rolledBack)
	}
	want := "SELECT * FROM lakes WHERE ST_Intersects(geom, ST_SetSRID(ST_GeomFromText(@geom), @srid)) AND id::text <> ''"
	if tx.query != want {
		t.Fatalf("query=%q", tx.query)
	}
	if tx.args["geom"] != "POINT(5 5)" || tx.args["srid"] != 2056 || tx.args["x"] != 5.0 {
		t.Fatalf("args=%v", tx.args)
	}
	if res.Format != model.FormatTabular || len(res.Table.Rows) != 1 {
		t.Fatalf("res=%+v", res)
	}
	if got := res.Table.Rows[0][2].Text(); got != "120" {
		t.Fatalf("pop=%q", got)
	}
}

func TestSQL_QueryErrorRollsBack(t *testing.T) {
	tx := &fakeTx{queryErr: &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}}
	p := NewSQLWithConnector(discard(), "", func(context.Context, string) (Beginner, error) {
		return &fakeDB{tx: tx}, nil
	})
	_, err := p.Fetch(context.Background(), sqlRequest("SELECT 1"))
	if !errors.Is(err, model.ErrUpstream) {
		t.Fatalf("err=%v want upstream", err)
	}
	if !tx.rolledBack {
		t.Fatal("transaction must be released on failure")
	}
}

func TestSQL_ConfigErrors(t *testing.T) {
	p := NewSQLWithConnector(discard(), "", func(context.Context, string) (Beginner, error) {
		t.Fatal("must not connect")
		return nil, nil
	})
	req := sqlRequest("")
	if _, err := p.Fetch(context.Background(), req); !errors.Is(err, model.ErrConfig) {
		t.Fatalf("err=%v want config", err)
	}
	req = sqlRequest("SELECT 1")
	req.DefaultDBURL = ""
	if _, err := p.Fetch(context.Background(), req); !errors.Is(err, model.ErrConfig) {
		t.Fatalf("err=%v want config", err)
	}
}

func TestSRID(t *testing.T) {
	for crs, want := range map[string]int{"EPSG:2056": 2056, "EPSG:4326": 4326, "": DefaultSRID, "CRS84": DefaultSRID} {
		if got := SRID(crs); got != want {
			t.Fatalf("SRID(%q) got=%d want=%d", crs, got, want)
		}
	}
}
