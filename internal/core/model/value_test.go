package model

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestParseJSON_KeepsKeyOrder(t *testing.T) {
	v, err := ParseJSON([]byte(`{"z":1,"a":"x","m":[true,null,{"k":2.50}]}`))
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if v.Type() != "dict" {
		t.Fatalf("type=%s want dict", v.Type())
	}
	var keys []string
	for _, e := range v.Entries() {
		keys = append(keys, e.Key)
	}
	if fmt.Sprint(keys) != "[z a m]" {
		t.Fatalf("keys=%v want [z a m]", keys)
	}
	m, _ := v.Lookup("m")
	if m.Type() != "list" || len(m.Items()) != 3 {
		t.Fatalf("m=%s", m.Text())
	}
	if got := v.Text(); got != `{"z":1,"a":"x","m":[true,null,{"k":2.50}]}` {
		t.Fatalf("text=%s", got)
	}
}

func TestParseJSON_RejectsTrailingData(t *testing.T) {
	if _, err := ParseJSON([]byte(`{"a":1} x`)); err == nil {
		t.Fatal("expected error for trailing data")
	}
	if _, err := ParseJSON([]byte(`[1,2`)); err == nil {
		t.Fatal("expected error for truncated array")
	}
}

func TestValueText_Scalars(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{String("Lake"), "Lake"},
		{Number(120), "120"},
		{Number(1.5), "1.5"},
		{NumberText("1.50"), "1.50"},
		{Bool(true), "true"},
		{Null(), ""},
	}
	for _, c := range cases {
		if got := c.v.Text(); got != c.want {
			t.Fatalf("Text()=%q want %q", got, c.want)
		}
	}
}

func TestFromAny(t *testing.T) {
	v := FromAny(map[string]any{"b": int64(2), "a": []any{"x", 1.5}})
	if v.Text() != `{"a":["x",1.5],"b":2}` {
		t.Fatalf("got %s", v.Text())
	}
	d := FromAny(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	if d.Text() != "2024-03-01" {
		t.Fatalf("date=%s", d.Text())
	}
	if !FromAny(nil).IsNull() {
		t.Fatal("nil should be null")
	}
}

func TestErrorCode(t *testing.T) {
	wrapped := fmt.Errorf("layer a: %w", fmt.Errorf("fetch: %w", ErrTimeout))
	if got := ErrorCode(wrapped); got != "Timeout" {
		t.Fatalf("got %s want Timeout", got)
	}
	if got := ErrorCode(errors.New("x")); got != "InternalError" {
		t.Fatalf("got %s", got)
	}
	if got := ErrorCode(nil); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestQueryRequest_PositionAndResolution(t *testing.T) {
	q := QueryRequest{BBox: &BBox{X1: 0, Y1: 0, X2: 100, Y2: 50}, Width: 10, Height: 10}
	x, y := q.Position()
	if x != 50 || y != 25 {
		t.Fatalf("position=%v,%v", x, y)
	}
	if r := q.Resolution(); r != 10 {
		t.Fatalf("resolution=%v want 10", r)
	}
	if q.BBox.String() != "0,0,100,50" {
		t.Fatalf("bbox=%s", q.BBox.String())
	}
}
