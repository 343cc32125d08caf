package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"
)

type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindDict
)

// Entry is one key of a dict value. Label is the display name of the key.
type Entry struct {
	Key   string
	Label string
	Value Value
}

// Value is an attribute value: a scalar, an ordered list or an ordered
// mapping, recursively. The zero value is null.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	list []Value
	dict []Entry
}

func Null() Value { return Value{} }

func String(s string) Value { return Value{kind: KindString, str: s} }

func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// NumberText keeps the literal text of a number (e.g. "1.50") for display.
func NumberText(lit string) Value {
	f, _ := strconv.ParseFloat(lit, 64)
	return Value{kind: KindNumber, num: f, str: lit}
}

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, list: items}
}

func Dict(entries ...Entry) Value {
	if entries == nil {
		entries = []Entry{}
	}
	for i := range entries {
		if entries[i].Label == "" {
			entries[i].Label = entries[i].Key
		}
	}
	return Value{kind: KindDict, dict: entries}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) IsScalar() bool { return v.kind != KindList && v.kind != KindDict }

// Type is the tag exposed to templates.
func (v Value) Type() string {
	switch v.kind {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindDict:
		return "dict"
	default:
		return "null"
	}
}

func (v Value) Str() string { return v.str }

func (v Value) Float() float64 { return v.num }

func (v Value) Truth() bool { return v.b }

func (v Value) Items() []Value { return v.list }

func (v Value) Entries() []Entry { return v.dict }

// Lookup returns the value stored under key of a dict value.
func (v Value) Lookup(key string) (Value, bool) {
	for _, e := range v.dict {
		if e.Key == key {
			return e.Value, true
		}
	}
	return Value{}, false
}

// Text is the plain display text; structured values render as json.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		if v.str != "" {
			return v.str
		}
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindList, KindDict:
		b, err := v.MarshalJSON()
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return ""
	}
}

func (v Value) String() string { return v.Text() }

// Equal compares kind and content, ignoring dict labels.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	default:
		if len(v.dict) != len(o.dict) {
			return false
		}
		for i := range v.dict {
			if v.dict[i].Key != o.dict[i].Key || !v.dict[i].Value.Equal(o.dict[i].Value) {
				return false
			}
		}
		return true
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) writeJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindString:
		b, err := json.Marshal(v.str)
		if err != nil {
			return fmt.Errorf("marshal string: %w", err)
		}
		buf.Write(b)
	case KindNumber:
		buf.WriteString(v.Text())
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindList:
		buf.WriteByte('[')
		for i, it := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := it.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindDict:
		buf.WriteByte('{')
		for i, e := range v.dict {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(e.Key)
			if err != nil {
				return fmt.Errorf("marshal key: %w", err)
			}
			buf.Write(k)
			buf.WriteByte(':')
			if err := e.Value.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

// ParseJSON decodes a single json document, keeping object key order.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, errors.New("trailing data after json value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, fmt.Errorf("json token: %w", err)
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '[':
			items := []Value{}
			for dec.More() {
				it, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, it)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, fmt.Errorf("json array end: %w", err)
			}
			return List(items...), nil
		case '{':
			entries := []Entry{}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Value{}, fmt.Errorf("json key: %w", err)
				}
				key, ok := kt.(string)
				if !ok {
					return Value{}, fmt.Errorf("json key %v is not a string", kt)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				entries = append(entries, Entry{Key: key, Label: key, Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, fmt.Errorf("json object end: %w", err)
			}
			return Dict(entries...), nil
		default:
			return Value{}, fmt.Errorf("unexpected delimiter %q", t)
		}
	case json.Number:
		return NumberText(t.String()), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case nil:
		return Null(), nil
	default:
		return Value{}, fmt.Errorf("unexpected json token %T", tok)
	}
}

// FromAny converts a driver or decoder value into a Value. Map keys are
// sorted since Go maps carry no order.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case string:
		return String(t)
	case []byte:
		return String(string(t))
	case bool:
		return Bool(t)
	case int:
		return NumberText(strconv.Itoa(t))
	case int8:
		return NumberText(strconv.FormatInt(int64(t), 10))
	case int16:
		return NumberText(strconv.FormatInt(int64(t), 10))
	case int32:
		return NumberText(strconv.FormatInt(int64(t), 10))
	case int64:
		return NumberText(strconv.FormatInt(t, 10))
	case uint32:
		return NumberText(strconv.FormatUint(uint64(t), 10))
	case uint64:
		return NumberText(strconv.FormatUint(t, 10))
	case float32:
		return Number(float64(t))
	case float64:
		return Number(t)
	case json.Number:
		return NumberText(t.String())
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return String(t.Format("2006-01-02"))
		}
		return String(t.Format("2006-01-02T15:04:05"))
	case []any:
		items := make([]Value, 0, len(t))
		for _, it := range t {
			items = append(items, FromAny(it))
		}
		return List(items...)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		entries := make([]Entry, 0, len(keys))
		for _, k := range keys {
			entries = append(entries, Entry{Key: k, Label: k, Value: FromAny(t[k])})
		}
		return Dict(entries...)
	case fmt.Stringer:
		return String(t.String())
	default:
		return String(fmt.Sprint(t))
	}
}
