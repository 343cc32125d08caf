package attribute

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/featureinfo-service/internal/core/model"
)

const (
	DefaultDateFormat     = "%d.%m.%Y"
	DefaultDateTimeFormat = "%d.%m.%Y %H:%M:%S"
)

var (
	dateRe     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dateTimeRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(\.\d{1,6})?$`)
)

// ApplyFormat evaluates a format expression against a scalar value. An
// expression starting with "{" is a json lookup table; anything else is a
// format specification. Values the expression cannot handle pass through.
func ApplyFormat(v model.Value, expr string) model.Value {
	if !v.IsScalar() {
		return v
	}
	if v.IsNull() || (v.Kind() == model.KindString && v.Str() == "NULL") {
		v = model.String("-")
	}

	if strings.HasPrefix(strings.TrimSpace(expr), "{") {
		return lookup(v, expr)
	}

	if v.Kind() == model.KindString {
		if t, isDateTime, ok := parseDate(v.Str()); ok {
			layout := expr
			if layout == "" {
				layout = DefaultDateFormat
				if isDateTime {
					layout = DefaultDateTimeFormat
				}
			}
			return model.String(Strftime(t, layout))
		}
	}

	if expr == "" {
		return v
	}
	out, err := FormatSpec(v.Text(), expr)
	if err != nil {
		return v
	}
	return model.String(out)
}

func lookup(v model.Value, expr string) model.Value {
	table, err := model.ParseJSON([]byte(expr))
	if err != nil || table.Kind() != model.KindDict {
		return v
	}
	mapped, ok := table.Lookup(v.Text())
	if !ok || mapped.IsNull() || mapped.Text() == "" {
		return v
	}
	return model.String(mapped.Text())
}

func parseDate(s string) (time.Time, bool, bool) {
	switch {
	case dateRe.MatchString(s):
		t, err := time.Parse("2006-01-02", s)
		return t, false, err == nil
	case dateTimeRe.MatchString(s):
		s = strings.Replace(s, " ", "T", 1)
		t, err := time.Parse("2006-01-02T15:04:05.999999", s)
		return t, true, err == nil
	}
	return time.Time{}, false, false
}

var (
	weekdays = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}
	months   = []string{"January", "February", "March", "April", "May", "June", "July",
		"August", "September", "October", "November", "December"}
)

// Strftime formats t with the common strftime directives. Unknown
// directives are copied verbatim.
func Strftime(t time.Time, layout string) string {
	var b strings.Builder
	pad := func(n, w int) {
		s := strconv.Itoa(n)
		for i := len(s); i < w; i++ {
			b.WriteByte('0')
		}
		b.WriteString(s)
	}
	for i := 0; i < len(layout); i++ {
		c := layout[i]
		if c != '%' || i+1 == len(layout) {
			b.WriteByte(c)
			continue
		}
		i++
		switch layout[i] {
		case 'd':
			pad(t.Day(), 2)
		case 'm':
			pad(int(t.Month()), 2)
		case 'Y':
			pad(t.Year(), 4)
		case 'y':
			pad(t.Year()%100, 2)
		case 'H':
			pad(t.Hour(), 2)
		case 'I':
			h := t.Hour() % 12
			if h == 0 {
				h = 12
			}
			pad(h, 2)
		case 'M':
			pad(t.Minute(), 2)
		case 'S':
			pad(t.Second(), 2)
		case 'f':
			pad(t.Nanosecond()/1000, 6)
		case 'p':
			if t.Hour() < 12 {
				b.WriteString("AM")
			} else {
				b.WriteString("PM")
			}
		case 'j':
			pad(t.YearDay(), 3)
		case 'a':
			b.WriteString(weekdays[t.Weekday()][:3])
		case 'A':
			b.WriteString(weekdays[t.Weekday()])
		case 'b':
			b.WriteString(months[t.Month()-1][:3])
		case 'B':
			b.WriteString(months[t.Month()-1])
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(layout[i])
		}
	}
	return b.String()
}
