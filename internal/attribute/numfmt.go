package attribute

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

var ErrBadFormatSpec = errors.New("bad format spec")

// maxSpecDigits bounds width and precision.
const maxSpecDigits = 64

// formatSpec is a parsed [[fill]align][sign][#][0][width][grouping][.precision][type]
type formatSpec struct {
	fill  rune
	align byte
	sign  byte
	alt   bool
	width int
	group byte
	prec  int
	typ   byte
}

func parseFormatSpec(s string) (formatSpec, error) {
	sp := formatSpec{fill: ' ', prec: -1}
	isAlign := func(c byte) bool { return c == '<' || c == '>' || c == '=' || c == '^' }

	if r, n := utf8.DecodeRuneInString(s); n > 0 && n < len(s) && isAlign(s[n]) {
		sp.fill, sp.align = r, s[n]
		s = s[n+1:]
	} else if len(s) > 0 && isAlign(s[0]) {
		sp.align = s[0]
		s = s[1:]
	}
	if len(s) > 0 && (s[0] == '+' || s[0] == '-' || s[0] == ' ') {
		sp.sign = s[0]
		s = s[1:]
	}
	if len(s) > 0 && s[0] == '#' {
		sp.alt = true
		s = s[1:]
	}
	if len(s) > 0 && s[0] == '0' {
		if sp.align == 0 {
			sp.fill, sp.align = '0', '='
		}
		s = s[1:]
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 {
		w, err := strconv.Atoi(s[:i])
		if err != nil || w > maxSpecDigits {
			return sp, fmt.Errorf("%w: width above %d", ErrBadFormatSpec, maxSpecDigits)
		}
		sp.width = w
		s = s[i:]
	}
	if len(s) > 0 && (s[0] == ',' || s[0] == '_') {
		sp.group = s[0]
		s = s[1:]
	}
	if len(s) > 0 && s[0] == '.' {
		j := 1
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
		}
		if j == 1 {
			return sp, fmt.Errorf("%w: missing precision", ErrBadFormatSpec)
		}
		p, err := strconv.Atoi(s[1:j])
		if err != nil || p > maxSpecDigits {
			return sp, fmt.Errorf("%w: precision above %d", ErrBadFormatSpec, maxSpecDigits)
		}
		sp.prec = p
		s = s[j:]
	}
	switch len(s) {
	case 0:
	case 1:
		if !strings.ContainsRune("bdoxXneEfFgGs%", rune(s[0])) {
			return sp, fmt.Errorf("%w: unknown type %q", ErrBadFormatSpec, s)
		}
		sp.typ = s[0]
	default:
		return sp, fmt.Errorf("%w: %q", ErrBadFormatSpec, s)
	}
	return sp, nil
}

// FormatSpec formats text with a numeric format specification (the
// python mini language). Integer types require integer text, float types
// any number.
func FormatSpec(text, spec string) (string, error) {
	sp, err := parseFormatSpec(spec)
	if err != nil {
		return "", err
	}
	switch sp.typ {
	case 0, 's':
		if sp.sign != 0 || sp.group != 0 || sp.alt || sp.align == '=' {
			return "", fmt.Errorf("%w: numeric option for string", ErrBadFormatSpec)
		}
		if sp.prec >= 0 && sp.prec < utf8.RuneCountInString(text) {
			text = string([]rune(text)[:sp.prec])
		}
		return sp.pad("", text, '<'), nil
	case 'n':
		if _, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64); err == nil {
			sp.typ = 'd'
		} else {
			sp.typ = 'g'
		}
	}

	switch sp.typ {
	case 'b', 'd', 'o', 'x', 'X':
		n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return "", fmt.Errorf("%w: %q is not an integer", ErrBadFormatSpec, text)
		}
		return sp.formatInt(n), nil
	default:
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return "", fmt.Errorf("%w: %q is not a number", ErrBadFormatSpec, text)
		}
		return sp.formatFloat(f), nil
	}
}

func (sp formatSpec) formatInt(n int64) string {
	neg := n < 0
	u := uint64(n)
	if neg {
		u = uint64(-n)
	}
	var digits, prefix string
	switch sp.typ {
	case 'b':
		digits, prefix = strconv.FormatUint(u, 2), "0b"
	case 'o':
		digits, prefix = strconv.FormatUint(u, 8), "0o"
	case 'x':
		digits, prefix = strconv.FormatUint(u, 16), "0x"
	case 'X':
		digits, prefix = strings.ToUpper(strconv.FormatUint(u, 16)), "0X"
	default:
		digits = strconv.FormatUint(u, 10)
		if sp.group != 0 {
			digits = groupDigits(digits, sp.group)
		}
	}
	if !sp.alt {
		prefix = ""
	}
	return sp.pad(sp.signOf(neg)+prefix, digits, '>')
}

func (sp formatSpec) formatFloat(f float64) string {
	neg := math.Signbit(f) && !math.IsNaN(f)
	f = math.Abs(f)
	prec := sp.prec
	var body string
	switch sp.typ {
	case 'e', 'E':
		if prec < 0 {
			prec = 6
		}
		body = strconv.FormatFloat(f, 'e', prec, 64)
	case 'f', 'F':
		if prec < 0 {
			prec = 6
		}
		body = strconv.FormatFloat(f, 'f', prec, 64)
	case '%':
		if prec < 0 {
			prec = 6
		}
		body = strconv.FormatFloat(f*100, 'f', prec, 64) + "%"
	case 'g', 'G':
		if prec < 0 {
			prec = 6
		}
		if prec == 0 {
			prec = 1
		}
		body = strconv.FormatFloat(f, 'g', prec, 64)
	default:
		body = strconv.FormatFloat(f, 'f', -1, 64)
		if !strings.ContainsAny(body, ".eIN") {
			body += ".0"
		}
	}
	if sp.typ == 'E' || sp.typ == 'F' || sp.typ == 'G' {
		body = strings.ToUpper(body)
	}
	if sp.group != 0 {
		intPart, rest := body, ""
		if k := strings.IndexAny(body, ".e%E"); k >= 0 {
			intPart, rest = body[:k], body[k:]
		}
		body = groupDigits(intPart, sp.group) + rest
	}
	return sp.pad(sp.signOf(neg), body, '>')
}

func (sp formatSpec) signOf(neg bool) string {
	switch {
	case neg:
		return "-"
	case sp.sign == '+':
		return "+"
	case sp.sign == ' ':
		return " "
	}
	return ""
}

// pad applies width, fill and alignment. '=' pads between sign and digits.
func (sp formatSpec) pad(sign, body string, defAlign byte) string {
	n := utf8.RuneCountInString(sign) + utf8.RuneCountInString(body)
	if sp.width <= n {
		return sign + body
	}
	fill := strings.Repeat(string(sp.fill), sp.width-n)
	align := sp.align
	if align == 0 {
		align = defAlign
	}
	switch align {
	case '<':
		return sign + body + fill
	case '=':
		return sign + fill + body
	case '^':
		half := (sp.width - n) / 2
		left := strings.Repeat(string(sp.fill), half)
		right := strings.Repeat(string(sp.fill), sp.width-n-half)
		return left + sign + body + right
	default:
		return fill + sign + body
	}
}

func groupDigits(digits string, sep byte) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
