package call

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// FormatArgs renders an argument list as a literal tuple: ('a',), (42,),
// (b'raw', 3.5), (). Strings and byte slices are quoted with escapes so the
// rendering is unambiguous.
func FormatArgs(args ...any) string {
	var b strings.Builder
	b.WriteByte('(')
	for i, a := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(formatLiteral(a))
	}
	if len(args) == 1 {
		b.WriteByte(',')
	}
	b.WriteByte(')')
	return b.String()
}

// FormatOutput renders a result as plain text. Text and bytes are written
// verbatim.
func FormatOutput(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case float64:
		return FormatFloat(x)
	case float32:
		return FormatFloat(float64(x))
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}

// FormatFloat returns the shortest representation that round-trips: 3.5,
// 42.0, 1e+20, 1e-05.
func FormatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}

func formatLiteral(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case string:
		return quote(x, false)
	case []byte:
		return "b" + quote(string(x), true)
	case float64:
		return FormatFloat(x)
	case float32:
		return FormatFloat(float64(x))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// quote wraps s in single quotes, or double quotes when s contains a single
// quote and no double quote. With raw set every byte above 0x7e is escaped.
// Otherwise s is decoded as UTF-8: runes strconv.IsPrint rejects are escaped
// as \xNN, \uNNNN or \UNNNNNNNN, and bytes that are not valid UTF-8 as \xNN.
func quote(s string, raw bool) string {
	q := byte('\'')
	if strings.IndexByte(s, '\'') >= 0 && strings.IndexByte(s, '"') < 0 {
		q = '"'
	}

	var b strings.Builder
	b.WriteByte(q)
	if raw {
		for i := 0; i < len(s); i++ {
			writeEscaped(&b, rune(s[i]), q, true)
		}
	} else {
		for i := 0; i < len(s); {
			r, size := utf8.DecodeRuneInString(s[i:])
			if r == utf8.RuneError && size == 1 {
				fmt.Fprintf(&b, `\x%02x`, s[i])
			} else {
				writeEscaped(&b, r, q, false)
			}
			i += size
		}
	}
	b.WriteByte(q)
	return b.String()
}

func writeEscaped(b *strings.Builder, r rune, q byte, raw bool) {
	switch {
	case r == '\\':
		b.WriteString(`\\`)
	case r == rune(q):
		b.WriteByte('\\')
		b.WriteByte(q)
	case r == '\n':
		b.WriteString(`\n`)
	case r == '\r':
		b.WriteString(`\r`)
	case r == '\t':
		b.WriteString(`\t`)
	case raw && (r < 0x20 || r > 0x7e):
		fmt.Fprintf(b, `\x%02x`, r)
	case raw || strconv.IsPrint(r):
		b.WriteRune(r)
	case r < 0x100:
		fmt.Fprintf(b, `\x%02x`, r)
	case r < 0x10000:
		fmt.Fprintf(b, `\u%04x`, r)
	default:
		fmt.Fprintf(b, `\U%08x`, r)
	}
}
