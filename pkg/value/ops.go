package value

import (
	"strconv"
	"strings"
)

// Equals implements value equality: Nil compares equal only to Nil;
// Int and Float compare numerically across tags; strings compare by
// content; every other heap variant compares by identity.
func Equals(a, b Value) bool {
	switch {
	case a.kind == KindNil || b.kind == KindNil:
		return a.kind == b.kind
	case a.kind == KindInt && b.kind == KindInt:
		return a.AsInt() == b.AsInt()
	case a.kind == KindFloat && b.kind == KindFloat:
		return a.AsFloat() == b.AsFloat()
	case a.kind == KindInt && b.kind == KindFloat:
		return float64(a.AsInt()) == b.AsFloat()
	case a.kind == KindFloat && b.kind == KindInt:
		return a.AsFloat() == float64(b.AsInt())
	case a.kind == KindBool && b.kind == KindBool:
		return a.AsBool() == b.AsBool()
	case a.kind == KindString && b.kind == KindString:
		return a.AsString().Data == b.AsString().Data
	case a.kind != b.kind:
		return false
	default:
		// Table, Closure, Foreign: identity comparison.
		return a.obj == b.obj
	}
}

// ToNumber implements the numeric coercion: numbers pass through;
// booleans become 0/1; strings are parsed first as an integer (decimal,
// 0x hex, 0b binary), then as a float, else Nil; anything else is Nil.
func ToNumber(v Value) Value {
	switch v.kind {
	case KindInt, KindFloat:
		return v
	case KindBool:
		if v.AsBool() {
			return Int(1)
		}
		return Int(0)
	case KindString:
		s := strings.TrimSpace(v.AsString().Data)
		if s == "" {
			return Nil()
		}
		neg := false
		unsigned := s
		if strings.HasPrefix(unsigned, "-") {
			neg = true
			unsigned = unsigned[1:]
		} else if strings.HasPrefix(unsigned, "+") {
			unsigned = unsigned[1:]
		}
		if i, err := parseIntLiteral(unsigned); err == nil {
			if neg {
				i = -i
			}
			return Int(i)
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return Float(f)
		}
		return Nil()
	default:
		return Nil()
	}
}

func parseIntLiteral(s string) (int64, error) {
	switch {
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		u, err := strconv.ParseUint(s[2:], 16, 64)
		return int64(u), err
	case strings.HasPrefix(s, "0b"), strings.HasPrefix(s, "0B"):
		u, err := strconv.ParseUint(s[2:], 2, 64)
		return int64(u), err
	default:
		return strconv.ParseInt(s, 10, 64)
	}
}

// FormatFloat renders a float using the shortest round-trip decimal
// form.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
