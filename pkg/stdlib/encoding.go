package stdlib

import (
	"encoding/binary"
	"encoding/json"
	"math/big"

	"github.com/xnlogical/via/pkg/runtime"
	"github.com/xnlogical/via/pkg/value"
)

// registerEncoding installs the JSON parse/generate pair, a math/big
// arbitrary-precision helper pair, and little-endian integer<->bytes
// conversions sharing the wire format's byte order.
func registerEncoding(m *runtime.Manager) {
	register(m, "json.parse", jsonParse)
	register(m, "json.generate", jsonGenerate)
	register(m, "big.add", bigAdd)
	register(m, "big.mul", bigMul)
	register(m, "bytes.from_int", bytesFromInt)
	register(m, "bytes.to_int", bytesToInt)
}

func jsonParse(h value.Handle) error {
	data, err := argString(h, 0)
	if err != nil {
		return err
	}
	var decoded interface{}
	if err := json.Unmarshal([]byte(data), &decoded); err != nil {
		return runtime.ArgumentError("failed to parse JSON: %v", err)
	}
	v := jsonToValue(h, decoded)
	return h.Push(v)
}

func jsonGenerate(h value.Handle) error {
	v := h.Argument(0)
	data, err := json.Marshal(valueToJSON(v))
	if err != nil {
		return runtime.ArgumentError("failed to generate JSON: %v", err)
	}
	return pushString(h, string(data))
}

// jsonToValue converts a decoded JSON tree to via values: objects and
// arrays both become tables (via has no separate array tag), JSON
// numbers that are exact integers become Int, everything else Float.
func jsonToValue(h value.Handle, v interface{}) value.Value {
	switch x := v.(type) {
	case nil:
		return value.Nil()
	case bool:
		return value.Bool(x)
	case float64:
		if x == float64(int64(x)) {
			return value.Int(int64(x))
		}
		return value.Float(x)
	case string:
		return h.Intern(x)
	case []interface{}:
		t := value.NewTable()
		tbl := t.AsTable()
		for i, elem := range x {
			ev := jsonToValue(h, elem)
			_ = tbl.Set(value.Int(int64(i)), ev)
			value.Drop(ev)
		}
		return t
	case map[string]interface{}:
		t := value.NewTable()
		tbl := t.AsTable()
		for k, val := range x {
			kv := h.Intern(k)
			vv := jsonToValue(h, val)
			_ = tbl.Set(kv, vv)
			value.Drop(kv)
			value.Drop(vv)
		}
		return t
	default:
		return value.Nil()
	}
}

// valueToJSON converts a via value back to a JSON-marshalable Go
// value, the inverse of jsonToValue.
func valueToJSON(v value.Value) interface{} {
	switch v.Kind() {
	case value.KindNil:
		return nil
	case value.KindBool:
		return v.AsBool()
	case value.KindInt:
		return v.AsInt()
	case value.KindFloat:
		return v.AsFloat()
	case value.KindString:
		return v.AsString().Data
	case value.KindTable:
		t := v.AsTable()
		entries := t.Entries()
		allArray := true
		for i, e := range entries {
			if e.Key.Kind() != value.KindInt || e.Key.AsInt() != int64(i) {
				allArray = false
				break
			}
		}
		if allArray {
			out := make([]interface{}, len(entries))
			for i, e := range entries {
				out[i] = valueToJSON(e.Val)
			}
			return out
		}
		out := make(map[string]interface{}, len(entries))
		for _, e := range entries {
			if e.Key.Kind() == value.KindString {
				out[e.Key.AsString().Data] = valueToJSON(e.Val)
			}
		}
		return out
	default:
		return nil
	}
}

// bigAdd/bigMul expose arbitrary-precision arithmetic on decimal
// strings, since via's Int is a fixed int64; both read and write
// decimal text rather than a native bignum value kind.
func bigAdd(h value.Handle) error {
	a, err := argString(h, 0)
	if err != nil {
		return err
	}
	b, err := argString(h, 1)
	if err != nil {
		return err
	}
	x, ok := new(big.Int).SetString(a, 10)
	if !ok {
		return runtime.ArgumentError("not a decimal integer: %q", a)
	}
	y, ok := new(big.Int).SetString(b, 10)
	if !ok {
		return runtime.ArgumentError("not a decimal integer: %q", b)
	}
	return pushString(h, new(big.Int).Add(x, y).String())
}

func bigMul(h value.Handle) error {
	a, err := argString(h, 0)
	if err != nil {
		return err
	}
	b, err := argString(h, 1)
	if err != nil {
		return err
	}
	x, ok := new(big.Int).SetString(a, 10)
	if !ok {
		return runtime.ArgumentError("not a decimal integer: %q", a)
	}
	y, ok := new(big.Int).SetString(b, 10)
	if !ok {
		return runtime.ArgumentError("not a decimal integer: %q", b)
	}
	return pushString(h, new(big.Int).Mul(x, y).String())
}

// bytesFromInt/bytesToInt round-trip an 8-byte little-endian encoding of
// an Int, the same byte order pkg/isa/format.go uses throughout the wire
// format.
func bytesFromInt(h value.Handle) error {
	n, err := argInt(h, 0)
	if err != nil {
		return err
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(n))
	return pushString(h, string(buf))
}

func bytesToInt(h value.Handle) error {
	s, err := argString(h, 0)
	if err != nil {
		return err
	}
	if len(s) != 8 {
		return runtime.ArgumentError("expected 8 bytes, got %d", len(s))
	}
	n := binary.LittleEndian.Uint64([]byte(s))
	return pushInt(h, int64(n))
}
