package value

// HashString computes the polynomial accumulator hash used uniformly
// for string interning, table keys, global identifiers and metamethod
// key lookup: h = 0; for each byte ch in s: h = h*31 + ch (mod 2^32).
//
// Go's overflow behavior on uint32 multiplication/addition already wraps
// modulo 2^32, so no explicit masking is required.
func HashString(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return h
}

// HashInt hashes an integer table key by running the same polynomial
// accumulator over the integer's 8 little-endian bytes, so integer and
// string keys share one hashing discipline end to end.
func HashInt(i int64) uint32 {
	u := uint64(i)
	var h uint32
	for shift := 0; shift < 64; shift += 8 {
		h = h*31 + uint32((u>>shift)&0xFF)
	}
	return h
}

// HashKey hashes a Value usable as a table key: strings hash by
// content, integers by HashInt, booleans as 0/1 integers. Floats with
// an exact integer value hash identically to the equivalent Int,
// matching Equals' cross-tag rule, so t[1] and t[1.0] collide into the
// same bucket before the slower equality check disambiguates.
func HashKey(v Value) uint32 {
	switch v.kind {
	case KindString:
		return v.AsString().Hash
	case KindInt:
		return HashInt(v.AsInt())
	case KindFloat:
		f := v.AsFloat()
		if i := int64(f); float64(i) == f {
			return HashInt(i)
		}
		return HashInt(int64(v.n))
	case KindBool:
		if v.AsBool() {
			return HashInt(1)
		}
		return HashInt(0)
	default:
		return 0
	}
}
