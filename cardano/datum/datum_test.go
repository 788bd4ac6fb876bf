package datum

import (
	"encoding/hex"
	"testing"
)

// encodeUint writes a minimal-length CBOR unsigned integer header.
func encodeUint(major byte, n uint64) []byte {
	switch {
	case n < 24:
		return []byte{major<<5 | byte(n)}
	case n < 256:
		return []byte{major<<5 | 24, byte(n)}
	case n < 65536:
		return []byte{major<<5 | 25, byte(n >> 8), byte(n)}
	default:
		return []byte{major<<5 | 26, byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
	}
}

func encodeBytes(b []byte) []byte {
	out := encodeUint(2, uint64(len(b)))
	return append(out, b...)
}

func encodeArrayHeader(n int) []byte {
	return encodeUint(4, uint64(n))
}

func encodeTagHeader(tag uint64) []byte {
	switch {
	case tag < 256:
		return []byte{6<<5 | 24, byte(tag)}
	default:
		return []byte{6<<5 | 25, byte(tag >> 8), byte(tag)}
	}
}

// encodeConstr builds the encoding of a Constr under the given tag, with the
// given already-encoded field byte strings.
func encodeConstr(tag uint64, fields [][]byte) []byte {
	out := encodeTagHeader(tag)
	out = append(out, encodeArrayHeader(len(fields))...)
	for _, f := range fields {
		out = append(out, f...)
	}
	return out
}

func TestDecodeInt(t *testing.T) {
	raw := encodeUint(0, 42)
	d, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d.Kind != KindInt || d.Int != 42 {
		t.Fatalf("got %+v", d)
	}
}

func TestDecodeNegativeInt(t *testing.T) {
	raw := encodeUint(1, 4) // -1 - 4 = -5
	d, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d.Kind != KindInt || d.Int != -5 {
		t.Fatalf("got %+v, want -5", d)
	}
}

func TestDecodeBytes(t *testing.T) {
	raw := encodeBytes([]byte{0xde, 0xad, 0xbe, 0xef})
	d, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d.Kind != KindBytes || d.BytesHex != "deadbeef" {
		t.Fatalf("got %+v", d)
	}
}

func TestDecodeConstrTag121(t *testing.T) {
	raw := encodeConstr(121, [][]byte{encodeUint(0, 7)})
	d, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d.Kind != KindConstr || d.Constructor != 0 {
		t.Fatalf("got %+v", d)
	}
	if len(d.Fields) != 1 || d.Fields[0].Int != 7 {
		t.Fatalf("got fields %+v", d.Fields)
	}
}

func TestDecodeConstrTag1280Range(t *testing.T) {
	raw := encodeConstr(1280, nil)
	d, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d.Kind != KindConstr || d.Constructor != 7 {
		t.Fatalf("got %+v, want constructor 7", d)
	}
}

func TestDecodeTag102Pair(t *testing.T) {
	// tag 102 wraps a 2-element array: [constructor_int, fields_array]
	inner := encodeArrayHeader(2)
	inner = append(inner, encodeUint(0, 3)...)
	inner = append(inner, encodeArrayHeader(1)...)
	inner = append(inner, encodeUint(0, 9)...)
	raw := append(encodeTagHeader(102), inner...)

	d, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d.Kind != KindConstr || d.Constructor != 3 {
		t.Fatalf("got %+v", d)
	}
	if len(d.Fields) != 1 || d.Fields[0].Int != 9 {
		t.Fatalf("got fields %+v", d.Fields)
	}
}

func TestDecodeUnknownTag(t *testing.T) {
	raw := encodeTagHeader(999)
	raw = append(raw, encodeUint(0, 1)...)
	if _, err := Decode(raw); err == nil {
		t.Fatal("expected error for unsupported tag")
	} else if _, ok := err.(*DecodeError); !ok {
		t.Fatalf("expected *DecodeError, got %T", err)
	}
}

func TestDecodeList(t *testing.T) {
	raw := encodeArrayHeader(2)
	raw = append(raw, encodeUint(0, 1)...)
	raw = append(raw, encodeUint(0, 2)...)
	d, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d.Kind != KindList || len(d.List) != 2 {
		t.Fatalf("got %+v", d)
	}
}

func TestDecodeMap(t *testing.T) {
	raw := encodeUint(5, 1) // map, 1 pair
	raw = append(raw, encodeBytes([]byte("k"))...)
	raw = append(raw, encodeUint(0, 5)...)
	d, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d.Kind != KindMap || len(d.Map) != 1 {
		t.Fatalf("got %+v", d)
	}
	if d.Map[0].Key.BytesHex != hex.EncodeToString([]byte("k")) {
		t.Fatalf("got key %+v", d.Map[0].Key)
	}
	if d.Map[0].Value.Int != 5 {
		t.Fatalf("got value %+v", d.Map[0].Value)
	}
}

// buildAddressDatum constructs the standard Address datum shape:
// Constr 0 [ paymentCredential, Constr 0 [ Constr 0 [ Constr 0 [ Constr 0 [ bytes skh ] ] ] ] ]
func buildAddressDatum(pkh, skh []byte) []byte {
	payment := encodeConstr(121, [][]byte{
		encodeConstr(121, [][]byte{encodeBytes(pkh)}),
	})
	stakingCred := encodeConstr(121, [][]byte{
		encodeConstr(121, [][]byte{encodeBytes(skh)}),
	})
	just := encodeConstr(121, [][]byte{stakingCred})
	stakeRef := encodeConstr(121, [][]byte{just})
	return encodeConstr(121, [][]byte{payment, stakeRef})
}

func buildEnterpriseAddressDatum(pkh []byte) []byte {
	payment := encodeConstr(121, [][]byte{
		encodeConstr(121, [][]byte{encodeBytes(pkh)}),
	})
	nothing := encodeConstr(122, nil) // constructor 1 = Nothing
	return encodeConstr(121, [][]byte{payment, nothing})
}

func TestParseWalletAddressBase(t *testing.T) {
	pkh := []byte{0x01, 0x02}
	skh := []byte{0x03, 0x04}
	raw := buildAddressDatum(pkh, skh)
	d, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	gotPkh, gotSkh, err := ParseWalletAddress(d)
	if err != nil {
		t.Fatalf("ParseWalletAddress: %v", err)
	}
	if gotPkh != hex.EncodeToString(pkh) {
		t.Fatalf("pkh = %q, want %q", gotPkh, hex.EncodeToString(pkh))
	}
	if gotSkh != hex.EncodeToString(skh) {
		t.Fatalf("skh = %q, want %q", gotSkh, hex.EncodeToString(skh))
	}
}

func TestParseWalletAddressEnterprise(t *testing.T) {
	pkh := []byte{0xaa, 0xbb}
	raw := buildEnterpriseAddressDatum(pkh)
	d, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	gotPkh, gotSkh, err := ParseWalletAddress(d)
	if err != nil {
		t.Fatalf("ParseWalletAddress: %v", err)
	}
	if gotPkh != hex.EncodeToString(pkh) {
		t.Fatalf("pkh = %q", gotPkh)
	}
	if gotSkh != "" {
		t.Fatalf("skh = %q, want empty", gotSkh)
	}
}
