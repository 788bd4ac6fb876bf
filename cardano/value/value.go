// Package value models Cardano multi-asset values: a mapping from token to
// non-negative integer quantity, keyed by policy id and asset name.
package value

import (
	"sort"
	"strings"
)

// Token identifies a native asset by policy id and asset name, both hex.
// The zero value, ("", ""), is the distinguished native coin (lovelace).
type Token struct {
	PolicyID  string
	AssetName string
}

// Lovelace is the distinguished native-coin token.
var Lovelace = Token{}

// String renders a human-readable label, matching the original's
// Token.__str__: bare policy id for fingerprint-only tokens, dotted
// hex pair otherwise, "lovelace" for the native coin.
func (t Token) String() string {
	if t == Lovelace {
		return "lovelace"
	}
	if t.AssetName == "" {
		return t.PolicyID
	}
	return t.PolicyID + "." + t.AssetName
}

// Subject is the concatenation used as an on-chain asset fingerprint input.
func (t Token) Subject() string {
	return t.PolicyID + t.AssetName
}

// FromUnit splits a Blockfrost-style "unit" string (policy id || asset name
// hex, policy id fixed at 56 hex chars) into a Token. An empty or "lovelace"
// unit maps to the native coin.
func FromUnit(unit string) Token {
	if unit == "" || unit == "lovelace" {
		return Lovelace
	}
	if len(unit) <= 56 {
		return Token{PolicyID: unit}
	}
	return Token{PolicyID: unit[:56], AssetName: unit[56:]}
}

// Value maps tokens to non-negative integer quantities. Nested map shape
// mirrors the wire format: policyId -> assetName -> amount, with lovelace
// stored at Value[""][""].
type Value map[string]map[string]uint64

// New returns an empty Value.
func New() Value {
	return Value{}
}

// Get returns the quantity of a single token, 0 if absent.
func (v Value) Get(t Token) uint64 {
	inner, ok := v[t.PolicyID]
	if !ok {
		return 0
	}
	return inner[t.AssetName]
}

// Set assigns the quantity of a single token, creating inner maps as needed.
// A zero quantity removes the entry entirely, keeping Value's wire shape
// tidy (no zero-valued leaves persisted).
func (v Value) Set(t Token, amount uint64) {
	if amount == 0 {
		if inner, ok := v[t.PolicyID]; ok {
			delete(inner, t.AssetName)
			if len(inner) == 0 {
				delete(v, t.PolicyID)
			}
		}
		return
	}
	inner, ok := v[t.PolicyID]
	if !ok {
		inner = map[string]uint64{}
		v[t.PolicyID] = inner
	}
	inner[t.AssetName] = amount
}

// Entry is one (Token, amount) pair of a flattened Value.
type Entry struct {
	Token  Token
	Amount uint64
}

// Entries flattens the value into a deterministic-order slice of entries.
func (v Value) Entries() []Entry {
	var out []Entry
	for policy, inner := range v {
		for name, amount := range inner {
			out = append(out, Entry{Token{policy, name}, amount})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Token.PolicyID != out[j].Token.PolicyID {
			return out[i].Token.PolicyID < out[j].Token.PolicyID
		}
		return out[i].Token.AssetName < out[j].Token.AssetName
	})
	return out
}

// Merge returns a new Value holding the sum of v and other. Merge is
// commutative and associative, and the empty Value is its identity.
func Merge(values ...Value) Value {
	out := New()
	for _, v := range values {
		for _, e := range v.Entries() {
			out.Set(e.Token, out.Get(e.Token)+e.Amount)
		}
	}
	return out
}

// Diff computes, per token, out.Get(t) - in.Get(t) as a signed difference,
// dropping zero-valued entries. Tokens present in only one side are treated
// as zero on the other, matching §4.7's symmetric-difference semantics.
func Diff(in, out Value) map[Token]int64 {
	diff := map[Token]int64{}
	seen := map[Token]bool{}
	for _, e := range out.Entries() {
		seen[e.Token] = true
		d := int64(e.Amount) - int64(in.Get(e.Token))
		if d != 0 {
			diff[e.Token] = d
		}
	}
	for _, e := range in.Entries() {
		if seen[e.Token] {
			continue
		}
		d := -int64(e.Amount)
		if d != 0 {
			diff[e.Token] = d
		}
	}
	return diff
}

// HexKey renders a Token as the "policyId.assetName" hex form used when
// persisting net assets to the store.
func HexKey(t Token) string {
	return t.PolicyID + "." + t.AssetName
}

// TokenFromHexKey parses the HexKey format back into a Token.
func TokenFromHexKey(s string) Token {
	idx := strings.IndexByte(s, '.')
	if idx < 0 {
		return Token{PolicyID: s}
	}
	return Token{PolicyID: s[:idx], AssetName: s[idx+1:]}
}

// MarshalText renders t in HexKey form, so a map keyed by Token (such as a
// Transaction's net assets) can be encoded as JSON.
func (t Token) MarshalText() ([]byte, error) {
	return []byte(HexKey(t)), nil
}

// UnmarshalText parses the HexKey form written by MarshalText.
func (t *Token) UnmarshalText(b []byte) error {
	*t = TokenFromHexKey(string(b))
	return nil
}
