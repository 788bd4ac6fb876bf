// Package address encodes and decodes Cardano Shelley payment addresses
// between their binary hex representation and bech32 text form.
package address

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
)

// Network selects which bech32 human-readable-part and network tag an
// address belongs to.
type Network int

const (
	Mainnet Network = iota
	Testnet
)

func (n Network) tag() byte {
	if n == Mainnet {
		return '1'
	}
	return '0'
}

func (n Network) hrp() string {
	if n == Mainnet {
		return "addr"
	}
	return "addr_test"
}

// Shelley is a decoded Shelley payment address: a 28-byte payment key hash
// plus an optional 28-byte stake key hash (enterprise addresses omit it).
type Shelley struct {
	Network      Network
	PubKeyHash   string // hex, 56 chars
	StakeKeyHash string // hex, 56 chars, empty for enterprise addresses
}

// IsEnterprise reports whether the address carries no stake credential.
func (s Shelley) IsEnterprise() bool {
	return s.StakeKeyHash == ""
}

func (s Shelley) header() byte {
	if s.IsEnterprise() {
		return '6'
	}
	return '0'
}

// Hex renders the address as its raw hex form: header nibble, network-tag
// nibble, payment key hash, and (if present) stake key hash.
func (s Shelley) Hex() string {
	return fmt.Sprintf("%c%c%s%s", s.header(), s.Network.tag(), s.PubKeyHash, s.StakeKeyHash)
}

// Bech32 renders the address in its canonical bech32 text form.
func (s Shelley) Bech32() (string, error) {
	return HexToBech32(s.Hex(), s.Network)
}

// FromHex parses a raw hex address into its Shelley components. Only
// base (header 0) and enterprise (header 6/7) key-hash addresses are
// supported, matching the subset the order-book contracts actually emit.
func FromHex(hexAddr string) (Shelley, error) {
	if len(hexAddr) >= 2 && hexAddr[:2] == "0x" {
		hexAddr = hexAddr[2:]
	}
	if len(hexAddr) < 58 {
		return Shelley{}, fmt.Errorf("address: hex too short: %q", hexAddr)
	}
	net := Mainnet
	if hexAddr[1] == '0' {
		net = Testnet
	}
	pkh := hexAddr[2:58]
	switch hexAddr[0] {
	case '6', '7':
		return Shelley{Network: net, PubKeyHash: pkh}, nil
	case '0':
		return Shelley{Network: net, PubKeyHash: pkh, StakeKeyHash: hexAddr[58:]}, nil
	default:
		return Shelley{}, fmt.Errorf("address: unsupported header byte %q", hexAddr[0:1])
	}
}

// HexToBech32 bech32-encodes a raw address hex string.
func HexToBech32(hexAddr string, net Network) (string, error) {
	raw, err := hex.DecodeString(hexAddr)
	if err != nil {
		return "", fmt.Errorf("address: decode hex: %w", err)
	}
	conv, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("address: convert bits: %w", err)
	}
	encoded, err := bech32.Encode(net.hrp(), conv)
	if err != nil {
		return "", fmt.Errorf("address: bech32 encode: %w", err)
	}
	return encoded, nil
}

// Bech32ToHex decodes a bech32 address back to its raw hex form.
func Bech32ToHex(bech string) (string, error) {
	_, data, err := bech32.Decode(bech)
	if err != nil {
		return "", fmt.Errorf("address: bech32 decode: %w", err)
	}
	conv, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", fmt.Errorf("address: convert bits: %w", err)
	}
	return hex.EncodeToString(conv), nil
}

// FromBech32 decodes a bech32 address directly into its Shelley components.
func FromBech32(bech string) (Shelley, error) {
	hexAddr, err := Bech32ToHex(bech)
	if err != nil {
		return Shelley{}, err
	}
	return FromHex(hexAddr)
}

// FromParts builds the bech32 address for a pubkey-hash/stake-key-hash pair,
// the shape the datum decoder extracts from an order's wallet-address datum.
func FromParts(pubKeyHash, stakeKeyHash string, net Network) (string, error) {
	s := Shelley{Network: net, PubKeyHash: pubKeyHash, StakeKeyHash: stakeKeyHash}
	return s.Bech32()
}
