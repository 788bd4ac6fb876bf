// Package config loads the process's environment-driven settings and
// carries the compiled-in order-book address table the parser matches
// outputs against.
package config

import "os"

// Version identifies which order-book contract family an address belongs to.
type Version string

const (
	V1       Version = "v1"
	V2       Version = "v2"
	V3       Version = "v3"
	V4       Version = "v4"
	V1Liquidity Version = "v1_lq"
	V2Liquidity Version = "v2_lq"
	CLPLiquidity Version = "clp_lq"
)

// IsLiquidity reports whether a version's datum layout is the two-field
// sender/recipient liquidity shape rather than the single-creator shape.
func (v Version) IsLiquidity() bool {
	return v == V1Liquidity || v == V2Liquidity || v == CLPLiquidity
}

const (
	v1Orderbook  = "addr1wy2mjh76em44qurn5x73nzqrxua7ataasftql0u2h6g88lc3gtgpz"
	v2Orderbook  = "addr1z8c7eyxnxgy80qs5ehrl4yy93tzkyqjnmx0cfsgrxkfge27q47h8tv3jp07j8yneaxj7qc63zyzqhl933xsglcsgtqcqxzc2je"
	v3Orderbook  = "addr1z8l28a6jsx4870ulrfygqvqqdnkdjc5sa8f70ys6dvgvjqc3r6dxnzml343sx8jweqn4vn3fz2kj8kgu9czghx0jrsyqxyrhvq"
	v4Orderbook  = "addr1zyq0kyrml023kwjk8zr86d5gaxrt5w8lxnah8r6m6s4jp4g3r6dxnzml343sx8jweqn4vn3fz2kj8kgu9czghx0jrsyqqktyhv"
	v1Liquidity  = "addr1wydncknydgqcur8m6s8m49633j8f2hjcd8c2l48cc45yj0s4ta38n"
	v2Liquidity  = "addr1w9e7m6yn74r7m0f9mf548ldr8j4v6q05gprey2lhch8tj5gsvyte9"
	clpLiquidity = "addr1w87gl00kfuj7qnk8spf25x5e0wfcvasgj5tq3lt5egh6swc4aa5lh"
)

// OrderBookAddresses maps every recognized order-book address to its
// contract version family.
var OrderBookAddresses = map[string]Version{
	v1Orderbook:  V1,
	v2Orderbook:  V2,
	v3Orderbook:  V3,
	v4Orderbook:  V4,
	v1Liquidity:  V1Liquidity,
	v2Liquidity:  V2Liquidity,
	clpLiquidity: CLPLiquidity,
}

// PoolContracts lists payment-credential hashes of AMM pool scripts, whose
// outputs are excluded from analytics' filtered-output set.
var PoolContracts = []string{
	"e8baad9288dc9abdc099b46f2ac006b1a82c7df4996e067f00c04e8d", // v1
	"7045237d1eb0199c84dffe58fe6df7dc5d255eb4d418e4146d5721f8", // v2
	"4136eeede1a49030451ee3a09d900959bafeafd9b536e59345ac780f", // clp
	"28bbd1f7aebb3bc59e13597f333aeefb8f5ab78eda962de1d605b388", // teddy
	"e628bfd68c07a7a38fcd7d8df650812a9dfdbee54b1ed4c25c87ffbf", // spectrum v1
	"6b9c456aa650cb808a9ab54326e039d5235ed69f069c9664a8fe5b69", // spectrum v2
	"32a3548883f31e79c13b5403ab92d3d0c4e54e9230a3d72cb1fb4c24", // amm batcher
}

// ProfitAddresses are operator fee-collection addresses excluded from the
// analytics filtered-output set, same as a sender/recipient/pool address.
var ProfitAddresses = []string{
	"addr1qycewgm43uc96vt3qjp434mqp4jfzttws0xjwqz4a364qu95mx98r9d2mpx5ka4xe5npakhrz2qz4n2tqzgvyngrkedqn3hctc",
	"addr1q8l7hny7x96fadvq8cukyqkcfca5xmkrvfrrkt7hp76v3qvssm7fz9ajmtd58ksljgkyvqu6gl23hlcfgv7um5v0rn8qtnzlfk",
	"addr1q9ry6jfdgm0lcrtfpgwrgxg7qfahv80jlghhrthy6w8hmyjuw9ngccy937pm7yw0jjnxasm7hzxjrf8rzkqcj26788lqws5fke",
}

// DefaultStartSlot/DefaultStartHash are the compiled-in bootstrap point a
// fresh, empty store resumes from.
const (
	DefaultStartSlot = uint64(133706202)
	DefaultStartHash = "770685fbaa53286ced25d46d6e1756eca23a143b493e194577fee1870aeda5cc"
)

// Config is the process-wide configuration injected through a context
// object at startup rather than read from mutable globals at each call site.
type Config struct {
	DatabaseURI        string
	OgmiosURL          string
	BlockfrostProjectID string
	PriceOracleURL     string
	MetricsAddr        string
	HTTPAddr           string
	Singlethreaded     bool
}

// FromEnv reads the process environment into a Config, applying the same
// defaults the original deployment hardcodes.
func FromEnv() Config {
	return Config{
		DatabaseURI:         getenv("DATABASE_URI", "sqlite://db.sqlite"),
		OgmiosURL:           ogmiosURL(),
		BlockfrostProjectID: os.Getenv("BLOCKFROST_PROJECT_ID"),
		PriceOracleURL:      "https://api.muesliswap.com/price",
		MetricsAddr:         getenv("METRICS_ADDR", ":9090"),
		HTTPAddr:            getenv("HTTP_ADDR", ":8080"),
	}
}

// ogmiosURL prefers OGMIOS_URL, falling back to OGMIOS_HOSTNAME (the
// original's container-friendly host-only variable) before defaulting to
// a local endpoint.
func ogmiosURL() string {
	if v := os.Getenv("OGMIOS_URL"); v != "" {
		return v
	}
	if host := os.Getenv("OGMIOS_HOSTNAME"); host != "" {
		return "ws://" + host + ":1337"
	}
	return "ws://localhost:1337"
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
