package chainsync

import (
	"fmt"

	"github.com/cardano-dex/batcher-monitor/cardano/value"
)

// Point identifies a chain position by slot and block hash — the shape
// both findIntersection and nextBlock exchange.
type Point struct {
	Slot uint64
	Hash string
}

// Block is the shape the parser consumes: a slot, its hash, and the
// transactions it carries in array order.
type Block struct {
	Slot         uint64
	Hash         string
	Transactions []Tx
}

// Tx is a single transaction within a block.
type Tx struct {
	Hash        string
	Inputs      []Input
	Outputs     []Output
	Datums      map[string]string // datum hash -> cbor hex, the tx's global datum table
	FeeLovelace uint64
}

// Input references a prior transaction's output by position.
type Input struct {
	TxHash string
	Index  int
}

// UtxoID renders the input as the TxHash#index identifier used everywhere
// else in the system.
func (i Input) UtxoID() string {
	return fmt.Sprintf("%s#%d", i.TxHash, i.Index)
}

// Output is a transaction output: an address, its value, and (for script
// addresses) either an inline datum or a hash into the tx's datum table.
type Output struct {
	Address   string
	Value     value.Value
	Datum     string // inline cbor hex, empty if absent
	DatumHash string // empty if absent
}
