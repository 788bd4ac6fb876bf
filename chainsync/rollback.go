package chainsync

import (
	"context"
	"fmt"
	"log"

	"github.com/cardano-dex/batcher-monitor/metrics"
	"github.com/cardano-dex/batcher-monitor/store"
)

// MaxAllowedRollbackSlots bounds how far back the engine will walk before
// giving up: 2*86400/20 = 8640 slots, measured as the slot distance between
// the tip the walk started from and the candidate block.
const MaxAllowedRollbackSlots = 2 * 86400 / 20

// ExceededRollbackError is returned when prevBlock has walked further back
// than MaxAllowedRollbackSlots without finding an accepted intersection —
// the store/node is unrecoverably out of sync and needs operator intervention.
type ExceededRollbackError struct {
	WalkedSlots uint64
}

func (e *ExceededRollbackError) Error() string {
	return fmt.Sprintf("chainsync: rollback exceeded max allowed depth of %d slots (walked %d)", MaxAllowedRollbackSlots, e.WalkedSlots)
}

// RollbackEngine walks the store's distinct (createdSlot, blockHash) rows
// backwards, one at a time, on behalf of the chain client's intersection
// retry loop.
type RollbackEngine struct {
	store      *store.Store
	tipSlot    uint64
	tipHash    string
	walkedFrom uint64
}

// NewRollbackEngine starts a walk from the store's current max slot/block.
// On an empty store the engine has no block to step back to, and every
// PrevBlock call fails.
func NewRollbackEngine(s *store.Store) (*RollbackEngine, error) {
	slot, hash, ok, err := s.FindMaxSlotBlock()
	if err != nil {
		return nil, fmt.Errorf("chainsync: rollback engine init: %w", err)
	}
	if !ok {
		return &RollbackEngine{store: s}, nil
	}
	return &RollbackEngine{store: s, tipSlot: slot, tipHash: hash, walkedFrom: slot}, nil
}

// PrevBlock advances the walk one distinct block backwards and returns the
// new candidate (slot, hash) pair, failing with *ExceededRollbackError once
// the walked distance exceeds the hard cap.
func (r *RollbackEngine) PrevBlock() (Point, error) {
	refs, err := r.store.DistinctBlocksDescending(r.tipSlot, r.tipHash, 1)
	if err != nil {
		return Point{}, fmt.Errorf("chainsync: prev block: %w", err)
	}
	if len(refs) == 0 {
		return Point{}, fmt.Errorf("chainsync: prev block: no earlier block in store")
	}
	walked := r.walkedFrom - refs[0].Slot
	if walked > MaxAllowedRollbackSlots {
		return Point{}, &ExceededRollbackError{WalkedSlots: walked}
	}
	r.tipSlot, r.tipHash = refs[0].Slot, refs[0].BlockHash
	metrics.RollbackDepth.Set(float64(walked))
	return Point{Slot: r.tipSlot, Hash: r.tipHash}, nil
}

// Rollback truncates the store to toSlot in one transaction: every
// Transaction with a later slot and every Utxo created after it are
// deleted, and the Orders on deleted Utxos cascade away with them.
// Idempotent.
func Rollback(ctx context.Context, s *store.Store, toSlot uint64) error {
	tx, err := s.BeginBlock(ctx)
	if err != nil {
		return fmt.Errorf("chainsync: rollback begin: %w", err)
	}
	n, err := tx.DeleteUtxosCreatedAfter(toSlot)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("chainsync: rollback delete: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("chainsync: rollback commit: %w", err)
	}
	metrics.RollbacksTotal.Inc()
	log.Printf("[rollback] truncated store to slot %d, removed %d utxo rows", toSlot, n)
	return nil
}

// StartupRollback unconditionally rolls back one block before any chain
// connection is made, ensuring a partially-processed block (if any) from a
// prior crashed run is reprocessed atomically.
func StartupRollback(ctx context.Context, s *store.Store) error {
	slot, hash, ok, err := s.FindMaxSlotBlock()
	if err != nil {
		return fmt.Errorf("chainsync: startup rollback: find max slot block: %w", err)
	}
	if !ok {
		return nil // empty store, nothing to roll back
	}
	refs, err := s.DistinctBlocksDescending(slot, hash, 1)
	if err != nil {
		return fmt.Errorf("chainsync: startup rollback: %w", err)
	}
	if len(refs) == 0 {
		return nil // only one block known, nothing earlier to roll back to
	}
	return Rollback(ctx, s, refs[0].Slot)
}
