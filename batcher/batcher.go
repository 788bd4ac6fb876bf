// Package batcher resolves the batcher identity owning a set of candidate
// addresses, merging previously distinct batchers — and rewiring their
// history — when a transaction links addresses that belonged to different
// batchers until now. Modeled as classical union-find with path
// compression over store-backed Batcher surrogate ids: "find" is a lookup
// by address, "union" is the merge rule below, and both are pushed to the
// store in the same transaction the caller is already running per block.
package batcher

import (
	"fmt"
	"sort"

	"github.com/cardano-dex/batcher-monitor/metrics"
	"github.com/cardano-dex/batcher-monitor/store"
)

// Resolve implements §4.7 step 5: given the set of candidate batcher
// addresses A for one batch transaction, returns the id of the single
// batcher that should be attributed, creating or merging batchers as
// needed. Returns (nil, nil) for the empty-candidate case.
func Resolve(tx *store.Tx, addresses []string) (*int64, error) {
	switch len(unique(addresses)) {
	case 0:
		return nil, nil
	case 1:
		return resolveSingle(tx, addresses[0])
	default:
		return resolveMerge(tx, unique(addresses))
	}
}

func resolveSingle(tx *store.Tx, address string) (*int64, error) {
	id, ok, err := tx.GetBatcherByAddress(address)
	if err != nil {
		return nil, fmt.Errorf("batcher: lookup %s: %w", address, err)
	}
	if ok {
		return &id, nil
	}
	newID, err := tx.CreateBatcher()
	if err != nil {
		return nil, fmt.Errorf("batcher: create batcher for %s: %w", address, err)
	}
	if err := tx.LinkBatcherAddress(address, newID); err != nil {
		return nil, fmt.Errorf("batcher: link %s: %w", address, err)
	}
	return &newID, nil
}

// resolveMerge handles |A| >= 2: every address's existing batcher (if any)
// is found; the unique set of batchers found is merged down to one
// canonical survivor (B[0] in encounter order), and every address —
// previously assigned or not — ends up linked to it.
func resolveMerge(tx *store.Tx, addresses []string) (*int64, error) {
	var found []int64
	seen := map[int64]bool{}
	unassigned := []string{}

	for _, addr := range addresses {
		id, ok, err := tx.GetBatcherByAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("batcher: lookup %s: %w", addr, err)
		}
		if !ok {
			unassigned = append(unassigned, addr)
			continue
		}
		if !seen[id] {
			seen[id] = true
			found = append(found, id)
		}
	}

	var canonical int64
	switch len(found) {
	case 0:
		newID, err := tx.CreateBatcher()
		if err != nil {
			return nil, fmt.Errorf("batcher: create batcher for merge: %w", err)
		}
		canonical = newID
	case 1:
		canonical = found[0]
	default:
		canonical = found[0]
		others := found[1:]
		if err := tx.MergeBatchers(canonical, others); err != nil {
			return nil, fmt.Errorf("batcher: merge %v into %d: %w", others, canonical, err)
		}
		metrics.BatcherMergesTotal.Add(float64(len(others)))
	}

	for _, addr := range unassigned {
		if err := tx.LinkBatcherAddress(addr, canonical); err != nil {
			return nil, fmt.Errorf("batcher: link %s to %d: %w", addr, canonical, err)
		}
	}
	return &canonical, nil
}

func unique(addrs []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, a := range addrs {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	sort.Strings(out)
	return out
}
