package store

import (
	"database/sql"
	"fmt"
)

// These mirror the Tx read helpers but run as short-lived, independent
// sessions against the shared pool — used by the HTTP query layer and by
// the chain client's bootstrap/rollback walk, neither of which is inside a
// block's write transaction.

// FindMaxSlotBlock returns the most recent (createdSlot, blockHash) pair.
func (s *Store) FindMaxSlotBlock() (slot uint64, hash string, ok bool, err error) {
	row := s.db.QueryRow(`SELECT created_slot, block_hash FROM utxo ORDER BY created_slot DESC, block_hash DESC LIMIT 1`)
	err = row.Scan(&slot, &hash)
	if err == sql.ErrNoRows {
		return 0, "", false, nil
	}
	if err != nil {
		return 0, "", false, fmt.Errorf("store: find max slot block: %w", err)
	}
	return slot, hash, true, nil
}

// DistinctBlocksDescending returns up to limit distinct (createdSlot,
// blockHash) rows strictly older than (beforeSlot, beforeHash), in
// descending order — the walk the rollback engine drives one row at a time.
func (s *Store) DistinctBlocksDescending(beforeSlot uint64, beforeHash string, limit int) ([]BlockRef, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT created_slot, block_hash FROM utxo
		WHERE created_slot < ? OR (created_slot = ? AND block_hash < ?)
		ORDER BY created_slot DESC, block_hash DESC
		LIMIT ?
	`, beforeSlot, beforeSlot, beforeHash, limit)
	if err != nil {
		return nil, fmt.Errorf("store: distinct blocks descending: %w", err)
	}
	defer rows.Close()
	var out []BlockRef
	for rows.Next() {
		var b BlockRef
		if err := rows.Scan(&b.Slot, &b.BlockHash); err != nil {
			return nil, fmt.Errorf("store: scan block ref: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// BlockRef identifies a distinct block the store has seen a Utxo created in.
type BlockRef struct {
	Slot      uint64
	BlockHash string
}

// GetBatcherByAddress returns the batcher id owning address, if any.
func (s *Store) GetBatcherByAddress(address string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRow(`SELECT batcher_id FROM batcher_address WHERE address=?`, address).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("store: get batcher by address %s: %w", address, err)
	}
	return id, true, nil
}

// OpenOrderIDs returns every order id with a null transaction_id — the
// wholesale reinitialization read used on startup and after a rollback.
func (s *Store) OpenOrderIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM "order" WHERE transaction_id IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("store: open order ids: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan open order id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// BatcherAddresses returns every address linked to a batcher, across all
// batchers — backs the read API's /batchers listing.
func (s *Store) BatcherAddresses() (map[int64][]string, error) {
	rows, err := s.db.Query(`SELECT batcher_id, address FROM batcher_address ORDER BY batcher_id`)
	if err != nil {
		return nil, fmt.Errorf("store: batcher addresses: %w", err)
	}
	defer rows.Close()
	out := map[int64][]string{}
	for rows.Next() {
		var id int64
		var addr string
		if err := rows.Scan(&id, &addr); err != nil {
			return nil, fmt.Errorf("store: scan batcher address: %w", err)
		}
		out[id] = append(out[id], addr)
	}
	return out, rows.Err()
}

// TransactionsByAddress returns every transaction whose batcher owns the
// given address, newest first — backs GET /transactions?address=.
func (s *Store) TransactionsByAddress(address string) ([]Transaction, error) {
	batcherID, ok, err := s.GetBatcherByAddress(address)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	rows, err := s.db.Query(`
		SELECT id, tx_hash, slot, batcher_id, ada_profit, network_fee, equivalent_ada, net_assets
		FROM tx WHERE batcher_id=? ORDER BY slot DESC
	`, batcherID)
	if err != nil {
		return nil, fmt.Errorf("store: transactions by address %s: %w", address, err)
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

// AllStats aggregates, per batcher, summed ada profit and equivalent ada
// across all of its transactions — backs GET /all-stats.
type BatcherStats struct {
	BatcherID        int64
	Addresses        []string
	TotalAdaProfit   int64
	TotalEquivalent  int64
	TransactionCount int64
}

func (s *Store) AllStats() ([]BatcherStats, error) {
	addrs, err := s.BatcherAddresses()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`
		SELECT batcher_id, COUNT(*), COALESCE(SUM(ada_profit),0), COALESCE(SUM(equivalent_ada),0)
		FROM tx WHERE batcher_id IS NOT NULL GROUP BY batcher_id
	`)
	if err != nil {
		return nil, fmt.Errorf("store: all stats: %w", err)
	}
	defer rows.Close()
	var out []BatcherStats
	for rows.Next() {
		var st BatcherStats
		if err := rows.Scan(&st.BatcherID, &st.TransactionCount, &st.TotalAdaProfit, &st.TotalEquivalent); err != nil {
			return nil, fmt.Errorf("store: scan batcher stats: %w", err)
		}
		st.Addresses = addrs[st.BatcherID]
		out = append(out, st)
	}
	return out, rows.Err()
}
