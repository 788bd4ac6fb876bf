package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// CreateBatcher inserts a new Batcher row and returns its surrogate id.
func (t *Tx) CreateBatcher() (int64, error) {
	res, err := t.tx.Exec(`INSERT INTO batcher DEFAULT VALUES`)
	if err != nil {
		return 0, fmt.Errorf("store: create batcher: %w", err)
	}
	return res.LastInsertId()
}

// LinkBatcherAddress links address to batcherID, creating or overwriting
// any prior link — an address belongs to at most one batcher at a time.
func (t *Tx) LinkBatcherAddress(address string, batcherID int64) error {
	_, err := t.tx.Exec(`
		INSERT INTO batcher_address (address, batcher_id) VALUES (?, ?)
		ON CONFLICT(address) DO UPDATE SET batcher_id=excluded.batcher_id
	`, address, batcherID)
	if err != nil {
		return fmt.Errorf("store: link address %s to batcher %d: %w", address, batcherID, err)
	}
	return nil
}

// GetBatcherByAddress returns the batcher id owning address, if any, inside
// the block's transaction (used mid-block by analytics, which must see
// its own prior writes within the same transaction).
func (t *Tx) GetBatcherByAddress(address string) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRow(`SELECT batcher_id FROM batcher_address WHERE address=?`, address).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("store: get batcher by address %s: %w", address, err)
	}
	return id, true, nil
}

// MergeBatchers rewires every address and transaction owned by "others"
// onto canonical, then deletes the now-empty "others" rows. Implements the
// merge rule: canonical survives, others are rewired then removed — all
// inside the caller's block transaction, so the merge is atomic with the
// rest of the batch transaction's attribution.
func (t *Tx) MergeBatchers(canonical int64, others []int64) error {
	for _, other := range others {
		if other == canonical {
			continue
		}
		if _, err := t.tx.Exec(`UPDATE batcher_address SET batcher_id=? WHERE batcher_id=?`, canonical, other); err != nil {
			return fmt.Errorf("store: rewire addresses from batcher %d to %d: %w", other, canonical, err)
		}
		if _, err := t.tx.Exec(`UPDATE tx SET batcher_id=? WHERE batcher_id=?`, canonical, other); err != nil {
			return fmt.Errorf("store: rewire transactions from batcher %d to %d: %w", other, canonical, err)
		}
		if _, err := t.tx.Exec(`DELETE FROM batcher WHERE id=?`, other); err != nil {
			return fmt.Errorf("store: delete merged batcher %d: %w", other, err)
		}
	}
	return nil
}
