package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/cardano-dex/batcher-monitor/cardano/value"
)

// UpsertUtxo inserts or replaces a Utxo row. Re-running with the same id
// and fields is idempotent, matching the reconnect-driven at-least-once
// delivery of the chain client.
func (t *Tx) UpsertUtxo(u Utxo) error {
	raw, err := json.Marshal(valueToWire(u.Value))
	if err != nil {
		return fmt.Errorf("store: marshal utxo value: %w", err)
	}
	_, err = t.tx.Exec(`
		INSERT INTO utxo (id, owner, value, created_slot, spent_slot, block_hash)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner=excluded.owner, value=excluded.value,
			created_slot=excluded.created_slot, block_hash=excluded.block_hash
	`, u.ID, u.Owner, raw, u.CreatedSlot, u.SpentSlot, u.BlockHash)
	if err != nil {
		return fmt.Errorf("store: upsert utxo %s: %w", u.ID, err)
	}
	return nil
}

// MarkSpent records that a Utxo was consumed at the given slot. spentSlot
// is write-once: a utxo already marked spent keeps its first spent slot, and
// an id the store does not hold is left untouched.
func (t *Tx) MarkSpent(id string, slot uint64) error {
	_, err := t.tx.Exec(`UPDATE utxo SET spent_slot=? WHERE id=? AND spent_slot IS NULL`, slot, id)
	if err != nil {
		return fmt.Errorf("store: mark utxo %s spent: %w", id, err)
	}
	return nil
}

// GetUtxo fetches a single Utxo by id. Returns (Utxo{}, false, nil) if absent.
func (t *Tx) GetUtxo(id string) (Utxo, bool, error) {
	row := t.tx.QueryRow(`SELECT id, owner, value, created_slot, spent_slot, block_hash FROM utxo WHERE id=?`, id)
	u, err := scanUtxo(row)
	if err == sql.ErrNoRows {
		return Utxo{}, false, nil
	}
	if err != nil {
		return Utxo{}, false, fmt.Errorf("store: get utxo %s: %w", id, err)
	}
	return u, true, nil
}

// GetUtxos fetches the subset of ids present in the store.
func (t *Tx) GetUtxos(ids []string) ([]Utxo, error) {
	var out []Utxo
	for _, id := range ids {
		u, ok, err := t.GetUtxo(id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, u)
		}
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUtxo(row rowScanner) (Utxo, error) {
	var u Utxo
	var raw []byte
	var spentSlot sql.NullInt64
	if err := row.Scan(&u.ID, &u.Owner, &raw, &u.CreatedSlot, &spentSlot, &u.BlockHash); err != nil {
		return Utxo{}, err
	}
	if spentSlot.Valid {
		s := uint64(spentSlot.Int64)
		u.SpentSlot = &s
	}
	var wire map[string]map[string]uint64
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Utxo{}, fmt.Errorf("unmarshal utxo value: %w", err)
	}
	u.Value = value.Value(wire)
	return u, nil
}

// DeleteUtxosSpentBefore removes every Utxo with a non-null spentSlot less
// than the given slot — the eviction policy run every 1000 blocks. The
// cascading delete on order.id removes the now-closed Order row, but the
// Transaction row it was linked to is real settled history and is left
// alone (order.transaction_id is ON DELETE SET NULL, not cascaded).
func (t *Tx) DeleteUtxosSpentBefore(slot uint64) (int64, error) {
	res, err := t.tx.Exec(`DELETE FROM utxo WHERE spent_slot IS NOT NULL AND spent_slot < ?`, slot)
	if err != nil {
		return 0, fmt.Errorf("store: delete utxos spent before %d: %w", slot, err)
	}
	return res.RowsAffected()
}

// DeleteUtxosCreatedAfter removes every Utxo created after the given slot —
// the rollback truncation operation. A Transaction's own slot column is
// the authority on whether it survives a rollback to toSlot, so every
// Transaction with slot > toSlot is deleted first; that in turn nulls
// out transaction_id on any Order it had closed (ON DELETE SET NULL),
// reopening orders whose closing transaction no longer happened, before
// the cascading Utxo delete removes whatever Orders were placed after
// toSlot outright.
func (t *Tx) DeleteUtxosCreatedAfter(slot uint64) (int64, error) {
	if _, err := t.tx.Exec(`DELETE FROM tx WHERE slot > ?`, slot); err != nil {
		return 0, fmt.Errorf("store: delete transactions after %d: %w", slot, err)
	}
	res, err := t.tx.Exec(`DELETE FROM utxo WHERE created_slot > ?`, slot)
	if err != nil {
		return 0, fmt.Errorf("store: delete utxos created after %d: %w", slot, err)
	}
	return res.RowsAffected()
}

// FindMaxSlotBlock returns the most recent (createdSlot, blockHash) pair
// known to the store, or (0, "", false) if the store is empty.
func (t *Tx) FindMaxSlotBlock() (slot uint64, hash string, ok bool, err error) {
	row := t.tx.QueryRow(`SELECT created_slot, block_hash FROM utxo ORDER BY created_slot DESC, block_hash DESC LIMIT 1`)
	err = row.Scan(&slot, &hash)
	if err == sql.ErrNoRows {
		return 0, "", false, nil
	}
	if err != nil {
		return 0, "", false, fmt.Errorf("store: find max slot block: %w", err)
	}
	return slot, hash, true, nil
}

func valueToWire(v value.Value) map[string]map[string]uint64 {
	if v == nil {
		return map[string]map[string]uint64{}
	}
	return map[string]map[string]uint64(v)
}
