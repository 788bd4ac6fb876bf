package store

import (
	"database/sql"
	"fmt"
)

// InsertOrder creates an open Order row (transactionId null). ids must
// reference an already-upserted Utxo row, matching the data model's
// invariant that Order.id is also a Utxo.id.
func (t *Tx) InsertOrder(o Order) error {
	_, err := t.tx.Exec(`
		INSERT INTO "order" (id, sender, recipient, slot, transaction_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET sender=excluded.sender, recipient=excluded.recipient
	`, o.ID, o.Sender, o.Recipient, o.PlacedSlot, o.TransactionID)
	if err != nil {
		return fmt.Errorf("store: insert order %s: %w", o.ID, err)
	}
	return nil
}

// GetOrders fetches the Order rows for the given ids, in no particular order.
func (t *Tx) GetOrders(ids []string) ([]Order, error) {
	var out []Order
	for _, id := range ids {
		row := t.tx.QueryRow(`SELECT id, sender, recipient, slot, transaction_id FROM "order" WHERE id=?`, id)
		o, err := scanOrder(row)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("store: get order %s: %w", id, err)
		}
		out = append(out, o)
	}
	return out, nil
}

func scanOrder(row rowScanner) (Order, error) {
	var o Order
	var txID sql.NullInt64
	if err := row.Scan(&o.ID, &o.Sender, &o.Recipient, &o.PlacedSlot, &txID); err != nil {
		return Order{}, err
	}
	if txID.Valid {
		id := txID.Int64
		o.TransactionID = &id
	}
	return o, nil
}

// linkOrdersToTransaction sets transaction_id on every given order id,
// closing them (removing them from the open-orders set).
func (t *Tx) linkOrdersToTransaction(orderIDs []string, transactionID int64) error {
	for _, id := range orderIDs {
		if _, err := t.tx.Exec(`UPDATE "order" SET transaction_id=? WHERE id=?`, transactionID, id); err != nil {
			return fmt.Errorf("store: link order %s to transaction %d: %w", id, transactionID, err)
		}
	}
	return nil
}
