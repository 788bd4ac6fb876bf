package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/cardano-dex/batcher-monitor/cardano/value"
)

// InsertTransaction persists a Transaction row and links every one of its
// OrderIDs to it, closing those orders. Runs inside the caller's block
// transaction, so the transaction row and its order links commit (or
// abort) as one unit with everything else that block touched.
func (t *Tx) InsertTransaction(txn Transaction) (int64, error) {
	netAssets := map[string]int64{}
	for tok, amount := range txn.NetAssets {
		netAssets[value.HexKey(tok)] = amount
	}
	raw, err := json.Marshal(netAssets)
	if err != nil {
		return 0, fmt.Errorf("store: marshal net assets: %w", err)
	}
	res, err := t.tx.Exec(`
		INSERT INTO tx (tx_hash, slot, batcher_id, ada_profit, network_fee, equivalent_ada, net_assets)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, txn.TxHash, txn.Slot, txn.BatcherID, txn.AdaProfit, txn.NetworkFee, txn.EquivalentAda, raw)
	if err != nil {
		return 0, fmt.Errorf("store: insert transaction %s: %w", txn.TxHash, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: transaction last insert id: %w", err)
	}
	if err := t.linkOrdersToTransaction(txn.OrderIDs, id); err != nil {
		return 0, err
	}
	return id, nil
}

func scanTransaction(row rowScanner) (Transaction, error) {
	var txn Transaction
	var batcherID sql.NullInt64
	var raw []byte
	if err := row.Scan(&txn.ID, &txn.TxHash, &txn.Slot, &batcherID, &txn.AdaProfit, &txn.NetworkFee, &txn.EquivalentAda, &raw); err != nil {
		return Transaction{}, err
	}
	if batcherID.Valid {
		id := batcherID.Int64
		txn.BatcherID = &id
	}
	var wire map[string]int64
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Transaction{}, fmt.Errorf("unmarshal net assets: %w", err)
	}
	txn.NetAssets = map[value.Token]int64{}
	for k, v := range wire {
		txn.NetAssets[value.TokenFromHexKey(k)] = v
	}
	return txn, nil
}
