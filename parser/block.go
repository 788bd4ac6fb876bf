package parser

import (
	"fmt"
	"log"

	"github.com/cardano-dex/batcher-monitor/blockfrost"
	"github.com/cardano-dex/batcher-monitor/cardano/datum"
	"github.com/cardano-dex/batcher-monitor/chainsync"
	"github.com/cardano-dex/batcher-monitor/config"
	"github.com/cardano-dex/batcher-monitor/store"
)

// processTransaction implements §4.6's per-transaction algorithm: resolve
// every input (falling back to Blockfrost for anything the store has
// evicted or never seen), persist every output (recognizing order-book
// outputs by address), and run analytics once an order closes.
func (p *Parser) processTransaction(tx *store.Tx, block chainsync.Block, txn chainsync.Tx) error {
	inputIDs := make([]string, len(txn.Inputs))
	for i, in := range txn.Inputs {
		inputIDs[i] = in.UtxoID()
	}

	var closedOrderIDs []string
	for _, id := range inputIDs {
		if err := tx.MarkSpent(id, block.Slot); err != nil {
			return fmt.Errorf("mark spent %s: %w", id, err)
		}
		if p.openOrders[id] {
			closedOrderIDs = append(closedOrderIDs, id)
			delete(p.openOrders, id)
		}
	}

	outputUtxos := make([]store.Utxo, 0, len(txn.Outputs))
	for i, out := range txn.Outputs {
		id := fmt.Sprintf("%s#%d", txn.Hash, i)
		u := store.Utxo{ID: id, Owner: out.Address, Value: out.Value, CreatedSlot: block.Slot, BlockHash: block.Hash}

		version, isOrder := config.OrderBookAddresses[out.Address]
		if isOrder {
			sender, recipient, err := p.decodeOrderOutput(out, txn, version)
			if err != nil {
				log.Printf("[parser] tx %s output %d: order datum decode failed, storing as plain utxo: %v", txn.Hash, i, err)
				isOrder = false
			} else {
				if err := tx.UpsertUtxo(u); err != nil {
					return fmt.Errorf("persist order utxo %s: %w", id, err)
				}
				if err := tx.InsertOrder(store.Order{ID: id, Sender: sender, Recipient: recipient, PlacedSlot: block.Slot}); err != nil {
					return fmt.Errorf("persist order %s: %w", id, err)
				}
				p.openOrders[id] = true
			}
		}
		if !isOrder {
			if err := tx.UpsertUtxo(u); err != nil {
				return fmt.Errorf("persist utxo %s: %w", id, err)
			}
		}
		outputUtxos = append(outputUtxos, u)
	}

	if len(closedOrderIDs) == 0 {
		return nil
	}

	// Only worth resolving every input (and paying for a Blockfrost fallback
	// call) once we know this transaction actually closes an order and its
	// analytics will be computed below, the same gate as the original's
	// calculate_analytics.
	loaded, err := tx.GetUtxos(inputIDs)
	if err != nil {
		return fmt.Errorf("load inputs: %w", err)
	}
	loadedByID := make(map[string]store.Utxo, len(loaded))
	for _, u := range loaded {
		loadedByID[u.ID] = u
	}

	var missing []string
	for _, id := range inputIDs {
		if _, ok := loadedByID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		if err := p.fetchMissingInputs(txn.Hash, missing, loadedByID); err != nil {
			return fmt.Errorf("fallback fetch: %w", err)
		}
	}

	orders, err := tx.GetOrders(closedOrderIDs)
	if err != nil {
		return fmt.Errorf("load closed orders: %w", err)
	}

	var inputUtxos []store.Utxo
	for _, id := range inputIDs {
		if u, ok := loadedByID[id]; ok {
			inputUtxos = append(inputUtxos, u)
		}
	}

	result, err := calculateAnalytics(tx, inputUtxos, outputUtxos, orders, p.prices)
	if err != nil {
		return fmt.Errorf("calculate analytics: %w", err)
	}

	txnRow := store.Transaction{
		TxHash:        txn.Hash,
		Slot:          block.Slot,
		BatcherID:     result.BatcherID,
		AdaProfit:     result.AdaProfit,
		NetworkFee:    int64(txn.FeeLovelace),
		EquivalentAda: result.EquivalentAda,
		NetAssets:     result.NetAssets,
		OrderIDs:      closedOrderIDs,
	}
	if _, err := tx.InsertTransaction(txnRow); err != nil {
		return fmt.Errorf("persist transaction %s: %w", txn.Hash, err)
	}
	return nil
}

// fetchMissingInputs calls out to Blockfrost for every input the store
// doesn't have (typically because the eviction sweep already dropped it),
// discarding any entries in the response that don't correspond to one of
// the ids actually being looked up.
func (p *Parser) fetchMissingInputs(txHash string, missing []string, into map[string]store.Utxo) error {
	want := make(map[string]bool, len(missing))
	for _, id := range missing {
		want[id] = true
	}

	resp, err := p.fallback.TransactionUtxos(txHash)
	if err != nil {
		return err
	}
	for _, in := range resp {
		id := fmt.Sprintf("%s#%d", in.TxHash, in.OutputIndex)
		if !want[id] {
			continue // extraneous output-side entry, or a duplicate already resolved
		}
		v, err := blockfrost.ValueOf(in.Amount)
		if err != nil {
			log.Printf("[parser] fallback utxo %s: %v", id, err)
			continue
		}
		into[id] = store.Utxo{ID: id, Owner: in.Address, Value: v}
		delete(want, id)
	}
	if len(want) > 0 {
		log.Printf("[parser] tx %s: %d input(s) unresolved even after fallback fetch", txHash, len(want))
	}
	return nil
}

// decodeOrderOutput resolves an order-book output's datum, whether carried
// inline or referenced by hash into the transaction's datum table, and
// parses it into (sender, recipient).
func (p *Parser) decodeOrderOutput(out chainsync.Output, txn chainsync.Tx, version config.Version) (sender, recipient string, err error) {
	cborHex := out.Datum
	if cborHex == "" {
		cborHex = txn.Datums[out.DatumHash]
	}
	if cborHex == "" {
		return "", "", fmt.Errorf("no datum available")
	}
	d, err := datum.DecodeHex(cborHex)
	if err != nil {
		return "", "", fmt.Errorf("decode datum: %w", err)
	}
	return decodeOrderDatum(d, version)
}
