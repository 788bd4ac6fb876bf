package parser

import (
	"fmt"
	"strings"

	"github.com/cardano-dex/batcher-monitor/batcher"
	"github.com/cardano-dex/batcher-monitor/cardano/address"
	"github.com/cardano-dex/batcher-monitor/cardano/value"
	"github.com/cardano-dex/batcher-monitor/config"
	"github.com/cardano-dex/batcher-monitor/priceoracle"
	"github.com/cardano-dex/batcher-monitor/store"
)

// analyticsResult is the output of calculateAnalytics, ready to become a
// persisted store.Transaction once the caller knows the tx hash and slot.
type analyticsResult struct {
	BatcherID     *int64
	AdaProfit     int64
	EquivalentAda int64
	NetAssets     map[value.Token]int64
}

// calculateAnalytics implements §4.7: filters inputs/outputs against the
// order senders/recipients and known pool/profit addresses, computes the
// signed per-token value differential, accumulates non-lovelace tokens'
// ADA-equivalent value through the price oracle, and resolves the batcher
// identity for the surviving candidate addresses.
func calculateAnalytics(tx *store.Tx, inputs, outputs []store.Utxo, orders []store.Order, prices *priceoracle.Cache) (analyticsResult, error) {
	senders := map[string]bool{}
	recipients := map[string]bool{}
	for _, o := range orders {
		senderAddr, err := bech32FromWallet(o.Sender)
		if err != nil {
			return analyticsResult{}, fmt.Errorf("parser: analytics sender address: %w", err)
		}
		recipientAddr, err := bech32FromWallet(o.Recipient)
		if err != nil {
			return analyticsResult{}, fmt.Errorf("parser: analytics recipient address: %w", err)
		}
		senders[senderAddr] = true
		recipients[recipientAddr] = true
	}

	candidateSet := map[string]bool{}
	var inValue value.Value = value.New()
	for _, u := range inputs {
		if senders[u.Owner] {
			continue
		}
		if _, isOrderScript := config.OrderBookAddresses[u.Owner]; isOrderScript {
			continue // order-locked value never reaches in_assets; never a batcher wallet either
		}
		inValue = value.Merge(inValue, u.Value)
		candidateSet[u.Owner] = true
	}

	var outValue value.Value = value.New()
	for _, u := range outputs {
		if isFiltered(u.Owner, senders, recipients) {
			continue
		}
		outValue = value.Merge(outValue, u.Value)
	}

	diff := value.Diff(inValue, outValue)

	adaProfit := diff[value.Lovelace]
	delete(diff, value.Lovelace)

	var equivalentAda int64
	netAssets := map[value.Token]int64{}
	for tok, amount := range diff {
		netAssets[tok] = amount
		price, err := prices.Price(tok)
		if err != nil {
			// OracleUnavailable: attribute with zero equivalentAda for this token.
			continue
		}
		equivalentAda += int64(float64(amount) * price)
	}

	var candidates []string
	for addr := range candidateSet {
		candidates = append(candidates, addr)
	}
	batcherID, err := batcher.Resolve(tx, candidates)
	if err != nil {
		return analyticsResult{}, fmt.Errorf("parser: resolve batcher: %w", err)
	}

	return analyticsResult{
		BatcherID:     batcherID,
		AdaProfit:     adaProfit,
		EquivalentAda: equivalentAda,
		NetAssets:     netAssets,
	}, nil
}

// isFiltered reports whether an output address should be excluded from the
// analytics output set: a pool script, a known profit address, a sender,
// or a recipient.
func isFiltered(owner string, senders, recipients map[string]bool) bool {
	if senders[owner] || recipients[owner] {
		return true
	}
	for _, profit := range config.ProfitAddresses {
		if owner == profit {
			return true
		}
	}
	paymentHash, err := paymentCredentialHash(owner)
	if err != nil {
		return false
	}
	for _, pool := range config.PoolContracts {
		if strings.EqualFold(paymentHash, pool) {
			return true
		}
	}
	return false
}

// paymentCredentialHash extracts the payment-key hash portion of a bech32
// address, used to check it against the pool-contract hash list.
func paymentCredentialHash(bech string) (string, error) {
	shelley, err := address.FromBech32(bech)
	if err != nil {
		return "", err
	}
	return shelley.PubKeyHash, nil
}
