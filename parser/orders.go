package parser

import (
	"fmt"

	"github.com/cardano-dex/batcher-monitor/cardano/address"
	"github.com/cardano-dex/batcher-monitor/cardano/datum"
	"github.com/cardano-dex/batcher-monitor/config"
)

// decodeOrderDatum extracts (sender, recipient) wallet addresses — each the
// concatenation pkh||skh — from a decoded order-book output datum, per the
// contract version's field layout:
//
//   - liquidity variants: fields[0] is the sender's address datum, fields[1]
//     is the recipient's, each unwrapped directly via ParseWalletAddress.
//   - v2/v3/v4: fields[0] is a nested Constr whose own fields[0] is the
//     creator's address datum; sender and recipient are both the creator.
func decodeOrderDatum(d datum.Datum, version config.Version) (sender, recipient string, err error) {
	if version.IsLiquidity() {
		senderField, ok := d.Field(0)
		if !ok {
			return "", "", fmt.Errorf("parser: liquidity datum missing sender field")
		}
		recipientField, ok := d.Field(1)
		if !ok {
			return "", "", fmt.Errorf("parser: liquidity datum missing recipient field")
		}
		sender, err = walletString(senderField)
		if err != nil {
			return "", "", fmt.Errorf("parser: decode liquidity sender: %w", err)
		}
		recipient, err = walletString(recipientField)
		if err != nil {
			return "", "", fmt.Errorf("parser: decode liquidity recipient: %w", err)
		}
		return sender, recipient, nil
	}

	outer, ok := d.Field(0)
	if !ok {
		return "", "", fmt.Errorf("parser: order datum missing creator field")
	}
	creator, ok := outer.Field(0)
	if !ok {
		return "", "", fmt.Errorf("parser: order datum creator field has unexpected shape")
	}
	wallet, err := walletString(creator)
	if err != nil {
		return "", "", fmt.Errorf("parser: decode creator: %w", err)
	}
	return wallet, wallet, nil
}

func walletString(d datum.Datum) (string, error) {
	pkh, skh, err := datum.ParseWalletAddress(d)
	if err != nil {
		return "", err
	}
	return pkh + skh, nil
}

// bech32FromWallet renders a pkh||skh wallet string (the Order.sender /
// Order.recipient storage form) as a bech32 mainnet address.
func bech32FromWallet(wallet string) (string, error) {
	pkh := wallet
	skh := ""
	if len(wallet) > 56 {
		pkh = wallet[:56]
		skh = wallet[56:]
	}
	return address.FromParts(pkh, skh, address.Mainnet)
}
