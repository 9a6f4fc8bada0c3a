package chainadapter

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr/musig2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// vaultKeyFromHex parses a 33-byte compressed pubkey given as a hex string.
// SPV_VAULT_FROM_BTC identifies both swap parties by raw public key rather
// than by a hash160-committed address, since the vault output is a
// key-path-only Taproot spend, not a P2PKH/P2WPKH witness program.
func vaultKeyFromHex(s string) (*btcec.PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: vault pubkey not hex: %w", err)
	}
	pub, err := btcec.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: vault pubkey: %w", err)
	}
	return pub, nil
}

// vaultTaprootAddress derives the key-path-only P2TR address for the
// MuSig2 aggregate of offerer and claimer, the on-chain half of an
// SPV-vault escrow: the LP's own wrapper returns the PSBT skeleton that
// leaves the LP-output amount open for the user's coin-selection, but the
// destination key itself is this module's to compute and check the
// wrapper's skeleton against, the same way CreateSwapData derives every
// other protocol's escrow address from SwapParams.
func vaultTaprootAddress(offerer, claimer *btcec.PublicKey, net *chaincfg.Params) (btcutil.Address, []byte, error) {
	aggKey, _, _, err := musig2.AggregateKeys([]*btcec.PublicKey{offerer, claimer}, true)
	if err != nil {
		return nil, nil, fmt.Errorf("chainadapter: musig2 key aggregation: %w", err)
	}
	outputKey := txscript.ComputeTaprootOutputKey(aggKey.FinalKey, nil)
	addr, err := btcutil.NewAddressTaproot(schnorrSerialize(outputKey), net)
	if err != nil {
		return nil, nil, fmt.Errorf("chainadapter: taproot address: %w", err)
	}
	return addr, schnorrSerialize(outputKey), nil
}

func schnorrSerialize(pub *btcec.PublicKey) []byte {
	b := pub.SerializeCompressed()
	return b[1:] // drop the parity byte; Taproot addresses carry only the x-coordinate
}
