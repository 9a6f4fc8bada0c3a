package lpclient

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/zpay32"
	"github.com/stretchr/testify/require"
)

func encodeTestInvoice(t *testing.T, paymentHash [32]byte, amountSats int64) string {
	t.Helper()

	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	var opts []func(*zpay32.Invoice)
	opts = append(opts, zpay32.Description("atomiq test invoice"))
	if amountSats > 0 {
		opts = append(opts, zpay32.Amount(lnwire.NewMSatFromSatoshis(btcutil.Amount(amountSats))))
	}

	invoice, err := zpay32.NewInvoice(&chaincfg.RegressionNetParams, paymentHash, time.Now(), opts...)
	require.NoError(t, err)

	encoded, err := invoice.Encode(zpay32.MessageSigner{
		SignCompact: func(hash []byte) ([]byte, error) {
			return btcecdsa.SignCompact(key, hash, true), nil
		},
	})
	require.NoError(t, err)
	return encoded
}

func TestBolt11CodecDecodesAmountAndPaymentHash(t *testing.T) {
	var hash [32]byte
	copy(hash[:], []byte("payment-hash-32-bytes-long-ok!!"))

	invoice := encodeTestInvoice(t, hash, 50_000)

	codec := NewBolt11Codec(&chaincfg.RegressionNetParams)
	parsed, err := codec.Decode(invoice)
	require.NoError(t, err)
	require.Equal(t, hash, parsed.PaymentHash)
	require.Equal(t, uint64(50_000), parsed.AmountSats)
}

func TestBolt11CodecRejectsGarbage(t *testing.T) {
	codec := NewBolt11Codec(&chaincfg.RegressionNetParams)
	_, err := codec.Decode("not-a-real-invoice")
	require.Error(t, err)
}
