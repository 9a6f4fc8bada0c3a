package lpclient

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/zpay32"

	"github.com/klingon-exchange/atomiq-core/internal/quoteverify"
)

// InvoiceCodec decodes a raw bolt11 string into the fields quoteverify
// needs to check it against a request (§4.3's "invoice parses" structural
// check). The concrete implementation is an external-library boundary:
// nothing in this package reimplements bolt11 parsing.
type InvoiceCodec interface {
	Decode(invoice string) (quoteverify.ParsedInvoice, error)
}

// Bolt11Codec implements InvoiceCodec over lnd's zpay32 decoder.
type Bolt11Codec struct {
	Net *chaincfg.Params
}

// NewBolt11Codec builds a Bolt11Codec for the given network; net must
// match the invoices being decoded (mainnet invoices start with "lnbc").
func NewBolt11Codec(net *chaincfg.Params) *Bolt11Codec {
	return &Bolt11Codec{Net: net}
}

// Decode parses a bolt11 invoice string and extracts its payment hash and
// amount. Invoices with no amount (donation-style) decode with
// AmountSats == 0; callers that require an exact-in amount must reject
// that case themselves.
func (c *Bolt11Codec) Decode(invoice string) (quoteverify.ParsedInvoice, error) {
	decoded, err := zpay32.Decode(invoice, c.Net)
	if err != nil {
		return quoteverify.ParsedInvoice{}, fmt.Errorf("decode bolt11 invoice: %w", err)
	}
	if decoded.PaymentHash == nil {
		return quoteverify.ParsedInvoice{}, fmt.Errorf("bolt11 invoice carries no payment hash")
	}

	var amountSats uint64
	if decoded.MilliSat != nil {
		amountSats = uint64(decoded.MilliSat.ToSatoshis())
	}

	return quoteverify.ParsedInvoice{
		AmountSats:  amountSats,
		PaymentHash: *decoded.PaymentHash,
	}, nil
}
