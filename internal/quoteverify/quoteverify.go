// Package quoteverify implements the full field-by-field check an
// LP-issued quote must pass before the engine commits to it (§4.3).
// Grounded on internal/registry's verification fan-out style (narrow
// capability interfaces, no base classes) and internal/priceoracle's
// Aggregator for the price check.
package quoteverify

import (
	"context"
	"fmt"
	"time"

	"github.com/klingon-exchange/atomiq-core/internal/priceoracle"
	"github.com/klingon-exchange/atomiq-core/internal/swapcore"
)

func nowUnix() int64 { return time.Now().Unix() }

// IntermediaryError is returned for any check failure. Recoverable errors
// (bad quote from an otherwise fine LP) should trigger a retry against a
// different candidate; non-recoverable ones should blacklist the LP via
// registry.Registry.Remove.
type IntermediaryError struct {
	Reason      string
	Recoverable bool
}

func (e *IntermediaryError) Error() string {
	return fmt.Sprintf("quoteverify: %s (recoverable=%v)", e.Reason, e.Recoverable)
}

func recoverableErr(format string, args ...interface{}) error {
	return &IntermediaryError{Reason: fmt.Sprintf(format, args...), Recoverable: true}
}

func fatalErr(format string, args ...interface{}) error {
	return &IntermediaryError{Reason: fmt.Sprintf(format, args...), Recoverable: false}
}

// ChainVerifier is the narrow per-chain capability this package needs.
// internal/chainadapter.Contract carries equivalent methods but returns
// its own CommitStatus type, so callers wrap a Contract in a one-line
// adapter rather than passing it here directly (cmd/swapnode's
// verifierAdapter is the reference one).
type ChainVerifier interface {
	IsValidInitAuthorization(ctx context.Context, initiator string, data *swapcore.SwapData, signature []byte, feeRate []byte) (bool, error)
	GetCommitStatus(ctx context.Context, signer string, data *swapcore.SwapData) (CommitStatus, error)
}

// CommitState/CommitStatus mirror internal/chainadapter's shape narrowly,
// so this package doesn't need to import chainadapter directly (same
// dependency-direction discipline registry.ChainVerifier uses).
type CommitState int

const (
	NotCommitted CommitState = iota
	Committed
	Paid
	Expired
)

type CommitStatus struct {
	State CommitState
}

// Request is what the engine asked an LP to quote.
type Request struct {
	SwapType      swapcore.SwapType
	UserAddress   string
	Token         swapcore.Token
	Amount        uint64
	ExactIn       bool
	ClaimHash     [32]byte
	Confirmations uint32
	ConfTarget    uint32
	GraceBlocks   uint32
	SafetyFactor  float64
	BlockTimeSecs int64
}

// Response is the LP's quote reply, the parsed form of §6's init*
// response shape.
type Response struct {
	IntermediaryKey string
	Invoice         ParsedInvoice
	SwapData        *swapcore.SwapData
	TotalSats       uint64
	SwapFeeSats     uint64
	NetworkFeeSats  uint64
	GasSwapFeeSats  uint64
	BTCAmountGas    uint64
	BTCAmountSwap   uint64
	Signature       []byte
	FeeRate         []byte
	QuotedMicroSat  float64
	FeePPM          uint64
	PaymentRequest  string // raw bolt11, present for *FromBTCLN* quotes
}

// ParsedInvoice is the subset of a decoded bolt11 invoice this package
// checks; internal/lpclient's InvoiceCodec produces one from the raw PR.
type ParsedInvoice struct {
	AmountSats  uint64
	PaymentHash [32]byte
}

// Config carries the tunables §4.3 names as "configured".
type Config struct {
	AllowedDifferencePPM uint64 // typical 10_000
}

// DefaultConfig matches the commonly configured tolerance (10 000 ppm).
func DefaultConfig() Config {
	return Config{AllowedDifferencePPM: 10_000}
}

// Verifier runs every §4.3 check against one (request, response, lp) triple.
type Verifier struct {
	cfg     Config
	oracle  *priceoracle.Aggregator
	verifier ChainVerifier
}

// New builds a Verifier. oracle and verifier are per-chain/per-swap
// dependencies the caller (internal/swapper) already owns.
func New(cfg Config, oracle *priceoracle.Aggregator, verifier ChainVerifier) *Verifier {
	if cfg.AllowedDifferencePPM == 0 {
		cfg = DefaultConfig()
	}
	return &Verifier{cfg: cfg, oracle: oracle, verifier: verifier}
}

// VerifiedQuote is the engine-facing result of a quote that passed every
// check: everything it needs to persist a Swap and hand it to swapfsm.
type VerifiedQuote struct {
	SwapData       *swapcore.SwapData
	Fees           swapcore.Fees
	PricingInfo    swapcore.PricingInfo
	PaymentRequest string
}

// Verify runs the §4.3 checklist in order, short-circuiting on the first
// failure (cheap structural checks before the oracle round trip).
func (v *Verifier) Verify(ctx context.Context, req Request, resp Response, lpAddress string) (*VerifiedQuote, error) {
	if err := v.checkStructural(req, resp); err != nil {
		return nil, err
	}
	if err := v.checkIdentity(req, resp, lpAddress); err != nil {
		return nil, err
	}
	if err := v.checkFeeIntegrity(resp); err != nil {
		return nil, err
	}
	if err := v.checkAmountMatch(req, resp); err != nil {
		return nil, err
	}
	if err := v.checkPrice(ctx, req, resp); err != nil {
		return nil, err
	}
	if req.SwapType == swapcore.ToBTC || req.SwapType == swapcore.ToBTCLN {
		if err := v.checkExpirySanity(req, resp); err != nil {
			return nil, err
		}
	}
	if err := v.checkSignature(ctx, req, resp, lpAddress); err != nil {
		return nil, err
	}

	return &VerifiedQuote{
		SwapData: resp.SwapData,
		Fees: swapcore.Fees{
			SwapFeeSats:    resp.SwapFeeSats,
			GasDropFeeSats: resp.GasSwapFeeSats,
			NetworkFeeSats: resp.NetworkFeeSats,
		},
		PricingInfo: swapcore.PricingInfo{
			FeePPM:            resp.FeePPM,
			QuotedMicroSatPer: resp.QuotedMicroSat,
			Valid:             true,
		},
		PaymentRequest: resp.PaymentRequest,
	}, nil
}

func (v *Verifier) checkStructural(req Request, resp Response) error {
	if resp.TotalSats == 0 && resp.SwapFeeSats == 0 && resp.NetworkFeeSats == 0 {
		return fatalErr("no advertised numeric fields present")
	}
	if resp.SwapData == nil {
		return fatalErr("response carries no swap_data")
	}
	if resp.Invoice.AmountSats > 0 && resp.Invoice.PaymentHash != req.ClaimHash && req.SwapType.IsFromBTC() {
		// For FROM_BTCLN-family swaps the invoice's payment hash is the
		// correlator the engine asked for; it must match verbatim.
		return fatalErr("invoice payment_hash does not match requested hash")
	}
	return nil
}

func (v *Verifier) checkIdentity(req Request, resp Response, lpAddress string) error {
	if resp.IntermediaryKey != lpAddress {
		return fatalErr("intermediary_key %q does not match lp address %q", resp.IntermediaryKey, lpAddress)
	}
	data := resp.SwapData
	outgoing := req.SwapType == swapcore.ToBTC || req.SwapType == swapcore.ToBTCLN
	if outgoing && data.Offerer != req.UserAddress {
		return fatalErr("swap_data offerer does not match requesting user")
	}
	if !outgoing && data.Claimer != req.UserAddress {
		return fatalErr("swap_data claimer does not match requesting user")
	}
	if data.ClaimHash != req.ClaimHash {
		return fatalErr("swap_data claim_hash does not match locally derived hash")
	}
	return nil
}

func (v *Verifier) checkFeeIntegrity(resp Response) error {
	expectedTotal := resp.SwapFeeSats + resp.NetworkFeeSats + resp.GasSwapFeeSats
	if expectedTotal != resp.TotalSats {
		return recoverableErr("total_fee %d != swap_fee+network_fee(+gas_swap_fee) %d", resp.TotalSats, expectedTotal)
	}
	if resp.BTCAmountGas > 0 || resp.BTCAmountSwap > 0 {
		if resp.BTCAmountGas+resp.BTCAmountSwap != resp.Invoice.AmountSats {
			return recoverableErr("btc_amount_gas+btc_amount_swap != invoice_sats")
		}
	}
	return nil
}

func (v *Verifier) checkAmountMatch(req Request, resp Response) error {
	if req.ExactIn {
		if resp.Invoice.AmountSats != req.Amount {
			return recoverableErr("exact-in: invoice_sats %d != requested amount %d", resp.Invoice.AmountSats, req.Amount)
		}
		return nil
	}
	if resp.TotalSats != req.Amount {
		return recoverableErr("exact-out: total %d != requested amount %d", resp.TotalSats, req.Amount)
	}
	return nil
}

// checkPrice enforces §4.3's bidirectional band: whichever side the user
// receives or sends, it must not fall below market rate by more than the
// configured ppm tolerance.
func (v *Verifier) checkPrice(ctx context.Context, req Request, resp Response) error {
	if v.oracle == nil {
		return nil
	}
	market, err := v.oracle.Quote(ctx, req.Token.ChainID, req.Token.Address)
	if err != nil {
		return recoverableErr("price oracle unavailable: %v", err)
	}
	if market <= 0 || resp.QuotedMicroSat <= 0 {
		return recoverableErr("invalid market or quoted price")
	}

	diff := float64(v.cfg.AllowedDifferencePPM) / 1_000_000
	lowerBound := market * (1 - diff)
	upperBound := market * (1 + diff)
	if resp.QuotedMicroSat < lowerBound || resp.QuotedMicroSat > upperBound {
		return recoverableErr("quoted price %.4f outside allowed band [%.4f, %.4f] of market %.4f", resp.QuotedMicroSat, lowerBound, upperBound, market)
	}
	return nil
}

func (v *Verifier) checkExpirySanity(req Request, resp Response) error {
	window := float64(req.Confirmations+req.ConfTarget+req.GraceBlocks) * req.SafetyFactor * float64(req.BlockTimeSecs)
	maxExpiry := nowUnix() + int64(window)
	if resp.SwapData.Expiry > maxExpiry {
		return recoverableErr("data.expiry %d exceeds safety window bound %d", resp.SwapData.Expiry, maxExpiry)
	}
	return nil
}

func (v *Verifier) checkSignature(ctx context.Context, req Request, resp Response, lpAddress string) error {
	if v.verifier == nil {
		return nil
	}
	ok, err := v.verifier.IsValidInitAuthorization(ctx, lpAddress, resp.SwapData, resp.Signature, resp.FeeRate)
	if err != nil {
		return recoverableErr("init authorization check failed: %v", err)
	}
	if !ok {
		return fatalErr("init authorization signature invalid")
	}

	status, err := v.verifier.GetCommitStatus(ctx, lpAddress, resp.SwapData)
	if err != nil {
		return recoverableErr("commit status check failed: %v", err)
	}
	if status.State != NotCommitted {
		return fatalErr("escrow already committed or settled before quote acceptance")
	}
	return nil
}
