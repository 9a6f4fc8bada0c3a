package swapper

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/klingon-exchange/atomiq-core/internal/htlccrypto"
	"github.com/klingon-exchange/atomiq-core/internal/lpclient"
	"github.com/klingon-exchange/atomiq-core/internal/quoteverify"
	"github.com/klingon-exchange/atomiq-core/internal/registry"
	"github.com/klingon-exchange/atomiq-core/internal/swapcore"
	"github.com/klingon-exchange/atomiq-core/internal/swapstore"
)

// CreateOptions selects among protocol variants that share the same
// (src, dst) token-kind pair and so can't be told apart from the address
// alone: TRUSTED_FROM_BTC(LN) vs. the escrowed default, FROM_BTCLN_AUTO's
// watchtower-settled claim vs. FROM_BTCLN's user-claimed default, and
// SPV_VAULT_FROM_BTC's vault commitment vs. FROM_BTC's plain one.
type CreateOptions struct {
	Trusted  bool
	Auto     bool
	SPVVault bool
}

// Swap is the §4.7 helper: it classifies counterAddress (a bitcoin
// address, a bolt11 invoice, an LNURL, or a smart-chain address),
// resolves the swap type implied by (srcToken, dstToken, counterAddress),
// and delegates to Create.
func (s *Swapper) Swap(ctx context.Context, signer string, srcToken, dstToken swapcore.Token, amount uint64, exactIn bool, counterAddress string, opts CreateOptions) (*swapcore.Swap, error) {
	typ, err := resolveSwapType(srcToken, dstToken, counterAddress, opts)
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, typ, signer, srcToken, dstToken, amount, exactIn, counterAddress, opts)
}

// Create is the §4.7 low-level entry point: given an already-chosen
// protocol, it ranks LP candidates, requests and verifies a quote from
// each in order until one succeeds, and persists the resulting swap.
//
// Secret custody (an open question not settled by any existing type): in
// every protocol except TO_BTCLN, the swap's claim_hash gates a secret
// this engine itself holds, generated fresh before any LP is contacted —
// for FROM_BTC-family swaps that secret is what this caller will reveal
// to claim on the destination chain; for TO_BTC it is what gets
// broadcast later, via the messenger, so the LP can claim on Bitcoin.
// TO_BTCLN is the one case where the secret is never ours: counterAddress
// is the bolt11 invoice the user's own Lightning node already issued, so
// its payment_hash is the correlator and the preimage is settled
// automatically by the Lightning protocol once the LP pays it.
func (s *Swapper) Create(ctx context.Context, typ swapcore.SwapType, signer string, srcToken, dstToken swapcore.Token, amount uint64, exactIn bool, counterAddress string, opts CreateOptions) (*swapcore.Swap, error) {
	if amount == 0 {
		return nil, userErr("amount must be greater than zero", nil)
	}

	smartToken, chainID, err := smartLeg(typ, srcToken, dstToken)
	if err != nil {
		return nil, err
	}
	contract, ok := s.contracts[chainID]
	if !ok {
		return nil, userErr(fmt.Sprintf("no chain contract registered for %q", chainID), nil)
	}

	secret, paymentHash, claimHash, err := s.deriveCorrelator(typ, contract, counterAddress)
	if err != nil {
		return nil, err
	}

	if err := s.checkPaymentHashUnique(typ, paymentHash); err != nil {
		return nil, err
	}

	candidates := s.lps.GetSwapCandidates(chainID, int(typ), lpclient.TokenKey(smartToken), amount)
	if len(candidates) == 0 {
		return nil, userErr("no liquidity providers currently service this swap", nil)
	}

	tries := s.cfg.MaxCandidates
	if tries > len(candidates) {
		tries = len(candidates)
	}

	var lastErr error
	for i := 0; i < tries; i++ {
		cand := candidates[i]

		quote, err := s.requestQuote(ctx, typ, cand, signer, srcToken, amount, exactIn, counterAddress, claimHash, paymentHash)
		if err != nil {
			lastErr = err
			var ie *quoteverify.IntermediaryError
			if errors.As(err, &ie) && !ie.Recoverable {
				s.lps.Remove(cand.Intermediary.URL)
			}
			s.log.Warn("create: candidate rejected", "lp", cand.Intermediary.URL, "err", err)
			continue
		}

		sw, err := s.newSwap(typ, signer, chainID, srcToken, dstToken, amount, secret, paymentHash, quote)
		if err != nil {
			lastErr = err
			continue
		}

		// Re-checked here, not just above: quote negotiation with the LP
		// takes real time, long enough for a concurrent Create call against
		// the same payment_hash to land in between.
		if err := s.checkPaymentHashUnique(typ, paymentHash); err != nil {
			return nil, err
		}

		if err := s.save(ctx, sw, true); err != nil {
			return nil, err
		}
		return sw, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no candidate available")
	}
	return nil, fmt.Errorf("swapper: create: every candidate failed: %w", lastErr)
}

// smartLeg returns whichever of (srcToken, dstToken) is the smart-chain
// side of the swap, and the chain id it lives on.
func smartLeg(typ swapcore.SwapType, src, dst swapcore.Token) (swapcore.Token, string, error) {
	if typ.IsFromBTC() {
		if dst.Kind != swapcore.TokenSmartChain {
			return swapcore.Token{}, "", userErr("destination token must be a smart-chain token for this swap type", nil)
		}
		return dst, dst.ChainID, nil
	}
	if src.Kind != swapcore.TokenSmartChain {
		return swapcore.Token{}, "", userErr("source token must be a smart-chain token for this swap type", nil)
	}
	return src, src.ChainID, nil
}

type claimHasher interface {
	GetHashForHTLC(paymentHash [32]byte) [32]byte
}

// deriveCorrelator implements the secret-custody split documented on
// Create.
func (s *Swapper) deriveCorrelator(typ swapcore.SwapType, contract claimHasher, counterAddress string) (secret []byte, paymentHash, claimHash [32]byte, err error) {
	if typ == swapcore.ToBTCLN {
		if s.invoices == nil {
			return nil, [32]byte{}, [32]byte{}, userErr("no invoice codec configured for TO_BTCLN", nil)
		}
		parsed, err := s.invoices.Decode(counterAddress)
		if err != nil {
			return nil, [32]byte{}, [32]byte{}, userErr("invalid bolt11 invoice", err)
		}
		claimHash = contract.GetHashForHTLC(parsed.PaymentHash)
		return nil, parsed.PaymentHash, claimHash, nil
	}

	secret, err = htlccrypto.GenerateSecret()
	if err != nil {
		return nil, [32]byte{}, [32]byte{}, fmt.Errorf("generate secret: %w", err)
	}
	paymentHash = htlccrypto.DerivePaymentHash(secret)
	claimHash = contract.GetHashForHTLC(paymentHash)
	return secret, paymentHash, claimHash, nil
}

// checkPaymentHashUnique enforces §3's (type, payment_hash) replay
// invariant before this engine commits to a new swap: a non-terminal
// swap already occupying the pair is rejected outright. Concretely
// exploitable for TO_BTCLN, where payment_hash comes from a caller-
// supplied bolt11 invoice rather than a secret generated fresh per call.
func (s *Swapper) checkPaymentHashUnique(typ swapcore.SwapType, paymentHash [32]byte) error {
	existing, err := s.store.Query(swapstore.Predicates{swapstore.On(swapstore.KeyType, int(typ)).And(swapstore.KeyPaymentHash, hex.EncodeToString(paymentHash[:]))})
	if err != nil {
		return &StoreError{Op: "query", Err: err}
	}
	if len(existing) == 0 {
		return nil
	}
	m, err := s.machines.For(typ)
	if err != nil {
		return fmt.Errorf("swapper: create: %w", err)
	}
	if cerr := swapcore.CheckPaymentHashUnique(existing, func(sw *swapcore.Swap) bool { return m.IsTerminal(sw.State) }); cerr != nil {
		return userErr("a swap for this payment hash is already in progress", cerr)
	}
	return nil
}

func (s *Swapper) requestQuote(
	ctx context.Context,
	typ swapcore.SwapType,
	cand registry.Candidate,
	signer string,
	srcToken swapcore.Token,
	amount uint64,
	exactIn bool,
	counterAddress string,
	claimHash, paymentHash [32]byte,
) (*quoteverify.VerifiedQuote, error) {
	initReq := lpclient.InitRequest{
		Token:       srcToken,
		Amount:      amount,
		ExactIn:     exactIn,
		Address:     signer,
		ClaimHash:   claimHash,
		PaymentHash: paymentHash,
		Expiry:      time.Now().Add(s.cfg.QuoteHardWindow).Unix(),
	}
	switch typ {
	case swapcore.ToBTC:
		initReq.Destination = counterAddress
	case swapcore.ToBTCLN:
		initReq.Invoice = counterAddress
	}

	result, err := s.lpClient.Init(ctx, cand.Intermediary.URL, typ, initReq)
	if err != nil {
		return nil, fmt.Errorf("init request to %s: %w", cand.Intermediary.URL, err)
	}

	lpAddress := cand.Intermediary.Addresses[cand.Offer.ChainID]
	req := quoteverify.Request{
		SwapType:    typ,
		UserAddress: signer,
		Token:       srcToken,
		Amount:      amount,
		ExactIn:     exactIn,
		ClaimHash:   claimHash,
	}
	if typ == swapcore.ToBTC || typ == swapcore.ToBTCLN {
		req.Confirmations = s.cfg.BTCChainTimeout.MinConfirmations
		req.ConfTarget = s.cfg.BTCChainTimeout.TakerBlocks
		req.GraceBlocks = s.cfg.BTCChainTimeout.SafetyMarginBlocks
		req.SafetyFactor = s.cfg.SafetyFactor
		req.BlockTimeSecs = int64(s.cfg.BTCChainTimeout.AvgBlockTimeSeconds)
	}

	quote, err := s.verifier.Verify(ctx, req, result.Response, lpAddress)
	if err != nil {
		return nil, err
	}
	return quote, nil
}

func (s *Swapper) newSwap(
	typ swapcore.SwapType,
	signer string,
	chainID string,
	srcToken, dstToken swapcore.Token,
	amount uint64,
	secret []byte,
	paymentHash [32]byte,
	quote *quoteverify.VerifiedQuote,
) (*swapcore.Swap, error) {
	correlator := quote.SwapData.ClaimHash
	id, err := swapcore.NewSwapID(correlator, 4)
	if err != nil {
		return nil, fmt.Errorf("generate swap id: %w", err)
	}

	now := time.Now()
	sw := &swapcore.Swap{
		ID:               id,
		Type:             typ,
		State:            0, // every protocol's initial positive state is 0
		ChainID:          chainID,
		InitiatorAddress: signer,
		Input:            swapcore.Amount{Token: srcToken, RawAmount: amount},
		Output:           swapcore.Amount{Token: dstToken, RawAmount: quote.SwapData.Amount},
		InitialSwapData:  quote.SwapData,
		Fees:             quote.Fees,
		PricingInfo:      quote.PricingInfo,
		PaymentRequest:   quote.PaymentRequest,
		CreatedAt:        now,
		QuoteSoft:        now.Add(s.cfg.QuoteSoftWindow),
		QuoteExpiry:      now.Add(s.cfg.QuoteHardWindow),
		HTLCExpiry:       time.Unix(quote.SwapData.Expiry, 0),
		PaymentHash:      paymentHash,
		PaymentHashSet:   true,
	}
	if typ != swapcore.ToBTCLN {
		sw.PreimageSecret = secret
	}

	if err := swapcore.CheckExpiryOrdering(sw); err != nil {
		return nil, &SwapDataVerificationError{SwapID: id, Field: "expiry_ordering"}
	}
	if err := swapcore.CheckOutputBound(sw); err != nil {
		return nil, &SwapDataVerificationError{SwapID: id, Field: "output_amount"}
	}

	return sw, nil
}
