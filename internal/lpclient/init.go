package lpclient

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/klingon-exchange/atomiq-core/internal/quoteverify"
	"github.com/klingon-exchange/atomiq-core/internal/swapcore"
)

// InitRequest is the request body for every initXxx call; fields not
// meaningful for a given swap type are simply left zero.
type InitRequest struct {
	Token       swapcore.Token
	Amount      uint64
	ExactIn     bool
	Address     string // claimer (incoming) or offerer (outgoing)
	ClaimHash   [32]byte
	PaymentHash [32]byte // pre-generated secret hash, for FROM_BTCLN
	Expiry      int64
	Destination string // bitcoin payout address, TO_BTC only
	Invoice     string // bolt11 invoice the LP should pay, TO_BTCLN only
}

type wireInitRequest struct {
	TokenChainID string `json:"token_chain_id,omitempty"`
	TokenAddress string `json:"token_address,omitempty"`
	Amount       uint64 `json:"amount"`
	ExactIn      bool   `json:"exact_in"`
	Address      string `json:"address"`
	ClaimHash    string `json:"claim_hash"`
	PaymentHash  string `json:"payment_hash,omitempty"`
	Expiry       int64  `json:"expiry,omitempty"`
	Destination  string `json:"destination,omitempty"`
	Invoice      string `json:"invoice,omitempty"`
}

// signDataPrefetch is the first JSON value streamed back: the bytes the
// engine can start signing/verifying before the rest of the response
// finishes computing, per §4.6's split prefetch+response note.
type signDataPrefetch struct {
	SignData string `json:"sign_data_prefetch"`
}

// wireSwapData is the wire shape of swap_data inside an init response.
type wireSwapData struct {
	Offerer   string `json:"offerer"`
	Claimer   string `json:"claimer"`
	Amount    uint64 `json:"amount"`
	ClaimHash string `json:"claim_hash"`
	Sequence  uint64 `json:"sequence"`
	Expiry    int64  `json:"expiry"`
	PayIn     bool   `json:"pay_in"`
	PayOut    bool   `json:"pay_out"`
	Deposit   uint64 `json:"deposit"`
	Bounty    uint64 `json:"bounty"`
	Payload   string `json:"payload"`
}

type wireInitResponse struct {
	IntermediaryKey string       `json:"intermediary_key"`
	SwapData        wireSwapData `json:"swap_data"`
	Invoice         string       `json:"invoice,omitempty"`
	InvoiceSats     uint64       `json:"invoice_sats,omitempty"`
	InvoiceHash     string       `json:"invoice_payment_hash,omitempty"`
	TotalSats       uint64       `json:"total_fee_sats"`
	SwapFeeSats     uint64       `json:"swap_fee_sats"`
	NetworkFeeSats  uint64       `json:"network_fee_sats"`
	GasSwapFeeSats  uint64       `json:"gas_swap_fee_sats,omitempty"`
	BTCAmountGas    uint64       `json:"btc_amount_gas,omitempty"`
	BTCAmountSwap   uint64       `json:"btc_amount_swap,omitempty"`
	Signature       string       `json:"signature,omitempty"`
	FeeRate         string       `json:"fee_rate,omitempty"`
	QuotedMicroSat  float64      `json:"quoted_micro_sat_per_token"`
	FeePPM         uint64 `json:"fee_ppm"`
}

// InitResult pairs the streamed prefetch bytes with the full decoded
// response, converted into quoteverify's Response shape so the caller
// can feed it straight to quoteverify.Verifier.Verify.
type InitResult struct {
	SignDataPrefetch []byte
	Response         quoteverify.Response
}

func endpointForType(t swapcore.SwapType) (string, error) {
	switch t {
	case swapcore.FromBTC:
		return "init/from_btc", nil
	case swapcore.FromBTCLN:
		return "init/from_btcln", nil
	case swapcore.FromBTCLNAuto:
		return "init/from_btcln_auto", nil
	case swapcore.ToBTC:
		return "init/to_btc", nil
	case swapcore.ToBTCLN:
		return "init/to_btcln", nil
	case swapcore.TrustedFromBTC:
		return "init/trusted_from_btc", nil
	case swapcore.TrustedFromBTCLN:
		return "init/trusted_from_btcln", nil
	case swapcore.SPVVaultFromBTC:
		return "init/spv_vault_from_btc", nil
	default:
		return "", fmt.Errorf("lpclient: unknown swap type %v", t)
	}
}

// Init calls the initXxx endpoint matching req's swap type and decodes
// both the prefetch chunk and the full response in one round trip. The
// HTTP response body is expected to carry two consecutive JSON values:
// the prefetch object first, then the full response object — json.Decoder
// reads them off the same stream without buffering the whole body.
func (c *Client) Init(ctx context.Context, baseURL string, swapType swapcore.SwapType, req InitRequest) (*InitResult, error) {
	path, err := endpointForType(swapType)
	if err != nil {
		return nil, err
	}

	wire := wireInitRequest{
		Amount:      req.Amount,
		ExactIn:     req.ExactIn,
		Address:     req.Address,
		ClaimHash:   hex.EncodeToString(req.ClaimHash[:]),
		PaymentHash: hexOrEmpty(req.PaymentHash),
		Expiry:      req.Expiry,
		Destination: req.Destination,
		Invoice:     req.Invoice,
	}
	if req.Token.Kind == swapcore.TokenSmartChain {
		wire.TokenChainID = req.Token.ChainID
		wire.TokenAddress = req.Token.Address
	}

	url := strings.TrimSuffix(baseURL, "/") + "/" + path
	resp, err := c.doJSON(ctx, http.MethodPost, url, wire)
	if err != nil {
		return nil, fmt.Errorf("init %s: %w", swapType, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeOrError(resp, nil)
	}

	dec := json.NewDecoder(resp.Body)

	var pf signDataPrefetch
	if err := dec.Decode(&pf); err != nil {
		return nil, fmt.Errorf("decode sign-data prefetch: %w", err)
	}

	var wireResp wireInitResponse
	if err := dec.Decode(&wireResp); err != nil {
		return nil, fmt.Errorf("decode init response: %w", err)
	}

	prefetchBytes, err := hex.DecodeString(pf.SignData)
	if err != nil {
		return nil, fmt.Errorf("decode sign-data prefetch hex: %w", err)
	}

	response, err := toQuoteverifyResponse(wireResp)
	if err != nil {
		return nil, err
	}

	return &InitResult{SignDataPrefetch: prefetchBytes, Response: response}, nil
}

func hexOrEmpty(b [32]byte) string {
	var zero [32]byte
	if b == zero {
		return ""
	}
	return hex.EncodeToString(b[:])
}

func toQuoteverifyResponse(w wireInitResponse) (quoteverify.Response, error) {
	claimHash, err := decode32(w.SwapData.ClaimHash)
	if err != nil {
		return quoteverify.Response{}, fmt.Errorf("decode swap_data.claim_hash: %w", err)
	}
	payload, err := hex.DecodeString(w.SwapData.Payload)
	if err != nil {
		return quoteverify.Response{}, fmt.Errorf("decode swap_data.payload: %w", err)
	}
	signature, err := hex.DecodeString(w.Signature)
	if err != nil {
		return quoteverify.Response{}, fmt.Errorf("decode signature: %w", err)
	}
	feeRate, err := hex.DecodeString(w.FeeRate)
	if err != nil {
		return quoteverify.Response{}, fmt.Errorf("decode fee_rate: %w", err)
	}

	var invoiceHash [32]byte
	if w.InvoiceHash != "" {
		invoiceHash, err = decode32(w.InvoiceHash)
		if err != nil {
			return quoteverify.Response{}, fmt.Errorf("decode invoice_payment_hash: %w", err)
		}
	}

	return quoteverify.Response{
		IntermediaryKey: w.IntermediaryKey,
		Invoice: quoteverify.ParsedInvoice{
			AmountSats:  w.InvoiceSats,
			PaymentHash: invoiceHash,
		},
		SwapData: &swapcore.SwapData{
			Offerer:   w.SwapData.Offerer,
			Claimer:   w.SwapData.Claimer,
			Amount:    w.SwapData.Amount,
			ClaimHash: claimHash,
			Sequence:  w.SwapData.Sequence,
			Expiry:    w.SwapData.Expiry,
			PayIn:     w.SwapData.PayIn,
			PayOut:    w.SwapData.PayOut,
			Deposit:   w.SwapData.Deposit,
			Bounty:    w.SwapData.Bounty,
			Payload:   payload,
		},
		TotalSats:      w.TotalSats,
		SwapFeeSats:    w.SwapFeeSats,
		NetworkFeeSats: w.NetworkFeeSats,
		GasSwapFeeSats: w.GasSwapFeeSats,
		BTCAmountGas:   w.BTCAmountGas,
		BTCAmountSwap:  w.BTCAmountSwap,
		Signature:      signature,
		FeeRate:        feeRate,
		QuotedMicroSat: w.QuotedMicroSat,
		FeePPM:         w.FeePPM,
		PaymentRequest: w.Invoice,
	}, nil
}

func decode32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}
