package lpclient

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// AuthorizationState is the tri-state result of get_payment_authorization
// (§4.4.2): an LP either has produced a signed authorization, has given up
// because the quote expired, or is still waiting on payment.
type AuthorizationState int

const (
	AuthPending AuthorizationState = iota
	AuthData
	AuthExpired
)

// Authorization is the decoded get_payment_authorization poll result.
type Authorization struct {
	State     AuthorizationState
	Data      []byte
	Signature []byte
	Timeout   int64
	Prefix    string
}

type wireAuthResponse struct {
	State     string `json:"state"`
	Data      string `json:"data,omitempty"`
	Signature string `json:"signature,omitempty"`
	Timeout   int64  `json:"timeout,omitempty"`
	Prefix    string `json:"prefix,omitempty"`
}

// GetPaymentAuthorization polls an LP for the signed authorization that
// lets the engine advance PR_CREATED -> PR_PAID (§4.4.2). It makes one
// request; AuthPending is returned as is and this package does not poll again.
func (c *Client) GetPaymentAuthorization(ctx context.Context, baseURL string, paymentHash [32]byte) (*Authorization, error) {
	url := fmt.Sprintf("%s/get_payment_authorization?payment_hash=%s",
		strings.TrimSuffix(baseURL, "/"), hex.EncodeToString(paymentHash[:]))

	var wire wireAuthResponse
	if err := c.get(ctx, url, &wire); err != nil {
		return nil, fmt.Errorf("get_payment_authorization: %w", err)
	}

	auth := &Authorization{Timeout: wire.Timeout, Prefix: wire.Prefix}
	switch wire.State {
	case "AUTH_DATA":
		auth.State = AuthData
		data, err := hex.DecodeString(wire.Data)
		if err != nil {
			return nil, fmt.Errorf("decode authorization data: %w", err)
		}
		sig, err := hex.DecodeString(wire.Signature)
		if err != nil {
			return nil, fmt.Errorf("decode authorization signature: %w", err)
		}
		auth.Data, auth.Signature = data, sig
	case "EXPIRED":
		auth.State = AuthExpired
	case "PENDING", "":
		auth.State = AuthPending
	default:
		return nil, fmt.Errorf("unknown authorization state %q", wire.State)
	}
	return auth, nil
}

// InvoiceState is the LNURL/bolt11 analogue of AuthorizationState for
// incoming-payment polling (get_invoice_status).
type InvoiceState int

const (
	InvoiceUnpaid InvoiceState = iota
	InvoicePaid
	InvoiceExpired
)

type wireInvoiceStatus struct {
	State string `json:"state"`
}

// GetInvoiceStatus polls an LP for whether a bolt11 invoice it issued has
// been paid yet.
func (c *Client) GetInvoiceStatus(ctx context.Context, baseURL string, paymentHash [32]byte) (InvoiceState, error) {
	url := fmt.Sprintf("%s/get_invoice_status?payment_hash=%s",
		strings.TrimSuffix(baseURL, "/"), hex.EncodeToString(paymentHash[:]))

	var wire wireInvoiceStatus
	if err := c.get(ctx, url, &wire); err != nil {
		return 0, fmt.Errorf("get_invoice_status: %w", err)
	}

	switch wire.State {
	case "PAID":
		return InvoicePaid, nil
	case "EXPIRED":
		return InvoiceExpired, nil
	case "UNPAID", "":
		return InvoiceUnpaid, nil
	default:
		return 0, fmt.Errorf("unknown invoice state %q", wire.State)
	}
}
