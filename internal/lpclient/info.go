package lpclient

import (
	"context"
	"strings"

	"github.com/klingon-exchange/atomiq-core/internal/swapcore"
)

// Bounds is the elementwise min/max amount an LP will quote for one
// (swap type, token) pair, as advertised on its /info endpoint.
type Bounds struct {
	Min uint64 `json:"min"`
	Max uint64 `json:"max"`
}

// Capabilities is the decoded /info response: which (type, token) pairs
// an LP services and at what bounds, plus its advertised fee curve
// (base_fee + amount*ppm/1e6, used by registry's rank-and-pick).
//
// This is a distinct concern from internal/registry's /info fetch: the
// registry reads the signed identity envelope (pubkey, supported chains)
// to decide whether to trust an LP at all; this package reads the same
// endpoint's quote-capability body to decide whether it is worth asking
// for a quote. Both hit the LP's /info URL but decode different JSON
// shapes from the one response.
type Capabilities struct {
	BaseFeeSats uint64                    `json:"base_fee_sats"`
	PPM         uint64                    `json:"ppm"`
	Services    map[string]map[string]Bounds `json:"services"` // swap type string -> token key -> bounds
}

// GetCapabilities fetches and decodes an LP's quote-capability descriptor.
func (c *Client) GetCapabilities(ctx context.Context, baseURL string) (*Capabilities, error) {
	var caps Capabilities
	if err := c.get(ctx, strings.TrimSuffix(baseURL, "/")+"/info", &caps); err != nil {
		return nil, err
	}
	return &caps, nil
}

// TokenKey is the stable map key Capabilities.Services uses for a token,
// matching what an LP's /info body keys its per-token bounds by.
func TokenKey(t swapcore.Token) string {
	if t.Kind != swapcore.TokenSmartChain {
		return "BTC"
	}
	return t.ChainID + ":" + t.Address
}
