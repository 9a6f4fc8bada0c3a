package swapper

import (
	"fmt"
	"strings"

	"github.com/klingon-exchange/atomiq-core/internal/swapcore"
)

// addressKind classifies the free-form address/invoice argument Swap()
// accepts, enough to pick a protocol and swap direction without pulling
// in a full bitcoin/bech32 dependency just for a prefix sniff.
type addressKind int

const (
	addressUnknown addressKind = iota
	addressBitcoinOnChain
	addressBolt11Invoice
	addressLNURL
	addressSmartChain
)

// classifyAddress sniffs addr's kind from its prefix/shape. Bitcoin
// bech32/base58 addresses, bolt11 invoices, and LNURL strings each have a
// distinctive enough prefix that a full parse isn't needed just to route
// the request; the chain adapter and invoice codec do the real parsing
// once the protocol is chosen.
func classifyAddress(addr string) addressKind {
	lower := strings.ToLower(strings.TrimSpace(addr))
	switch {
	case strings.HasPrefix(lower, "lnbc"), strings.HasPrefix(lower, "lntb"), strings.HasPrefix(lower, "lnbcrt"):
		return addressBolt11Invoice
	case strings.HasPrefix(lower, "lnurl"):
		return addressLNURL
	case strings.HasPrefix(lower, "0x") && len(addr) == 42:
		return addressSmartChain
	case strings.HasPrefix(lower, "bc1"), strings.HasPrefix(lower, "tb1"), strings.HasPrefix(lower, "bcrt1"):
		return addressBitcoinOnChain
	case len(addr) > 0 && (addr[0] == '1' || addr[0] == '3' || addr[0] == '2' || addr[0] == 'm' || addr[0] == 'n'):
		return addressBitcoinOnChain
	default:
		return addressUnknown
	}
}

// resolveSwapType picks the protocol §4.7's Swap helper dispatches to,
// from the direction implied by (src, dst) token kinds plus the shape of
// the counterparty address/invoice the caller supplied, and opts for the
// variants that can't be told apart from the address alone (trusted vs.
// escrowed, auto-claim vs. manual, vault vs. plain commit).
func resolveSwapType(src, dst swapcore.Token, counterAddress string, opts CreateOptions) (swapcore.SwapType, error) {
	kind := classifyAddress(counterAddress)

	switch {
	case src.Kind == swapcore.TokenSmartChain && dst.Kind == swapcore.TokenBitcoinOnChain:
		if kind != addressBitcoinOnChain && kind != addressUnknown {
			return 0, userErr(fmt.Sprintf("expected a bitcoin address for a to-chain swap, got %q", counterAddress), nil)
		}
		return swapcore.ToBTC, nil

	case src.Kind == swapcore.TokenSmartChain && dst.Kind == swapcore.TokenBitcoinLightning:
		if kind != addressBolt11Invoice && kind != addressLNURL && kind != addressUnknown {
			return 0, userErr(fmt.Sprintf("expected a bolt11 invoice or LNURL for a to-lightning swap, got %q", counterAddress), nil)
		}
		return swapcore.ToBTCLN, nil

	case src.Kind == swapcore.TokenBitcoinOnChain && dst.Kind == swapcore.TokenSmartChain:
		if opts.SPVVault {
			return swapcore.SPVVaultFromBTC, nil
		}
		if opts.Trusted {
			return swapcore.TrustedFromBTC, nil
		}
		return swapcore.FromBTC, nil

	case src.Kind == swapcore.TokenBitcoinLightning && dst.Kind == swapcore.TokenSmartChain:
		if opts.Trusted {
			return swapcore.TrustedFromBTCLN, nil
		}
		if opts.Auto {
			return swapcore.FromBTCLNAuto, nil
		}
		return swapcore.FromBTCLN, nil

	default:
		return 0, userErr(fmt.Sprintf("unsupported swap direction %v -> %v", src.Kind, dst.Kind), nil)
	}
}
