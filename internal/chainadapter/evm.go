package chainadapter

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/klingon-exchange/atomiq-core/internal/contracts/htlc"
	"github.com/klingon-exchange/atomiq-core/internal/swapcore"
	"github.com/klingon-exchange/atomiq-core/pkg/logging"
)

// KeySource resolves a bech32/hex address string to the private key that
// signs for it. The engine never holds keys itself; this is supplied by
// whatever wallet layer the caller wires in (cmd/swapnode's local keystore
// in the reference binary, an HSM or remote signer elsewhere).
type KeySource interface {
	PrivateKeyFor(address string) (*ecdsa.PrivateKey, error)
}

// EVMAdapter implements Contract over htlc.Client (go-ethereum ethclient
// plus the generated KlingonHTLC binding). One instance per EVM-family
// chain.
type EVMAdapter struct {
	client  *htlc.Client
	chainID string
	keys    KeySource
	log     *logging.Logger
}

// NewEVMAdapter dials rpcURL and binds to the KlingonHTLC contract at
// contractAddress, mirroring htlc.NewClient's own dial-and-bind sequence.
func NewEVMAdapter(chainID, rpcURL string, contractAddress common.Address, keys KeySource) (*EVMAdapter, error) {
	c, err := htlc.NewClient(rpcURL, contractAddress)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: evm dial %s: %w", chainID, err)
	}
	return &EVMAdapter{
		client:  c,
		chainID: chainID,
		keys:    keys,
		log:     logging.GetDefault().Component("chainadapter-evm").With("chain", chainID),
	}, nil
}

func (a *EVMAdapter) ChainID() string { return a.chainID }

// CreateSwapData mirrors htlc.Client.ComputeSwapID: the escrow's identity on
// this chain is deterministic from its fields, so no transaction is needed
// to produce Data, only a view call. The nonce is carried in Sequence.
func (a *EVMAdapter) CreateSwapData(ctx context.Context, p SwapParams) (*swapcore.SwapData, error) {
	sender, err := parseAddress(p.Offerer)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: offerer: %w", err)
	}
	receiver, err := parseAddress(p.Claimer)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: claimer: %w", err)
	}
	token := zeroAddressValue
	if p.Token.Kind == swapcore.TokenSmartChain && p.Token.Address != "" {
		token, err = parseAddress(p.Token.Address)
		if err != nil {
			return nil, fmt.Errorf("chainadapter: token: %w", err)
		}
	}

	swapID, err := a.client.ComputeSwapID(ctx, sender, receiver, token,
		new(big.Int).SetUint64(p.Amount), p.ClaimHash, big.NewInt(p.Expiry), new(big.Int).SetUint64(p.Sequence))
	if err != nil {
		return nil, fmt.Errorf("chainadapter: compute swap id: %w", err)
	}

	return &swapcore.SwapData{
		Offerer:    p.Offerer,
		Claimer:    p.Claimer,
		Token:      p.Token,
		Amount:     p.Amount,
		ClaimHash:  p.ClaimHash,
		Sequence:   p.Sequence,
		Expiry:     p.Expiry,
		PayIn:      p.PayIn,
		PayOut:     p.PayOut,
		Deposit:    p.Deposit,
		DepositTok: p.DepositToken,
		Bounty:     p.Bounty,
		Payload:    swapID[:],
	}, nil
}

// GetHashForHTLC is the identity rehash: EVM HTLCs check the raw payment
// hash, unlike Bitcoin-family scripts.
func (a *EVMAdapter) GetHashForHTLC(paymentHash [32]byte) [32]byte {
	return swapcore.IdentityClaimHasher{}.ClaimHash(paymentHash)
}

// IsValidDataSignature recovers the signer from an ECDSA signature over
// data's keccak256 digest and compares it to address, the recovery
// counterpart to htlc.Client.AddressFromPrivateKey.
func (a *EVMAdapter) IsValidDataSignature(data []byte, signature []byte, address string) (bool, error) {
	want, err := parseAddress(address)
	if err != nil {
		return false, fmt.Errorf("chainadapter: address: %w", err)
	}
	got, err := recoverSigner(data, signature)
	if err != nil {
		return false, nil
	}
	return got == want, nil
}

// IsValidInitAuthorization checks that the intermediary identified by
// initiator actually signed this escrow Data together with feeRate.
func (a *EVMAdapter) IsValidInitAuthorization(ctx context.Context, initiator string, data *swapcore.SwapData, signature []byte, feeRate []byte) (bool, error) {
	msg := append(append([]byte(nil), data.Payload...), feeRate...)
	return a.IsValidDataSignature(msg, signature, initiator)
}

// GetCommitStatus maps htlc.Client.GetSwap's SwapState onto the
// chain-neutral CommitState.
func (a *EVMAdapter) GetCommitStatus(ctx context.Context, signer string, data *swapcore.SwapData) (CommitStatus, error) {
	swapID, err := payloadSwapID(data)
	if err != nil {
		return CommitStatus{}, err
	}
	s, err := a.client.GetSwap(ctx, swapID)
	if err != nil {
		return CommitStatus{}, fmt.Errorf("chainadapter: get swap: %w", err)
	}
	switch s.State {
	case htlc.SwapStateEmpty:
		return CommitStatus{State: NotCommitted}, nil
	case htlc.SwapStateActive:
		return CommitStatus{State: Committed}, nil
	case htlc.SwapStateClaimed:
		// The revealed secret lives in the SwapClaimed event log, not in
		// contract storage; reconciliation recovers it from the event
		// stream (SubscribeEvents) rather than from this view call.
		return CommitStatus{State: Paid}, nil
	case htlc.SwapStateRefunded:
		return CommitStatus{State: Expired}, nil
	default:
		return CommitStatus{}, fmt.Errorf("chainadapter: unknown swap state %v", s.State)
	}
}

// GetCommitStatuses has no batched view call on this contract, so it fans
// the single-escrow query out sequentially; the reconciliation loop is the
// only caller and already runs this off its own goroutine.
func (a *EVMAdapter) GetCommitStatuses(ctx context.Context, signer string, datas []*swapcore.SwapData) ([]CommitStatus, error) {
	out := make([]CommitStatus, len(datas))
	for i, d := range datas {
		st, err := a.GetCommitStatus(ctx, signer, d)
		if err != nil {
			return nil, err
		}
		out[i] = st
	}
	return out, nil
}

func (a *EVMAdapter) TxsCommit(ctx context.Context, signer string, data *swapcore.SwapData, feeRate []byte) (TxSet, error) {
	key, err := a.keys.PrivateKeyFor(signer)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: signer key: %w", err)
	}
	swapID, err := payloadSwapID(data)
	if err != nil {
		return nil, err
	}
	receiver, err := parseAddress(data.Claimer)
	if err != nil {
		return nil, err
	}

	var tx *types.Transaction
	if data.Token.Kind == swapcore.TokenSmartChain && data.Token.Address != "" {
		token, err := parseAddress(data.Token.Address)
		if err != nil {
			return nil, err
		}
		tx, err = a.client.CreateSwapERC20(ctx, key, swapID, receiver, token, new(big.Int).SetUint64(data.Amount), data.ClaimHash, big.NewInt(data.Expiry))
		if err != nil {
			return nil, fmt.Errorf("chainadapter: create swap erc20: %w", err)
		}
	} else {
		tx, err = a.client.CreateSwapNative(ctx, key, swapID, receiver, data.ClaimHash, big.NewInt(data.Expiry), new(big.Int).SetUint64(data.Amount))
		if err != nil {
			return nil, fmt.Errorf("chainadapter: create swap native: %w", err)
		}
	}
	return TxSet{[]byte(tx.Hash().Hex())}, nil
}

func (a *EVMAdapter) TxsClaimWithSecret(ctx context.Context, signer string, data *swapcore.SwapData, secret [32]byte, check bool, rehash bool) (TxSet, error) {
	key, err := a.keys.PrivateKeyFor(signer)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: signer key: %w", err)
	}
	swapID, err := payloadSwapID(data)
	if err != nil {
		return nil, err
	}
	if check {
		ok, err := a.client.CanClaim(ctx, swapID)
		if err != nil {
			return nil, fmt.Errorf("chainadapter: can claim: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("chainadapter: escrow %x not claimable", swapID)
		}
	}
	tx, err := a.client.Claim(ctx, key, swapID, secret)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: claim: %w", err)
	}
	return TxSet{[]byte(tx.Hash().Hex())}, nil
}

func (a *EVMAdapter) TxsRefund(ctx context.Context, signer string, data *swapcore.SwapData, feeRate []byte) (TxSet, error) {
	key, err := a.keys.PrivateKeyFor(signer)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: signer key: %w", err)
	}
	swapID, err := payloadSwapID(data)
	if err != nil {
		return nil, err
	}
	tx, err := a.client.Refund(ctx, key, swapID)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: refund: %w", err)
	}
	return TxSet{[]byte(tx.Hash().Hex())}, nil
}

func (a *EVMAdapter) GetCommitFee(ctx context.Context, data *swapcore.SwapData, feeRate []byte) (uint64, error) {
	swapID, err := payloadSwapID(data)
	if err != nil {
		return 0, err
	}
	receiver, err := parseAddress(data.Claimer)
	if err != nil {
		return 0, err
	}
	from, err := parseAddress(data.Offerer)
	if err != nil {
		return 0, err
	}
	gas, err := a.client.EstimateGasCreateSwapNative(ctx, from, swapID, receiver, data.ClaimHash, big.NewInt(data.Expiry), new(big.Int).SetUint64(data.Amount))
	if err != nil {
		return 0, fmt.Errorf("chainadapter: estimate commit fee: %w", err)
	}
	return gas, nil
}

// GetClaimFee and GetRefundFee have no dedicated gas estimator; both HTLC
// operations touch the same storage slot pattern as commit, so the commit
// estimate is a reasonable stand-in until the contract binding grows
// Claim/Refund-specific estimators.
func (a *EVMAdapter) GetClaimFee(ctx context.Context, data *swapcore.SwapData, feeRate []byte) (uint64, error) {
	return a.GetCommitFee(ctx, data, feeRate)
}

func (a *EVMAdapter) GetRefundFee(ctx context.Context, data *swapcore.SwapData, feeRate []byte) (uint64, error) {
	return a.GetCommitFee(ctx, data, feeRate)
}

// GetInitFeeRate reports the protocol fee in basis points as an opaque,
// quote-embeddable byte string.
func (a *EVMAdapter) GetInitFeeRate(ctx context.Context) ([]byte, error) {
	fee, err := a.client.GetFeeBps(ctx)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: fee bps: %w", err)
	}
	return fee.Bytes(), nil
}

// SubscribeEvents adapts htlc.Client's three separate Watch* channel APIs
// into the single Event stream Contract consumers expect.
func (a *EVMAdapter) SubscribeEvents(ctx context.Context) (<-chan Event, error) {
	created, err := a.client.WatchSwapCreated(ctx, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: watch created: %w", err)
	}
	claimed, err := a.client.WatchSwapClaimed(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: watch claimed: %w", err)
	}
	refunded, err := a.client.WatchSwapRefunded(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: watch refunded: %w", err)
	}

	out := make(chan Event, 64)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-created:
				if !ok {
					return
				}
				out <- Event{Kind: EventInitialize, EscrowHash: ev.SwapID, TxID: ev.TxHash.Hex()}
			case ev, ok := <-claimed:
				if !ok {
					return
				}
				out <- Event{Kind: EventClaim, EscrowHash: ev.SwapID, Result: ev.Secret[:], TxID: ev.TxHash.Hex()}
			case ev, ok := <-refunded:
				if !ok {
					return
				}
				out <- Event{Kind: EventRefund, EscrowHash: ev.SwapID, TxID: ev.TxHash.Hex()}
			}
		}
	}()
	return out, nil
}

var zeroAddressValue common.Address

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("chainadapter: invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func payloadSwapID(data *swapcore.SwapData) ([32]byte, error) {
	var id [32]byte
	if len(data.Payload) != 32 {
		return id, fmt.Errorf("chainadapter: swap data payload is not a 32-byte escrow id")
	}
	copy(id[:], data.Payload)
	return id, nil
}

// recoverSigner recovers the ECDSA public key from a 65-byte [R||S||V]
// signature over the keccak256 digest of data, the inverse of the signing
// step htlc.Client callers perform with crypto.Sign.
func recoverSigner(data []byte, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("chainadapter: signature must be 65 bytes, got %d", len(signature))
	}
	digest := crypto.Keccak256(data)
	pub, err := crypto.SigToPub(digest, signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("chainadapter: recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

var _ Contract = (*EVMAdapter)(nil)
var _ EventSource = (*EVMAdapter)(nil)
