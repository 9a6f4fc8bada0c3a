package quoteverify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/klingon-exchange/atomiq-core/internal/swapcore"
)

type stubChainVerifier struct {
	authOK       bool
	authErr      error
	commitStatus CommitStatus
	commitErr    error
}

func (s stubChainVerifier) IsValidInitAuthorization(ctx context.Context, initiator string, data *swapcore.SwapData, signature []byte, feeRate []byte) (bool, error) {
	return s.authOK, s.authErr
}

func (s stubChainVerifier) GetCommitStatus(ctx context.Context, signer string, data *swapcore.SwapData) (CommitStatus, error) {
	return s.commitStatus, s.commitErr
}

func baseReqResp() (Request, Response) {
	var claimHash [32]byte
	copy(claimHash[:], []byte("claim-hash-32-bytes-long-enough!"))

	req := Request{
		SwapType:    swapcore.ToBTC,
		UserAddress: "0xUSER",
		Amount:      100_000,
		ExactIn:     true,
		ClaimHash:   claimHash,
	}
	resp := Response{
		IntermediaryKey: "lp-address",
		Invoice:         ParsedInvoice{AmountSats: 100_000, PaymentHash: claimHash},
		SwapData: &swapcore.SwapData{
			Offerer:   "0xUSER",
			ClaimHash: claimHash,
		},
		TotalSats:      1_500,
		SwapFeeSats:    1_000,
		NetworkFeeSats: 500,
	}
	return req, resp
}

func TestVerifyPassesAllChecksWithoutOracleOrVerifier(t *testing.T) {
	req, resp := baseReqResp()
	req.Amount = resp.Invoice.AmountSats // structural amount check uses invoice vs request separately

	v := New(DefaultConfig(), nil, nil)
	_, err := v.Verify(context.Background(), req, resp, "lp-address")
	require.NoError(t, err)
}

func TestVerifyRejectsWrongIntermediaryKey(t *testing.T) {
	req, resp := baseReqResp()
	v := New(DefaultConfig(), nil, nil)
	_, err := v.Verify(context.Background(), req, resp, "different-lp-address")
	require.Error(t, err)
	ierr, ok := err.(*IntermediaryError)
	require.True(t, ok)
	require.False(t, ierr.Recoverable)
}

func TestVerifyRejectsFeeMismatch(t *testing.T) {
	req, resp := baseReqResp()
	resp.TotalSats = 9_999
	v := New(DefaultConfig(), nil, nil)
	_, err := v.Verify(context.Background(), req, resp, "lp-address")
	require.Error(t, err)
	ierr, ok := err.(*IntermediaryError)
	require.True(t, ok)
	require.True(t, ierr.Recoverable)
}

func TestVerifyRejectsAmountMismatchExactIn(t *testing.T) {
	req, resp := baseReqResp()
	req.Amount = 200_000
	v := New(DefaultConfig(), nil, nil)
	_, err := v.Verify(context.Background(), req, resp, "lp-address")
	require.Error(t, err)
}

func TestVerifyRejectsClaimHashMismatch(t *testing.T) {
	req, resp := baseReqResp()
	resp.SwapData.ClaimHash = [32]byte{0xFF}
	v := New(DefaultConfig(), nil, nil)
	_, err := v.Verify(context.Background(), req, resp, "lp-address")
	require.Error(t, err)
}

func TestVerifyCallsChainVerifierAndRejectsInvalidAuthorization(t *testing.T) {
	req, resp := baseReqResp()
	verifier := stubChainVerifier{authOK: false}
	v := New(DefaultConfig(), nil, verifier)
	_, err := v.Verify(context.Background(), req, resp, "lp-address")
	require.Error(t, err)
	ierr, ok := err.(*IntermediaryError)
	require.True(t, ok)
	require.False(t, ierr.Recoverable)
}

func TestVerifyRejectsAlreadyCommittedEscrow(t *testing.T) {
	req, resp := baseReqResp()
	verifier := stubChainVerifier{authOK: true, commitStatus: CommitStatus{State: Committed}}
	v := New(DefaultConfig(), nil, verifier)
	_, err := v.Verify(context.Background(), req, resp, "lp-address")
	require.Error(t, err)
}

func TestVerifyAcceptsWithValidChainVerifier(t *testing.T) {
	req, resp := baseReqResp()
	verifier := stubChainVerifier{authOK: true, commitStatus: CommitStatus{State: NotCommitted}}
	v := New(DefaultConfig(), nil, verifier)
	_, err := v.Verify(context.Background(), req, resp, "lp-address")
	require.NoError(t, err)
}
