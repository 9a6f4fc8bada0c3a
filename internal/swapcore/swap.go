package swapcore

import "fmt"

// CheckClaimedConsistency enforces that a swap reported as claimed-terminal
// must carry the transaction ID that claimed it. Callers in internal/swapfsm
// pass isClaimed computed from their own per-protocol terminal state set,
// since the shared axis (§4.4.1) only fixes the negative/failure states.
func CheckClaimedConsistency(s *Swap, isClaimed bool) error {
	if isClaimed && s.ClaimTxID == "" {
		return fmt.Errorf("%w: swap %s", ErrClaimedWithoutTxID, s.ID)
	}
	return nil
}

// CheckCommitConsistency enforces that a swap past the commit point must
// have a confirmed (real) swap_data, not just the LP's proposal.
func CheckCommitConsistency(s *Swap, isPastCommit bool) error {
	if isPastCommit && s.RealSwapData == nil {
		return fmt.Errorf("%w: swap %s", ErrCommitWithoutRealData, s.ID)
	}
	return nil
}

// ValidateAtRest runs every invariant check that applies regardless of
// protocol-specific state, suitable for a load-from-store sanity pass
// (internal/swapstore does not call it when deserializing rows).
func ValidateAtRest(s *Swap, hasher ClaimHasher, isClaimed, isPastCommit bool) error {
	if err := CheckClaimedConsistency(s, isClaimed); err != nil {
		return err
	}
	if err := CheckCommitConsistency(s, isPastCommit); err != nil {
		return err
	}
	if err := CheckPreimageConsistency(s, hasher); err != nil {
		return err
	}
	if err := CheckExpiryOrdering(s); err != nil {
		return err
	}
	return CheckOutputBound(s)
}

// Clone returns a deep-enough copy of s for handing to a reconciliation
// worker without sharing mutable pointer fields with the store's cache.
func (s *Swap) Clone() *Swap {
	if s == nil {
		return nil
	}
	clone := *s
	if s.InitialSwapData != nil {
		data := *s.InitialSwapData
		data.Payload = append([]byte(nil), s.InitialSwapData.Payload...)
		clone.InitialSwapData = &data
	}
	if s.RealSwapData != nil {
		data := *s.RealSwapData
		data.Payload = append([]byte(nil), s.RealSwapData.Payload...)
		clone.RealSwapData = &data
	}
	if s.LNURL != nil {
		lnurl := *s.LNURL
		clone.LNURL = &lnurl
	}
	if s.SignatureBundle != nil {
		sig := *s.SignatureBundle
		sig.Signature = append([]byte(nil), s.SignatureBundle.Signature...)
		clone.SignatureBundle = &sig
	}
	clone.PreimageSecret = append([]byte(nil), s.PreimageSecret...)
	return &clone
}
