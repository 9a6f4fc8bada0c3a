package swapper

import (
	"context"

	"github.com/klingon-exchange/atomiq-core/internal/chainadapter"
	"github.com/klingon-exchange/atomiq-core/internal/swapcore"
)

// RecoverSwaps force-resyncs every non-terminal swap belonging to signer on
// chainID against that chain's current on-chain status, for a caller that
// has been offline long enough to distrust its own event-driven state.
//
// Scoped narrower than a full historical replay: there is no block-indexed
// event source in this engine's chain contracts to replay from a
// start_block forward, so recovery is a batched GetCommitStatuses query
// over the caller's own tracked swaps (the same primitive the
// reconciliation loop's deep sync uses) rather than a reconstruction from
// raw chain history. A swap whose escrow was created, claimed, and
// refunded entirely while this process never observed it at all (no row
// in the store to resync) cannot be recovered this way and is out of
// scope.
func (s *Swapper) RecoverSwaps(ctx context.Context, chainID, signer string) ([]*swapcore.Swap, error) {
	contract, ok := s.contracts[chainID]
	if !ok {
		return nil, userErr("no chain contract registered for "+chainID, nil)
	}

	swaps, err := s.GetAllSwaps(signer)
	if err != nil {
		return nil, err
	}

	var candidates []*swapcore.Swap
	for _, sw := range swaps {
		if sw.ChainID != chainID {
			continue
		}
		m, err := s.machines.For(sw.Type)
		if err != nil {
			continue
		}
		if m.IsTerminal(sw.State) {
			continue
		}
		if sw.EffectiveSwapData() == nil {
			continue
		}
		candidates = append(candidates, sw)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	datas := make([]*swapcore.SwapData, len(candidates))
	for i, sw := range candidates {
		datas[i] = sw.EffectiveSwapData()
	}

	statuses, err := contract.GetCommitStatuses(ctx, signer, datas)
	if err != nil {
		return nil, err
	}
	if len(statuses) != len(candidates) {
		return nil, userErr("chain contract returned a mismatched status count", nil)
	}

	var changed []*swapcore.Swap
	for i, sw := range candidates {
		if err := s.applyRecoveredStatus(ctx, sw, statuses[i]); err != nil {
			return changed, err
		}
		changed = append(changed, sw)
	}
	return changed, nil
}

func (s *Swapper) applyRecoveredStatus(ctx context.Context, sw *swapcore.Swap, status chainadapter.CommitStatus) error {
	lock := s.lockFor(sw.ID)
	lock.Lock()
	defer lock.Unlock()

	m, err := s.machines.For(sw.Type)
	if err != nil {
		return err
	}

	fresh, err := s.store.Get(sw.ID)
	if err == nil {
		*sw = *fresh
	}

	ok, err := m.ForceOnChainState(sw, status)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if err := s.save(ctx, sw, false); err != nil {
		return err
	}
	if m.IsTerminal(sw.State) {
		s.removeSwapLock(sw.ID)
	}
	return nil
}
