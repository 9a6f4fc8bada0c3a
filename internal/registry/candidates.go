package registry

import "sort"

// Candidate pairs an intermediary with the specific offer it matched.
type Candidate struct {
	Intermediary *Intermediary
	Offer        ServiceOffer
}

// fee computes the expected fee for amount sats against one offer, per
// §4.2 "Rank-and-pick": base_fee + amount*ppm/1_000_000.
func fee(offer ServiceOffer, amount uint64) uint64 {
	return offer.BaseFee + (amount*offer.PPM)/1_000_000
}

// GetSwapCandidates filters verified, non-blacklisted LPs advertising the
// service for (chainID, swapType, token) with bounds containing amount (if
// amount > 0), sorted by total expected fee ascending. Ties break by lower
// ppm, then lower base fee, then input order (stable sort).
func (r *Registry) GetSwapCandidates(chainID string, swapType int, token string, amount uint64) []Candidate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []Candidate
	for _, lp := range r.intermediaries {
		if lp.Blacklisted() {
			continue
		}
		for _, offer := range lp.Services {
			if offer.ChainID != chainID || offer.SwapType != swapType || offer.Token != token {
				continue
			}
			if amount > 0 && (amount < offer.Bounds.Min || amount > offer.Bounds.Max) {
				continue
			}
			candidates = append(candidates, Candidate{Intermediary: lp, Offer: offer})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		fi, fj := fee(candidates[i].Offer, amount), fee(candidates[j].Offer, amount)
		if fi != fj {
			return fi < fj
		}
		if candidates[i].Offer.PPM != candidates[j].Offer.PPM {
			return candidates[i].Offer.PPM < candidates[j].Offer.PPM
		}
		return candidates[i].Offer.BaseFee < candidates[j].Offer.BaseFee
	})

	return candidates
}

// SwapBounds returns the elementwise min/max aggregated bounds across every
// verified, non-blacklisted LP offering (swapType, token) on any chain.
func (r *Registry) SwapBounds(swapType int, token string) (ServiceBounds, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var bounds ServiceBounds
	found := false
	for _, lp := range r.intermediaries {
		if lp.Blacklisted() {
			continue
		}
		for _, offer := range lp.Services {
			if offer.SwapType != swapType || offer.Token != token {
				continue
			}
			if !found {
				bounds = offer.Bounds
				found = true
				continue
			}
			if offer.Bounds.Min < bounds.Min {
				bounds.Min = offer.Bounds.Min
			}
			if offer.Bounds.Max > bounds.Max {
				bounds.Max = offer.Bounds.Max
			}
		}
	}
	return bounds, found
}

// Remove blacklists an LP (§4.2 "intended to be called on any
// IntermediaryError with recoverable=false"). It stays in the active slice
// (so a later Discover refresh can re-admit it) but is excluded from
// candidate selection and bounds aggregation.
func (r *Registry) Remove(lpURL string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, lp := range r.intermediaries {
		if lp.URL == lpURL {
			lp.setBlacklisted(true)
		}
	}
}

// All returns every currently known intermediary, verified or not yet
// re-checked, including blacklisted ones (callers filter as needed).
func (r *Registry) All() []*Intermediary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Intermediary, len(r.intermediaries))
	copy(out, r.intermediaries)
	return out
}
