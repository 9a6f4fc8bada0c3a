package registry

import (
	"context"
	"sync"

	"github.com/klingon-exchange/atomiq-core/pkg/logging"
)

// Registry holds the active, verified set of intermediaries plus the
// derived aggregated bounds table.
type Registry struct {
	client    *Client
	verifiers map[string]ChainVerifier // chain -> verifier
	log       *logging.Logger

	mu            sync.RWMutex
	intermediaries []*Intermediary
}

// New builds a Registry. verifiers maps chain symbol to the chain capability
// that can check a signature over raw bytes (§4.2.2, "for every chain
// supported locally").
func New(client *Client, verifiers map[string]ChainVerifier) *Registry {
	return &Registry{
		client:    client,
		verifiers: verifiers,
		log:       logging.GetDefault().Component("registry"),
	}
}

// Discover loads the LP list (sourceURL, or overrideURLs if non-empty),
// fetches and verifies each envelope in parallel, and keeps every LP with
// at least one verified chain address (§4.2.3).
func (r *Registry) Discover(ctx context.Context, sourceURL string, overrideURLs []string) ([]*Intermediary, error) {
	urls := overrideURLs
	if len(urls) == 0 {
		list, err := r.client.FetchSourceList(ctx, sourceURL)
		if err != nil {
			return nil, err
		}
		urls = list
	}

	results := make([]*Intermediary, len(urls))
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(idx int, lpURL string) {
			defer wg.Done()
			lp, err := r.fetchAndVerify(ctx, lpURL)
			if err != nil {
				r.log.Debug("intermediary fetch/verify failed", "url", lpURL, "error", err)
				return
			}
			results[idx] = lp
		}(i, u)
	}
	wg.Wait()

	var verified []*Intermediary
	for _, lp := range results {
		if lp != nil && lp.Verified() {
			verified = append(verified, lp)
		}
	}

	r.mu.Lock()
	r.intermediaries = verified
	r.mu.Unlock()

	return verified, nil
}

// fetchAndVerify fetches one LP's envelope under ctx, then verifies every
// chain signature using context.Background() — per the race-window policy
// (§4.2, "on external cancellation after the HTTP body was received, the
// function still returns with whatever addresses it managed to verify").
func (r *Registry) fetchAndVerify(ctx context.Context, lpURL string) (*Intermediary, error) {
	env, envelopeBytes, err := r.client.FetchEnvelope(ctx, lpURL)
	if err != nil {
		return nil, err
	}

	lp := &Intermediary{
		URL:       lpURL,
		Addresses: make(map[string]string),
		Services:  env.Services,
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, ca := range env.Chains {
		verifier, ok := r.verifiers[ca.Chain]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(ca ChainAddress, verifier ChainVerifier) {
			defer wg.Done()
			ok, err := verifier.IsValidDataSignature(envelopeBytes, ca.Signature, ca.Address)
			if err != nil || !ok {
				return
			}
			mu.Lock()
			lp.Addresses[ca.Chain] = ca.Address
			mu.Unlock()
		}(ca, verifier)
	}
	wg.Wait()

	return lp, nil
}
