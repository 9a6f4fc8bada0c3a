// Package priceoracle keeps the Provider interface a narrow external
// boundary (no concrete body; provider implementations live outside this
// module), while the Aggregator that polls N providers and combines
// their quotes is implemented here.
// Modeled structurally on internal/backend.Registry: a map-keyed registry
// of same-interface providers queried uniformly.
package priceoracle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/klingon-exchange/atomiq-core/pkg/logging"
)

// ErrNoProviders is returned when the aggregator has nothing configured.
var ErrNoProviders = errors.New("priceoracle: no providers configured")

// ErrNoQuorum is returned when too few providers answered within the
// timeout to produce a trustworthy aggregate.
var ErrNoQuorum = errors.New("priceoracle: insufficient providers responded")

// Provider is the external boundary (§1): given a token, return its current
// price in micro-satoshis per smallest unit. Concrete implementations
// (an exchange API client, an on-chain TWAP oracle, etc.) are out of scope.
type Provider interface {
	Name() string
	MicroSatPerUnit(ctx context.Context, chainID, tokenAddress string) (float64, error)
}

// Aggregator polls every configured Provider concurrently and returns the
// median of successful responses, discarding any quote further than
// OutlierBandPPM from the median (§4.7 "maintains the price oracle").
type Aggregator struct {
	providers      []Provider
	perProviderTO  time.Duration
	outlierBandPPM uint64
	minQuorum      int
	log            *logging.Logger
}

// Config configures an Aggregator.
type Config struct {
	PerProviderTimeout time.Duration // default 5s
	OutlierBandPPM     uint64        // default 50_000 (5%)
	MinQuorum          int           // default 1
}

// NewAggregator builds an Aggregator over the given providers.
func NewAggregator(providers []Provider, cfg Config) *Aggregator {
	if cfg.PerProviderTimeout == 0 {
		cfg.PerProviderTimeout = 5 * time.Second
	}
	if cfg.OutlierBandPPM == 0 {
		cfg.OutlierBandPPM = 50_000
	}
	if cfg.MinQuorum == 0 {
		cfg.MinQuorum = 1
	}
	return &Aggregator{
		providers:      providers,
		perProviderTO:  cfg.PerProviderTimeout,
		outlierBandPPM: cfg.OutlierBandPPM,
		minQuorum:      cfg.MinQuorum,
		log:            logging.GetDefault().Component("priceoracle"),
	}
}

type sample struct {
	provider string
	value    float64
}

// Quote returns the aggregate micro-sat-per-unit price for a token, the
// median of non-outlier successful provider responses.
func (a *Aggregator) Quote(ctx context.Context, chainID, tokenAddress string) (float64, error) {
	if len(a.providers) == 0 {
		return 0, ErrNoProviders
	}

	results := make([]*sample, len(a.providers))
	var wg sync.WaitGroup
	for i, p := range a.providers {
		wg.Add(1)
		go func(idx int, provider Provider) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, a.perProviderTO)
			defer cancel()

			v, err := provider.MicroSatPerUnit(pctx, chainID, tokenAddress)
			if err != nil {
				a.log.Debug("price provider failed", "provider", provider.Name(), "error", err)
				return
			}
			results[idx] = &sample{provider: provider.Name(), value: v}
		}(i, p)
	}
	wg.Wait()

	var samples []sample
	for _, r := range results {
		if r != nil {
			samples = append(samples, *r)
		}
	}

	if len(samples) < a.minQuorum {
		return 0, fmt.Errorf("%w: got %d, need %d", ErrNoQuorum, len(samples), a.minQuorum)
	}

	med := median(samples)
	filtered := samples[:0]
	for _, s := range samples {
		if withinBand(s.value, med, a.outlierBandPPM) {
			filtered = append(filtered, s)
		}
	}
	if len(filtered) == 0 {
		return med, nil
	}
	return median(filtered), nil
}

func median(samples []sample) float64 {
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.value
	}
	sort.Float64s(values)
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}

func withinBand(value, center float64, ppm uint64) bool {
	if center == 0 {
		return value == 0
	}
	diff := value - center
	if diff < 0 {
		diff = -diff
	}
	return diff/center <= float64(ppm)/1_000_000
}
