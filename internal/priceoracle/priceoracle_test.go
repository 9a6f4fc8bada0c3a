package priceoracle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fixedProvider struct {
	name  string
	value float64
	err   error
}

func (f fixedProvider) Name() string { return f.name }
func (f fixedProvider) MicroSatPerUnit(ctx context.Context, chainID, tokenAddress string) (float64, error) {
	return f.value, f.err
}

func TestQuoteMedianOfThree(t *testing.T) {
	agg := NewAggregator([]Provider{
		fixedProvider{name: "a", value: 100},
		fixedProvider{name: "b", value: 102},
		fixedProvider{name: "c", value: 98},
	}, Config{})

	v, err := agg.Quote(context.Background(), "ethereum", "0xtoken")
	require.NoError(t, err)
	require.Equal(t, float64(100), v)
}

func TestQuoteDiscardsOutlier(t *testing.T) {
	agg := NewAggregator([]Provider{
		fixedProvider{name: "a", value: 100},
		fixedProvider{name: "b", value: 101},
		fixedProvider{name: "c", value: 99},
		fixedProvider{name: "evil", value: 100000},
	}, Config{OutlierBandPPM: 50_000})

	v, err := agg.Quote(context.Background(), "ethereum", "0xtoken")
	require.NoError(t, err)
	require.InDelta(t, 100, v, 1)
}

func TestQuoteNoProviders(t *testing.T) {
	agg := NewAggregator(nil, Config{})
	_, err := agg.Quote(context.Background(), "ethereum", "0xtoken")
	require.ErrorIs(t, err, ErrNoProviders)
}

func TestQuoteFailedProvidersExcluded(t *testing.T) {
	agg := NewAggregator([]Provider{
		fixedProvider{name: "a", value: 100},
		fixedProvider{name: "broken", err: errors.New("timeout")},
	}, Config{MinQuorum: 1})

	v, err := agg.Quote(context.Background(), "ethereum", "0xtoken")
	require.NoError(t, err)
	require.Equal(t, float64(100), v)
}

func TestQuoteBelowQuorum(t *testing.T) {
	agg := NewAggregator([]Provider{
		fixedProvider{name: "a", value: 100},
		fixedProvider{name: "broken", err: errors.New("timeout")},
	}, Config{MinQuorum: 2})

	_, err := agg.Quote(context.Background(), "ethereum", "0xtoken")
	require.ErrorIs(t, err, ErrNoQuorum)
}
