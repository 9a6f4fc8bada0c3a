package swapstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/klingon-exchange/atomiq-core/internal/swapcore"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testSwap(id string, typ swapcore.SwapType, state int32) *swapcore.Swap {
	now := time.Now()
	return &swapcore.Swap{
		ID:               id,
		Type:             typ,
		State:            state,
		ChainID:          "ethereum-mainnet",
		InitiatorAddress: "0xabc",
		Input:            swapcore.Amount{RawAmount: 100000},
		Output:           swapcore.Amount{RawAmount: 99000},
		InitialSwapData: &swapcore.SwapData{
			Offerer: "0xabc",
			Claimer: "0xdef",
			Amount:  99000,
		},
		CreatedAt:   now,
		QuoteExpiry: now.Add(5 * time.Minute),
		QuoteSoft:   now.Add(4 * time.Minute),
		HTLCExpiry:  now.Add(2 * time.Hour),
	}
}

func TestSaveAndGet(t *testing.T) {
	store := newTestStore(t)
	sw := testSwap("swap-1", swapcore.FromBTCLN, 1)

	require.NoError(t, store.Save(sw))

	got, err := store.Get("swap-1")
	require.NoError(t, err)
	require.Equal(t, sw.ID, got.ID)
	require.Equal(t, sw.Type, got.Type)
	require.Equal(t, sw.ChainID, got.ChainID)
	require.Equal(t, sw.Input.RawAmount, got.Input.RawAmount)
	require.NotNil(t, got.InitialSwapData)
	require.Equal(t, sw.InitialSwapData.Offerer, got.InitialSwapData.Offerer)
}

func TestGetNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSaveIsUpsert(t *testing.T) {
	store := newTestStore(t)
	sw := testSwap("swap-2", swapcore.ToBTC, 0)
	require.NoError(t, store.Save(sw))

	sw.State = 5
	sw.ClaimTxID = "txid-abc"
	require.NoError(t, store.Save(sw))

	got, err := store.Get("swap-2")
	require.NoError(t, err)
	require.EqualValues(t, 5, got.State)
	require.Equal(t, "txid-abc", got.ClaimTxID)
}

func TestSaveAllAtomic(t *testing.T) {
	store := newTestStore(t)
	swaps := []*swapcore.Swap{
		testSwap("batch-1", swapcore.FromBTC, 0),
		testSwap("batch-2", swapcore.ToBTCLN, 0),
	}
	require.NoError(t, store.SaveAll(swaps))

	all, err := store.All()
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestRemoveAll(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveAll([]*swapcore.Swap{
		testSwap("rm-1", swapcore.FromBTC, 0),
		testSwap("rm-2", swapcore.FromBTC, 0),
	}))

	require.NoError(t, store.RemoveAll([]string{"rm-1", "rm-2"}))

	_, err := store.Get("rm-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestQueryByTypeAndState(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveAll([]*swapcore.Swap{
		testSwap("q-1", swapcore.FromBTCLN, 1),
		testSwap("q-2", swapcore.FromBTCLN, 2),
		testSwap("q-3", swapcore.ToBTC, 1),
	}))

	results, err := store.Query(Predicates{
		On(KeyType, int(swapcore.FromBTCLN)).And(KeyState, 1),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "q-1", results[0].ID)
}

func TestQueryDisjunction(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveAll([]*swapcore.Swap{
		testSwap("d-1", swapcore.FromBTCLN, 1),
		testSwap("d-2", swapcore.ToBTC, 1),
		testSwap("d-3", swapcore.TrustedFromBTC, 1),
	}))

	preds := On(KeyType, int(swapcore.FromBTCLN)).Or(On(KeyType, int(swapcore.ToBTC)))
	results, err := store.Query(preds)
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestQueryEmptyPredicatesMatchesAll(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(testSwap("all-1", swapcore.FromBTC, 0)))
	require.NoError(t, store.Save(testSwap("all-2", swapcore.ToBTC, 0)))

	results, err := store.Query(nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestPreimageRoundTrip(t *testing.T) {
	store := newTestStore(t)
	secret, err := swapcore.GenerateSecret()
	require.NoError(t, err)

	sw := testSwap("preimage-1", swapcore.FromBTCLN, 0)
	sw.PreimageSecret = secret
	ph := swapcore.PaymentHash(secret)
	sw.PaymentHash = ph
	sw.PaymentHashSet = true

	require.NoError(t, store.Save(sw))
	got, err := store.Get("preimage-1")
	require.NoError(t, err)
	require.Equal(t, secret, got.PreimageSecret)
	require.True(t, got.PaymentHashSet)
	require.Equal(t, ph, got.PaymentHash)
}

func TestReopenPreservesData(t *testing.T) {
	dir := t.TempDir()
	store, err := New(Config{DataDir: dir})
	require.NoError(t, err)
	require.NoError(t, store.Save(testSwap("persist-1", swapcore.FromBTC, 0)))
	require.NoError(t, store.Close())

	reopened, err := New(Config{DataDir: dir})
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get("persist-1")
	require.NoError(t, err)
	require.Equal(t, "persist-1", got.ID)
}
