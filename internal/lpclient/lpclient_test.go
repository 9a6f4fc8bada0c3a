package lpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetCapabilitiesDecodesBoundsAndFeeCurve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/info", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"base_fee_sats": 500,
			"ppm": 2500,
			"services": {
				"TO_BTC": {"BTC": {"min": 10000, "max": 5000000}}
			}
		}`))
	}))
	defer srv.Close()

	c := NewClient(2 * time.Second)
	caps, err := c.GetCapabilities(t.Context(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, uint64(500), caps.BaseFeeSats)
	require.Equal(t, uint64(2500), caps.PPM)
	require.Equal(t, Bounds{Min: 10000, Max: 5000000}, caps.Services["TO_BTC"]["BTC"])
}

func TestRequestErrorOnNon200NonStructuredBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal error"))
	}))
	defer srv.Close()

	c := NewClient(2 * time.Second)
	_, err := c.GetCapabilities(t.Context(), srv.URL)
	require.Error(t, err)
	reqErr, ok := err.(*RequestError)
	require.True(t, ok)
	require.Equal(t, http.StatusInternalServerError, reqErr.HTTPCode)
}
