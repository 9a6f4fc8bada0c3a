package lpclient

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetPaymentAuthorizationDecodesAuthData(t *testing.T) {
	var hash [32]byte
	copy(hash[:], []byte("payment-hash-32-bytes-long-ok!!"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/get_payment_authorization", r.URL.Path)
		require.Equal(t, hex.EncodeToString(hash[:]), r.URL.Query().Get("payment_hash"))
		_ = json.NewEncoder(w).Encode(wireAuthResponse{
			State:     "AUTH_DATA",
			Data:      hex.EncodeToString([]byte("data-bytes")),
			Signature: hex.EncodeToString([]byte("sig-bytes")),
			Timeout:   1893456000,
			Prefix:    "atomiq",
		})
	}))
	defer srv.Close()

	c := NewClient(2 * time.Second)
	auth, err := c.GetPaymentAuthorization(t.Context(), srv.URL, hash)
	require.NoError(t, err)
	require.Equal(t, AuthData, auth.State)
	require.Equal(t, []byte("data-bytes"), auth.Data)
	require.Equal(t, []byte("sig-bytes"), auth.Signature)
}

func TestGetPaymentAuthorizationDecodesPendingAndExpired(t *testing.T) {
	for _, tc := range []struct {
		wireState string
		want      AuthorizationState
	}{
		{"PENDING", AuthPending},
		{"EXPIRED", AuthExpired},
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(wireAuthResponse{State: tc.wireState})
		}))

		c := NewClient(2 * time.Second)
		auth, err := c.GetPaymentAuthorization(t.Context(), srv.URL, [32]byte{})
		require.NoError(t, err)
		require.Equal(t, tc.want, auth.State)
		srv.Close()
	}
}

func TestGetInvoiceStatusDecodesEachState(t *testing.T) {
	for _, tc := range []struct {
		wireState string
		want      InvoiceState
	}{
		{"UNPAID", InvoiceUnpaid},
		{"PAID", InvoicePaid},
		{"EXPIRED", InvoiceExpired},
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(wireInvoiceStatus{State: tc.wireState})
		}))

		c := NewClient(2 * time.Second)
		state, err := c.GetInvoiceStatus(t.Context(), srv.URL, [32]byte{})
		require.NoError(t, err)
		require.Equal(t, tc.want, state)
		srv.Close()
	}
}
