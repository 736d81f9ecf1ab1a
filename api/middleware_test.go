package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/verilayer/verilayer/common"
)

func TestNormalizeEndpoint(t *testing.T) {
	require.Equal(t, "/v1/tasks/*/finalize", normalizeEndpoint("/v1/tasks/12/finalize"))
	require.Equal(t, "/v1/accounts/*/bonds/*", normalizeEndpoint("/v1/accounts/0x00000000000000000000000000000000000000aa/bonds/3"))
	require.Equal(t, "/v1/events", normalizeEndpoint("/v1/events"))
}

func TestBinQueryLatency(t *testing.T) {
	require.Equal(t, "<100ms", binQueryLatency(10*time.Millisecond))
	require.Equal(t, "300-500ms", binQueryLatency(400*time.Millisecond))
	require.Equal(t, ">1000ms", binQueryLatency(3*time.Second))
}

func TestCallerMiddleware(t *testing.T) {
	var (
		seen ethCommon.Address
		ok   bool
	)
	h := CallerMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, ok = common.CallerFromContext(r.Context())
	}))

	addr := ethCommon.HexToAddress("0xabc")
	r := httptest.NewRequest(http.MethodPost, "/v1/tasks", nil)
	r.Header.Set(CallerHeader, addr.Hex())
	h.ServeHTTP(httptest.NewRecorder(), r)
	require.True(t, ok)
	require.Equal(t, addr, seen)

	ok = false
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/tasks", nil))
	require.False(t, ok)

	w := httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodPost, "/v1/tasks", nil)
	r.Header.Set(CallerHeader, "0xzz")
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
