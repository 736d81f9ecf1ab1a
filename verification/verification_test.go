package verification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/verilayer/verilayer/commitment"
	"github.com/verilayer/verilayer/log"
)

func TestVerdictStrings(t *testing.T) {
	for _, v := range []Verdict{SolverCorrect, SolverIncorrect} {
		parsed, err := ParseVerdict(v.String())
		require.NoError(t, err)
		require.Equal(t, v, parsed)
		require.True(t, v.Final())
	}
	require.False(t, VerdictNone.Final())
	_, err := ParseVerdict("none")
	require.Error(t, err)
}

func TestStaticAndFunc(t *testing.T) {
	ctx := context.Background()
	v, err := Static(SolverIncorrect).Play(ctx, Input{})
	require.NoError(t, err)
	require.Equal(t, SolverIncorrect, v)

	var seen Input
	game := Func(func(ctx context.Context, in Input) (Verdict, error) {
		seen = in
		return SolverCorrect, nil
	})
	v, err = game.Play(ctx, Input{TaskID: 4})
	require.NoError(t, err)
	require.Equal(t, SolverCorrect, v)
	require.Equal(t, uint64(4), seen.TaskID)
}

func TestHTTPGame(t *testing.T) {
	disputant := ethCommon.HexToAddress("0xd15")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var in Input
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		verdict := SolverCorrect
		if in.Result == commitment.WordFromUint64(0) {
			verdict = SolverIncorrect
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"verdict": verdict.String()})
	}))
	defer server.Close()

	game := NewHTTPGame(server.URL, time.Second, log.NewDefaultLogger("verification-test"))
	v, err := game.Play(context.Background(), Input{
		TaskID:     1,
		Result:     commitment.WordFromUint64(7),
		Disputants: []ethCommon.Address{disputant},
	})
	require.NoError(t, err)
	require.Equal(t, SolverCorrect, v)

	v, err = game.Play(context.Background(), Input{TaskID: 2})
	require.NoError(t, err)
	require.Equal(t, SolverIncorrect, v)
}

func TestHTTPGameErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/garbage" {
			_, _ = w.Write([]byte(`{"verdict": "draw"}`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	logger := log.NewDefaultLogger("verification-test")
	_, err := NewHTTPGame(server.URL, time.Second, logger).Play(context.Background(), Input{})
	require.Error(t, err)
	_, err = NewHTTPGame(server.URL+"/garbage", time.Second, logger).Play(context.Background(), Input{})
	require.Error(t, err)
}
