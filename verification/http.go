package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/verilayer/verilayer/log"
)

const (
	moduleName = "verification"

	defaultTimeout = 30 * time.Second
)

// HTTPGame delegates adjudication to an external service. The disputed
// task is POSTed as JSON to the endpoint, which answers with
// {"verdict": "solver_correct" | "solver_incorrect"}.
type HTTPGame struct {
	endpoint   string
	httpClient *http.Client
	logger     *log.Logger
}

var _ Game = (*HTTPGame)(nil)

// NewHTTPGame creates a client for the adjudicator at endpoint. A zero
// timeout selects a default.
func NewHTTPGame(endpoint string, timeout time.Duration, logger *log.Logger) *HTTPGame {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &HTTPGame{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.WithModule(moduleName),
	}
}

// Play implements Game.
func (g *HTTPGame) Play(ctx context.Context, in Input) (Verdict, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return VerdictNone, err
	}
	g.logger.Debug("adjudicator call", "url", g.endpoint, "task_id", in.TaskID, "disputants", len(in.Disputants))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return VerdictNone, err
	}
	req.Header.Set("content-type", "application/json")

	res, err := g.httpClient.Do(req)
	if err != nil {
		return VerdictNone, fmt.Errorf("adjudicator call failure: %w", err)
	}
	defer res.Body.Close()
	resp, err := io.ReadAll(res.Body)
	if err != nil {
		return VerdictNone, fmt.Errorf("failed to read response body: %w", err)
	}

	g.logger.Debug("adjudicator call response", "url", g.endpoint, "task_id", in.TaskID, "status", res.Status, "response_body", string(resp))
	if res.StatusCode != http.StatusOK {
		return VerdictNone, fmt.Errorf("adjudicator call failure: %s", res.Status)
	}

	var response struct {
		Verdict string `json:"verdict"`
	}
	if err = json.Unmarshal(resp, &response); err != nil {
		return VerdictNone, fmt.Errorf("failed to parse adjudicator response: %w", err)
	}
	return ParseVerdict(response.Verdict)
}
