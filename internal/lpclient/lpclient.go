// Package lpclient implements thin typed HTTP wrappers over one
// intermediary's init/poll/capability endpoints. Grounded on
// internal/registry/client.go's timeout-bounded http.Client idiom
// (itself grounded on internal/backend/mempool.go), narrowed here to
// the per-swap request/response shapes instead of the registry's
// signed-envelope discovery shape.
package lpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/klingon-exchange/atomiq-core/pkg/logging"
)

// RequestError wraps a non-2xx HTTP response from an intermediary.
type RequestError struct {
	HTTPCode int
	Body     string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("lpclient: request failed with status %d: %s", e.HTTPCode, e.Body)
}

// OutOfBoundsError is parsed from a structured error body when the
// requested amount falls outside the LP's advertised min/max for the
// (chain, token) pair.
type OutOfBoundsError struct {
	Min uint64
	Max uint64
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("lpclient: amount out of bounds [%d, %d]", e.Min, e.Max)
}

// errorBody is the structured shape an intermediary returns for
// OutOfBoundsError; any other non-2xx body becomes a plain RequestError.
type errorBody struct {
	Code string `json:"code"`
	Min  uint64 `json:"min"`
	Max  uint64 `json:"max"`
}

// Client issues requests against one or more intermediary base URLs. One
// Client is shared across every LP the engine talks to; callers pass the
// base URL per call.
type Client struct {
	httpClient *http.Client
	log        *logging.Logger
}

// NewClient builds a Client with the given per-request timeout. A zero
// timeout defaults to 20s, matching §5's request-deadline discipline.
func NewClient(timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		log:        logging.GetDefault().Component("lpclient"),
	}
}

func (c *Client) doJSON(ctx context.Context, method, url string, reqBody interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		bodyReader = strings.NewReader(string(encoded))
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// get performs a GET and decodes a single JSON value into result.
func (c *Client) get(ctx context.Context, url string, result interface{}) error {
	resp, err := c.doJSON(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeOrError(resp, result)
}

func decodeOrError(resp *http.Response, result interface{}) error {
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var eb errorBody
		if json.Unmarshal(body, &eb) == nil && eb.Code == "out_of_bounds" {
			return &OutOfBoundsError{Min: eb.Min, Max: eb.Max}
		}
		return &RequestError{HTTPCode: resp.StatusCode, Body: string(body)}
	}
	if result == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(result)
}
