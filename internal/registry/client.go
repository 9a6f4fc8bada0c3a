package registry

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

// Client fetches the registry source and per-LP envelopes over HTTP, the
// same timeout-bounded http.Client idiom as backend.MempoolBackend.
type Client struct {
	httpClient *http.Client
	log        *logging.Logger
}

// NewClient builds a Client with the given request timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		log:        logging.GetDefault().Component("registry-client"),
	}
}

// FetchSourceList retrieves the newline- or JSON-array-delimited list of LP
// base URLs from a registry source URL.
func (c *Client) FetchSourceList(ctx context.Context, sourceURL string) ([]string, error) {
	body, err := c.get(ctx, sourceURL)
	if err != nil {
		return nil, fmt.Errorf("fetch registry source: %w", err)
	}

	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var urls []string
		if err := json.Unmarshal(body, &urls); err != nil {
			return nil, fmt.Errorf("decode registry source list: %w", err)
		}
		return urls, nil
	}

	var urls []string
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			urls = append(urls, line)
		}
	}
	return urls, nil
}

// FetchEnvelope retrieves one LP's signed envelope from its /info endpoint.
// The raw bytes are returned alongside the parsed struct because the
// signature in §4.2.1 is computed over the envelope's wire bytes, not a
// re-marshaled copy — re-encoding could reorder fields and break the check.
func (c *Client) FetchEnvelope(ctx context.Context, lpURL string) (*envelope, []byte, error) {
	body, err := c.get(ctx, strings.TrimSuffix(lpURL, "/")+"/info")
	if err != nil {
		return nil, nil, fmt.Errorf("fetch envelope from %s: %w", lpURL, err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, nil, fmt.Errorf("decode envelope from %s: %w", lpURL, err)
	}
	return &env, body, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
