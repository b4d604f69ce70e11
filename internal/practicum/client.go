package practicum

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	logx "hwbot/pkg/logx"
)

const defaultHTTPTimeout = 5 * time.Second

type ClientConfig struct {
	Token    string
	Endpoint string        // defaults to DefaultEndpoint
	Timeout  time.Duration // defaults to 5s
}

// Client issues one GET per poll cycle against the homework status endpoint.
// It never retries; re-invocation on the next cycle is the only retry policy.
type Client struct {
	mu       sync.RWMutex
	endpoint string
	token    string
	httpc    *http.Client
	log      logx.Logger
}

func NewClient(cfg ClientConfig, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Client{log: log}
	c.Apply(cfg)
	return c
}

// Apply swaps credentials/endpoint/timeout at runtime (config hot reload).
func (c *Client) Apply(cfg ClientConfig) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	c.mu.Lock()
	c.endpoint = endpoint
	c.token = cfg.Token
	if c.httpc == nil || c.httpc.Timeout != timeout {
		c.httpc = &http.Client{Timeout: timeout}
	}
	c.mu.Unlock()
}

// Fetch requests homework updates since the cursor (a Unix timestamp).
//
// Failure modes:
//   - network problem or non-200 status -> *TransportError
//   - undecodable body -> the decoder's error, surfaced as-is
//
// On success it returns the decoded body as a generic JSON value; shape
// checking is ValidateResponse's job.
func (c *Client) Fetch(ctx context.Context, cursor int64) (any, error) {
	c.mu.RLock()
	endpoint := c.endpoint
	token := c.token
	httpc := c.httpc
	c.mu.RUnlock()

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("practicum: bad endpoint %q: %w", endpoint, err)
	}
	q := u.Query()
	q.Set("from_date", strconv.FormatInt(cursor, 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "OAuth "+token)

	c.log.Debug("fetching homework statuses", logx.Int64("from_date", cursor))

	resp, err := httpc.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{StatusCode: resp.StatusCode}
	}

	var body any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("practicum: decode response: %w", err)
	}
	return body, nil
}
