package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

type Config struct {
	BaseURL        string
	Timeout        time.Duration
	DefaultHeaders map[string]string
}

type RequestOptions struct {
	OmitAuth     bool
	ExtraHeaders map[string]string
}

type RawResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

func (r *RawResponse) Header(name string) string {
	if r == nil {
		return ""
	}
	return r.Headers.Get(name)
}

// Client issues JSON requests against the gaming platform under test.
// The bearer token is swapped by the session manager between probes, so
// access to it goes through its own lock.
type Client struct {
	baseURL  string
	defaults map[string]string
	client   *http.Client

	mu     sync.Mutex
	bearer string
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	defaults := make(map[string]string, len(cfg.DefaultHeaders))
	for k, v := range cfg.DefaultHeaders {
		defaults[k] = v
	}
	return &Client{
		baseURL:  baseURL,
		defaults: defaults,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) AuthToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bearer
}

func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bearer = token
}

func (c *Client) Do(ctx context.Context, method, path string, body any, opts RequestOptions) (*RawResponse, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		payload = b
	}
	return c.doWithPayload(ctx, method, path, payload, opts)
}

func (c *Client) DoPayload(ctx context.Context, method, path string, payload []byte, opts RequestOptions) (*RawResponse, error) {
	return c.doWithPayload(ctx, method, path, payload, opts)
}

func (c *Client) doWithPayload(ctx context.Context, method, path string, payload []byte, opts RequestOptions) (*RawResponse, error) {
	fullURL := c.baseURL + path
	var reader io.Reader
	if len(payload) > 0 {
		reader = bytes.NewReader(payload)
	}

	request, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if len(payload) > 0 {
		request.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.defaults {
		request.Header.Set(k, v)
	}
	if !opts.OmitAuth {
		if token := c.AuthToken(); token != "" {
			request.Header.Set("Authorization", "Bearer "+token)
		}
	}
	for k, v := range opts.ExtraHeaders {
		if v == "" {
			request.Header.Del(k)
			continue
		}
		request.Header.Set(k, v)
	}

	start := time.Now()
	response, err := c.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer response.Body.Close()

	bodyBytes, readErr := io.ReadAll(response.Body)
	raw := &RawResponse{
		StatusCode: response.StatusCode,
		Headers:    response.Header.Clone(),
		Body:       bodyBytes,
		Duration:   time.Since(start),
	}
	if readErr != nil {
		return raw, fmt.Errorf("read response body: %w", readErr)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return raw, &APIError{
			StatusCode: response.StatusCode,
			Envelope:   ParseEnvelope(bodyBytes),
			Body:       bodyBytes,
		}
	}
	return raw, nil
}

func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
