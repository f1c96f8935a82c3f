package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// HTTPClient implements KVClient using the jkh HTTP/JSON API.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://127.0.0.1:8765").
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Key/value ---

func (c *HTTPClient) ListKeys(ctx context.Context, owner string) ([]string, error) {
	var resp struct {
		Keys []string `json:"keys"`
	}
	path := "/api/store_keys?" + url.Values{"owner": {owner}}.Encode()
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Keys, nil
}

func (c *HTTPClient) Get(ctx context.Context, owner, key string) (string, error) {
	var resp struct {
		Value string `json:"value"`
	}
	path := "/api/store?" + url.Values{"owner": {owner}, "key": {key}}.Encode()
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	return resp.Value, nil
}

func (c *HTTPClient) Set(ctx context.Context, owner, key, value string) error {
	body := map[string]string{"owner": owner, "key": key, "value": value}
	return c.doJSON(ctx, http.MethodPost, "/api/store", body, nil)
}

func (c *HTTPClient) Delete(ctx context.Context, owner, key string) (bool, error) {
	var resp struct {
		Deleted bool `json:"deleted"`
	}
	body := map[string]string{"owner": owner, "key": key}
	if err := c.doJSON(ctx, http.MethodDelete, "/api/store", body, &resp); err != nil {
		return false, err
	}
	return resp.Deleted, nil
}

// --- Admin ---

// Health fetches /api/health. A degraded server answers 503 with a full
// report, which is returned together with the *APIError.
func (c *HTTPClient) Health(ctx context.Context) (*HealthReport, error) {
	var report HealthReport
	err := c.doJSON(ctx, http.MethodGet, "/api/health", nil, &report)
	if err != nil && report.Status == "" {
		return nil, err
	}
	return &report, err
}

func (c *HTTPClient) Config(ctx context.Context) (*AppConfig, error) {
	var cfg AppConfig
	if err := c.doJSON(ctx, http.MethodGet, "/api/config", nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *HTTPClient) InitDB(ctx context.Context) (string, error) {
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/admin/initdb", nil, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Probe issues a GET to path and succeeds on any 2xx status. The body is
// not inspected.
func (c *HTTPClient) Probe(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return nil
}

// --- internal helpers ---

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded. On an error status the
// body is still decoded into result when it parses.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		if result != nil {
			_ = json.Unmarshal(respBody, result)
		}
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
