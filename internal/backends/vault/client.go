package vault

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/systmms/credstore/internal/logging"
	"github.com/systmms/credstore/internal/secure"
)

// Client is the transport interface to a Vault server, extracted so tests
// can stub responses without a live server.
type Client interface {
	Read(ctx context.Context, path string) (*APIResponse, error)
	List(ctx context.Context, path string) ([]string, error)
	Health(ctx context.Context) error
	Close() error
}

// APIResponse is the subset of Vault's read response the backend consumes.
type APIResponse struct {
	Data          map[string]interface{} `json:"data"`
	LeaseDuration int                    `json:"lease_duration"`
}

// apiError carries the HTTP status so the backend can classify it.
type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("vault returned status %d: %s", e.StatusCode, e.Body)
}

// httpClient talks to Vault over its HTTP API. The token lives in a
// protected buffer and is only decrypted for the duration of each request.
type httpClient struct {
	address   string
	namespace string
	token     *secure.Buffer
	http      *http.Client
}

func newHTTPClient(address, namespace, token string, timeout time.Duration, tlsSkip bool) *httpClient {
	c := &http.Client{Timeout: timeout}
	if tlsSkip {
		c.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &httpClient{
		address:   strings.TrimSuffix(address, "/"),
		namespace: namespace,
		token:     secure.NewBufferFromString(token),
		http:      c,
	}
}

// redactToken scrubs the auth token from text that ends up in error
// messages. Vault echoes request headers back in some proxy error pages.
func (c *httpClient) redactToken(s string) string {
	out := s
	_ = c.token.WithString(func(token string) error {
		out = logging.Redact(out, []string{token})
		return nil
	})
	return out
}

func (c *httpClient) do(ctx context.Context, method, path string) (*http.Response, error) {
	url := c.address + "/v1/" + strings.TrimPrefix(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	err = c.token.WithString(func(token string) error {
		req.Header.Set("X-Vault-Token", token)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if c.namespace != "" {
		req.Header.Set("X-Vault-Namespace", c.namespace)
	}
	return c.http.Do(req)
}

// Read performs a GET on path. A 404 returns (nil, nil).
func (c *httpClient) Read(ctx context.Context, path string) (*APIResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &apiError{StatusCode: resp.StatusCode, Body: c.redactToken(string(body))}
	}

	var out APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// List performs a LIST on path and returns the key names. A 404 returns an
// empty slice: Vault answers 404 for empty prefixes.
func (c *httpClient) List(ctx context.Context, path string) ([]string, error) {
	resp, err := c.do(ctx, "LIST", path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &apiError{StatusCode: resp.StatusCode, Body: c.redactToken(string(body))}
	}

	var out struct {
		Data struct {
			Keys []string `json:"keys"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode list response: %w", err)
	}
	return out.Data.Keys, nil
}

// Health probes sys/health. Vault answers non-200 codes for sealed or
// standby states; anything other than 200 or 429 (standby, still serving
// reads) is unhealthy.
func (c *httpClient) Health(ctx context.Context) error {
	url := c.address + "/v1/sys/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != 429 {
		return fmt.Errorf("vault health returned status %d", resp.StatusCode)
	}
	return nil
}

// Close wipes the token buffer.
func (c *httpClient) Close() error {
	c.token.Destroy()
	return nil
}
