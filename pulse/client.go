package pulse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Default connection settings for the hosted API.
const (
	DefaultBaseURL    = "https://api.dapulse.com"
	DefaultAPIVersion = "v1"
)

// Transport issues authenticated calls against the API and returns the
// decoded JSON body. Paths are relative to the versioned API root, for
// example "/boards/12.json".
type Transport interface {
	Get(ctx context.Context, path string, params Params) (json.RawMessage, error)
	Post(ctx context.Context, path string, params Params) (json.RawMessage, error)
	Put(ctx context.Context, path string, params Params) (json.RawMessage, error)
	Delete(ctx context.Context, path string, params Params) (json.RawMessage, error)
}

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// APIKey is attached to every outgoing request.
	APIKey string
	// BaseURL is the protocol and host, e.g. "https://api.dapulse.com".
	BaseURL string
	// APIVersion is the first path segment, e.g. "v1".
	APIVersion string
	// HTTPClient is used for all requests. If nil, a client with a 30s
	// timeout is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client is the HTTP implementation of Transport. It performs no retries;
// non-success statuses are surfaced as *HTTPError.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new API client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("pulse: APIKey is required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("pulse: invalid BaseURL %q: %w", baseURL, err)
	}

	version := config.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		apiKey:     config.APIKey,
		baseURL:    strings.TrimRight(baseURL, "/") + "/" + strings.Trim(version, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Get performs an HTTP GET with params encoded in the query string.
func (c *Client) Get(
	ctx context.Context,
	path string,
	params Params,
) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, params)
}

// Post performs an HTTP POST with params sent as a form body.
func (c *Client) Post(
	ctx context.Context,
	path string,
	params Params,
) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, params)
}

// Put performs an HTTP PUT with params sent as a form body.
func (c *Client) Put(
	ctx context.Context,
	path string,
	params Params,
) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPut, path, params)
}

// Delete performs an HTTP DELETE with params encoded in the query string.
func (c *Client) Delete(
	ctx context.Context,
	path string,
	params Params,
) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, path, params)
}

// do builds the request, attaches the API key, and decodes the response.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	params Params,
) (json.RawMessage, error) {
	query := url.Values{}
	var bodyReader io.Reader
	encoded := encodeParams(params)

	switch method {
	case http.MethodPost, http.MethodPut:
		bodyReader = strings.NewReader(encoded.Encode())
	default:
		query = encoded
	}
	query.Set("api_key", c.apiKey)

	fullURL := c.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{
			Method: method,
			Path:   path,
			Err:    fmt.Errorf("reading response body: %w", err),
		}
	}

	c.logger.Debug("pulse request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody),
		}
	}

	if len(strings.TrimSpace(string(respBody))) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(respBody) {
		return nil, fmt.Errorf("decoding response from %s %s: invalid JSON", method, path)
	}
	return json.RawMessage(respBody), nil
}

// errorMessage extracts a best-effort message from an error body.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(body))
}
