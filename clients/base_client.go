package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// APIError is returned for any non-2xx response so callers can branch
// on the status code instead of parsing error strings.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API returned status code: %d, response: %s", e.StatusCode, e.Body)
}

// BaseClient carries the HTTP plumbing shared by API clients: base URL,
// default headers, timeout, and non-2xx handling.
type BaseClient struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

func NewBaseClient(baseURL string) *BaseClient {
	return &BaseClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers: make(map[string]string),
	}
}

func (c *BaseClient) SetHeader(key, value string) {
	c.headers[key] = value
}

func (c *BaseClient) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

// MakeRequest issues one HTTP request and returns the raw response
// body. Non-2xx responses come back as *APIError.
func (c *BaseClient) MakeRequest(ctx context.Context, method, endpoint string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(responseBody)}
	}

	return responseBody, nil
}

// GetJSON issues a GET and unmarshals the response into out.
func (c *BaseClient) GetJSON(ctx context.Context, endpoint string, out interface{}) error {
	body, err := c.MakeRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return decodeJSON(body, out)
}

// PostJSON marshals in as the request body, issues a POST, and
// unmarshals the response into out. A nil in sends an empty body; a
// nil out discards the response.
func (c *BaseClient) PostJSON(ctx context.Context, endpoint string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	responseBody, err := c.MakeRequest(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	return decodeJSON(responseBody, out)
}

// DeleteJSON issues a DELETE and unmarshals the response into out.
func (c *BaseClient) DeleteJSON(ctx context.Context, endpoint string, out interface{}) error {
	body, err := c.MakeRequest(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	return decodeJSON(body, out)
}

func decodeJSON(body []byte, out interface{}) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	return nil
}
