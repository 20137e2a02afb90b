package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"label-processor/internal/database"
	"label-processor/internal/parser"
)

// Client talks to a running label-processor server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return NewClientWithTimeout(baseURL, 30*time.Second)
}

// NewClientWithTimeout creates a new API client with a request timeout
func NewClientWithTimeout(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// APIError represents an error from the API
type APIError struct {
	Code    int    `json:"-"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

// doRequest performs an HTTP request and handles errors
func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()

		apiErr := APIError{Code: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
		return nil, &apiErr
	}

	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// HealthCheck checks if the API server is healthy
func (c *Client) HealthCheck(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/health", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Extract sends label text to the server for recognition.
func (c *Client) Extract(ctx context.Context, text, filename string) (*parser.Report, error) {
	var report parser.Report
	body := map[string]string{"text": text, "filename": filename}
	if err := c.getJSON(ctx, http.MethodPost, "/api/extract", body, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Documents lists ledger entries. failuresOnly narrows to failed and errored documents.
func (c *Client) Documents(ctx context.Context, limit int, failuresOnly bool) ([]database.Document, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if failuresOnly {
		query.Set("status", "failed")
	}
	path := "/api/documents"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var docs []database.Document
	if err := c.getJSON(ctx, http.MethodGet, path, nil, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// Stats returns the server's ledger summary.
func (c *Client) Stats(ctx context.Context) (*database.DocumentStats, error) {
	var stats database.DocumentStats
	if err := c.getJSON(ctx, http.MethodGet, "/api/documents/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
