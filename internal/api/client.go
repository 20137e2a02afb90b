package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// ErrOrderNotFound is returned when the order service has no order with the
// requested number.
var ErrOrderNotFound = errors.New("order not found")

// ErrAssignFailed is returned by Fulfill when the order was marked shipped
// but could not be assigned. The result is still returned alongside it.
var ErrAssignFailed = errors.New("order shipped but not assigned")

// Client talks to the order fulfillment service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	config     *ClientConfig
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// ClientConfig configures the API client behavior
type ClientConfig struct {
	BaseURL        string
	APIKey         string
	APISecret      string
	Timeout        time.Duration
	RetryCount     int
	RetryDelay     time.Duration
	BackoffFactor  float64
	UserAgent      string
	AssigneeUserID string
	NotifyCustomer bool
}

// Order is the subset of an order record the fulfillment flow needs.
type Order struct {
	OrderID     int64  `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
	OrderKey    string `json:"orderKey,omitempty"`
	OrderStatus string `json:"orderStatus"`
}

type ordersResponse struct {
	Orders []Order `json:"orders"`
	Total  int     `json:"total"`
}

// ShipRequest is the payload of a mark-as-shipped call.
type ShipRequest struct {
	OrderID        int64  `json:"orderId"`
	CarrierCode    string `json:"carrierCode"`
	ShipDate       string `json:"shipDate"`
	TrackingNumber string `json:"trackingNumber"`
	NotifyCustomer bool   `json:"notifyCustomer"`
	NotifySalesCh  bool   `json:"notifySalesChannel"`
}

type assignUserRequest struct {
	OrderIDs []int64 `json:"orderIds"`
	UserID   string  `json:"userId"`
}

// FulfillmentResult describes what Fulfill did for one label.
type FulfillmentResult struct {
	OrderID        int64  `json:"order_id"`
	OrderNumber    string `json:"order_number"`
	TrackingNumber string `json:"tracking_number"`
	CarrierCode    string `json:"carrier_code"`
	Assigned       bool   `json:"assigned"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Message          string `json:"Message"`
	ExceptionMessage string `json:"ExceptionMessage,omitempty"`
}

func (e ErrorResponse) text() string {
	if e.ExceptionMessage != "" {
		return e.ExceptionMessage
	}
	return e.Message
}

// NewClient creates a new API client. Zero fields get defaults.
func NewClient(config *ClientConfig, logger *slog.Logger) *Client {
	if config == nil {
		config = &ClientConfig{}
	}
	cfg := *config

	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "label-processor/1.0"
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 1 * time.Second
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = 2.0
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     &cfg,
		logger:     logger,
		sleep:      sleepContext,
	}
}

// FindOrder looks up an order by its order number. When several orders
// share the number, one awaiting shipment wins.
func (c *Client) FindOrder(ctx context.Context, orderNumber string) (*Order, error) {
	path := "/orders?orderNumber=" + url.QueryEscape(orderNumber)

	var resp ordersResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("find order %s: %w", orderNumber, err)
	}

	var match *Order
	for i := range resp.Orders {
		o := &resp.Orders[i]
		if !strings.EqualFold(o.OrderNumber, orderNumber) {
			continue
		}
		if o.OrderStatus == "awaiting_shipment" {
			return o, nil
		}
		if match == nil {
			match = o
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderNumber)
	}
	return match, nil
}

// MarkShipped records the shipment of an order.
func (c *Client) MarkShipped(ctx context.Context, req ShipRequest) error {
	if err := c.do(ctx, http.MethodPost, "/orders/markasshipped", req, nil); err != nil {
		return fmt.Errorf("mark order %d shipped: %w", req.OrderID, err)
	}
	return nil
}

// AssignUser assigns orders to a user.
func (c *Client) AssignUser(ctx context.Context, orderIDs []int64, userID string) error {
	body := assignUserRequest{OrderIDs: orderIDs, UserID: userID}
	if err := c.do(ctx, http.MethodPost, "/orders/assignuser", body, nil); err != nil {
		return fmt.Errorf("assign orders to %s: %w", userID, err)
	}
	return nil
}

// Fulfill finds the order, marks it shipped with the tracking number and,
// when an assignee is configured, assigns it. A failed assignment returns
// the result together with an error wrapping ErrAssignFailed.
func (c *Client) Fulfill(ctx context.Context, orderNumber, trackingNumber string) (*FulfillmentResult, error) {
	order, err := c.FindOrder(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	carrier := CarrierCode(trackingNumber)
	ship := ShipRequest{
		OrderID:        order.OrderID,
		CarrierCode:    carrier,
		ShipDate:       time.Now().Format("2006-01-02"),
		TrackingNumber: trackingNumber,
		NotifyCustomer: c.config.NotifyCustomer,
		NotifySalesCh:  c.config.NotifyCustomer,
	}
	if err := c.MarkShipped(ctx, ship); err != nil {
		return nil, err
	}

	result := &FulfillmentResult{
		OrderID:        order.OrderID,
		OrderNumber:    order.OrderNumber,
		TrackingNumber: trackingNumber,
		CarrierCode:    carrier,
	}

	if c.config.AssigneeUserID != "" {
		if err := c.AssignUser(ctx, []int64{order.OrderID}, c.config.AssigneeUserID); err != nil {
			return result, fmt.Errorf("%w: %w", ErrAssignFailed, err)
		}
		result.Assigned = true
	}

	c.logger.Info("order fulfilled",
		"order_number", order.OrderNumber,
		"order_id", order.OrderID,
		"tracking_number", trackingNumber,
		"carrier", carrier,
		"assigned", result.Assigned)
	return result, nil
}

// HealthCheck verifies the API is reachable and the credentials are accepted.
func (c *Client) HealthCheck(ctx context.Context) error {
	var resp ordersResponse
	if err := c.doOnce(ctx, http.MethodGet, "/orders?pageSize=1", nil, &resp); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// GetBaseURL returns the configured base URL
func (c *Client) GetBaseURL() string {
	return c.baseURL
}

var uspsTracking = regexp.MustCompile(`^\d{20,22}$`)

// CarrierCode infers the carrier from the shape of a tracking number.
// All-digit 20 to 22 character numbers (9205..., 9400...) are USPS.
func CarrierCode(trackingNumber string) string {
	if uspsTracking.MatchString(trackingNumber) {
		return "usps"
	}
	return "other"
}

// do executes a request with retry and exponential backoff.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var lastErr error
	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		err := c.doOnce(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		lastErr = err

		if !c.isRetryableError(err) {
			return err
		}

		// Don't sleep after the last attempt
		if attempt < c.config.RetryCount {
			delay := c.calculateBackoffDelay(attempt)
			c.logger.Warn("retrying fulfillment request",
				"method", method,
				"path", path,
				"attempt", attempt+1,
				"delay", delay,
				"error", err)
			if err := c.sleep(ctx, delay); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("request failed after %d attempts: %w", c.config.RetryCount+1, lastErr)
}

// doOnce executes a single HTTP request
func (c *Client) doOnce(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	if c.config.APIKey != "" {
		req.SetBasicAuth(c.config.APIKey, c.config.APISecret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &RetryableError{Message: fmt.Sprintf("HTTP request failed: %v", err), Retryable: true}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil || len(respBody) == 0 {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		return nil

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &RetryableError{
			Message:    fmt.Sprintf("server error (%d): %s", resp.StatusCode, errorText(respBody)),
			StatusCode: resp.StatusCode,
			Retryable:  true,
		}

	default:
		return &RetryableError{
			Message:    fmt.Sprintf("API error (%d): %s", resp.StatusCode, errorText(respBody)),
			StatusCode: resp.StatusCode,
			Retryable:  false,
		}
	}
}

func errorText(body []byte) string {
	var errorResp ErrorResponse
	if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.text() != "" {
		return errorResp.text()
	}
	return strings.TrimSpace(string(body))
}

// isRetryableError determines if an error should trigger a retry
func (c *Client) isRetryableError(err error) bool {
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}
	return false
}

// calculateBackoffDelay calculates the delay for exponential backoff
func (c *Client) calculateBackoffDelay(attempt int) time.Duration {
	baseDelay := c.config.RetryDelay

	// Exponential backoff: delay = baseDelay * (backoffFactor ^ attempt)
	multiplier := 1.0
	for i := 0; i < attempt; i++ {
		multiplier *= c.config.BackoffFactor
	}

	delay := time.Duration(float64(baseDelay) * multiplier)

	maxDelay := 30 * time.Second
	if delay > maxDelay {
		delay = maxDelay
	}

	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryableError represents an HTTP failure and whether it may be retried.
type RetryableError struct {
	Message    string
	StatusCode int
	Retryable  bool
}

func (e *RetryableError) Error() string {
	return e.Message
}
