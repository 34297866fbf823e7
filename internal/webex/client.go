// Package webex is a minimal client for the Webex Teams REST API,
// covering the resources the bot needs: people, rooms, messages and
// webhooks.
package webex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL    = "https://webexapis.com/v1"
	DefaultTimeout    = 20 * time.Second
	DefaultMaxRetries = 3

	retryBaseDelay  = 500 * time.Millisecond
	retryMaxDelay   = 10 * time.Second
	maxResponseSize = 10 * 1024 * 1024
)

type APIError struct {
	StatusCode int
	Message    string
	TrackingID string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.TrackingID != "" {
		return fmt.Sprintf("webex api error (HTTP %d, tracking %s): %s", e.StatusCode, e.TrackingID, e.Message)
	}
	return fmt.Sprintf("webex api error (HTTP %d): %s", e.StatusCode, e.Message)
}

type apiErrorResponse struct {
	Message    string `json:"message"`
	TrackingID string `json:"trackingId"`
}

type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

func NewClient(token string) *Client {
	return &Client{
		token:   strings.TrimSpace(token),
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		maxRetries: DefaultMaxRetries,
	}
}

func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.httpClient.Timeout = timeout
	return c
}

func (c *Client) WithMaxRetries(maxRetries int) *Client {
	c.maxRetries = maxRetries
	return c
}

func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	c.httpClient = httpClient
	return c
}

// GetMe returns the account the access token belongs to.
func (c *Client) GetMe(ctx context.Context) (*Person, error) {
	var person Person
	if err := c.get(ctx, "/people/me", nil, &person); err != nil {
		return nil, err
	}
	return &person, nil
}

func (c *Client) ListRooms(ctx context.Context, limit int) ([]Room, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("max", strconv.Itoa(limit))
	}
	var list roomList
	if err := c.get(ctx, "/rooms", query, &list); err != nil {
		return nil, err
	}
	return list.Items, nil
}

// ListMessages returns the latest messages of a room, newest first.
func (c *Client) ListMessages(ctx context.Context, roomID string, limit int) ([]Message, error) {
	query := url.Values{}
	query.Set("roomId", roomID)
	if limit > 0 {
		query.Set("max", strconv.Itoa(limit))
	}
	var list messageList
	if err := c.get(ctx, "/messages", query, &list); err != nil {
		return nil, err
	}
	return list.Items, nil
}

// GetMessage fetches a single message by ID. Webhook callbacks carry no
// message text, so the bot has to fetch the full message itself.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	var message Message
	if err := c.get(ctx, "/messages/"+url.PathEscape(messageID), nil, &message); err != nil {
		return nil, err
	}
	return &message, nil
}

func (c *Client) CreateMessage(ctx context.Context, request CreateMessageRequest) (*Message, error) {
	var message Message
	if err := c.post(ctx, "/messages", request, &message); err != nil {
		return nil, err
	}
	return &message, nil
}

func (c *Client) ListWebhooks(ctx context.Context, limit int) ([]Webhook, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("max", strconv.Itoa(limit))
	}
	var list webhookList
	if err := c.get(ctx, "/webhooks", query, &list); err != nil {
		return nil, err
	}
	return list.Items, nil
}

func (c *Client) CreateWebhook(ctx context.Context, request CreateWebhookRequest) (*Webhook, error) {
	var webhook Webhook
	if err := c.post(ctx, "/webhooks", request, &webhook); err != nil {
		return nil, err
	}
	return &webhook, nil
}

func (c *Client) DeleteWebhook(ctx context.Context, webhookID string) error {
	return c.do(ctx, http.MethodDelete, "/webhooks/"+url.PathEscape(webhookID), nil, nil, nil)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, in, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(attempt, lastErr)):
			}
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, requestURL, body)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		err = c.doOnce(req, out)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) doOnce(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp, body)
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err = json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == maxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", maxResponseSize)
	}
	return body, nil
}

func newAPIError(resp *http.Response, body []byte) error {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}
	var parsed apiErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		apiErr.Message = parsed.Message
		apiErr.TrackingID = parsed.TrackingID
	}
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
			apiErr.RetryAfter = time.Duration(seconds) * time.Second
		}
	}
	return apiErr
}

func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// backoff honors the Retry-After header on rate limit responses and
// falls back to capped exponential delays otherwise.
func backoff(attempt int, lastErr error) time.Duration {
	var apiErr *APIError
	if errors.As(lastErr, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter
	}
	delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
