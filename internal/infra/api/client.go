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
	"strings"
	"time"

	"rentsync/internal/app/policies"
	"rentsync/internal/domain/conversations"
	"rentsync/internal/domain/requests"
	"rentsync/internal/infra/obs"
	"rentsync/internal/infra/wire"
)

const maxErrorBody = 4096

// Client talks to the marketplace backend REST API. It implements
// policies.RequestsPort and policies.ConversationsPort.
type Client struct {
	HTTP    *http.Client
	BaseURL string
	Token   string
	Logger  *slog.Logger
}

func New(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		HTTP:    &http.Client{Timeout: timeout},
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Logger:  logger,
	}
}

type createRequestBody struct {
	ListingID  string     `json:"listingId"`
	Message    string     `json:"message,omitempty"`
	MoveInDate *time.Time `json:"moveInDate,omitempty"`
}

type updateStatusBody struct {
	Status string `json:"status"`
}

func (c *Client) StatusByListing(ctx context.Context, listingID requests.ListingID) (*policies.StatusSnapshot, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/listings/"+url.PathEscape(string(listingID))+"/requests/status", nil)
	if err != nil {
		return nil, err
	}
	status, id, ok, err := wire.DecodeStatus(body)
	if err != nil || !ok {
		return nil, err
	}
	return &policies.StatusSnapshot{Status: status, RequestID: id}, nil
}

func (c *Client) CreateRequest(ctx context.Context, input requests.CreateInput) (requests.Request, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/v1/requests", createRequestBody{
		ListingID:  string(input.ListingID),
		Message:    input.Message,
		MoveInDate: input.MoveInDate,
	})
	if err != nil {
		return requests.Request{}, err
	}
	return wire.DecodeRequest(body)
}

func (c *Client) UpdateRequestStatus(ctx context.Context, id requests.RequestID, status requests.Status) (requests.Request, error) {
	body, err := c.do(ctx, http.MethodPatch, "/api/v1/requests/"+url.PathEscape(string(id))+"/status", updateStatusBody{Status: string(status)})
	if err != nil {
		return requests.Request{}, err
	}
	return wire.DecodeRequest(body)
}

func (c *Client) ListRequests(ctx context.Context) ([]requests.Request, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/requests", nil)
	if err != nil {
		return nil, err
	}
	items, skipped, err := wire.DecodeRequests(body)
	if err != nil {
		return nil, err
	}
	if skipped > 0 && c.Logger != nil {
		c.Logger.Warn("malformed requests skipped", "count", skipped)
	}
	return items, nil
}

func (c *Client) AllConversations(ctx context.Context) ([]conversations.Conversation, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/conversations", nil)
	if err != nil {
		return nil, err
	}
	items, skipped, err := wire.DecodeConversations(body)
	if err != nil {
		return nil, err
	}
	if skipped > 0 && c.Logger != nil {
		c.Logger.Warn("malformed conversations skipped", "count", skipped)
	}
	return items, nil
}

// Ping checks that the backend answers at all.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/livez", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("api: backend unhealthy: %d", resp.StatusCode)
	}
	return nil
}

// do sends one JSON request. 429 maps to policies.ErrRateLimited; any other
// non-2xx maps to *policies.RemoteError with the server's message.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if c == nil || c.HTTP == nil {
		return nil, errors.New("api: http client not configured")
	}
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if id := obs.RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.logError("backend request failed", method, path, err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%s %s: %w", method, path, policies.ErrRateLimited)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		remote := &policies.RemoteError{StatusCode: resp.StatusCode, Message: wire.ErrorMessage(snippet)}
		c.logError("backend returned error", method, path, fmt.Errorf("status %d: %s", resp.StatusCode, remote.Message))
		return nil, remote
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) logError(msg, method, path string, err error) {
	if c.Logger == nil {
		return
	}
	c.Logger.Error(msg, "method", method, "path", path, "error", err)
}

var (
	_ policies.RequestsPort      = (*Client)(nil)
	_ policies.ConversationsPort = (*Client)(nil)
)
