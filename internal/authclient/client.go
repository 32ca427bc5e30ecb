// Package authclient is imported by the employee and attendance services, not by the auth
// server itself. They use it to call back into the auth API with the caller's own
// Authorization header, e.g. to deactivate a terminated employee's account.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"staffhub/internal/entity"

	"github.com/sirupsen/logrus"
)

const defaultTimeout = 10 * time.Second

// Error is a non-2xx answer from the auth API.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("auth api: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("auth api: %s (%d): %s", e.Code, e.Status, e.Message)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the API mounted at baseURL, e.g. http://auth:3001/api/auth.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errors.New("auth base url is not configured")
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid auth base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: trimmed, httpClient: httpClient}, nil
}

// SetActiveStatus activates or deactivates userID. authorization is forwarded unchanged.
func (c *Client) SetActiveStatus(ctx context.Context, authorization, userID string, active bool) (*entity.SetActiveStatusResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user id is required")
	}
	body := map[string]bool{"is_active": active}
	var out entity.SetActiveStatusResponse
	path := "/users/" + url.PathEscape(userID) + "/active"
	if err := c.do(ctx, http.MethodPatch, path, authorization, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUserByEmail looks up a user summary by email.
func (c *Client) GetUserByEmail(ctx context.Context, authorization, email string) (*entity.UserSummary, error) {
	if strings.TrimSpace(email) == "" {
		return nil, errors.New("email is required")
	}
	var out entity.UserSummary
	if err := c.do(ctx, http.MethodGet, "/users/email/"+url.PathEscape(email), authorization, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path, authorization string, payload any, out any) error {
	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call auth api: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read auth api response: %w", err)
	}

	envelope := struct {
		Success bool            `json:"success"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
		Code    *string         `json:"code"`
	}{}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return &Error{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !envelope.Success {
		apiErr := &Error{Status: resp.StatusCode, Message: envelope.Message}
		if envelope.Code != nil {
			apiErr.Code = *envelope.Code
		}
		logrus.WithFields(logrus.Fields{
			"method": method,
			"path":   path,
			"status": resp.StatusCode,
			"code":   apiErr.Code,
		}).Warn("auth api call failed")
		return apiErr
	}

	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode auth api data: %w", err)
	}
	return nil
}
