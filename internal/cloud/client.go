// Package cloud implements the authenticated HTTP client for the central
// pharmacy service: login, paginated incremental pull, and batched push of
// pending changes.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	backoffBase = 500 * time.Millisecond
	backoffCap  = 5 * time.Second
)

// Client talks to the cloud service on behalf of one branch
type Client struct {
	http       *http.Client
	maxRetries int
}

// New creates a cloud client with a bounded per-request timeout
func New(timeout time.Duration, maxRetries int) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Client{
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		maxRetries: maxRetries,
	}
}

// NormalizeServerURL validates and canonicalizes a user-entered server URL
func NormalizeServerURL(raw string) (string, error) {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if raw == "" {
		return "", fmt.Errorf("server URL is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("malformed server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("server URL must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server URL has no host")
	}
	return u.String(), nil
}

// Login authenticates the branch against the cloud service
func (c *Client) Login(ctx context.Context, serverURL, email, password, branchCode string) (*Credentials, error) {
	body := map[string]string{
		"email":       email,
		"password":    password,
		"branch_code": branchCode,
	}

	var creds Credentials
	err := c.doJSON(ctx, http.MethodPost, serverURL+"/api/v1/branch/login", "", body, &creds)
	if err != nil {
		if errors.Is(err, ErrAuthExpired) {
			return nil, fmt.Errorf("%w", ErrInvalidCredentials)
		}
		var srvErr *ServerError
		if errors.As(err, &srvErr) && srvErr.Status == http.StatusForbidden {
			return nil, fmt.Errorf("%w", ErrInvalidCredentials)
		}
		return nil, err
	}
	if creds.Token == "" {
		return nil, fmt.Errorf("%w: login response carried no token", ErrBadRequest)
	}
	creds.BranchCode = branchCode
	return &creds, nil
}

// Pull fetches one page of server changes for an entity type since a cursor.
// The caller loops until HasMore is false.
func (c *Client) Pull(ctx context.Context, serverURL, token, entityType, cursor string, limit int) (*PullPage, error) {
	endpoint := fmt.Sprintf("%s/api/v1/sync/%s?cursor=%s&limit=%s",
		serverURL, entityType, url.QueryEscape(cursor), strconv.Itoa(limit))

	var page PullPage
	if err := c.doJSON(ctx, http.MethodGet, endpoint, token, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Push uploads one batch of pending changes. Partial acceptance is returned
// in the result, never as an error.
func (c *Client) Push(ctx context.Context, serverURL, token, entityType string, changes []ChangeUpload) (*PushResult, error) {
	endpoint := fmt.Sprintf("%s/api/v1/sync/%s/push", serverURL, entityType)

	body := map[string]interface{}{"changes": changes}
	var result PushResult
	if err := c.doJSON(ctx, http.MethodPost, endpoint, token, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Ping checks reachability of the cloud service without authentication
func (c *Client) Ping(ctx context.Context, serverURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL+"/api/v1/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode < 500
}

// doJSON performs one logical request with capped exponential backoff on
// transient failures only.
func (c *Client) doJSON(ctx context.Context, method, endpoint, token string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffBase << (attempt - 1)
			if delay > backoffCap {
				delay = backoffCap
			}
			log.Printf("⏳ Cloud call retry %d/%d in %v: %v", attempt, c.maxRetries-1, delay, lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = c.doOnce(ctx, method, endpoint, token, payload, out)
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, endpoint, token string, payload []byte, out interface{}) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w", ErrAuthExpired)
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests {
			// Wrap both so callers can match the sentinel and still read the status
			return fmt.Errorf("%w: %w", ErrBadRequest, &ServerError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))})
		}
		return &ServerError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
