// Package remote talks to the shared alert store over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mr1hm/go-lifeline/internal/models"
)

// ErrRejected means the server understood the request and refused it.
// Retrying the same payload will not help.
var ErrRejected = errors.New("request rejected by server")

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

type appendResponse struct {
	ID string `json:"id"`
}

// Append stores alert and returns the id the server assigned.
func (c *Client) Append(ctx context.Context, alert *models.Alert) (string, error) {
	body, err := json.Marshal(alert)
	if err != nil {
		return "", fmt.Errorf("error encoding alert: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/alerts", bytes.NewReader(body), nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", statusError(resp)
	}

	var data appendResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("error decoding resp.Body: %w", err)
	}
	if data.ID == "" {
		return "", errors.New("server returned no alert id")
	}
	return data.ID, nil
}

// Complete marks the caller's own alert as completed.
func (c *Client) Complete(ctx context.Context, id, userID string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/api/alerts/"+id, nil, map[string]string{"X-User-Id": userID})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return statusError(resp)
	}
	return nil
}

// Ping reports whether the server answers its health check.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error while doing request: %w", err)
	}
	return resp, nil
}

func statusError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload)

	msg := payload.Error
	if msg == "" {
		msg = resp.Status
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return fmt.Errorf("%w: %d %s", ErrRejected, resp.StatusCode, msg)
	}
	return fmt.Errorf("unexpected status code: %d - %s", resp.StatusCode, msg)
}
