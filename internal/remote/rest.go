// Package remote defines the row-oriented contract the sync engine
// depends on, independent of any specific backend implementation.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/karkhana/billsync/internal/models"
)

// RESTClient talks to the central backend's row service over
// HTTP/JSON:
//
//	POST   {base}/rows/{table}/query   body: Query       -> [row...]
//	POST   {base}/rows/{table}         body: row         -> row
//	PATCH  {base}/rows/{table}/{id}    body: fields      -> row
//	DELETE {base}/rows/{table}/{id}                      -> 204
//
// Errors come back as {"code": "...", "message": "..."}.
type RESTClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewRESTClient creates a client for the given base URL. token is sent
// as a bearer token on every request; pass "" for unauthenticated
// backends.
func NewRESTClient(baseURL, token string, timeout time.Duration) *RESTClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RESTClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// Select implements Client.
func (c *RESTClient) Select(ctx context.Context, q Query) ([]models.Row, error) {
	var rows []models.Row
	url := fmt.Sprintf("%s/rows/%s/query", c.baseURL, q.Table)
	if err := c.do(ctx, http.MethodPost, url, q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Insert implements Client.
func (c *RESTClient) Insert(ctx context.Context, table string, row models.Row) (models.Row, error) {
	var stored models.Row
	url := fmt.Sprintf("%s/rows/%s", c.baseURL, table)
	if err := c.do(ctx, http.MethodPost, url, row, &stored); err != nil {
		return nil, err
	}
	return stored, nil
}

// Update implements Client.
func (c *RESTClient) Update(ctx context.Context, table, id string, fields models.Row) (models.Row, error) {
	var stored models.Row
	url := fmt.Sprintf("%s/rows/%s/%s", c.baseURL, table, id)
	if err := c.do(ctx, http.MethodPatch, url, fields, &stored); err != nil {
		return nil, err
	}
	return stored, nil
}

// Delete implements Client.
func (c *RESTClient) Delete(ctx context.Context, table, id string) error {
	url := fmt.Sprintf("%s/rows/%s/%s", c.baseURL, table, id)
	return c.do(ctx, http.MethodDelete, url, nil, nil)
}

// do performs one request, decoding a structured error on non-2xx
// responses.
func (c *RESTClient) do(ctx context.Context, method, url string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		remoteErr := &Error{StatusCode: resp.StatusCode, Message: resp.Status}
		var payload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16)); err == nil {
			if json.Unmarshal(data, &payload) == nil && payload.Message != "" {
				remoteErr.Code = payload.Code
				remoteErr.Message = payload.Message
			}
		}
		return remoteErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
