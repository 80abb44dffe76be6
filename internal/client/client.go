// Package client talks to the closet activity API on behalf of the CLI.
package client

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

	"example.com/closet/internal/feed"
)

// ErrUnauthorized is returned when the API rejects the stored token.
var ErrUnauthorized = errors.New("unauthorized: log in again")

// APIError is a non-successful API response.
type APIError struct {
	Status int
	Type   string
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("activity api: %d %s: %s", e.Status, e.Type, e.Detail)
	}
	return "activity api: " + http.StatusText(e.Status)
}

// Client calls the activity API with the stored bearer token.
type Client struct {
	http    *http.Client
	baseURL string
	tokens  TokenStore
}

// New constructs a Client. baseURL includes the version prefix, for
// example http://localhost:8080/v1.
func New(baseURL string, tokens TokenStore, timeout time.Duration) *Client {
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
	}
}

// FetchActivity returns up to limit of the user's records, newest first.
// A limit of zero leaves the page size to the server.
func (c *Client) FetchActivity(ctx context.Context, limit int) ([]feed.Record, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var body json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/users/me/activity", query, nil, nil, &body); err != nil {
		return nil, err
	}
	return decodeRecords(body)
}

// RecordInput is a new activity record.
type RecordInput struct {
	Kind           feed.Kind
	Description    string
	At             time.Time
	IdempotencyKey string
}

// RecordActivity posts a record and returns its ID.
func (c *Client) RecordActivity(ctx context.Context, in RecordInput) (string, error) {
	payload := map[string]string{
		"kind":        string(in.Kind),
		"description": in.Description,
		"timestamp":   in.At.Format(time.RFC3339Nano),
		"source":      "cli",
	}
	var headers http.Header
	if in.IdempotencyKey != "" {
		headers = http.Header{"Idempotency-Key": []string{in.IdempotencyKey}}
	}

	var resp struct {
		ActivityID string `json:"activity_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/users/me/activity", nil, headers, payload, &resp); err != nil {
		return "", err
	}
	return resp.ActivityID, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, headers http.Header, in, out any) error {
	token, err := c.tokens.Load()
	if err != nil {
		return err
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		var problem struct {
			Type   string `json:"type"`
			Detail string `json:"detail"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&problem) == nil {
			apiErr.Type, apiErr.Detail = problem.Type, problem.Detail
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeRecords accepts either a bare array of records or the paged
// {"items": [...]} envelope.
func decodeRecords(body json.RawMessage) ([]feed.Record, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var records []feed.Record
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("decode records: %w", err)
		}
		return records, nil
	}

	var page struct {
		Items []feed.Record `json:"items"`
	}
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	if page.Items == nil {
		return []feed.Record{}, nil
	}
	return page.Items, nil
}
