package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apihttp "github.com/fyrsmithlabs/escrowd/internal/http"
	"github.com/fyrsmithlabs/escrowd/pkg/auth"
)

// apiError is a non-2xx response from escrowd.
type apiError struct {
	Status int
	apihttp.ErrorResponse
}

func (e *apiError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned status %d", e.Status)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// client calls the escrowd JSON API as one caller.
type client struct {
	baseURL string
	caller  string
	header  string
	http    *http.Client
}

func newClient(baseURL, caller string, timeout time.Duration) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		caller:  caller,
		header:  auth.DefaultCallerHeader,
		http:    &http.Client{Timeout: timeout},
	}
}

// do sends in as JSON and decodes the response into out. Either may be nil.
func (c *client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.caller != "" {
		req.Header.Set(c.header, c.caller)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &apiError{Status: resp.StatusCode}
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		_ = json.Unmarshal(data, &apiErr.ErrorResponse)
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func taskPath(name string, rest ...string) string {
	p := "/api/v1/tasks/" + url.PathEscape(name)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}
