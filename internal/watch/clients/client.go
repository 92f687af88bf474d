// Package clients holds thin HTTP clients for the external collaborators:
// the audit source, the metadata service, and the summarization service.
//
// Credential lifecycle is out of scope here: each client sends a static
// bearer token and expects the deployment to rotate it. The metadata and
// summarizer clients sit behind circuit breakers so a dead collaborator
// degrades enrichment fast instead of timing out once per change.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"driftwatch/pkg/platform/sentinel"
)

type httpClient struct {
	base  string
	token string
	http  *http.Client
}

// errNotFound distinguishes a 404 from transport failure; callers that treat
// absence as data (previous versions) branch on it.
var errNotFound = sentinel.ErrNotFound

// doJSON performs one request and decodes a JSON response into out. A nil out
// discards the body. Non-2xx statuses map to errors; 404 maps to errNotFound.
func (c *httpClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
