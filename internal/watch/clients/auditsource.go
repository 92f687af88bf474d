package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"driftwatch/internal/watch/models"
)

// AuditSourceClient pulls setup audit events over HTTP.
type AuditSourceClient struct {
	client httpClient
}

// NewAuditSourceClient builds an audit source client against baseURL.
func NewAuditSourceClient(baseURL, token string, timeout time.Duration) *AuditSourceClient {
	return &AuditSourceClient{
		client: httpClient{
			base:  baseURL,
			token: token,
			http:  &http.Client{Timeout: timeout},
		},
	}
}

// FetchSince returns events with occurred_at strictly after the cursor.
func (c *AuditSourceClient) FetchSince(ctx context.Context, orgID string, since time.Time) ([]models.RawEvent, error) {
	path := fmt.Sprintf("/orgs/%s/audit-events?since=%s",
		url.PathEscape(orgID), url.QueryEscape(since.Format(time.RFC3339Nano)))

	var events []models.RawEvent
	if err := c.client.doJSON(ctx, http.MethodGet, path, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// FetchWindow returns events from the trailing window, for manual lookback.
func (c *AuditSourceClient) FetchWindow(ctx context.Context, orgID string, hours int) ([]models.RawEvent, error) {
	path := fmt.Sprintf("/orgs/%s/audit-events?hours=%d", url.PathEscape(orgID), hours)

	var events []models.RawEvent
	if err := c.client.doJSON(ctx, http.MethodGet, path, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}
