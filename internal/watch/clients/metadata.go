package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"driftwatch/internal/watch/enrich"
	"driftwatch/pkg/platform/circuit"
	"driftwatch/pkg/platform/sentinel"
)

// MetadataClient resolves item definitions from the metadata service.
type MetadataClient struct {
	client  httpClient
	breaker *circuit.Breaker
	logger  *slog.Logger
}

// NewMetadataClient builds a metadata client with a circuit breaker.
func NewMetadataClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *MetadataClient {
	return &MetadataClient{
		client: httpClient{
			base:  baseURL,
			token: token,
			http:  &http.Client{Timeout: timeout},
		},
		breaker: circuit.New("metadata-service", circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(2)),
		logger:  logger,
	}
}

func (c *MetadataClient) do(ctx context.Context, method, path string, body, out any) error {
	// An open breaker sheds the call before it reaches the wire; only the
	// occasional probe it admits pays a real timeout. A shed call surfaces as
	// ErrUnavailable, a normal enrichment failure.
	if !c.breaker.Allow() {
		return fmt.Errorf("metadata service: %w", sentinel.ErrUnavailable)
	}

	err := c.client.doJSON(ctx, method, path, body, out)
	if err != nil && !errors.Is(err, errNotFound) {
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.logger.Warn("metadata service circuit opened", "error", err)
		}
		return err
	}
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.Info("metadata service circuit closed")
	}
	return err
}

// GetCurrent implements enrich.MetadataService.
func (c *MetadataClient) GetCurrent(ctx context.Context, orgID, itemName string) (*enrich.Definition, error) {
	path := fmt.Sprintf("/orgs/%s/items/%s", url.PathEscape(orgID), url.PathEscape(itemName))
	var def enrich.Definition
	if err := c.do(ctx, http.MethodGet, path, nil, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

// GetPrevious implements enrich.MetadataService. A missing prior version is
// data, not an error: it returns (nil, nil).
func (c *MetadataClient) GetPrevious(ctx context.Context, orgID, itemName string, before time.Time) (*enrich.Definition, error) {
	path := fmt.Sprintf("/orgs/%s/items/%s/previous?before=%s",
		url.PathEscape(orgID), url.PathEscape(itemName), url.QueryEscape(before.Format(time.RFC3339Nano)))
	var def enrich.Definition
	err := c.do(ctx, http.MethodGet, path, nil, &def)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &def, nil
}

// FindReferencingParents implements enrich.MetadataService.
func (c *MetadataClient) FindReferencingParents(ctx context.Context, orgID, itemName string) ([]enrich.Item, error) {
	path := fmt.Sprintf("/orgs/%s/items/%s/parents", url.PathEscape(orgID), url.PathEscape(itemName))
	var items []enrich.Item
	if err := c.do(ctx, http.MethodGet, path, nil, &items); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return items, nil
}
