package clients

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"driftwatch/internal/watch/enrich"
	"driftwatch/pkg/platform/circuit"
	"driftwatch/pkg/platform/sentinel"
)

// SummarizerClient requests natural-language diff summaries. The wording of
// summaries is entirely the service's concern; this client only moves JSON.
type SummarizerClient struct {
	client  httpClient
	breaker *circuit.Breaker
	logger  *slog.Logger
}

// NewSummarizerClient builds a summarizer client with a circuit breaker. AI
// calls are slow, so the timeout here is typically much larger than the
// metadata client's.
func NewSummarizerClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *SummarizerClient {
	return &SummarizerClient{
		client: httpClient{
			base:  baseURL,
			token: token,
			http:  &http.Client{Timeout: timeout},
		},
		breaker: circuit.New("summarizer", circuit.WithFailureThreshold(3), circuit.WithSuccessThreshold(2)),
		logger:  logger,
	}
}

type summarizeRequest struct {
	Previous string `json:"previous"`
	Current  string `json:"current"`
	Context  string `json:"context,omitempty"`
}

// SummarizeDiff implements enrich.Summarizer.
func (c *SummarizerClient) SummarizeDiff(ctx context.Context, previous, current, changeContext string) (*enrich.DiffSummary, error) {
	// An open breaker sheds the call before it reaches the wire; only the
	// occasional probe it admits pays the (long) summarization timeout.
	if !c.breaker.Allow() {
		return nil, fmt.Errorf("summarizer: %w", sentinel.ErrUnavailable)
	}

	summary, err := c.call(ctx, previous, current, changeContext)
	if err != nil {
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.logger.Warn("summarizer circuit opened", "error", err)
		}
		return nil, err
	}
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.Info("summarizer circuit closed")
	}
	return summary, nil
}

func (c *SummarizerClient) call(ctx context.Context, previous, current, changeContext string) (*enrich.DiffSummary, error) {
	req := summarizeRequest{Previous: previous, Current: current, Context: changeContext}
	var summary enrich.DiffSummary
	if err := c.client.doJSON(ctx, http.MethodPost, "/summarize-diff", req, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}
