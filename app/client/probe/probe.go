package probe

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/do"
)

// Client issues lightweight reachability checks. It never returns an
// error: any failure, including timeout and cancellation, reads as
// "unreachable". Retry policy belongs to the caller.
type Client struct {
	httpClient *http.Client
}

func NewClient(_ *do.Injector) (*Client, error) {
	return &Client{
		httpClient: &http.Client{},
	}, nil
}

func (c *Client) Probe(ctx context.Context, endpoint string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		slog.Debug("Probe request build failed", "endpoint", endpoint, "error", err)
		return false
	}

	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode < 500
}
