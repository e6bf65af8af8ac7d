package analytics

import (
	"bytes"
	"carepulse/app/config"
	"carepulse/app/util/apperr"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/samber/do"
	"github.com/samber/oops"
)

// ErrBadShape marks a backend reply whose data field is neither a plain
// string nor {output: string}. Treated as a soft failure by the
// conversation flow: the user sees a "couldn't process" message and the
// conversation continues.
var ErrBadShape = errors.New("unexpected backend response shape")

// Client wraps the remote workflow engine. All transport and status
// failures are tagged with an apperr category at this boundary so the
// retry layer never inspects error text.
type Client struct {
	cfg        *config.Config
	httpClient *http.Client
}

func NewClient(di *do.Injector) (*Client, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Backend.Timeout,
		},
	}, nil
}

func (c *Client) Query(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", oops.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Backend.URL, bytes.NewReader(body))
	if err != nil {
		return "", oops.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", apperr.New(apperr.KindOf(err), fmt.Errorf("backend call failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", apperr.NewHTTP(resp.StatusCode, fmt.Errorf("backend returned %s", resp.Status))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.New(apperr.KindNetwork, fmt.Errorf("failed to read response: %w", err))
	}

	var parsed response
	if err = json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("%w: %s", ErrBadShape, truncate(string(data), 200))
	}

	if !parsed.Success {
		return "", c.classifyBackendError(parsed.Error)
	}

	output, ok := parseOutput(parsed.Data)
	if !ok {
		return "", ErrBadShape
	}

	return output, nil
}

// classifyBackendError maps success:false error text to a category using
// the configured keyword lists. The mapping is configuration, not code:
// backend wording changes should not require a release.
func (c *Client) classifyBackendError(text string) error {
	lower := strings.ToLower(text)

	for _, kw := range c.cfg.Retry.AuthKeywords {
		if strings.Contains(lower, kw) {
			return apperr.New(apperr.KindAuth, fmt.Errorf("backend error: %s", text))
		}
	}

	for _, kw := range c.cfg.Retry.RateLimitKeywords {
		if strings.Contains(lower, kw) {
			return apperr.New(apperr.KindRateLimit, fmt.Errorf("backend error: %s", text))
		}
	}

	slog.Debug("Backend reported failure", "error", text)

	return apperr.New(apperr.KindNetwork, fmt.Errorf("backend error: %s", text))
}

func parseOutput(data json.RawMessage) (string, bool) {
	if len(data) == 0 {
		return "", false
	}

	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		return plain, true
	}

	var wrapped outputWrapper
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Output != "" {
		return wrapped.Output, true
	}

	return "", false
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}

	return s[:limit] + "..."
}
