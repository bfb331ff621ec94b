package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/JaimeStill/tayyib/internal/normalize"
)

// maxResponseSize bounds the classifier response body.
const maxResponseSize = 8 << 20

type httpClassifier struct {
	client   *retryablehttp.Client
	endpoint string
	apiKey   string
	logger   *slog.Logger
}

func newHTTP(cfg *Config, logger *slog.Logger) (*httpClassifier, error) {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Timeout: cfg.TimeoutDuration()}
	rc.RetryMax = cfg.RetryCount()
	rc.RetryWaitMin = cfg.RetryWaitDuration()
	rc.RetryWaitMax = cfg.RetryWaitDuration() * 8
	rc.Logger = logger

	return &httpClassifier{
		client:   rc,
		endpoint: strings.TrimSuffix(cfg.BaseURL, "/") + "/classify",
		apiKey:   cfg.APIKey,
		logger:   logger,
	}, nil
}

func (c *httpClassifier) Provider() string {
	return ProviderHTTP
}

func (c *httpClassifier) Classify(ctx context.Context, req Request) ([]normalize.Record, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransient, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrTransient, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrTransient, resp.StatusCode, truncate(string(data), 256))
	}

	return ParseResponse(string(data))
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
