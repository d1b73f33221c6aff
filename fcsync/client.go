package fcsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrFetchFailed wraps a fetch that exhausted its retry budget. It aborts the
// current kind's run only; sibling kinds keep their own cycles.
var ErrFetchFailed = errors.New("fc fetch failed")

const fetchMaxAttempts = 5

// Client pulls one page of one entity kind per call. Retries happen inside
// FetchPage; callers never see a transient failure before the ceiling.
type Client struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
	limiter   <-chan time.Time
	backoff   time.Duration
}

func NewClient(apiKey string) (*Client, error) {
	baseURL := strings.TrimSpace(os.Getenv("FC_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.fc.example.org"
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("FC_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("fc api key is empty")
	}
	rateLimitPerMin := int64(30)
	if v := strings.TrimSpace(os.Getenv("FC_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiKeyHdr: apiKeyHeader,
		http:      &http.Client{Timeout: 60 * time.Second},
		limiter:   time.Tick(interval),
		backoff:   2 * time.Second,
	}, nil
}

// FetchPage GETs one page for kind and returns it as an explicit value. The
// response body must be a JSON array; pagination comes from the TotalObjects,
// TotalPages, PageNumber and PSize headers. Transient failures (non-2xx,
// missing body, undecodable array) are retried up to the ceiling with sleep
// backoff; then the error wraps ErrFetchFailed.
func (c *Client) FetchPage(ctx context.Context, kind EntityKind, path string, params url.Values) (*Page, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= fetchMaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff * time.Duration(attempt-1)):
			}
		}

		page, err := c.fetchOnce(ctx, kind, endpoint)
		if err == nil {
			return page, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: kind=%s after %d attempts: %v", ErrFetchFailed, kind, fetchMaxAttempts, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, kind EntityKind, endpoint string) (*Page, error) {
	if c.limiter != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.limiter:
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(c.apiKeyHdr, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fc api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, errors.New("fc api returned an empty body")
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("fc api returned a non-array body: %v", err)
	}

	page := &Page{
		Kind:         kind,
		Items:        items,
		PageNumber:   headerInt(resp.Header, "PageNumber", 1),
		TotalPages:   headerInt(resp.Header, "TotalPages", 1),
		TotalObjects: headerInt(resp.Header, "TotalObjects", len(items)),
		PageSize:     headerInt(resp.Header, "PSize", len(items)),
	}
	return page, nil
}

func headerInt(h http.Header, key string, def int) int {
	v := strings.TrimSpace(h.Get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
