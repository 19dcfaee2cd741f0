package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/AhmedBakrXI/GeoMap/internal/model"
)

const historyPath = "/history"

// maxErrorBody caps how much of a failed response is kept for the error message.
const maxErrorBody = 512

// PageFetcher interface for testability
type PageFetcher interface {
	FetchPage(ctx context.Context, page, pageSize int, snapshotMaxID *int64) (*model.PageResult, error)
}

type HistoryClient struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewHistoryClient builds a client for the history endpoint. ratePerSec <= 0
// disables request throttling.
func NewHistoryClient(baseURL string, ratePerSec int, timeout time.Duration, logger *zap.Logger) *HistoryClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := &http.Transport{
		Proxy:              http.ProxyFromEnvironment,
		MaxIdleConns:       100,
		MaxConnsPerHost:    10,
		IdleConnTimeout:    90 * time.Second,
		DisableCompression: true, // gzhttp negotiates and decodes
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if ratePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec*2)
	}

	return &HistoryClient{
		httpClient: &http.Client{
			Transport: gzhttp.Transport(transport),
			Timeout:   timeout,
		},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		limiter: limiter,
		logger:  logger,
	}
}

// FetchPage requests a single history page. When snapshotMaxID is nil the
// origin computes the snapshot boundary and returns it in MaxID; otherwise
// the returned records are bounded by it. Failures are never retried here.
func (c *HistoryClient) FetchPage(ctx context.Context, page, pageSize int, snapshotMaxID *int64) (*model.PageResult, error) {
	if page < 1 || pageSize < 1 {
		return nil, fmt.Errorf("%w: page=%d page_size=%d", ErrInvalidRequest, page, pageSize)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{Page: page, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(pageSize))
	if snapshotMaxID != nil {
		query.Set("before_id", strconv.FormatInt(*snapshotMaxID, 10))
	}
	reqURL := c.baseURL + historyPath + "?" + query.Encode()

	c.logger.Debug("requesting history page", zap.String("url", reqURL), zap.Int("page", page))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &FetchError{Page: page, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Page: page, Err: fmt.Errorf("executing request: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &FetchError{Page: page, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var result model.PageResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &FetchError{Page: page, Err: fmt.Errorf("decoding response: %w", err)}
	}

	c.logger.Debug("history page received",
		zap.Int("page", result.Page),
		zap.Int("total_pages", result.TotalPages),
		zap.Int("records", len(result.Data)),
		zap.Int64("max_id", result.MaxID),
	)

	return &result, nil
}
