package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/log"
	"github.com/patrickmn/go-cache"
)

// DefaultBaseURL is the hosted backend
const DefaultBaseURL = "https://backend-vert-zeta-89.vercel.app"

// Default per-operation timeouts
const (
	DefaultQueryTimeout    = 30 * time.Second
	DefaultStatusTimeout   = 10 * time.Second
	DefaultHealthTimeout   = 5 * time.Second
	DefaultFeedbackTimeout = 10 * time.Second

	statusCacheTTL = time.Minute
	statusCacheKey = "content-status"
	maxBodyBytes   = 4 << 20
)

// Client talks to the question-answering backend
type Client struct {
	baseURL string
	http    *http.Client
	logger  *log.Logger
	clock   clock.Clock

	queryTimeout    time.Duration
	statusTimeout   time.Duration
	healthTimeout   time.Duration
	feedbackTimeout time.Duration

	statusCache *cache.Cache
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithClock sets the clock used for the content-status fallback date
func WithClock(cl clock.Clock) Option {
	return func(c *Client) { c.clock = cl }
}

// WithQueryTimeout bounds Query
func WithQueryTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.queryTimeout = d
		}
	}
}

// WithStatusTimeout bounds ContentStatus
func WithStatusTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.statusTimeout = d
		}
	}
}

// WithHealthTimeout bounds Health and CheckConnection
func WithHealthTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.healthTimeout = d
		}
	}
}

// WithFeedbackTimeout bounds SubmitFeedback and ReportIssue
func WithFeedbackTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.feedbackTimeout = d
		}
	}
}

// NewClient creates a client for the backend at baseURL. An empty baseURL
// selects DefaultBaseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		http:            &http.Client{},
		clock:           clock.New(),
		queryTimeout:    DefaultQueryTimeout,
		statusTimeout:   DefaultStatusTimeout,
		healthTimeout:   DefaultHealthTimeout,
		feedbackTimeout: DefaultFeedbackTimeout,
		statusCache:     cache.New(statusCacheTTL, 2*statusCacheTTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.Default().WithPrefix("api")
	}
	return c
}

// BaseURL returns the backend base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Query validates req and asks the backend for an answer
func (c *Client) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	if err := ValidateQuestion(req.Question); err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(req.Context) > MaxContextLength {
		return nil, validationError(msgContextTooLong)
	}

	var resp QueryResponse
	if err := c.do(ctx, http.MethodPost, "/api/query", c.queryTimeout, req, &resp, msgQueryFailed); err != nil {
		return nil, err
	}
	if resp.Citations == nil {
		resp.Citations = []Citation{}
	}
	return &resp, nil
}

// ValidateQuestion applies the client-side question rules
func ValidateQuestion(question string) error {
	if strings.TrimSpace(question) == "" {
		return validationError(msgEmptyQuestion)
	}
	if utf8.RuneCountInString(question) > MaxQuestionLength {
		return validationError(msgQuestionTooLong)
	}
	return nil
}

// ContentStatus returns the indexing status. It never fails: any error yields
// a conservative default. Successful results are cached for a minute.
func (c *Client) ContentStatus(ctx context.Context) ContentStatus {
	if cached, ok := c.statusCache.Get(statusCacheKey); ok {
		return cached.(ContentStatus)
	}

	var status ContentStatus
	if err := c.do(ctx, http.MethodGet, "/api/content-status", c.statusTimeout, nil, &status, "Failed to fetch content status"); err != nil {
		c.logger.Debug("content status unavailable", "err", err)
		return c.defaultContentStatus()
	}
	if status.IndexedModules == nil {
		status.IndexedModules = []string{}
	}
	c.statusCache.SetDefault(statusCacheKey, status)
	return status
}

func (c *Client) defaultContentStatus() ContentStatus {
	return ContentStatus{
		LastUpdated:      c.clock.Now().UTC().Format(time.DateOnly),
		ContentVersion:   "unknown",
		IndexedModules:   []string{},
		TotalChunks:      0,
		IndexingComplete: false,
	}
}

// InvalidateContentStatus drops the cached content status
func (c *Client) InvalidateContentStatus() {
	c.statusCache.Delete(statusCacheKey)
}

// Health fetches the backend health report
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var health HealthStatus
	if err := c.do(ctx, http.MethodGet, "/health", c.healthTimeout, nil, &health, "Health check failed"); err != nil {
		return nil, err
	}
	return &health, nil
}

// CheckConnection reports whether the backend answers its health check.
// Any 2xx counts; the body is not read.
func (c *Client) CheckConnection(ctx context.Context) bool {
	return c.do(ctx, http.MethodGet, "/health", c.healthTimeout, nil, nil, "Health check failed") == nil
}

// SubmitFeedback rates an answer
func (c *Client) SubmitFeedback(ctx context.Context, req FeedbackRequest) (*FeedbackResponse, error) {
	if strings.TrimSpace(req.MessageID) == "" {
		return nil, validationError("Message ID is required")
	}
	if req.Rating != RatingUp && req.Rating != RatingDown {
		return nil, validationError("Rating must be 'up' or 'down'")
	}

	var resp FeedbackResponse
	if err := c.do(ctx, http.MethodPost, "/api/feedback", c.feedbackTimeout, req, &resp, msgFeedbackFailed); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReportIssue flags an answer as problematic
func (c *Client) ReportIssue(ctx context.Context, req ReportIssueRequest) (*ReportIssueResponse, error) {
	if strings.TrimSpace(req.MessageID) == "" {
		return nil, validationError("Message ID is required")
	}
	if !req.IssueType.Valid() {
		return nil, validationError("Issue type must be one of incorrect, incomplete, harmful, other")
	}
	req.Description = strings.TrimSpace(req.Description)
	if utf8.RuneCountInString(req.Description) > MaxDescriptionLength {
		return nil, validationError("Description must be 1000 characters or less")
	}

	var resp ReportIssueResponse
	if err := c.do(ctx, http.MethodPost, "/api/report-issue", c.feedbackTimeout, req, &resp, msgReportFailed); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do performs one JSON round trip bounded by timeout and classifies every
// failure into an *Error. fallback is the message for non-2xx responses
// without a usable detail.
func (c *Client) do(ctx context.Context, method, path string, timeout time.Duration, body, out any, fallback string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindValidation, Message: "failed to encode request", Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Kind: KindNetwork, Message: msgNetwork, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportError(ctx, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return c.transportError(ctx, method, path, err)
	}

	c.logger.Debug("backend request", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(started))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp, data, fallback)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: KindHTTP, Message: fallback, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func (c *Client) transportError(ctx context.Context, method, path string, err error) error {
	c.logger.Debug("backend request failed", "method", method, "path", path, "err", err)

	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Kind: KindTimeout, Message: msgTimeout, Err: err}
	}
	return &Error{Kind: KindNetwork, Message: msgNetwork, Err: err}
}

func statusError(resp *http.Response, body []byte, fallback string) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := strings.TrimSpace(resp.Header.Get("Retry-After"))
		if retryAfter == "" {
			retryAfter = defaultRetryAfter
		}
		apiErr := &Error{
			Kind:       KindRateLimit,
			Message:    fmt.Sprintf("Rate limit exceeded. Please try again in %s seconds.", retryAfter),
			StatusCode: resp.StatusCode,
		}
		if d, err := time.ParseDuration(retryAfter + "s"); err == nil {
			apiErr.RetryAfter = d
		}
		return apiErr

	case resp.StatusCode >= 500:
		return &Error{Kind: KindServer, Message: msgServer, StatusCode: resp.StatusCode}

	default:
		msg := fallback
		if detail := errorDetail(body); detail != "" {
			msg = detail
		}
		return &Error{Kind: KindHTTP, Message: msg, StatusCode: resp.StatusCode}
	}
}

// errorDetail extracts a string "detail" field. Structured details, such as
// validation error lists, are ignored.
func errorDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}
	var detail string
	if err := json.Unmarshal(payload.Detail, &detail); err != nil {
		return ""
	}
	return strings.TrimSpace(detail)
}
