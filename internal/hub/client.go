// Package hub fetches model metadata and README files from the public model hub.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/model-catalog/internal/metrics"
	"github.com/JakeFAU/model-catalog/internal/policy/ratelimit"
)

// NoReadme replaces the README when it cannot be fetched.
const NoReadme = "No README available"

// Config controls the hub client.
type Config struct {
	APIBaseURL        string
	RawBaseURL        string
	Token             string
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxAttempts       int
}

// ModelInfo is the subset of hub metadata the catalog keeps. Pointer fields
// are nil when the hub omitted them.
type ModelInfo struct {
	ModelID      string
	Author       *string
	Downloads    *int64
	Likes        *int64
	Tags         []string
	PipelineTag  *string
	Description  *string
	ModelType    *string
	LastModified *string
	Readme       string
}

type modelPayload struct {
	Author       *string  `json:"author"`
	Downloads    *int64   `json:"downloads"`
	Likes        *int64   `json:"likes"`
	Tags         []string `json:"tags"`
	PipelineTag  *string  `json:"pipeline_tag"`
	Description  *string  `json:"description"`
	ModelType    *string  `json:"model_type"`
	LastModified *string  `json:"lastModified"`
	Config       *struct {
		ModelType *string `json:"model_type"`
	} `json:"config"`
}

type response struct {
	status     int
	body       []byte
	retryAfter string
}

// Client fetches model pages through a shared colly collector.
type Client struct {
	cfg     Config
	base    *colly.Collector
	limiter *ratelimit.Limiter
	retry   *retryPolicy
	logger  *zap.Logger
}

// New builds a Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIBaseURL == "" {
		return nil, errors.New("hub api base url is required")
	}
	if cfg.RawBaseURL == "" {
		return nil, errors.New("hub raw base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}

	return &Client{
		cfg:  cfg,
		base: c,
		limiter: ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.RequestsPerSecond,
			DefaultBurst: cfg.Burst,
		}),
		retry:  newRetryPolicy(cfg.MaxAttempts),
		logger: logger,
	}, nil
}

// FetchModel retrieves metadata for modelID, then its README on a best-effort basis.
func (c *Client) FetchModel(ctx context.Context, modelID string) (ModelInfo, error) {
	if strings.TrimSpace(modelID) == "" {
		return ModelInfo{}, errors.New("model id is required")
	}
	url := strings.TrimRight(c.cfg.APIBaseURL, "/") + "/models/" + modelID
	c.logger.Info("fetching model info", zap.String("model_id", modelID), zap.String("url", url))

	resp, err := c.getWithRetry(ctx, url, true)
	if err != nil {
		metrics.ObserveHubFetch("model", outcome(err))
		return ModelInfo{}, err
	}
	var payload modelPayload
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		metrics.ObserveHubFetch("model", "decode_error")
		return ModelInfo{}, fmt.Errorf("decode model info: %w", err)
	}
	metrics.ObserveHubFetch("model", "ok")

	info := ModelInfo{
		ModelID:      modelID,
		Author:       payload.Author,
		Downloads:    payload.Downloads,
		Likes:        payload.Likes,
		Tags:         payload.Tags,
		PipelineTag:  payload.PipelineTag,
		Description:  payload.Description,
		ModelType:    payload.ModelType,
		LastModified: payload.LastModified,
	}
	if info.ModelType == nil && payload.Config != nil {
		info.ModelType = payload.Config.ModelType
	}
	info.Readme = c.fetchReadme(ctx, modelID)
	return info, nil
}

func (c *Client) fetchReadme(ctx context.Context, modelID string) string {
	url := strings.TrimRight(c.cfg.RawBaseURL, "/") + "/" + modelID + "/raw/main/README.md"
	c.logger.Debug("fetching readme", zap.String("model_id", modelID), zap.String("url", url))

	if err := c.limiter.Wait(ctx, url); err != nil {
		metrics.ObserveHubFetch("readme", "error")
		return NoReadme
	}
	resp, err := c.get(ctx, url, false)
	switch {
	case err != nil:
		c.logger.Warn("readme fetch failed", zap.String("model_id", modelID), zap.Error(err))
		metrics.ObserveHubFetch("readme", "error")
		return NoReadme
	case resp.status != http.StatusOK:
		metrics.ObserveHubFetch("readme", "missing")
		return NoReadme
	}
	metrics.ObserveHubFetch("readme", "ok")
	return string(resp.body)
}

func (c *Client) getWithRetry(ctx context.Context, url string, auth bool) (response, error) {
	for attempt := 1; ; attempt++ {
		if err := c.limiter.Wait(ctx, url); err != nil {
			return response{}, err //nolint:wrapcheck // already wrapped by the limiter
		}
		resp, err := c.get(ctx, url, auth)
		if err == nil && resp.status != http.StatusOK {
			err = &StatusError{
				StatusCode: resp.status,
				Body:       strings.TrimSpace(string(resp.body)),
				RetryAfter: parseRetryAfter(resp.retryAfter, time.Now()),
			}
		}
		if err == nil {
			return resp, nil
		}
		if !c.retry.shouldRetry(err, attempt) {
			return response{}, err
		}
		wait := c.retry.backoff(attempt)
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.RetryAfter > 0 {
			// The limiter holds the host for the server-requested interval.
			c.limiter.Pause(url, statusErr.RetryAfter)
			wait = 0
		}
		c.logger.Warn("retrying hub request",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		metrics.ObserveHubFetch("model", "retry")
		if err := sleepContext(ctx, wait); err != nil {
			return response{}, err
		}
	}
}

func (c *Client) get(ctx context.Context, url string, auth bool) (response, error) {
	var (
		result   response
		fetchErr error
	)
	collector := c.base.Clone()
	collector.Context = ctx
	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "application/json")
		if auth && c.cfg.Token != "" {
			r.Headers.Set("Authorization", "Bearer "+c.cfg.Token)
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		result = response{
			status: r.StatusCode,
			body:   append([]byte(nil), r.Body...),
		}
		if r.Headers != nil {
			result.retryAfter = r.Headers.Get("Retry-After")
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return response{}, fmt.Errorf("hub fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return response{}, fmt.Errorf("hub request failed: %w", err)
		}
		if fetchErr != nil {
			return response{}, fmt.Errorf("hub response failed: %w", fetchErr)
		}
		return result, nil
	}
}

func outcome(err error) string {
	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound:
		return "not_found"
	case errors.As(err, &statusErr):
		return "http_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "transport_error"
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
