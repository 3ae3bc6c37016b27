package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go-pricebook-sync/internal/model"

	"github.com/gofiber/fiber/v2"
)

// HTTPConfig configures the HTTP client.
type HTTPConfig struct {
	BaseURL     string
	TenantID    string
	AppKey      string
	AccessToken string
	Timeout     time.Duration
	MaxRetries  int
	Backoff     time.Duration
}

// HTTPClient talks to the upstream REST API through a fiber Agent. 429 and
// 5xx responses are retried with backoff, honoring Retry-After.
type HTTPClient struct {
	cfg    HTTPConfig
	logger *log.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewHTTPClient(cfg HTTPConfig, logger *log.Logger) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[upstream] ", log.LstdFlags)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPClient{cfg: cfg, logger: logger, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *HTTPClient) collectionURL(kind model.EntityType) (string, error) {
	if c.cfg.BaseURL == "" {
		return "", ErrUnsupportedURL
	}
	resource, err := ResourcePath(kind)
	if err != nil {
		return "", err
	}
	if c.cfg.TenantID == "" {
		return c.cfg.BaseURL + "/" + resource, nil
	}
	return fmt.Sprintf("%s/tenant/%s/%s", c.cfg.BaseURL, url.PathEscape(c.cfg.TenantID), resource), nil
}

func (c *HTTPClient) List(ctx context.Context, kind model.EntityType, opts ListOptions) (*Page, error) {
	base, err := c.collectionURL(kind)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(opts.Page))
	q.Set("pageSize", strconv.Itoa(opts.PageSize))
	if opts.CategoryID != nil {
		q.Set("categoryId", strconv.FormatInt(*opts.CategoryID, 10))
	}
	if opts.ModifiedSince != nil {
		q.Set("modifiedOnOrAfter", opts.ModifiedSince.UTC().Format(time.RFC3339))
	}

	body, err := c.do(ctx, fiber.MethodGet, base+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var page Page
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("upstream: decode %s page %d: %w", kind, opts.Page, err)
	}
	return &page, nil
}

func (c *HTTPClient) Get(ctx context.Context, kind model.EntityType, id int64) (json.RawMessage, error) {
	base, err := c.collectionURL(kind)
	if err != nil {
		return nil, err
	}
	body, err := c.do(ctx, fiber.MethodGet, base+"/"+strconv.FormatInt(id, 10), nil)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

func (c *HTTPClient) Update(ctx context.Context, kind model.EntityType, id int64, patch map[string]interface{}) (json.RawMessage, error) {
	base, err := c.collectionURL(kind)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}
	body, err := c.do(ctx, fiber.MethodPatch, base+"/"+strconv.FormatInt(id, 10), payload)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// do performs one request with retries. The per-call timeout is the smaller
// of the configured timeout and the context deadline.
func (c *HTTPClient) do(ctx context.Context, method, uri string, payload []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		code, body, retryAfter, err := c.once(ctx, method, uri, payload)
		switch {
		case err != nil:
			lastErr = err
		case code == fiber.StatusNotFound:
			return nil, ErrNotFound
		case code == fiber.StatusTooManyRequests:
			lastErr = ErrRateLimited
		case code >= 500:
			lastErr = &StatusError{Code: code, Body: string(body)}
		case code >= 400:
			return nil, &StatusError{Code: code, Body: string(body)}
		default:
			return body, nil
		}

		if attempt == c.cfg.MaxRetries {
			break
		}
		wait := retryAfter
		if wait <= 0 {
			wait = c.cfg.Backoff << attempt
		}
		c.logger.Printf("%s %s failed (%v), retrying in %s", method, uri, lastErr, wait)
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *HTTPClient) once(ctx context.Context, method, uri string, payload []byte) (int, []byte, time.Duration, error) {
	timeout := c.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return 0, nil, 0, context.DeadlineExceeded
	}

	a := fiber.AcquireAgent()
	req := a.Request()
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	a.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	if c.cfg.AccessToken != "" {
		a.Set(fiber.HeaderAuthorization, "Bearer "+c.cfg.AccessToken)
	}
	if c.cfg.AppKey != "" {
		a.Set("ST-App-Key", c.cfg.AppKey)
	}
	if payload != nil {
		a.ContentType(fiber.MIMEApplicationJSON)
		a.Body(payload)
	}
	a.Timeout(timeout)

	resp := fiber.AcquireResponse()
	defer fiber.ReleaseResponse(resp)
	a.SetResponse(resp)

	if err := a.Parse(); err != nil {
		fiber.ReleaseAgent(a)
		return 0, nil, 0, err
	}
	code, body, errs := a.Bytes()
	if len(errs) > 0 {
		return 0, nil, 0, errs[0]
	}
	return code, body, parseRetryAfter(string(resp.Header.Peek(fiber.HeaderRetryAfter))), nil
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := time.Parse(time.RFC1123, v); err == nil {
		return time.Until(t)
	}
	return 0
}
