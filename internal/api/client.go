package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"esports-aggregator/internal/domain"

	"github.com/valyala/fasthttp"
)

// Adapter fetches one provider's data and maps it into normalized records.
// Adapters never retry; retry policy belongs to the caller.
type Adapter interface {
	ID() string
	Supports(game domain.GameKind, kind domain.RecordKind) bool
	Matches(ctx context.Context, q domain.Query) ([]domain.NormalizedMatch, error)
	PlayerStats(ctx context.Context, q domain.Query) ([]domain.NormalizedPlayerStat, error)
	RateLimitInfo() RateLimitInfo
}

// RateLimitInfo is what the provider last told us about its own quota.
type RateLimitInfo struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Reset     int       `json:"reset"`
	UpdatedAt time.Time `json:"updated_at"`
}

type authFunc func(req *fasthttp.Request, key string)

type Client struct {
	desc   domain.ProviderDescriptor
	client *fasthttp.Client
	auth   authFunc

	rateLimitMu sync.RWMutex
	rateLimit   RateLimitInfo
}

func newClient(desc domain.ProviderDescriptor, auth authFunc) *Client {
	return &Client{
		desc: desc,
		auth: auth,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         desc.Timeout,
			WriteTimeout:        desc.Timeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		rateLimit: RateLimitInfo{
			Limit:     desc.RequestsPerMinute,
			Remaining: desc.RequestsPerMinute,
			Reset:     60,
			UpdatedAt: time.Now(),
		},
	}
}

func (c *Client) ID() string { return c.desc.ID }

func (c *Client) supportsGame(game domain.GameKind) bool { return c.desc.SupportsGame(game) }

func (c *Client) RateLimitInfo() RateLimitInfo {
	c.rateLimitMu.RLock()
	defer c.rateLimitMu.RUnlock()
	return c.rateLimit
}

func (c *Client) updateRateLimit(resp *fasthttp.Response) {
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()

	if limit := string(resp.Header.Peek("X-Ratelimit-Limit")); limit != "" {
		if val, err := strconv.Atoi(limit); err == nil {
			c.rateLimit.Limit = val
		}
	}
	if remaining := string(resp.Header.Peek("X-Ratelimit-Remaining")); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			c.rateLimit.Remaining = val
		}
	}
	if reset := string(resp.Header.Peek("X-Ratelimit-Reset")); reset != "" {
		if val, err := strconv.Atoi(reset); err == nil {
			c.rateLimit.Reset = val
		}
	}
	c.rateLimit.UpdatedAt = time.Now()
}

func (c *Client) endpoint(path string, params url.Values) string {
	u := c.desc.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func getJSON[T any](ctx context.Context, c *Client, path string, params url.Values) (*T, error) {
	if !c.desc.Configured() {
		return nil, fmt.Errorf("%w: %s has no API key", domain.ErrProviderUnconfigured, c.desc.ID)
	}
	if err := ctx.Err(); err != nil {
		return nil, &domain.ProviderTransientError{Provider: c.desc.ID, Err: err}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.endpoint(path, params))
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")
	if c.auth != nil && c.desc.APIKey != "" {
		c.auth(req, c.desc.APIKey)
	}

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = c.client.DoDeadline(req, resp, deadline)
	} else if c.desc.Timeout > 0 {
		err = c.client.DoTimeout(req, resp, c.desc.Timeout)
	} else {
		err = c.client.Do(req, resp)
	}
	if err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}
		return nil, &domain.ProviderTransientError{Provider: c.desc.ID, Err: err}
	}

	c.updateRateLimit(resp)

	status := resp.StatusCode()
	switch {
	case status == fasthttp.StatusUnauthorized || status == fasthttp.StatusForbidden:
		return nil, fmt.Errorf("%w: %s rejected credentials with status %d", domain.ErrProviderUnconfigured, c.desc.ID, status)
	case status == fasthttp.StatusTooManyRequests:
		return nil, &domain.ProviderTransientError{
			Provider:   c.desc.ID,
			Status:     status,
			RetryAfter: retryAfter(resp),
			Err:        errors.New("rate limited upstream"),
		}
	case status >= fasthttp.StatusInternalServerError:
		return nil, &domain.ProviderTransientError{Provider: c.desc.ID, Status: status, Err: fmt.Errorf("upstream status %d", status)}
	case status != fasthttp.StatusOK:
		return nil, &domain.ProviderDataError{Provider: c.desc.ID, Status: status, BodySize: len(resp.Body())}
	}

	var result T
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, &domain.ProviderDataError{Provider: c.desc.ID, Status: status, BodySize: len(resp.Body())}
	}
	return &result, nil
}

func retryAfter(resp *fasthttp.Response) time.Duration {
	v := string(resp.Header.Peek("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
