package httpx

import (
	"context"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// Client performs outbound requests with resty. Its Fetch method is the
// transport behind the caching fetcher.
type Client struct {
	resty   *resty.Client
	limiter *rate.Limiter
}

func NewClient(opts ...ClientOption) *Client {
	cfg := defaultClientOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	rc := resty.New()
	if cfg.Timeout > 0 {
		rc.SetTimeout(cfg.Timeout)
	}
	if len(cfg.Headers) > 0 {
		rc.SetHeaders(cfg.Headers)
	}

	c := &Client{resty: rc}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.Burst, 1))
	}
	return c
}

// Fetch issues a plain GET and reports the status and raw body. Non-2xx
// statuses are not errors here; err is set only when no response arrived.
func (c *Client) Fetch(ctx context.Context, url string) (int, []byte, error) {
	if err := c.wait(ctx); err != nil {
		return 0, nil, err
	}
	resp, err := c.resty.R().SetContext(ctx).Get(url)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode(), resp.Body(), nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}
