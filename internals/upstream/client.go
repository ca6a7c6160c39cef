package upstream

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"edumarket_bff/internals/helpers/metrics"
)

// Client calls the remote REST API. Every call takes the bearer token explicitly;
// the client itself holds no session state.
type Client struct {
	baseURL string
	timeout time.Duration
	metrics *metrics.Metrics
}

type Option func(*Client)

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: 15 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL is the configured API root, e.g. http://localhost:8000/api.
func (c *Client) BaseURL() string { return c.baseURL }

// MediaURL resolves a relative media path (question images) against the API host.
func (c *Client) MediaURL(path string) string {
	if path == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimSuffix(c.baseURL, "/api") + path
}

type request struct {
	method   string
	path     string
	endpoint string // metric label, path template without ids
	token    string
	query    url.Values
	body     any
}

// do sends the request and returns the raw body of a 2xx response.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: KindNetwork, Message: "request cancelled", Err: err}
	}

	timeout := c.timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return nil, &Error{Kind: KindTimeout, Message: defaultMessages[KindTimeout], Err: context.DeadlineExceeded}
	}

	uri := c.baseURL + r.path
	if len(r.query) > 0 {
		uri += "?" + r.query.Encode()
	}

	a := fiber.AcquireAgent()
	req := a.Request()
	req.Header.SetMethod(r.method)
	req.SetRequestURI(uri)
	a.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	if r.token != "" {
		a.Set(fiber.HeaderAuthorization, "Bearer "+r.token)
	}
	if r.body != nil {
		b, err := sonic.Marshal(r.body)
		if err != nil {
			fiber.ReleaseAgent(a)
			return nil, &Error{Kind: KindValidation, Message: "could not encode request", Err: err}
		}
		a.ContentType(fiber.MIMEApplicationJSON)
		a.Body(b)
	}
	a.Timeout(timeout)

	start := time.Now()
	if err := a.Parse(); err != nil {
		fiber.ReleaseAgent(a)
		return nil, &Error{Kind: KindNetwork, Message: defaultMessages[KindServer], Err: err}
	}
	// Bytes releases the agent.
	status, body, errs := a.Bytes()

	endpoint := r.endpoint
	if endpoint == "" {
		endpoint = r.path
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		kind := KindNetwork
		if errors.Is(err, fasthttp.ErrTimeout) {
			kind = KindTimeout
		}
		c.metrics.ObserveUpstream(r.method, endpoint, string(kind), time.Since(start))
		msg := defaultMessages[KindServer]
		if kind == KindTimeout {
			msg = defaultMessages[KindTimeout]
		}
		return nil, &Error{Kind: kind, Message: msg, Err: err}
	}

	if status < 200 || status >= 300 {
		ue := normalizeError(status, body)
		c.metrics.ObserveUpstream(r.method, endpoint, string(ue.Kind), time.Since(start))
		return nil, ue
	}

	c.metrics.ObserveUpstream(r.method, endpoint, "ok", time.Since(start))
	return body, nil
}

// doJSON sends the request and decodes a 2xx body into out (if out is non-nil).
func (c *Client) doJSON(ctx context.Context, r request, out any) error {
	body, err := c.do(ctx, r)
	if err != nil {
		return err
	}
	if out == nil || len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(body, out); err != nil {
		return &Error{Kind: KindServer, Message: "unexpected response from server", Err: err}
	}
	return nil
}
