package backend

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zeromv/zeromv/pkg/buildinfo"
	"github.com/zeromv/zeromv/pkg/errors"
	"github.com/zeromv/zeromv/pkg/httputil"
	"github.com/zeromv/zeromv/pkg/tiles"
)

// ReadyPolicy is how long Init waits for a render server to come up.
var ReadyPolicy = httputil.Policy{Attempts: 8, Delay: 500 * time.Millisecond, MaxDelay: 10 * time.Second}

// HTTPBackend posts the conditioning image to a render server.
//
//	GET  {url}/healthz
//	POST {url}/v1/generate?model_id=&steps=&device=&dtype=&scheduler=&low_memory=
//
// The request and response bodies are PNG images.
type HTTPBackend struct {
	opts   Options
	base   *url.URL
	client *http.Client
	health *http.Client
}

// NewHTTPBackend validates opts.URL and returns the backend.
func NewHTTPBackend(opts Options) (*HTTPBackend, error) {
	opts.setDefaults()
	if opts.URL == "" {
		return nil, errors.New(errors.ErrCodeConfig, "http backend needs backend.url")
	}
	u, err := url.Parse(strings.TrimSuffix(opts.URL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.New(errors.ErrCodeConfig, "invalid backend url %q", opts.URL)
	}
	return &HTTPBackend{
		opts:   opts,
		base:   u,
		client: httputil.NewClient(0),
		health: httputil.NewClient(httputil.DefaultTimeout),
	}, nil
}

func (b *HTTPBackend) Name() string { return KindHTTP }

// Init waits until the server answers its health check.
func (b *HTTPBackend) Init(ctx context.Context) error {
	endpoint := b.base.JoinPath("healthz").String()
	err := httputil.Retry(ctx, ReadyPolicy, func(attempt int) error {
		if attempt > 0 {
			b.opts.Logger.Debug("waiting for render server", "url", endpoint, "attempt", attempt+1)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", buildinfo.UserAgent())
		resp, err := b.health.Do(req)
		if err != nil {
			return httputil.Retryable(err)
		}
		resp.Body.Close()
		return httputil.CheckStatus(resp.StatusCode)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(errors.ErrCodeBackend, err, "render server %s not ready", b.base)
	}
	return nil
}

// GenerateURL returns the request URL for one generation.
func (b *HTTPBackend) GenerateURL(steps int) string {
	q := url.Values{}
	q.Set("model_id", b.opts.ModelID)
	q.Set("steps", strconv.Itoa(steps))
	q.Set("device", string(b.opts.Device))
	q.Set("dtype", b.opts.DType)
	q.Set("scheduler", b.opts.Scheduler)
	q.Set("low_memory", strconv.FormatBool(b.opts.LowMemory))
	u := b.base.JoinPath("v1", "generate")
	u.RawQuery = q.Encode()
	return u.String()
}

// Generate is not retried: a failed inference is reported to the caller.
func (b *HTTPBackend) Generate(ctx context.Context, input image.Image, steps int) (image.Image, error) {
	body, err := tiles.PNGBytes(input)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBackend, err, "encode conditioning image")
	}

	ctx, cancel := withTimeout(ctx, b.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.GenerateURL(steps), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBackend, err, "build request")
	}
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Accept", "image/png")
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(errors.ErrCodeBackend, err, "render server request")
	}
	defer resp.Body.Close()

	if err := httputil.CheckStatus(resp.StatusCode); err != nil {
		if msg := httputil.ReadErrorBody(resp.Body); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return nil, errors.Wrap(errors.ErrCodeBackend, err, "render server rejected request")
	}

	img, err := tiles.Decode(resp.Body)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBackend, err, "decode render server response")
	}
	return img, nil
}
