package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// HTTP fetches pages without a browser. Pages that render their results
// client-side never become ready and fail with a timeout.
type HTTP struct {
	opts   Options
	logger *slog.Logger
}

func NewHTTP(opts Options, logger *slog.Logger) *HTTP {
	return &HTTP{
		opts:   opts,
		logger: logger.With("component", "fetch", "backend", BackendHTTP),
	}
}

// newCollector builds a single-use collector; each has its own cookie jar.
func (h *HTTP) newCollector(req Request) (*colly.Collector, error) {
	c := colly.NewCollector(
		colly.UserAgent(h.opts.Profile.UserAgent),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	c.SetRequestTimeout(h.opts.NavigationTimeout)

	if !req.Proxy.IsDirect() {
		if err := c.SetProxy(req.Proxy.URL().String()); err != nil {
			return nil, fmt.Errorf("invalid proxy %s: %w", req.Proxy, err)
		}
	}

	headers := h.opts.Profile.Headers()
	c.OnRequest(func(r *colly.Request) {
		for k, v := range headers {
			r.Headers.Set(k, v)
		}
	})

	return c, nil
}

type httpOutcome struct {
	body []byte
	err  error
}

func (h *HTTP) Fetch(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", newError(ctx, ReasonCanceled, req.URL, err)
	}

	c, err := h.newCollector(req)
	if err != nil {
		return "", &Error{Reason: ReasonNetwork, URL: req.URL, Err: err}
	}

	var out httpOutcome
	c.OnResponse(func(r *colly.Response) {
		out.body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		out.err = fmt.Errorf("status %d: %w", r.StatusCode, err)
	})

	done := make(chan error, 1)
	go func() {
		done <- c.Visit(req.URL)
	}()

	select {
	case <-ctx.Done():
		return "", newError(ctx, ReasonCanceled, req.URL, ctx.Err())
	case err := <-done:
		if err == nil {
			err = out.err
		}
		if err != nil {
			reason := ReasonNetwork
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				reason = ReasonTimeout
			}
			return "", newError(ctx, reason, req.URL, err)
		}
	}

	if req.ReadySelector != "" {
		ready, err := hasSelector(out.body, req.ReadySelector)
		if err != nil {
			return "", &Error{Reason: ReasonNetwork, URL: req.URL, Err: err}
		}
		if !ready {
			return "", &Error{Reason: ReasonTimeout, URL: req.URL, Err: fmt.Errorf("%q not present in response", req.ReadySelector)}
		}
	}

	h.logger.Debug("page fetched", "url", req.URL, "proxy", req.Proxy.String(), "bytes", len(out.body))
	return string(out.body), nil
}

func hasSelector(body []byte, selector string) (bool, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to parse response: %w", err)
	}
	return doc.Find(selector).Length() > 0, nil
}

func (h *HTTP) Close() error {
	return nil
}
