package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/ksa-price-scraper/internal/models"
	"github.com/maltedev/ksa-price-scraper/internal/proxy"
)

// Request describes one page load.
type Request struct {
	URL   string
	Proxy proxy.Endpoint
	// ReadySelector must match before the page content is returned.
	ReadySelector string
	// ReadyTimeout overrides Options.ReadyTimeout when set.
	ReadyTimeout time.Duration
}

// Fetcher loads a page and returns its HTML. Every call uses an isolated
// browser or client; nothing is shared between calls.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (string, error)
	Close() error
}

type Reason string

const (
	ReasonNetwork  Reason = "network"
	ReasonTimeout  Reason = "timeout"
	ReasonCanceled Reason = "canceled"
)

type Error struct {
	Reason Reason
	URL    string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ReasonOf classifies any fetch failure. Unclassified errors are network
// failures.
func ReasonOf(err error) Reason {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Reason
	}
	if errors.Is(err, context.Canceled) {
		return ReasonCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	return ReasonNetwork
}

// FailureOf maps a fetch error onto the result failure reason.
func FailureOf(err error) models.FailureReason {
	switch ReasonOf(err) {
	case ReasonTimeout:
		return models.FailureTimeout
	case ReasonCanceled:
		return models.FailureCanceled
	default:
		return models.FailureNetwork
	}
}

func newError(ctx context.Context, reason Reason, url string, err error) *Error {
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		reason = ReasonCanceled
	}
	return &Error{Reason: reason, URL: url, Err: err}
}

const (
	BackendPlaywright = "playwright"
	BackendChromedp   = "chromedp"
	BackendHTTP       = "http"
)

// New builds the named backend.
func New(backend string, opts Options, logger *slog.Logger) (Fetcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch backend {
	case "", BackendPlaywright:
		pw, err := NewPlaywright(opts, logger)
		if err != nil {
			return nil, err
		}
		return pw, nil
	case BackendChromedp:
		return NewChromedp(opts, logger), nil
	case BackendHTTP:
		return NewHTTP(opts, logger), nil
	default:
		return nil, fmt.Errorf("unknown fetch backend %q", backend)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
