package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/chromedp/cdproto/emulation"
	cdpfetch "github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Chromedp drives a locally installed Chrome over CDP. Each fetch gets its
// own browser process and throwaway user data dir.
type Chromedp struct {
	opts   Options
	logger *slog.Logger
}

func NewChromedp(opts Options, logger *slog.Logger) *Chromedp {
	return &Chromedp{
		opts:   opts,
		logger: logger.With("component", "fetch", "backend", BackendChromedp),
	}
}

func (c *Chromedp) allocatorOptions(req Request, userDataDir string) []chromedp.ExecAllocatorOption {
	prof := c.opts.Profile

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", c.opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", prof.Locale),
		chromedp.UserAgent(prof.UserAgent),
		chromedp.WindowSize(prof.ViewportWidth, prof.ViewportHeight),
		chromedp.UserDataDir(userDataDir),
		chromedp.NoSandbox,
	)

	if prof.BlockImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}
	if !req.Proxy.IsDirect() {
		opts = append(opts, chromedp.ProxyServer(req.Proxy.Server()))
	}

	return opts
}

func (c *Chromedp) Fetch(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", newError(ctx, ReasonCanceled, req.URL, err)
	}

	userDataDir, err := os.MkdirTemp("", "price-chromedp-*")
	if err != nil {
		return "", &Error{Reason: ReasonNetwork, URL: req.URL, Err: fmt.Errorf("failed to create profile dir: %w", err)}
	}
	defer os.RemoveAll(userDataDir)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, c.allocatorOptions(req, userDataDir)...)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	if req.Proxy.HasCredentials() {
		c.handleProxyAuth(taskCtx, req)
	}

	prof := c.opts.Profile
	setup := []chromedp.Action{
		network.Enable(),
		network.SetExtraHTTPHeaders(toNetworkHeaders(prof.Headers())),
		emulation.SetTimezoneOverride(prof.TimezoneID),
		emulation.SetLocaleOverride().WithLocale(prof.Locale),
	}
	if prof.InitScript != "" {
		setup = append(setup, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(prof.InitScript).Do(ctx)
			return err
		}))
	}
	if req.Proxy.HasCredentials() {
		setup = append(setup, cdpfetch.Enable().WithHandleAuthRequests(true))
	}

	if err := chromedp.Run(taskCtx, setup...); err != nil {
		return "", newError(ctx, ReasonNetwork, req.URL, fmt.Errorf("failed to start browser: %w", err))
	}

	navCtx, cancelNav := context.WithTimeout(taskCtx, c.opts.NavigationTimeout)
	err = chromedp.Run(navCtx, chromedp.Navigate(req.URL))
	cancelNav()
	if err != nil {
		return "", newError(ctx, ReasonNetwork, req.URL, fmt.Errorf("navigation failed: %w", err))
	}

	if err := sleepCtx(ctx, c.opts.settleDelay()); err != nil {
		return "", newError(ctx, ReasonCanceled, req.URL, err)
	}

	if req.ReadySelector != "" {
		readyCtx, cancelReady := context.WithTimeout(taskCtx, c.opts.readyTimeout(req))
		err := chromedp.Run(readyCtx, chromedp.WaitReady(req.ReadySelector, chromedp.ByQuery))
		cancelReady()
		if err != nil {
			reason := ReasonNetwork
			if errors.Is(err, context.DeadlineExceeded) {
				reason = ReasonTimeout
			}
			return "", newError(ctx, reason, req.URL, fmt.Errorf("waiting for %q: %w", req.ReadySelector, err))
		}
	}

	var html string
	if err := chromedp.Run(taskCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", newError(ctx, ReasonNetwork, req.URL, fmt.Errorf("failed to read content: %w", err))
	}

	c.logger.Debug("page fetched", "url", req.URL, "proxy", req.Proxy.String(), "bytes", len(html))
	return html, nil
}

// handleProxyAuth answers proxy auth challenges with the endpoint
// credentials and resumes every request paused by the fetch domain.
func (c *Chromedp) handleProxyAuth(taskCtx context.Context, req Request) {
	chromedp.ListenTarget(taskCtx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *cdpfetch.EventAuthRequired:
			go func() {
				err := chromedp.Run(taskCtx, cdpfetch.ContinueWithAuth(ev.RequestID, &cdpfetch.AuthChallengeResponse{
					Response: cdpfetch.AuthChallengeResponseResponseProvideCredentials,
					Username: req.Proxy.Username,
					Password: req.Proxy.Password,
				}))
				if err != nil {
					c.logger.Debug("proxy auth failed", "error", err)
				}
			}()
		case *cdpfetch.EventRequestPaused:
			go func() {
				_ = chromedp.Run(taskCtx, cdpfetch.ContinueRequest(ev.RequestID))
			}()
		}
	})
}

func (c *Chromedp) Close() error {
	return nil
}

func toNetworkHeaders(h map[string]string) network.Headers {
	out := make(network.Headers, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
