package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/playwright-community/playwright-go"
)

const imagePattern = "**/*.{png,jpg,jpeg,gif,webp,svg,ico,avif}"

// Playwright launches a fresh Chromium per fetch so every request gets its
// own proxy and a clean profile. The driver process is shared.
type Playwright struct {
	opts   Options
	logger *slog.Logger

	mu sync.Mutex
	pw *playwright.Playwright
}

func NewPlaywright(opts Options, logger *slog.Logger) (*Playwright, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	return &Playwright{
		opts:   opts,
		logger: logger.With("component", "fetch", "backend", BackendPlaywright),
		pw:     pw,
	}, nil
}

func (p *Playwright) launchOptions(req Request) playwright.BrowserTypeLaunchOptions {
	args := append([]string{}, p.opts.Profile.LaunchArgs...)
	args = append(args, p.opts.Profile.WindowSizeArg(), "--user-agent="+p.opts.Profile.UserAgent)

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(p.opts.Headless),
		Args:     args,
	}

	if !req.Proxy.IsDirect() {
		launchOpts.Proxy = &playwright.Proxy{Server: req.Proxy.Server()}
		if req.Proxy.HasCredentials() {
			launchOpts.Proxy.Username = playwright.String(req.Proxy.Username)
			launchOpts.Proxy.Password = playwright.String(req.Proxy.Password)
		}
	}

	return launchOpts
}

func (p *Playwright) contextOptions() playwright.BrowserNewContextOptions {
	prof := p.opts.Profile
	return playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(prof.UserAgent),
		Locale:            playwright.String(prof.Locale),
		TimezoneId:        playwright.String(prof.TimezoneID),
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Viewport: &playwright.Size{
			Width:  prof.ViewportWidth,
			Height: prof.ViewportHeight,
		},
		ExtraHttpHeaders: prof.Headers(),
	}
}

func (p *Playwright) Fetch(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", newError(ctx, ReasonCanceled, req.URL, err)
	}

	p.mu.Lock()
	pw := p.pw
	p.mu.Unlock()
	if pw == nil {
		return "", &Error{Reason: ReasonNetwork, URL: req.URL, Err: errors.New("playwright is closed")}
	}

	browser, err := pw.Chromium.Launch(p.launchOptions(req))
	if err != nil {
		return "", newError(ctx, ReasonNetwork, req.URL, fmt.Errorf("failed to launch browser: %w", err))
	}
	defer func() {
		if err := browser.Close(); err != nil {
			p.logger.Debug("failed to close browser", "error", err)
		}
	}()

	// Closing the browser unblocks any pending call when ctx is canceled.
	stop := context.AfterFunc(ctx, func() {
		_ = browser.Close()
	})
	defer stop()

	bctx, err := browser.NewContext(p.contextOptions())
	if err != nil {
		return "", newError(ctx, ReasonNetwork, req.URL, fmt.Errorf("failed to create browser context: %w", err))
	}
	defer bctx.Close()

	if p.opts.Profile.InitScript != "" {
		if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(p.opts.Profile.InitScript)}); err != nil {
			return "", newError(ctx, ReasonNetwork, req.URL, fmt.Errorf("failed to add init script: %w", err))
		}
	}

	if p.opts.Profile.BlockImages {
		if err := bctx.Route(imagePattern, func(route playwright.Route) {
			_ = route.Abort()
		}); err != nil {
			return "", newError(ctx, ReasonNetwork, req.URL, fmt.Errorf("failed to block images: %w", err))
		}
	}

	page, err := bctx.NewPage()
	if err != nil {
		return "", newError(ctx, ReasonNetwork, req.URL, fmt.Errorf("failed to create page: %w", err))
	}
	defer page.Close()

	if _, err := page.Goto(req.URL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(p.opts.NavigationTimeout.Milliseconds())),
	}); err != nil {
		return "", newError(ctx, ReasonNetwork, req.URL, fmt.Errorf("navigation failed: %w", err))
	}

	if err := sleepCtx(ctx, p.opts.settleDelay()); err != nil {
		return "", newError(ctx, ReasonCanceled, req.URL, err)
	}

	if req.ReadySelector != "" {
		err := page.Locator(req.ReadySelector).First().WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateAttached,
			Timeout: playwright.Float(float64(p.opts.readyTimeout(req).Milliseconds())),
		})
		if err != nil {
			reason := ReasonNetwork
			if errors.Is(err, playwright.ErrTimeout) {
				reason = ReasonTimeout
			}
			return "", newError(ctx, reason, req.URL, fmt.Errorf("waiting for %q: %w", req.ReadySelector, err))
		}
	}

	html, err := page.Content()
	if err != nil {
		return "", newError(ctx, ReasonNetwork, req.URL, fmt.Errorf("failed to read content: %w", err))
	}

	p.logger.Debug("page fetched", "url", req.URL, "proxy", req.Proxy.String(), "bytes", len(html))
	return html, nil
}

func (p *Playwright) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pw == nil {
		return nil
	}
	err := p.pw.Stop()
	p.pw = nil
	if err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}
