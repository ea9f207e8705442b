package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/maltedev/ksa-price-scraper/internal/models"
	"github.com/maltedev/ksa-price-scraper/internal/proxy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.True(t, opts.Headless)
	assert.Equal(t, 30*time.Second, opts.NavigationTimeout)
	assert.Equal(t, 10*time.Second, opts.ReadyTimeout)
	assert.Equal(t, 3*time.Second, opts.SettleMin)
	assert.Equal(t, 7*time.Second, opts.SettleMax)

	prof := opts.Profile
	assert.Equal(t, "ar-SA", prof.Locale)
	assert.Equal(t, "Asia/Riyadh", prof.TimezoneID)
	assert.Contains(t, prof.LaunchArgs, "--disable-blink-features=AutomationControlled")
	assert.Contains(t, prof.InitScript, "webdriver")
	assert.Contains(t, prof.InitScript, "'ar-SA', 'ar'")
	assert.True(t, prof.BlockImages)
	assert.Equal(t, "ar-SA,ar;q=0.9,en;q=0.8", prof.Headers()["Accept-Language"])
}

func TestSettleDelay(t *testing.T) {
	opts := Options{SettleMin: 10 * time.Millisecond, SettleMax: 20 * time.Millisecond}
	for i := 0; i < 100; i++ {
		d := opts.settleDelay()
		assert.GreaterOrEqual(t, d, opts.SettleMin)
		assert.Less(t, d, opts.SettleMax)
	}

	fixed := Options{SettleMin: 5 * time.Millisecond, SettleMax: 5 * time.Millisecond}
	assert.Equal(t, 5*time.Millisecond, fixed.settleDelay())
}

func TestReasonOf(t *testing.T) {
	assert.Equal(t, ReasonTimeout, ReasonOf(&Error{Reason: ReasonTimeout}))
	assert.Equal(t, ReasonTimeout, ReasonOf(fmt.Errorf("wrapped: %w", &Error{Reason: ReasonTimeout})))
	assert.Equal(t, ReasonCanceled, ReasonOf(context.Canceled))
	assert.Equal(t, ReasonNetwork, ReasonOf(errors.New("boom")))

	assert.Equal(t, models.FailureTimeout, FailureOf(&Error{Reason: ReasonTimeout}))
	assert.Equal(t, models.FailureCanceled, FailureOf(&Error{Reason: ReasonCanceled}))
	assert.Equal(t, models.FailureNetwork, FailureOf(&Error{Reason: ReasonNetwork}))
}

func TestPlaywrightLaunchOptions(t *testing.T) {
	p := &Playwright{opts: DefaultOptions(), logger: slog.Default()}

	direct := p.launchOptions(Request{URL: "https://danube.sa"})
	assert.Nil(t, direct.Proxy)
	assert.Contains(t, direct.Args, "--disable-blink-features=AutomationControlled")

	withProxy := p.launchOptions(Request{Proxy: proxy.Endpoint{Scheme: "http", Host: "proxy.sa", Port: 8080, Username: "u", Password: "p"}})
	require.NotNil(t, withProxy.Proxy)
	assert.Equal(t, "http://proxy.sa:8080", withProxy.Proxy.Server)
	require.NotNil(t, withProxy.Proxy.Username)
	assert.Equal(t, "u", *withProxy.Proxy.Username)

	ctxOpts := p.contextOptions()
	assert.Equal(t, "ar-SA", *ctxOpts.Locale)
	assert.Equal(t, "Asia/Riyadh", *ctxOpts.TimezoneId)
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New("lynx", DefaultOptions(), slog.Default())
	assert.Error(t, err)
}

func newTestHTTP() *HTTP {
	opts := DefaultOptions()
	opts.NavigationTimeout = 2 * time.Second
	return NewHTTP(opts, slog.Default())
}

func TestHTTP_Fetch(t *testing.T) {
	gotLang := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLang <- r.Header.Get("Accept-Language")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><div class="product-item"><span class="price">18.50 ر.س</span></div></body></html>`)
	}))
	defer srv.Close()

	html, err := newTestHTTP().Fetch(context.Background(), Request{URL: srv.URL + "/search?query=milk", ReadySelector: ".product-item"})
	require.NoError(t, err)
	assert.Contains(t, html, "18.50 ر.س")
	assert.Equal(t, "ar-SA,ar;q=0.9,en;q=0.8", <-gotLang)
}

func TestHTTP_Fetch_NotReadyIsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div id="app"></div></body></html>`)
	}))
	defer srv.Close()

	_, err := newTestHTTP().Fetch(context.Background(), Request{URL: srv.URL, ReadySelector: ".product-item"})
	require.Error(t, err)
	assert.Equal(t, ReasonTimeout, ReasonOf(err))
}

func TestHTTP_Fetch_ServerErrorIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestHTTP().Fetch(context.Background(), Request{URL: srv.URL})
	require.Error(t, err)
	assert.Equal(t, ReasonNetwork, ReasonOf(err))

	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, srv.URL, fe.URL)
}

func TestHTTP_Fetch_Canceled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := newTestHTTP().Fetch(ctx, Request{URL: srv.URL})
	require.Error(t, err)
	assert.Equal(t, ReasonCanceled, ReasonOf(err))
}
