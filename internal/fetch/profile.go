package fetch

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Profile is the browser identity presented to every storefront.
type Profile struct {
	UserAgent      string
	Locale         string
	AcceptLanguage string
	TimezoneID     string
	ViewportWidth  int
	ViewportHeight int
	LaunchArgs     []string
	InitScript     string
	BlockImages    bool
	ExtraHeaders   map[string]string
}

// stealthScript hides the usual automation markers before any page script
// runs.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => false });
window.chrome = window.chrome || { runtime: {} };
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3] });
Object.defineProperty(navigator, 'languages', { get: () => ['ar-SA', 'ar'] });
`

func DefaultProfile() Profile {
	return Profile{
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Locale:         "ar-SA",
		AcceptLanguage: "ar-SA,ar;q=0.9,en;q=0.8",
		TimezoneID:     "Asia/Riyadh",
		ViewportWidth:  1366,
		ViewportHeight: 768,
		LaunchArgs: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			"--disable-infobars",
			"--lang=ar-SA",
		},
		InitScript:  stealthScript,
		BlockImages: true,
		ExtraHeaders: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"DNT":    "1",
		},
	}
}

// Headers returns the request headers implied by the profile.
func (p Profile) Headers() map[string]string {
	h := make(map[string]string, len(p.ExtraHeaders)+2)
	for k, v := range p.ExtraHeaders {
		h[k] = v
	}
	if p.AcceptLanguage != "" {
		h["Accept-Language"] = p.AcceptLanguage
	}
	return h
}

// WindowSizeArg renders the viewport as a Chromium flag.
func (p Profile) WindowSizeArg() string {
	return fmt.Sprintf("--window-size=%d,%d", p.ViewportWidth, p.ViewportHeight)
}

// Options configures a fetch backend.
type Options struct {
	Profile           Profile
	Headless          bool
	NavigationTimeout time.Duration
	ReadyTimeout      time.Duration
	SettleMin         time.Duration
	SettleMax         time.Duration
}

func DefaultOptions() Options {
	return Options{
		Profile:           DefaultProfile(),
		Headless:          true,
		NavigationTimeout: 30 * time.Second,
		ReadyTimeout:      10 * time.Second,
		SettleMin:         3 * time.Second,
		SettleMax:         7 * time.Second,
	}
}

// settleDelay draws the pause between navigation and the readiness check.
func (o Options) settleDelay() time.Duration {
	if o.SettleMax <= o.SettleMin {
		return o.SettleMin
	}
	return o.SettleMin + rand.N(o.SettleMax-o.SettleMin)
}

func (o Options) readyTimeout(req Request) time.Duration {
	if req.ReadyTimeout > 0 {
		return req.ReadyTimeout
	}
	return o.ReadyTimeout
}
