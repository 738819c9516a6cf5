package fetch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/domus/internal/common"
	"github.com/ternarybob/domus/internal/durable"
	"github.com/ternarybob/domus/internal/interfaces"
)

// BrowserProvider drives a stealth-configured headless Chrome instance.
// It is the most expensive provider and runs last in the chain, against
// pages that block plain HTTP clients.
type BrowserProvider struct {
	config common.FetchConfig
	logger arbor.ILogger

	browserCtx      context.Context
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc
	initialized     bool
	mu              sync.Mutex
}

// NewBrowserProvider creates a new browser fetch provider. The browser
// itself is started lazily on first use.
func NewBrowserProvider(config common.FetchConfig, logger arbor.ILogger) *BrowserProvider {
	return &BrowserProvider{
		config: config,
		logger: logger,
	}
}

// Name returns the provider name
func (p *BrowserProvider) Name() string {
	return "browser"
}

// ensureBrowser starts the shared Chrome instance on first use.
func (p *BrowserProvider) ensureBrowser() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}

	opts := p.buildAllocatorOptions()

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	p.allocatorCancel = allocatorCancel

	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx,
		chromedp.WithLogf(func(s string, i ...interface{}) {
			p.logger.Debug().Msgf("chromedp: "+s, i...)
		}),
	)
	p.browserCtx = browserCtx
	p.browserCancel = browserCancel

	testCtx, testCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer testCancel()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		p.shutdownLocked()
		return durable.WrapFault(durable.KindUnavailable, err, "browser failed startup test")
	}

	p.initialized = true
	p.logger.Info().Bool("headless", p.config.Headless).Msg("Browser provider initialized")

	return nil
}

// buildAllocatorOptions creates Chrome allocator options for maximum stealth
func (p *BrowserProvider) buildAllocatorOptions() []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		// Basic Chrome flags
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,

		// User agent
		chromedp.UserAgent(p.config.UserAgent),

		// STEALTH FLAGS - Critical for bypassing bot detection
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-popup-blocking", true),

		// Prevent automation detection
		chromedp.Flag("excludeSwitches", "enable-automation"),
		chromedp.Flag("useAutomationExtension", false),

		// WebGL and Canvas fingerprint spoofing hints
		chromedp.Flag("disable-reading-from-canvas", false),
		chromedp.Flag("enable-webgl", true),

		// Network stack preferences
		chromedp.Flag("disable-background-networking", false),
		chromedp.Flag("enable-features", "NetworkService,NetworkServiceInProcess"),

		// GPU settings for rendering
		chromedp.Flag("disable-gpu", false),

		// Window settings
		chromedp.Flag("start-maximized", true),
		chromedp.WindowSize(1920, 1080),
	}

	if p.config.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}

	if p.config.Headless {
		// New headless mode is less detectable
		opts = append(opts, chromedp.Flag("headless", "new"))
	}

	return opts
}

// Fetch renders the page in the stealth browser and returns the resulting
// DOM. The document response status is captured from the network domain so
// a rendered 404 still classifies as a terminal not-found fault.
func (p *BrowserProvider) Fetch(ctx context.Context, url string) (*interfaces.FetchResult, error) {
	if err := p.ensureBrowser(); err != nil {
		return nil, err
	}

	timeout := p.config.BrowserTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	// Fresh tab per fetch, bounded by the browser timeout
	tabCtx, tabCancel := chromedp.NewContext(p.browserCtx)
	defer tabCancel()
	pageCtx, pageCancel := context.WithTimeout(tabCtx, timeout)
	defer pageCancel()

	var statusCode int
	var statusMu sync.Mutex
	chromedp.ListenTarget(pageCtx, func(ev interface{}) {
		if resp, ok := ev.(*network.EventResponseReceived); ok && resp.Type == network.ResourceTypeDocument {
			statusMu.Lock()
			if statusCode == 0 {
				statusCode = int(resp.Response.Status)
			}
			statusMu.Unlock()
		}
	})

	start := time.Now()
	var html string

	err := chromedp.Run(pageCtx,
		network.Enable(),
		chromedp.Navigate(url),
		chromedp.ActionFunc(p.injectStealthScript),
		chromedp.Sleep(p.config.JavaScriptWaitTime),
		chromedp.ActionFunc(p.simulateHumanActivity),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return nil, classifyBrowserError(err, url)
	}

	statusMu.Lock()
	status := statusCode
	statusMu.Unlock()
	if status == 0 {
		status = 200
	}
	if fault := classifyStatus(status, url); fault != nil {
		p.logger.Debug().
			Str("url", url).
			Int("status_code", status).
			Msg("Browser fetch rejected by status")
		return nil, fault
	}

	p.logger.Debug().
		Str("url", url).
		Int("status_code", status).
		Int("content_size", len(html)).
		Dur("duration", time.Since(start)).
		Msg("Browser fetch completed")

	return &interfaces.FetchResult{
		URL:        url,
		HTML:       html,
		StatusCode: status,
		Provider:   p.Name(),
		FetchedAt:  time.Now().UTC(),
	}, nil
}

// injectStealthScript masks the usual headless-automation tells:
// navigator.webdriver, empty plugin lists, WebGL vendor strings.
func (p *BrowserProvider) injectStealthScript(ctx context.Context) error {
	stealthJS := `
		// Override navigator.webdriver
		Object.defineProperty(navigator, 'webdriver', {
			get: () => undefined,
			configurable: true
		});

		// Override navigator.plugins
		Object.defineProperty(navigator, 'plugins', {
			get: () => {
				const plugins = [
					{ name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer' },
					{ name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai' },
					{ name: 'Native Client', filename: 'internal-nacl-plugin' }
				];
				plugins.length = 3;
				return plugins;
			},
			configurable: true
		});

		// Override navigator.languages
		Object.defineProperty(navigator, 'languages', {
			get: () => ['it-IT', 'it', 'en-US', 'en'],
			configurable: true
		});

		// Override chrome.runtime
		if (!window.chrome) window.chrome = {};
		window.chrome.runtime = { id: undefined };

		// Override permissions.query
		const originalQuery = window.navigator.permissions.query;
		window.navigator.permissions.query = (parameters) => (
			parameters.name === 'notifications' ?
				Promise.resolve({ state: Notification.permission }) :
				originalQuery(parameters)
		);

		// Fix WebGL vendor/renderer
		const getParameter = WebGLRenderingContext.prototype.getParameter;
		WebGLRenderingContext.prototype.getParameter = function(parameter) {
			if (parameter === 37445) return 'Intel Inc.';
			if (parameter === 37446) return 'Intel Iris OpenGL Engine';
			return getParameter.call(this, parameter);
		};
	`

	return chromedp.Evaluate(stealthJS, nil).Do(ctx)
}

// simulateHumanActivity performs a few randomized mouse movements and
// scrolls so the session's interaction timing doesn't look scripted.
func (p *BrowserProvider) simulateHumanActivity(ctx context.Context) error {
	for i := 0; i < 3; i++ {
		x := 200 + rand.Float64()*1200
		y := 150 + rand.Float64()*600
		if err := input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(100+rand.Intn(250)) * time.Millisecond):
		}
	}

	scrollJS := fmt.Sprintf("window.scrollBy(0, %d)", 300+rand.Intn(500))
	if err := chromedp.Evaluate(scrollJS, nil).Do(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(300+rand.Intn(400)) * time.Millisecond):
	}

	return nil
}

// classifyBrowserError maps chromedp failures; timeouts mean the page never
// settled and are worth retrying.
func classifyBrowserError(err error, url string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return durable.WrapFault(durable.KindTransient, err, "browser fetch timed out for %s", url)
	}
	if strings.Contains(err.Error(), "net::ERR_NAME_NOT_RESOLVED") {
		return durable.WrapFault(durable.KindInternal, err, "host could not be resolved for %s", url)
	}
	return durable.WrapFault(durable.KindTransient, err, "browser fetch failed for %s", url)
}

// Shutdown tears down the Chrome instance.
func (p *BrowserProvider) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shutdownLocked()
}

func (p *BrowserProvider) shutdownLocked() {
	if p.browserCancel != nil {
		p.browserCancel()
		p.browserCancel = nil
	}
	if p.allocatorCancel != nil {
		p.allocatorCancel()
		p.allocatorCancel = nil
	}
	p.initialized = false
}
