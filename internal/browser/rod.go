package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"jobpilot/internal/logging/types"
)

// LaunchConfig configures RodLauncher
type LaunchConfig struct {
	Headless        bool
	Stealth         bool
	UserAgent       string
	ChromePath      string
	PageLoadTimeout time.Duration
	ElementTimeout  time.Duration
}

// RodLauncher drives a local Chrome through go-rod. The browser process is
// started on first use and shared by all pages.
type RodLauncher struct {
	cfg      LaunchConfig
	launcher *launcher.Launcher
	browser  *rod.Browser
	mu       sync.Mutex
	open     atomic.Int64
	logger   types.Logger
}

func NewRodLauncher(cfg LaunchConfig, logger types.Logger) *RodLauncher {
	if logger == nil {
		logger = types.NewNopLogger()
	}
	if cfg.PageLoadTimeout <= 0 {
		cfg.PageLoadTimeout = 45 * time.Second
	}
	if cfg.ElementTimeout <= 0 {
		cfg.ElementTimeout = 20 * time.Second
	}

	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-background-timer-throttling").
		Set("disable-backgrounding-occluded-windows").
		Set("disable-renderer-backgrounding").
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("window-size", "1920,1080")

	chromePath := cfg.ChromePath
	if chromePath == "" {
		chromePath = getSystemChromePath()
	}
	if chromePath != "" {
		l = l.Bin(chromePath)
		logger.Info("Using system Chrome browser", map[string]interface{}{
			"chrome_path": chromePath,
		})
	} else {
		logger.Warn("System Chrome not found, Rod will download browser", map[string]interface{}{})
	}

	if cfg.UserAgent != "" {
		l = l.Set("user-agent", cfg.UserAgent)
	}

	return &RodLauncher{cfg: cfg, launcher: l, logger: logger}
}

// OpenPages is the number of pages handed out and not yet closed.
func (l *RodLauncher) OpenPages() int64 {
	return l.open.Load()
}

func (l *RodLauncher) connect() (*rod.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.browser != nil {
		if err := rod.Try(func() { l.browser.MustPages() }); err == nil {
			return l.browser, nil
		}
		l.logger.Warn("Browser connection lost, relaunching", map[string]interface{}{})
		_ = l.browser.Close()
		l.browser = nil
	}

	controlURL, err := l.launcher.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	l.browser = b
	l.logger.Info("New browser instance created", map[string]interface{}{})
	return b, nil
}

func (l *RodLauncher) NewPage(ctx context.Context) (Page, error) {
	b, err := l.connect()
	if err != nil {
		return nil, err
	}

	var page *rod.Page
	if l.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             1920,
		Height:            1080,
		DeviceScaleFactor: 1,
	}); err != nil {
		l.logger.Warn("Failed to set viewport", map[string]interface{}{"error": err.Error()})
	}

	if l.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: l.cfg.UserAgent}); err != nil {
			l.logger.Warn("Failed to set user agent", map[string]interface{}{"error": err.Error()})
		}
	}

	if _, err := page.SetExtraHeaders([]string{"Accept-Language", "en-US,en;q=0.9"}); err != nil {
		l.logger.Debug("Failed to set headers", map[string]interface{}{"error": err.Error()})
	}

	l.open.Add(1)
	return &rodPage{
		page:        page,
		pageLoad:    l.cfg.PageLoadTimeout,
		elementWait: l.cfg.ElementTimeout,
		onClose:     func() { l.open.Add(-1) },
	}, nil
}

// Close shuts down the browser process
func (l *RodLauncher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var err error
	if l.browser != nil {
		err = l.browser.Close()
		l.browser = nil
	}
	l.launcher.Cleanup()
	l.logger.Info("Browser launcher cleanup completed", map[string]interface{}{})
	return err
}

// closeTimeout bounds closing a tab so a wedged renderer cannot hold the caller
const closeTimeout = 10 * time.Second

type rodPage struct {
	page        *rod.Page
	pageLoad    time.Duration
	elementWait time.Duration
	// frame pages share the owning tab's target and are never closed themselves
	frame     bool
	onClose   func()
	closeOnce sync.Once
}

// bounded returns the page bound to ctx with an operation deadline of d.
func (p *rodPage) bounded(ctx context.Context, d time.Duration) (*rod.Page, context.CancelFunc) {
	opCtx, cancel := context.WithTimeout(ctx, d)
	return p.page.Context(opCtx), cancel
}

func (p *rodPage) wrap(ctx context.Context, el *rod.Element) *rodElement {
	return &rodElement{el: el, ctx: ctx, wait: p.elementWait}
}

func (p *rodPage) wrapAll(ctx context.Context, els rod.Elements) []Element {
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, p.wrap(ctx, el))
	}
	return out
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	pg, cancel := p.bounded(ctx, p.pageLoad)
	defer cancel()

	if err := pg.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := pg.WaitLoad(); err != nil {
		return fmt.Errorf("failed waiting for %s to load: %w", url, err)
	}
	return nil
}

func (p *rodPage) URL() string {
	pg, cancel := p.bounded(context.Background(), p.elementWait)
	defer cancel()

	info, err := pg.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *rodPage) HTML() (string, error) {
	pg, cancel := p.bounded(context.Background(), p.pageLoad)
	defer cancel()

	html, err := pg.HTML()
	if err != nil {
		return "", fmt.Errorf("failed to get page HTML: %w", err)
	}
	return html, nil
}

func (p *rodPage) WaitFor(ctx context.Context, selector string, timeout time.Duration) (Element, error) {
	if timeout <= 0 {
		timeout = p.elementWait
	}
	pg, cancel := p.bounded(ctx, timeout)
	defer cancel()

	el, err := pg.Element(selector)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
		}
		return nil, err
	}
	return p.wrap(ctx, el), nil
}

func (p *rodPage) Find(ctx context.Context, selector string) (Element, error) {
	pg, cancel := p.bounded(ctx, p.elementWait)
	defer cancel()

	has, el, err := pg.Has(selector)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return p.wrap(ctx, el), nil
}

func (p *rodPage) FindAll(ctx context.Context, selector string) ([]Element, error) {
	pg, cancel := p.bounded(ctx, p.elementWait)
	defer cancel()

	els, err := pg.Elements(selector)
	if err != nil {
		return nil, err
	}
	return p.wrapAll(ctx, els), nil
}

func (p *rodPage) Frame(ctx context.Context, selector string) (Page, error) {
	pg, cancel := p.bounded(ctx, p.elementWait)
	defer cancel()

	has, el, err := pg.Has(selector)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	frame, err := el.Frame()
	if err != nil {
		return nil, fmt.Errorf("enter frame %s: %w", selector, err)
	}
	return &rodPage{page: frame, pageLoad: p.pageLoad, elementWait: p.elementWait, frame: true}, nil
}

func (p *rodPage) SetCookies(cookies []Cookie) error {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		path := c.Path
		if path == "" {
			path = "/"
		}
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}
	pg, cancel := p.bounded(context.Background(), p.elementWait)
	defer cancel()
	return pg.SetCookies(params)
}

func (p *rodPage) Eval(js string) (string, error) {
	pg, cancel := p.bounded(context.Background(), p.pageLoad)
	defer cancel()

	res, err := pg.Eval(js)
	if err != nil {
		return "", err
	}
	return res.Value.String(), nil
}

func (p *rodPage) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if p.onClose != nil {
			defer p.onClose()
		}
		if p.frame {
			return
		}
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		err = p.page.Context(closeCtx).Close()
	})
	return err
}

// rodElement runs every operation under its own deadline, derived from the
// ctx of the lookup that produced it or the ctx passed to the call.
type rodElement struct {
	el   *rod.Element
	ctx  context.Context
	wait time.Duration
}

func (e *rodElement) bounded(ctx context.Context) (*rod.Element, context.CancelFunc) {
	opCtx, cancel := context.WithTimeout(ctx, e.wait)
	return e.el.Context(opCtx), cancel
}

func (e *rodElement) wrapAll(els rod.Elements) []Element {
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el, ctx: e.ctx, wait: e.wait})
	}
	return out
}

func (e *rodElement) Text() (string, error) {
	el, cancel := e.bounded(e.ctx)
	defer cancel()
	return el.Text()
}

func (e *rodElement) Attr(name string) (string, bool, error) {
	el, cancel := e.bounded(e.ctx)
	defer cancel()

	v, err := el.Attribute(name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *rodElement) Click(ctx context.Context) error {
	el, cancel := e.bounded(ctx)
	defer cancel()
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) Input(ctx context.Context, text string) error {
	el, cancel := e.bounded(ctx)
	defer cancel()

	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(text)
}

func (e *rodElement) Visible() bool {
	el, cancel := e.bounded(e.ctx)
	defer cancel()

	v, err := el.Visible()
	return err == nil && v
}

func (e *rodElement) Checked() bool {
	el, cancel := e.bounded(e.ctx)
	defer cancel()

	v, err := el.Property("checked")
	return err == nil && v.Bool()
}

func (e *rodElement) SetFiles(ctx context.Context, paths []string) error {
	el, cancel := e.bounded(ctx)
	defer cancel()
	return el.SetFiles(paths)
}

func (e *rodElement) Options() ([]string, error) {
	el, cancel := e.bounded(e.ctx)
	defer cancel()

	opts, err := el.Elements("option")
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(opts))
	for _, o := range opts {
		t, err := o.Text()
		if err != nil {
			return nil, err
		}
		texts = append(texts, t)
	}
	return texts, nil
}

func (e *rodElement) Select(ctx context.Context, optionText string) error {
	el, cancel := e.bounded(ctx)
	defer cancel()
	return el.Select([]string{optionText}, true, rod.SelectorTypeText)
}

func (e *rodElement) Label() string {
	el, cancel := e.bounded(e.ctx)
	defer cancel()

	res, err := el.Eval(`() => {
		const l = this.labels && this.labels[0];
		return l ? l.innerText : '';
	}`)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

func (e *rodElement) Find(selector string) (Element, error) {
	el, cancel := e.bounded(e.ctx)
	defer cancel()

	has, found, err := el.Has(selector)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return &rodElement{el: found, ctx: e.ctx, wait: e.wait}, nil
}

func (e *rodElement) FindAll(selector string) ([]Element, error) {
	el, cancel := e.bounded(e.ctx)
	defer cancel()

	els, err := el.Elements(selector)
	if err != nil {
		return nil, err
	}
	return e.wrapAll(els), nil
}

// getSystemChromePath finds the system-installed Chrome/Chromium browser
func getSystemChromePath() string {
	for _, env := range []string{"CHROME_BIN", "CHROME_PATH"} {
		if p := os.Getenv(env); p != "" {
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}

	commonPaths := []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
		"/usr/bin/google-chrome-stable",
		"/opt/google/chrome/chrome",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	}
	for _, path := range commonPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
