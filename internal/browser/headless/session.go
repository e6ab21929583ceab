// Package headless drives a single headless Chrome tab through chromedp.
package headless

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/jobpost-harvester/internal/harvest"
)

const (
	scrollScript = "window.scrollBy(0, %d);"
	bottomScript = "(window.innerHeight + window.scrollY) >= document.body.scrollHeight"
	linksScript  = "Array.from(document.querySelectorAll('a')).map(a => a.href).filter(Boolean)"
)

// ErrSessionClosed is returned by operations on a released session.
var ErrSessionClosed = errors.New("browser session closed")

// Config controls how Chrome is launched.
type Config struct {
	Headless          bool
	UserAgent         string
	NavigationTimeout time.Duration
	WindowWidth       int
	WindowHeight      int

	// MinNavigationInterval spaces consecutive navigations across every
	// session of a Launcher. Zero disables the limit.
	MinNavigationInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 45 * time.Second
	}
	if c.WindowWidth <= 0 {
		c.WindowWidth = 1366
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = 900
	}
	return c
}

func (c Config) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	if c.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(c.WindowWidth, c.WindowHeight),
	)
	if c.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.UserAgent))
	}
	return opts
}

func newNavigationLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Launcher starts Chrome sessions.
type Launcher struct {
	cfg     Config
	logger  *zap.Logger
	limiter *rate.Limiter
}

// NewLauncher returns a Launcher for cfg.
func NewLauncher(cfg Config, logger *zap.Logger) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Launcher{cfg: cfg, logger: logger, limiter: newNavigationLimiter(cfg.MinNavigationInterval)}
}

// Launch starts Chrome and opens the tab every Session operation runs in.
func (l *Launcher) Launch(ctx context.Context) (harvest.Browser, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), l.cfg.allocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		cfg:         l.cfg,
		ctx:         tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		meta:        &documentMeta{},
		logger:      l.logger,
		limiter:     l.limiter,
	}
	chromedp.ListenTarget(tabCtx, s.meta.captureEvent)

	// The first Run allocates Chrome and binds the process to tabCtx, so it
	// must not carry a per-operation timeout.
	if err := s.start(ctx); err != nil {
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	warmup := chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if l.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(l.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
	if err := s.run(ctx, warmup); err != nil {
		s.shutdown()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	l.logger.Debug("chrome started", zap.Bool("headless", l.cfg.Headless))
	return s, nil
}

// Session is one Chrome tab. It is not safe for concurrent navigation.
type Session struct {
	cfg         Config
	ctx         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	meta        *documentMeta
	logger      *zap.Logger
	limiter     *rate.Limiter

	mu     sync.Mutex
	closed bool
}

// Navigate loads url and waits for the body to be ready. A document response
// with an HTTP error status is reported as an error.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("navigation rate limit: %w", err)
	}
	s.meta.reset()
	err := s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if status := s.meta.status(); status >= 400 {
		return &StatusError{URL: url, Status: status}
	}
	return nil
}

// PageSource returns the serialized DOM of the current page.
func (s *Session) PageSource(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("outer html: %w", err)
	}
	return html, nil
}

// Links returns the resolved href of every anchor in document order.
func (s *Session) Links(ctx context.Context) ([]string, error) {
	var links []string
	if err := s.run(ctx, chromedp.Evaluate(linksScript, &links)); err != nil {
		return nil, fmt.Errorf("collect links: %w", err)
	}
	return links, nil
}

// ScrollBy scrolls the viewport down by dy pixels.
func (s *Session) ScrollBy(ctx context.Context, dy int) error {
	if err := s.run(ctx, chromedp.Evaluate(fmt.Sprintf(scrollScript, dy), nil)); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

// AtBottom reports whether the viewport has reached the document height.
func (s *Session) AtBottom(ctx context.Context) (bool, error) {
	var bottom bool
	if err := s.run(ctx, chromedp.Evaluate(bottomScript, &bottom)); err != nil {
		return false, fmt.Errorf("scroll position: %w", err)
	}
	return bottom, nil
}

// Close shuts Chrome down. Subsequent calls are no-ops.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.shutdown()
	return nil
}

func (s *Session) shutdown() {
	if s.tabCancel != nil {
		s.tabCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// start launches the browser process under the tab context. Canceling ctx
// while Chrome is starting tears the session down.
func (s *Session) start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		s.shutdown()
		return err
	}
	stop := forwardCancel(ctx, s.shutdown)
	err := chromedp.Run(s.ctx)
	stop()
	if err != nil {
		s.shutdown()
		return err
	}
	return nil
}

// run executes actions in the tab under the navigation timeout, aborting early
// when the caller's ctx is canceled.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	taskCtx, cancel := context.WithTimeout(s.ctx, s.cfg.NavigationTimeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

// StatusError reports a document response with an HTTP error status.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("navigate %s: http status %d", e.URL, e.Status)
}

type documentMeta struct {
	mu   sync.Mutex
	code int
	url  string
}

func (m *documentMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	m.code = int(resp.Response.Status)
	m.url = resp.Response.URL
	m.mu.Unlock()
}

func (m *documentMeta) reset() {
	m.mu.Lock()
	m.code, m.url = 0, ""
	m.mu.Unlock()
}

func (m *documentMeta) status() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.code
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
