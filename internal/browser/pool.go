// Package browser owns the shared headless-browser session behind an
// acquire/release contract with recycling policy as internal state.
package browser

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/mferrill/workherald/internal/metrics"
)

// defaultUserAgents is the fixed pool of plausible client identities rotated
// on every recycle to reduce fingerprinting-based blocking.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
}

// Config controls the pool's recycling policy.
type Config struct {
	MaxUses        int
	HealthInterval time.Duration
	NavTimeout     time.Duration
	UserAgents     []string
}

// launchFunc starts a browser with the given identity and returns its context
// plus a cancel that tears the whole browser down. Injectable for tests.
type launchFunc func(userAgent string) (context.Context, context.CancelFunc, error)

// probeFunc checks a browser context for liveness. Injectable for tests.
type probeFunc func(browserCtx context.Context) error

// Pool owns a single long-lived browser session. Callers never close the
// session directly; they acquire it, render, and return control to the pool.
type Pool struct {
	mu            sync.Mutex
	cfg           Config
	logger        *zap.Logger
	launch        launchFunc
	probe         probeFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	agent         string
	uses          int
	stop          chan struct{}
	stopOnce      sync.Once
}

// New constructs a Pool. The browser is launched lazily on first acquire.
// A background timer probes liveness every HealthInterval and recycles a dead
// session before the next real request arrives.
func New(cfg Config, logger *zap.Logger) *Pool {
	if cfg.MaxUses <= 0 {
		cfg.MaxUses = 25
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 10 * time.Minute
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 45 * time.Second
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = defaultUserAgents
	}
	p := &Pool{
		cfg:    cfg,
		logger: logger,
		launch: launchChromedp,
		probe:  probeChromedp,
		stop:   make(chan struct{}),
	}
	go p.healthLoop()
	return p
}

// Session is a handle on the shared browser for one render cycle.
type Session struct {
	ctx        context.Context
	navTimeout time.Duration
	agent      string
}

// Agent returns the identity string of the underlying browser.
func (s *Session) Agent() string {
	return s.agent
}

// Acquire returns the shared session, recycling first when the use ceiling is
// reached, the session has died, or no session exists yet. Launch failures
// propagate; the caller is responsible for failing the in-flight job.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire canceled: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.browserCtx == nil:
		if err := p.recycleLocked("launch"); err != nil {
			return nil, err
		}
	case p.browserCtx.Err() != nil:
		if err := p.recycleLocked("dead"); err != nil {
			return nil, err
		}
	case p.uses >= p.cfg.MaxUses:
		if err := p.recycleLocked("ceiling"); err != nil {
			return nil, err
		}
	}

	p.uses++
	return &Session{ctx: p.browserCtx, navTimeout: p.cfg.NavTimeout, agent: p.agent}, nil
}

// Render acquires the session and renders the URL in a fresh tab, satisfying
// workmeta.Renderer.
func (p *Pool) Render(ctx context.Context, url string) (string, error) {
	session, err := p.Acquire(ctx)
	if err != nil {
		return "", err
	}
	return session.Render(ctx, url)
}

// Render navigates a fresh tab of the shared browser and returns the fully
// rendered DOM.
func (s *Session) Render(ctx context.Context, url string) (string, error) {
	tabCtx, tabCancel := chromedp.NewContext(s.ctx)
	defer tabCancel()

	tabCtx, cancel := context.WithTimeout(tabCtx, s.navTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	defer close(done)

	start := time.Now()
	var html string
	actions := []chromedp.Action{
		network.Enable(),
		emulation.SetUserAgentOverride(s.agent),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return "", fmt.Errorf("render %s: %w", url, err)
	}
	metrics.ObserveRender(time.Since(start))
	return html, nil
}

// Shutdown stops the health timer and closes the browser.
func (p *Pool) Shutdown() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	p.logger.Info("browser pool shut down")
}

// recycleLocked closes the current session best-effort and launches a
// replacement under a freshly chosen identity. Caller holds the lock.
func (p *Pool) recycleLocked(cause string) error {
	p.closeLocked()

	agent := p.pickAgent()
	browserCtx, cancel, err := p.launch(agent)
	if err != nil {
		metrics.ObserveBrowserRecycle("launch")
		return fmt.Errorf("launch browser: %w", err)
	}
	p.browserCtx = browserCtx
	p.browserCancel = cancel
	p.agent = agent
	p.uses = 0
	metrics.ObserveBrowserRecycle(cause)
	p.logger.Info("browser session replaced",
		zap.String("cause", cause),
		zap.String("agent", agent),
	)
	return nil
}

func (p *Pool) closeLocked() {
	if p.browserCancel != nil {
		p.browserCancel()
	}
	p.browserCtx = nil
	p.browserCancel = nil
	p.uses = 0
}

// pickAgent chooses a new identity, avoiding the current one when the
// configured list has any other entry. A list of duplicates degrades to
// reusing the same identity rather than searching forever.
func (p *Pool) pickAgent() string {
	agents := p.cfg.UserAgents
	others := make([]string, 0, len(agents))
	for _, agent := range agents {
		if agent != p.agent {
			others = append(others, agent)
		}
	}
	if len(others) == 0 {
		return agents[rand.IntN(len(agents))]
	}
	return others[rand.IntN(len(others))]
}

func (p *Pool) healthLoop() {
	ticker := time.NewTicker(p.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.healthCheck()
		}
	}
}

// healthCheck opens and immediately closes a throwaway page as a liveness
// probe. On failure the dead session is closed and replaced immediately so
// no dangling reference survives to the next acquire.
func (p *Pool) healthCheck() {
	p.mu.Lock()
	browserCtx := p.browserCtx
	p.mu.Unlock()
	if browserCtx == nil {
		return
	}

	if err := p.probe(browserCtx); err != nil {
		p.logger.Warn("browser liveness probe failed", zap.Error(err))
		p.mu.Lock()
		defer p.mu.Unlock()
		// Another goroutine may have already replaced the session.
		if p.browserCtx != browserCtx {
			return
		}
		if recycleErr := p.recycleLocked("probe"); recycleErr != nil {
			// Leave the reference nil; the next acquire retries the launch.
			p.logger.Error("proactive recycle failed", zap.Error(recycleErr))
		}
	}
}

// probeChromedp opens a throwaway tab and navigates it to about:blank.
func probeChromedp(browserCtx context.Context) error {
	if err := browserCtx.Err(); err != nil {
		return fmt.Errorf("browser context finished: %w", err)
	}
	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	defer tabCancel()
	tabCtx, cancel := context.WithTimeout(tabCtx, 15*time.Second)
	defer cancel()
	if err := chromedp.Run(tabCtx, chromedp.Navigate("about:blank")); err != nil {
		return fmt.Errorf("probe navigation: %w", err)
	}
	return nil
}

// launchChromedp starts a real headless browser under the given identity and
// blocks until the process is up.
func launchChromedp(userAgent string) (context.Context, context.CancelFunc, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.UserAgent(userAgent),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, nil, fmt.Errorf("start browser: %w", err)
	}

	cancel := func() {
		browserCancel()
		allocCancel()
	}
	return browserCtx, cancel, nil
}
