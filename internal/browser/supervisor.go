package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/benzntech/perplexity-mcp-zerver-advanced/internal/config"
	"github.com/benzntech/perplexity-mcp-zerver-advanced/internal/navigation"
	"github.com/benzntech/perplexity-mcp-zerver-advanced/internal/recovery"
	"github.com/benzntech/perplexity-mcp-zerver-advanced/internal/sessionstore"
)

// ErrNotInitialized is returned by page operations when no live page exists.
// Callers treat it like any other failure: classify, recover, retry.
var ErrNotInitialized = fmt.Errorf("browser not initialized")

// Supervisor owns the managed Chrome process and the single page used for
// queries. The allocator context maps to the browser executable and the page
// context to the tab; level 2 recovery replaces only the latter, level 3
// tears down both.
type Supervisor struct {
	logger *zap.Logger
	cfg    *config.Config
	store  *sessionstore.Store

	sessionID string

	mu           sync.Mutex
	initializing bool

	allocCtx    context.Context
	allocCancel context.CancelFunc
	pageCtx     context.Context
	pageCancel  context.CancelFunc

	// pendingLocalStorage holds restored localStorage until the first
	// navigation establishes an origin it can be written into.
	pendingLocalStorage map[string]string

	operationCount int
	idleTimer      *time.Timer
}

// NewSupervisor wires a supervisor for one logical session. Nothing is
// launched until Initialize.
func NewSupervisor(logger *zap.Logger, cfg *config.Config, store *sessionstore.Store, sessionID string) *Supervisor {
	return &Supervisor{
		logger:    logger.Named("browser_supervisor"),
		cfg:       cfg,
		store:     store,
		sessionID: sessionID,
	}
}

// Initialize launches the browser process and opens the query page. It is
// idempotent: a ready supervisor returns immediately, and a concurrent
// initialization in flight makes the call a no-op rather than spawning a
// second browser.
func (s *Supervisor) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.initializing {
		s.mu.Unlock()
		s.logger.Debug("Initialization already in progress, skipping")
		return nil
	}
	if s.readyLocked() {
		s.mu.Unlock()
		return nil
	}
	s.initializing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.initializing = false
		s.mu.Unlock()
	}()

	args, err := GenerateArgs(s.cfg.Browser.UserAgent, s.cfg.Browser.ExtraArgs, s.cfg.Browser.AllowDangerousArgs)
	if err != nil {
		// Security rejections are surfaced, never downgraded.
		return err
	}

	s.mu.Lock()
	if s.allocCtx == nil {
		opts := AllocatorOptions(args, s.cfg.Browser.Headless)
		// The allocator outlives any single operation; its lifetime is
		// owned by the supervisor, not the caller's context.
		s.allocCtx, s.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}
	if err := s.openPageLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	pageCtx := s.pageCtx
	s.mu.Unlock()

	// Materialize the tab so connection failures surface here instead of on
	// the first query.
	if err := chromedp.Run(pageCtx, chromedp.Navigate("about:blank")); err != nil {
		s.teardown()
		return fmt.Errorf("failed to establish browser connection: %w", err)
	}

	s.restoreSession(pageCtx)
	s.resetIdleTimer()
	s.logger.Info("Browser session initialized",
		zap.String("session_id", s.sessionID),
		zap.Bool("headless", s.cfg.Browser.Headless),
	)
	return nil
}

// openPageLocked creates a fresh page context from the allocator. Callers
// hold s.mu.
func (s *Supervisor) openPageLocked() error {
	if s.allocCtx == nil {
		return ErrNotInitialized
	}
	if s.pageCancel != nil {
		s.pageCancel()
	}
	s.pageCtx, s.pageCancel = chromedp.NewContext(s.allocCtx,
		chromedp.WithLogf(s.logger.Sugar().Debugf),
		chromedp.WithErrorf(s.logger.Sugar().Errorf),
	)
	return nil
}

// restoreSession loads persisted cookies back into the browser. localStorage
// cannot be written without an origin, so it is stashed and applied after the
// first real navigation.
func (s *Supervisor) restoreSession(pageCtx context.Context) {
	if s.store == nil {
		return
	}
	res := s.store.Restore(s.sessionID)
	if res.Status != sessionstore.StatusRestored {
		s.logger.Debug("No session state to restore", zap.Stringer("status", res.Status))
		return
	}
	if err := s.applyCookies(pageCtx, res.Cookies); err != nil {
		s.logger.Warn("Failed to apply restored cookies", zap.Error(err))
	}
	s.mu.Lock()
	s.pendingLocalStorage = res.LocalStorage
	s.mu.Unlock()
	s.logger.Info("Session state restored",
		zap.Int("cookies", len(res.Cookies)),
		zap.Int("local_storage_keys", len(res.LocalStorage)),
	)
}

func (s *Supervisor) applyCookies(pageCtx context.Context, cookies []sessionstore.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	return chromedp.Run(pageCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			param := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly)
			if c.Expires > 0 {
				expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
				param = param.WithExpires(&expires)
			}
			if c.SameSite != "" {
				param = param.WithSameSite(network.CookieSameSite(c.SameSite))
			}
			if err := param.Do(ctx); err != nil {
				return fmt.Errorf("set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	}))
}

// applyPendingLocalStorage writes stashed localStorage once an origin exists.
// Best effort: a failure here never fails the navigation that triggered it.
func (s *Supervisor) applyPendingLocalStorage(pageCtx context.Context) {
	s.mu.Lock()
	pending := s.pendingLocalStorage
	s.pendingLocalStorage = nil
	s.mu.Unlock()
	if len(pending) == 0 {
		return
	}
	err := chromedp.Run(pageCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		for k, v := range pending {
			var ignored bool
			script := fmt.Sprintf("localStorage.setItem(%q, %q) === undefined", k, v)
			if err := chromedp.Evaluate(script, &ignored).Do(ctx); err != nil {
				return err
			}
		}
		return nil
	}))
	if err != nil {
		s.logger.Warn("Failed to apply restored localStorage", zap.Error(err))
	}
}

// Ready reports whether a live page is available for operations.
func (s *Supervisor) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readyLocked()
}

func (s *Supervisor) readyLocked() bool {
	if s.initializing {
		return false
	}
	if s.allocCtx == nil || s.allocCtx.Err() != nil {
		return false
	}
	return s.pageCtx != nil && s.pageCtx.Err() == nil
}

// Snapshot captures the current environment for recovery-level decisions.
func (s *Supervisor) Snapshot() recovery.Environment {
	s.mu.Lock()
	defer s.mu.Unlock()
	hasBrowser := s.allocCtx != nil
	return recovery.Environment{
		HasBrowser:         hasBrowser,
		IsBrowserConnected: hasBrowser && s.allocCtx.Err() == nil,
		HasValidPage:       s.pageCtx != nil && s.pageCtx.Err() == nil,
		OperationCount:     s.operationCount,
	}
}

// Recover applies the requested recovery level. Level 1 is a no-op at this
// layer (the caller simply retries); level 2 replaces the page while keeping
// the browser process; level 3 tears everything down so the next Initialize
// starts clean.
func (s *Supervisor) Recover(ctx context.Context, level recovery.Level) error {
	switch level {
	case recovery.LevelRetry:
		return nil
	case recovery.LevelReplacePage:
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.openPageLocked(); err != nil {
			return err
		}
		s.logger.Info("Replaced browser page", zap.String("session_id", s.sessionID))
		return nil
	case recovery.LevelRestartBrowser:
		s.teardown()
		s.logger.Info("Browser torn down for restart", zap.String("session_id", s.sessionID))
		return s.Initialize(ctx)
	default:
		return fmt.Errorf("unknown recovery level %d", level)
	}
}

// Navigate drives the page to a URL, waits for the document body, and then
// flushes any restored localStorage into the new origin.
func (s *Supervisor) Navigate(ctx context.Context, url string) error {
	pageCtx, err := s.pageContext()
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(pageCtx, s.cfg.Browser.PageLoadTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitVisible("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	s.applyPendingLocalStorage(pageCtx)
	return nil
}

// Location returns the page's current URL, or the unknown-location sentinel
// when it cannot be read.
func (s *Supervisor) Location(ctx context.Context) string {
	pageCtx, err := s.pageContext()
	if err != nil {
		return navigation.UnknownLocation
	}
	runCtx, cancel := context.WithTimeout(pageCtx, s.cfg.Browser.SelectorTimeout)
	defer cancel()
	var loc string
	if err := chromedp.Run(runCtx, chromedp.Location(&loc)); err != nil {
		s.logger.Debug("Could not read page location", zap.Error(err))
		return navigation.UnknownLocation
	}
	return loc
}

// WaitVisible blocks until the selector matches a visible element or the
// timeout elapses. Implements selectors.Waiter.
func (s *Supervisor) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	pageCtx, err := s.pageContext()
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(pageCtx, timeout)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("selector %q not visible: %w", selector, err)
	}
	return nil
}

// Click focuses an element via a real click event.
func (s *Supervisor) Click(ctx context.Context, selector string) error {
	pageCtx, err := s.pageContext()
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(pageCtx, s.cfg.Browser.SelectorTimeout)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.Click(selector, chromedp.ByQuery))
}

// SendKeys types text into the element matched by selector.
func (s *Supervisor) SendKeys(ctx context.Context, selector, text string) error {
	pageCtx, err := s.pageContext()
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(pageCtx, s.cfg.Browser.SelectorTimeout)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

// Submit sends an Enter keypress to the element matched by selector.
func (s *Supervisor) Submit(ctx context.Context, selector string) error {
	pageCtx, err := s.pageContext()
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(pageCtx, s.cfg.Browser.SelectorTimeout)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.SendKeys(selector, "\r", chromedp.ByQuery))
}

// OuterHTML returns the serialized document for extraction.
func (s *Supervisor) OuterHTML(ctx context.Context) (string, error) {
	pageCtx, err := s.pageContext()
	if err != nil {
		return "", err
	}
	runCtx, cancel := context.WithTimeout(pageCtx, s.cfg.Browser.SelectorTimeout)
	defer cancel()
	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	return html, nil
}

// HarvestCookies reads the browser's current cookie jar.
func (s *Supervisor) HarvestCookies(ctx context.Context) ([]sessionstore.Cookie, error) {
	pageCtx, err := s.pageContext()
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithTimeout(pageCtx, s.cfg.Browser.SelectorTimeout)
	defer cancel()
	var raw []*network.Cookie
	err = chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to harvest cookies: %w", err)
	}
	cookies := make([]sessionstore.Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, sessionstore.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return cookies, nil
}

// HarvestLocalStorage reads the current origin's localStorage as a flat map.
func (s *Supervisor) HarvestLocalStorage(ctx context.Context) (map[string]string, error) {
	pageCtx, err := s.pageContext()
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithTimeout(pageCtx, s.cfg.Browser.SelectorTimeout)
	defer cancel()
	var kv map[string]string
	script := `(() => {
		const out = {};
		for (let i = 0; i < localStorage.length; i++) {
			const k = localStorage.key(i);
			out[k] = localStorage.getItem(k);
		}
		return out;
	})()`
	if err := chromedp.Run(runCtx, chromedp.Evaluate(script, &kv)); err != nil {
		return nil, fmt.Errorf("failed to harvest localStorage: %w", err)
	}
	return kv, nil
}

// SaveSession persists the current cookies and localStorage. Best effort:
// failures are logged, never returned, so persistence problems cannot break
// a query that already succeeded.
func (s *Supervisor) SaveSession(ctx context.Context) {
	if s.store == nil {
		return
	}
	cookies, err := s.HarvestCookies(ctx)
	if err != nil {
		s.logger.Warn("Skipping session save, cookie harvest failed", zap.Error(err))
		return
	}
	localStorage, err := s.HarvestLocalStorage(ctx)
	if err != nil {
		s.logger.Debug("localStorage harvest failed, saving cookies only", zap.Error(err))
		localStorage = nil
	}
	s.store.Save(s.sessionID, cookies, localStorage)
}

// RecordSuccess notes a completed operation: bumps the counter, re-arms the
// idle timer, and recycles the page after the configured number of
// operations to shed accumulated page state.
func (s *Supervisor) RecordSuccess() {
	s.mu.Lock()
	s.operationCount++
	count := s.operationCount
	recycleAfter := s.cfg.Browser.PageRecycleAfter
	s.mu.Unlock()

	s.resetIdleTimer()

	if recycleAfter > 0 && count%recycleAfter == 0 {
		s.logger.Info("Recycling page after sustained use", zap.Int("operations", count))
		s.mu.Lock()
		if err := s.openPageLocked(); err != nil {
			s.logger.Warn("Page recycle failed", zap.Error(err))
		}
		s.mu.Unlock()
	}
}

// OperationCount returns the number of successful operations this session.
func (s *Supervisor) OperationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.operationCount
}

// resetIdleTimer (re)arms the idle shutdown. A supervisor left alone for the
// configured window releases its browser; the next operation re-initializes.
func (s *Supervisor) resetIdleTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	idle := s.cfg.Browser.IdleTimeout
	if idle <= 0 {
		return
	}
	s.idleTimer = time.AfterFunc(idle, func() {
		s.logger.Info("Idle timeout reached, releasing browser",
			zap.String("session_id", s.sessionID),
			zap.Duration("idle_timeout", idle),
		)
		s.Cleanup(context.Background())
	})
}

// Cleanup persists session state and releases the page and browser process.
// Teardown errors are logged, not raised.
func (s *Supervisor) Cleanup(ctx context.Context) {
	s.mu.Lock()
	hasPage := s.pageCtx != nil && s.pageCtx.Err() == nil
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
	s.mu.Unlock()

	if hasPage && s.store != nil {
		s.SaveSession(ctx)
	}
	s.teardown()
	s.logger.Info("Browser session cleaned up", zap.String("session_id", s.sessionID))
}

// teardown cancels page then allocator and nulls the handles.
func (s *Supervisor) teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pageCancel != nil {
		s.pageCancel()
		s.pageCancel = nil
	}
	s.pageCtx = nil
	if s.allocCancel != nil {
		s.allocCancel()
		s.allocCancel = nil
	}
	s.allocCtx = nil
	s.pendingLocalStorage = nil
}

// pageContext returns the live page context or ErrNotInitialized.
func (s *Supervisor) pageContext() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pageCtx == nil || s.pageCtx.Err() != nil {
		return nil, ErrNotInitialized
	}
	return s.pageCtx, nil
}
