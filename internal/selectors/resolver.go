// Package selectors resolves DOM locators against a live page using ordered
// fallback lists. The target site ships frequent markup changes, so no single
// locator is trusted; each operation walks a fixed priority list and caches
// the winner for the rest of the session.
package selectors

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrExhausted is returned when every candidate in a set failed to appear.
// It is fatal for the operation that needed the element and must propagate.
var ErrExhausted = errors.New("no response elements found")

// Waiter waits for a selector to become visible on the live page. The
// supervisor implements this on top of its page handle.
type Waiter interface {
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
}

// SearchInputCandidates is the priority-ordered locator list for the query
// input box.
var SearchInputCandidates = []string{
	`textarea[placeholder*="Ask"]`,
	`textarea[placeholder*="ask"]`,
	`textarea[aria-label*="Ask"]`,
	`div[contenteditable="true"]`,
	`textarea`,
}

// AnswerCandidates is the priority-ordered locator list for the rendered
// answer container.
var AnswerCandidates = []string{
	`div[class*="prose"]`,
	`.prose`,
	`div[class*="answer"]`,
	`main article`,
}

// CaptchaCandidates is the priority-ordered locator list for bot-challenge
// indicators.
var CaptchaCandidates = []string{
	`iframe[src*="captcha"]`,
	`iframe[src*="challenge"]`,
	`div[class*="captcha"]`,
	`#challenge-running`,
	`#cf-challenge-running`,
}

// Resolver performs ordered fallback resolution over one candidate list and
// caches the winning locator as a fast path. Caching never reorders priority;
// it only skips the scan while the cached locator keeps working.
type Resolver struct {
	logger     *zap.Logger
	candidates []string
	timeout    time.Duration

	mu     sync.Mutex
	cached string
}

// NewResolver builds a resolver over an ordered candidate list. timeout
// bounds the wait for each individual candidate.
func NewResolver(logger *zap.Logger, candidates []string, timeout time.Duration) *Resolver {
	return &Resolver{
		logger:     logger.Named("selectors"),
		candidates: candidates,
		timeout:    timeout,
	}
}

// Resolve returns the first candidate visible on the page. A previously
// winning candidate is tried first; on a miss the full ordered scan runs
// again. Exhaustion returns ErrExhausted.
func (r *Resolver) Resolve(ctx context.Context, w Waiter) (string, error) {
	if cached := r.Cached(); cached != "" {
		if err := w.WaitVisible(ctx, cached, r.timeout); err == nil {
			return cached, nil
		}
		r.logger.Debug("Cached selector no longer matches, rescanning.", zap.String("selector", cached))
		r.setCached("")
	}

	for _, candidate := range r.candidates {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if err := w.WaitVisible(ctx, candidate, r.timeout); err != nil {
			r.logger.Debug("Selector candidate missed.", zap.String("selector", candidate), zap.Error(err))
			continue
		}
		r.logger.Debug("Selector resolved.", zap.String("selector", candidate))
		r.setCached(candidate)
		return candidate, nil
	}

	return "", ErrExhausted
}

// Cached returns the currently cached winner, or "".
func (r *Resolver) Cached() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cached
}

func (r *Resolver) setCached(s string) {
	r.mu.Lock()
	r.cached = s
	r.mu.Unlock()
}
