// Package engine drives the full question/answer loop: pace, navigate,
// locate the input, submit, await the rendered answer, and repair the
// session when any step fails.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benzntech/perplexity-mcp-zerver-advanced/internal/config"
	"github.com/benzntech/perplexity-mcp-zerver-advanced/internal/history"
	"github.com/benzntech/perplexity-mcp-zerver-advanced/internal/navigation"
	"github.com/benzntech/perplexity-mcp-zerver-advanced/internal/recovery"
	"github.com/benzntech/perplexity-mcp-zerver-advanced/internal/selectors"
	"github.com/benzntech/perplexity-mcp-zerver-advanced/internal/timing"
)

// captchaProbeTimeout bounds each captcha-indicator probe. Probes run on
// every query, so they must stay cheap; the indicators appear immediately
// when a challenge is served.
const captchaProbeTimeout = 500 * time.Millisecond

// answerPollInterval is the gap between answer-stability reads while the
// response streams in.
const answerPollInterval = 1500 * time.Millisecond

// Browser is the session supervisor surface the engine drives. Implemented
// by browser.Supervisor; faked in tests.
type Browser interface {
	Initialize(ctx context.Context) error
	Ready() bool
	Snapshot() recovery.Environment
	Recover(ctx context.Context, level recovery.Level) error
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) string
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	Click(ctx context.Context, selector string) error
	SendKeys(ctx context.Context, selector, text string) error
	Submit(ctx context.Context, selector string) error
	OuterHTML(ctx context.Context) (string, error)
	RecordSuccess()
	SaveSession(ctx context.Context)
}

// Recorder persists completed exchanges. Optional.
type Recorder interface {
	Append(ctx context.Context, e history.Exchange) error
}

// Engine runs queries against the target site with humanized pacing and
// escalating recovery.
type Engine struct {
	logger    *zap.Logger
	cfg       *config.Config
	browser   Browser
	timing    *timing.Engine
	stats     *timing.RequestStats
	recorder  Recorder
	sessionID string

	searchInput *selectors.Resolver
	answer      *selectors.Resolver
	captcha     *selectors.Resolver

	consecutiveTimeouts  int
	consecutiveNavErrors int

	// sleep is swappable so tests run without real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// New assembles an engine over a browser supervisor. recorder may be nil
// when history persistence is disabled.
func New(logger *zap.Logger, cfg *config.Config, b Browser, t *timing.Engine, recorder Recorder, sessionID string) *Engine {
	log := logger.Named("engine")
	answerPerCandidate := cfg.Browser.AnswerTimeout / time.Duration(len(selectors.AnswerCandidates))
	return &Engine{
		logger:      log,
		cfg:         cfg,
		browser:     b,
		timing:      t,
		stats:       timing.NewRequestStats(),
		recorder:    recorder,
		sessionID:   sessionID,
		searchInput: selectors.NewResolver(log, selectors.SearchInputCandidates, cfg.Browser.SelectorTimeout),
		answer:      selectors.NewResolver(log, selectors.AnswerCandidates, answerPerCandidate),
		captcha:     selectors.NewResolver(log, selectors.CaptchaCandidates, captchaProbeTimeout),
		sleep:       timing.Sleep,
	}
}

// Stats exposes the running response-time statistics.
func (e *Engine) Stats() *timing.RequestStats {
	return e.stats
}

// Ask runs one question through the full loop. Recoverable failures are
// retried with escalating repair; once retries are exhausted the returned
// string is a descriptive failure message rather than an error, so a single
// failed query degrades gracefully instead of severing the session.
func (e *Engine) Ask(ctx context.Context, question string) (string, error) {
	if question == "" {
		return "", fmt.Errorf("question must not be empty")
	}
	if !navigation.ValidateURL(e.cfg.Target.URL, e.cfg.Target.ExpectedDomain) {
		// A bad target is a configuration problem, not a transient failure.
		return "", fmt.Errorf("configured target url %q is not a valid https url for domain %q",
			e.cfg.Target.URL, e.cfg.Target.ExpectedDomain)
	}

	start := time.Now()
	var lastErr error
	maxRetries := e.cfg.Engine.MaxRetries

	for attempt := 0; attempt <= maxRetries; attempt++ {
		answer, err := e.attempt(ctx, question)
		if err == nil {
			e.consecutiveTimeouts = 0
			e.consecutiveNavErrors = 0
			e.record(ctx, question, answer, attempt+1, time.Since(start))
			return answer, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err

		msg := err.Error()
		analysis := recovery.Classify(msg, e.consecutiveTimeouts, e.consecutiveNavErrors)
		if analysis.IsTimeout {
			e.consecutiveTimeouts++
		} else {
			e.consecutiveTimeouts = 0
		}
		if analysis.IsNavigation {
			e.consecutiveNavErrors++
		} else {
			e.consecutiveNavErrors = 0
		}
		analysis.ConsecutiveTimeouts = e.consecutiveTimeouts
		analysis.ConsecutiveNavigationErrors = e.consecutiveNavErrors

		env := e.browser.Snapshot()
		level := recovery.DetermineLevel(msg, &env)
		e.logger.Warn("Query attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Stringer("recovery_level", level),
			zap.Error(err),
		)
		if recoverErr := e.browser.Recover(ctx, level); recoverErr != nil {
			e.logger.Error("Recovery failed", zap.Stringer("level", level), zap.Error(recoverErr))
		}

		if attempt < maxRetries {
			delay := recovery.RetryDelay(attempt, analysis)
			e.logger.Info("Backing off before retry", zap.Duration("delay", delay))
			if err := e.sleep(ctx, delay); err != nil {
				return "", err
			}
		}
	}

	e.logger.Error("Query failed after all retries", zap.Error(lastErr))
	return e.failureMessage(lastErr), nil
}

// attempt performs one paced pass: navigate, locate the input, type, submit,
// and await a stable answer.
func (e *Engine) attempt(ctx context.Context, question string) (string, error) {
	if !e.browser.Ready() {
		if err := e.browser.Initialize(ctx); err != nil {
			return "", err
		}
	}

	pacing := e.timing.ApplyProfile(e.timing.AdaptiveDelay(e.stats))
	if err := e.sleep(ctx, pacing); err != nil {
		return "", err
	}

	start := time.Now()

	if err := e.browser.Navigate(ctx, e.cfg.Target.URL); err != nil {
		return "", err
	}
	loc := e.browser.Location(ctx)
	if navigation.IsFailure(loc, e.cfg.Target.URL) {
		return "", fmt.Errorf("navigation failed: landed on %s", loc)
	}

	if sel, err := e.captcha.Resolve(ctx, e.browser); err == nil {
		return "", fmt.Errorf("captcha challenge detected (%s)", sel)
	}

	input, err := e.searchInput.Resolve(ctx, e.browser)
	if err != nil {
		return "", fmt.Errorf("search input not found: %w", err)
	}

	if err := e.sleep(ctx, e.timing.ThinkingTime()); err != nil {
		return "", err
	}

	if err := e.browser.Click(ctx, input); err != nil {
		return "", fmt.Errorf("failed to focus search input: %w", err)
	}
	if err := e.browser.SendKeys(ctx, input, question); err != nil {
		return "", fmt.Errorf("failed to type question: %w", err)
	}
	if err := e.browser.Submit(ctx, input); err != nil {
		return "", fmt.Errorf("failed to submit question: %w", err)
	}

	answerSel, err := e.answer.Resolve(ctx, e.browser)
	if err != nil {
		return "", err
	}
	answer, err := e.awaitAnswer(ctx, answerSel)
	if err != nil {
		return "", err
	}

	e.stats.Update(time.Since(start))
	e.browser.RecordSuccess()
	e.browser.SaveSession(ctx)
	return answer, nil
}

// awaitAnswer polls the rendered answer until its text stops changing
// between reads or the answer budget runs out. A partial answer at the
// deadline is still returned; the stream may simply have stalled at the end.
func (e *Engine) awaitAnswer(ctx context.Context, selector string) (string, error) {
	deadline := time.Now().Add(e.cfg.Browser.AnswerTimeout)
	var last string
	for {
		html, err := e.browser.OuterHTML(ctx)
		if err != nil {
			return "", err
		}
		text := ExtractAnswer(html, selector)
		if text != "" && text == last {
			return text, nil
		}
		last = text
		if time.Now().After(deadline) {
			if last != "" {
				return last, nil
			}
			return "", fmt.Errorf("timeout waiting for answer to render")
		}
		if err := e.sleep(ctx, answerPollInterval); err != nil {
			return "", err
		}
	}
}

// record persists the exchange when a recorder is configured. Best effort.
func (e *Engine) record(ctx context.Context, question, answer string, attempts int, duration time.Duration) {
	if e.recorder == nil {
		return
	}
	err := e.recorder.Append(ctx, history.Exchange{
		ID:        uuid.NewString(),
		SessionID: e.sessionID,
		Question:  question,
		Answer:    answer,
		Attempts:  attempts,
		Duration:  duration,
		AskedAt:   time.Now().UTC(),
	})
	if err != nil {
		e.logger.Warn("Failed to record exchange", zap.Error(err))
	}
}

// failureMessage maps an exhausted failure to a user-facing explanation.
func (e *Engine) failureMessage(err error) string {
	if err == nil {
		return "The query could not be completed. Please try again."
	}
	a := recovery.Classify(err.Error(), 0, 0)
	switch {
	case a.IsCaptcha:
		return "The service presented a verification challenge that could not be completed automatically. Please try again later."
	case a.IsTimeout:
		return "The service is taking longer than expected to respond. Please try a simpler query or try again in a few minutes."
	case a.IsNavigation || a.IsConnection:
		return "There was a problem reaching the service. Please check your connection and try again."
	case a.IsDetachedFrame:
		return "The session hit a technical issue and was reset. Please try your query again."
	default:
		return fmt.Sprintf("The query could not be completed: %v. Please try again.", err)
	}
}
