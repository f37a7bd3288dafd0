package timing

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
	"go.uber.org/zap"
)

// NetworkProfile is a per-session set of pacing parameters, drawn once when
// the session starts and immutable after. Two sessions never pace identically.
type NetworkProfile struct {
	MinRequestDelay        float64 // milliseconds
	MaxRequestDelay        float64 // milliseconds
	RequestVariability     float64 // in [0.3, 0.7]
	ResponseTimeMultiplier float64 // in [0.8, 1.2]
	ReadingPaceMultiplier  float64 // in [0.8, 1.2]
}

// Engine produces human-like delays. One Engine per session; safe for the
// single caller that owns the session.
type Engine struct {
	logger  *zap.Logger
	profile NetworkProfile

	mu    sync.Mutex
	rng   *rand.Rand
	noise *perlin.Perlin
	start time.Time
}

// NewEngine creates a timing engine and draws the session's network profile.
func NewEngine(logger *zap.Logger) *Engine {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	e := &Engine{
		logger: logger.Named("timing"),
		rng:    rng,
		// Low-frequency 1D noise used to wander thinking pauses smoothly
		// over the life of the session.
		noise: perlin.NewPerlin(2, 2, 3, rng.Int63()),
		start: time.Now(),
	}
	e.profile = e.generateNetworkProfile()
	e.logger.Debug("Network behavior profile generated",
		zap.Float64("min_request_delay", e.profile.MinRequestDelay),
		zap.Float64("max_request_delay", e.profile.MaxRequestDelay),
		zap.Float64("request_variability", e.profile.RequestVariability),
	)
	return e
}

// Profile returns the session's immutable network profile.
func (e *Engine) Profile() NetworkProfile {
	return e.profile
}

func (e *Engine) generateNetworkProfile() NetworkProfile {
	e.mu.Lock()
	defer e.mu.Unlock()
	return NetworkProfile{
		MinRequestDelay:        500 + e.rng.Float64()*500,   // 500-1000ms
		MaxRequestDelay:        2500 + e.rng.Float64()*2500, // 2500-5000ms
		RequestVariability:     0.3 + e.rng.Float64()*0.4,   // 0.3-0.7
		ResponseTimeMultiplier: 0.8 + e.rng.Float64()*0.4,   // 0.8-1.2
		ReadingPaceMultiplier:  0.8 + e.rng.Float64()*0.4,   // 0.8-1.2
	}
}

// uniform returns a random float in [min, max).
func (e *Engine) uniform(min, max float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return min + e.rng.Float64()*(max-min)
}

// AdaptiveDelay computes the pacing delay before the next outbound operation.
// Fresh sessions move briskly; as the observed response times and the request
// count grow, the pace slows, modeling degrading patience and a busier site.
func (e *Engine) AdaptiveDelay(stats *RequestStats) time.Duration {
	if stats.TotalRequests == 0 {
		return time.Duration(e.uniform(100, 300)) * time.Millisecond
	}

	var baseDelay float64
	switch {
	case stats.AverageResponseTime < 500:
		baseDelay = 200
	case stats.AverageResponseTime < 2000:
		baseDelay = 500
	default:
		baseDelay = 1000
	}

	fatigueFactor := float64(stats.TotalRequests) * 50
	if fatigueFactor > 500 {
		fatigueFactor = 500
	}

	randomFactor := e.uniform(0.5, 1.5)
	delay := (baseDelay + fatigueFactor) * randomFactor

	return clampMs(delay, float64(stats.MinDelay), float64(stats.MaxDelay))
}

// ApplyProfile perturbs a base delay by the session's behavior profile:
// +/- base*variability, scaled by the response-time multiplier, reclamped to
// the profile's own bounds.
func (e *Engine) ApplyProfile(base time.Duration) time.Duration {
	baseMs := float64(base) / float64(time.Millisecond)

	perturbation := (e.uniform(0, 2) - 1) * baseMs * e.profile.RequestVariability
	scaled := (baseMs + perturbation) * e.profile.ResponseTimeMultiplier

	return clampMs(scaled, e.profile.MinRequestDelay, e.profile.MaxRequestDelay)
}

// ThinkingTime returns the pause applied before an interactive UI action,
// independent of network statistics. Uniform over [500ms, 3000ms), with a
// smooth noise wander (scaled by the reading pace) so consecutive pauses
// drift rather than jump. The result always stays inside the same bounds.
func (e *Engine) ThinkingTime() time.Duration {
	base := e.uniform(500, 3000)

	elapsed := time.Since(e.start).Seconds()
	wander := e.noise.Noise1D(elapsed*0.1) * 400 * e.profile.ReadingPaceMultiplier

	return clampMs(base+wander, 500, 3000)
}

// Sleep pauses for the given duration, respecting context cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func clampMs(ms, min, max float64) time.Duration {
	if ms < min {
		ms = min
	}
	if ms > max {
		ms = max
	}
	return time.Duration(ms) * time.Millisecond
}
