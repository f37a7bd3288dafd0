package recovery

import (
	"math"
	"math/rand"
	"time"
)

// Backoff tuning. Category floors are pre-cap minimums: a timeout is worth
// waiting out longer than a generic failure, and a navigation error longer
// still (redirect loops and interstitials need time to clear).
const (
	backoffBaseMs     = 1000
	backoffCapMs      = 30000
	backoffJitterMs   = 1000
	timeoutFloorMs    = 5000
	navigationFloorMs = 8000

	// Fatigue increments follow a bounded geometric series so repeated
	// same-category failures push the delay up with diminishing returns.
	fatigueStepMs  = 500.0
	fatigueDecay   = 0.8
	fatigueBoundMs = fatigueStepMs / (1 - fatigueDecay)
)

// RetryDelay computes how long the caller should wait before attempt
// attempt+1. Pure: identical inputs differ only by jitter, and every result
// lies within [category floor, 30s].
func RetryDelay(attempt int, analysis Analysis) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	// Exponential base, computed in float to avoid shift overflow on
	// adversarial attempt counts.
	delay := float64(backoffBaseMs) * math.Pow(2, float64(attempt))

	// Category overrides raise the pre-cap floor. Multiple applicable
	// overrides combine by max, never by sum.
	floor := 0.0
	if analysis.IsTimeout {
		floor = timeoutFloorMs
	}
	if analysis.IsNavigation && navigationFloorMs > floor {
		floor = navigationFloorMs
	}
	if delay < floor {
		delay = floor
	}

	delay += fatiguePenalty(analysis)
	delay += rand.Float64() * backoffJitterMs

	if delay > backoffCapMs {
		delay = backoffCapMs
	}
	return time.Duration(delay) * time.Millisecond
}

// fatiguePenalty converts a streak of same-category failures into a bounded
// extra delay: sum of fatigueStepMs * fatigueDecay^i for i < streak, which
// approaches fatigueBoundMs but never reaches it.
func fatiguePenalty(analysis Analysis) float64 {
	streak := 0
	if analysis.IsTimeout && analysis.ConsecutiveTimeouts > streak {
		streak = analysis.ConsecutiveTimeouts
	}
	if analysis.IsNavigation && analysis.ConsecutiveNavigationErrors > streak {
		streak = analysis.ConsecutiveNavigationErrors
	}
	if streak <= 0 {
		return 0
	}
	return fatigueBoundMs * (1 - math.Pow(fatigueDecay, float64(streak)))
}
