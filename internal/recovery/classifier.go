// Package recovery decides how to repair a failed browser operation: it
// classifies raw failure messages, ranks the severity of the repair needed,
// and computes how long the caller should back off before retrying.
//
// Browser control libraries surface failures as free text, so classification
// is substring matching against fixed vocabularies. The vocabularies live
// here, in one place, so a future structured error code can be mapped in
// without touching the level or backoff logic.
package recovery

import "strings"

// Analysis is the structured view of a single failure message. Categories are
// non-exclusive: one message may set several flags.
type Analysis struct {
	IsTimeout       bool
	IsNavigation    bool
	IsConnection    bool
	IsDetachedFrame bool
	IsCaptcha       bool

	// Running totals across repeated operations, supplied by the caller and
	// passed through unchanged for the backoff calculator's fatigue scaling.
	ConsecutiveTimeouts         int
	ConsecutiveNavigationErrors int
}

// Substring vocabularies per category.
var (
	timeoutMarkers    = []string{"timeout", "timed out"}
	navigationMarkers = []string{"navigation", "net::err"}
	connectionMarkers = []string{"connection", "econnrefused", "network"}
	detachedMarkers   = []string{"detached", "frame"}
	captchaMarkers    = []string{"captcha", "challenge"}
)

func containsAny(msg string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Classify derives an Analysis from a failure message. Matching is
// case-insensitive and deterministic; the consecutive counters are recorded
// verbatim.
func Classify(message string, consecutiveTimeouts, consecutiveNavErrors int) Analysis {
	msg := strings.ToLower(message)
	return Analysis{
		IsTimeout:                   containsAny(msg, timeoutMarkers),
		IsNavigation:                containsAny(msg, navigationMarkers),
		IsConnection:                containsAny(msg, connectionMarkers),
		IsDetachedFrame:             containsAny(msg, detachedMarkers),
		IsCaptcha:                   containsAny(msg, captchaMarkers),
		ConsecutiveTimeouts:         consecutiveTimeouts,
		ConsecutiveNavigationErrors: consecutiveNavErrors,
	}
}
