// Package timing paces outbound browser operations so the request cadence
// looks like a person, not a loop. It keeps per-session rolling response-time
// statistics, a once-per-session network behavior profile, and the
// human-thinking pauses applied before interactive UI actions.
package timing

import "time"

// Default delay clamp for adaptive pacing, in milliseconds.
const (
	defaultMinDelayMs = 100
	defaultMaxDelayMs = 2500
)

// RequestStats tracks rolling response-time statistics for one session. It is
// exclusively owned by one supervisor and never shared.
type RequestStats struct {
	TotalRequests       int
	AverageResponseTime float64 // exact running mean, milliseconds
	LastRequestTime     time.Time
	MinDelay            int // milliseconds
	MaxDelay            int // milliseconds
}

// NewRequestStats returns the zero-state for a fresh session.
func NewRequestStats() *RequestStats {
	return &RequestStats{
		MinDelay: defaultMinDelayMs,
		MaxDelay: defaultMaxDelayMs,
	}
}

// Update records one observed operation duration and recomputes the exact
// running mean. No smoothing or decay: the mean over n observations is always
// the true arithmetic mean.
func (s *RequestStats) Update(duration time.Duration) {
	ms := float64(duration) / float64(time.Millisecond)
	total := s.AverageResponseTime*float64(s.TotalRequests) + ms
	s.TotalRequests++
	s.AverageResponseTime = total / float64(s.TotalRequests)
	s.LastRequestTime = time.Now()
}
