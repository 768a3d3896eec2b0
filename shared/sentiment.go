package shared

import "time"

// SentimentScore represents a market Fear & Greed reading.
type SentimentScore struct {
	// Value is the score on a 0 (extreme fear) to 100 (extreme greed) scale.
	Value int
	// Timestamp is the time the score was produced.
	Timestamp time.Time
}

// Clamp bounds the provided raw score to the valid sentiment range.
func Clamp(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}

// StaleBy reports whether the score is older than the provided staleness
// window relative to now.
func (s *SentimentScore) StaleBy(now time.Time, window time.Duration) bool {
	return now.Sub(s.Timestamp) > window
}
