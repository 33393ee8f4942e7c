package models

import "time"

// CorrelationPair holds the Pearson correlation of returns between two
// symbols. Symbol1 < Symbol2 always (canonical order).
type CorrelationPair struct {
	Symbol1     string
	Symbol2     string
	Coefficient float64 // in [-1, 1]
	PeriodDays  int
	SampleSize  int
	Method      string // "pearson"
	ComputedAt  time.Time
}

// CanonicalPair returns the two symbols in sorted order so that
// (a, b) and (b, a) map to the same stored pair.
func CanonicalPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}
