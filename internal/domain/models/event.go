package models

import "time"

// EconomicEvent is one scheduled calendar entry (CPI release, FOMC, ...).
type EconomicEvent struct {
	ID          string
	Title       string
	Country     string
	Impact      string // "low", "medium", "high"
	ScheduledAt time.Time
}
