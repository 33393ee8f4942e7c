package models

import "time"

// ProviderSpec describes one external data source and its rate-limit class.
type ProviderSpec struct {
	ID       string
	Group    string // concurrency group, e.g. "market", "crypto", "economic"
	BaseURL  string
	APIKey   string
	Priority int // lower is tried first when several providers serve a metric

	MaxCalls    int           // calls allowed within Window
	Window      time.Duration // sliding rate window
	MinInterval time.Duration // minimum spacing between two dispatches
	Timeout     time.Duration // per-request timeout
}
