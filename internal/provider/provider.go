// Package provider holds the clients for the external data feeds. Each
// client knows one provider's endpoints and response shape and issues all
// calls through the shared rate-limited fetcher.
package provider

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"MarketPulse/internal/domain/models"
)

// Source supplies values for logical metrics from one provider.
type Source interface {
	ID() string
	Priority() int
	Supports(t models.DataType) bool
	// Fetch returns the numeric value for the metric. Parsing errors are
	// returned as-is; domain validation happens in the resolver.
	Fetch(ctx context.Context, key models.MetricKey) (float64, error)
}

// Chain returns the sources that can serve the data type, ordered by
// fallback priority.
func Chain(sources []Source, t models.DataType) []Source {
	out := make([]Source, 0, len(sources))
	for _, s := range sources {
		if s.Supports(t) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority() < out[j].Priority() })
	return out
}

// parseFloat converts a JSON string-or-number field.
func parseFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, fmt.Errorf("non-numeric value %q", x)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("missing value")
	default:
		return 0, fmt.Errorf("unexpected value type %T", v)
	}
}
