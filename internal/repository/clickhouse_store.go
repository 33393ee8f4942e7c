package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
)

// Schema statements for the collection tables. ReplacingMergeTree gives
// correlations last-write-wins upsert semantics on the canonical pair key.
var schemaStmts = []string{
	`CREATE TABLE IF NOT EXISTS observations (
		ts        DateTime,
		data_type LowCardinality(String),
		symbol    LowCardinality(String),
		value     Float64,
		source    LowCardinality(String)
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMM(ts)
	ORDER BY (data_type, symbol, ts)
	TTL ts + INTERVAL 180 DAY`,

	`CREATE TABLE IF NOT EXISTS correlations (
		symbol1     LowCardinality(String),
		symbol2     LowCardinality(String),
		coefficient Float64,
		period_days UInt16,
		sample_size UInt32,
		method      LowCardinality(String),
		computed_at DateTime
	) ENGINE = ReplacingMergeTree(computed_at)
	ORDER BY (symbol1, symbol2, period_days)`,

	`CREATE TABLE IF NOT EXISTS narrative_groups (
		label            String,
		members          Array(String),
		total_volume     Float64,
		total_market_cap Float64,
		avg_change       Float64,
		sentiment        LowCardinality(String),
		money_flow       Float64,
		relevance        Float64,
		computed_at      DateTime
	) ENGINE = MergeTree()
	ORDER BY (computed_at, label)
	TTL computed_at + INTERVAL 90 DAY`,

	`CREATE TABLE IF NOT EXISTS alerts (
		id          String,
		alert_type  LowCardinality(String),
		metric      String,
		severity    LowCardinality(String),
		value       Float64,
		message     String,
		dedup_key   String,
		event_id    String,
		event_at    DateTime,
		computed_at DateTime,
		accepted_at DateTime
	) ENGINE = MergeTree()
	ORDER BY (accepted_at, dedup_key)`,
}

// ClickHouseStore implements the Store interface on ClickHouse.
type ClickHouseStore struct {
	db *sql.DB
}

func NewClickHouseStore(db *sql.DB) drepo.Store {
	return &ClickHouseStore{db: db}
}

func (s *ClickHouseStore) Init(ctx context.Context) error {
	for _, stmt := range schemaStmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseStore) Close() error {
	return nil // pool lifetime is owned by pkg/clickhouse
}

func (s *ClickHouseStore) InsertObservation(ctx context.Context, o *models.Observation) error {
	return s.InsertObservations(ctx, []*models.Observation{o})
}

func (s *ClickHouseStore) InsertObservations(ctx context.Context, os []*models.Observation) error {
	if len(os) == 0 {
		return nil
	}
	// multi-row VALUES keeps one round-trip per chunk
	const chunkSize = 2000
	for start := 0; start < len(os); start += chunkSize {
		end := start + chunkSize
		if end > len(os) {
			end = len(os)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*5)
		for _, o := range os[start:end] {
			if o == nil || o.Symbol == "" {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?)")
			args = append(args, o.Ts, string(o.DataType), o.Symbol, o.Value, o.Source)
		}
		if len(values) == 0 {
			continue
		}
		q := "INSERT INTO observations (ts, data_type, symbol, value, source) VALUES " + strings.Join(values, ",")
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert observations: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseStore) Series(ctx context.Context, key models.MetricKey, limit int) ([]*models.Observation, error) {
	q := `SELECT ts, value, source FROM (
		SELECT ts, value, source FROM observations
		WHERE data_type = ? AND symbol = ?
		ORDER BY ts DESC LIMIT ?
	) ORDER BY ts ASC`
	rows, err := s.db.QueryContext(ctx, q, string(key.DataType), key.Symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("series %s: %w", key, err)
	}
	defer rows.Close()

	var out []*models.Observation
	for rows.Next() {
		o := &models.Observation{DataType: key.DataType, Symbol: key.Symbol}
		if err := rows.Scan(&o.Ts, &o.Value, &o.Source); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *ClickHouseStore) Latest(ctx context.Context, key models.MetricKey) (*models.Observation, error) {
	q := `SELECT ts, value, source FROM observations
		WHERE data_type = ? AND symbol = ?
		ORDER BY ts DESC LIMIT 1`
	o := &models.Observation{DataType: key.DataType, Symbol: key.Symbol}
	err := s.db.QueryRowContext(ctx, q, string(key.DataType), key.Symbol).Scan(&o.Ts, &o.Value, &o.Source)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest %s: %w", key, err)
	}
	return o, nil
}

func (s *ClickHouseStore) UpsertCorrelations(ctx context.Context, pairs []*models.CorrelationPair) error {
	if len(pairs) == 0 {
		return nil
	}
	values := make([]string, 0, len(pairs))
	args := make([]interface{}, 0, len(pairs)*7)
	for _, p := range pairs {
		values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
		args = append(args, p.Symbol1, p.Symbol2, p.Coefficient, p.PeriodDays, p.SampleSize, p.Method, p.ComputedAt)
	}
	q := "INSERT INTO correlations (symbol1, symbol2, coefficient, period_days, sample_size, method, computed_at) VALUES " +
		strings.Join(values, ",")
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("upsert correlations: %w", err)
	}
	return nil
}

func (s *ClickHouseStore) InsertNarrativeGroups(ctx context.Context, groups []*models.NarrativeGroup) error {
	if len(groups) == 0 {
		return nil
	}
	values := make([]string, 0, len(groups))
	args := make([]interface{}, 0, len(groups)*9)
	for _, g := range groups {
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, g.Label, g.Members, g.TotalVolume, g.TotalMarketCap,
			g.AvgChange, string(g.Sentiment), g.MoneyFlowScore, g.RelevanceScore, g.ComputedAt)
	}
	q := "INSERT INTO narrative_groups (label, members, total_volume, total_market_cap, avg_change, sentiment, money_flow, relevance, computed_at) VALUES " +
		strings.Join(values, ",")
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert narrative groups: %w", err)
	}
	return nil
}

func (s *ClickHouseStore) LatestNarrativeGroups(ctx context.Context) ([]*models.NarrativeGroup, error) {
	q := `SELECT label, members, total_volume, total_market_cap, avg_change, sentiment, money_flow, relevance, computed_at
		FROM narrative_groups
		WHERE computed_at = (SELECT max(computed_at) FROM narrative_groups)
		ORDER BY money_flow DESC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("latest narrative groups: %w", err)
	}
	defer rows.Close()

	var out []*models.NarrativeGroup
	for rows.Next() {
		g := &models.NarrativeGroup{}
		var sentiment string
		if err := rows.Scan(&g.Label, &g.Members, &g.TotalVolume, &g.TotalMarketCap,
			&g.AvgChange, &sentiment, &g.MoneyFlowScore, &g.RelevanceScore, &g.ComputedAt); err != nil {
			return nil, err
		}
		g.Sentiment = models.Sentiment(sentiment)
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *ClickHouseStore) InsertAlert(ctx context.Context, a *models.AlertRecord) error {
	q := `INSERT INTO alerts (id, alert_type, metric, severity, value, message, dedup_key, event_id, event_at, computed_at, accepted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		a.ID, string(a.Type), a.Metric, string(a.Severity), a.Value, a.Message,
		a.DedupKey, a.EventID, orEpoch(a.EventAt), a.ComputedAt, a.AcceptedAt)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (s *ClickHouseStore) AlertExists(ctx context.Context, dedupKey string, since time.Time) (bool, error) {
	var n uint64
	q := `SELECT count() FROM alerts WHERE dedup_key = ? AND accepted_at >= ?`
	if err := s.db.QueryRowContext(ctx, q, dedupKey, since).Scan(&n); err != nil {
		return false, fmt.Errorf("alert exists: %w", err)
	}
	return n > 0, nil
}

func (s *ClickHouseStore) RecentAlerts(ctx context.Context, limit int) ([]*models.AlertRecord, error) {
	q := `SELECT id, alert_type, metric, severity, value, message, dedup_key, event_id, event_at, computed_at, accepted_at
		FROM alerts ORDER BY accepted_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("recent alerts: %w", err)
	}
	defer rows.Close()

	var out []*models.AlertRecord
	for rows.Next() {
		a := &models.AlertRecord{}
		var typ, sev string
		if err := rows.Scan(&a.ID, &typ, &a.Metric, &sev, &a.Value, &a.Message,
			&a.DedupKey, &a.EventID, &a.EventAt, &a.ComputedAt, &a.AcceptedAt); err != nil {
			return nil, err
		}
		a.Type = models.AlertType(typ)
		a.Severity = models.Severity(sev)
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteAlertsBefore counts then issues an async mutation; the count is
// the number of rows the mutation will remove.
func (s *ClickHouseStore) DeleteAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n uint64
	if err := s.db.QueryRowContext(ctx, `SELECT count() FROM alerts WHERE accepted_at < ?`, cutoff).Scan(&n); err != nil {
		return 0, fmt.Errorf("count expired alerts: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	if _, err := s.db.ExecContext(ctx, `ALTER TABLE alerts DELETE WHERE accepted_at < ?`, cutoff); err != nil {
		return 0, fmt.Errorf("purge alerts: %w", err)
	}
	return int64(n), nil
}

func (s *ClickHouseStore) CollapseDuplicateAlerts(ctx context.Context) (int64, error) {
	countQ := `SELECT count() - uniqExact(alert_type, metric) FROM alerts`
	var n uint64
	if err := s.db.QueryRowContext(ctx, countQ).Scan(&n); err != nil {
		return 0, fmt.Errorf("count duplicate alerts: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	// keep the most recent record per (type, metric)
	q := `ALTER TABLE alerts DELETE WHERE (alert_type, metric, accepted_at) NOT IN (
		SELECT alert_type, metric, max(accepted_at) FROM alerts GROUP BY alert_type, metric
	)`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return 0, fmt.Errorf("collapse duplicate alerts: %w", err)
	}
	return int64(n), nil
}

func (s *ClickHouseStore) DeletePastEventAlerts(ctx context.Context, now time.Time) (int64, error) {
	var n uint64
	countQ := `SELECT count() FROM alerts WHERE event_id != '' AND event_at < ?`
	if err := s.db.QueryRowContext(ctx, countQ, now).Scan(&n); err != nil {
		return 0, fmt.Errorf("count past event alerts: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	if _, err := s.db.ExecContext(ctx, `ALTER TABLE alerts DELETE WHERE event_id != '' AND event_at < ?`, now); err != nil {
		return 0, fmt.Errorf("delete past event alerts: %w", err)
	}
	return int64(n), nil
}

// orEpoch maps the zero time to the unix epoch so ClickHouse DateTime
// never sees a pre-1970 value.
func orEpoch(t time.Time) time.Time {
	if t.IsZero() {
		return time.Unix(0, 0)
	}
	return t
}
