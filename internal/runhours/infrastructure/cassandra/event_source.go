package cassandra

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/gocql/gocql"

	"asset-runhours/internal/observability/metrics"
	"asset-runhours/internal/runhours/domain"
)

const (
	defaultTable    = "run_status"
	defaultDayLimit = 1000
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// EventSource reads run-status rows partitioned by (thingid, datadate).
// datadate holds the UTC midnight of the partition day.
type EventSource struct {
	session  *gocql.Session
	table    string
	dayLimit int
	logger   *log.Logger
}

// Option configures the event source.
type Option func(*EventSource)

// WithTable overrides the table name (optionally keyspace-qualified).
func WithTable(table string) Option {
	return func(s *EventSource) {
		if table != "" {
			s.table = table
		}
	}
}

// WithDayLimit caps rows per partition; 0 disables the cap.
func WithDayLimit(limit int) Option {
	return func(s *EventSource) {
		if limit >= 0 {
			s.dayLimit = limit
		}
	}
}

// NewEventSource constructs an EventSource.
func NewEventSource(session *gocql.Session, logger *log.Logger, opts ...Option) (*EventSource, error) {
	if session == nil {
		return nil, errors.New("cassandra event source: nil session")
	}
	s := &EventSource{
		session:  session,
		table:    defaultTable,
		dayLimit: defaultDayLimit,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if !identifierPattern.MatchString(s.table) {
		return nil, fmt.Errorf("cassandra event source: invalid table %q", s.table)
	}
	return s, nil
}

// FetchDayEvents returns the partition's events sorted by timestamp. Rows with
// unknown states are logged and skipped.
func (s *EventSource) FetchDayEvents(ctx context.Context, assetID string, utcDate domain.Date) ([]domain.StateEvent, error) {
	iter := s.session.Query(s.fetchQuery(), assetID, utcDate.MidnightUTC()).WithContext(ctx).Iter()
	scanner := iter.Scanner()

	var events []domain.StateEvent
	for scanner.Next() {
		var (
			at  time.Time
			raw string
		)
		if err := scanner.Scan(&at, &raw); err != nil {
			_ = iter.Close()
			return nil, fmt.Errorf("cassandra scan %s %s: %w", assetID, utcDate, err)
		}
		ev, err := parseRow(at, raw)
		if err != nil {
			metrics.IncAnomaly("invalid_state")
			s.logf("warn: cassandra row skipped: asset_id=%s at=%s err=%v", assetID, at.UTC().Format(time.RFC3339), err)
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cassandra fetch %s %s: %w", assetID, utcDate, err)
	}
	domain.SortEvents(events)
	return events, nil
}

// ProbeDayHasData reports whether the partition holds at least one row.
func (s *EventSource) ProbeDayHasData(ctx context.Context, assetID string, utcDate domain.Date) (bool, error) {
	query := fmt.Sprintf(`SELECT datatime FROM %s WHERE thingid = ? AND datadate = ? LIMIT 1`, s.table)
	var at time.Time
	err := s.session.Query(query, assetID, utcDate.MidnightUTC()).WithContext(ctx).Scan(&at)
	if errors.Is(err, gocql.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cassandra probe %s %s: %w", assetID, utcDate, err)
	}
	return true, nil
}

func (s *EventSource) fetchQuery() string {
	query := fmt.Sprintf(`SELECT datatime, data FROM %s WHERE thingid = ? AND datadate = ?`, s.table)
	if s.dayLimit > 0 {
		query += fmt.Sprintf(" LIMIT %d", s.dayLimit)
	}
	return query
}

func (s *EventSource) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}

// parseRow normalizes one stored row; timestamps without a zone are UTC.
func parseRow(at time.Time, raw string) (domain.StateEvent, error) {
	if at.IsZero() {
		return domain.StateEvent{}, errors.New("cassandra row: empty datatime")
	}
	state, err := domain.ParseState(raw)
	if err != nil {
		return domain.StateEvent{}, err
	}
	return domain.StateEvent{At: at.UTC(), State: state}, nil
}
