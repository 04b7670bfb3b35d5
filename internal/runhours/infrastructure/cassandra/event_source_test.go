package cassandra

import (
	"errors"
	"strings"
	"testing"
	"time"

	"asset-runhours/internal/runhours/domain"
)

func TestParseRowNormalizesState(t *testing.T) {
	at := time.Date(2024, 1, 9, 21, 0, 0, 0, time.FixedZone("UTC+4", 4*3600))
	ev, err := parseRow(at, " on\n")
	if err != nil {
		t.Fatalf("parse row: %v", err)
	}
	if ev.State != domain.StateOn {
		t.Fatalf("state mismatch: %s", ev.State)
	}
	if ev.At.Location() != time.UTC || !ev.At.Equal(at) {
		t.Fatalf("timestamp should be the same instant in UTC: %s", ev.At)
	}

	if _, err := parseRow(at, "STANDBY"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if _, err := parseRow(time.Time{}, "OFF"); err == nil {
		t.Fatalf("expected error for empty timestamp")
	}
}

func TestFetchQueryLimit(t *testing.T) {
	s := &EventSource{table: "big_data_store.run_status", dayLimit: 1000}
	if got := s.fetchQuery(); !strings.HasSuffix(got, "LIMIT 1000") || !strings.Contains(got, "FROM big_data_store.run_status") {
		t.Fatalf("unexpected query %q", got)
	}
	s.dayLimit = 0
	if got := s.fetchQuery(); strings.Contains(got, "LIMIT") {
		t.Fatalf("limit should be disabled: %q", got)
	}
}

func TestNewEventSourceValidates(t *testing.T) {
	if _, err := NewEventSource(nil, nil); err == nil {
		t.Fatalf("expected nil session error")
	}
	if !identifierPattern.MatchString("big_data_store.run_status") {
		t.Fatalf("qualified table should be accepted")
	}
	if identifierPattern.MatchString("run_status; DROP TABLE x") {
		t.Fatalf("injection should be rejected")
	}
}
