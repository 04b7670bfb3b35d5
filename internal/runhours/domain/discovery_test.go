package domain

import (
	"context"
	"errors"
	"testing"
)

func TestDiscoverEarliestLogScansAscending(t *testing.T) {
	scanEnd := NewDate(2024, 1, 20)
	var probed []Date
	probe := func(ctx context.Context, day Date) (bool, error) {
		probed = append(probed, day)
		// Logs are not contiguous: the 5th is empty between two days with data.
		return day == NewDate(2024, 1, 4) || day == NewDate(2024, 1, 6), nil
	}

	got, err := DiscoverEarliestLog(context.Background(), DiscoveryRequest{
		AssetID:     "AC_001",
		ScanEnd:     scanEnd,
		MaxDaysBack: 30,
	}, probe)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if got != NewDate(2024, 1, 4) {
		t.Fatalf("earliest mismatch: got %s", got)
	}
	if probed[0] != scanEnd.AddDays(-30) {
		t.Fatalf("scan should start at scan end minus budget, got %s", probed[0])
	}
}

func TestDiscoverEarliestLogStartsAtCreatedOn(t *testing.T) {
	created := NewDate(2024, 1, 15)
	var first Date
	probe := func(ctx context.Context, day Date) (bool, error) {
		if first.IsZero() {
			first = day
		}
		return true, nil
	}
	got, err := DiscoverEarliestLog(context.Background(), DiscoveryRequest{
		AssetID:   "AC_001",
		CreatedOn: &created,
		ScanEnd:   NewDate(2024, 1, 20),
	}, probe)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if got != created || first != created {
		t.Fatalf("scan should start at created on: got=%s first=%s", got, first)
	}
}

func TestDiscoverEarliestLogSkipsProbeErrors(t *testing.T) {
	var failed []Date
	probe := func(ctx context.Context, day Date) (bool, error) {
		if day == NewDate(2024, 1, 18) {
			return false, errors.New("timeout")
		}
		return day == NewDate(2024, 1, 19), nil
	}
	got, err := DiscoverEarliestLog(context.Background(), DiscoveryRequest{
		AssetID:      "AC_001",
		ScanEnd:      NewDate(2024, 1, 20),
		MaxDaysBack:  3,
		OnProbeError: func(day Date, err error) { failed = append(failed, day) },
	}, probe)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if got != NewDate(2024, 1, 19) {
		t.Fatalf("earliest mismatch: got %s", got)
	}
	if len(failed) != 1 || failed[0] != NewDate(2024, 1, 18) {
		t.Fatalf("probe error callback mismatch: %v", failed)
	}
}

func TestDiscoverEarliestLogNothingFound(t *testing.T) {
	calls := 0
	probe := func(ctx context.Context, day Date) (bool, error) {
		calls++
		return false, nil
	}
	_, err := DiscoverEarliestLog(context.Background(), DiscoveryRequest{
		AssetID:     "AC_001",
		ScanEnd:     NewDate(2024, 1, 20),
		MaxDaysBack: 9,
	}, probe)
	if !errors.Is(err, ErrNoLogsFound) {
		t.Fatalf("expected ErrNoLogsFound, got %v", err)
	}
	if calls != 10 {
		t.Fatalf("expected 10 probes, got %d", calls)
	}
}
