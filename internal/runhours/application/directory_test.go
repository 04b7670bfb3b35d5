package application

import (
	"context"
	"errors"
	"testing"
)

var errUnavailable = errors.New("directory unavailable")

func TestAssetDirectoryFallsBackAfterRetries(t *testing.T) {
	calls := 0
	list := func(ctx context.Context) ([]Asset, error) {
		calls++
		return nil, errUnavailable
	}
	fallback := []Asset{{ID: "AC_001"}}
	dir := NewAssetDirectory(list, fallback, RetryPolicy{Attempts: 3}, nil)

	assets, err := dir.Assets(context.Background())
	if err != nil {
		t.Fatalf("assets: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 directory calls, got %d", calls)
	}
	if len(assets) != 1 || assets[0].ID != "AC_001" {
		t.Fatalf("expected fallback assets, got %+v", assets)
	}
}

func TestAssetDirectoryStopsOnPermanentError(t *testing.T) {
	calls := 0
	list := func(ctx context.Context) ([]Asset, error) {
		calls++
		return nil, errUnavailable
	}
	policy := RetryPolicy{Attempts: 3, Retryable: func(error) bool { return false }}
	dir := NewAssetDirectory(list, nil, policy, nil)
	if _, err := dir.Assets(context.Background()); err != nil {
		t.Fatalf("assets: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestAssetDirectoryEmptyResultUsesFallback(t *testing.T) {
	list := func(ctx context.Context) ([]Asset, error) { return nil, nil }
	dir := NewAssetDirectory(list, []Asset{{ID: "AC_009"}}, RetryPolicy{}, nil)
	assets, _ := dir.Assets(context.Background())
	if len(assets) != 1 || assets[0].ID != "AC_009" {
		t.Fatalf("expected fallback, got %+v", assets)
	}
}

func TestAssetDirectoryRestrict(t *testing.T) {
	list := func(ctx context.Context) ([]Asset, error) {
		return []Asset{{ID: "AC_001", DisplayName: "Chiller 1"}, {ID: "AC_002"}}, nil
	}
	dir := NewAssetDirectory(list, nil, RetryPolicy{}, nil)
	dir.Restrict([]string{"AC_002", " AC_777 ", ""})

	assets, _ := dir.Assets(context.Background())
	if len(assets) != 2 {
		t.Fatalf("expected 2 assets, got %+v", assets)
	}
	if assets[0].ID != "AC_002" || assets[1].ID != "AC_777" {
		t.Fatalf("unexpected order or ids: %+v", assets)
	}

	dir.Restrict(nil)
	assets, _ = dir.Assets(context.Background())
	if len(assets) != 2 || assets[0].DisplayName != "Chiller 1" {
		t.Fatalf("restriction should be cleared: %+v", assets)
	}
}
