package application

import (
	"context"
	"log"
	"sort"
	"strings"

	"asset-runhours/internal/observability/metrics"
)

// Asset directory sources reported to metrics.
const (
	DirectorySourceAPI      = "api"
	DirectorySourceFallback = "fallback"
)

// AssetDirectory lists assets from the remote directory, retrying per policy,
// and falls back to a static list when the directory is unavailable or empty.
type AssetDirectory struct {
	list     AssetLister
	fallback []Asset
	policy   RetryPolicy
	only     map[string]struct{}
	logger   *log.Logger
}

// NewAssetDirectory constructs an AssetDirectory. list may be nil, in which
// case the fallback list is always used.
func NewAssetDirectory(list AssetLister, fallback []Asset, policy RetryPolicy, logger *log.Logger) *AssetDirectory {
	return &AssetDirectory{
		list:     list,
		fallback: fallback,
		policy:   policy,
		logger:   logger,
	}
}

// Restrict limits results to the given ids; ids not known to the directory
// are still processed.
func (d *AssetDirectory) Restrict(ids []string) {
	d.only = nil
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if d.only == nil {
			d.only = make(map[string]struct{})
		}
		d.only[id] = struct{}{}
	}
}

// Assets satisfies AssetLister. It never fails.
func (d *AssetDirectory) Assets(ctx context.Context) ([]Asset, error) {
	assets, source := d.resolve(ctx)
	metrics.IncAssetDirectory(source)
	if d.only == nil {
		d.logf("runhours assets: source=%s count=%d", source, len(assets))
		return assets, nil
	}

	known := make(map[string]Asset, len(assets))
	for _, asset := range assets {
		known[asset.ID] = asset
	}
	var out []Asset
	for id := range d.only {
		if asset, ok := known[id]; ok {
			out = append(out, asset)
			continue
		}
		out = append(out, Asset{ID: id, DisplayName: id})
	}
	sortAssets(out)
	d.logf("runhours assets: source=%s count=%d restricted=%d", source, len(assets), len(out))
	return out, nil
}

func (d *AssetDirectory) resolve(ctx context.Context) ([]Asset, string) {
	if d.list == nil {
		return d.fallback, DirectorySourceFallback
	}
	var assets []Asset
	err := d.policy.do(ctx, func(ctx context.Context) error {
		listed, err := d.list(ctx)
		if err != nil {
			d.logf("warn: runhours assets: directory call failed: err=%v", err)
			return err
		}
		assets = listed
		return nil
	})
	if err != nil {
		retryable := d.policy.Retryable == nil || d.policy.Retryable(err)
		d.logf("error: runhours assets: directory unavailable, using fallback: count=%d retryable=%t err=%v", len(d.fallback), retryable, err)
		return d.fallback, DirectorySourceFallback
	}
	if len(assets) == 0 {
		d.logf("warn: runhours assets: directory returned no assets, using fallback: count=%d", len(d.fallback))
		return d.fallback, DirectorySourceFallback
	}
	return assets, DirectorySourceAPI
}

func (d *AssetDirectory) logf(format string, args ...any) {
	if d.logger == nil {
		return
	}
	d.logger.Printf(format, args...)
}

func sortAssets(assets []Asset) {
	sort.Slice(assets, func(i, j int) bool { return assets[i].ID < assets[j].ID })
}
