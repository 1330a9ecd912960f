package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	domain "github.com/tavoai/scanner-orchestrator/internal/domain/scans"
)

// Fetcher pulls raw bundle bytes from a remote source (object storage,
// registry). Implemented by internal/infra/storage.
type Fetcher interface {
	FetchBundle(ctx context.Context, bundleID string) ([]byte, error)
}

// Resolver turns a bundle id into a local rules file tavo-scanner can read.
// Resolution order mirrors the distribution strategy: local cache, then a
// bundle directory checked out in the workspace, then the remote store.
type Resolver struct {
	LocalDir string  // optional root holding <bundle-id>/ directories
	Store    Fetcher // optional remote source
	Cache    *Cache
	Loader   *Loader
}

var _ domain.BundleResolver = (*Resolver)(nil)

func NewResolver(localDir string, store Fetcher, cache *Cache) *Resolver {
	return &Resolver{LocalDir: localDir, Store: store, Cache: cache, Loader: NewLoader()}
}

// Resolve returns a local path for bundleID, fetching and caching when the
// bundle is not already on disk.
func (r *Resolver) Resolve(ctx context.Context, bundleID string) (string, error) {
	if path, ok := r.Cache.Get(bundleID); ok {
		return path, nil
	}

	if r.LocalDir != "" {
		dir := filepath.Join(r.LocalDir, bundleID)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			bundle, err := r.Loader.Load(dir)
			if err != nil {
				return "", fmt.Errorf("load local bundle %q: %w", bundleID, err)
			}
			data, err := json.MarshalIndent(bundle, "", "  ")
			if err != nil {
				return "", err
			}
			return r.Cache.Put(bundleID, bundle.Version, data)
		}
	}

	if r.Store != nil {
		data, err := r.Store.FetchBundle(ctx, bundleID)
		if err != nil {
			return "", fmt.Errorf("fetch bundle %q: %w", bundleID, err)
		}
		var meta struct {
			Version string `json:"version"`
		}
		_ = json.Unmarshal(data, &meta)
		return r.Cache.Put(bundleID, meta.Version, data)
	}

	return "", fmt.Errorf("bundle %q not found", bundleID)
}
