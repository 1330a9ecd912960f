package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const metadataFile = "cache_metadata.json"

// CacheEntry is the bookkeeping record for one cached bundle file.
type CacheEntry struct {
	Version      string `json:"version"`
	Path         string `json:"path"`
	DownloadedAt int64  `json:"downloaded_at"` // unix seconds
	SizeBytes    int64  `json:"size_bytes"`
	Checksum     string `json:"checksum"`
}

// CacheStats summarizes cache occupancy.
type CacheStats struct {
	BundleCount  int     `json:"bundle_count"`
	TotalSizeMB  float64 `json:"total_size_mb"`
	MaxSizeMB    float64 `json:"max_size_mb"`
	UsagePercent float64 `json:"usage_percent"`
	Dir          string  `json:"cache_dir"`
}

// Cache keeps downloaded rule bundles on disk with TTL expiry and a size
// limit, tracked through a metadata file in the cache directory. All
// methods are safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	dir     string
	maxSize int64
	ttl     time.Duration
	entries map[string]CacheEntry
}

// NewCache opens (or creates) a bundle cache at dir. maxSizeMB and ttlDays
// of zero fall back to 500 MB and 7 days.
func NewCache(dir string, maxSizeMB int, ttlDays int) (*Cache, error) {
	if maxSizeMB <= 0 {
		maxSizeMB = 500
	}
	if ttlDays <= 0 {
		ttlDays = 7
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	c := &Cache{
		dir:     dir,
		maxSize: int64(maxSizeMB) << 20,
		ttl:     time.Duration(ttlDays) * 24 * time.Hour,
		entries: map[string]CacheEntry{},
	}
	c.loadMetadata()
	return c, nil
}

// loadMetadata reads the metadata file; a missing or corrupt file resets
// the index (the files themselves are re-fetchable).
func (c *Cache) loadMetadata() {
	data, err := os.ReadFile(filepath.Join(c.dir, metadataFile))
	if err != nil {
		return
	}
	var entries map[string]CacheEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return
	}
	c.entries = entries
}

func (c *Cache) saveMetadataLocked() error {
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.dir, metadataFile), data, 0o600)
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Put stores bundle data under bundleID and returns the on-disk path. A
// bundle with an unchanged checksum is not rewritten.
func (c *Cache) Put(bundleID, version string, data []byte) (string, error) {
	if version == "" {
		version = "latest"
	}
	sum := checksum(data)

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[bundleID]; ok && existing.Checksum == sum {
		if _, err := os.Stat(existing.Path); err == nil {
			return existing.Path, nil
		}
	}

	path := filepath.Join(c.dir, fmt.Sprintf("%s-%s.json", bundleID, version))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write bundle: %w", err)
	}

	c.entries[bundleID] = CacheEntry{
		Version:      version,
		Path:         path,
		DownloadedAt: time.Now().Unix(),
		SizeBytes:    int64(len(data)),
		Checksum:     sum,
	}

	c.cleanupExpiredLocked()
	c.enforceSizeLimitLocked(bundleID)
	if err := c.saveMetadataLocked(); err != nil {
		return "", err
	}
	return path, nil
}

// Get returns the cached path for bundleID, dropping stale index entries
// whose file disappeared out from under us.
func (c *Cache) Get(bundleID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[bundleID]
	if !ok {
		return "", false
	}
	if time.Since(time.Unix(entry.DownloadedAt, 0)) > c.ttl {
		c.removeLocked(bundleID)
		_ = c.saveMetadataLocked()
		return "", false
	}
	if _, err := os.Stat(entry.Path); err != nil {
		delete(c.entries, bundleID)
		_ = c.saveMetadataLocked()
		return "", false
	}
	return entry.Path, true
}

// Remove deletes a cached bundle and reports whether it existed.
func (c *Cache) Remove(bundleID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[bundleID]; !ok {
		return false
	}
	c.removeLocked(bundleID)
	_ = c.saveMetadataLocked()
	return true
}

func (c *Cache) removeLocked(bundleID string) {
	if entry, ok := c.entries[bundleID]; ok {
		_ = os.Remove(entry.Path)
		delete(c.entries, bundleID)
	}
}

func (c *Cache) cleanupExpiredLocked() {
	now := time.Now()
	for id, entry := range c.entries {
		if now.Sub(time.Unix(entry.DownloadedAt, 0)) > c.ttl {
			c.removeLocked(id)
		}
	}
}

// enforceSizeLimitLocked evicts oldest-first until under the size limit,
// never evicting the entry that was just written.
func (c *Cache) enforceSizeLimitLocked(keep string) {
	var total int64
	for _, entry := range c.entries {
		total += entry.SizeBytes
	}
	if total <= c.maxSize {
		return
	}

	type aged struct {
		id string
		at int64
		sz int64
	}
	var order []aged
	for id, entry := range c.entries {
		if id == keep {
			continue
		}
		order = append(order, aged{id: id, at: entry.DownloadedAt, sz: entry.SizeBytes})
	}
	sort.Slice(order, func(i, j int) bool { return order[i].at < order[j].at })

	for _, e := range order {
		if total <= c.maxSize {
			break
		}
		c.removeLocked(e.id)
		total -= e.sz
	}
}

// List returns cached entries keyed by bundle id.
func (c *Cache) List() map[string]CacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]CacheEntry, len(c.entries))
	for id, entry := range c.entries {
		out[id] = entry
	}
	return out
}

// Stats reports cache occupancy.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total int64
	for _, entry := range c.entries {
		total += entry.SizeBytes
	}
	stats := CacheStats{
		BundleCount: len(c.entries),
		TotalSizeMB: float64(total) / (1 << 20),
		MaxSizeMB:   float64(c.maxSize) / (1 << 20),
		Dir:         c.dir,
	}
	if c.maxSize > 0 {
		stats.UsagePercent = float64(total) / float64(c.maxSize) * 100
	}
	return stats
}

// Clear drops every entry and the metadata file.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id := range c.entries {
		c.removeLocked(id)
	}
	_ = os.Remove(filepath.Join(c.dir, metadataFile))
	c.entries = map[string]CacheEntry{}
}
