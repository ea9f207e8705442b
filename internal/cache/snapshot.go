package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/maltedev/ksa-price-scraper/internal/models"
)

type snapshotEntry struct {
	Key       models.CacheKey    `json:"key"`
	Result    models.FetchResult `json:"result"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// SaveFile writes unexpired entries, most recently used first.
func (m *Memory) SaveFile(path string) error {
	m.mu.Lock()
	now := m.now()
	entries := make([]snapshotEntry, 0, m.order.Len())
	for el := m.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*memoryEntry)
		if !now.Before(e.expiresAt) {
			continue
		}
		entries = append(entries, snapshotEntry{Key: e.key, Result: e.value, ExpiresAt: e.expiresAt})
	}
	m.mu.Unlock()

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cache snapshot: %w", err)
	}

	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache snapshot: %w", err)
	}

	return os.Rename(tmpFile, path)
}

// LoadFile restores a snapshot written by SaveFile. A missing file is not
// an error. Expired entries are skipped and recency order is kept.
func (m *Memory) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cache snapshot: %w", err)
	}

	var entries []snapshotEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return 0, fmt.Errorf("failed to decode cache snapshot: %w", err)
	}

	now := m.now()
	loaded := 0
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if !now.Before(e.ExpiresAt) || !Cacheable(e.Result) {
			continue
		}
		m.putUntil(e.Key, e.Result, e.ExpiresAt)
		loaded++
	}
	return loaded, nil
}
