// Package resume tracks photos already downloaded by earlier runs so re-runs
// skip work that is still on disk. Two backends exist: one reads the previous
// run's metadata.json, the other keeps a SQLite index for very large venues.
package resume

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/avfms/seatview-scraper/internal/scraper"
)

// MetadataStore is the default resume backend. It seeds itself from the
// previous run's metadata.json (when one exists) and keeps updates in memory;
// persistence happens when the pipeline writes the next metadata.json.
type MetadataStore struct {
	mu      sync.RWMutex
	records map[string]scraper.DownloadRecord
}

// metadataFileShape mirrors just the fields of metadata.json this package
// needs; the sink owns the full format.
type metadataFileShape struct {
	Photos []struct {
		PhotoID  string                  `json:"photo_id"`
		Download *scraper.DownloadRecord `json:"download"`
	} `json:"photos"`
}

// OpenMetadataStore loads the resume set from dir's metadata.json. A missing
// file is a clean first run, not an error. Records whose image file is gone
// from disk are dropped so the photo is fetched again.
func OpenMetadataStore(dir string, logger *zap.Logger) (*MetadataStore, error) {
	store := &MetadataStore{records: make(map[string]scraper.DownloadRecord)}

	path := filepath.Join(dir, scraper.MetadataFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var doc metadataFileShape
	if err := json.Unmarshal(data, &doc); err != nil {
		logger.Warn("previous metadata unreadable: starting fresh",
			zap.String("path", path),
			zap.Error(err),
		)
		return store, nil
	}

	loaded, stale := 0, 0
	for _, entry := range doc.Photos {
		rec := entry.Download
		if rec == nil || rec.Status != scraper.DownloadSucceeded || rec.LocalPath == "" {
			continue
		}
		if _, err := os.Stat(rec.LocalPath); err != nil {
			stale++
			continue
		}
		store.records[entry.PhotoID] = *rec
		loaded++
	}
	logger.Info("resume set loaded",
		zap.Int("known", loaded),
		zap.Int("stale", stale),
	)
	return store, nil
}

// Known reports whether the photo already has a successful download on record.
func (m *MetadataStore) Known(photoID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[photoID]
	return ok
}

// Get returns the prior successful record for the photo.
func (m *MetadataStore) Get(photoID string) (scraper.DownloadRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[photoID]
	return rec, ok
}

// Record remembers a successful download for later runs. Failed records are
// intentionally not remembered so the photo is retried next run.
func (m *MetadataStore) Record(photoID string, rec scraper.DownloadRecord) error {
	if rec.Status != scraper.DownloadSucceeded {
		return nil
	}
	m.mu.Lock()
	m.records[photoID] = rec
	m.mu.Unlock()
	return nil
}
