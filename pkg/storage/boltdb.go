package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/warden/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketRecords = []byte("records")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "warden.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketRecords); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketRecords, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// get decodes record onto out, leaving out untouched when nothing is stored
func get(tx *bolt.Tx, record Record, out any) error {
	data := tx.Bucket(bucketRecords).Get([]byte(record))
	if data == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s record: %w", record, err)
	}
	return nil
}

func put(tx *bolt.Tx, record Record, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s record: %w", record, err)
	}
	return tx.Bucket(bucketRecords).Put([]byte(record), data)
}

// Channel operations
func (s *BoltStore) Channels() ([]types.ChannelEntry, error) {
	var channels []types.ChannelEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, RecordChannels, &channels)
	})
	return types.SortByPriority(channels), err
}

// UpdateChannels writes immediately; the channel list is never debounced.
func (s *BoltStore) UpdateChannels(fn func([]types.ChannelEntry) ([]types.ChannelEntry, error)) ([]types.ChannelEntry, error) {
	var updated []types.ChannelEntry
	err := s.db.Update(func(tx *bolt.Tx) error {
		var current []types.ChannelEntry
		if err := get(tx, RecordChannels, &current); err != nil {
			return err
		}
		next, err := fn(types.SortByPriority(current))
		if err != nil {
			return err
		}
		updated = types.NormalizePriorities(next)
		return put(tx, RecordChannels, updated)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Settings operations
func (s *BoltStore) Settings() (types.Settings, error) {
	settings := types.DefaultSettings()
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, RecordSettings, &settings)
	})
	settings.Normalize()
	return settings, err
}

func (s *BoltStore) UpdateSettings(fn func(*types.Settings) error) (types.Settings, error) {
	settings := types.DefaultSettings()
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := get(tx, RecordSettings, &settings); err != nil {
			return err
		}
		if err := fn(&settings); err != nil {
			return err
		}
		settings.Normalize()
		return put(tx, RecordSettings, settings)
	})
	return settings, err
}

// Runtime operations
func (s *BoltStore) Runtime() (types.FallbackRuntime, error) {
	runtime := types.DefaultFallbackRuntime()
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, RecordRuntime, &runtime)
	})
	return runtime, err
}

func (s *BoltStore) UpdateRuntime(fn func(*types.FallbackRuntime) error) (types.FallbackRuntime, error) {
	runtime := types.DefaultFallbackRuntime()
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := get(tx, RecordRuntime, &runtime); err != nil {
			return err
		}
		if err := fn(&runtime); err != nil {
			return err
		}
		return put(tx, RecordRuntime, runtime)
	})
	return runtime, err
}

// Analytics operations
func (s *BoltStore) Analytics() (types.AnalyticsState, error) {
	analytics := types.DefaultAnalytics()
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, RecordAnalytics, &analytics)
	})
	if analytics.ViewingSecondsByChannel == nil {
		analytics.ViewingSecondsByChannel = make(map[string]float64)
	}
	return analytics, err
}

func (s *BoltStore) UpdateAnalytics(fn func(*types.AnalyticsState) error) (types.AnalyticsState, error) {
	analytics := types.DefaultAnalytics()
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := get(tx, RecordAnalytics, &analytics); err != nil {
			return err
		}
		if analytics.ViewingSecondsByChannel == nil {
			analytics.ViewingSecondsByChannel = make(map[string]float64)
		}
		if err := fn(&analytics); err != nil {
			return err
		}
		return put(tx, RecordAnalytics, analytics)
	})
	return analytics, err
}

// ResetAnalytics clears all counters. Nothing else in warden does.
func (s *BoltStore) ResetAnalytics() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, RecordAnalytics, types.DefaultAnalytics())
	})
}
