package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/slipway-io/slipway/pkg/types"
)

var (
	// Bucket names
	bucketRuns = []byte("runs")
	bucketMeta = []byte("meta")

	keyLastRun = []byte("last_run_id")
)

// Store persists deployment runs in BoltDB
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the run datastore under dataDir
func Open(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "slipway.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{bucketRuns, bucketMeta}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// NewRunID generates a timestamped run identifier. The timestamp prefix
// keys runs chronologically; the random suffix keeps concurrent-second runs
// distinct.
func NewRunID(now time.Time) string {
	return fmt.Sprintf("run-%s-%s", now.Format("20060102-150405"), uuid.New().String()[:8])
}

// SaveRun upserts a run. The orchestrator saves after every transition so a
// crash never loses the audit trail accumulated so far.
func (s *Store) SaveRun(run *types.DeploymentRun) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		data, err := json.Marshal(run)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(run.ID), data); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keyLastRun, []byte(run.ID))
	})
}

// GetRun fetches one run by ID
func (s *Store) GetRun(id string) (*types.DeploymentRun, error) {
	var run types.DeploymentRun
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("run not found: %s", id)
		}
		return json.Unmarshal(data, &run)
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns all recorded runs, newest first
func (s *Store) ListRuns() ([]*types.DeploymentRun, error) {
	var runs []*types.DeploymentRun
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		return b.ForEach(func(k, v []byte) error {
			var run types.DeploymentRun
			if err := json.Unmarshal(v, &run); err != nil {
				return err
			}
			runs = append(runs, &run)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}

// LastRun returns the most recently saved run, or nil when no run has ever
// been recorded.
func (s *Store) LastRun() (*types.DeploymentRun, error) {
	var id string
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keyLastRun)
		if data != nil {
			id = string(data)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, nil
	}
	return s.GetRun(id)
}

// openReadOnly opens the store without taking the write lock, with a short
// timeout so status surfaces never stall behind a deployment that holds the
// store open. A missing file means no run has ever been recorded.
func openReadOnly(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "slipway.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, nil
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{ReadOnly: true, Timeout: 1 * time.Second})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, fmt.Errorf("run store locked by a deployment in progress")
		}
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Store{db: db}, nil
}

// ReadRuns lists all recorded runs with a transient read-only open, for
// callers that must not hold the store across a deployment
func ReadRuns(dataDir string) ([]*types.DeploymentRun, error) {
	s, err := openReadOnly(dataDir)
	if err != nil || s == nil {
		return nil, err
	}
	defer s.Close()
	return s.ListRuns()
}

// ReadLastRun fetches the most recent run with a transient read-only open
func ReadLastRun(dataDir string) (*types.DeploymentRun, error) {
	s, err := openReadOnly(dataDir)
	if err != nil || s == nil {
		return nil, err
	}
	defer s.Close()
	return s.LastRun()
}
