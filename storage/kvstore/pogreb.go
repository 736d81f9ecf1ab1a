package kvstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/akrylysov/pogreb"

	"github.com/verilayer/verilayer/log"
	"github.com/verilayer/verilayer/metrics"
)

// How often to report that a (re)indexing open is still in progress.
const openProgressInterval = 30 * time.Second

type pogrebKVStore struct {
	db *pogreb.DB

	path    string
	logger  *log.Logger
	metrics *metrics.StorageMetrics // if nil, no metrics are emitted

	// Set once the database is open. The store is opened in a background
	// goroutine, so reads of db must be guarded by this flag.
	initialized atomic.Bool
}

var (
	_ KVStore      = (*pogrebKVStore)(nil)
	_ instrumented = (*pogrebKVStore)(nil)
)

func (s *pogrebKVStore) storageMetrics() *metrics.StorageMetrics {
	return s.metrics
}

func (s *pogrebKVStore) checkInitialized() error {
	if !s.initialized.Load() {
		return fmt.Errorf("kvstore: not initialized yet")
	}
	return nil
}

// Get implements KVStore.
func (s *pogrebKVStore) Get(key []byte) ([]byte, error) {
	if err := s.checkInitialized(); err != nil {
		return nil, err
	}
	return s.db.Get(key)
}

// Has implements KVStore.
func (s *pogrebKVStore) Has(key []byte) (bool, error) {
	if err := s.checkInitialized(); err != nil {
		return false, err
	}
	return s.db.Has(key)
}

// Put implements KVStore.
func (s *pogrebKVStore) Put(key []byte, value []byte) error {
	if err := s.checkInitialized(); err != nil {
		return err
	}
	return s.db.Put(key, value)
}

// Delete implements KVStore.
func (s *pogrebKVStore) Delete(key []byte) error {
	if err := s.checkInitialized(); err != nil {
		return err
	}
	return s.db.Delete(key)
}

// Close implements KVStore.
func (s *pogrebKVStore) Close() error {
	if !s.initialized.Load() {
		// If pogreb is in the middle of recovery in the background, it will
		// die and have to start over next time.
		s.logger.Warn("skipping closing uninitialized KVStore")
		return nil
	}
	s.logger.Info("closing KVStore", "path", s.path)
	return s.db.Close()
}

// Returns true if path exists. Uses simplified error handling
// to match pogreb's behavior.
func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Deletes all files that match the glob pattern.
func deleteFiles(pattern string) error {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("unable to glob for files %s to delete: %w", pattern, err)
	}
	var lastErr error
	for _, f := range files {
		if err := os.Remove(f); err != nil {
			lastErr = fmt.Errorf("unable to delete file %s: %w", f, err)
		}
	}
	return lastErr
}

// Pogreb backs up its indices into <oldname>.bac. ".bac" becomes ".bac.bac", etc.
// After repeated crash loops the filenames grow too long for the filesystem
// and pogreb is then unable to initialize without manual intervention.
func (s *pogrebKVStore) cleanupIndexBackups() {
	if pathExists(filepath.Join(s.path, "lock")) {
		s.logger.Warn("pogreb lock file found; the store was not closed cleanly and will be reindexed", "path", s.path)
	}
	if err := deleteFiles(filepath.Join(s.path, "*.bac.bac")); err != nil {
		s.logger.Warn("failed to delete excessively backed-up pogreb index files", "err", err)
	}
}

func (s *pogrebKVStore) init() error {
	s.cleanupIndexBackups()

	// Open the DB. If a reindex is needed, this can take a long time.
	s.logger.Info("(re)opening KVStore", "path", s.path)
	// Sync after every write: the store holds balances, not a cache.
	db, err := pogreb.Open(s.path, &pogreb.Options{BackgroundSyncInterval: -1})
	if err != nil {
		s.logger.Error("failed to initialize pogreb store", "err", err)
		return err
	}

	s.db = db
	s.initialized.Store(true)
	s.logger.Info(fmt.Sprintf("KVStore has %d entries", db.Count()))
	return nil
}

// OpenKVStore initializes a new KVStore backed by a database at `path`, or opens an existing one.
// `metrics` can be `nil`, in which case no metrics are emitted during operation.
//
// Unlike a cache, task and account state cannot be skipped while pogreb
// reindexes after a crash, so this blocks until the store is usable.
func OpenKVStore(logger *log.Logger, path string, metrics *metrics.StorageMetrics) (KVStore, error) {
	store := &pogrebKVStore{
		logger:  logger,
		path:    path,
		metrics: metrics,
	}

	// Open the database in background as it is possible it will do a full-reindex on startup after a crash:
	// https://github.com/akrylysov/pogreb/issues/35
	initErrCh := make(chan error, 1)
	go func() {
		initErrCh <- store.init()
	}()

	ticker := time.NewTicker(openProgressInterval)
	defer ticker.Stop()
	started := time.Now()
	for {
		select {
		case err := <-initErrCh:
			if err != nil {
				return nil, err
			}
			return store, nil
		case <-ticker.C:
			logger.Warn("KVStore still opening, the database is likely reindexing", "path", path, "elapsed", time.Since(started))
		}
	}
}
