package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/webscout/pkg/log"
	"github.com/Sriram-PR/webscout/pkg/models"
	"github.com/Sriram-PR/webscout/pkg/utils"
)

const (
	pageKeyPrefix = "page:"    // Prefix for page URL keys in DB
	pagesDBDir    = "pages_db" // Subdirectory name within stateDir for Badger DB files
)

// errNotInitialized is returned by writes on a store whose DB is closed or was never opened
var errNotInitialized = fmt.Errorf("%w: page DB not initialized", utils.ErrDatabase)

// BadgerStore implements the VisitedStore interface using BadgerDB
type BadgerStore struct {
	db       *badger.DB
	dbPath   string
	log      *logrus.Entry
	ctx      context.Context // Parent context, stops long scans
	keyCount atomic.Int64    // Cached key count for O(1) GetVisitedCount
}

// NewBadgerStore opens a fresh page DB for one host under stateDir.
// State from a previous run of the same host is removed first: crawls never resume.
func NewBadgerStore(ctx context.Context, stateDir, host string, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{
		log: logger,
		ctx: ctx,
	}

	dbPath := filepath.Join(stateDir, utils.HostDirName(host)+"_"+pagesDBDir)
	store.dbPath = dbPath

	if _, err := os.Stat(dbPath); err == nil {
		logger.Warnf("Removing page DB left by a previous run: %s", dbPath)
		if err := os.RemoveAll(dbPath); err != nil {
			// Badger will refuse to open if the directory is unusable; report that error instead
			logger.Errorf("Failed to remove existing page DB %s: %v", dbPath, err)
		}
	}

	logger.Infof("Initializing page status database at: %s", dbPath)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create state directory %s: %w", utils.ErrFilesystem, dbPath, err)
	}

	opts := badger.DefaultOptions(dbPath).
		WithLogger(log.NewBadgerLogrusAdapter(logger)).
		WithNumVersionsToKeep(1) // Only the latest status per URL matters

	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}

	logger.Debug("Page status database initialized.")
	return store, nil
}

// Path returns the directory holding the Badger files
func (s *BadgerStore) Path() string { return s.dbPath }

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Concurrent workers touching the same key can return badger.ErrConflict;
// these resolve in microseconds, so a tight retry loop is sufficient.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

func (s *BadgerStore) usable() bool {
	return s.db != nil && !s.db.IsClosed()
}

// MarkPagePending implements the PageStore interface
func (s *BadgerStore) MarkPagePending(canonicalURL string, depth int) (bool, error) {
	if !s.usable() {
		return false, errNotInitialized
	}
	key := []byte(pageKeyPrefix + canonicalURL)
	entryBytes, errJSON := json.Marshal(&models.PageDBEntry{
		Status:      models.PageStatusPending,
		LastAttempt: time.Now(),
		Depth:       depth,
	})
	if errJSON != nil {
		return false, fmt.Errorf("%w: failed to marshal JSON pending entry for '%s': %w", utils.ErrParsing, canonicalURL, errJSON)
	}

	added := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		added = false
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			if errSet := txn.SetEntry(badger.NewEntry(key, entryBytes)); errSet != nil {
				return errSet
			}
			added = true
			return nil
		}
		// Key already exists or another error occurred
		return errGet
	})

	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in MarkPagePending: %v", err)
		return false, fmt.Errorf("%w: marking page key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if added {
		s.keyCount.Add(1)
	}
	return added, nil
}

// RecordPage implements the PageStore interface
func (s *BadgerStore) RecordPage(canonicalURL string, entry *models.PageDBEntry) error {
	if !s.usable() {
		return errNotInitialized
	}
	key := []byte(pageKeyPrefix + canonicalURL)

	entryBytes, errJSON := json.Marshal(entry)
	if errJSON != nil {
		wrappedErr := fmt.Errorf("%w: failed to marshal JSON PageDBEntry for key '%s': %w", utils.ErrParsing, string(key), errJSON)
		s.log.Error(wrappedErr)
		return wrappedErr
	}

	isNew := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		isNew = errors.Is(errGet, badger.ErrKeyNotFound)
		return txn.SetEntry(badger.NewEntry(key, entryBytes))
	})

	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in RecordPage: %v", err)
		return fmt.Errorf("%w: failed setting page status for key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if isNew {
		s.keyCount.Add(1)
	}

	s.log.Debugf("Recorded page status for key '%s': %s", string(key), entry.Status)
	return nil
}

// GetPageStatus implements the PageStore interface
func (s *BadgerStore) GetPageStatus(canonicalURL string) (models.PageStatus, *models.PageDBEntry, error) {
	if !s.usable() {
		return models.PageStatusDBError, nil, errNotInitialized
	}
	status := models.PageStatusNotFound
	var entry *models.PageDBEntry
	key := []byte(pageKeyPrefix + canonicalURL)

	errView := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil // Not found is a status, not an error
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting page key '%s': %w", utils.ErrDatabase, string(key), errGet)
		}

		return item.Value(func(val []byte) error {
			var decoded models.PageDBEntry
			if errJSON := json.Unmarshal(val, &decoded); errJSON != nil {
				s.log.Warnf("Failed to unmarshal PageDBEntry for key '%s': %v. Treating as 'pending'.", string(key), errJSON)
				status = models.PageStatusPending
				return nil
			}
			entry = &decoded
			status = decoded.Status
			return nil
		})
	})

	if errView != nil {
		s.log.Errorf("DB View error in GetPageStatus for key '%s': %v", string(key), errView)
		return models.PageStatusDBError, nil, errView
	}
	return status, entry, nil
}

// GetVisitedCount implements the StoreAdmin interface.
// Returns the cached key count maintained by atomic increments on writes.
func (s *BadgerStore) GetVisitedCount() (int, error) {
	return int(s.keyCount.Load()), nil
}

// CountByStatus implements the StoreAdmin interface
func (s *BadgerStore) CountByStatus() (map[models.PageStatus]int, error) {
	if !s.usable() {
		return nil, errNotInitialized
	}
	counts := make(map[models.PageStatus]int)
	prefix := []byte(pageKeyPrefix)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			errValue := it.Item().Value(func(val []byte) error {
				var entry models.PageDBEntry
				if errJSON := json.Unmarshal(val, &entry); errJSON != nil {
					counts[models.PageStatusUnset]++
					return nil
				}
				counts[entry.Status]++
				return nil
			})
			if errValue != nil {
				return errValue
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: counting page statuses: %w", utils.ErrDatabase, err)
	}
	return counts, nil
}

// RunGC runs BadgerDB's garbage collection periodically
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Debug("BadgerDB GC goroutine started.")

	for {
		select {
		case <-ticker.C:
			if !s.usable() {
				s.log.Debug("DB GC: Database is closed, skipping GC cycle.")
				continue
			}
			var err error
			// Loop GC until it returns ErrNoRewrite or another error
			for err == nil {
				err = s.db.RunValueLogGC(0.5)
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}

		case <-ctx.Done():
			s.log.Debugf("Stopping BadgerDB garbage collection goroutine: %v", ctx.Err())
			return
		}
	}
}

// WriteVisitedLog implements the StoreAdmin interface.
// URLs are written one per line in key order.
func (s *BadgerStore) WriteVisitedLog(filePath string) error {
	if !s.usable() {
		return errNotInitialized
	}
	file, err := os.Create(filePath)
	if err != nil {
		s.log.Errorf("Failed create visited log '%s': %v", filePath, err)
		return fmt.Errorf("%w: create visited log '%s': %w", utils.ErrFilesystem, filePath, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	var writeErr error
	writtenCount := 0
	prefix := []byte(pageKeyPrefix)

	iterErr := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-s.ctx.Done():
				s.log.Warnf("WriteVisitedLog scan interrupted by context cancellation: %v", s.ctx.Err())
				return s.ctx.Err()
			default:
			}

			key := bytes.TrimPrefix(it.Item().KeyCopy(nil), prefix)
			if _, err := writer.Write(append(key, '\n')); err != nil && writeErr == nil {
				writeErr = err // Keep the first write error
			}
			writtenCount++
		}
		return nil
	})

	if flushErr := writer.Flush(); flushErr != nil && writeErr == nil {
		writeErr = flushErr
	}
	if syncErr := file.Sync(); syncErr != nil && writeErr == nil {
		writeErr = syncErr
	}

	if iterErr != nil {
		if errors.Is(iterErr, context.Canceled) || errors.Is(iterErr, context.DeadlineExceeded) {
			return iterErr
		}
		return fmt.Errorf("%w: iterating page DB: %w", utils.ErrDatabase, iterErr)
	}
	if writeErr != nil {
		s.log.Warnf("Finished writing visited log with errors. Wrote ~%d URLs to %s", writtenCount, filePath)
		return fmt.Errorf("%w: writing visited log '%s': %w", utils.ErrFilesystem, filePath, writeErr)
	}
	s.log.Infof("Wrote %d URLs to visited log: %s", writtenCount, filePath)
	return nil
}

// Close implements the StoreAdmin interface
func (s *BadgerStore) Close() error {
	if !s.usable() {
		s.log.Debug("Page DB already closed or was not initialized.")
		return nil
	}
	if err := s.db.Close(); err != nil {
		s.log.Errorf("Error closing page DB: %v", err)
		return fmt.Errorf("%w: closing page DB: %w", utils.ErrDatabase, err)
	}
	s.log.Debug("Page DB closed.")
	return nil
}
