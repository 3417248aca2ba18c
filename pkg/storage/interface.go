package storage

import (
	"context"
	"time"

	"github.com/Sriram-PR/webscout/pkg/models"
)

// PageStore records the outcome of every URL the crawler dequeued
type PageStore interface {
	// MarkPagePending records a page as dequeued with its fetch in flight.
	// Returns true if the URL was newly added, false if it already existed
	MarkPagePending(canonicalURL string, depth int) (bool, error)

	// RecordPage stores the final outcome for a page URL, replacing any pending entry
	RecordPage(canonicalURL string, entry *models.PageDBEntry) error

	// GetPageStatus retrieves the status and details of a page URL.
	// A URL that was never stored reports PageStatusNotFound with a nil entry
	GetPageStatus(canonicalURL string) (status models.PageStatus, entry *models.PageDBEntry, err error)
}

// StoreAdmin handles lifecycle and administrative operations
type StoreAdmin interface {
	// GetVisitedCount returns the number of page keys written during this run
	GetVisitedCount() (int, error)

	// CountByStatus scans the DB and tallies entries per status
	CountByStatus() (map[models.PageStatus]int, error)

	// WriteVisitedLog writes all page keys (URLs) to the specified file path
	WriteVisitedLog(filePath string) error

	// RunGC runs periodic garbage collection. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database connection
	Close() error
}

// VisitedStore combines both interfaces for components that need full access
type VisitedStore interface {
	PageStore
	StoreAdmin
}
