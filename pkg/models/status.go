package models

// PageStatus represents the processing status of a page in the database
type PageStatus string

const (
	PageStatusUnset    PageStatus = ""          // Zero value = unset/unknown
	PageStatusPending  PageStatus = "pending"   // Page dequeued, fetch in flight
	PageStatusSuccess  PageStatus = "success"   // Page fetched and analyzed
	PageStatusFailure  PageStatus = "failure"   // Fetch failed; URL still counts as visited
	PageStatusNotFound PageStatus = "not_found" // Page not in database
	PageStatusDBError  PageStatus = "db_error"  // Database error occurred
)

// String implements fmt.Stringer for logging
func (s PageStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s PageStatus) IsValid() bool {
	switch s {
	case PageStatusPending, PageStatusSuccess, PageStatusFailure:
		return true
	}
	return false
}

// CrawlState is the orchestrator lifecycle state.
type CrawlState string

const (
	CrawlStateIdle    CrawlState = "idle"
	CrawlStateRunning CrawlState = "running"
	CrawlStateDone    CrawlState = "done"
)

// CanTransitionTo reports whether a crawl may move from s to next.
// A crawl runs at most once: idle -> running -> done.
func (s CrawlState) CanTransitionTo(next CrawlState) bool {
	switch s {
	case CrawlStateIdle:
		return next == CrawlStateRunning
	case CrawlStateRunning:
		return next == CrawlStateDone
	}
	return false
}

// IsTerminal returns true once the crawl has finished
func (s CrawlState) IsTerminal() bool { return s == CrawlStateDone }
