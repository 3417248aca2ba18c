package queue

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/webscout/pkg/models"
	"github.com/Sriram-PR/webscout/pkg/parse"
)

// DepthMode selects how MaxDepth bounds a crawl
type DepthMode string

const (
	// DepthPages counts every dequeue against MaxDepth, so MaxDepth bounds the number of pages taken off the queue
	DepthPages DepthMode = "pages"
	// DepthLevels bounds the link distance from the seed: targets at depth >= MaxDepth are never admitted
	DepthLevels DepthMode = "levels"
)

// FrontierOptions configures a Frontier
type FrontierOptions struct {
	MaxDepth  int
	DepthMode DepthMode    // Empty means DepthPages
	Scope     *parse.Scope // Optional; when set, out-of-scope offers are dropped
}

// Frontier owns the pending FIFO queue and the visited set of one crawl run.
// A URL is added to the visited set at the moment it is dequeued, under the same lock,
// so no two workers can ever receive the same URL.
type Frontier struct {
	mu   sync.Mutex
	cond *sync.Cond // Signalled on offer, completion, close

	pending    []models.CrawlTarget
	pendingSet map[string]struct{}
	visited    map[string]struct{}
	visitOrder []string

	dequeued int // Dequeue counter, compared against maxDepth in pages mode
	inFlight int // Dequeued targets not yet completed
	closed   bool
	done     bool // Sticky: once exhausted, every later Next reports done

	maxDepth int
	mode     DepthMode
	scope    *parse.Scope
	log      *logrus.Entry
}

// NewFrontier creates a frontier holding only the seed
func NewFrontier(seed models.CrawlTarget, opts FrontierOptions, log *logrus.Entry) *Frontier {
	mode := opts.DepthMode
	if mode == "" {
		mode = DepthPages
	}
	f := &Frontier{
		pendingSet: make(map[string]struct{}),
		visited:    make(map[string]struct{}),
		maxDepth:   opts.MaxDepth,
		mode:       mode,
		scope:      opts.Scope,
		log:        log.WithField("component", "frontier"),
	}
	f.cond = sync.NewCond(&f.mu)
	f.pending = append(f.pending, seed)
	f.pendingSet[seed.URL] = struct{}{}
	return f
}

// Next returns the next target to fetch, or false once the crawl is done: the pending
// queue is empty with nothing in flight, the depth bound is reached, the frontier is
// closed, or ctx is cancelled. While the queue is empty but other targets are in flight
// Next blocks, since completing them may offer new links.
// The returned URL is already in the visited set; callers must call Complete when done with it.
func (f *Frontier) Next(ctx context.Context) (models.CrawlTarget, bool) {
	stop := context.AfterFunc(ctx, func() {
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	})
	defer stop()

	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		if f.closed || f.done || ctx.Err() != nil {
			return models.CrawlTarget{}, false
		}
		if f.mode == DepthPages && f.dequeued >= f.maxDepth {
			f.log.Debugf("Depth bound reached after %d dequeues", f.dequeued)
			f.finishLocked()
			return models.CrawlTarget{}, false
		}

		if len(f.pending) > 0 {
			target := f.pending[0]
			f.pending[0] = models.CrawlTarget{}
			f.pending = f.pending[1:]
			delete(f.pendingSet, target.URL)
			f.dequeued++

			if _, seen := f.visited[target.URL]; seen {
				continue
			}
			if f.mode == DepthLevels && target.Depth >= f.maxDepth {
				continue
			}
			f.markVisitedLocked(target.URL)
			f.inFlight++
			return target, true
		}

		if f.inFlight == 0 {
			f.log.Debugf("Frontier exhausted after %d dequeues", f.dequeued)
			f.finishLocked()
			return models.CrawlTarget{}, false
		}
		f.cond.Wait()
	}
}

// Complete ends the in-flight accounting for a target returned by Next
func (f *Frontier) Complete(target models.CrawlTarget) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight > 0 {
		f.inFlight--
	}
	f.cond.Broadcast()
}

// MarkVisited adds url to the visited set. Returns true if it was not visited before.
func (f *Frontier) MarkVisited(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markVisitedLocked(url)
}

func (f *Frontier) markVisitedLocked(url string) bool {
	if _, ok := f.visited[url]; ok {
		return false
	}
	f.visited[url] = struct{}{}
	f.visitOrder = append(f.visitOrder, url)
	return true
}

// Offer appends each URL that is neither visited nor already pending, in order, at depth
// parent.Depth+1. Each URL is checked against the queue as it stands after the previous
// ones were appended, so only the first occurrence of a duplicate is admitted.
// Returns the number admitted.
func (f *Frontier) Offer(parent models.CrawlTarget, urls []string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed || f.done {
		return 0
	}

	depth := parent.Depth + 1
	if f.mode == DepthLevels && depth >= f.maxDepth {
		return 0
	}

	admitted := 0
	for _, u := range urls {
		if f.scope != nil && !f.scope.BelongsString(u) {
			continue
		}
		if _, ok := f.visited[u]; ok {
			continue
		}
		if _, ok := f.pendingSet[u]; ok {
			continue
		}
		f.pending = append(f.pending, models.CrawlTarget{URL: u, Depth: depth})
		f.pendingSet[u] = struct{}{}
		admitted++
	}
	if admitted > 0 {
		f.cond.Broadcast()
	}
	return admitted
}

// Close stops the frontier; blocked and future Next calls return false
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		f.cond.Broadcast()
	}
}

func (f *Frontier) finishLocked() {
	f.done = true
	f.cond.Broadcast()
}

// Len returns the number of pending targets
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Dequeued returns the value of the dequeue counter
func (f *Frontier) Dequeued() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dequeued
}

// IsVisited reports whether url is in the visited set
func (f *Frontier) IsVisited(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.visited[url]
	return ok
}

// Visited returns the visited set in the order URLs entered it
func (f *Frontier) Visited() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.visitOrder))
	copy(out, f.visitOrder)
	return out
}
