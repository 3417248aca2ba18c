package queue

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/webscout/pkg/models"
	"github.com/Sriram-PR/webscout/pkg/parse"
)

// testLogger returns a logger that discards output
func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

const seedURL = "http://example.com/"

func newTestFrontier(maxDepth int, mode DepthMode) *Frontier {
	return NewFrontier(models.CrawlTarget{URL: seedURL}, FrontierOptions{MaxDepth: maxDepth, DepthMode: mode}, testLogger())
}

func mustNext(t *testing.T, f *Frontier) models.CrawlTarget {
	t.Helper()
	target, ok := f.Next(context.Background())
	require.True(t, ok, "Next() reported done, want a target")
	return target
}

func TestFrontier_SeedOnly(t *testing.T) {
	f := newTestFrontier(5, DepthPages)
	assert.Equal(t, 1, f.Len())

	target := mustNext(t, f)
	assert.Equal(t, seedURL, target.URL)
	assert.Equal(t, 0, target.Depth)
	assert.True(t, f.IsVisited(seedURL), "dequeued URL should be visited before the next dequeue")
	f.Complete(target)

	_, ok := f.Next(context.Background())
	assert.False(t, ok)
	assert.Equal(t, 1, f.Dequeued())
}

func TestFrontier_OfferAssignsChildDepth(t *testing.T) {
	f := newTestFrontier(5, DepthPages)
	seed := mustNext(t, f)

	n := f.Offer(seed, []string{"http://example.com/a"})
	assert.Equal(t, 1, n)
	f.Complete(seed)

	child := mustNext(t, f)
	assert.Equal(t, "http://example.com/a", child.URL)
	assert.Equal(t, 1, child.Depth)

	f.Offer(child, []string{"http://example.com/b"})
	f.Complete(child)
	grandchild := mustNext(t, f)
	assert.Equal(t, 2, grandchild.Depth)
}

func TestFrontier_OfferDeduplicates(t *testing.T) {
	f := newTestFrontier(10, DepthPages)
	seed := mustNext(t, f)

	n := f.Offer(seed, []string{
		"http://example.com/a",
		"http://example.com/a", // duplicate within the batch
		seedURL,                // already visited
		"http://example.com/b",
	})
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, f.Len())

	// Already pending
	assert.Equal(t, 0, f.Offer(seed, []string{"http://example.com/b"}))
	f.Complete(seed)

	var got []string
	for {
		target, ok := f.Next(context.Background())
		if !ok {
			break
		}
		got = append(got, target.URL)
		f.Complete(target)
	}
	assert.Equal(t, []string{"http://example.com/a", "http://example.com/b"}, got)
	assert.Equal(t, []string{seedURL, "http://example.com/a", "http://example.com/b"}, f.Visited())
}

func TestFrontier_PagesModeCountsDequeues(t *testing.T) {
	f := newTestFrontier(3, DepthPages)
	seed := mustNext(t, f)

	var links []string
	for i := 0; i < 10; i++ {
		links = append(links, fmt.Sprintf("http://example.com/p%d", i))
	}
	assert.Equal(t, 10, f.Offer(seed, links))
	f.Complete(seed)

	var got []string
	for {
		target, ok := f.Next(context.Background())
		if !ok {
			break
		}
		got = append(got, target.URL)
		f.Complete(target)
	}
	// Seed plus two more: the counter bounds total dequeues, not link distance
	assert.Equal(t, []string{"http://example.com/p0", "http://example.com/p1"}, got)
	assert.Equal(t, 3, f.Dequeued())
	assert.Equal(t, 8, f.Len())

	// Done is sticky
	_, ok := f.Next(context.Background())
	assert.False(t, ok)
	assert.Equal(t, 0, f.Offer(seed, []string{"http://example.com/late"}))
}

func TestFrontier_LevelsModeBoundsLinkDistance(t *testing.T) {
	f := newTestFrontier(2, DepthLevels)
	seed := mustNext(t, f)

	assert.Equal(t, 3, f.Offer(seed, []string{"http://example.com/a", "http://example.com/b", "http://example.com/c"}))
	f.Complete(seed)

	for i := 0; i < 3; i++ {
		child := mustNext(t, f)
		assert.Equal(t, 1, child.Depth)
		// Grandchildren would be at depth 2 == MaxDepth: never admitted
		assert.Equal(t, 0, f.Offer(child, []string{fmt.Sprintf("http://example.com/deep%d", i)}))
		f.Complete(child)
	}

	_, ok := f.Next(context.Background())
	assert.False(t, ok)
	assert.Len(t, f.Visited(), 4)
}

func TestFrontier_ZeroMaxDepthYieldsNothing(t *testing.T) {
	for _, mode := range []DepthMode{DepthPages, DepthLevels} {
		f := newTestFrontier(0, mode)
		_, ok := f.Next(context.Background())
		assert.False(t, ok, "mode %s", mode)
		assert.Empty(t, f.Visited())
	}
}

func TestFrontier_ScopeFiltersOffers(t *testing.T) {
	scope, err := parse.NewScope(seedURL)
	require.NoError(t, err)
	f := NewFrontier(models.CrawlTarget{URL: seedURL}, FrontierOptions{MaxDepth: 5, Scope: scope}, testLogger())
	seed := mustNext(t, f)

	n := f.Offer(seed, []string{"http://example.com/in", "http://other.com/out", "http://sub.example.com/"})
	assert.Equal(t, 1, n)
	f.Complete(seed)

	target := mustNext(t, f)
	assert.Equal(t, "http://example.com/in", target.URL)
	assert.False(t, f.IsVisited("http://other.com/out"))
}

func TestFrontier_MarkVisitedIdempotent(t *testing.T) {
	f := newTestFrontier(5, DepthPages)
	seed := mustNext(t, f)

	assert.False(t, f.MarkVisited(seed.URL), "URL was already visited at dequeue")
	assert.True(t, f.MarkVisited("http://example.com/x"))
	assert.False(t, f.MarkVisited("http://example.com/x"))
	assert.Equal(t, []string{seedURL, "http://example.com/x"}, f.Visited())

	assert.Equal(t, 0, f.Offer(seed, []string{"http://example.com/x"}))
}

func TestFrontier_NextWaitsForInFlightWork(t *testing.T) {
	f := newTestFrontier(10, DepthPages)
	seed := mustNext(t, f)

	result := make(chan models.CrawlTarget, 1)
	go func() {
		target, ok := f.Next(context.Background())
		if ok {
			result <- target
		}
		close(result)
	}()

	// The second worker must still be waiting: the seed is in flight and may yield links
	select {
	case <-result:
		t.Fatal("Next() returned while work was in flight and the queue empty")
	case <-time.After(50 * time.Millisecond):
	}

	f.Offer(seed, []string{"http://example.com/late"})
	f.Complete(seed)

	select {
	case target, ok := <-result:
		require.True(t, ok)
		assert.Equal(t, "http://example.com/late", target.URL)
	case <-time.After(2 * time.Second):
		t.Fatal("Next() did not wake up after Offer")
	}
}

func TestFrontier_NextReturnsDoneWhenLastWorkCompletes(t *testing.T) {
	f := newTestFrontier(10, DepthPages)
	seed := mustNext(t, f)

	done := make(chan bool, 1)
	go func() {
		_, ok := f.Next(context.Background())
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	f.Complete(seed)

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Next() did not return after the last in-flight target completed")
	}
}

func TestFrontier_ContextCancelUnblocks(t *testing.T) {
	f := newTestFrontier(10, DepthPages)
	mustNext(t, f) // Left in flight

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() {
		_, ok := f.Next(ctx)
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Next() did not return after context cancellation")
	}
}

func TestFrontier_CloseUnblocks(t *testing.T) {
	f := newTestFrontier(10, DepthPages)
	mustNext(t, f)

	done := make(chan bool, 1)
	go func() {
		_, ok := f.Next(context.Background())
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	f.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Next() did not return after Close")
	}
	assert.Equal(t, 0, f.Offer(models.CrawlTarget{URL: seedURL}, []string{"http://example.com/x"}))
}

func TestFrontier_ConcurrentWorkersNeverShareURL(t *testing.T) {
	f := newTestFrontier(1000, DepthPages)

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				target, ok := f.Next(context.Background())
				if !ok {
					return
				}
				mu.Lock()
				seen[target.URL]++
				mu.Unlock()
				// Every page links to the same small set, so offers race constantly
				var links []string
				for i := 0; i < 20; i++ {
					links = append(links, fmt.Sprintf("http://example.com/n%d", i))
				}
				f.Offer(target, links)
				f.Complete(target)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 21)
	for u, count := range seen {
		assert.Equal(t, 1, count, "URL %s fetched more than once", u)
	}
	assert.Len(t, f.Visited(), 21)
}
