package watch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Sriram-PR/webscout/pkg/utils"
)

const (
	stateFileName = "watch_state.json"
	stateVersion  = 1

	// First retry delay after a failed crawl; doubles per consecutive failure, capped at the interval
	failureRetryBase = time.Minute
)

// RunRecord is the outcome of one crawl of a watched host
type RunRecord struct {
	Started        time.Time     `json:"started"`
	Duration       time.Duration `json:"duration"`
	Success        bool          `json:"success"`
	PagesVisited   int           `json:"pages_visited"`
	PagesFailed    int           `json:"pages_failed"`
	ReportsWritten int           `json:"reports_written"`
	Error          string        `json:"error,omitempty"`
}

// HostState is what the scheduler remembers about a host between rounds
type HostState struct {
	LastRun             RunRecord `json:"last_run"`
	LastSuccess         time.Time `json:"last_success,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Runs                int       `json:"runs"`
}

type stateFile struct {
	Version   int                  `json:"version"`
	Hosts     map[string]HostState `json:"hosts"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// StateManager persists per-host run history in <state_dir>/watch_state.json
type StateManager struct {
	statePath string
	now       func() time.Time

	mu    sync.RWMutex
	hosts map[string]HostState
}

// NewStateManager creates a state manager for stateDir; nothing is read until Load
func NewStateManager(stateDir string) *StateManager {
	return &StateManager{
		statePath: filepath.Join(stateDir, stateFileName),
		now:       time.Now,
		hosts:     make(map[string]HostState),
	}
}

// Load reads the state file. A missing file is a fresh start.
func (m *StateManager) Load() error {
	data, err := os.ReadFile(m.statePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: reading watch state '%s': %w", utils.ErrFilesystem, m.statePath, err)
	}

	var f stateFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("%w: watch state '%s': %w", utils.ErrParsing, m.statePath, err)
	}
	if f.Version != stateVersion {
		return fmt.Errorf("%w: watch state '%s' has version %d, want %d", utils.ErrParsing, m.statePath, f.Version, stateVersion)
	}
	if f.Hosts == nil {
		f.Hosts = make(map[string]HostState)
	}

	m.mu.Lock()
	m.hosts = f.Hosts
	m.mu.Unlock()
	return nil
}

// Save writes the state through a temp file and a rename, so an interrupted
// save never leaves a truncated state file behind.
func (m *StateManager) Save() error {
	m.mu.RLock()
	f := stateFile{Version: stateVersion, Hosts: m.hosts, UpdatedAt: m.now()}
	data, err := json.MarshalIndent(f, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("%w: encoding watch state: %w", utils.ErrParsing, err)
	}

	dir := filepath.Dir(m.statePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: creating state directory '%s': %w", utils.ErrFilesystem, dir, err)
	}
	tmp := m.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("%w: writing watch state '%s': %w", utils.ErrFilesystem, tmp, err)
	}
	if err := os.Rename(tmp, m.statePath); err != nil {
		return fmt.Errorf("%w: replacing watch state '%s': %w", utils.ErrFilesystem, m.statePath, err)
	}
	return nil
}

// Record stores the outcome of a finished crawl of host
func (m *StateManager) Record(host string, run RunRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.hosts[host]
	st.LastRun = run
	st.Runs++
	if run.Success {
		st.LastSuccess = run.Started.Add(run.Duration)
		st.ConsecutiveFailures = 0
	} else {
		st.ConsecutiveFailures++
	}
	m.hosts[host] = st
}

// Host returns the remembered state of host
func (m *StateManager) Host(host string) (HostState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.hosts[host]
	return st, ok
}

// NextRun returns when host is due. A host never crawled is due now. After a
// success the next run is one interval after the last start; after failures it is
// failureRetryBase doubled per consecutive failure, never later than the interval.
func (m *StateManager) NextRun(host string, interval time.Duration) time.Time {
	m.mu.RLock()
	st, ok := m.hosts[host]
	m.mu.RUnlock()
	if !ok {
		return m.now()
	}
	return st.LastRun.Started.Add(retryDelay(st, interval))
}

// IsDue reports whether host should be crawled now
func (m *StateManager) IsDue(host string, interval time.Duration) bool {
	return !m.now().Before(m.NextRun(host, interval))
}

// Prune forgets hosts that are no longer watched and returns them sorted
func (m *StateManager) Prune(watched []string) []string {
	keep := make(map[string]struct{}, len(watched))
	for _, h := range watched {
		keep[h] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var dropped []string
	for h := range m.hosts {
		if _, ok := keep[h]; !ok {
			delete(m.hosts, h)
			dropped = append(dropped, h)
		}
	}
	sort.Strings(dropped)
	return dropped
}

func retryDelay(st HostState, interval time.Duration) time.Duration {
	if st.LastRun.Success || st.ConsecutiveFailures == 0 {
		return interval
	}
	delay := failureRetryBase
	for i := 1; i < st.ConsecutiveFailures && delay < interval; i++ {
		delay *= 2
	}
	if delay > interval {
		delay = interval
	}
	return delay
}
