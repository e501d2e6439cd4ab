// Package projectcache holds the decoded project snapshot and coordinates
// refreshing it from the registration API.
package projectcache

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/Scouterna/j26-signupinfo/internal/services/signupinfo/forms"
	"github.com/google/uuid"
)

// DefaultMaxAge is how long a snapshot is served before it is refreshed.
const DefaultMaxAge = 24 * time.Hour

// Snapshot is one fully decoded refresh round. It is never mutated after it
// has been installed.
type Snapshot struct {
	// Round identifies the refresh round that produced the snapshot.
	Round      uuid.UUID
	Projects   map[int]*forms.Project
	ProjectIDs []int
	UpdatedAt  time.Time
}

// Project returns a project of the snapshot.
func (s *Snapshot) Project(id int) (*forms.Project, bool) {
	if s == nil {
		return nil, false
	}
	p, ok := s.Projects[id]
	return p, ok
}

// Status describes the current cache state.
type Status struct {
	Loaded    bool
	Stale     bool
	UpdatedAt time.Time
	Round     uuid.UUID
	Projects  int
}

// Cache is the process-wide holder of the current snapshot. Readers load the
// snapshot pointer and need no further locking.
type Cache struct {
	current atomic.Pointer[Snapshot]
	maxAge  time.Duration
	now     func() time.Time
}

// New creates an empty cache. A non-positive maxAge uses DefaultMaxAge and a
// nil clock uses time.Now.
func New(maxAge time.Duration, now func() time.Time) *Cache {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{maxAge: maxAge, now: now}
}

// Current returns the installed snapshot, or nil and false when the cache has
// never been loaded.
func (c *Cache) Current() (*Snapshot, bool) {
	snap := c.current.Load()
	return snap, snap != nil
}

// IsStale reports whether the cache needs a refresh: always when empty,
// otherwise once the snapshot is older than the max age.
func (c *Cache) IsStale() bool {
	return c.isStaleAt(c.current.Load(), c.now())
}

func (c *Cache) isStaleAt(snap *Snapshot, now time.Time) bool {
	if snap == nil {
		return true
	}
	return now.Sub(snap.UpdatedAt) > c.maxAge
}

// MaxAge returns the staleness threshold.
func (c *Cache) MaxAge() time.Duration {
	return c.maxAge
}

// Status reports the current cache state.
func (c *Cache) Status() Status {
	snap := c.current.Load()
	status := Status{Stale: c.isStaleAt(snap, c.now())}
	if snap == nil {
		return status
	}
	status.Loaded = true
	status.UpdatedAt = snap.UpdatedAt
	status.Round = snap.Round
	status.Projects = len(snap.Projects)
	return status
}

// Install replaces the snapshot with one built from projects. The new
// timestamp is strictly later than the replaced one even when the clock has
// not advanced, and the snapshot and timestamp are swapped together.
func (c *Cache) Install(round uuid.UUID, projects []*forms.Project) *Snapshot {
	byID := make(map[int]*forms.Project, len(projects))
	ids := make([]int, 0, len(projects))
	for _, p := range projects {
		if _, ok := byID[p.ID]; !ok {
			ids = append(ids, p.ID)
		}
		byID[p.ID] = p
	}
	sort.Ints(ids)

	for {
		old := c.current.Load()
		updatedAt := c.now()
		if old != nil && !updatedAt.After(old.UpdatedAt) {
			updatedAt = old.UpdatedAt.Add(time.Nanosecond)
		}
		next := &Snapshot{Round: round, Projects: byID, ProjectIDs: ids, UpdatedAt: updatedAt}
		if c.current.CompareAndSwap(old, next) {
			return next
		}
	}
}
