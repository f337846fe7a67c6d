package notify

import (
	"sync"
	"time"
)

// Announced remembers which broadcasts were already posted, per
// guild/category scope. Entries are kept while the broadcast keeps showing
// up in poll results and are evicted once they go unseen for the retention
// window.
type Announced struct {
	mu   sync.Mutex
	seen map[Scope]map[string]time.Time
}

// Scope identifies one guild/category pair.
type Scope struct {
	GuildID    string
	CategoryID string
}

func NewAnnounced() *Announced {
	return &Announced{seen: map[Scope]map[string]time.Time{}}
}

// Seen reports whether id was already announced in scope. When it was, its
// last-seen time is moved to now.
func (a *Announced) Seen(scope Scope, id string, now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	ids, ok := a.seen[scope]
	if !ok {
		return false
	}
	if _, ok := ids[id]; !ok {
		return false
	}
	ids[id] = now
	return true
}

// Mark records id as announced in scope.
func (a *Announced) Mark(scope Scope, id string, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ids, ok := a.seen[scope]
	if !ok {
		ids = map[string]time.Time{}
		a.seen[scope] = ids
	}
	ids[id] = now
}

// Sweep evicts entries of the given scopes last seen more than retention
// before now and returns how many were removed. Only scopes whose listing
// was fetched this round belong here; other scopes keep their entries.
func (a *Announced) Sweep(now time.Time, retention time.Duration, scopes []Scope) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := now.Add(-retention)
	removed := 0
	for _, scope := range scopes {
		ids, ok := a.seen[scope]
		if !ok {
			continue
		}
		for id, last := range ids {
			if last.Before(cutoff) {
				delete(ids, id)
				removed++
			}
		}
		if len(ids) == 0 {
			delete(a.seen, scope)
		}
	}
	return removed
}

// Len returns the number of remembered broadcasts across all scopes.
func (a *Announced) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for _, ids := range a.seen {
		n += len(ids)
	}
	return n
}
