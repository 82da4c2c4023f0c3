// Package presence tracks the current roster of one room and turns the full
// snapshots pushed by the transport into added/changed/removed deltas.
package presence

import (
	"strings"
	"sync"
)

// UserSnapshot is one occupant as delivered in a roster snapshot. Change
// detection compares the eight flag/identity fields; anything else the
// transport tacks on (such as JoinedAt) is carried but ignored.
type UserSnapshot struct {
	Username   string `json:"username"`
	Color      string `json:"color"`
	Admin      bool   `json:"admin"`
	Banned     bool   `json:"banned"`
	Moderator  bool   `json:"moderator"`
	Premium    bool   `json:"premium"`
	SiteAdmin  bool   `json:"site_admin"`
	Registered bool   `json:"registered"`
	JoinedAt   int64  `json:"joined_at,omitempty"`
}

// Change pairs the previous and current snapshot of a user whose tracked
// fields differ between two successive rosters.
type Change struct {
	Old UserSnapshot
	New UserSnapshot
}

// Diff is the delta between two successive roster snapshots. The very first
// snapshot for a room sets Initial and carries the full roster instead of
// per-user additions, so connecting does not produce a storm of join events.
type Diff struct {
	Initial bool
	Roster  []UserSnapshot
	Added   []UserSnapshot
	Removed []UserSnapshot
	Changed []Change
}

// Empty reports whether the diff carries no events at all.
func (d Diff) Empty() bool {
	return !d.Initial && len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Subscriber receives each computed diff, in subscription order.
type Subscriber func(Diff)

// Set holds the most recent roster for one room.
type Set struct {
	mu      sync.Mutex
	seeded  bool
	current []UserSnapshot
	byName  map[string]UserSnapshot
	subs    []Subscriber
}

// NewSet constructs an empty roster.
func NewSet() *Set {
	return &Set{byName: make(map[string]UserSnapshot)}
}

// Subscribe registers a listener for future diffs.
func (s *Set) Subscribe(fn Subscriber) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// Update replaces the tracked roster with the new snapshot and returns the
// computed diff. The diff is also fanned out to subscribers before Update
// returns, so a snapshot is applied atomically relative to lookups.
func (s *Set) Update(snapshot []UserSnapshot) Diff {
	s.mu.Lock()

	var diff Diff
	if !s.seeded {
		diff.Initial = true
		diff.Roster = append([]UserSnapshot(nil), snapshot...)
		s.seeded = true
	} else {
		remaining := make(map[string]UserSnapshot, len(s.byName))
		for name, u := range s.byName {
			remaining[name] = u
		}
		for _, u := range snapshot {
			key := strings.ToLower(u.Username)
			if old, ok := s.byName[key]; ok {
				if !equal(old, u) {
					diff.Changed = append(diff.Changed, Change{Old: old, New: u})
				}
			} else {
				diff.Added = append(diff.Added, u)
			}
			delete(remaining, key)
		}
		for _, u := range remaining {
			diff.Removed = append(diff.Removed, u)
		}
	}

	s.current = append([]UserSnapshot(nil), snapshot...)
	s.byName = make(map[string]UserSnapshot, len(snapshot))
	for _, u := range snapshot {
		s.byName[strings.ToLower(u.Username)] = u
	}

	subs := append([]Subscriber(nil), s.subs...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(diff)
	}
	return diff
}

// Lookup returns the tracked snapshot for a username, case-insensitively.
func (s *Set) Lookup(username string) (UserSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byName[strings.ToLower(username)]
	return u, ok
}

// Roster returns a copy of the most recent snapshot, in delivery order.
func (s *Set) Roster() []UserSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]UserSnapshot(nil), s.current...)
}

// Len returns the number of tracked users.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byName)
}

// equal compares only the tracked fields.
func equal(a, b UserSnapshot) bool {
	return a.Username == b.Username &&
		a.Color == b.Color &&
		a.Admin == b.Admin &&
		a.Banned == b.Banned &&
		a.Moderator == b.Moderator &&
		a.Premium == b.Premium &&
		a.SiteAdmin == b.SiteAdmin &&
		a.Registered == b.Registered
}
