// Package roster tracks the set of known participants in a room and
// decides which remote feed a subscriber should bind to.
package roster

import (
	"sort"
	"strings"
	"sync"

	"github.com/mentori/liveclass/pkg/gateway"
)

// RoleMarker is the display-name prefix marking the mentor. The gateway
// has no native role field, so both sides of the session derive roles
// from this naming convention; keep it in sync with the remote client.
const RoleMarker = "[MENTOR] "

// MentorName embeds the role marker into a display name.
func MentorName(display string) string { return RoleMarker + display }

// IsMentorName reports whether a display name carries the role marker.
func IsMentorName(display string) bool { return strings.HasPrefix(display, RoleMarker) }

// Participant is one known feed in the room.
type Participant struct {
	Feed    gateway.FeedId
	Display string
}

// Roster reconciles participant updates from two producers, the periodic
// poll and the gateway's own event push, into one set keyed by feed id.
// Snapshots union in, removals happen only by explicit feed id.
type Roster struct {
	mu      sync.Mutex
	entries map[gateway.FeedId]Participant
}

func New() *Roster {
	return &Roster{entries: make(map[gateway.FeedId]Participant)}
}

// Apply unions a snapshot into the roster and reports whether anything
// changed. Applying the same snapshot twice is a no-op.
func (r *Roster) Apply(snapshot []Participant) (changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range snapshot {
		if cur, ok := r.entries[p.Feed]; !ok || cur != p {
			r.entries[p.Feed] = p
			changed = true
		}
	}
	return
}

// Remove drops one feed, typically on a leave/unpublish notice.
func (r *Roster) Remove(feed gateway.FeedId) (removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[feed]; ok {
		delete(r.entries, feed)
		removed = true
	}
	return
}

// Has reports whether the feed is currently known.
func (r *Roster) Has(feed gateway.FeedId) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[feed]
	return ok
}

// Snapshot returns the participants ordered by feed id.
func (r *Roster) Snapshot() []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Participant, 0, len(r.entries))
	for _, p := range r.entries {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Feed < out[j].Feed })
	return out
}

func (r *Roster) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
