package roster

import "github.com/mentori/liveclass/pkg/gateway"

// Resolve picks the feed a subscriber should bind to. A hinted display
// name (the mentor's, from the session context) wins; otherwise the
// first entry whose name differs from the caller's own. The boolean is
// false when nothing is resolvable yet; callers retry on the next
// roster update instead of treating that as an error.
//
// The remote role relies on this exact selection order; do not change it.
func Resolve(snapshot []Participant, selfName, hintName string) (gateway.FeedId, bool) {
	if hintName != "" {
		for _, p := range snapshot {
			if p.Display == hintName {
				return p.Feed, true
			}
		}
	}
	for _, p := range snapshot {
		if p.Display != selfName {
			return p.Feed, true
		}
	}
	return 0, false
}
