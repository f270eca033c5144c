package state

import "time"

// Router classifies chat and system entries into per-channel ordered logs.
// System entries and entries addressed to the global sentinel land in the
// global log; everything else lands in the log keyed by its room id, created
// on first use.
type Router struct {
	store *Store
	now   func() time.Time
}

// NewRouter builds a router appending through the given store.
func NewRouter(store *Store) *Router {
	return &Router{store: store, now: time.Now}
}

// Route appends the entry to its channel log. A zero ReceivedAt is stamped on
// arrival.
func (r *Router) Route(entry ChatEntry) {
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = r.now()
	}
	channel := entry.Channel
	if channel == "" || channel == GlobalChannel || entry.System {
		channel = GlobalChannel
	}
	entry.Channel = channel

	r.store.Apply(func(s *State) {
		if s.Channels == nil {
			s.Channels = make(map[string][]ChatEntry)
		}
		s.Channels[channel] = append(s.Channels[channel], entry)
	})
}

// SystemNotice appends a system-kind entry to the global log.
func (r *Router) SystemNotice(body string) {
	r.Route(ChatEntry{Body: body, System: true})
}

// Channel returns the ordered log for a channel id, empty if none exists.
func (r *Router) Channel(id string) []ChatEntry {
	snapshot := r.store.Snapshot()
	return snapshot.Channels[id]
}
