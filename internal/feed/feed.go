// Package feed carries change notifications from the stores to their
// consumers. Events are invalidation cues, not payloads: a consumer reacts
// by re-reading current state, so dropping an event under backpressure is
// safe as long as a later event (or explicit refresh) arrives.
package feed

import "sync"

// Tables that emit change events.
const (
	TableTasks        = "tasks"
	TableRestrictions = "restrictions"
)

// Change kinds.
const (
	KindInsert = "insert"
	KindUpdate = "update"
	KindDelete = "delete"
)

// Event identifies a committed change to a single record.
type Event struct {
	Table    string
	Kind     string
	RecordID string
}

// subscriberBuffer is the per-subscriber channel capacity. Publishes to a
// full subscriber are dropped rather than blocking the writer.
const subscriberBuffer = 64

// Feed fans committed change events out to subscribers.
type Feed struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// Subscription receives events on C until Cancel is called.
type Subscription struct {
	C    chan Event
	feed *Feed
	once sync.Once
}

// New creates an empty feed.
func New() *Feed {
	return &Feed{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a new subscriber. The caller must Cancel the
// subscription when done; C is closed by Cancel.
func (f *Feed) Subscribe() *Subscription {
	sub := &Subscription{C: make(chan Event, subscriberBuffer), feed: f}

	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	return sub
}

// Publish delivers the event to every current subscriber. Slow subscribers
// whose buffers are full miss the event.
func (f *Feed) Publish(event Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for sub := range f.subs {
		select {
		case sub.C <- event:
		default:
		}
	}
}

// Cancel removes the subscription and closes its channel. Safe to call more
// than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		delete(s.feed.subs, s)
		s.feed.mu.Unlock()

		close(s.C)
	})
}
