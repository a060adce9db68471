package tier

import (
	"fmt"
	"sync"
	"time"
)

type event struct {
	op     string
	kind   Kind
	key    string
	reason RemovalReason
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) Stored(k Kind, key, _ string, _ time.Time) {
	r.add(event{op: "stored", kind: k, key: key})
}

func (r *recorder) Removed(k Kind, key string, reason RemovalReason) {
	r.add(event{op: "removed", kind: k, key: key, reason: reason})
}

func (r *recorder) Cleared(k Kind) { r.add(event{op: "cleared", kind: k}) }

func (r *recorder) add(e event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) removed(reason RemovalReason) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []string
	for _, e := range r.events {
		if e.op == "removed" && e.reason == reason {
			keys = append(keys, e.key)
		}
	}
	return keys
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func key(i int) string { return fmt.Sprintf("k%03d", i) }
