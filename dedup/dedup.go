// Package dedup decides, per dashboard instance, whether a delivered
// notification has already produced an observable effect. Three transports
// plus polling mean every event arrives several times; admission here is
// what makes that harmless.
package dedup

import (
	"sync"

	"github.com/raktradar/relay/event"
)

const defaultCapacity = 512

// ProcessedSet remembers the composite keys of notifications already acted
// upon. Scope is one consumer instance: the hospital tab and the blood-bank
// tab each admit the same logical event once.
type ProcessedSet struct {
	mu    sync.Mutex
	keys  map[string]struct{}
	order []string
	cap   int
}

// NewProcessedSet creates a set capped at the given capacity; zero or
// negative uses the default. Only recent duplicates are possible (events
// expire out of the relevance window), so oldest-first eviction is safe.
func NewProcessedSet(capacity int) *ProcessedSet {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &ProcessedSet{
		keys: make(map[string]struct{}),
		cap:  capacity,
	}
}

// Admit returns true exactly once per composite key. The membership test
// and the insert happen under one lock, before the caller runs any side
// effect, so near-simultaneous deliveries cannot both pass.
func (p *ProcessedSet) Admit(n event.Notification) bool {
	key := n.CompositeKey()

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, seen := p.keys[key]; seen {
		return false
	}

	if len(p.order) >= p.cap {
		oldest := p.order[0]
		p.order = p.order[1:]
		delete(p.keys, oldest)
	}
	p.keys[key] = struct{}{}
	p.order = append(p.order, key)
	return true
}

// Seen reports whether the notification's key has been admitted, without
// admitting it.
func (p *ProcessedSet) Seen(n event.Notification) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, seen := p.keys[n.CompositeKey()]
	return seen
}

// Len returns the number of remembered keys.
func (p *ProcessedSet) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}
