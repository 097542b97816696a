// Package store implements the shared fact store: the persisted snapshot of
// domain facts, the deletion tombstones, and the notification log that other
// dashboard processes recover events from.
package store

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/raktradar/relay/errors"
	"github.com/raktradar/relay/event"
	"github.com/raktradar/relay/logging"
	"github.com/sirupsen/logrus"
)

// document is the single persisted unit. Every mutation rewrites the whole
// document; replacement is atomic at this granularity, which is what gives
// cross-process writers last-write-wins semantics.
type document struct {
	Facts         map[event.Kind]event.Fact `json:"facts"`
	Tombstones    map[string]time.Time      `json:"tombstones"`
	Notifications []event.Notification      `json:"notifications"`
}

func newDocument() *document {
	return &document{
		Facts:      make(map[event.Kind]event.Fact),
		Tombstones: make(map[string]time.Time),
	}
}

// Store owns the facts and notification log for one browser-profile
// equivalent. All methods are safe for concurrent use within a process;
// across processes the last writer wins.
type Store struct {
	mu      sync.Mutex
	backend Backend
	window  time.Duration
	logger  *logrus.Entry
}

// New creates a store over the given backend. The relevance window bounds
// ListActiveNotifications and notification-log pruning.
func New(backend Backend, window time.Duration) *Store {
	return &Store{
		backend: backend,
		window:  window,
		logger:  logging.NewLogger("store"),
	}
}

// NewFile creates a file-backed store rooted at the profile directory.
func NewFile(profileDir string, window time.Duration) (*Store, error) {
	backend, err := NewFileBackend(profileDir)
	if err != nil {
		return nil, errors.StoreIO(profileDir, err)
	}
	return New(backend, window), nil
}

// Path returns the store document path, or "" for non-file backends.
func (s *Store) Path() string { return s.backend.Path() }

// load reads and parses the document. A corrupt document is logged and
// treated as empty rather than failing callers; the next poll rebuilds the
// facts from authoritative state anyway.
func (s *Store) load() *document {
	data, err := s.backend.Load()
	if err != nil {
		s.logger.WithError(err).Warn("Failed to read store document, starting empty")
		return newDocument()
	}
	if len(data) == 0 {
		return newDocument()
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.WithError(err).Warn("Store document corrupt, starting empty")
		return newDocument()
	}
	if doc.Facts == nil {
		doc.Facts = make(map[event.Kind]event.Fact)
	}
	if doc.Tombstones == nil {
		doc.Tombstones = make(map[string]time.Time)
	}
	return &doc
}

func (s *Store) save(doc *document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStoreIO, "failed to marshal store document")
	}
	if err := s.backend.Save(data); err != nil {
		return errors.StoreIO(s.backend.Path(), err)
	}
	return nil
}

// PutFact replaces the current fact for a kind. Records whose subject id is
// tombstoned are dropped before the write; a new fact never resurrects a
// deleted subject.
func (s *Store) PutFact(kind event.Kind, payload []json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	doc.Facts[kind] = event.Fact{
		Kind:       kind,
		Payload:    filterTombstoned(payload, doc.Tombstones),
		ObservedAt: time.Now(),
	}
	return s.save(doc)
}

// GetFact returns the current fact for a kind, or an empty fact when none
// has been stored yet. It never fails; read problems degrade to empty.
func (s *Store) GetFact(kind event.Kind) event.Fact {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	if fact, ok := doc.Facts[kind]; ok {
		return fact
	}
	return event.Fact{Kind: kind}
}

// Tombstone marks a subject as deleted and scrubs it from every current
// fact. Idempotent.
func (s *Store) Tombstone(subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	doc.Tombstones[subjectID] = time.Now()
	for kind, fact := range doc.Facts {
		fact.Payload = filterTombstoned(fact.Payload, doc.Tombstones)
		doc.Facts[kind] = fact
	}
	return s.save(doc)
}

// Tombstoned reports whether a subject is currently marked deleted.
func (s *Store) Tombstoned(subjectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.load().Tombstones[subjectID]
	return ok
}

// ClearTombstones empties the tombstone set. This is a deliberate
// administrative action: previously deleted subjects reappear on the next
// poll.
func (s *Store) ClearTombstones() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	doc.Tombstones = make(map[string]time.Time)
	return s.save(doc)
}

// PutNotification appends an event to the notification log. Entries older
// than twice the relevance window are pruned on the way in; they can no
// longer be admitted by anyone.
func (s *Store) PutNotification(n event.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	cutoff := time.Now().Add(-2 * s.window)
	kept := doc.Notifications[:0]
	for _, existing := range doc.Notifications {
		if existing.CreatedAt.After(cutoff) {
			kept = append(kept, existing)
		}
	}
	doc.Notifications = append(kept, n)
	return s.save(doc)
}

// ListActiveNotifications returns active notifications created after since
// and still inside the relevance window. Late-joining subscribers use this
// for bounded replay.
func (s *Store) ListActiveNotifications(since time.Time) []event.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	now := time.Now()
	var out []event.Notification
	for _, n := range doc.Notifications {
		if n.Status != event.StatusActive {
			continue
		}
		if n.Expired(s.window, now) {
			continue
		}
		if !n.CreatedAt.After(since) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// MarkProcessed flips a notification to processed. The effect is local to
// this store; subscribers that already admitted the event are unaffected.
func (s *Store) MarkProcessed(eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	for i := range doc.Notifications {
		if doc.Notifications[i].ID == eventID {
			doc.Notifications[i].Status = event.StatusProcessed
		}
	}
	return s.save(doc)
}

func filterTombstoned(payload []json.RawMessage, tombstones map[string]time.Time) []json.RawMessage {
	if len(tombstones) == 0 {
		return payload
	}
	out := make([]json.RawMessage, 0, len(payload))
	for _, record := range payload {
		if _, dead := tombstones[event.SubjectID(record)]; dead {
			continue
		}
		out = append(out, record)
	}
	return out
}
