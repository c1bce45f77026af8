// Package review manages the manual review queue: listings the cascade
// could not resolve, held with their best candidates until a human (or a
// deliberate re-run) decides. Queue entries are upserted by listing
// identity, so a listing never has two rows.
package review

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shelfmatch/shelfmatch/pkg/catalogs"
	"github.com/shelfmatch/shelfmatch/pkg/errors"
	"github.com/shelfmatch/shelfmatch/pkg/match"
)

// Status is the lifecycle state of a queue entry. Every state except
// pending is terminal.
type Status string

const (
	// StatusPending awaits resolution.
	StatusPending Status = "pending"
	// StatusMatched was resolved to a listed candidate.
	StatusMatched Status = "matched"
	// StatusFailed was resolved as unmatched; automatic re-matching is
	// suppressed unless a run forces a retry.
	StatusFailed Status = "failed"
	// StatusManual was resolved by a human to a non-candidate product.
	StatusManual Status = "manual"
)

// Terminal reports whether the status ends the entry's lifecycle.
func (s Status) Terminal() bool {
	return s == StatusMatched || s == StatusFailed || s == StatusManual
}

// Entry is one queued listing with its candidates, best first.
type Entry struct {
	ID         string            `yaml:"id"`
	ListingRef string            `yaml:"listing_ref"`
	Listing    catalogs.Listing  `yaml:"listing"`
	Candidates []match.Candidate `yaml:"candidates,omitempty"`
	Status     Status            `yaml:"status"`
	CreatedAt  time.Time         `yaml:"created_at"`
	ResolvedAt time.Time         `yaml:"resolved_at,omitempty"`

	// seq preserves insertion order for stable review sessions.
	seq uint64
}

// Manager is the concurrent-safe queue.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	nextSeq uint64
}

// Compile-time check: the manager is the cascade's queue sink.
var _ match.Queue = (*Manager)(nil)

// NewManager creates an empty queue manager.
func NewManager() *Manager {
	return &Manager{
		entries: make(map[string]*Entry),
	}
}

// Enqueue upserts an entry for a listing. A pending entry gets its
// candidates refreshed in place; a terminal entry is reopened, which only
// happens on forced re-runs since Blocked suppresses the cascade otherwise.
func (m *Manager) Enqueue(listing catalogs.Listing, candidates []match.Candidate) error {
	if err := listing.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ref := listing.Ref()
	if entry, ok := m.entries[ref]; ok {
		entry.Candidates = candidates
		entry.Status = StatusPending
		entry.ResolvedAt = time.Time{}
		return nil
	}

	m.nextSeq++
	m.entries[ref] = &Entry{
		ID:         uuid.NewString(),
		ListingRef: ref,
		Listing:    listing,
		Candidates: candidates,
		Status:     StatusPending,
		CreatedAt:  time.Now(),
		seq:        m.nextSeq,
	}
	return nil
}

// restore re-inserts a persisted entry verbatim, preserving its status and
// timestamps. Insertion order follows call order.
func (m *Manager) restore(entry Entry) error {
	if err := entry.Listing.Validate(); err != nil {
		return err
	}
	if entry.ListingRef == "" {
		entry.ListingRef = entry.Listing.Ref()
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSeq++
	entry.seq = m.nextSeq
	m.entries[entry.ListingRef] = &entry
	return nil
}

// Resolve transitions a pending entry to a terminal state.
//
// An empty product ID marks the entry failed and produces no result.
// Otherwise the entry produces the same result shape the cascade would
// have written: manual resolutions carry the fixed manual confidence, and
// candidate resolutions carry the chosen candidate's confidence.
func (m *Manager) Resolve(listingRef string, productID catalogs.ProductID, method match.Method) (*match.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[listingRef]
	if !ok {
		return nil, errors.NewNotFoundError("queue entry", listingRef)
	}
	if entry.Status.Terminal() {
		return nil, errors.NewValidationError("status", entry.Status, "entry already resolved")
	}

	now := time.Now()

	if productID == "" {
		entry.Status = StatusFailed
		entry.ResolvedAt = now
		return nil, nil
	}

	var confidence float64
	switch method {
	case match.MethodManual:
		confidence = match.ManualConfidence
		entry.Status = StatusManual
	default:
		if !method.Valid() {
			return nil, errors.NewValidationError("method", method, "unknown method")
		}
		cand, ok := findCandidate(entry.Candidates, productID, method)
		if !ok {
			return nil, errors.NewValidationError("product_id", productID,
				"not among entry candidates; resolve with the manual method instead")
		}
		confidence = cand.Confidence
		entry.Status = StatusMatched
	}

	entry.ResolvedAt = now
	return &match.Result{
		ListingRef: listingRef,
		ProductID:  productID,
		Method:     method,
		Confidence: confidence,
		MatchedAt:  now,
	}, nil
}

// Settle closes a pending entry after an automated re-run matched its
// listing. Entries that are absent or already terminal are left untouched.
func (m *Manager) Settle(listingRef string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[listingRef]
	if !ok || entry.Status.Terminal() {
		return
	}
	entry.Status = StatusMatched
	entry.ResolvedAt = time.Now()
}

// Blocked reports whether a listing has a terminal entry. Terminal entries
// suppress automatic re-matching; forced runs bypass this check.
func (m *Manager) Blocked(listingRef string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[listingRef]
	return ok && entry.Status.Terminal()
}

// Get returns the entry for a listing ref.
func (m *Manager) Get(listingRef string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[listingRef]
	if !ok {
		return Entry{}, errors.NewNotFoundError("queue entry", listingRef)
	}
	return cloneEntry(entry), nil
}

// Pending returns pending entries in insertion order.
func (m *Manager) Pending() []Entry {
	return m.list(func(e *Entry) bool { return e.Status == StatusPending })
}

// Entries returns all entries in insertion order.
func (m *Manager) Entries() []Entry {
	return m.list(func(*Entry) bool { return true })
}

// Len returns the total number of entries.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Manager) list(keep func(*Entry) bool) []Entry {
	m.mu.RLock()
	out := make([]Entry, 0, len(m.entries))
	for _, entry := range m.entries {
		if keep(entry) {
			out = append(out, cloneEntry(entry))
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func cloneEntry(e *Entry) Entry {
	clone := *e
	if e.Candidates != nil {
		clone.Candidates = make([]match.Candidate, len(e.Candidates))
		copy(clone.Candidates, e.Candidates)
	}
	return clone
}

func findCandidate(candidates []match.Candidate, id catalogs.ProductID, method match.Method) (match.Candidate, bool) {
	for _, cand := range candidates {
		if cand.ProductID == id && cand.Method == method {
			return cand, true
		}
	}
	// Fall back to any candidate with the product regardless of method.
	for _, cand := range candidates {
		if cand.ProductID == id {
			return cand, true
		}
	}
	return match.Candidate{}, false
}
