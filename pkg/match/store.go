package match

import (
	"sort"
	"sync"

	"github.com/shelfmatch/shelfmatch/pkg/errors"
)

// Store persists listing-to-canonical mappings. Save is an upsert keyed by
// listing ref, so re-running the cascade overwrites rather than duplicates.
type Store interface {
	// Save upserts a result by listing ref
	Save(result Result) error

	// Get returns the result for a listing ref
	Get(listingRef string) (Result, error)

	// Delete removes the result for a listing ref
	Delete(listingRef string) error

	// List returns all results ordered by listing ref
	List() []Result

	// ByProduct returns all results pointing at a canonical product
	ByProduct(id string) []Result

	// Len returns the number of stored results
	Len() int
}

// memoryStore is the in-memory Store implementation.
type memoryStore struct {
	mu      sync.RWMutex
	results map[string]Result
}

// NewMemoryStore creates an empty in-memory result store.
func NewMemoryStore() Store {
	return &memoryStore{
		results: make(map[string]Result),
	}
}

func (s *memoryStore) Save(result Result) error {
	if result.ListingRef == "" {
		return errors.NewValidationError("listing_ref", result.ListingRef, "cannot be empty")
	}
	if result.ProductID == "" {
		return errors.NewValidationError("product_id", result.ProductID, "cannot be empty")
	}
	if !result.Method.Valid() {
		return errors.NewValidationError("method", result.Method, "unknown method")
	}

	s.mu.Lock()
	s.results[result.ListingRef] = result
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Get(listingRef string) (Result, error) {
	s.mu.RLock()
	result, ok := s.results[listingRef]
	s.mu.RUnlock()

	if !ok {
		return Result{}, errors.NewNotFoundError("match result", listingRef)
	}
	return result, nil
}

func (s *memoryStore) Delete(listingRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.results[listingRef]; !ok {
		return errors.NewNotFoundError("match result", listingRef)
	}
	delete(s.results, listingRef)
	return nil
}

func (s *memoryStore) List() []Result {
	s.mu.RLock()
	out := make([]Result, 0, len(s.results))
	for _, r := range s.results {
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ListingRef < out[j].ListingRef })
	return out
}

func (s *memoryStore) ByProduct(id string) []Result {
	s.mu.RLock()
	out := make([]Result, 0)
	for _, r := range s.results {
		if r.ProductID.String() == id {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ListingRef < out[j].ListingRef })
	return out
}

func (s *memoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}
