package document

import (
	"context"
	"sync"
)

// Store holds the chunk set of each document. Put replaces the whole set for
// a document in one step, so readers see either the old or the new chunks.
type Store interface {
	Put(ctx context.Context, documentID string, chunks []Chunk) error
	// Get returns the chunks of a document. An unknown document yields an
	// empty slice and no error.
	Get(ctx context.Context, documentID string) ([]Chunk, error)
}

// MemoryStore keeps chunk sets in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]Chunk
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]Chunk)}
}

func (s *MemoryStore) Put(_ context.Context, documentID string, chunks []Chunk) error {
	stored := make([]Chunk, len(chunks))
	copy(stored, chunks)

	s.mu.Lock()
	s.docs[documentID] = stored
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, documentID string) ([]Chunk, error) {
	s.mu.RLock()
	stored := s.docs[documentID]
	s.mu.RUnlock()

	out := make([]Chunk, len(stored))
	copy(out, stored)
	return out, nil
}

// Delete forgets a document.
func (s *MemoryStore) Delete(documentID string) {
	s.mu.Lock()
	delete(s.docs, documentID)
	s.mu.Unlock()
}

// Len returns the number of documents held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Clear drops every document.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	s.docs = make(map[string][]Chunk)
	s.mu.Unlock()
}
