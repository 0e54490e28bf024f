// Package store defines the two persistence boundaries the FileProcessor
// commits to (spec §4.6, §6): a VectorStore for chunk content and a
// MetadataStore for per-file FileRecords. Only interfaces and in-memory
// test doubles live here; a real deployment wires a vector database and a
// relational/KV store behind these, outside this module's scope.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/standardbeagle/ingestd/internal/types"
)

// VectorStore persists chunk bodies for similarity search (spec §4.6 step 5).
type VectorStore interface {
	CreateChunk(ctx context.Context, chunkID, content string, metadata map[string]any) error
	DeleteChunk(ctx context.Context, chunkID string) error
}

// MetadataStore persists one FileRecord per processed file (spec §4.6 step 6).
type MetadataStore interface {
	UpsertFileRecord(ctx context.Context, rec types.FileRecord) error
	GetFileRecord(ctx context.Context, path string) (*types.FileRecord, bool, error)
}

// MemoryVectorStore is an in-memory VectorStore, used by tests and by
// cmd/ingestd's default wiring.
type MemoryVectorStore struct {
	mu     sync.Mutex
	chunks map[string]string
	calls  int

	// FailOn, when set, makes CreateChunk fail for this chunk_id so tests can
	// exercise the FileProcessor's rollback path (spec §4.6 step 5).
	FailOn string

	// FailAfter, when > 0, makes the FailAfter'th CreateChunk call fail
	// regardless of chunk_id, so multi-chunk rollback can be exercised
	// without needing to predict a UUID ahead of time.
	FailAfter int
}

func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{chunks: make(map[string]string)}
}

func (s *MemoryVectorStore) CreateChunk(_ context.Context, chunkID, content string, _ map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.FailOn != "" && chunkID == s.FailOn {
		return fmt.Errorf("vector store: simulated failure for chunk %s", chunkID)
	}
	if s.FailAfter > 0 && s.calls == s.FailAfter {
		return fmt.Errorf("vector store: simulated failure on call %d", s.calls)
	}
	s.chunks[chunkID] = content
	return nil
}

func (s *MemoryVectorStore) DeleteChunk(_ context.Context, chunkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, chunkID)
	return nil
}

// Chunks returns a snapshot of stored chunks (chunk_id → content), for test
// assertions.
func (s *MemoryVectorStore) Chunks() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.chunks))
	for k, v := range s.chunks {
		out[k] = v
	}
	return out
}

// MemoryMetadataStore is an in-memory MetadataStore keyed by path.
type MemoryMetadataStore struct {
	mu      sync.Mutex
	records map[string]types.FileRecord
}

func NewMemoryMetadataStore() *MemoryMetadataStore {
	return &MemoryMetadataStore{records: make(map[string]types.FileRecord)}
}

func (s *MemoryMetadataStore) UpsertFileRecord(_ context.Context, rec types.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Path] = rec
	return nil
}

func (s *MemoryMetadataStore) GetFileRecord(_ context.Context, path string) (*types.FileRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[path]
	if !ok {
		return nil, false, nil
	}
	return &rec, true, nil
}
