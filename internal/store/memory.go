package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Aman-CERP/imagedex/internal/record"
)

// MemoryStore keeps records in memory. Deleted positions are tracked in a
// roaring bitmap.
//
// Close ends the writer side only; committed records stay readable.
type MemoryStore struct {
	mu        sync.RWMutex
	committed []record.Fields
	pending   []record.Fields
	deleted   *roaring.Bitmap
	closed    bool
}

// Verify interface implementation at compile time
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{deleted: roaring.New()}
}

// Append implements Writer.
func (s *MemoryStore) Append(ctx context.Context, fields record.Fields) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	pos := len(s.committed) + len(s.pending)
	s.pending = append(s.pending, fields.Clone())
	return pos, nil
}

// Commit implements Writer.
func (s *MemoryStore) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	s.committed = append(s.committed, s.pending...)
	s.pending = nil
	return nil
}

// Close implements Writer.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = nil
	s.closed = true
	return nil
}

// NumRecords implements Reader.
func (s *MemoryStore) NumRecords() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.committed)
}

// IsLive implements Reader.
func (s *MemoryStore) IsLive(pos int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return pos >= 0 && pos < len(s.committed) && !s.deleted.Contains(uint32(pos))
}

// GetFields implements Reader. The returned map is a copy.
func (s *MemoryStore) GetFields(ctx context.Context, pos int) (record.Fields, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if pos < 0 || pos >= len(s.committed) {
		return nil, fmt.Errorf("get fields at %d: %w", pos, ErrOutOfRange)
	}
	return s.committed[pos].Clone(), nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, pos int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pos < 0 || pos >= len(s.committed) {
		return fmt.Errorf("delete %d: %w", pos, ErrOutOfRange)
	}
	s.deleted.Add(uint32(pos))
	return nil
}

// Find implements Store.
func (s *MemoryStore) Find(ctx context.Context, identifier string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.committed) - 1; i >= 0; i-- {
		if s.deleted.Contains(uint32(i)) {
			continue
		}
		if s.committed[i][record.FieldIdentifier] == identifier {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%s: %w", identifier, ErrNotFound)
}

// DeletedCount returns the number of deleted positions.
func (s *MemoryStore) DeletedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int(s.deleted.GetCardinality())
}
