// Package store provides the record store behind indexing and search: an
// append-only writer plus a random-access reader over committed records,
// and the derived text and descriptor indexes built from it.
package store

import (
	"context"
	"errors"

	"github.com/Aman-CERP/imagedex/internal/record"
)

var (
	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("store is closed")

	// ErrNotFound is returned when no live record matches a lookup.
	ErrNotFound = errors.New("record not found")

	// ErrOutOfRange is returned for positions outside the committed range.
	ErrOutOfRange = errors.New("position out of range")

	// ErrReadOnly is returned by write operations on a read-only store.
	ErrReadOnly = errors.New("store is read-only")
)

// Writer appends records. It is owned by a single pipeline at a time.
type Writer interface {
	// Append stages fields as a new record and returns its position.
	// Staged records become visible to readers after Commit.
	Append(ctx context.Context, fields record.Fields) (int, error)

	// Commit makes every staged record visible.
	Commit(ctx context.Context) error

	// Close releases the writer. Staged records that were not committed are discarded.
	Close() error
}

// Reader gives random access to committed records by position.
//
// Positions run from 0 to NumRecords()-1. A position stays valid after
// deletion but IsLive reports false for it.
type Reader interface {
	NumRecords() int
	IsLive(pos int) bool
	GetFields(ctx context.Context, pos int) (record.Fields, error)
}

// Store is the full record store.
type Store interface {
	Writer
	Reader

	// Delete marks a committed position as not live.
	Delete(ctx context.Context, pos int) error

	// Find returns the newest live position whose identifier matches.
	Find(ctx context.Context, identifier string) (int, error)
}

// OpenMode selects how an existing store is treated on open.
type OpenMode string

const (
	// OpenModeAppend keeps existing records (default).
	OpenModeAppend OpenMode = "append"
	// OpenModeCreate discards existing records.
	OpenModeCreate OpenMode = "create"
)

// Options configures Open.
type Options struct {
	// Path is the SQLite database file. Empty opens an in-memory store.
	Path string

	// Mode is the open mode. Empty means OpenModeAppend.
	Mode OpenMode

	// ReadOnly opens the store for search only; no writer lock is taken.
	ReadOnly bool

	// CacheSize is the number of decoded records kept in the read cache.
	CacheSize int

	// FlushEvery commits automatically after this many staged appends.
	// Zero stages everything until Commit.
	FlushEvery int
}

// DefaultCacheSize is the read cache size used when Options.CacheSize is zero.
const DefaultCacheSize = 4096

// Open opens the store described by opts.
func Open(ctx context.Context, opts Options) (Store, error) {
	if opts.Path == "" {
		return NewMemoryStore(), nil
	}
	return OpenSQLite(ctx, opts)
}

// Positions returns the live positions of r in ascending order.
func Positions(r Reader) []int {
	n := r.NumRecords()
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if r.IsLive(i) {
			out = append(out, i)
		}
	}
	return out
}
