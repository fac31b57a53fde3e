package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	apperrors "github.com/Aman-CERP/imagedex/internal/errors"
	"github.com/Aman-CERP/imagedex/internal/record"
)

// SQLiteStore persists records in a SQLite database. Each record's fields
// are stored as zstd-compressed JSON keyed by position.
//
// Appends are staged in memory and written in a single transaction on
// Commit, or every FlushEvery appends when configured.
type SQLiteStore struct {
	db       *sql.DB
	path     string
	readOnly bool
	lock     *WriterLock

	enc   *zstd.Encoder
	dec   *zstd.Decoder
	cache *lru.Cache[int, record.Fields]

	flushEvery int

	mu        sync.RWMutex
	committed int
	pending   []record.Fields
	deleted   *roaring.Bitmap
	closed    bool
}

// Verify interface implementation at compile time
var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the store at opts.Path.
// A writable store holds the writer lock until Close.
func OpenSQLite(ctx context.Context, opts Options) (*SQLiteStore, error) {
	path := opts.Path
	if path == "" {
		return nil, errors.New("sqlite store requires a path")
	}

	var lock *WriterLock
	if opts.ReadOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("open store %s: %w", path, err)
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		l, err := AcquireWriterLock(path)
		if err != nil {
			return nil, err
		}
		lock = l
	}

	s, err := openSQLite(ctx, path, opts, lock)
	if err != nil {
		_ = lock.Release()
		return nil, err
	}
	return s, nil
}

func openSQLite(ctx context.Context, path string, opts Options, lock *WriterLock) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection serializes writers and readers on one handle
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{"PRAGMA busy_timeout = 5000"}
	if !opts.ReadOnly {
		pragmas = append(pragmas,
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
			"PRAGMA cache_size = -65536",
			"PRAGMA temp_store = MEMORY",
		)
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	cacheSize := opts.CacheSize
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[int, record.Fields](cacheSize)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	s := &SQLiteStore{
		db:         db,
		path:       path,
		readOnly:   opts.ReadOnly,
		lock:       lock,
		enc:        enc,
		dec:        dec,
		cache:      cache,
		flushEvery: opts.FlushEvery,
		deleted:    roaring.New(),
	}

	if err := s.initSchema(ctx, opts.Mode); err != nil {
		s.closeHandles()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.loadState(ctx); err != nil {
		s.closeHandles()
		return nil, fmt.Errorf("failed to load store state: %w", err)
	}

	slog.Debug("store_opened",
		slog.String("path", path),
		slog.Int("records", s.committed),
		slog.Bool("read_only", opts.ReadOnly))

	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context, mode OpenMode) error {
	if s.readOnly {
		return nil
	}

	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS records (
		pos        INTEGER PRIMARY KEY,
		identifier TEXT NOT NULL,
		fields     BLOB NOT NULL,
		deleted    INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_records_identifier ON records(identifier);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	if mode == OpenModeCreate {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM records"); err != nil {
			return fmt.Errorf("failed to clear records: %w", err)
		}
		slog.Info("store_cleared", slog.String("path", s.path))
	}
	return nil
}

func (s *SQLiteStore) loadState(ctx context.Context) error {
	var next int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(pos) + 1, 0) FROM records").Scan(&next); err != nil {
		return err
	}
	s.committed = next

	rows, err := s.db.QueryContext(ctx, "SELECT pos FROM records WHERE deleted = 1")
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var pos int
		if err := rows.Scan(&pos); err != nil {
			return err
		}
		s.deleted.Add(uint32(pos))
	}
	return rows.Err()
}

// Append implements Writer.
func (s *SQLiteStore) Append(ctx context.Context, fields record.Fields) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}
	if s.readOnly {
		return 0, ErrReadOnly
	}

	pos := s.committed + len(s.pending)
	s.pending = append(s.pending, fields.Clone())

	if s.flushEvery > 0 && len(s.pending) >= s.flushEvery {
		if err := s.flushLocked(ctx); err != nil {
			return 0, err
		}
	}
	return pos, nil
}

// Commit implements Writer.
func (s *SQLiteStore) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if s.readOnly {
		return ErrReadOnly
	}
	return s.flushLocked(ctx)
}

// flushLocked writes staged records in one transaction. Caller holds s.mu.
func (s *SQLiteStore) flushLocked(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		if isBusy(err) {
			return apperrors.New(apperrors.ErrCodeStoreBusy, "store is busy", err)
		}
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO records (pos, identifier, fields, deleted) VALUES (?, ?, ?, 0)")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, fields := range s.pending {
		blob, err := s.encode(fields)
		if err != nil {
			return fmt.Errorf("failed to encode record %d: %w", s.committed+i, err)
		}
		if _, err := stmt.ExecContext(ctx, s.committed+i, fields[record.FieldIdentifier], blob); err != nil {
			return fmt.Errorf("failed to insert record %d: %w", s.committed+i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		if isBusy(err) {
			return apperrors.New(apperrors.ErrCodeStoreBusy, "store is busy", err)
		}
		return fmt.Errorf("failed to commit: %w", err)
	}

	slog.Debug("store_flushed",
		slog.Int("records", len(s.pending)),
		slog.Int("total", s.committed+len(s.pending)))

	s.committed += len(s.pending)
	s.pending = nil
	return nil
}

// Close implements Writer. Uncommitted appends are discarded.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if len(s.pending) > 0 {
		slog.Warn("store_closed_with_pending",
			slog.String("path", s.path),
			slog.Int("discarded", len(s.pending)))
		s.pending = nil
	}

	return s.closeHandles()
}

func (s *SQLiteStore) closeHandles() error {
	s.dec.Close()
	_ = s.enc.Close()
	err := s.db.Close()
	if relErr := s.lock.Release(); relErr != nil && err == nil {
		err = relErr
	}
	return err
}

// NumRecords implements Reader.
func (s *SQLiteStore) NumRecords() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.committed
}

// IsLive implements Reader.
func (s *SQLiteStore) IsLive(pos int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return pos >= 0 && pos < s.committed && !s.deleted.Contains(uint32(pos))
}

// GetFields implements Reader.
func (s *SQLiteStore) GetFields(ctx context.Context, pos int) (record.Fields, error) {
	s.mu.RLock()
	closed, committed := s.closed, s.committed
	s.mu.RUnlock()

	if closed {
		return nil, ErrStoreClosed
	}
	if pos < 0 || pos >= committed {
		return nil, fmt.Errorf("get fields at %d: %w", pos, ErrOutOfRange)
	}

	if fields, ok := s.cache.Get(pos); ok {
		return fields.Clone(), nil
	}

	var blob []byte
	err := s.db.QueryRowContext(ctx, "SELECT fields FROM records WHERE pos = ?", pos).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get fields at %d: %w", pos, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record %d: %w", pos, err)
	}

	fields, err := s.decode(blob)
	if err != nil {
		return nil, fmt.Errorf("failed to decode record %d: %w", pos, err)
	}
	s.cache.Add(pos, fields)
	return fields.Clone(), nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, pos int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if s.readOnly {
		return ErrReadOnly
	}
	if pos < 0 || pos >= s.committed {
		return fmt.Errorf("delete %d: %w", pos, ErrOutOfRange)
	}

	if _, err := s.db.ExecContext(ctx, "UPDATE records SET deleted = 1 WHERE pos = ?", pos); err != nil {
		return fmt.Errorf("failed to delete record %d: %w", pos, err)
	}
	s.deleted.Add(uint32(pos))
	s.cache.Remove(pos)
	return nil
}

// Find implements Store.
func (s *SQLiteStore) Find(ctx context.Context, identifier string) (int, error) {
	var pos int
	err := s.db.QueryRowContext(ctx,
		"SELECT pos FROM records WHERE identifier = ? AND deleted = 0 ORDER BY pos DESC LIMIT 1",
		identifier).Scan(&pos)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s: %w", identifier, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to find %s: %w", identifier, err)
	}
	return pos, nil
}

// Path returns the database path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) encode(fields record.Fields) ([]byte, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return s.enc.EncodeAll(raw, nil), nil
}

func (s *SQLiteStore) decode(blob []byte) (record.Fields, error) {
	raw, err := s.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, err
	}
	var fields record.Fields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// isBusy reports SQLite lock contention that outlasted busy_timeout.
func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
