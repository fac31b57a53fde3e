package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/imagedex/internal/record"
)

// Helper to create a test store with cleanup
func newTestSQLiteStore(t *testing.T, opts Options) *SQLiteStore {
	t.Helper()
	if opts.Path == "" {
		opts.Path = filepath.Join(t.TempDir(), ".imagedex", "records.db")
	}

	s, err := OpenSQLite(context.Background(), opts)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestSQLiteStore_CommitAndReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "records.db")

	// Given: a store with two committed records
	s, err := OpenSQLite(ctx, Options{Path: path})
	require.NoError(t, err)

	_, err = s.Append(ctx, fieldsFor("a", "Harbor"))
	require.NoError(t, err)
	_, err = s.Append(ctx, record.Fields{
		record.FieldIdentifier: "b",
		record.FieldLatitude:   "40.7128",
		record.FieldLongitude:  "-74.0060",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, s.NumRecords())

	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, 2, s.NumRecords())
	require.NoError(t, s.Close())

	// When: reopening read-only
	r, err := OpenSQLite(ctx, Options{Path: path, ReadOnly: true})
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	// Then: the fields round-trip through the compressed blob
	assert.Equal(t, 2, r.NumRecords())
	f, err := r.GetFields(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "40.7128", f[record.FieldLatitude])
	assert.Equal(t, "-74.0060", f[record.FieldLongitude])

	_, err = r.Append(ctx, fieldsFor("c", "x"))
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestSQLiteStore_CloseDiscardsUncommitted(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "records.db")

	s, err := OpenSQLite(ctx, Options{Path: path})
	require.NoError(t, err)
	_, err = s.Append(ctx, fieldsFor("a", "lost"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	r, err := OpenSQLite(ctx, Options{Path: path, ReadOnly: true})
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	assert.Equal(t, 0, r.NumRecords())
}

func TestSQLiteStore_FlushEvery(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t, Options{FlushEvery: 2})

	for i, id := range []string{"a", "b", "c"} {
		pos, err := s.Append(ctx, fieldsFor(id, id))
		require.NoError(t, err)
		assert.Equal(t, i, pos)
	}

	// Two records were flushed automatically, the third is staged
	assert.Equal(t, 2, s.NumRecords())
	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, 3, s.NumRecords())
}

func TestSQLiteStore_AppendModeContinuesPositions(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "records.db")

	s, err := OpenSQLite(ctx, Options{Path: path})
	require.NoError(t, err)
	_, err = s.Append(ctx, fieldsFor("a", "one"))
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx))
	require.NoError(t, s.Close())

	// When: reopening in append mode
	s, err = OpenSQLite(ctx, Options{Path: path, Mode: OpenModeAppend})
	require.NoError(t, err)
	pos, err := s.Append(ctx, fieldsFor("b", "two"))
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	require.NoError(t, s.Commit(ctx))
	require.NoError(t, s.Close())

	// When: reopening in create mode
	s, err = OpenSQLite(ctx, Options{Path: path, Mode: OpenModeCreate})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	assert.Equal(t, 0, s.NumRecords())
}

func TestSQLiteStore_DeleteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "records.db")

	s, err := OpenSQLite(ctx, Options{Path: path})
	require.NoError(t, err)
	for _, id := range []string{"a", "b"} {
		_, err := s.Append(ctx, fieldsFor(id, id))
		require.NoError(t, err)
	}
	require.NoError(t, s.Commit(ctx))

	// Read once to populate the cache, then delete
	_, err = s.GetFields(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, 0))
	assert.False(t, s.IsLive(0))
	assert.True(t, s.IsLive(1))

	_, err = s.Find(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, s.Close())

	r, err := OpenSQLite(ctx, Options{Path: path, ReadOnly: true})
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	assert.False(t, r.IsLive(0))
	pos, err := r.Find(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
}

func TestSQLiteStore_SecondWriterLocked(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t, Options{})

	_, err := OpenSQLite(ctx, Options{Path: s.Path()})
	assert.ErrorIs(t, err, ErrLocked)

	// Read-only handles do not need the lock
	r, err := OpenSQLite(ctx, Options{Path: s.Path(), ReadOnly: true})
	require.NoError(t, err)
	require.NoError(t, r.Close())
}

func TestSQLiteStore_ReadOnlyMissingFile(t *testing.T) {
	_, err := OpenSQLite(context.Background(), Options{
		Path:     filepath.Join(t.TempDir(), "absent.db"),
		ReadOnly: true,
	})
	assert.Error(t, err)
}

func TestOpen_EmptyPathIsMemory(t *testing.T) {
	s, err := Open(context.Background(), Options{})
	require.NoError(t, err)
	_, ok := s.(*MemoryStore)
	assert.True(t, ok)
}
