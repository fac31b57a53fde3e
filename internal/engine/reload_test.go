package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/imagedex/internal/config"
	"github.com/Aman-CERP/imagedex/internal/record"
	"github.com/Aman-CERP/imagedex/internal/store"
	"github.com/Aman-CERP/imagedex/pkg/searcher"
)

// growingOpener opens an Engine over a store with one more seed each call.
func growingOpener(t *testing.T) (OpenFunc, *[]*Engine) {
	t.Helper()
	var opened []*Engine
	n := 2
	return func(ctx context.Context) (*Engine, error) {
		st := store.NewMemoryStore()
		for _, s := range seeds[:n] {
			rec := s.rec
			_, err := st.Append(ctx, rec.MetadataFields())
			require.NoError(t, err)
		}
		require.NoError(t, st.Commit(ctx))
		n++

		e, err := New(ctx, st, config.NewConfig())
		if err == nil {
			opened = append(opened, e)
		}
		return e, err
	}, &opened
}

func TestReloader_ServesNewRecordsAfterReload(t *testing.T) {
	ctx := context.Background()
	open, _ := growingOpener(t)

	// Given: a reloader over two records
	r, err := NewReloader(ctx, open)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	info, err := r.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, info.Records)
	_, err = r.Lookup(ctx, "bridge")
	require.Error(t, err)

	// When: the store gains a record and the reloader reloads
	require.NoError(t, r.Reload(ctx))

	// Then: the new record is searchable
	info, err = r.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, info.Records)

	fields, err := r.Lookup(ctx, "bridge")
	require.NoError(t, err)
	assert.Equal(t, "Brooklyn Bridge", fields[record.FieldTitle])

	hits, err := r.Search(ctx, searcher.Query{Text: "bridge"}, 5)
	require.NoError(t, err)
	assert.Contains(t, identities(hits), "bridge")
}

func TestReloader_FailedReloadKeepsCurrent(t *testing.T) {
	ctx := context.Background()
	open, _ := growingOpener(t)
	fail := false
	boom := errors.New("store busy")

	r, err := NewReloader(ctx, func(ctx context.Context) (*Engine, error) {
		if fail {
			return nil, boom
		}
		return open(ctx)
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	fail = true
	assert.ErrorIs(t, r.Reload(ctx), boom)

	info, err := r.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, info.Records)
	assert.NotEmpty(t, r.Searchers())
}

func TestReloader_ReloadAfterCloseClosesNewEngine(t *testing.T) {
	ctx := context.Background()
	open, opened := growingOpener(t)

	r, err := NewReloader(ctx, open)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	require.NoError(t, r.Reload(ctx))
	require.Len(t, *opened, 2)

	// Both engines are closed; closing again returns the first result
	assert.NoError(t, (*opened)[1].Close())
}

func TestNewReloader_OpenError(t *testing.T) {
	_, err := NewReloader(context.Background(), func(context.Context) (*Engine, error) {
		return nil, ErrIndexNotFound
	})
	assert.ErrorIs(t, err, ErrIndexNotFound)
}
