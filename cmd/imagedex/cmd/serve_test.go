package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/imagedex/internal/engine"
	apperrors "github.com/Aman-CERP/imagedex/internal/errors"
)

func TestServeCmd_NoIndex(t *testing.T) {
	// Given: a project that was never indexed
	newProject(t)

	// When: starting the server
	stdout, _, err := execute(t, "serve")

	// Then: it fails before touching stdout
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeFileNotFound, apperrors.GetCode(err))
	assert.Empty(t, stdout)
}

func TestServeCmd_UnknownTransport(t *testing.T) {
	// Given: an indexed project
	indexLandmarks(t)

	// When: asking for a transport the server does not speak
	stdout, _, err := execute(t, "serve", "--transport", "carrier-pigeon")

	// Then: it fails and stdout stays clean for JSON-RPC
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transport")
	assert.Empty(t, stdout)
}

func TestWatchStore_ReloadsAfterIndexRun(t *testing.T) {
	// Given: a running engine over the indexed landmarks
	root := indexLandmarks(t)
	_, cfg, err := loadProject()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	eng, err := engine.NewReloader(ctx, func(ctx context.Context) (*engine.Engine, error) {
		return engine.Open(ctx, cfg, root)
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	require.NoError(t, watchStore(ctx, cfg.StorePath(root), eng))

	info, err := eng.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, info.Records)

	// When: another index run appends the same manifest
	_, _, err = execute(t, "index", "landmarks.jsonl", "--metadata-only", "--no-tui")
	require.NoError(t, err)

	// Then: the engine picks up the new records without reopening by hand
	require.Eventually(t, func() bool {
		info, err := eng.Status(ctx)
		return err == nil && info.Records == 8
	}, 10*time.Second, 50*time.Millisecond)
}
