package cmd

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Aman-CERP/imagedex/internal/errors"
	"github.com/Aman-CERP/imagedex/internal/ui"
)

func TestStatusCmd_NoIndex(t *testing.T) {
	// Given: a directory with no index
	newProject(t)

	// When: running status
	_, _, err := execute(t, "status")

	// Then: it reports the missing index
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeFileNotFound, apperrors.GetCode(err))
}

func TestStatusCmd_JSON(t *testing.T) {
	// Given: an indexed project
	indexLandmarks(t)

	// When: requesting JSON status
	stdout, _, err := execute(t, "status", "--json")
	require.NoError(t, err)

	// Then: counts reflect the manifest
	var info ui.StatusInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, 4, info.Records)
	assert.Equal(t, 4, info.Live)
	assert.Equal(t, 0, info.Deleted)
	assert.Equal(t, 4, info.Geotagged)
	assert.Equal(t, 0, info.Descriptors)
	assert.Equal(t, ui.WriterIdle, info.Writer)
	assert.Positive(t, info.StoreSize)
	assert.Equal(t, "imagedex.db", filepath.Base(info.StorePath))
	assert.False(t, info.LastModified.IsZero())
}

func TestStatusCmd_Text(t *testing.T) {
	indexLandmarks(t)

	stdout, _, err := execute(t, "status")

	require.NoError(t, err)
	assert.Contains(t, stdout, "Store Status:")
	assert.Contains(t, stdout, "Records:      4")
	assert.Contains(t, stdout, "Geotagged:    4")
}
