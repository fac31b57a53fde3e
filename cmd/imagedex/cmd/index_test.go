package cmd

import (
	"database/sql"
	"encoding/json"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Aman-CERP/imagedex/internal/errors"
	"github.com/Aman-CERP/imagedex/internal/ui"
)

func TestIndexCmd_MetadataOnlyManifest(t *testing.T) {
	// Given: a project with a landmarks manifest
	root := newProject(t)
	writeManifest(t, root, "landmarks.jsonl", landmarks)

	// When: indexing it without images
	stdout, _, err := execute(t, "index", "landmarks.jsonl", "--metadata-only", "--no-tui")

	// Then: every record is indexed into the project store
	require.NoError(t, err)
	assert.Contains(t, stdout, "4 indexed")
	assert.FileExists(t, filepath.Join(root, ".imagedex", "imagedex.db"))
}

func TestIndexCmd_ExtractsDescriptors(t *testing.T) {
	// Given: two solid-colour images referenced relative to ./images
	root := newProject(t)
	writeSquare(t, filepath.Join(root, "images", "red.png"), color.RGBA{R: 255, A: 255})
	writeSquare(t, filepath.Join(root, "images", "blue.png"), color.RGBA{B: 255, A: 255})
	writeManifest(t, root, "squares.jsonl", []string{
		`{"id":"red","file":"red.png","title":"Red square"}`,
		`{"id":"blue","file":"blue.png","title":"Blue square"}`,
	})

	// When: indexing with the image directory
	_, _, err := execute(t, "index", "squares.jsonl", "--images-dir", "images", "--no-tui", "--workers", "2")
	require.NoError(t, err)

	// Then: both records carry a descriptor
	stdout, _, err := execute(t, "status", "--json")
	require.NoError(t, err)
	var info ui.StatusInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, 2, info.Records)
	assert.Equal(t, 2, info.Descriptors)
	assert.Equal(t, 0, info.Geotagged)

	// And: the closest other image is found by similarity
	stdout, _, err = execute(t, "search", "--like", "red", "--format", "json")
	require.NoError(t, err)
	var out struct {
		Results []struct {
			Identifier string `json:"identifier"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	require.Len(t, out.Results, 1)
	assert.Equal(t, "blue", out.Results[0].Identifier)
}

func TestIndexCmd_MissingImageIsReportedNotFatal(t *testing.T) {
	// Given: a manifest whose only file does not exist
	root := newProject(t)
	writeManifest(t, root, "broken.jsonl", []string{`{"id":"ghost","file":"ghost.png","title":"Ghost"}`})

	// When: indexing with payload loading
	stdout, _, err := execute(t, "index", "broken.jsonl", "--no-tui")

	// Then: the run completes and nothing is indexed
	require.NoError(t, err)
	assert.Contains(t, stdout, "0 indexed")
}

func TestIndexCmd_AppendAndCreateModes(t *testing.T) {
	// Given: a project indexed once
	root := indexLandmarks(t)
	status := func() ui.StatusInfo {
		stdout, _, err := execute(t, "status", "--json")
		require.NoError(t, err)
		var info ui.StatusInfo
		require.NoError(t, json.Unmarshal([]byte(stdout), &info))
		return info
	}

	// When: indexing again in the default append mode
	_, _, err := execute(t, "index", filepath.Join(root, "landmarks.jsonl"), "--metadata-only", "--no-tui")
	require.NoError(t, err)

	// Then: records accumulate
	assert.Equal(t, 8, status().Records)

	// When: indexing in create mode
	_, _, err = execute(t, "index", "landmarks.jsonl", "--metadata-only", "--no-tui", "--mode", "create")
	require.NoError(t, err)

	// Then: the store starts over
	assert.Equal(t, 4, status().Records)
}

func TestIndexCmd_Errors(t *testing.T) {
	root := newProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "photos.csv"), []byte("id,title\n"), 0644))
	writeManifest(t, root, "landmarks.jsonl", landmarks)

	tests := []struct {
		name string
		args []string
		code string
	}{
		{"missing source", []string{"index", "nope.jsonl"}, apperrors.ErrCodeFileNotFound},
		{"unsupported extension", []string{"index", "photos.csv"}, apperrors.ErrCodeInvalidInput},
		{"invalid mode", []string{"index", "landmarks.jsonl", "--mode", "replace"}, apperrors.ErrCodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.GetCode(err))
		})
	}

	_, _, err := execute(t, "index")
	assert.Error(t, err, "source argument is required")
}

func TestIndexCmd_SQLiteSource(t *testing.T) {
	// Given: an image database with a custom table name
	root := newProject(t)
	dbPath := filepath.Join(root, "catalog.db")
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE photos (id TEXT, file_name TEXT, title TEXT, tags TEXT, location TEXT, lat TEXT, lng TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO photos VALUES
		('empire', NULL, 'Empire State Building', 'skyscraper', 'New York', '40.7486', '-73.9864'),
		('opera', NULL, 'Opera House', 'harbour', 'Sydney', '-33.8568', '151.2153')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// When: indexing the table
	stdout, _, err := execute(t, "index", "catalog.db", "--table", "photos", "--metadata-only", "--no-tui")

	// Then: both rows are searchable
	require.NoError(t, err)
	assert.Contains(t, stdout, "2 indexed")

	stdout, _, err = execute(t, "search", "opera")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Opera House")
}

func TestOpenSource_NotADatabase(t *testing.T) {
	// Given: a path with a SQLite extension that is not a database
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.db")
	require.NoError(t, os.WriteFile(path, []byte("not a database"), 0644))

	// When: opening it as a source
	src, err := openSource(path, "images")

	// Then: it fails rather than yielding records
	if err == nil {
		_, err = src.Next(t.Context())
		_ = src.Close()
	}
	assert.Error(t, err)
}
