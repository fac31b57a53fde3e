package cmd

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// landmarks is a metadata-only manifest around Manhattan plus one far away.
var landmarks = []string{
	`{"id":"empire","title":"Empire State Building","tags":"skyscraper night","location":"New York","lat":"40.7486","lng":"-73.9864"}`,
	`{"id":"flatiron","title":"Flatiron Building","tags":"skyscraper","location":"New York","lat":"40.7411","lng":"-73.9897"}`,
	`{"id":"bridge","title":"Brooklyn Bridge","tags":"bridge night","location":"New York","lat":"40.7061","lng":"-73.9969"}`,
	`{"id":"harbour","title":"Harbour Bridge","tags":"bridge","location":"Sydney","lat":"-33.8523","lng":"151.2108"}`,
}

// newProject creates an isolated project directory and makes it the
// working directory. User config and logs stay inside it.
func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0755))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, ".xdg"))
	t.Setenv("HOME", root)
	t.Chdir(root)
	return root
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeManifest(t *testing.T, dir, name string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
	return path
}

// writeSquare writes a solid 8x8 PNG.
func writeSquare(t *testing.T, path string, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, c)
		}
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	require.NoError(t, png.Encode(f, img))
}

// indexLandmarks indexes the landmarks manifest into a fresh project.
func indexLandmarks(t *testing.T) string {
	t.Helper()
	root := newProject(t)
	writeManifest(t, root, "landmarks.jsonl", landmarks)
	_, _, err := execute(t, "index", "landmarks.jsonl", "--metadata-only", "--no-tui")
	require.NoError(t, err)
	return root
}
