package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/Aman-CERP/imagedex/internal/record"
)

// textBatchSize bounds the number of documents per bleve batch.
const textBatchSize = 1000

// TextHit is one keyword match.
type TextHit struct {
	Identity string
	Position int
	Score    float64
}

// textDocument is the indexed view of a record.
type textDocument struct {
	Title    string `json:"title"`
	Tags     string `json:"tags"`
	Location string `json:"location"`
}

// TextIndex is a bleve keyword index over record titles, tags and locations.
// Documents are keyed by record identity; the newest live position wins.
type TextIndex struct {
	index     bleve.Index
	path      string
	positions map[string]int
}

// BuildTextIndex indexes every live record of r.
// An empty path builds an in-memory index; otherwise any existing index at
// path is replaced.
func BuildTextIndex(ctx context.Context, r Reader, path string) (*TextIndex, error) {
	indexMapping := newTextMapping()

	var (
		idx bleve.Index
		err error
	)
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("failed to clear text index: %w", err)
		}
		idx, err = bleve.New(path, indexMapping)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create text index: %w", err)
	}

	t := &TextIndex{index: idx, path: path, positions: make(map[string]int)}
	if err := t.load(ctx, r); err != nil {
		_ = idx.Close()
		return nil, err
	}

	slog.Debug("text_index_built",
		slog.Int("documents", len(t.positions)),
		slog.String("path", path))

	return t, nil
}

func newTextMapping() *mapping.IndexMappingImpl {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping
}

func (t *TextIndex) load(ctx context.Context, r Reader) error {
	batch := t.index.NewBatch()
	for _, pos := range Positions(r) {
		if err := ctx.Err(); err != nil {
			return err
		}

		fields, err := r.GetFields(ctx, pos)
		if err != nil {
			return fmt.Errorf("failed to read record %d: %w", pos, err)
		}

		id := fields[record.FieldIdentifier]
		if id == "" {
			continue
		}
		doc := textDocument{
			Title:    fields[record.FieldTitle],
			Tags:     fields[record.FieldTags],
			Location: fields[record.FieldLocation],
		}
		if doc == (textDocument{}) {
			continue
		}

		if err := batch.Index(id, doc); err != nil {
			return fmt.Errorf("failed to index record %d: %w", pos, err)
		}
		t.positions[id] = pos

		if batch.Size() >= textBatchSize {
			if err := t.index.Batch(batch); err != nil {
				return fmt.Errorf("failed to execute batch: %w", err)
			}
			batch = t.index.NewBatch()
		}
	}

	if batch.Size() > 0 {
		if err := t.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to execute batch: %w", err)
		}
	}
	return nil
}

// Search returns up to limit matches for text, best first.
func (t *TextIndex) Search(ctx context.Context, text string, limit int) ([]TextHit, error) {
	if text == "" || limit <= 0 {
		return []TextHit{}, nil
	}

	req := bleve.NewSearchRequest(bleve.NewMatchQuery(text))
	req.Size = limit

	res, err := t.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("text search failed: %w", err)
	}

	hits := make([]TextHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		pos, ok := t.positions[h.ID]
		if !ok {
			continue
		}
		hits = append(hits, TextHit{Identity: h.ID, Position: pos, Score: h.Score})
	}
	return hits, nil
}

// Len returns the number of indexed documents.
func (t *TextIndex) Len() int {
	return len(t.positions)
}

// Close releases the bleve index.
func (t *TextIndex) Close() error {
	return t.index.Close()
}
