// Package engine assembles the read side of imagedex: it opens a store,
// builds the text and descriptor indexes over it, and runs searches
// through the fused searcher configured for the project.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Aman-CERP/imagedex/internal/config"
	apperrors "github.com/Aman-CERP/imagedex/internal/errors"
	"github.com/Aman-CERP/imagedex/internal/feature"
	"github.com/Aman-CERP/imagedex/internal/geo"
	"github.com/Aman-CERP/imagedex/internal/record"
	"github.com/Aman-CERP/imagedex/internal/store"
	"github.com/Aman-CERP/imagedex/internal/telemetry"
	"github.com/Aman-CERP/imagedex/internal/ui"
	"github.com/Aman-CERP/imagedex/pkg/searcher"
)

// ErrIndexNotFound is returned by Open when the project has no store yet.
var ErrIndexNotFound = errors.New("index not found")

// Engine serves searches over one store. Safe for concurrent use.
type Engine struct {
	cfg       *config.Config
	store     store.Store
	storePath string
	text      *store.TextIndex
	desc      *store.DescriptorIndex
	fusion    *searcher.FusionSearcher
	reader    store.Reader
	metrics   *telemetry.QueryMetrics

	closeOnce sync.Once
	closeErr  error
}

// Option configures an Engine.
type Option func(*Engine)

// WithStorePath records the store file reported by Status.
func WithStorePath(path string) Option {
	return func(e *Engine) {
		e.storePath = path
	}
}

// WithMetrics records every search in m.
func WithMetrics(m *telemetry.QueryMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// Open opens the project's store read-only and builds an Engine over it.
func Open(ctx context.Context, cfg *config.Config, root string, opts ...Option) (*Engine, error) {
	path := cfg.StorePath(root)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.New(apperrors.ErrCodeFileNotFound, "no index at "+path, ErrIndexNotFound).
				WithSuggestion("run 'imagedex index' first")
		}
		return nil, fmt.Errorf("failed to stat store: %w", err)
	}

	st, err := store.Open(ctx, store.Options{
		Path:      path,
		ReadOnly:  true,
		CacheSize: cfg.Index.CacheSize,
	})
	if err != nil {
		return nil, apperrors.StoreError("failed to open store", err)
	}

	e, err := New(ctx, st, cfg, append([]Option{WithStorePath(path)}, opts...)...)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return e, nil
}

// New builds an Engine over an already open store. The Engine owns st
// and closes it on Close.
func New(ctx context.Context, st store.Store, cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	e := &Engine{cfg: cfg, store: st, reader: st}
	for _, opt := range opts {
		opt(e)
	}

	start := time.Now()
	if err := e.build(ctx); err != nil {
		e.closeIndexes()
		return nil, err
	}

	slog.Info("engine_ready",
		slog.Int("records", st.NumRecords()),
		slog.Int("descriptors", e.desc.Len()),
		slog.Int("searchers", len(e.fusion.Searchers())),
		slog.Duration("elapsed", time.Since(start)))
	return e, nil
}

func (e *Engine) build(ctx context.Context) error {
	sc := e.cfg.Search
	w := sc.Weights

	text, err := store.BuildTextIndex(ctx, e.store, "")
	if err != nil {
		return apperrors.InternalError("failed to build text index", err)
	}
	e.text = text

	desc, err := store.BuildDescriptorIndex(ctx, e.store, sc.Descriptor, feature.DecodeVector,
		store.WithGraphM(sc.HNSW.M), store.WithEfSearch(sc.HNSW.EfSearch))
	if err != nil {
		return apperrors.InternalError("failed to build descriptor index", err)
	}
	e.desc = desc

	var searchers []searcher.Searcher
	if w.Geo > 0 {
		s, err := searcher.NewGeoSearcher(
			searcher.WithGeoReader(e.store),
			searcher.WithGeoThreshold(sc.GeoThresholdKM, sc.GeoBoxDegrees),
			searcher.WithGeoWeight(w.Geo))
		if err != nil {
			return err
		}
		searchers = append(searchers, s)
	}
	if w.Text > 0 {
		s, err := searcher.NewTextSearcher(
			searcher.WithTextIndex(text),
			searcher.WithTextReader(e.store),
			searcher.WithTextWeight(w.Text))
		if err != nil {
			return err
		}
		searchers = append(searchers, s)
	}
	if w.Descriptor > 0 {
		s, err := searcher.NewDescriptorSearcher(
			searcher.WithDescriptorIndex(desc),
			searcher.WithDescriptorReader(e.store),
			searcher.WithDescriptorWeight(w.Descriptor))
		if err != nil {
			return err
		}
		searchers = append(searchers, s)
	}

	fusion, err := searcher.NewFusionSearcher(searcher.WithSearchers(searchers...))
	if err != nil {
		return apperrors.ConfigError("no searcher enabled", err).
			WithSuggestion("give at least one of search.weights a positive value")
	}
	e.fusion = fusion
	return nil
}

// Search runs query through every enabled searcher and fuses the results.
// A non-positive limit uses search.max_hits.
func (e *Engine) Search(ctx context.Context, query searcher.Query, limit int) ([]searcher.Hit, error) {
	start := time.Now()
	hits, err := e.fusion.Search(ctx, query, e.limit(limit))
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeSearchFailed, "search failed", err)
	}
	e.record(describe(query), kindOf(query), len(hits), start)
	return hits, nil
}

// SearchLike searches with the stored record identified by identifier as
// the query. The record itself is never returned.
func (e *Engine) SearchLike(ctx context.Context, identifier string, limit int) ([]searcher.Hit, error) {
	fields, err := e.Lookup(ctx, identifier)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	hits, err := e.fusion.Search(ctx, searcher.QueryFromFields(fields), e.limit(limit))
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeSearchFailed, "search failed", err)
	}
	e.record(identifier, telemetry.QueryKindRecord, len(hits), start)
	return hits, nil
}

// SearchNearby returns records within radiusKM of (lat, lng), closest
// first. A non-positive radius uses search.geo_threshold_km.
func (e *Engine) SearchNearby(ctx context.Context, lat, lng, radiusKM float64, limit int) ([]searcher.Hit, error) {
	center := geo.Coordinate{Lat: lat, Lng: lng}
	if !center.Valid() {
		return nil, apperrors.New(apperrors.ErrCodeInvalidCoordinate,
			fmt.Sprintf("invalid coordinate %g,%g", lat, lng), geo.ErrNoCoordinate)
	}
	if radiusKM <= 0 {
		radiusKM = e.cfg.Search.GeoThresholdKM
	}

	s, err := searcher.NewGeoSearcher(
		searcher.WithGeoReader(e.reader),
		searcher.WithGeoThreshold(radiusKM, e.cfg.Search.GeoBoxDegrees))
	if err != nil {
		return nil, err
	}

	start := time.Now()
	latStr, lngStr := center.Format()
	hits, err := s.Search(ctx, searcher.Query{Lat: latStr, Lng: lngStr}, e.limit(limit))
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeSearchFailed, "geo search failed", err)
	}
	e.record(latStr+","+lngStr, telemetry.QueryKindGeo, len(hits), start)
	return hits, nil
}

// Lookup returns the fields of the newest live record with identifier.
func (e *Engine) Lookup(ctx context.Context, identifier string) (record.Fields, error) {
	pos, err := e.store.Find(ctx, identifier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.New(apperrors.ErrCodeRecordNotFound,
				fmt.Sprintf("no record with identifier %q", identifier), err)
		}
		return nil, apperrors.StoreError("lookup failed", err)
	}
	fields, err := e.store.GetFields(ctx, pos)
	if err != nil {
		return nil, apperrors.StoreError("lookup failed", err)
	}
	return fields, nil
}

// Status summarizes the store.
func (e *Engine) Status(ctx context.Context) (ui.StatusInfo, error) {
	info, err := Summarize(ctx, e.store)
	if err != nil {
		return ui.StatusInfo{}, err
	}
	info.Descriptors = e.desc.Len()

	if e.storePath != "" {
		info.StorePath = e.storePath
		if st, err := os.Stat(e.storePath); err == nil {
			info.StoreSize = st.Size()
			info.LastModified = st.ModTime()
		}
		if active, err := store.WriterActive(e.storePath); err == nil && active {
			info.Writer = ui.WriterIndexing
		}
	}
	return info, nil
}

// Metrics returns the search metrics collector, or nil.
func (e *Engine) Metrics() *telemetry.QueryMetrics {
	return e.metrics
}

// Searchers returns the names of the enabled searchers.
func (e *Engine) Searchers() []string {
	names := make([]string, 0, len(e.fusion.Searchers()))
	for _, s := range e.fusion.Searchers() {
		names = append(names, s.Name())
	}
	return names
}

// Close releases the indexes and the store.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.closeIndexes()
		e.closeErr = e.store.Close()
	})
	return e.closeErr
}

func (e *Engine) closeIndexes() {
	if e.text != nil {
		if err := e.text.Close(); err != nil {
			slog.Warn("text_index_close_failed", slog.String("error", err.Error()))
		}
	}
}

func (e *Engine) limit(n int) int {
	if n <= 0 {
		return e.cfg.Search.MaxHits
	}
	return n
}

func (e *Engine) record(query string, kind telemetry.QueryKind, hits int, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.Record(telemetry.QueryEvent{
		Query:     query,
		Kind:      kind,
		HitCount:  hits,
		Latency:   time.Since(start),
		Timestamp: start,
	})
}

// Summarize counts the records of r. Writer is always reported idle.
func Summarize(ctx context.Context, r store.Reader) (ui.StatusInfo, error) {
	info := ui.StatusInfo{Records: r.NumRecords(), Writer: ui.WriterIdle}
	for pos := 0; pos < info.Records; pos++ {
		if !r.IsLive(pos) {
			info.Deleted++
			continue
		}
		info.Live++

		fields, err := r.GetFields(ctx, pos)
		if err != nil {
			return ui.StatusInfo{}, apperrors.StoreError(fmt.Sprintf("failed to read record %d", pos), err)
		}
		if _, err := geo.Parse(fields[record.FieldLatitude], fields[record.FieldLongitude]); err == nil {
			info.Geotagged++
		}
	}
	return info, nil
}

func kindOf(q searcher.Query) telemetry.QueryKind {
	hasText := strings.TrimSpace(q.Text) != ""
	hasGeo := q.Lat != "" || q.Lng != ""
	switch {
	case len(q.Fields) > 0:
		return telemetry.QueryKindRecord
	case hasText && !hasGeo && len(q.Descriptor) == 0:
		return telemetry.QueryKindText
	case hasGeo && !hasText && len(q.Descriptor) == 0:
		return telemetry.QueryKindGeo
	default:
		return telemetry.QueryKindMixed
	}
}

func describe(q searcher.Query) string {
	parts := make([]string, 0, 2)
	if t := strings.TrimSpace(q.Text); t != "" {
		parts = append(parts, t)
	}
	if q.Lat != "" || q.Lng != "" {
		parts = append(parts, "@"+q.Lat+","+q.Lng)
	}
	return strings.Join(parts, " ")
}
