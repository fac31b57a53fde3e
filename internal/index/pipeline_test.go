package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Aman-CERP/imagedex/internal/errors"
	"github.com/Aman-CERP/imagedex/internal/record"
	"github.com/Aman-CERP/imagedex/internal/store"
	"github.com/Aman-CERP/imagedex/internal/ui"
)

// fakeLoader attaches the record ID as payload and fails for listed IDs.
type fakeLoader struct {
	fail map[string]bool
}

func (l *fakeLoader) Load(ctx context.Context, r *record.Record) error {
	if l.fail[r.ID] {
		return fmt.Errorf("open %s: %w", r.FileRef, os.ErrNotExist)
	}
	r.Payload = []byte(r.ID)
	return nil
}

// fakeBuilder emits a "payload" field and fails or panics on request.
type fakeBuilder struct {
	fail  map[string]bool
	panic map[string]bool
	delay time.Duration
	calls atomic.Int64
}

func (b *fakeBuilder) Name() string { return "fake" }

func (b *fakeBuilder) Extract(ctx context.Context, raw []byte) (record.Fields, error) {
	b.calls.Add(1)
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	id := string(raw)
	if b.panic[id] {
		panic("corrupt descriptor")
	}
	if b.fail[id] {
		return nil, errors.New("cannot decode")
	}
	return record.Fields{"payload": id, record.FieldTitle: "overwritten"}, nil
}

// countingWriter wraps a MemoryStore and counts lifecycle calls.
type countingWriter struct {
	*store.MemoryStore
	failAfter int
	appends   atomic.Int64
	commits   atomic.Int64
	closes    atomic.Int64
}

func (w *countingWriter) Append(ctx context.Context, f record.Fields) (int, error) {
	if n := w.appends.Add(1); w.failAfter > 0 && int(n) > w.failAfter {
		return 0, errors.New("disk full")
	}
	return w.MemoryStore.Append(ctx, f)
}

func (w *countingWriter) Commit(ctx context.Context) error {
	w.commits.Add(1)
	return w.MemoryStore.Commit(ctx)
}

func (w *countingWriter) Close() error {
	w.closes.Add(1)
	return w.MemoryStore.Close()
}

// recordingRenderer captures monitor reports.
type recordingRenderer struct {
	mu       sync.Mutex
	progress []ui.ProgressEvent
	errors   []ui.ErrorEvent
}

func (r *recordingRenderer) Start(context.Context) error { return nil }
func (r *recordingRenderer) Complete(ui.CompletionStats) {}
func (r *recordingRenderer) Stop() error { return nil }

func (r *recordingRenderer) UpdateProgress(e ui.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, e)
}

func (r *recordingRenderer) AddError(e ui.ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, e)
}

func (r *recordingRenderer) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.progress), len(r.errors)
}

func makeRecords(n int) []*record.Record {
	out := make([]*record.Record, n)
	for i := range out {
		out[i] = &record.Record{
			ID:      fmt.Sprintf("img-%03d", i),
			FileRef: fmt.Sprintf("img-%03d.jpg", i),
			Title:   fmt.Sprintf("Image %d", i),
			Lat:     "40.7128",
			Lng:     "-74.0060",
		}
	}
	return out
}

func testConfig(workers int) Config {
	cfg := DefaultConfig()
	cfg.Concurrency = workers
	cfg.QueueHighWater = 16
	cfg.QueueCapacity = 32
	cfg.HighWaterWait = 50 * time.Millisecond
	cfg.Backpressure = DelaySchedule{}
	cfg.MonitorInterval = 0
	return cfg
}

func staticWriter(w store.Writer) func(context.Context) (store.Writer, error) {
	return func(context.Context) (store.Writer, error) { return w, nil }
}

func runPipeline(t *testing.T, cfg Config, deps Dependencies) (*Pipeline, Result, error) {
	t.Helper()
	p, err := New(cfg, deps)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := p.Wait()
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		return p, o.res, o.err
	case <-time.After(10 * time.Second):
		t.Fatal("pipeline did not finish")
		return nil, Result{}, nil
	}
}

func TestPipeline_AccountsForEveryItem(t *testing.T) {
	for _, workers := range []int{1, 4, 16} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			// Given: 200 records, 10 of which cannot be loaded
			const m = 200
			recs := makeRecords(m)
			failLoad := map[string]bool{}
			for i := 0; i < 10; i++ {
				failLoad[recs[i*20].ID] = true
			}
			w := &countingWriter{MemoryStore: store.NewMemoryStore()}

			// When: the pipeline runs to completion
			p, res, err := runPipeline(t, testConfig(workers), Dependencies{
				Source:     record.NewSliceSource(recs),
				Loader:     &fakeLoader{fail: failLoad},
				Builder:    &fakeBuilder{},
				OpenWriter: staticWriter(w),
			})

			// Then: processed + skipped equals the input size
			require.NoError(t, err)
			assert.Equal(t, m, res.Processed+res.Skipped)
			assert.Equal(t, 10, res.Skipped)
			assert.Equal(t, 190, res.Indexed)
			assert.Equal(t, 0, res.Failed)
			assert.False(t, res.Interrupted)

			// And: the queue is empty and the store committed exactly once
			assert.Equal(t, 0, p.queue.Len())
			assert.Equal(t, StateClosed, p.State())
			assert.False(t, p.IsRunning())
			assert.Equal(t, int64(1), w.commits.Load())
			assert.Equal(t, int64(1), w.closes.Load())
			assert.Equal(t, 190, w.NumRecords())
		})
	}
}

func TestPipeline_ExtractionFailuresDoNotStopWorkers(t *testing.T) {
	recs := makeRecords(50)
	builder := &fakeBuilder{
		fail:  map[string]bool{recs[3].ID: true, recs[7].ID: true},
		panic: map[string]bool{recs[11].ID: true},
	}
	w := &countingWriter{MemoryStore: store.NewMemoryStore()}
	renderer := &recordingRenderer{}

	_, res, err := runPipeline(t, testConfig(2), Dependencies{
		Source:     record.NewSliceSource(recs),
		Loader:     &fakeLoader{},
		Builder:    builder,
		OpenWriter: staticWriter(w),
		Renderer:   renderer,
	})

	require.NoError(t, err)
	assert.Equal(t, 50, res.Processed)
	assert.Equal(t, 3, res.Failed)
	assert.Equal(t, 47, res.Indexed)
	assert.Equal(t, int64(50), builder.calls.Load())

	_, errCount := renderer.counts()
	assert.Equal(t, 3, errCount)
}

func TestPipeline_MetadataWinsOverBuilderFields(t *testing.T) {
	w := &countingWriter{MemoryStore: store.NewMemoryStore()}

	_, _, err := runPipeline(t, testConfig(1), Dependencies{
		Source:     record.NewSliceSource(makeRecords(1)),
		Loader:     &fakeLoader{},
		Builder:    &fakeBuilder{},
		OpenWriter: staticWriter(w),
	})
	require.NoError(t, err)

	fields, err := w.GetFields(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "Image 0", fields[record.FieldTitle])
	assert.Equal(t, "img-000", fields["payload"])
	assert.Equal(t, "img-000", fields[record.FieldDBID])
	assert.Equal(t, "40.7128", fields[record.FieldLatitude])
}

func TestPipeline_MetadataOnly(t *testing.T) {
	cfg := testConfig(2)
	cfg.MetadataOnly = true
	w := &countingWriter{MemoryStore: store.NewMemoryStore()}
	builder := &fakeBuilder{}

	// No loader is needed in metadata-only mode
	_, res, err := runPipeline(t, cfg, Dependencies{
		Source:     record.NewSliceSource(makeRecords(20)),
		Builder:    builder,
		OpenWriter: staticWriter(w),
	})

	require.NoError(t, err)
	assert.Equal(t, 20, res.Indexed)
	assert.Equal(t, int64(0), builder.calls.Load())

	fields, err := w.GetFields(context.Background(), 0)
	require.NoError(t, err)
	assert.NotContains(t, fields, "payload")
}

func TestPipeline_StoreFailureIsFatal(t *testing.T) {
	// Given: a store that fails after 5 appends
	w := &countingWriter{MemoryStore: store.NewMemoryStore(), failAfter: 5}

	p, _, err := runPipeline(t, testConfig(4), Dependencies{
		Source:     record.NewSliceSource(makeRecords(500)),
		Loader:     &fakeLoader{},
		OpenWriter: staticWriter(w),
	})

	// Then: the run fails, nothing is committed, and the writer is closed once
	require.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
	assert.Equal(t, apperrors.ErrCodeStoreFailed, apperrors.GetCode(err))
	assert.Equal(t, StateFailed, p.State())
	assert.Equal(t, int64(0), w.commits.Load())
	assert.Equal(t, int64(1), w.closes.Load())
	assert.Equal(t, 0, w.NumRecords())
}

func TestPipeline_OpenFailureFailsFast(t *testing.T) {
	p, err := New(testConfig(1), Dependencies{
		Source: record.NewSliceSource(makeRecords(3)),
		Loader: &fakeLoader{},
		OpenWriter: func(context.Context) (store.Writer, error) {
			return nil, store.ErrLocked
		},
	})
	require.NoError(t, err)

	err = p.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrLocked)
	assert.Equal(t, StateFailed, p.State())

	_, waitErr := p.Wait()
	assert.ErrorIs(t, waitErr, store.ErrLocked)
}

func TestPipeline_Lifecycle(t *testing.T) {
	p, err := New(testConfig(1), Dependencies{
		Source:     record.NewSliceSource(makeRecords(3)),
		Loader:     &fakeLoader{},
		OpenWriter: staticWriter(store.NewMemoryStore()),
	})
	require.NoError(t, err)

	assert.Equal(t, StateIdle, p.State())
	_, err = p.Wait()
	assert.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, p.Start(context.Background()))
	assert.ErrorIs(t, p.Start(context.Background()), ErrAlreadyStarted)

	_, err = p.Wait()
	require.NoError(t, err)
	assert.Equal(t, StateClosed, p.State())
	assert.ErrorIs(t, p.Start(context.Background()), ErrAlreadyStarted)
}

func TestNew_Validation(t *testing.T) {
	deps := Dependencies{
		Source:     record.NewSliceSource(nil),
		Loader:     &fakeLoader{},
		OpenWriter: staticWriter(store.NewMemoryStore()),
	}

	bad := testConfig(0)
	_, err := New(bad, deps)
	assert.Error(t, err)

	bad = testConfig(1)
	bad.QueueCapacity = bad.QueueHighWater - 1
	_, err = New(bad, deps)
	assert.Error(t, err)

	_, err = New(testConfig(1), Dependencies{Source: deps.Source, OpenWriter: deps.OpenWriter})
	assert.Error(t, err, "loader is required unless metadata-only")

	_, err = New(testConfig(1), Dependencies{Loader: deps.Loader, OpenWriter: deps.OpenWriter})
	assert.Error(t, err)
}

func TestPipeline_BackpressureBoundsQueue(t *testing.T) {
	// Given: slow workers and a small queue
	cfg := testConfig(2)
	cfg.QueueHighWater = 10
	cfg.QueueCapacity = 20
	cfg.HighWaterWait = 5 * time.Millisecond
	cfg.Backpressure = DelaySchedule{Bands: []Band{{Depth: 10, Delay: 100 * time.Microsecond}}}

	p, res, err := runPipeline(t, cfg, Dependencies{
		Source:     record.NewSliceSource(makeRecords(200)),
		Loader:     &fakeLoader{},
		Builder:    &fakeBuilder{delay: time.Millisecond},
		OpenWriter: staticWriter(store.NewMemoryStore()),
	})

	// Then: depth never passed the ceiling
	require.NoError(t, err)
	assert.Equal(t, 200, res.Processed)
	assert.LessOrEqual(t, res.MaxDepth, 20)
	assert.Greater(t, res.MaxDepth, 0)
	assert.Equal(t, 0, p.queue.Len())
}

func TestPipeline_MonitorReports(t *testing.T) {
	cfg := testConfig(1)
	cfg.MonitorInterval = 5 * time.Millisecond
	renderer := &recordingRenderer{}

	_, _, err := runPipeline(t, cfg, Dependencies{
		Source:     record.NewSliceSource(makeRecords(40)),
		Loader:     &fakeLoader{},
		Builder:    &fakeBuilder{delay: 2 * time.Millisecond},
		OpenWriter: staticWriter(store.NewMemoryStore()),
		Renderer:   renderer,
	})
	require.NoError(t, err)

	reports, _ := renderer.counts()
	assert.Greater(t, reports, 0)
}

// blockingSource yields its records, then blocks until ctx ends.
type blockingSource struct {
	*record.SliceSource
	closed atomic.Bool
}

func (s *blockingSource) Next(ctx context.Context) (*record.Record, error) {
	r, err := s.SliceSource.Next(ctx)
	if err == nil {
		return r, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *blockingSource) Close() error {
	s.closed.Store(true)
	return nil
}

func TestPipeline_CancelDrainsAndCommits(t *testing.T) {
	src := &blockingSource{SliceSource: record.NewSliceSource(makeRecords(10))}
	w := &countingWriter{MemoryStore: store.NewMemoryStore()}

	p, err := New(testConfig(2), Dependencies{
		Source:     src,
		Loader:     &fakeLoader{},
		OpenWriter: staticWriter(w),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(ctx))

	require.Eventually(t, func() bool { return p.Progress().Processed == 10 }, 5*time.Second, 5*time.Millisecond)
	assert.True(t, p.IsRunning())

	// When: the caller cancels while the source is blocked
	cancel()
	res, err := p.Wait()

	// Then: the run closes cleanly with everything committed
	require.NoError(t, err)
	assert.True(t, res.Interrupted)
	assert.Equal(t, 10, res.Indexed)
	assert.Equal(t, StateClosed, p.State())
	assert.Equal(t, int64(1), w.commits.Load())
	assert.True(t, src.closed.Load())
}

func TestPipeline_SkipsMalformedManifestLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "images.jsonl")
	content := `{"id":"a","file":"a.jpg","title":"A"}
not json
{"id":"b","file":"b.jpg","title":"B"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	src, err := record.OpenJSONL(path)
	require.NoError(t, err)

	cfg := testConfig(1)
	cfg.MetadataOnly = true
	_, res, err := runPipeline(t, cfg, Dependencies{
		Source:     src,
		OpenWriter: staticWriter(store.NewMemoryStore()),
	})

	require.NoError(t, err)
	assert.Equal(t, 2, res.Indexed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 3, res.Processed+res.Skipped)
}

func TestPipeline_LoadRateLimit(t *testing.T) {
	cfg := testConfig(2)
	cfg.LoadRate = 200

	start := time.Now()
	_, res, err := runPipeline(t, cfg, Dependencies{
		Source:     record.NewSliceSource(makeRecords(240)),
		Loader:     &fakeLoader{},
		OpenWriter: staticWriter(store.NewMemoryStore()),
	})
	require.NoError(t, err)
	assert.Equal(t, 240, res.Indexed)

	// Burst of 200 then 40 more at 200/s takes at least ~200ms
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}
