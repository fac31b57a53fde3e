// Package index runs the indexing pipeline: one producer loading records,
// N workers extracting features and appending to the store, and a monitor
// reporting progress.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/Aman-CERP/imagedex/internal/errors"
	"github.com/Aman-CERP/imagedex/internal/feature"
	"github.com/Aman-CERP/imagedex/internal/queue"
	"github.com/Aman-CERP/imagedex/internal/record"
	"github.com/Aman-CERP/imagedex/internal/store"
	"github.com/Aman-CERP/imagedex/internal/ui"
)

var (
	// ErrAlreadyStarted is returned by Start on a pipeline that has been started.
	ErrAlreadyStarted = errors.New("pipeline already started")

	// ErrNotStarted is returned by Wait on a pipeline that was never started.
	ErrNotStarted = errors.New("pipeline not started")
)

// State is the pipeline lifecycle state.
type State int32

const (
	// StateIdle is the state before Start.
	StateIdle State = iota
	// StateRunning means the producer is still reading input.
	StateRunning
	// StateDraining means input has ended and workers are emptying the queue.
	StateDraining
	// StateClosed means the store was committed and closed.
	StateClosed
	// StateFailed means a store error ended the run.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PayloadLoader attaches raw bytes to a record.
type PayloadLoader interface {
	Load(ctx context.Context, r *record.Record) error
}

// Dependencies contains the injected collaborators of a Pipeline.
type Dependencies struct {
	// Source yields the records to index (required). The pipeline closes it.
	Source record.Source

	// Loader reads payloads (required unless Config.MetadataOnly).
	Loader PayloadLoader

	// Builder extracts feature fields (optional).
	Builder feature.Builder

	// OpenWriter opens the store writer when the pipeline starts (required).
	OpenWriter func(ctx context.Context) (store.Writer, error)

	// Renderer receives progress reports and per-item errors (optional).
	Renderer ui.Renderer
}

// Progress is a snapshot of a running pipeline.
type Progress struct {
	State      State
	Processed  int
	Skipped    int
	Failed     int
	Indexed    int
	QueueDepth int
	MaxDepth   int
	Elapsed    time.Duration
	PerItem    time.Duration
}

// Result is the outcome of a finished run.
//
// Processed counts every item a worker took from the queue, including
// those whose extraction failed (Failed). Skipped counts items that never
// reached the queue.
type Result struct {
	Processed   int
	Skipped     int
	Failed      int
	Indexed     int
	MaxDepth    int
	Elapsed     time.Duration
	PerItem     time.Duration
	Interrupted bool

	// SourceErr is set when the input source failed before reaching its end.
	SourceErr error
}

// Pipeline indexes records from a Source into a store.
type Pipeline struct {
	cfg      Config
	deps     Dependencies
	renderer ui.Renderer
	queue    *queue.Stack[*record.Record]
	limiter  *rate.Limiter

	startMu   sync.Mutex
	state     atomic.Int32
	startedAt atomic.Int64
	writer    store.Writer
	abort     context.CancelFunc

	processed atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
	indexed   atomic.Int64

	interrupted atomic.Bool
	sourceErr   error

	fatalOnce sync.Once
	fatalErr  error

	done   chan struct{}
	result Result
	err    error
}

// New creates a pipeline. It validates cfg and deps but opens nothing.
func New(cfg Config, deps Dependencies) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.ConfigError("invalid index configuration", err)
	}
	if deps.Source == nil {
		return nil, fmt.Errorf("record source is required")
	}
	if deps.OpenWriter == nil {
		return nil, fmt.Errorf("store writer is required")
	}
	if deps.Loader == nil && !cfg.MetadataOnly {
		return nil, fmt.Errorf("payload loader is required")
	}

	q, err := queue.New[*record.Record](cfg.QueueCapacity, cfg.QueueHighWater)
	if err != nil {
		return nil, err
	}

	renderer := deps.Renderer
	if renderer == nil {
		renderer = ui.Discard
	}

	p := &Pipeline{
		cfg:      cfg,
		deps:     deps,
		renderer: renderer,
		queue:    q,
		done:     make(chan struct{}),
	}
	if cfg.LoadRate > 0 {
		burst := int(cfg.LoadRate)
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(cfg.LoadRate), burst)
	}
	return p, nil
}

// Start opens the store writer and launches the producer, workers and
// monitor. It fails fast if the writer cannot be opened.
//
// Cancelling ctx stops production; queued items are still processed and
// committed.
func (p *Pipeline) Start(ctx context.Context) error {
	p.startMu.Lock()
	defer p.startMu.Unlock()

	if p.State() != StateIdle {
		return ErrAlreadyStarted
	}

	w, err := p.deps.OpenWriter(ctx)
	if err != nil {
		p.err = apperrors.StoreError("failed to open store", err)
		p.state.Store(int32(StateFailed))
		close(p.done)
		return p.err
	}
	p.writer = w

	produceCtx, cancelProduce := context.WithCancel(ctx)
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	p.abort = func() {
		cancelProduce()
		cancelWork()
	}

	p.startedAt.Store(time.Now().UnixNano())
	p.state.Store(int32(StateRunning))

	slog.Info("index_started",
		slog.Int("workers", p.cfg.Concurrency),
		slog.Int("queue_high_water", p.cfg.QueueHighWater),
		slog.Int("queue_capacity", p.cfg.QueueCapacity),
		slog.Bool("metadata_only", p.cfg.MetadataOnly))

	var workers sync.WaitGroup
	for i := 0; i < p.cfg.Concurrency; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			p.work(workCtx)
		}()
	}

	producerDone := make(chan struct{})
	go func() {
		defer close(producerDone)
		p.produce(produceCtx)
	}()

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		p.monitor(monitorCtx)
	}()

	go func() {
		<-producerDone
		workers.Wait()
		stopMonitor()
		<-monitorDone
		p.abort()
		p.finish()
	}()

	return nil
}

// finish commits and closes the writer once every worker has exited.
func (p *Pipeline) finish() {
	defer close(p.done)

	p.err = p.closeStore()
	if p.err != nil {
		p.state.Store(int32(StateFailed))
	} else {
		p.state.Store(int32(StateClosed))
	}

	pr := p.Progress()
	p.result = Result{
		Processed:   pr.Processed,
		Skipped:     pr.Skipped,
		Failed:      pr.Failed,
		Indexed:     pr.Indexed,
		MaxDepth:    pr.MaxDepth,
		Elapsed:     pr.Elapsed,
		PerItem:     pr.PerItem,
		Interrupted: p.interrupted.Load(),
		SourceErr:   p.sourceErr,
	}

	if p.err != nil {
		slog.Error("index_failed",
			slog.String("error", p.err.Error()),
			slog.Int("processed", pr.Processed),
			slog.Int("indexed", pr.Indexed))
		return
	}

	slog.Info("index_complete",
		slog.Int("processed", pr.Processed),
		slog.Int("skipped", pr.Skipped),
		slog.Int("failed", pr.Failed),
		slog.Int("indexed", pr.Indexed),
		slog.Duration("elapsed", pr.Elapsed),
		slog.Duration("per_item", pr.PerItem),
		slog.Bool("interrupted", p.interrupted.Load()))
}

func (p *Pipeline) closeStore() error {
	if p.fatalErr != nil {
		if err := p.writer.Close(); err != nil {
			slog.Warn("index_store_close_failed", slog.String("error", err.Error()))
		}
		return p.fatalErr
	}

	pr := p.Progress()
	p.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:     ui.StageCommitting,
		Processed: pr.Processed,
		Skipped:   pr.Skipped,
		Failed:    pr.Failed,
		Elapsed:   pr.Elapsed,
		PerItem:   pr.PerItem,
	})

	ctx := context.Background()
	commit := func() error { return p.writer.Commit(ctx) }
	if err := apperrors.Retry(ctx, p.cfg.CommitRetry, commit); err != nil {
		_ = p.writer.Close()
		return apperrors.StoreError("failed to commit store", err)
	}
	if err := p.writer.Close(); err != nil {
		return apperrors.StoreError("failed to close store", err)
	}
	return nil
}

// fail records the first store error and stops the run.
func (p *Pipeline) fail(err error) {
	p.fatalOnce.Do(func() {
		p.fatalErr = apperrors.StoreError("failed to append record", err)
		slog.Error("index_store_failed", slog.String("error", err.Error()))
		p.abort()
	})
}

// Wait blocks until the pipeline is Closed or Failed.
func (p *Pipeline) Wait() (Result, error) {
	if p.State() == StateIdle {
		return Result{}, ErrNotStarted
	}
	<-p.done
	return p.result, p.err
}

// IsRunning reports whether the pipeline is producing or draining.
func (p *Pipeline) IsRunning() bool {
	s := p.State()
	return s == StateRunning || s == StateDraining
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Progress returns a snapshot of the counters.
func (p *Pipeline) Progress() Progress {
	pr := Progress{
		State:      p.State(),
		Processed:  int(p.processed.Load()),
		Skipped:    int(p.skipped.Load()),
		Failed:     int(p.failed.Load()),
		Indexed:    int(p.indexed.Load()),
		QueueDepth: p.queue.Len(),
		MaxDepth:   p.queue.MaxDepth(),
	}
	if started := p.startedAt.Load(); started != 0 {
		pr.Elapsed = time.Since(time.Unix(0, started))
	}
	if pr.Processed > 0 {
		pr.PerItem = pr.Elapsed / time.Duration(pr.Processed)
	}
	return pr
}
