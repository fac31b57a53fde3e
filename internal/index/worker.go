package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	apperrors "github.com/Aman-CERP/imagedex/internal/errors"
	"github.com/Aman-CERP/imagedex/internal/feature"
	"github.com/Aman-CERP/imagedex/internal/record"
	"github.com/Aman-CERP/imagedex/internal/ui"
)

// produce reads the source once, loads payloads and pushes records onto the
// queue. It closes the queue when input ends.
func (p *Pipeline) produce(ctx context.Context) {
	defer func() {
		p.queue.Close()
		p.state.CompareAndSwap(int32(StateRunning), int32(StateDraining))
		slog.Debug("index_input_exhausted",
			slog.Int("queue_depth", p.queue.Len()),
			slog.Bool("interrupted", p.interrupted.Load()))
	}()
	defer func() {
		if err := p.deps.Source.Close(); err != nil {
			slog.Warn("index_source_close_failed", slog.String("error", err.Error()))
		}
	}()

	for {
		if ctx.Err() != nil {
			p.interrupted.Store(true)
			return
		}

		rec, err := p.deps.Source.Next(ctx)
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			var lineErr *record.LineError
			if errors.As(err, &lineErr) {
				p.skip(fmt.Sprintf("line %d", lineErr.Line), apperrors.ValidationError("malformed input line", err))
				continue
			}
			if ctx.Err() != nil {
				p.interrupted.Store(true)
				return
			}
			p.sourceErr = apperrors.New(apperrors.ErrCodeSourceFailed, "record source failed", err)
			slog.Error("index_source_failed", slog.String("error", err.Error()))
			p.renderer.AddError(ui.ErrorEvent{Err: p.sourceErr})
			return
		}

		if !p.cfg.MetadataOnly {
			if p.limiter != nil {
				if err := p.limiter.Wait(ctx); err != nil {
					p.skipped.Add(1)
					p.interrupted.Store(true)
					return
				}
			}
			if err := p.deps.Loader.Load(ctx, rec); err != nil {
				p.skip(rec.Identity(), loadError(err))
				continue
			}
		}

		p.throttle(ctx)

		if err := p.queue.Push(ctx, rec); err != nil {
			rec.Release()
			p.skipped.Add(1)
			p.interrupted.Store(true)
			return
		}
	}
}

// loadError maps a payload load failure to a coded error.
func loadError(err error) error {
	switch {
	case errors.Is(err, record.ErrFileTooLarge):
		return apperrors.New(apperrors.ErrCodeFileTooLarge, "file too large", err)
	case errors.Is(err, record.ErrNoFileRef):
		return apperrors.ValidationError("record has no file reference", err)
	default:
		return apperrors.New(apperrors.ErrCodeFileNotFound, "failed to load payload", err)
	}
}

// skip counts an item that never reached the queue.
func (p *Pipeline) skip(item string, err error) {
	p.skipped.Add(1)

	attrs := append([]slog.Attr{slog.String("item", item)}, apperrors.LogAttrs(err)...)
	slog.LogAttrs(context.Background(), slog.LevelWarn, "index_item_skipped", attrs...)
	p.renderer.AddError(ui.ErrorEvent{Item: item, Err: err, IsWarn: true})
}

// throttle applies backpressure before a push: a bounded wait above the
// high-water mark, then the depth-dependent delay.
func (p *Pipeline) throttle(ctx context.Context) {
	depth := p.queue.Len()
	if depth > p.queue.HighWater() {
		if !p.queue.WaitBelowHighWater(ctx, p.cfg.HighWaterWait) {
			slog.Debug("index_backpressure_wait_expired", slog.Int("queue_depth", p.queue.Len()))
		}
		depth = p.queue.Len()
	}

	if d := p.cfg.Backpressure.Delay(depth); d > 0 {
		sleep(ctx, d)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// work pops and processes items until the queue is closed and drained.
func (p *Pipeline) work(ctx context.Context) {
	for {
		rec, err := p.queue.Pop(ctx)
		if err != nil {
			return
		}
		p.process(ctx, rec)
	}
}

// process extracts features for one record and appends it to the store.
// Extraction failures are counted and logged; store failures end the run.
func (p *Pipeline) process(ctx context.Context, rec *record.Record) {
	defer p.processed.Add(1)
	defer rec.Release()

	fields, err := p.extract(ctx, rec)
	if err != nil {
		p.failed.Add(1)
		slog.LogAttrs(ctx, slog.LevelWarn, "index_item_failed", apperrors.LogAttrs(err)...)
		p.renderer.AddError(ui.ErrorEvent{Item: rec.Identity(), Err: err, IsWarn: true})
		return
	}

	if _, err := p.writer.Append(ctx, fields); err != nil {
		p.fail(err)
		return
	}
	p.indexed.Add(1)
}

func (p *Pipeline) extract(ctx context.Context, rec *record.Record) (fields record.Fields, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.ExtractionError(rec.Identity(), fmt.Errorf("builder panic: %v", r))
		}
	}()

	meta := rec.MetadataFields()
	if p.deps.Builder == nil || p.cfg.MetadataOnly {
		return meta, nil
	}

	built, err := p.deps.Builder.Extract(ctx, rec.Payload)
	if err != nil {
		return nil, apperrors.ExtractionError(rec.Identity(), err)
	}
	return feature.Merge(meta, built), nil
}

// monitor reports progress every interval until ctx ends. The first report
// comes one interval after start.
func (p *Pipeline) monitor(ctx context.Context) {
	if p.cfg.MonitorInterval <= 0 {
		return
	}

	ticker := time.NewTicker(p.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.report()
		}
	}
}

func (p *Pipeline) report() {
	pr := p.Progress()

	slog.Info("index_progress",
		slog.String("state", pr.State.String()),
		slog.Int("processed", pr.Processed),
		slog.Int("skipped", pr.Skipped),
		slog.Int("failed", pr.Failed),
		slog.Int("queue_depth", pr.QueueDepth),
		slog.Duration("elapsed", pr.Elapsed),
		slog.Duration("per_item", pr.PerItem))

	stage := ui.StageLoading
	if pr.State == StateDraining {
		stage = ui.StageDraining
	}
	p.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:      stage,
		Processed:  pr.Processed,
		Skipped:    pr.Skipped,
		Failed:     pr.Failed,
		QueueDepth: pr.QueueDepth,
		Elapsed:    pr.Elapsed,
		PerItem:    pr.PerItem,
	})
}
