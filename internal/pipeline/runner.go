// Package pipeline runs one harvest: it loads the ledger history, walks the
// source through a session, classifies each extracted entry, persists new
// entries to the run output and finalizes the duplicate ledger.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-ledger/internal/dedup"
	"github.com/sells-group/listing-ledger/internal/extract"
	"github.com/sells-group/listing-ledger/internal/ledger"
	"github.com/sells-group/listing-ledger/internal/model"
	"github.com/sells-group/listing-ledger/internal/session"
	"github.com/sells-group/listing-ledger/internal/source"
)

// Journal records the lifecycle of runs. A nil Journal disables journaling.
type Journal interface {
	Start(ctx context.Context, run *model.Run) error
	Complete(ctx context.Context, run *model.Run) error
	Fail(ctx context.Context, run *model.Run, runErr error) error
}

// Options configures a Runner.
type Options struct {
	OutputDir    string
	DuplicateDir string
	Schema       model.Schema
	Area         string
	Count        int
	Session      session.Options
	Extract      extract.Options
	Now          func() time.Time
}

// Result summarizes a finished run.
type Result struct {
	RunID      string
	RunPath    string
	Saved      int
	Duplicates int
	// Unsaved counts new entries whose append failed. They still count
	// toward the requested total.
	Unsaved   int
	Dropped   int
	Failed    int
	Processed int
	Pages     int
	Outcome   session.Outcome
	Finalize  *ledger.FinalizeResult
	StartedAt time.Time
	Elapsed   time.Duration
}

// Runner executes harvest runs against one source.
type Runner struct {
	src     source.Source
	journal Journal
	opts    Options
}

// New creates a Runner. journal may be nil.
func New(src source.Source, journal Journal, opts Options) *Runner {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{src: src, journal: journal, opts: opts}
}

// Run performs one harvest. The run output and the duplicate ledger are
// written even when the session ends early; the returned error reports a
// source failure, an interruption, or a ledger failure.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if r.opts.Count <= 0 {
		return nil, eris.Errorf("pipeline: count must be positive, got %d", r.opts.Count)
	}

	unlock, err := ledger.Lock(r.opts.OutputDir)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: lock ledger")
	}
	defer unlock()

	started := r.opts.Now()
	run := &model.Run{
		ID:        uuid.NewString(),
		Area:      r.opts.Area,
		Requested: r.opts.Count,
		Status:    model.RunStatusRunning,
		StartedAt: started,
	}
	log := zap.L().With(zap.String("run_id", run.ID), zap.String("area", r.opts.Area))
	log.Info("pipeline: starting run", zap.Int("count", r.opts.Count))
	r.journalStart(ctx, run)

	res := &Result{RunID: run.ID, StartedAt: started}

	historical := ledger.LoadHistory(r.opts.OutputDir, r.opts.Schema)
	log.Info("pipeline: history loaded", zap.Int("keys", historical.Len()))

	out, err := ledger.CreateRunLedger(r.opts.OutputDir, r.opts.Schema, started)
	if err != nil {
		return nil, r.fail(ctx, run, eris.Wrap(err, "pipeline: create run output"))
	}
	res.RunPath = out.Path()
	run.RunFile = out.Path()

	xopts := r.opts.Extract
	if xopts.RunStamp == "" {
		xopts.RunStamp = started.Format(model.StampLayout)
	}
	if xopts.Now == nil {
		xopts.Now = r.opts.Now
	}
	extractor := extract.New(r.src, xopts)
	classifier := dedup.NewClassifier(historical)
	var dups []model.Entry

	handle := func(ctx context.Context, c model.CandidateItem) (bool, error) {
		e, err := extractor.Extract(ctx, c)
		if errors.Is(err, extract.ErrClosed) {
			log.Info("pipeline: dropped closed listing", zap.String("name", c.DisplayName()))
			res.Dropped++
			return false, nil
		}
		if err != nil {
			return false, err
		}

		switch classifier.Classify(e.Key()) {
		case dedup.Duplicate:
			dups = append(dups, e)
			res.Duplicates++
			log.Debug("pipeline: duplicate", zap.String("name", e.Name))
		default:
			if err := out.Append(e); err != nil {
				log.Error("pipeline: entry not saved", zap.String("name", e.Name), zap.Error(err))
				res.Unsaved++
			} else {
				res.Saved++
				log.Info("pipeline: saved",
					zap.String("name", e.Name),
					zap.String("phone", e.Phone),
					zap.Stringer("diagnostics", e.Diagnostics),
				)
			}
		}
		return true, nil
	}

	sopts := r.opts.Session
	sopts.Area = r.opts.Area
	sopts.Need = r.opts.Count
	sres := session.New(r.src, sopts).Run(ctx, handle)

	res.Outcome = sres.Outcome
	res.Processed = sres.Processed
	res.Failed = sres.Failed
	res.Pages = sres.Pages

	fin, finErr := ledger.NewDuplicateManager(r.opts.DuplicateDir, r.opts.Schema).Finalize(dups)
	if finErr != nil {
		log.Error("pipeline: duplicate ledger not finalized", zap.Error(finErr))
	}
	res.Finalize = fin
	res.Elapsed = r.opts.Now().Sub(started)

	run.Outcome = string(res.Outcome)
	run.Saved = res.Saved
	run.Duplicates = res.Duplicates

	switch {
	case sres.Err != nil:
		return res, r.fail(ctx, run, eris.Wrapf(sres.Err, "pipeline: session %s", sres.Outcome))
	case finErr != nil:
		return res, r.fail(ctx, run, eris.Wrap(finErr, "pipeline: finalize duplicates"))
	}

	run.Status = model.RunStatusComplete
	if r.journal != nil {
		if err := r.journal.Complete(ctx, run); err != nil {
			log.Warn("pipeline: journal complete failed", zap.Error(err))
		}
	}

	log.Info("pipeline: run complete",
		zap.String("outcome", string(res.Outcome)),
		zap.String("run_file", res.RunPath),
		zap.Int("saved", res.Saved),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("failed", res.Failed),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

func (r *Runner) journalStart(ctx context.Context, run *model.Run) {
	if r.journal == nil {
		return
	}
	if err := r.journal.Start(ctx, run); err != nil {
		zap.L().Warn("pipeline: journal start failed", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func (r *Runner) fail(ctx context.Context, run *model.Run, runErr error) error {
	run.Status = model.RunStatusFailed
	run.Error = runErr.Error()
	if r.journal != nil {
		// The run's own context may already be cancelled.
		if err := r.journal.Fail(context.WithoutCancel(ctx), run, runErr); err != nil {
			zap.L().Warn("pipeline: journal fail failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
	return runErr
}
