// Package pipeline runs one batch end to end: staging, dimension and fact
// loads, fraud detection, metadata, archiving and report publishing.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"frauddwh/internal/archive"
	"frauddwh/internal/blob"
	"frauddwh/internal/facts"
	"frauddwh/internal/fraud"
	"frauddwh/internal/metadata"
	"frauddwh/internal/metrics"
	"frauddwh/internal/scd"
	"frauddwh/internal/staging"
	"frauddwh/internal/warehouse"
)

// Publisher receives the full report after a successful load.
type Publisher interface {
	Publish(ctx context.Context, events []fraud.Event) (int64, error)
}

// Options configures a Runner. Zero values are usable.
type Options struct {
	DataDir      string
	BatchDate    string // empty detects the date from DataDir
	SourceScript string
	// Parallel loads dimensions and facts concurrently. Writes still
	// serialize on the store's single connection.
	Parallel bool
	// KeepStaging leaves the STG_* relations populated after a run.
	KeepStaging bool

	Now             func() time.Time
	Archiver        *archive.Archiver // nil skips archiving
	Publisher       Publisher         // nil skips publishing
	Metrics         *metrics.Metrics
	MetricsTextfile string
}

// Result summarises a successful run.
type Result struct {
	RunID     string
	Batch     staging.Batch
	Staged    staging.Counts
	Entities  []scd.Result
	Facts     map[string]int64
	Fraud     fraud.Summary
	Report    []fraud.Event
	Archived  []blob.Info
	Published int64
	// Warnings collects failures of the steps that follow the report
	// commit: clearing staging, archiving and publishing.
	Warnings []error
}

func (res *Result) warn(log *zap.Logger, step string, err error) {
	res.Warnings = append(res.Warnings, err)
	log.Warn("post-commit step failed", zap.String("step", step), zap.Error(err))
}

// Runner executes batches against one warehouse.
type Runner struct {
	store  *warehouse.Store
	loader *staging.Loader
	engine *fraud.Engine
	logger *zap.Logger
	opts   Options
}

// New constructs a Runner with the default fraud rules.
func New(store *warehouse.Store, logger *zap.Logger, opts Options) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DataDir == "" {
		opts.DataDir = "."
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	return &Runner{
		store:  store,
		loader: staging.NewLoader(logger),
		engine: fraud.NewDefaultEngine(logger),
		logger: logger,
		opts:   opts,
	}
}

// Metrics returns the collectors the runner reports into.
func (r *Runner) Metrics() *metrics.Metrics { return r.opts.Metrics }

// Run processes one batch. Inputs are parsed before anything is written, so
// a malformed or missing extract leaves the warehouse untouched. A failure
// up to the fraud phase rolls that phase back, journals the run as failed
// and leaves the extracts in place. Once REP_FRAUD has committed the run
// succeeds; later failures are returned in Result.Warnings.
func (r *Runner) Run(ctx context.Context) (res Result, err error) {
	now := r.opts.Now().UTC().Truncate(warehouse.Resolution)
	res.RunID = uuid.New().String()
	log := r.logger.With(zap.String("run_id", res.RunID))

	batchDate := r.opts.BatchDate
	started, committed := false, false
	defer func() {
		if started {
			if ferr := metadata.FinishRun(context.WithoutCancel(ctx), r.store.DB(), res.RunID, r.opts.Now(), err); ferr != nil {
				// A committed report stands even when the journal write fails.
				if committed {
					res.warn(log, "journal", fmt.Errorf("journal run: %w", ferr))
				} else {
					log.Error("journal run", zap.Error(ferr))
				}
			}
		}
		r.opts.Metrics.RunFinished(r.opts.Now(), err)
		if r.opts.MetricsTextfile != "" {
			if werr := r.opts.Metrics.WriteTextfile(r.opts.MetricsTextfile); werr != nil {
				log.Warn("metrics export failed", zap.Error(werr))
			}
		}
		if err != nil {
			log.Error("run failed", zap.String("batch_date", batchDate), zap.Error(err))
		}
	}()

	var parsed staging.Parsed
	if err = r.phase(log, "discover", func() error {
		var perr error
		if res.Batch, perr = staging.Discover(r.opts.DataDir, r.opts.BatchDate); perr != nil {
			return perr
		}
		batchDate = res.Batch.Token
		parsed, perr = r.loader.Parse(res.Batch.Files)
		return perr
	}); err != nil {
		return res, err
	}
	log = log.With(zap.String("batch_date", batchDate))

	if err = metadata.StartRun(ctx, r.store.DB(), res.RunID, batchDate, now); err != nil {
		return res, err
	}
	started = true

	if err = r.phase(log, "stage", func() error {
		if serr := r.store.ResetStaging(ctx); serr != nil {
			return serr
		}
		if _, serr := r.loader.ApplySourceScript(ctx, r.store, r.opts.DataDir, r.opts.SourceScript); serr != nil {
			return serr
		}
		return r.store.RunInTransaction(ctx, "stage", func(tx *sql.Tx) error {
			var terr error
			res.Staged, terr = r.loader.Stage(ctx, tx, parsed)
			return terr
		})
	}); err != nil {
		return res, err
	}
	for table, n := range res.Staged {
		r.opts.Metrics.AddRows(table, "staged", n)
	}

	if err = r.phase(log, "load", func() error { return r.load(ctx, now, &res) }); err != nil {
		return res, err
	}

	// Detection, the metadata stamps and the report read share the last
	// transaction; nothing after its commit can fail the run.
	if err = r.phase(log, "fraud", func() error {
		return r.store.RunInTransaction(ctx, "fraud", func(tx *sql.Tx) error {
			var ferr error
			if res.Fraud, ferr = r.engine.Evaluate(ctx, tx, fraud.Params{ReferenceDate: res.Batch.Date, ReportTime: now}); ferr != nil {
				return ferr
			}
			if _, ferr = metadata.Touch(ctx, tx, now); ferr != nil {
				return ferr
			}
			res.Report, ferr = fraud.ListReport(ctx, tx)
			return ferr
		})
	}); err != nil {
		return res, err
	}
	committed = true
	for kind, n := range res.Fraud.Candidates {
		r.opts.Metrics.AddCandidates(kind.String(), n)
	}
	r.opts.Metrics.AddReported(res.Fraud.Reported)

	if !r.opts.KeepStaging {
		if serr := r.store.ResetStaging(ctx); serr != nil {
			res.warn(log, "clear staging", fmt.Errorf("clear staging: %w", serr))
		}
	}
	if r.opts.Archiver != nil {
		if aerr := r.phase(log, "archive", func() error {
			var aerr error
			res.Archived, aerr = r.opts.Archiver.Archive(ctx, batchDate, res.Batch.Files.Paths())
			return aerr
		}); aerr != nil {
			res.warn(log, "archive", aerr)
		}
	}
	if r.opts.Publisher != nil {
		if perr := r.phase(log, "publish", func() error {
			var perr error
			res.Published, perr = r.opts.Publisher.Publish(ctx, res.Report)
			return perr
		}); perr != nil {
			res.warn(log, "publish", perr)
		}
		r.opts.Metrics.AddPublished(res.Published)
	}

	log.Info("run finished",
		zap.Int64("reported", res.Fraud.Reported),
		zap.Int("warnings", len(res.Warnings)),
		zap.Int("report_rows", len(res.Report)),
		zap.Int("archived", len(res.Archived)))
	return res, nil
}

// load runs SCD1/SCD2 per entity and the fact appends. Each unit commits on
// its own; a failure cancels the units that have not started.
func (r *Runner) load(ctx context.Context, now time.Time, res *Result) error {
	entities := scd.Entities()
	all := facts.All()
	entityResults := make([]scd.Result, len(entities))
	factCounts := make([]int64, len(all))

	g, gctx := errgroup.WithContext(ctx)
	if !r.opts.Parallel {
		g.SetLimit(1)
	}
	for i, e := range entities {
		g.Go(func() error {
			out, err := scd.Load(gctx, r.store, e, now)
			if err != nil {
				return err
			}
			entityResults[i] = out
			return nil
		})
	}
	for i, f := range all {
		g.Go(func() error {
			n, err := facts.Load(gctx, r.store, f)
			if err != nil {
				return err
			}
			factCounts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	res.Entities = entityResults
	res.Facts = make(map[string]int64, len(all))
	for i, f := range all {
		res.Facts[f.Name] = factCounts[i]
		r.opts.Metrics.AddRows(f.Table, "inserted", factCounts[i])
	}
	for i, out := range entityResults {
		e := entities[i]
		if e.HasSCD1() {
			r.opts.Metrics.AddRows(e.Dimension, "inserted", out.Merge.Inserted)
			r.opts.Metrics.AddRows(e.Dimension, "updated", out.Merge.Updated)
		}
		r.opts.Metrics.AddRows(e.History, "opened", out.History.Opened)
		r.opts.Metrics.AddRows(e.History, "changed", out.History.Changed)
		r.opts.Metrics.AddRows(e.History, "deleted", out.History.Deleted)
	}
	return nil
}

func (r *Runner) phase(log *zap.Logger, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	took := time.Since(start)
	r.opts.Metrics.ObservePhase(name, took)
	if err != nil {
		var perr *warehouse.PhaseError
		if !errors.As(err, &perr) {
			err = fmt.Errorf("%s: %w", name, err)
		}
		return err
	}
	log.Info("phase done", zap.String("phase", name), zap.Duration("took", took))
	return nil
}
