// Command frauddwh loads one daily batch of extracts into the warehouse,
// runs the fraud rules and prints the resulting report.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"go.uber.org/zap"

	"frauddwh/internal/archive"
	"frauddwh/internal/blob"
	"frauddwh/internal/config"
	"frauddwh/internal/fraud"
	"frauddwh/internal/logging"
	"frauddwh/internal/pipeline"
	"frauddwh/internal/report"
	"frauddwh/internal/warehouse"
)

const service = "frauddwh"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 2
	}
	fs := flag.NewFlagSet(service, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.BatchDate, "date", cfg.BatchDate, "batch date ddmmyyyy (default: detect from data dir)")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory holding the extracts")
	fs.StringVar(&cfg.SQLitePath, "db", cfg.SQLitePath, "warehouse database file")
	quiet := fs.Bool("quiet", false, "do not print the report")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 2
	}

	logger, err := logging.New(service, cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "logger: %v\n", err)
		return 2
	}
	defer func() { _ = logger.Sync() }()

	events, err := execute(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "frauddwh: %v\n", err)
		return 1
	}
	if !*quiet {
		printReport(stdout, events)
	}
	return 0
}

func execute(ctx context.Context, cfg config.Config, logger *zap.Logger) ([]fraud.Event, error) {
	store, err := warehouse.Open(ctx, cfg.SQLitePath, warehouse.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	archiveStore, err := blob.Open(ctx, cfg.Archive)
	if err != nil {
		return nil, fmt.Errorf("archive store: %w", err)
	}
	opts := pipeline.Options{
		DataDir:         cfg.DataDir,
		BatchDate:       cfg.BatchDate,
		SourceScript:    cfg.SourceScript,
		Parallel:        cfg.Parallel,
		Archiver:        archive.New(archiveStore, logger),
		MetricsTextfile: cfg.MetricsTextfile,
	}
	if cfg.ReportPostgresDSN != "" {
		pub, err := report.Open(ctx, cfg.ReportPostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		defer func() { _ = pub.Close() }()
		opts.Publisher = pub
	}

	res, err := pipeline.New(store, logger, opts).Run(ctx)
	if err != nil {
		return nil, err
	}
	return res.Report, nil
}

func printReport(w io.Writer, events []fraud.Event) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EVENT_DT\tPASSPORT\tFIO\tPHONE\tEVENT_TYPE\tREPORT_DT")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			warehouse.FormatTimestamp(ev.EventDT),
			nullable(ev.Passport.String, ev.Passport.Valid),
			nullable(ev.FIO.String, ev.FIO.Valid),
			nullable(ev.Phone.String, ev.Phone.Valid),
			int(ev.EventType),
			warehouse.FormatTimestamp(ev.ReportDT))
	}
	_ = tw.Flush()
}

func nullable(s string, valid bool) string {
	if !valid {
		return "NULL"
	}
	return s
}
