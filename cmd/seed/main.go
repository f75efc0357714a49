// Command seed generates a reproducible pharmacy trading history. By default
// it writes the corpus as JSON; -import loads it into DATABASE_URL and
// -format csv|xlsx writes the analytics report for the corpus instead.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/sirupsen/logrus"

	"pharmapos/backend/internal/analytics"
	"pharmapos/backend/internal/config"
	"pharmapos/backend/internal/export"
	"pharmapos/backend/internal/fixture"
	"pharmapos/backend/internal/logging"
	"pharmapos/backend/internal/store"
	pgstore "pharmapos/backend/internal/store/postgres"
)

type options struct {
	days      int
	seed      uint64
	start     string
	timezone  string
	format    string
	output    string
	importDB  bool
	returns   float64
	customers float64
}

func main() {
	opts := parseFlags(os.Args[1:])
	log := logging.New("info", "text")

	if err := run(context.Background(), opts, log); err != nil {
		log.WithError(err).Fatal("seed failed")
	}
}

func parseFlags(args []string) options {
	def := fixture.DefaultOptions()
	var opts options
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	fs.IntVar(&opts.days, "days", def.Days, "number of trading days to generate")
	fs.Uint64Var(&opts.seed, "seed", def.Seed, "random seed; equal seeds give equal output")
	fs.StringVar(&opts.start, "start", def.Start.Format(time.DateOnly), "first trading day (YYYY-MM-DD)")
	fs.StringVar(&opts.timezone, "tz", "Asia/Kolkata", "shop timezone")
	fs.StringVar(&opts.format, "format", "json", "output format: json, csv or xlsx")
	fs.StringVar(&opts.output, "out", "", "output file (default stdout)")
	fs.BoolVar(&opts.importDB, "import", false, "import into the postgres database at DATABASE_URL")
	fs.Float64Var(&opts.returns, "return-rate", def.ReturnRate, "share of sales followed by a return")
	fs.Float64Var(&opts.customers, "customer-rate", def.CustomerRate, "share of sales with customer details")
	_ = fs.Parse(args)
	return opts
}

func run(ctx context.Context, opts options, log *logrus.Logger) error {
	loc, err := time.LoadLocation(opts.timezone)
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	start, err := time.ParseInLocation(time.DateOnly, opts.start, loc)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}

	gen := fixture.DefaultOptions()
	gen.Seed = opts.seed
	gen.Start = start
	gen.Days = opts.days
	gen.Location = loc
	gen.ReturnRate = opts.returns
	gen.CustomerRate = opts.customers

	corpus, err := fixture.New(gen).Generate()
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"days":      opts.days,
		"seed":      opts.seed,
		"sales":     len(corpus.Sales),
		"movements": len(corpus.Movements),
	}).Info("corpus generated")

	if opts.importDB {
		return importCorpus(ctx, corpus, log)
	}

	out := io.Writer(os.Stdout)
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return write(out, opts.format, corpus, loc)
}

func write(w io.Writer, format string, corpus fixture.Corpus, loc *time.Location) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(corpus)
	case "csv", "xlsx":
		report := analytics.Compute(corpus.Sales, loc)
		var data []byte
		var err error
		if format == "csv" {
			data, err = export.CSV(report)
		} else {
			data, err = export.XLSX(report)
		}
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func importCorpus(ctx context.Context, corpus fixture.Corpus, log *logrus.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for -import")
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	pg, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pg.Close()

	err = pg.ImportHistory(ctx, store.History{
		Medicines: corpus.Catalog,
		Sales:     corpus.Sales,
		Movements: corpus.Movements,
		Stock:     corpus.Stock,
	})
	if err != nil {
		return err
	}
	log.WithField("sales", len(corpus.Sales)).Info("corpus imported")
	return nil
}
