// Package app wires configuration into a ready importer and enricher.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/evoapps/evotrees/internal/config"
	"github.com/evoapps/evotrees/internal/core"
	"github.com/evoapps/evotrees/internal/core/quality"
	"github.com/evoapps/evotrees/internal/driver"
	"github.com/evoapps/evotrees/internal/logging"
	"github.com/evoapps/evotrees/internal/metrics"
	"github.com/evoapps/evotrees/internal/source"
	"github.com/evoapps/evotrees/internal/source/mediawiki"
	"github.com/evoapps/evotrees/internal/source/qualities"
)

type App struct {
	Config   *config.Config
	Logger   *logrus.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Driver   driver.GraphDriver
	Importer *core.Importer
	Enricher *quality.Enricher
}

// New connects to the configured graph store and revision source.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}

	d, err := driver.Open(ctx, cfg.Graph, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to graph store: %w", err)
	}

	src := mediawiki.New(mediawiki.Config{
		APIURL:            cfg.Source.APIURL,
		UserAgent:         cfg.Source.UserAgent,
		BatchSize:         cfg.Source.BatchSize,
		RequestsPerSecond: cfg.Source.RequestsPerSecond,
		Burst:             cfg.Source.Burst,
		MaxRetries:        cfg.Source.MaxRetries,
		Timeout:           cfg.Source.Timeout.Duration,
	}, logger)

	a := Assemble(cfg, logger, d, src)
	src.Metrics = a.Metrics
	return a, nil
}

// Assemble builds an App around an already opened driver and source.
func Assemble(cfg *config.Config, logger *logrus.Logger, d driver.GraphDriver, src source.RevisionSource) *App {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	im := core.NewImporter(d, src, logger, core.Options{
		Resume:      cfg.Import.Resume,
		VerifyOrder: cfg.Import.VerifyOrder,
	})
	im.Metrics = m

	en := quality.NewEnricher(d, logger, cfg.Enrichment.BatchSize)
	en.Metrics = m

	return &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Metrics:  m,
		Driver:   d,
		Importer: im,
		Enricher: en,
	}
}

// Enrich applies the scores in the configured SQLite database, or in path
// when it is not empty.
func (a *App) Enrich(ctx context.Context, path string) (quality.Report, error) {
	if path == "" {
		path = a.Config.Enrichment.SQLitePath
	}
	store, err := qualities.Open(path, a.Config.Enrichment.Table, a.Config.Enrichment.LookupChunk)
	if err != nil {
		return quality.Report{}, err
	}
	defer store.Close()

	return a.Enricher.Run(ctx, store)
}

func (a *App) Close(ctx context.Context) error {
	return a.Driver.Close(ctx)
}
