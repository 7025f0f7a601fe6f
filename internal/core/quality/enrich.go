// Package quality attaches externally computed quality scores to Revision
// nodes that are already in the graph.
package quality

import (
	"context"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/evoapps/evotrees/internal/core/model"
	"github.com/evoapps/evotrees/internal/driver"
	"github.com/evoapps/evotrees/internal/metrics"
)

const DefaultBatchSize = 500

// Source looks up scores by revision id. Ids without a score are left out
// of the result.
type Source interface {
	Scores(ctx context.Context, ids []int64) (map[int64]float64, error)
}

// StaticSource serves scores from memory.
type StaticSource map[int64]float64

func (s StaticSource) Scores(ctx context.Context, ids []int64) (map[int64]float64, error) {
	out := make(map[int64]float64)
	for _, id := range ids {
		if v, ok := s[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

type Report struct {
	// Applied scores matched an existing Revision.
	Applied int `json:"applied"`
	// Missing scores had no Revision with their id.
	Missing int `json:"missing"`
}

type Enricher struct {
	Driver    driver.GraphDriver
	Logger    logrus.FieldLogger
	Metrics   *metrics.Metrics
	BatchSize int
}

func NewEnricher(d driver.GraphDriver, logger logrus.FieldLogger, batchSize int) *Enricher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &Enricher{
		Driver:    d,
		Logger:    logger,
		BatchSize: batchSize,
	}
}

// Run reads the revision ids present in the graph, fetches their scores from
// src and applies them.
func (e *Enricher) Run(ctx context.Context, src Source) (Report, error) {
	ids, err := e.Driver.RevisionIDs(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to list revisions: %w", err)
	}
	if len(ids) == 0 {
		e.Logger.Info("no revisions in graph, nothing to enrich")
		return Report{}, nil
	}

	scores, err := src.Scores(ctx, ids)
	if err != nil {
		return Report{}, fmt.Errorf("failed to read quality scores: %w", err)
	}
	e.Logger.WithFields(logrus.Fields{
		"revisions": len(ids),
		"scores":    len(scores),
	}).Info("applying quality scores")

	return e.Apply(ctx, scores)
}

// Apply sets quality on each Revision named in scores, one transaction per
// batch. It never creates nodes. On error the report covers the batches
// committed so far.
func (e *Enricher) Apply(ctx context.Context, scores map[int64]float64) (Report, error) {
	ids := make([]int64, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var report Report
	for batch := range slices.Chunk(ids, e.BatchSize) {
		applied, missing, err := e.applyBatch(ctx, batch, scores)
		if err != nil {
			return report, err
		}
		report.Applied += applied
		report.Missing += missing
		e.Metrics.Qualities(applied, missing)
	}

	e.Logger.WithFields(logrus.Fields{
		"action":  "enrich",
		"applied": report.Applied,
		"missing": report.Missing,
	}).Info("quality enrichment finished")
	return report, nil
}

func (e *Enricher) applyBatch(ctx context.Context, ids []int64, scores map[int64]float64) (applied, missing int, err error) {
	tx, err := e.Driver.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, id := range ids {
		ref := driver.NodeRef{Label: model.LabelRevision, Key: model.KeyRevision, Value: id}
		found, err := tx.UpdateNode(ctx, ref, map[string]interface{}{"quality": scores[id]})
		if err != nil {
			_ = tx.Rollback(ctx)
			return 0, 0, fmt.Errorf("failed to set quality of revision %d: %w", id, err)
		}
		if found {
			applied++
		} else {
			missing++
			e.Logger.WithField("revision_id", id).Debug("no revision for quality score")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("failed to commit quality batch: %w", err)
	}
	return applied, missing, nil
}
