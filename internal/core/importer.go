package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/evoapps/evotrees/internal/core/content"
	"github.com/evoapps/evotrees/internal/core/entity"
	"github.com/evoapps/evotrees/internal/core/fold"
	"github.com/evoapps/evotrees/internal/core/model"
	"github.com/evoapps/evotrees/internal/core/wikitext"
	"github.com/evoapps/evotrees/internal/driver"
	"github.com/evoapps/evotrees/internal/metrics"
	"github.com/evoapps/evotrees/internal/source"
)

// Options control how an Importer treats existing documents and source order.
type Options struct {
	// Resume continues documents that already exist instead of skipping
	// them.
	Resume bool
	// VerifyOrder rejects sources that do not deliver revisions oldest
	// first.
	VerifyOrder bool
}

// Importer folds document histories into the graph. It is not safe for
// concurrent use; documents are imported one at a time.
type Importer struct {
	Driver  driver.GraphDriver
	Source  source.RevisionSource
	Builder *entity.Builder
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
	Options Options
	Now     func() time.Time
	RunID   string
}

func NewImporter(d driver.GraphDriver, src source.RevisionSource, logger logrus.FieldLogger, opts Options) *Importer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Importer{
		Driver:  d,
		Source:  src,
		Builder: entity.NewBuilder(content.NewHasher(logger), wikitext.NewProjector()),
		Logger:  logger,
		Options: opts,
		Now:     time.Now,
		RunID:   uuid.New().String(),
	}
}

// BuildSchema ensures the unique keys of all node labels.
func (im *Importer) BuildSchema(ctx context.Context) error {
	keys := []struct{ label, property string }{
		{model.LabelDocument, model.KeyDocument},
		{model.LabelRevision, model.KeyRevision},
		{model.LabelContent, model.KeyContent},
	}
	for _, k := range keys {
		if err := im.Driver.EnsureUniqueKey(ctx, k.label, k.property); err != nil {
			return fmt.Errorf("failed to ensure unique key %s.%s: %w", k.label, k.property, err)
		}
	}
	return nil
}

// ImportArticles imports titles in order. A failed document does not stop
// the batch unless the graph store is unreachable. The returned error
// aggregates every failure.
func (im *Importer) ImportArticles(ctx context.Context, titles []string) ([]DocumentResult, error) {
	var errs *multierror.Error
	results := make([]DocumentResult, 0, len(titles))

	for _, title := range titles {
		if err := ctx.Err(); err != nil {
			errs = multierror.Append(errs, err)
			break
		}

		res := im.ImportArticle(ctx, title)
		results = append(results, res)
		if res.Status != StatusFailed {
			continue
		}
		errs = multierror.Append(errs, fmt.Errorf("%s: %w", res.Title, res.Err))
		if errors.Is(res.Err, driver.ErrUnavailable) {
			im.Logger.WithError(res.Err).Error("graph store unavailable, aborting run")
			break
		}
	}

	return results, errs.ErrorOrNil()
}

// ImportArticle folds the full history of one document. Revisions committed
// before a failure stay in the graph.
func (im *Importer) ImportArticle(ctx context.Context, title string) DocumentResult {
	title = model.NormalizeTitle(title)
	log := im.Logger.WithFields(logrus.Fields{"title": title, "run_id": im.RunID})
	res := DocumentResult{Title: title}

	state, status, err := im.openDocument(ctx, title)
	if err != nil {
		return im.finish(log, res, StatusFailed, err)
	}
	if status == StatusSkipped {
		log.Info("document already exists, skipping")
		return im.finish(log, res, StatusSkipped, nil)
	}
	// Revisions up to resumeFrom were committed by an earlier run.
	resumed := state.Started()
	resumeFrom, _ := state.PreviousRevision()
	if resumed {
		res.LastRevisionID = resumeFrom
		log.WithField("revision_id", resumeFrom).Info("resuming document")
	}

	doc := driver.NodeRef{Label: model.LabelDocument, Key: model.KeyDocument, Value: title}
	for raw, err := range im.Source.History(ctx, title) {
		if err != nil {
			return im.finish(log, res, StatusFailed, fmt.Errorf("failed to read history of %q: %w", title, err))
		}
		if err := ctx.Err(); err != nil {
			return im.finish(log, res, StatusFailed, err)
		}

		if resumed && raw.ID <= resumeFrom {
			im.Metrics.Revision(Skipped.String())
			continue
		}

		var step StepResult
		step, state = im.foldRevision(ctx, log, doc, state, raw)
		im.Metrics.Revision(step.Outcome.String())
		if step.Outcome == Fatal {
			return im.finish(log, res, StatusFailed, step.Err)
		}
		res.Committed++
		res.LastRevisionID = step.RevisionID
	}

	return im.finish(log, res, status, nil)
}

func (im *Importer) finish(log logrus.FieldLogger, res DocumentResult, status Status, err error) DocumentResult {
	res.Status = status
	res.Err = err
	im.Metrics.Document(status.String())

	entry := log.WithFields(logrus.Fields{"status": status, "committed": res.Committed})
	if err != nil {
		entry.WithError(err).Error("document import failed")
	} else if status != StatusSkipped {
		entry.Info("document imported")
	}
	return res
}

// openDocument creates the Document node, or in resume mode rebuilds the
// fold state of an existing one.
func (im *Importer) openDocument(ctx context.Context, title string) (fold.State, Status, error) {
	doc := model.Document{
		Title:      title,
		ImportedAt: im.Now().UTC(),
		ImportRun:  im.RunID,
	}

	tx, err := im.Driver.Begin(ctx)
	if err != nil {
		return fold.State{}, StatusFailed, fmt.Errorf("failed to begin transaction for %q: %w", title, err)
	}
	_, err = tx.CreateNode(ctx, model.LabelDocument, doc.Properties())
	if err == nil {
		err = tx.Commit(ctx)
	} else {
		_ = tx.Rollback(ctx)
	}

	switch {
	case err == nil:
		return fold.New(), StatusImported, nil
	case !errors.Is(err, driver.ErrKeyConflict):
		return fold.State{}, StatusFailed, fmt.Errorf("failed to create document %q: %w", title, err)
	case !im.Options.Resume:
		return fold.State{}, StatusSkipped, nil
	}

	hist, err := im.Driver.DocumentHistory(ctx, title)
	if err != nil {
		return fold.State{}, StatusFailed, fmt.Errorf("failed to load history of %q: %w", title, err)
	}
	return fold.Restore(fold.Checkpoint{
		Revisions:      hist.Revisions,
		LastRevisionID: hist.LastRevisionID,
		LastTimestamp:  hist.LastTimestamp,
		ContentHashes:  hist.ContentHashes,
	}), StatusResumed, nil
}

// foldRevision writes one revision in its own transaction and returns the
// state for the next one. On failure the state is returned unchanged.
func (im *Importer) foldRevision(ctx context.Context, log logrus.FieldLogger, doc driver.NodeRef, state fold.State, raw model.RawRevision) (StepResult, fold.State) {
	res := StepResult{RevisionID: raw.ID}
	rev, c := im.Builder.Build(raw)
	title := doc.Value.(string)

	tx, err := im.Driver.Begin(ctx)
	if err != nil {
		res.Outcome, res.Err = Fatal, fmt.Errorf("failed to begin transaction for revision %d of %q: %w", rev.ID, title, err)
		return res, state
	}

	start := time.Now()
	step, err := im.writeRevision(ctx, tx, doc, state, rev, c)
	if err != nil {
		_ = tx.Rollback(ctx)
		res.Outcome, res.Err = Fatal, err
		return res, state
	}
	if err := tx.Commit(ctx); err != nil {
		res.Outcome, res.Err = Fatal, fmt.Errorf("failed to commit revision %d of %q: %w", rev.ID, title, err)
		return res, state
	}
	im.Metrics.CommitDuration(time.Since(start))

	kind := "unchanged"
	switch {
	case step.Change:
		kind = "change"
	case step.Revert:
		kind = "revert"
	}
	im.Metrics.ContentStep(kind)
	head, _ := state.PreviousContent()
	log.WithFields(logrus.Fields{
		"revision_id": rev.ID,
		"hash":        c.Hash,
		"edit_head":   head,
		"kind":        kind,
	}).Debug("revision committed")

	res.Outcome = Committed
	return res, state.Advance(step)
}

func (im *Importer) writeRevision(ctx context.Context, tx driver.Tx, doc driver.NodeRef, state fold.State, rev model.Revision, c model.Content) (fold.Step, error) {
	title := doc.Value.(string)

	revRef, err := tx.CreateNode(ctx, model.LabelRevision, rev.Properties())
	if errors.Is(err, driver.ErrKeyConflict) {
		return fold.Step{}, &DuplicateRevisionError{Title: title, RevisionID: rev.ID}
	}
	if err != nil {
		return fold.Step{}, fmt.Errorf("failed to create revision %d of %q: %w", rev.ID, title, err)
	}

	if im.Options.VerifyOrder {
		if err := state.CheckOrder(rev); err != nil {
			return fold.Step{}, &OutOfOrderError{Title: title, RevisionID: rev.ID, Err: err}
		}
	}

	step := state.Plan(rev, c)

	contentRef, err := tx.MergeNode(ctx, model.LabelContent, model.KeyContent, c.Properties())
	if err != nil {
		return fold.Step{}, fmt.Errorf("failed to merge content %s: %w", c.Hash, err)
	}

	links := []link{
		{doc, model.RelContains, revRef},
		{revRef, model.RelChangedTo, contentRef},
	}
	if step.LinkParent {
		parent := driver.NodeRef{Label: model.LabelRevision, Key: model.KeyRevision, Value: step.Parent}
		links = append(links, link{parent, model.RelParentOf, revRef})
	}
	if step.LinkEdit {
		from := driver.NodeRef{Label: model.LabelContent, Key: model.KeyContent, Value: step.EditFrom}
		links = append(links, link{from, model.RelEdit, contentRef})
	}

	for _, l := range links {
		if err := tx.CreateRelationship(ctx, l.from, l.relType, l.to); err != nil {
			return fold.Step{}, fmt.Errorf("failed to link revision %d of %q: %w", rev.ID, title, err)
		}
	}
	return step, nil
}

type link struct {
	from    driver.NodeRef
	relType string
	to      driver.NodeRef
}
