package ingest

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/JonMunkholm/celllog/internal/logging"
)

// Inserter stores one document. Implementations bound and retry the write
// themselves; a returned error is final.
type Inserter interface {
	Insert(ctx context.Context, doc Document) error
}

// Archiver moves or removes source files. Archive returns the backup path.
// SetAside returns false when no failed directory is configured.
type Archiver interface {
	Archive(path string) (string, error)
	Discard(path string) error
	SetAside(path string) (string, bool, error)
}

// Recorder journals outcomes and answers whether a file's content was stored
// by a run that could not archive it.
type Recorder interface {
	Record(ctx context.Context, o Outcome) error
	Unarchived(ctx context.Context, fileName, checksum string) (bool, error)
}

// Deps are the collaborators of a Pipeline. Enricher and Journal may be nil.
type Deps struct {
	Store    Inserter
	Archiver Archiver
	Enricher Enricher
	Journal  Recorder
	Now      func() time.Time
}

// Options tune pipeline behavior.
type Options struct {
	// SettleDelay is the pause between a successful commit and the backup move.
	SettleDelay time.Duration

	// WriteEmpty stores documents whose rows were all filtered out.
	WriteEmpty bool
}

// Pipeline runs the per-file stages. It keeps no per-file state, so one
// Pipeline serves any number of concurrent Process calls.
type Pipeline struct {
	store    Inserter
	archiver Archiver
	enricher Enricher
	journal  Recorder
	now      func() time.Time
	opts     Options
}

// NewPipeline builds a Pipeline. Store and Archiver are required.
func NewPipeline(deps Deps, opts Options) *Pipeline {
	p := &Pipeline{
		store:    deps.Store,
		archiver: deps.Archiver,
		enricher: deps.Enricher,
		journal:  deps.Journal,
		now:      deps.Now,
		opts:     opts,
	}
	if p.enricher == nil {
		p.enricher = NopEnricher{}
	}
	if p.journal == nil {
		p.journal = nopRecorder{}
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Process runs one file through validation, parsing, cleansing, commit and
// archival. It never panics on bad input and always returns an Outcome; the
// outcome is journaled before returning.
func (p *Pipeline) Process(ctx context.Context, path string) Outcome {
	out := Outcome{
		File:    filepath.Base(path),
		Path:    path,
		Stage:   StageObserved,
		Started: p.now(),
	}
	out.TaskID, _ = logging.TaskID(ctx)
	logger := logging.WithFields(ctx, "file", out.File)

	out.Err = p.run(ctx, path, &out, logger)
	out.Finished = p.now()

	p.report(logger, out)
	if err := p.journal.Record(ctx, out); err != nil {
		logger.Error("journal record failed", "error", err)
	}
	return out
}

func (p *Pipeline) run(ctx context.Context, path string, out *Outcome, logger *slog.Logger) error {
	out.Stage = StageValidating
	if err := ValidateFile(path); err != nil {
		return p.fail(path, out, logger, err)
	}

	out.Stage = StageParsing
	logger.Info("reading file")
	table, err := ReadTable(ctx, path)
	if err != nil {
		return p.fail(path, out, logger, err)
	}
	out.Checksum = table.Checksum
	out.Skipped = table.Skipped

	stored, err := p.journal.Unarchived(ctx, out.File, table.Checksum)
	if err != nil {
		logger.Warn("journal lookup failed", "error", err)
	}
	if stored {
		logger.Info("content stored by an unarchived run, archiving without insert")
		out.Committed = true
		out.Stage = StageCommitting
		return p.archive(path, out)
	}

	out.Stage = StageCleansing
	rows, err := Cleanse(out.File, table.Rows)
	if err != nil {
		return p.fail(path, out, logger, err)
	}
	out.Rows = len(rows)

	if len(rows) > 0 {
		if err := p.enricher.Enrich(ctx, rows); err != nil {
			logger.Warn("enrichment incomplete", "error", err)
		}
	}

	out.Stage = StageCommitting
	if len(rows) == 0 && !p.opts.WriteEmpty {
		logger.Info("no rows survived cleansing, archiving without insert")
		return p.archive(path, out)
	}

	doc := BuildDocument(path, rows, p.now())
	logger.Info("storing document", "document_id", doc.ID, "rows", len(rows))
	if err := p.store.Insert(ctx, doc); err != nil {
		return p.fail(path, out, logger, &CommitError{File: out.File, Err: err})
	}
	out.DocumentID = doc.ID.String()
	out.Committed = true

	sleepCtx(ctx, p.opts.SettleDelay)
	return p.archive(path, out)
}

// archive moves a stored file to backup. It deliberately ignores ctx: once a
// document is stored the move must be attempted.
func (p *Pipeline) archive(path string, out *Outcome) error {
	dst, err := p.archiver.Archive(path)
	if err != nil {
		out.Result = ResultUnarchived
		return &ArchivalError{File: out.File, Err: err}
	}
	out.Destination = dst
	out.Result = ResultArchived
	return nil
}

// fail applies the failure policy for err and returns it.
func (p *Pipeline) fail(path string, out *Outcome, logger *slog.Logger, err error) error {
	switch Classify(err) {
	case KindVanished:
		out.Result = ResultSkipped

	case KindCommit:
		out.Result = ResultRetained
		dst, moved, moveErr := p.archiver.SetAside(path)
		switch {
		case moveErr != nil:
			logger.Error("could not set failed file aside", "error", moveErr)
		case moved:
			out.Result = ResultSetAside
			out.Destination = dst
		}

	default:
		// Rejected, unparsable or unreadable input is not retried.
		if derr := p.archiver.Discard(path); derr != nil {
			logger.Error("could not delete file", "error", derr)
			out.Result = ResultRetained
			return errors.Join(err, derr)
		}
		out.Result = ResultDeleted
	}
	return err
}

func (p *Pipeline) report(logger *slog.Logger, out Outcome) {
	attrs := []any{
		"stage", out.Stage,
		"result", out.Result,
		"rows", out.Rows,
		"duration_ms", out.Duration().Milliseconds(),
	}
	if out.Skipped > 0 {
		attrs = append(attrs, "skipped_lines", out.Skipped)
	}
	if out.Destination != "" {
		attrs = append(attrs, "destination", out.Destination)
	}
	if out.Err == nil {
		logger.Info("file processed", attrs...)
		return
	}

	info := Describe(out.Err)
	attrs = append(attrs, "code", info.Code, "error", out.Err)
	switch Classify(out.Err) {
	case KindRejected:
		logger.Info("file rejected", attrs...)
	case KindVanished:
		logger.Debug("file vanished", attrs...)
	case KindArchival:
		attrs = append(attrs, "alert", true)
		logger.Error("stored file was not archived", attrs...)
	default:
		logger.Error("file failed", attrs...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Outcome) error { return nil }

func (nopRecorder) Unarchived(context.Context, string, string) (bool, error) { return false, nil }
