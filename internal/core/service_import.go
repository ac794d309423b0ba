package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/JonMunkholm/gradebook/internal/logging"
	"github.com/google/uuid"
)

// ImportRows runs the import pipeline over already-tokenized rows without
// persisting anything. The acting user is taken from ctx.
func (s *Service) ImportRows(ctx context.Context, rows []RawRow) (ImportBatch, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return ImportBatch{}, err
	}
	return s.pipeline.ImportBatch(ctx, rows, actor)
}

// ImportCSV reads a CSV of results, validates every row, and inserts the
// valid ones. It holds an import slot for its whole duration.
//
// Errors returned are batch-level only: ErrMissingActor, ErrTooManyImports,
// ErrMalformedInput for unreadable input, or context errors. Row failures are
// reported in the summary.
func (s *Service) ImportCSV(ctx context.Context, r io.Reader) (*ImportSummary, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.importTimeout)
	defer cancel()

	start := time.Now()
	importID := uuid.New().String()
	log := logging.WithFields(ctx, "import_id", importID, "actor", actor)

	rows, err := ReadRows(r)
	if err != nil {
		log.Warn("import: unreadable input", "error", err)
		return nil, fmt.Errorf("read import: %w", err)
	}

	batch, err := s.pipeline.ImportBatch(ctx, rows, actor)
	if err != nil {
		log.Warn("import: batch aborted", "rows", len(rows), "error", err)
		return nil, fmt.Errorf("import batch: %w", err)
	}
	for _, rowErr := range batch.Errors {
		log.Debug("import: row rejected", "row", rowErr.RowNumber, "reason", rowErr.Reason)
	}

	summary := &ImportSummary{
		ImportID:     importID,
		Rows:         batch.Rows,
		Errors:       len(batch.Errors),
		ErrorDetails: batch.Errors,
		Skipped:      []SkippedRow{},
		Data:         ImportData{Results: []Result{}},
	}
	if summary.ErrorDetails == nil {
		summary.ErrorDetails = []ImportRowError{}
	}

	if len(batch.Accepted) > 0 {
		if err := s.persistBatch(ctx, batch, summary); err != nil {
			log.Error("import: insert failed", "accepted", len(batch.Accepted), "error", err)
			return nil, fmt.Errorf("insert results: %w", err)
		}
	}
	summary.Duration = time.Since(start)

	log.Info("import completed",
		"rows", summary.Rows,
		"imported", summary.Imported,
		"rejected", summary.Errors,
		"skipped", len(summary.Skipped),
		"duration_ms", summary.Duration.Milliseconds(),
	)

	s.recordActivity(ctx, ActivityResult, "Results imported",
		fmt.Sprintf("%d of %d rows imported, %d rejected, %d skipped",
			summary.Imported, summary.Rows, summary.Errors, len(summary.Skipped)),
		importID)

	return summary, nil
}

// persistBatch inserts the accepted candidates and fills in the summary.
// Duplicate-triple refusals become skipped rows; any other per-record
// failure is reported as skipped with the store's message.
func (s *Service) persistBatch(ctx context.Context, batch ImportBatch, summary *ImportSummary) error {
	candidates := batch.Results()

	res, err := s.store.InsertResults(ctx, candidates)
	if err != nil {
		return err
	}

	for _, i := range res.Inserted {
		summary.Data.Results = append(summary.Data.Results, candidates[i])
	}
	summary.Imported = len(res.Inserted)

	for _, f := range res.Failed {
		reason := ReasonDuplicateResult
		if !errors.Is(f.Err, ErrDuplicateResult) {
			reason = f.Err.Error()
		}
		c := candidates[f.Index]
		summary.Skipped = append(summary.Skipped, SkippedRow{
			RowNumber: batch.Accepted[f.Index].RowNumber,
			Reason:    reason,
			StudentID: c.StudentID,
			CourseID:  c.CourseID,
			Semester:  c.Semester,
		})
	}
	return nil
}
