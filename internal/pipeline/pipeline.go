// Package pipeline drives the multi-stage ingestion run for one session:
// extract, normalize, validate, and persist in sequential batches while
// keeping a monotonic progress snapshot for polling clients.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dharsanguruparan/pricedrop/internal/detect"
	"github.com/dharsanguruparan/pricedrop/internal/model"
	"github.com/dharsanguruparan/pricedrop/internal/pricing"
	"github.com/dharsanguruparan/pricedrop/internal/sheet"
)

// ErrNoExtractableBrands aborts a run whose structure report resolved no
// complete brand column map.
var ErrNoExtractableBrands = errors.New("no extractable brands")

// ProductSink persists one batch of normalized products. Implementations
// may be remote; the pipeline retries transient failures per batch.
type ProductSink interface {
	SaveBatch(ctx context.Context, sessionID string, batch []model.NormalizedProduct) error
}

// SessionStore receives progress and terminal state for a session. Writes
// happen at stage and batch boundaries only.
type SessionStore interface {
	UpdateProgress(ctx context.Context, sessionID string, progress model.Progress) error
	Complete(ctx context.Context, sessionID string, progress model.Progress, result model.Result) error
	Fail(ctx context.Context, sessionID string, progress model.Progress, result *model.Result, reason string) error
}

const (
	saveAttempts = 3
	saveBackoff  = 500 * time.Millisecond
)

// Runner executes processing runs. Batches within one session are strictly
// sequential; concurrent sessions get independent Run state.
type Runner struct {
	sink  ProductSink
	store SessionStore
}

// NewRunner constructs a Runner.
func NewRunner(sink ProductSink, store SessionStore) *Runner {
	return &Runner{sink: sink, store: store}
}

// Process runs the full pipeline for one session. Per-row and per-batch
// failures are folded into counters; only a no-brand report, cancellation,
// or a systemic persistence failure fails the session. The returned error is
// non-nil only for session-level failures, which have already been recorded
// in the store.
func (r *Runner) Process(ctx context.Context, sessionID string, grid sheet.Grid, report *model.StructureReport, cfg model.PricingConfig) (model.Result, error) {
	tr := newTracker()

	fail := func(reason string, result *model.Result, err error) (model.Result, error) {
		progress := tr.stage(model.StageFailed, reason)
		if storeErr := r.store.Fail(ctx, sessionID, progress, result, reason); storeErr != nil {
			log.Printf("session %s: record failure: %v", sessionID, storeErr)
		}
		var out model.Result
		if result != nil {
			out = *result
		}
		return out, err
	}

	_ = r.store.UpdateProgress(ctx, sessionID, tr.stage(model.StageExtracting, "Extracting products..."))

	if len(report.ReadyBrands()) == 0 {
		return fail(ErrNoExtractableBrands.Error(), nil, ErrNoExtractableBrands)
	}
	rows := detect.Extract(grid, report)
	total := len(rows)
	tr.setTotal(total)
	if total == 0 {
		return fail("no product rows extracted", nil, ErrNoExtractableBrands)
	}

	_ = r.store.UpdateProgress(ctx, sessionID, tr.progressMsg(fmt.Sprintf("Processing %d products...", total)))

	var (
		processed   int
		saved       int
		failedRows  int
		batchCount  int
		failedSaves int
		lastSaveErr error
	)

	for start := 0; start < total; start += cfg.BatchSize {
		// Cancellation is only honored between batches so a partially
		// written batch never skews the counters.
		if err := ctx.Err(); err != nil {
			result := resultSnapshot(processed, saved, failedRows)
			return fail("processing cancelled", &result, err)
		}

		end := start + cfg.BatchSize
		if end > total {
			end = total
		}
		batch := rows[start:end]
		batchCount++

		keep := make([]model.NormalizedProduct, 0, len(batch))
		for _, raw := range batch {
			product, outcome := normalizeRow(raw, cfg)
			switch outcome {
			case rowOK:
				keep = append(keep, product)
			case rowSkipped:
				// Excluded from the saved count, still part of
				// total processed.
			case rowFailed:
				failedRows++
			case rowFailedKept:
				keep = append(keep, product)
				failedRows++
			}
		}
		processed += len(batch)

		_ = r.store.UpdateProgress(ctx, sessionID, tr.batch(model.StageSaving, processed, "Saving to database..."))

		if len(keep) > 0 {
			if err := r.saveWithRetry(ctx, sessionID, keep); err != nil {
				log.Printf("session %s: batch %d dropped after %d attempts: %v", sessionID, batchCount, saveAttempts, err)
				failedRows += len(keep)
				failedSaves++
				lastSaveErr = err
			} else {
				saved += len(keep)
			}
		}

		_ = r.store.UpdateProgress(ctx, sessionID, tr.batch(model.StageProcessing, processed, fmt.Sprintf("Processed %d of %d products", processed, total)))
	}

	result := resultSnapshot(processed, saved, failedRows)

	// Every batch failing to persist means the store itself is down, not a
	// bad batch. Partial counts survive into the failure report.
	if batchCount > 0 && failedSaves == batchCount {
		return fail(fmt.Sprintf("storage unreachable: %v", lastSaveErr), &result, lastSaveErr)
	}

	progress := tr.finish(fmt.Sprintf("Successfully processed %d products", saved))
	if err := r.store.Complete(ctx, sessionID, progress, result); err != nil {
		return result, fmt.Errorf("record completion: %w", err)
	}
	return result, nil
}

func (r *Runner) saveWithRetry(ctx context.Context, sessionID string, batch []model.NormalizedProduct) error {
	var err error
	for attempt := 1; attempt <= saveAttempts; attempt++ {
		err = r.sink.SaveBatch(ctx, sessionID, batch)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if attempt < saveAttempts {
			time.Sleep(saveBackoff * time.Duration(attempt))
		}
	}
	return err
}

type rowOutcome int

const (
	rowOK rowOutcome = iota
	rowSkipped
	rowFailed
	// rowFailedKept rows stay in the batch but still count as failed.
	rowFailedKept
)

// normalizeRow applies the normalizer and the configured validation rules to
// one extracted row.
func normalizeRow(raw model.RawProductRow, cfg model.PricingConfig) (model.NormalizedProduct, rowOutcome) {
	if cfg.RequireBrand && raw.Brand == "" {
		return model.NormalizedProduct{}, rowFailed
	}
	if cfg.RequireCode && raw.ProductCode == "" {
		return model.NormalizedProduct{}, rowFailed
	}

	product, err := pricing.Normalize(raw, cfg)
	if err != nil {
		// Unparseable price. The row survives as non-priceable unless
		// configuration says to drop it, but it always counts as failed.
		if cfg.RequirePrice || cfg.SkipInvalidPrices {
			return model.NormalizedProduct{}, rowFailed
		}
		return model.NormalizedProduct{
			Brand:       raw.Brand,
			ProductCode: raw.ProductCode,
			Currency:    cfg.Currency,
			RowIndex:    raw.RowIndex,
		}, rowFailedKept
	}

	if !product.Priceable {
		// Price on request: retained unless configured otherwise.
		if cfg.RequirePrice {
			return model.NormalizedProduct{}, rowFailed
		}
		if cfg.SkipInvalidPrices {
			return model.NormalizedProduct{}, rowSkipped
		}
		return product, rowOK
	}

	if excl := product.PriceExclVAT; excl != nil {
		f, _ := excl.Float64()
		if f < cfg.MinPrice || f > cfg.MaxPrice {
			return model.NormalizedProduct{}, rowFailed
		}
	}
	return product, rowOK
}

func resultSnapshot(processed, saved, failed int) model.Result {
	return model.Result{
		TotalProcessed:    processed,
		SuccessfullySaved: saved,
		Failed:            failed,
		CompletedAt:       time.Now().UTC(),
	}
}
