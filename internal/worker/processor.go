package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/pricedrop/internal/detect"
	"github.com/dharsanguruparan/pricedrop/internal/docs"
	"github.com/dharsanguruparan/pricedrop/internal/model"
	"github.com/dharsanguruparan/pricedrop/internal/pipeline"
	"github.com/dharsanguruparan/pricedrop/internal/pricing"
	"github.com/dharsanguruparan/pricedrop/internal/queue"
	"github.com/dharsanguruparan/pricedrop/internal/repository"
	"github.com/dharsanguruparan/pricedrop/internal/s3storage"
	"github.com/dharsanguruparan/pricedrop/internal/sheet"
)

// SessionStore is the slice of the session repository the worker drives:
// lifecycle writes plus the progress sink the pipeline needs.
type SessionStore interface {
	pipeline.SessionStore
	Get(ctx context.Context, id string) (*model.Session, error)
	SetStatus(ctx context.Context, id string, status model.SessionStatus) error
	SaveReport(ctx context.Context, id string, report *model.StructureReport) error
	MarkFailed(ctx context.Context, id, msg string) error
}

// Processor is plugged into the asynq worker loop. Each session task owns
// its progress state exclusively; the only shared resource is the pgx pool
// behind the repositories.
type Processor struct {
	sessions   SessionStore
	documents  *repository.DocumentRepository
	store      *s3storage.Storage
	classifier detect.Classifier
	runner     *pipeline.Runner
	defaults   model.PricingConfig
}

// NewProcessor constructs a worker processor.
func NewProcessor(
	sessions SessionStore,
	products pipeline.ProductSink,
	documents *repository.DocumentRepository,
	store *s3storage.Storage,
	classifier detect.Classifier,
	defaults model.PricingConfig,
) *Processor {
	return &Processor{
		sessions:   sessions,
		documents:  documents,
		store:      store,
		classifier: classifier,
		runner:     pipeline.NewRunner(products, sessions),
		defaults:   defaults,
	}
}

// Handler registers the task handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.AnalyzePricelistTask, p.handleAnalyze)
	mux.HandleFunc(queue.ProcessPricelistTask, p.handleProcess)
	mux.HandleFunc(queue.IngestDocumentTask, p.handleIngest)
	return mux
}

func (p *Processor) handleAnalyze(ctx context.Context, task *asynq.Task) error {
	var payload queue.PricelistPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	failure := func(err error) error {
		log.Printf("analyze failed for %s: %v", payload.SessionID, err)
		_ = p.sessions.MarkFailed(ctx, payload.SessionID, err.Error())
		return err
	}
	if err := p.sessions.SetStatus(ctx, payload.SessionID, model.SessionAnalyzing); err != nil {
		return failure(err)
	}
	grid, err := p.loadGrid(ctx, payload.ObjectKey, payload.FileName)
	if err != nil {
		// Unreadable files are terminal; retrying cannot fix them.
		return errors.Join(failure(err), asynq.SkipRetry)
	}
	report, err := p.classifier.Classify(ctx, grid)
	if err != nil {
		return failure(err)
	}
	if err := p.sessions.SaveReport(ctx, payload.SessionID, report); err != nil {
		return failure(err)
	}
	log.Printf("session %s analyzed: layout=%s brands=%d rows=%d", payload.SessionID, report.Layout, len(report.Brands), report.EstimatedTotal)
	return nil
}

func (p *Processor) handleProcess(ctx context.Context, task *asynq.Task) error {
	var payload queue.PricelistPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	session, err := p.sessions.Get(ctx, payload.SessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if session.Status.Terminal() {
		// A retried task must not disturb a finished session.
		log.Printf("session %s already %s, skipping", session.ID, session.Status)
		return nil
	}

	grid, err := p.loadGrid(ctx, payload.ObjectKey, payload.FileName)
	if err != nil {
		_ = p.sessions.MarkFailed(ctx, payload.SessionID, err.Error())
		return errors.Join(err, asynq.SkipRetry)
	}

	report := session.Report
	if report == nil {
		if report, err = p.classifier.Classify(ctx, grid); err != nil {
			_ = p.sessions.MarkFailed(ctx, payload.SessionID, err.Error())
			return err
		}
	}

	cfg := p.defaults
	if session.Config != nil {
		cfg = *session.Config
	} else {
		resolved, err := pricing.Resolve(nil, pricing.Recommend(report, p.defaults))
		if err != nil {
			_ = p.sessions.MarkFailed(ctx, payload.SessionID, err.Error())
			return errors.Join(err, asynq.SkipRetry)
		}
		cfg = resolved
	}

	result, err := p.runner.Process(ctx, payload.SessionID, grid, report, cfg)
	if err != nil {
		if errors.Is(err, pipeline.ErrNoExtractableBrands) {
			// Deterministic failure, already recorded on the session.
			return errors.Join(err, asynq.SkipRetry)
		}
		return err
	}
	log.Printf("session %s completed: %d processed, %d saved, %d failed",
		payload.SessionID, result.TotalProcessed, result.SuccessfullySaved, result.Failed)
	return nil
}

func (p *Processor) handleIngest(ctx context.Context, task *asynq.Task) error {
	var payload queue.DocumentPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	failure := func(err error) error {
		log.Printf("ingest failed for %s: %v", payload.DocumentID, err)
		_ = p.documents.MarkFailed(ctx, payload.DocumentID, err.Error())
		return err
	}
	if err := p.documents.MarkProcessing(ctx, payload.DocumentID); err != nil {
		return failure(err)
	}
	data, err := p.store.DownloadRaw(ctx, payload.ObjectKey)
	if err != nil {
		return failure(err)
	}
	text, err := docs.ExtractText(payload.FileName, data)
	if err != nil {
		return errors.Join(failure(err), asynq.SkipRetry)
	}
	chunks := docs.Chunk(text, docs.DefaultChunkSize)
	if err := p.documents.ReplaceChunks(ctx, payload.DocumentID, chunks); err != nil {
		return failure(err)
	}
	if err := p.documents.MarkCompleted(ctx, payload.DocumentID, text); err != nil {
		return failure(err)
	}
	log.Printf("document %s ingested (%d chunks, %d bytes)", payload.DocumentID, len(chunks), len(text))
	return nil
}

func (p *Processor) loadGrid(ctx context.Context, objectKey, fileName string) (sheet.Grid, error) {
	data, err := p.store.DownloadRaw(ctx, objectKey)
	if err != nil {
		return nil, err
	}
	return sheet.Load(fileName, data)
}
