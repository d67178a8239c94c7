package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// AnalyzePricelistTask is scheduled each time a pricelist is uploaded.
	AnalyzePricelistTask = "pricelist:analyze"
	// ProcessPricelistTask runs the full batch pipeline for an analyzed session.
	ProcessPricelistTask = "pricelist:process"
	// IngestDocumentTask extracts and chunks a knowledge document.
	IngestDocumentTask = "document:ingest"
)

// PricelistPayload is serialized into analyze/process tasks so the worker
// knows which object to download from MinIO.
type PricelistPayload struct {
	SessionID string `json:"session_id"`
	ObjectKey string `json:"object_key"`
	FileName  string `json:"file_name"`
}

// DocumentPayload is the ingest task payload.
type DocumentPayload struct {
	DocumentID string `json:"document_id"`
	ObjectKey  string `json:"object_key"`
	FileName   string `json:"file_name"`
}

// EnqueueAnalyze enqueues a structure-analysis job.
func EnqueueAnalyze(ctx context.Context, client *asynq.Client, payload PricelistPayload) error {
	return enqueue(ctx, client, AnalyzePricelistTask, payload)
}

// EnqueueProcess enqueues a batch-processing job.
func EnqueueProcess(ctx context.Context, client *asynq.Client, payload PricelistPayload) error {
	return enqueue(ctx, client, ProcessPricelistTask, payload)
}

// EnqueueIngest enqueues a document-ingest job.
func EnqueueIngest(ctx context.Context, client *asynq.Client, payload DocumentPayload) error {
	return enqueue(ctx, client, IngestDocumentTask, payload)
}

func enqueue(ctx context.Context, client *asynq.Client, taskType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}
