package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DocumentStatus enumerates the lifecycle of a knowledge document.
type DocumentStatus string

const (
	DocQueued     DocumentStatus = "queued"
	DocProcessing DocumentStatus = "processing"
	DocCompleted  DocumentStatus = "completed"
	DocFailed     DocumentStatus = "failed"
)

// Document represents a row in the documents table. ContentHash deduplicates
// re-uploads of the same file.
type Document struct {
	ID           string         `json:"id"`
	FileName     string         `json:"fileName"`
	ContentHash  string         `json:"contentHash"`
	Status       DocumentStatus `json:"status"`
	Content      string         `json:"content,omitempty"`
	ErrorMessage *string        `json:"errorMessage,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// DocumentRepository wraps the documents and document_chunks tables.
type DocumentRepository struct {
	pool *pgxpool.Pool
}

// NewDocumentRepository constructs a repository.
func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{pool: pool}
}

// Create inserts a queued document. ErrDuplicate is returned when a document
// with the same content hash already exists.
func (r *DocumentRepository) Create(ctx context.Context, doc *Document) error {
	now := time.Now().UTC()
	doc.Status = DocQueued
	doc.CreatedAt = now
	doc.UpdatedAt = now
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO documents (id, file_name, content_hash, status, content, error_message, created_at, updated_at)
		VALUES ($1,$2,$3,$4,'',NULL,$5,$6)
		ON CONFLICT (content_hash) DO NOTHING
	`, doc.ID, doc.FileName, doc.ContentHash, doc.Status, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicate
	}
	return nil
}

// ErrDuplicate signals a content-hash collision on insert.
var ErrDuplicate = errors.New("document already exists")

// GetByHash returns the document with the given content hash, if any.
func (r *DocumentRepository) GetByHash(ctx context.Context, hash string) (*Document, error) {
	return r.get(ctx, `WHERE content_hash=$1`, hash)
}

// Get returns a document by id.
func (r *DocumentRepository) Get(ctx context.Context, id string) (*Document, error) {
	return r.get(ctx, `WHERE id=$1`, id)
}

func (r *DocumentRepository) get(ctx context.Context, where string, arg any) (*Document, error) {
	var (
		doc      Document
		errorMsg sql.NullString
	)
	row := r.pool.QueryRow(ctx, `
		SELECT id, file_name, content_hash, status, COALESCE(content,''), error_message, created_at, updated_at
		FROM documents `+where, arg)
	if err := row.Scan(&doc.ID, &doc.FileName, &doc.ContentHash, &doc.Status, &doc.Content, &errorMsg, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("select document: %w", err)
	}
	if errorMsg.Valid {
		msg := errorMsg.String
		doc.ErrorMessage = &msg
	}
	return &doc, nil
}

// MarkProcessing sets the status to processing.
func (r *DocumentRepository) MarkProcessing(ctx context.Context, id string) error {
	return r.updateStatus(ctx, id, DocProcessing, nil, nil)
}

// MarkFailed marks the ingest attempt as failed and stores the message.
func (r *DocumentRepository) MarkFailed(ctx context.Context, id, msg string) error {
	return r.updateStatus(ctx, id, DocFailed, nil, &msg)
}

// MarkCompleted stores the extracted text and flips the status.
func (r *DocumentRepository) MarkCompleted(ctx context.Context, id, content string) error {
	return r.updateStatus(ctx, id, DocCompleted, &content, nil)
}

func (r *DocumentRepository) updateStatus(ctx context.Context, id string, status DocumentStatus, content, errorMsg *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET status=$1,
			content = COALESCE($2, content),
			error_message = $3,
			updated_at=$4
		WHERE id=$5
	`, status, content, errorMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return nil
}

// ReplaceChunks deletes and rewrites the chunk set for a document in one
// transaction. Chunk rows cascade away when the parent document is deleted.
func (r *DocumentRepository) ReplaceChunks(ctx context.Context, documentID string, chunks []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin chunks: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM document_chunks WHERE document_id=$1`, documentID); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	for i, body := range chunks {
		if _, err := tx.Exec(ctx, `
			INSERT INTO document_chunks (id, document_id, seq, body) VALUES ($1,$2,$3,$4)
		`, uuid.NewString(), documentID, i, body); err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunks: %w", err)
	}
	return nil
}

// Chunks returns the chunk bodies for a document in order.
func (r *DocumentRepository) Chunks(ctx context.Context, documentID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT body FROM document_chunks WHERE document_id=$1 ORDER BY seq
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("select chunks: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, body)
	}
	return out, rows.Err()
}
