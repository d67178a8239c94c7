// Package repository wraps all SQL used throughout the API and worker.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/pricedrop/internal/model"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// SessionRepository persists pricelist sessions, their structure reports,
// resolved configuration, and progress snapshots.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository constructs a repository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create inserts a freshly received session before analysis begins. Upload
// time config overrides travel with the session until resolution.
func (r *SessionRepository) Create(ctx context.Context, s *model.Session) error {
	now := time.Now().UTC()
	s.Status = model.SessionReceived
	s.CreatedAt = now
	s.UpdatedAt = now
	var overridesRaw []byte
	if s.Overrides != nil {
		var err error
		if overridesRaw, err = json.Marshal(s.Overrides); err != nil {
			return fmt.Errorf("encode overrides: %w", err)
		}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO pricelist_sessions (id, file_name, object_key, status, overrides, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, s.ID, s.FileName, s.ObjectKey, s.Status, overridesRaw, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get returns a session by id, including report, config, progress, and the
// result when the session is terminal.
func (r *SessionRepository) Get(ctx context.Context, id string) (*model.Session, error) {
	var (
		s              model.Session
		reportRaw      []byte
		overridesRaw   []byte
		configRaw      []byte
		stage          sql.NullString
		progressMsg    sql.NullString
		startedAt      sql.NullTime
		estimated      sql.NullTime
		totalProcessed sql.NullInt64
		saved          sql.NullInt64
		failed         sql.NullInt64
		completedAt    sql.NullTime
		errorMsg       sql.NullString
	)
	row := r.pool.QueryRow(ctx, `
		SELECT id, file_name, object_key, status, report, overrides, config,
		       stage, percent, items_processed, total_items, progress_message,
		       processing_started_at, estimated_completion,
		       total_processed, successfully_saved, failed_count, completed_at,
		       error_message, created_at, updated_at
		FROM pricelist_sessions WHERE id=$1
	`, id)
	err := row.Scan(&s.ID, &s.FileName, &s.ObjectKey, &s.Status, &reportRaw, &overridesRaw, &configRaw,
		&stage, &s.Progress.Percent, &s.Progress.ItemsProcessed, &s.Progress.TotalItems, &progressMsg,
		&startedAt, &estimated,
		&totalProcessed, &saved, &failed, &completedAt,
		&errorMsg, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("select session: %w", err)
	}
	if len(reportRaw) > 0 {
		s.Report = &model.StructureReport{}
		if err := json.Unmarshal(reportRaw, s.Report); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
	}
	if len(overridesRaw) > 0 {
		s.Overrides = &model.ConfigOverrides{}
		if err := json.Unmarshal(overridesRaw, s.Overrides); err != nil {
			return nil, fmt.Errorf("decode overrides: %w", err)
		}
	}
	if len(configRaw) > 0 {
		s.Config = &model.PricingConfig{}
		if err := json.Unmarshal(configRaw, s.Config); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	if stage.Valid {
		s.Progress.Stage = model.Stage(stage.String)
	}
	if progressMsg.Valid {
		s.Progress.Message = progressMsg.String
	}
	if startedAt.Valid {
		t := startedAt.Time
		s.Progress.StartedAt = &t
	}
	if estimated.Valid {
		t := estimated.Time
		s.Progress.EstimatedCompletion = &t
	}
	if completedAt.Valid {
		s.Result = &model.Result{
			TotalProcessed:    int(totalProcessed.Int64),
			SuccessfullySaved: int(saved.Int64),
			Failed:            int(failed.Int64),
			CompletedAt:       completedAt.Time,
		}
	}
	if errorMsg.Valid {
		s.ErrorMessage = errorMsg.String
	}
	return &s, nil
}

// SetStatus moves the session lifecycle forward.
func (r *SessionRepository) SetStatus(ctx context.Context, id string, status model.SessionStatus) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE pricelist_sessions SET status=$1, updated_at=$2 WHERE id=$3
	`, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// SaveReport stores the structure report produced by analysis and marks the
// session analyzed. An unrecognized layout is still an analyzed session.
func (r *SessionRepository) SaveReport(ctx context.Context, id string, report *model.StructureReport) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		UPDATE pricelist_sessions SET status=$1, report=$2, updated_at=$3 WHERE id=$4
	`, model.SessionAnalyzed, raw, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// SaveConfig stores the resolved pricing configuration. The config is
// immutable once processing starts.
func (r *SessionRepository) SaveConfig(ctx context.Context, id string, cfg model.PricingConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		UPDATE pricelist_sessions SET status=$1, config=$2, updated_at=$3 WHERE id=$4
	`, model.SessionConfiguring, raw, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

// MarkFailed records a session-level failure with a human-readable message.
func (r *SessionRepository) MarkFailed(ctx context.Context, id, msg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE pricelist_sessions SET status=$1, stage=$2, error_message=$3, updated_at=$4 WHERE id=$5
	`, model.SessionFailed, model.StageFailed, msg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// UpdateProgress writes a progress snapshot. Implements pipeline.SessionStore.
func (r *SessionRepository) UpdateProgress(ctx context.Context, id string, p model.Progress) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE pricelist_sessions
		SET status=$1, stage=$2, percent=$3, items_processed=$4, total_items=$5,
		    progress_message=$6, processing_started_at=COALESCE($7, processing_started_at),
		    estimated_completion=$8, updated_at=$9
		WHERE id=$10
	`, model.SessionProcessing, p.Stage, p.Percent, p.ItemsProcessed, p.TotalItems,
		p.Message, p.StartedAt, p.EstimatedCompletion, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// Complete records the terminal result. The result columns are written once
// and never touched again.
func (r *SessionRepository) Complete(ctx context.Context, id string, p model.Progress, result model.Result) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE pricelist_sessions
		SET status=$1, stage=$2, percent=$3, items_processed=$4, total_items=$5,
		    progress_message=$6, estimated_completion=NULL,
		    total_processed=$7, successfully_saved=$8, failed_count=$9, completed_at=$10,
		    updated_at=$11
		WHERE id=$12
	`, model.SessionCompleted, p.Stage, p.Percent, p.ItemsProcessed, p.TotalItems,
		p.Message, result.TotalProcessed, result.SuccessfullySaved, result.Failed,
		result.CompletedAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	return nil
}

// Fail records a session-level failure together with whatever partial counts
// were accumulated before it. Implements pipeline.SessionStore.
func (r *SessionRepository) Fail(ctx context.Context, id string, p model.Progress, result *model.Result, reason string) error {
	var totalProcessed, saved, failed *int
	var completedAt *time.Time
	if result != nil {
		totalProcessed = &result.TotalProcessed
		saved = &result.SuccessfullySaved
		failed = &result.Failed
		completedAt = &result.CompletedAt
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE pricelist_sessions
		SET status=$1, stage=$2, percent=$3, items_processed=$4, total_items=$5,
		    progress_message=$6, error_message=$7, estimated_completion=NULL,
		    total_processed=$8, successfully_saved=$9, failed_count=$10, completed_at=$11,
		    updated_at=$12
		WHERE id=$13
	`, model.SessionFailed, model.StageFailed, p.Percent, p.ItemsProcessed, p.TotalItems,
		p.Message, reason, totalProcessed, saved, failed, completedAt,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("fail session: %w", err)
	}
	return nil
}
