// Package model contains the struct definitions shared across the ingestion
// pipeline, the HTTP API, and the worker.
package model

import (
	"time"
)

// SessionStatus describes the lifecycle of one pricelist upload. A session
// moves strictly forward through these states; "failed" is reachable from any
// non-terminal state.
type SessionStatus string

const (
	SessionReceived    SessionStatus = "received"
	SessionAnalyzing   SessionStatus = "analyzing"
	SessionAnalyzed    SessionStatus = "analyzed"
	SessionConfiguring SessionStatus = "configuring"
	SessionProcessing  SessionStatus = "processing"
	SessionCompleted   SessionStatus = "completed"
	SessionFailed      SessionStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// Stage is the batch processor's internal phase, exposed to polling clients.
type Stage string

const (
	StageExtracting Stage = "extracting"
	StageProcessing Stage = "processing"
	StageSaving     Stage = "saving"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

// Progress is the snapshot returned by the status endpoint. Percent is
// clamped to [0,100] and never decreases within one session.
type Progress struct {
	Stage               Stage      `json:"stage"`
	Percent             float64    `json:"percent"`
	ItemsProcessed      int        `json:"itemsProcessed"`
	TotalItems          int        `json:"totalItems"`
	Message             string     `json:"message,omitempty"`
	StartedAt           *time.Time `json:"startedAt,omitempty"`
	EstimatedCompletion *time.Time `json:"estimatedCompletion,omitempty"`
}

// Result summarizes a finished processing run. It is written once when the
// session reaches a terminal state and is immutable thereafter.
type Result struct {
	TotalProcessed    int       `json:"totalProcessed"`
	SuccessfullySaved int       `json:"successfullySaved"`
	Failed            int       `json:"failed"`
	CompletedAt       time.Time `json:"completedAt"`
}

// Session is one end-to-end run of the ingestion pipeline for a single
// uploaded file.
type Session struct {
	ID           string           `json:"id"`
	FileName     string           `json:"fileName"`
	ObjectKey    string           `json:"-"`
	Status       SessionStatus    `json:"status"`
	Report       *StructureReport `json:"report,omitempty"`
	Overrides    *ConfigOverrides `json:"-"`
	Config       *PricingConfig   `json:"config,omitempty"`
	Progress     Progress         `json:"progress"`
	Result       *Result          `json:"result,omitempty"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}
