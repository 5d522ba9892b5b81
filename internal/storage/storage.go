package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no cycle matches an id or id prefix.
var ErrNotFound = errors.New("cycle not found")

// CycleStatus is the lifecycle state of a recorded cycle.
type CycleStatus string

const (
	StatusPending   CycleStatus = "pending"
	StatusSucceeded CycleStatus = "succeeded"
	StatusFailed    CycleStatus = "failed"
)

// CycleRecord is the persisted form of one request cycle.
type CycleRecord struct {
	ID          string          `json:"id"`
	Request     string          `json:"request"`
	Kind        string          `json:"kind,omitempty"`
	Status      CycleStatus     `json:"status"`
	Provider    string          `json:"provider,omitempty"`
	Model       string          `json:"model,omitempty"`
	Profile     string          `json:"profile,omitempty"`
	Plugin      string          `json:"plugin,omitempty"`
	Output      string          `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
	Attempts    []AttemptRecord `json:"attempts,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt time.Time       `json:"completed_at,omitzero"`
}

// AttemptRecord is one validated and executed script within a cycle.
type AttemptRecord struct {
	Phase        string        `json:"phase"`
	Script       string        `json:"script"`
	Success      bool          `json:"success"`
	Stdout       string        `json:"stdout,omitempty"`
	Stderr       string        `json:"stderr,omitempty"`
	ErrorSummary string        `json:"error_summary,omitempty"`
	Errors       []string      `json:"errors,omitempty"`
	Warnings     []string      `json:"warnings,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// ListOptions controls filtering and pagination for ListCycles.
type ListOptions struct {
	Status CycleStatus
	Limit  int
	Offset int
}

// Store persists cycle history.
type Store interface {
	// RecordRequest inserts a pending cycle holding only the request. The
	// ID field must be set by the caller.
	RecordRequest(ctx context.Context, c *CycleRecord) error

	// CompleteCycle stores the final status, result and attempts.
	CompleteCycle(ctx context.Context, c *CycleRecord) error

	// GetCycle returns a cycle and its attempts by ID or ID prefix.
	GetCycle(ctx context.Context, id string) (*CycleRecord, error)

	// ListCycles returns cycles without attempts, newest first.
	ListCycles(ctx context.Context, opts ListOptions) ([]CycleRecord, error)

	// DeleteCycle removes a cycle and its attempts.
	DeleteCycle(ctx context.Context, id string) error

	Close() error
}
