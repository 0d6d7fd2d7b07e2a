// Package jobstore is the persistent job queue: idempotent enqueue, priority
// claim with skip-locked concurrency safety, exponential-backoff retry, and a
// dead-letter terminal state (SPEC_FULL.md §4.2, §3).
//
// Grounded on original_source/app/models/background_job.py for the schema and
// invariants, and on the teacher's pkg/db/transaction.go for the
// transaction-scoped access pattern. Deliberately hand-rolled on pgx rather
// than riverqueue/river — see DESIGN.md for why River's API doesn't expose
// the exact semantics this store needs.
package jobstore

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobType is the closed set of job type tags.
type JobType string

const (
	TypeFinOpsAnalysis  JobType = "finops_analysis"
	TypeZombieScan      JobType = "zombie_scan"
	TypeZombieAnalysis  JobType = "zombie_analysis"
	TypeRemediation     JobType = "remediation"
	TypeWebhookRetry    JobType = "webhook_retry"
	TypeNotification    JobType = "notification"
	TypeCostIngestion   JobType = "cost_ingestion"
	TypeRecurringBilling JobType = "recurring_billing"
	TypeReportGeneration JobType = "report_generation"
	TypeCostForecast    JobType = "cost_forecast"
	TypeCostExport      JobType = "cost_export"
	TypeCostAggregation JobType = "cost_aggregation"
	TypeDunning         JobType = "dunning"
)

// ValidTypes is the complete closed set of job types.
var ValidTypes = map[JobType]bool{
	TypeFinOpsAnalysis: true, TypeZombieScan: true, TypeZombieAnalysis: true,
	TypeRemediation: true, TypeWebhookRetry: true, TypeNotification: true,
	TypeCostIngestion: true, TypeRecurringBilling: true, TypeReportGeneration: true,
	TypeCostForecast: true, TypeCostExport: true, TypeCostAggregation: true,
	TypeDunning: true,
}

// UserEnqueueableTypes is the subset an authenticated user may directly
// request via the enqueue surface (§6).
var UserEnqueueableTypes = map[JobType]bool{
	TypeFinOpsAnalysis: true, TypeZombieScan: true, TypeNotification: true,
}

// Status is one of the five job lifecycle states.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusDeadLetter Status = "dead_letter"
)

// DefaultMaxAttempts applies to every type except webhook_retry.
const DefaultMaxAttempts = 3

// WebhookMaxAttempts is the higher retry cap for webhook_retry jobs.
const WebhookMaxAttempts = 5

// BackoffBase is the base B in the retry formula scheduled_for = now + B*2^(attempts-1).
const BackoffBase = 60 * time.Second

// CancellationDelay is the fixed reschedule delay for a cancelled job,
// independent of attempts (L2).
const CancellationDelay = 60 * time.Second

// Job is a single row of the persistent queue.
type Job struct {
	ID           uuid.UUID
	Type         JobType
	TenantID     *uuid.UUID
	Status       Status
	Priority     int
	DedupKey     *string
	Payload      json.RawMessage
	Result       json.RawMessage
	Attempts     int
	MaxAttempts  int
	ScheduledFor time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage *string
	CreatedAt    time.Time
	IsDeleted    bool
}

// EnqueueParams are the inputs to Enqueue.
type EnqueueParams struct {
	Type         JobType
	TenantID     *uuid.UUID
	Payload      json.RawMessage
	ScheduledFor *time.Time
	MaxAttempts  int
	Priority     int
	DedupKey     *string
}

// StatusCounts maps status to the count of non-deleted jobs in that status.
type StatusCounts map[Status]int64

// ListFilter describes the admin job-list query (§6).
type ListFilter struct {
	TenantID  *uuid.UUID
	Status    *Status
	SortBy    string // created_at | scheduled_for | status
	SortDesc  bool
	Limit     int // caller-supplied, clamped to [1,100]
}
