package models

import (
	"encoding/json"
	"time"
)

type IssueStatus string

const (
	StatusSubmitted    IssueStatus = "submitted"
	StatusAcknowledged IssueStatus = "acknowledged"
	StatusInProgress   IssueStatus = "in_progress"
	StatusUnderReview  IssueStatus = "under_review"
	StatusResolved     IssueStatus = "resolved"
	StatusClosed       IssueStatus = "closed"
	StatusRejected     IssueStatus = "rejected"
)

func IsValidStatus(status IssueStatus) bool {
	switch status {
	case StatusSubmitted, StatusAcknowledged, StatusInProgress,
		StatusUnderReview, StatusResolved, StatusClosed, StatusRejected:
		return true
	}
	return false
}

// IsTerminalStatus reports whether the status permits no further transitions.
func IsTerminalStatus(status IssueStatus) bool {
	return status == StatusClosed || status == StatusRejected
}

type IssuePriority string

const (
	PriorityLow      IssuePriority = "low"
	PriorityMedium   IssuePriority = "medium"
	PriorityHigh     IssuePriority = "high"
	PriorityCritical IssuePriority = "critical"
)

// TimelineEntry is one immutable audit record of an action taken against an
// issue. Entries are append-only and never reordered.
type TimelineEntry struct {
	ID          int64           `json:"id" db:"id"`
	IssueID     string          `json:"issue_id" db:"issue_id"`
	Action      string          `json:"action" db:"action"`
	Description string          `json:"description" db:"description"`
	ActorID     string          `json:"actor_id" db:"actor_id"`
	Metadata    json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

type Issue struct {
	ID                 string          `json:"id" db:"id"`
	TrackingRef        string          `json:"tracking_ref" db:"tracking_ref"`
	Title              string          `json:"title" db:"title"`
	Description        string          `json:"description" db:"description"`
	Category           string          `json:"category" db:"category"`
	Department         string          `json:"department" db:"department"`
	Status             IssueStatus     `json:"status" db:"status"`
	Priority           IssuePriority   `json:"priority" db:"priority"`
	ReporterID         string          `json:"reporter_id" db:"reporter_id"`
	AssignedTo         *string         `json:"assigned_to,omitempty" db:"assigned_to"`
	AssignedDepartment *string         `json:"assigned_department,omitempty" db:"assigned_department"`
	AssignedAt         *time.Time      `json:"assigned_at,omitempty" db:"assigned_at"`
	Upvotes            int             `json:"upvotes" db:"upvotes"`
	ResolvedAt         *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
	Timeline           []TimelineEntry `json:"timeline,omitempty"`
}

type Comment struct {
	ID        string    `json:"id" db:"id"`
	IssueID   string    `json:"issue_id" db:"issue_id"`
	AuthorID  string    `json:"author_id" db:"author_id"`
	Body      string    `json:"body" db:"body"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
