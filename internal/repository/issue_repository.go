package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/models"
)

type IssueRepository interface {
	CreateIssue(ctx context.Context, params CreateIssueParams) (models.Issue, error)
	GetIssue(ctx context.Context, issueID string) (models.Issue, error)
	ListIssues(ctx context.Context, params ListIssuesParams) ([]models.Issue, error)
	UpdateStatus(ctx context.Context, issueID string, status models.IssueStatus, resolvedAt *time.Time, entry models.TimelineEntry) (models.Issue, error)
	SetAssignment(ctx context.Context, issueID string, assigneeID *string, department string, entry models.TimelineEntry) (models.Issue, error)
	AppendTimeline(ctx context.Context, entry models.TimelineEntry) error
	ToggleUpvote(ctx context.Context, issueID, userID string) (count int, upvoted bool, err error)
	AddComment(ctx context.Context, issueID, authorID, body string) (models.Comment, error)
	ListParticipants(ctx context.Context, issueID string) ([]string, error)
}

type CreateIssueParams struct {
	Title       string
	Description string
	Category    string
	Department  string
	Priority    models.IssuePriority
	ReporterID  string
}

type ListIssuesParams struct {
	Department string
	Status     models.IssueStatus
	Limit      int
	Offset     int
}

type issueRepository struct {
	db *sql.DB
}

func NewIssueRepository(db *sql.DB) IssueRepository {
	return &issueRepository{db: db}
}

const issueColumns = `id, tracking_ref, title, description, category, department, status, priority,
	reporter_id, assigned_to, assigned_department, assigned_at, upvotes, resolved_at, created_at, updated_at`

// newTrackingRef builds the human-readable reference citizens quote when
// following up on a report, e.g. RPT-2026-4F9A2C1B.
func newTrackingRef() string {
	token := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("RPT-%d-%s", time.Now().Year(), token)
}

func (r *issueRepository) CreateIssue(ctx context.Context, params CreateIssueParams) (models.Issue, error) {
	if params.Priority == "" {
		params.Priority = models.PriorityMedium
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Issue{}, err
	}
	defer tx.Rollback()

	const insertIssue = `
		INSERT INTO civic.issues (tracking_ref, title, description, category, department, status, priority, reporter_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + issueColumns

	issue, err := scanIssue(tx.QueryRowContext(ctx, insertIssue,
		newTrackingRef(),
		strings.TrimSpace(params.Title),
		strings.TrimSpace(params.Description),
		strings.TrimSpace(params.Category),
		strings.TrimSpace(params.Department),
		models.StatusSubmitted,
		params.Priority,
		params.ReporterID,
	))
	if err != nil {
		return models.Issue{}, err
	}

	// Seed the audit trail with the creation entry.
	const insertEntry = `
		INSERT INTO civic.issue_timeline (issue_id, action, description, actor_id)
		VALUES ($1, 'created', 'Issue reported', $2)
		RETURNING id, created_at`

	var seed models.TimelineEntry
	seed.IssueID = issue.ID
	seed.Action = "created"
	seed.Description = "Issue reported"
	seed.ActorID = params.ReporterID
	if err := tx.QueryRowContext(ctx, insertEntry, issue.ID, params.ReporterID).Scan(&seed.ID, &seed.CreatedAt); err != nil {
		return models.Issue{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Issue{}, err
	}

	issue.Timeline = []models.TimelineEntry{seed}
	return issue, nil
}

func (r *issueRepository) GetIssue(ctx context.Context, issueID string) (models.Issue, error) {
	const query = `
		SELECT ` + issueColumns + `
		FROM civic.issues
		WHERE id = $1 AND deleted_at IS NULL`

	issue, err := scanIssue(r.db.QueryRowContext(ctx, query, issueID))
	if err != nil {
		return models.Issue{}, err
	}

	timeline, err := r.loadTimeline(ctx, issueID)
	if err != nil {
		return models.Issue{}, err
	}
	issue.Timeline = timeline
	return issue, nil
}

func (r *issueRepository) loadTimeline(ctx context.Context, issueID string) ([]models.TimelineEntry, error) {
	const query = `
		SELECT id, issue_id, action, description, actor_id, metadata, created_at
		FROM civic.issue_timeline
		WHERE issue_id = $1
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.TimelineEntry
	for rows.Next() {
		var entry models.TimelineEntry
		var metadata []byte
		if err := rows.Scan(&entry.ID, &entry.IssueID, &entry.Action, &entry.Description, &entry.ActorID, &metadata, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			entry.Metadata = metadata
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *issueRepository) ListIssues(ctx context.Context, params ListIssuesParams) ([]models.Issue, error) {
	if params.Limit <= 0 || params.Limit > 100 {
		params.Limit = 25
	}

	query := `
		SELECT ` + issueColumns + `
		FROM civic.issues
		WHERE deleted_at IS NULL`
	args := []interface{}{}

	if params.Department != "" {
		args = append(args, params.Department)
		query += fmt.Sprintf(" AND department = $%d", len(args))
	}
	if params.Status != "" {
		args = append(args, params.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, params.Limit, params.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var issues []models.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

// UpdateStatus changes the issue status and appends the matching timeline
// entry in a single transaction, so a recorded transition always has its
// audit record and vice versa.
func (r *issueRepository) UpdateStatus(ctx context.Context, issueID string, status models.IssueStatus, resolvedAt *time.Time, entry models.TimelineEntry) (models.Issue, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Issue{}, err
	}
	defer tx.Rollback()

	const update = `
		UPDATE civic.issues
		SET status = $2, resolved_at = COALESCE($3, resolved_at), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + issueColumns

	issue, err := scanIssue(tx.QueryRowContext(ctx, update, issueID, status, resolvedAt))
	if err != nil {
		return models.Issue{}, err
	}

	if err := appendTimelineTx(ctx, tx, entry); err != nil {
		return models.Issue{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Issue{}, err
	}
	return issue, nil
}

func (r *issueRepository) SetAssignment(ctx context.Context, issueID string, assigneeID *string, department string, entry models.TimelineEntry) (models.Issue, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Issue{}, err
	}
	defer tx.Rollback()

	const update = `
		UPDATE civic.issues
		SET assigned_to = $2, assigned_department = $3, assigned_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + issueColumns

	issue, err := scanIssue(tx.QueryRowContext(ctx, update, issueID, assigneeID, department))
	if err != nil {
		return models.Issue{}, err
	}

	if err := appendTimelineTx(ctx, tx, entry); err != nil {
		return models.Issue{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Issue{}, err
	}
	return issue, nil
}

func (r *issueRepository) AppendTimeline(ctx context.Context, entry models.TimelineEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := appendTimelineTx(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

func appendTimelineTx(ctx context.Context, tx *sql.Tx, entry models.TimelineEntry) error {
	const insert = `
		INSERT INTO civic.issue_timeline (issue_id, action, description, actor_id, metadata)
		VALUES ($1, $2, $3, $4, $5)`

	var metadata interface{}
	if len(entry.Metadata) > 0 {
		metadata = []byte(entry.Metadata)
	}
	_, err := tx.ExecContext(ctx, insert, entry.IssueID, entry.Action, entry.Description, entry.ActorID, metadata)
	return err
}

// ToggleUpvote adds the user's upvote if absent and removes it if present,
// returning the resulting count and whether the user now has a vote.
func (r *issueRepository) ToggleUpvote(ctx context.Context, issueID, userID string) (int, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM civic.issue_upvotes WHERE issue_id = $1 AND user_id = $2`, issueID, userID)
	if err != nil {
		return 0, false, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}

	upvoted := removed == 0
	if upvoted {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO civic.issue_upvotes (issue_id, user_id) VALUES ($1, $2)`, issueID, userID); err != nil {
			return 0, false, err
		}
	}

	var count int
	const sync = `
		UPDATE civic.issues
		SET upvotes = (SELECT count(*) FROM civic.issue_upvotes WHERE issue_id = $1), updated_at = now()
		WHERE id = $1
		RETURNING upvotes`
	if err := tx.QueryRowContext(ctx, sync, issueID).Scan(&count); err != nil {
		return 0, false, err
	}

	if err := tx.Commit(); err != nil {
		return 0, false, err
	}
	return count, upvoted, nil
}

func (r *issueRepository) AddComment(ctx context.Context, issueID, authorID, body string) (models.Comment, error) {
	const insert = `
		INSERT INTO civic.issue_comments (issue_id, author_id, body)
		VALUES ($1, $2, $3)
		RETURNING id, issue_id, author_id, body, created_at`

	var comment models.Comment
	err := r.db.QueryRowContext(ctx, insert, issueID, authorID, strings.TrimSpace(body)).Scan(
		&comment.ID, &comment.IssueID, &comment.AuthorID, &comment.Body, &comment.CreatedAt)
	if err != nil {
		return models.Comment{}, err
	}
	return comment, nil
}

// ListParticipants returns the reporter plus everyone who commented.
func (r *issueRepository) ListParticipants(ctx context.Context, issueID string) ([]string, error) {
	const query = `
		SELECT reporter_id FROM civic.issues WHERE id = $1 AND deleted_at IS NULL
		UNION
		SELECT DISTINCT author_id FROM civic.issue_comments WHERE issue_id = $1`

	rows, err := r.db.QueryContext(ctx, query, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		participants = append(participants, id)
	}
	return participants, rows.Err()
}

func scanIssue(scanner interface {
	Scan(dest ...interface{}) error
}) (models.Issue, error) {
	var (
		issue      models.Issue
		assignedTo sql.NullString
		assignedDp sql.NullString
		assignedAt sql.NullTime
		resolvedAt sql.NullTime
	)

	if err := scanner.Scan(
		&issue.ID,
		&issue.TrackingRef,
		&issue.Title,
		&issue.Description,
		&issue.Category,
		&issue.Department,
		&issue.Status,
		&issue.Priority,
		&issue.ReporterID,
		&assignedTo,
		&assignedDp,
		&assignedAt,
		&issue.Upvotes,
		&resolvedAt,
		&issue.CreatedAt,
		&issue.UpdatedAt,
	); err != nil {
		return models.Issue{}, err
	}

	if assignedTo.Valid {
		issue.AssignedTo = &assignedTo.String
	}
	if assignedDp.Valid {
		issue.AssignedDepartment = &assignedDp.String
	}
	if assignedAt.Valid {
		issue.AssignedAt = &assignedAt.Time
	}
	if resolvedAt.Valid {
		issue.ResolvedAt = &resolvedAt.Time
	}

	return issue, nil
}
