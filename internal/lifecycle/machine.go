// Package lifecycle owns the canonical status of an issue and records an
// immutable, append-only timeline entry for every transition.
package lifecycle

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/models"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/notification"
)

// allowedNext encodes the directed transition graph:
// submitted → acknowledged → in_progress → under_review → resolved → closed,
// with rejected reachable from every non-terminal state.
var allowedNext = map[models.IssueStatus]models.IssueStatus{
	models.StatusSubmitted:    models.StatusAcknowledged,
	models.StatusAcknowledged: models.StatusInProgress,
	models.StatusInProgress:   models.StatusUnderReview,
	models.StatusUnderReview:  models.StatusResolved,
	models.StatusResolved:     models.StatusClosed,
}

func canTransition(from, to models.IssueStatus) bool {
	if models.IsTerminalStatus(from) {
		return false
	}
	if to == models.StatusRejected {
		return true
	}
	return allowedNext[from] == to
}

// IssueStore is the persistence surface the machine mutates issues through.
// Lifecycle state is never written by direct field updates elsewhere.
type IssueStore interface {
	GetIssue(ctx context.Context, issueID string) (models.Issue, error)
	UpdateStatus(ctx context.Context, issueID string, status models.IssueStatus, resolvedAt *time.Time, entry models.TimelineEntry) (models.Issue, error)
	SetAssignment(ctx context.Context, issueID string, assigneeID *string, department string, entry models.TimelineEntry) (models.Issue, error)
	AppendTimeline(ctx context.Context, entry models.TimelineEntry) error
	ToggleUpvote(ctx context.Context, issueID, userID string) (count int, upvoted bool, err error)
	AddComment(ctx context.Context, issueID, authorID, body string) (models.Comment, error)
}

// UserDirectory resolves acting identities for authorization checks.
type UserDirectory interface {
	GetUserByID(ctx context.Context, userID string) (models.User, error)
}

// Dispatcher receives exactly one dispatch request per successful transition
// or assignment. Fan-out failures never fail the triggering operation.
type Dispatcher interface {
	Dispatch(ctx context.Context, evt notification.Event) (notification.DispatchResult, error)
}

// RoomEmitter pushes raw domain events to the issue's broadcast room.
type RoomEmitter interface {
	EmitToIssue(issueID, event string, payload interface{})
}

type Machine interface {
	Transition(ctx context.Context, issueID string, newStatus models.IssueStatus, actorID, notes string) (models.Issue, error)
	Assign(ctx context.Context, issueID string, assigneeID *string, department, actorID string) (models.Issue, error)
	RecordSocialEvent(ctx context.Context, issueID, kind, actorID string, payload map[string]interface{}) error
	ToggleUpvote(ctx context.Context, issueID, actorID string) (count int, upvoted bool, err error)
	AddComment(ctx context.Context, issueID, actorID, body string) (models.Comment, error)
}

// lockStripes bounds the lock table: issues hash onto a fixed set of
// mutexes instead of one mutex per issue ID.
const lockStripes = 64

type machine struct {
	store      IssueStore
	users      UserDirectory
	dispatcher Dispatcher
	rooms      RoomEmitter
	logger     zerolog.Logger
	locks      [lockStripes]sync.Mutex
}

func NewMachine(store IssueStore, users UserDirectory, dispatcher Dispatcher, rooms RoomEmitter, logger zerolog.Logger) Machine {
	return &machine{
		store:      store,
		users:      users,
		dispatcher: dispatcher,
		rooms:      rooms,
		logger:     logger.With().Str("component", "lifecycle").Logger(),
	}
}

// lock serializes operations on a single issue. Concurrent transitions on
// different issues proceed in parallel unless they collide on a stripe.
func (m *machine) lock(issueID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(issueID))
	return &m.locks[h.Sum32()%lockStripes]
}

func (m *machine) Transition(ctx context.Context, issueID string, newStatus models.IssueStatus, actorID, notes string) (models.Issue, error) {
	if !models.IsValidStatus(newStatus) {
		return models.Issue{}, &InvalidTransitionError{To: newStatus}
	}

	mu := m.lock(issueID)
	mu.Lock()
	defer mu.Unlock()

	issue, err := m.loadIssue(ctx, issueID)
	if err != nil {
		return models.Issue{}, err
	}
	actor, err := m.loadActor(ctx, actorID)
	if err != nil {
		return models.Issue{}, err
	}
	if !canMutateIssue(actor, issue) {
		return models.Issue{}, ErrForbidden
	}
	if !canTransition(issue.Status, newStatus) {
		return models.Issue{}, &InvalidTransitionError{From: issue.Status, To: newStatus}
	}

	var resolvedAt *time.Time
	if newStatus == models.StatusResolved {
		now := time.Now().UTC()
		resolvedAt = &now
	}

	entry := models.TimelineEntry{
		IssueID:     issueID,
		Action:      "status_changed",
		Description: fmt.Sprintf("Status changed from %s to %s", issue.Status, newStatus),
		ActorID:     actorID,
		Metadata: mustMetadata(map[string]interface{}{
			"from":  issue.Status,
			"to":    newStatus,
			"notes": notes,
		}),
	}

	oldStatus := issue.Status
	updated, err := m.store.UpdateStatus(ctx, issueID, newStatus, resolvedAt, entry)
	if err != nil {
		return models.Issue{}, err
	}

	m.notify(ctx, notification.Event{
		Kind:     models.NotificationIssueUpdated,
		Priority: eventPriority(updated.Priority),
		IssueID:  issueID,
		ActorID:  actorID,
		Title:    fmt.Sprintf("Issue %s updated", updated.TrackingRef),
		Message:  fmt.Sprintf("Status changed from %s to %s", oldStatus, newStatus),
	})

	if m.rooms != nil {
		m.rooms.EmitToIssue(issueID, "issue_updated", map[string]interface{}{
			"issueId":   issueID,
			"status":    newStatus,
			"updatedBy": actorID,
			"timestamp": time.Now().UTC(),
		})
	}

	return updated, nil
}

func (m *machine) Assign(ctx context.Context, issueID string, assigneeID *string, department, actorID string) (models.Issue, error) {
	mu := m.lock(issueID)
	mu.Lock()
	defer mu.Unlock()

	issue, err := m.loadIssue(ctx, issueID)
	if err != nil {
		return models.Issue{}, err
	}
	actor, err := m.loadActor(ctx, actorID)
	if err != nil {
		return models.Issue{}, err
	}
	if !models.HasAtLeast(actor.Roles, models.RoleDepartmentHead) {
		return models.Issue{}, ErrForbidden
	}

	description := fmt.Sprintf("Assigned to department %s", department)
	if assigneeID != nil {
		assignee, err := m.users.GetUserByID(ctx, *assigneeID)
		if err != nil {
			return models.Issue{}, ErrInvalidAssignee
		}
		if assignee.Department != department {
			return models.Issue{}, ErrInvalidAssignee
		}
		description = fmt.Sprintf("Assigned to %s %s (%s)", assignee.FirstName, assignee.LastName, department)
	}

	entry := models.TimelineEntry{
		IssueID:     issueID,
		Action:      "assigned",
		Description: description,
		ActorID:     actorID,
		Metadata: mustMetadata(map[string]interface{}{
			"assignee_id": assigneeID,
			"department":  department,
		}),
	}

	updated, err := m.store.SetAssignment(ctx, issueID, assigneeID, department, entry)
	if err != nil {
		return models.Issue{}, err
	}

	recipients := []string{issue.ReporterID}
	if assigneeID != nil {
		recipients = append(recipients, *assigneeID)
	}
	m.notify(ctx, notification.Event{
		Kind:         models.NotificationIssueAssigned,
		Priority:     eventPriority(updated.Priority),
		IssueID:      issueID,
		ActorID:      actorID,
		RecipientIDs: recipients,
		Title:        fmt.Sprintf("Issue %s assigned", updated.TrackingRef),
		Message:      description,
	})

	return updated, nil
}

// RecordSocialEvent writes an audit record for actions that do not change
// status (comments, upvotes).
func (m *machine) RecordSocialEvent(ctx context.Context, issueID, kind, actorID string, payload map[string]interface{}) error {
	if _, err := m.loadIssue(ctx, issueID); err != nil {
		return err
	}
	if _, err := m.loadActor(ctx, actorID); err != nil {
		return err
	}
	return m.store.AppendTimeline(ctx, models.TimelineEntry{
		IssueID:     issueID,
		Action:      kind,
		Description: fmt.Sprintf("Recorded %s", kind),
		ActorID:     actorID,
		Metadata:    mustMetadata(payload),
	})
}

func (m *machine) ToggleUpvote(ctx context.Context, issueID, actorID string) (int, bool, error) {
	mu := m.lock(issueID)
	mu.Lock()
	defer mu.Unlock()

	issue, err := m.loadIssue(ctx, issueID)
	if err != nil {
		return 0, false, err
	}

	count, upvoted, err := m.store.ToggleUpvote(ctx, issueID, actorID)
	if err != nil {
		return 0, false, err
	}

	action := "upvote_removed"
	if upvoted {
		action = "upvoted"
	}
	if err := m.store.AppendTimeline(ctx, models.TimelineEntry{
		IssueID:     issueID,
		Action:      action,
		Description: fmt.Sprintf("Upvote count is now %d", count),
		ActorID:     actorID,
		Metadata:    mustMetadata(map[string]interface{}{"count": count}),
	}); err != nil {
		m.logger.Error().Err(err).Str("issue_id", issueID).Msg("failed to record upvote timeline entry")
	}

	if upvoted {
		m.notify(ctx, notification.Event{
			Kind:    models.NotificationIssueUpvoted,
			IssueID: issueID,
			ActorID: actorID,
			Title:   fmt.Sprintf("Issue %s received an upvote", issue.TrackingRef),
			Message: fmt.Sprintf("Your report now has %d upvotes", count),
		})
	}

	return count, upvoted, nil
}

func (m *machine) AddComment(ctx context.Context, issueID, actorID, body string) (models.Comment, error) {
	issue, err := m.loadIssue(ctx, issueID)
	if err != nil {
		return models.Comment{}, err
	}
	if _, err := m.loadActor(ctx, actorID); err != nil {
		return models.Comment{}, err
	}

	comment, err := m.store.AddComment(ctx, issueID, actorID, body)
	if err != nil {
		return models.Comment{}, err
	}

	if err := m.store.AppendTimeline(ctx, models.TimelineEntry{
		IssueID:     issueID,
		Action:      "commented",
		Description: "Comment added",
		ActorID:     actorID,
		Metadata:    mustMetadata(map[string]interface{}{"comment_id": comment.ID}),
	}); err != nil {
		m.logger.Error().Err(err).Str("issue_id", issueID).Msg("failed to record comment timeline entry")
	}

	m.notify(ctx, notification.Event{
		Kind:      models.NotificationCommentAdded,
		IssueID:   issueID,
		CommentID: comment.ID,
		ActorID:   actorID,
		Title:     fmt.Sprintf("New comment on issue %s", issue.TrackingRef),
		Message:   body,
	})

	if m.rooms != nil {
		m.rooms.EmitToIssue(issueID, "comment_added", map[string]interface{}{
			"issueId":   issueID,
			"comment":   comment,
			"author":    actorID,
			"timestamp": comment.CreatedAt,
		})
	}

	return comment, nil
}

func (m *machine) loadIssue(ctx context.Context, issueID string) (models.Issue, error) {
	issue, err := m.store.GetIssue(ctx, issueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Issue{}, ErrNotFound
		}
		return models.Issue{}, err
	}
	return issue, nil
}

func (m *machine) loadActor(ctx context.Context, actorID string) (models.User, error) {
	actor, err := m.users.GetUserByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrUnauthorized
		}
		return models.User{}, err
	}
	if !actor.IsActive {
		return models.User{}, ErrUnauthorized
	}
	return actor, nil
}

// canMutateIssue: administrators may act on any issue; department heads and
// field officers only within their own department.
func canMutateIssue(actor models.User, issue models.Issue) bool {
	if models.HasRole(actor.Roles, models.RoleAdmin) {
		return true
	}
	if !models.HasAtLeast(actor.Roles, models.RoleFieldOfficer) {
		return false
	}
	return actor.Department != "" && actor.Department == issue.Department
}

// notify hands off fan-out; the triggering operation already succeeded, so
// dispatch errors are logged and swallowed.
func (m *machine) notify(ctx context.Context, evt notification.Event) {
	if m.dispatcher == nil {
		return
	}
	result, err := m.dispatcher.Dispatch(ctx, evt)
	if err != nil {
		m.logger.Error().Err(err).Str("event_kind", string(evt.Kind)).Msg("notification dispatch failed")
		return
	}
	for _, recErr := range result.Errors {
		m.logger.Warn().Err(recErr.Err).
			Str("recipient_id", recErr.RecipientID).
			Str("event_kind", string(evt.Kind)).
			Msg("notification fan-out partially failed")
	}
}

func eventPriority(p models.IssuePriority) notification.EventPriority {
	if p == models.PriorityCritical {
		return notification.EventPriorityCritical
	}
	return notification.EventPriorityNormal
}

func mustMetadata(payload map[string]interface{}) json.RawMessage {
	if len(payload) == 0 {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return raw
}
