package lifecycle

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/models"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/notification"
)

type fakeStore struct {
	mu       sync.Mutex
	issues   map[string]models.Issue
	timeline map[string][]models.TimelineEntry
	upvoters map[string]map[string]struct{}
	comments int
}

func newFakeStore(issues ...models.Issue) *fakeStore {
	s := &fakeStore{
		issues:   make(map[string]models.Issue),
		timeline: make(map[string][]models.TimelineEntry),
		upvoters: make(map[string]map[string]struct{}),
	}
	for _, issue := range issues {
		s.issues[issue.ID] = issue
	}
	return s
}

func (s *fakeStore) GetIssue(_ context.Context, issueID string) (models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[issueID]
	if !ok {
		return models.Issue{}, sql.ErrNoRows
	}
	return issue, nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, issueID string, status models.IssueStatus, resolvedAt *time.Time, entry models.TimelineEntry) (models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue := s.issues[issueID]
	issue.Status = status
	if resolvedAt != nil {
		issue.ResolvedAt = resolvedAt
	}
	s.issues[issueID] = issue
	s.timeline[issueID] = append(s.timeline[issueID], entry)
	return issue, nil
}

func (s *fakeStore) SetAssignment(_ context.Context, issueID string, assigneeID *string, department string, entry models.TimelineEntry) (models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue := s.issues[issueID]
	issue.AssignedTo = assigneeID
	issue.AssignedDepartment = &department
	s.issues[issueID] = issue
	s.timeline[issueID] = append(s.timeline[issueID], entry)
	return issue, nil
}

func (s *fakeStore) AppendTimeline(_ context.Context, entry models.TimelineEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeline[entry.IssueID] = append(s.timeline[entry.IssueID], entry)
	return nil
}

func (s *fakeStore) ToggleUpvote(_ context.Context, issueID, userID string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	voters, ok := s.upvoters[issueID]
	if !ok {
		voters = make(map[string]struct{})
		s.upvoters[issueID] = voters
	}
	_, upvoted := voters[userID]
	if upvoted {
		delete(voters, userID)
	} else {
		voters[userID] = struct{}{}
	}
	issue := s.issues[issueID]
	issue.Upvotes = len(voters)
	s.issues[issueID] = issue
	return issue.Upvotes, !upvoted, nil
}

func (s *fakeStore) AddComment(_ context.Context, issueID, authorID, body string) (models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments++
	return models.Comment{ID: "c1", IssueID: issueID, AuthorID: authorID, Body: body, CreatedAt: time.Now()}, nil
}

func (s *fakeStore) entries(issueID string) []models.TimelineEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.TimelineEntry(nil), s.timeline[issueID]...)
}

type fakeUsers struct {
	users map[string]models.User
}

func (u *fakeUsers) GetUserByID(_ context.Context, userID string) (models.User, error) {
	user, ok := u.users[userID]
	if !ok {
		return models.User{}, sql.ErrNoRows
	}
	return user, nil
}

type fakeDispatcher struct {
	mu     sync.Mutex
	events []notification.Event
}

func (d *fakeDispatcher) Dispatch(_ context.Context, evt notification.Event) (notification.DispatchResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, evt)
	return notification.DispatchResult{Created: 1}, nil
}

func (d *fakeDispatcher) dispatched() []notification.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]notification.Event(nil), d.events...)
}

type fakeRooms struct {
	mu     sync.Mutex
	events []string
}

func (r *fakeRooms) EmitToIssue(_, event string, _ interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func testIssue(id string, status models.IssueStatus) models.Issue {
	return models.Issue{
		ID:          id,
		TrackingRef: "RPT-2026-TEST0001",
		Title:       "Broken streetlight",
		Department:  "roads",
		Status:      status,
		Priority:    models.PriorityMedium,
		ReporterID:  "reporter",
	}
}

func testActors() *fakeUsers {
	return &fakeUsers{users: map[string]models.User{
		"officer": {
			ID:         "officer",
			Roles:      []models.UserRole{models.RoleFieldOfficer},
			Department: "roads",
			IsActive:   true,
		},
		"head": {
			ID:         "head",
			Roles:      []models.UserRole{models.RoleDepartmentHead},
			Department: "roads",
			IsActive:   true,
		},
		"admin": {
			ID:       "admin",
			Roles:    []models.UserRole{models.RoleAdmin},
			IsActive: true,
		},
		"reporter": {
			ID:       "reporter",
			Roles:    []models.UserRole{models.RoleCitizen},
			IsActive: true,
		},
		"outsider": {
			ID:         "outsider",
			Roles:      []models.UserRole{models.RoleFieldOfficer},
			Department: "parks",
			IsActive:   true,
		},
	}}
}

func newTestMachine(store *fakeStore) (Machine, *fakeDispatcher, *fakeRooms) {
	dispatcher := &fakeDispatcher{}
	rooms := &fakeRooms{}
	m := NewMachine(store, testActors(), dispatcher, rooms, zerolog.Nop())
	return m, dispatcher, rooms
}

func TestTransitionFollowsGraph(t *testing.T) {
	store := newFakeStore(testIssue("i1", models.StatusSubmitted))
	m, _, _ := newTestMachine(store)

	steps := []models.IssueStatus{
		models.StatusAcknowledged,
		models.StatusInProgress,
		models.StatusUnderReview,
		models.StatusResolved,
		models.StatusClosed,
	}
	for _, next := range steps {
		issue, err := m.Transition(context.Background(), "i1", next, "officer", "")
		require.NoError(t, err, "transition to %s", next)
		assert.Equal(t, next, issue.Status)
	}

	entries := store.entries("i1")
	require.Len(t, entries, len(steps))
	for _, entry := range entries {
		assert.Equal(t, "status_changed", entry.Action)
		assert.Equal(t, "officer", entry.ActorID)
	}
}

func TestTransitionRejectsSkippedStates(t *testing.T) {
	store := newFakeStore(testIssue("i1", models.StatusSubmitted))
	m, _, _ := newTestMachine(store)

	_, err := m.Transition(context.Background(), "i1", models.StatusResolved, "officer", "")
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err))

	// The failed attempt must leave no trace in the audit trail.
	assert.Empty(t, store.entries("i1"))
}

func TestTransitionRejectedFromAnyNonTerminalState(t *testing.T) {
	for _, from := range []models.IssueStatus{
		models.StatusSubmitted,
		models.StatusAcknowledged,
		models.StatusInProgress,
		models.StatusUnderReview,
		models.StatusResolved,
	} {
		store := newFakeStore(testIssue("i1", from))
		m, _, _ := newTestMachine(store)

		issue, err := m.Transition(context.Background(), "i1", models.StatusRejected, "officer", "duplicate")
		require.NoError(t, err, "rejecting from %s", from)
		assert.Equal(t, models.StatusRejected, issue.Status)
	}
}

func TestTransitionRefusedFromTerminalStates(t *testing.T) {
	for _, from := range []models.IssueStatus{models.StatusClosed, models.StatusRejected} {
		store := newFakeStore(testIssue("i1", from))
		m, _, _ := newTestMachine(store)

		_, err := m.Transition(context.Background(), "i1", models.StatusRejected, "admin", "")
		assert.True(t, IsInvalidTransition(err), "from %s", from)
	}
}

func TestTransitionAuthorization(t *testing.T) {
	store := newFakeStore(testIssue("i1", models.StatusSubmitted))
	m, _, _ := newTestMachine(store)

	// Citizens cannot drive the lifecycle.
	_, err := m.Transition(context.Background(), "i1", models.StatusAcknowledged, "reporter", "")
	assert.ErrorIs(t, err, ErrForbidden)

	// Officers from another department cannot either.
	_, err = m.Transition(context.Background(), "i1", models.StatusAcknowledged, "outsider", "")
	assert.ErrorIs(t, err, ErrForbidden)

	// Admins act across departments.
	_, err = m.Transition(context.Background(), "i1", models.StatusAcknowledged, "admin", "")
	assert.NoError(t, err)

	// Unknown actors are unauthorized, not forbidden.
	_, err = m.Transition(context.Background(), "i1", models.StatusInProgress, "ghost", "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestTransitionUnknownIssue(t *testing.T) {
	m, _, _ := newTestMachine(newFakeStore())
	_, err := m.Transition(context.Background(), "nope", models.StatusAcknowledged, "officer", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransitionStampsResolvedAt(t *testing.T) {
	store := newFakeStore(testIssue("i1", models.StatusUnderReview))
	m, _, _ := newTestMachine(store)

	issue, err := m.Transition(context.Background(), "i1", models.StatusResolved, "officer", "")
	require.NoError(t, err)
	require.NotNil(t, issue.ResolvedAt)
	assert.WithinDuration(t, time.Now(), *issue.ResolvedAt, time.Minute)
}

func TestTransitionDispatchesAndBroadcasts(t *testing.T) {
	store := newFakeStore(testIssue("i1", models.StatusSubmitted))
	m, dispatcher, rooms := newTestMachine(store)

	_, err := m.Transition(context.Background(), "i1", models.StatusAcknowledged, "officer", "")
	require.NoError(t, err)

	events := dispatcher.dispatched()
	require.Len(t, events, 1)
	assert.Equal(t, models.NotificationIssueUpdated, events[0].Kind)
	assert.Equal(t, "i1", events[0].IssueID)
	assert.Equal(t, "officer", events[0].ActorID)

	assert.Equal(t, []string{"issue_updated"}, rooms.events)
}

func TestCriticalIssueDispatchesCriticalEvent(t *testing.T) {
	issue := testIssue("i1", models.StatusSubmitted)
	issue.Priority = models.PriorityCritical
	store := newFakeStore(issue)
	m, dispatcher, _ := newTestMachine(store)

	_, err := m.Transition(context.Background(), "i1", models.StatusAcknowledged, "officer", "")
	require.NoError(t, err)

	events := dispatcher.dispatched()
	require.Len(t, events, 1)
	assert.Equal(t, notification.EventPriorityCritical, events[0].Priority)
}

func TestAssignRequiresDepartmentHead(t *testing.T) {
	store := newFakeStore(testIssue("i1", models.StatusAcknowledged))
	m, _, _ := newTestMachine(store)

	officer := "officer"
	_, err := m.Assign(context.Background(), "i1", &officer, "roads", "officer")
	assert.ErrorIs(t, err, ErrForbidden)

	issue, err := m.Assign(context.Background(), "i1", &officer, "roads", "head")
	require.NoError(t, err)
	require.NotNil(t, issue.AssignedTo)
	assert.Equal(t, "officer", *issue.AssignedTo)
}

func TestAssignRejectsCrossDepartmentAssignee(t *testing.T) {
	store := newFakeStore(testIssue("i1", models.StatusAcknowledged))
	m, _, _ := newTestMachine(store)

	outsider := "outsider"
	_, err := m.Assign(context.Background(), "i1", &outsider, "roads", "head")
	assert.ErrorIs(t, err, ErrInvalidAssignee)
}

func TestAssignNotifiesReporterAndAssignee(t *testing.T) {
	store := newFakeStore(testIssue("i1", models.StatusAcknowledged))
	m, dispatcher, _ := newTestMachine(store)

	officer := "officer"
	_, err := m.Assign(context.Background(), "i1", &officer, "roads", "head")
	require.NoError(t, err)

	events := dispatcher.dispatched()
	require.Len(t, events, 1)
	assert.Equal(t, models.NotificationIssueAssigned, events[0].Kind)
	assert.Equal(t, []string{"reporter", "officer"}, events[0].RecipientIDs)
}

func TestAddCommentRecordsTimelineAndDispatches(t *testing.T) {
	store := newFakeStore(testIssue("i1", models.StatusInProgress))
	m, dispatcher, rooms := newTestMachine(store)

	comment, err := m.AddComment(context.Background(), "i1", "reporter", "any update?")
	require.NoError(t, err)
	assert.Equal(t, "any update?", comment.Body)

	entries := store.entries("i1")
	require.Len(t, entries, 1)
	assert.Equal(t, "commented", entries[0].Action)

	events := dispatcher.dispatched()
	require.Len(t, events, 1)
	assert.Equal(t, models.NotificationCommentAdded, events[0].Kind)

	assert.Equal(t, []string{"comment_added"}, rooms.events)
}

func TestToggleUpvoteAppendsTimelineAndNotifies(t *testing.T) {
	store := newFakeStore(testIssue("i1", models.StatusSubmitted))
	m, dispatcher, _ := newTestMachine(store)

	count, upvoted, err := m.ToggleUpvote(context.Background(), "i1", "reporter")
	require.NoError(t, err)
	assert.True(t, upvoted)
	assert.Equal(t, 1, count)

	entries := store.entries("i1")
	require.Len(t, entries, 1)
	assert.Equal(t, "upvoted", entries[0].Action)

	events := dispatcher.dispatched()
	require.Len(t, events, 1)
	assert.Equal(t, models.NotificationIssueUpvoted, events[0].Kind)
}

func TestToggleUpvoteRoundTrip(t *testing.T) {
	store := newFakeStore(testIssue("i1", models.StatusSubmitted))
	m, dispatcher, _ := newTestMachine(store)

	count, upvoted, err := m.ToggleUpvote(context.Background(), "i1", "reporter")
	require.NoError(t, err)
	assert.True(t, upvoted)
	assert.Equal(t, 1, count)

	count, upvoted, err = m.ToggleUpvote(context.Background(), "i1", "reporter")
	require.NoError(t, err)
	assert.False(t, upvoted)
	assert.Equal(t, 0, count)

	// Both toggles are audited, only the upvote itself is announced.
	entries := store.entries("i1")
	require.Len(t, entries, 2)
	assert.Equal(t, "upvoted", entries[0].Action)
	assert.Equal(t, "upvote_removed", entries[1].Action)
	assert.Len(t, dispatcher.dispatched(), 1)
}

func TestRecordSocialEventValidatesActor(t *testing.T) {
	store := newFakeStore(testIssue("i1", models.StatusSubmitted))
	m, _, _ := newTestMachine(store)

	err := m.RecordSocialEvent(context.Background(), "i1", "shared", "ghost", nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, store.entries("i1"), "audit trail must not record unknown actors")

	err = m.RecordSocialEvent(context.Background(), "i1", "shared", "reporter", map[string]interface{}{"via": "link"})
	require.NoError(t, err)
	entries := store.entries("i1")
	require.Len(t, entries, 1)
	assert.Equal(t, "shared", entries[0].Action)
}

func TestConcurrentTransitionsOnSameIssueSerialize(t *testing.T) {
	store := newFakeStore(testIssue("i1", models.StatusSubmitted))
	m, _, _ := newTestMachine(store)

	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Transition(context.Background(), "i1", models.StatusAcknowledged, "officer", "")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	// Exactly one attempt wins; the rest observe the moved state.
	var succeeded int
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, IsInvalidTransition(err))
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, store.entries("i1"), 1)
}
