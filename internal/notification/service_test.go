package notification

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/models"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/repository"
)

type fakeNotificationRepo struct {
	mu       sync.Mutex
	seq      int
	created  []models.Notification
	failFor  map[string]error
	outcomes []string
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{failFor: make(map[string]error)}
}

func (r *fakeNotificationRepo) Create(_ context.Context, params repository.CreateNotificationParams) (models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failFor[params.RecipientID]; ok {
		return models.Notification{}, err
	}
	r.seq++
	notif := models.Notification{
		ID:          fmt.Sprintf("n%d", r.seq),
		RecipientID: params.RecipientID,
		SenderID:    params.SenderID,
		Type:        params.Type,
		Priority:    params.Priority,
		Title:       params.Title,
		Message:     params.Message,
		IssueID:     params.IssueID,
		CommentID:   params.CommentID,
		Channels:    params.Channels,
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(params.TTL),
	}
	r.created = append(r.created, notif)
	return notif, nil
}

func (r *fakeNotificationRepo) Get(_ context.Context, id string) (models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.created {
		if n.ID == id {
			return n, nil
		}
	}
	return models.Notification{}, sql.ErrNoRows
}

func (r *fakeNotificationRepo) ListRecent(_ context.Context, recipientID string, _ int) ([]models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Notification
	for _, n := range r.created {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *fakeNotificationRepo) MarkRead(_ context.Context, recipientID, id string) (models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, n := range r.created {
		if n.ID == id && n.RecipientID == recipientID {
			now := time.Now()
			r.created[i].IsRead = true
			r.created[i].ReadAt = &now
			return r.created[i], nil
		}
	}
	return models.Notification{}, sql.ErrNoRows
}

func (r *fakeNotificationRepo) SetChannelOutcome(_ context.Context, id string, channel models.Channel, sent bool, errMsg string) (models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, fmt.Sprintf("%s/%s sent=%v err=%s", id, channel, sent, errMsg))
	return models.Notification{}, nil
}

func (r *fakeNotificationRepo) DeleteExpired(_ context.Context) (int64, error) {
	return 0, nil
}

func (r *fakeNotificationRepo) createdFor(recipientID string) []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Notification
	for _, n := range r.created {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	return out
}

type fakeIssueDir struct {
	issue        models.Issue
	participants []string
}

func (d *fakeIssueDir) GetIssue(_ context.Context, _ string) (models.Issue, error) {
	return d.issue, nil
}

func (d *fakeIssueDir) ListParticipants(_ context.Context, _ string) ([]string, error) {
	return d.participants, nil
}

type fakeUserDir struct {
	users map[string]models.User
	staff []models.User
}

func (d *fakeUserDir) GetUserByID(_ context.Context, id string) (models.User, error) {
	user, ok := d.users[id]
	if !ok {
		return models.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (d *fakeUserDir) ListActiveByDepartmentRoles(_ context.Context, _ string, _ []models.UserRole) ([]models.User, error) {
	return d.staff, nil
}

type fakeEmitter struct {
	mu   sync.Mutex
	sent []string
}

func (e *fakeEmitter) EmitToUser(userID, event string, _ interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = append(e.sent, userID+":"+event)
}

type fakeDeliverer struct {
	mu       sync.Mutex
	enqueued []string
	err      error
}

func (d *fakeDeliverer) EnqueueDelivery(_ context.Context, notificationID string, channel models.Channel) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.enqueued = append(d.enqueued, notificationID+"/"+string(channel))
	return nil
}

func baseIssue() models.Issue {
	return models.Issue{
		ID:         "i1",
		Department: "roads",
		ReporterID: "reporter",
	}
}

func TestDispatchIssueCreatedFansOutToDepartmentStaff(t *testing.T) {
	repo := newFakeNotificationRepo()
	users := &fakeUserDir{
		users: map[string]models.User{},
		staff: []models.User{{ID: "head"}, {ID: "officer"}},
	}
	emitter := &fakeEmitter{}
	svc := NewService(repo, &fakeIssueDir{issue: baseIssue()}, users, emitter, &fakeDeliverer{}, time.Hour, zerolog.Nop())

	result, err := svc.Dispatch(context.Background(), Event{
		Kind:    models.NotificationIssueCreated,
		IssueID: "i1",
		ActorID: "reporter",
		Title:   "New issue",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Empty(t, result.Errors)

	assert.Len(t, repo.createdFor("head"), 1)
	assert.Len(t, repo.createdFor("officer"), 1)
	assert.ElementsMatch(t, []string{"head:notification", "officer:notification"}, emitter.sent)
}

func TestDispatchPartialFailurePerRecipient(t *testing.T) {
	repo := newFakeNotificationRepo()
	repo.failFor["bad"] = fmt.Errorf("disk full")
	users := &fakeUserDir{users: map[string]models.User{}}
	svc := NewService(repo, &fakeIssueDir{issue: baseIssue()}, users, &fakeEmitter{}, &fakeDeliverer{}, time.Hour, zerolog.Nop())

	result, err := svc.Dispatch(context.Background(), Event{
		Kind:         models.NotificationIssueAssigned,
		RecipientIDs: []string{"a", "bad", "c"},
		Title:        "Assigned",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Created)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "bad", result.Errors[0].RecipientID)

	// The failing recipient must not block the others.
	assert.Len(t, repo.createdFor("a"), 1)
	assert.Len(t, repo.createdFor("c"), 1)
}

func TestDispatchExcludesActorAndDuplicates(t *testing.T) {
	repo := newFakeNotificationRepo()
	users := &fakeUserDir{users: map[string]models.User{}}
	issues := &fakeIssueDir{
		issue:        baseIssue(),
		participants: []string{"reporter", "commenter", "commenter", "actor"},
	}
	svc := NewService(repo, issues, users, &fakeEmitter{}, &fakeDeliverer{}, time.Hour, zerolog.Nop())

	result, err := svc.Dispatch(context.Background(), Event{
		Kind:    models.NotificationCommentAdded,
		IssueID: "i1",
		ActorID: "actor",
		Title:   "New comment",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Empty(t, repo.createdFor("actor"))
}

func TestDispatchHonorsChannelPreferences(t *testing.T) {
	repo := newFakeNotificationRepo()
	users := &fakeUserDir{users: map[string]models.User{
		"reporter": {
			ID:    "reporter",
			Email: "reporter@example.com",
			Phone: "+15550100",
			Prefs: models.NotificationPrefs{Email: true, SMS: true},
		},
	}}
	deliverer := &fakeDeliverer{}
	svc := NewService(repo, &fakeIssueDir{issue: baseIssue()}, users, &fakeEmitter{}, deliverer, time.Hour, zerolog.Nop())

	result, err := svc.Dispatch(context.Background(), Event{
		Kind:    models.NotificationIssueUpdated,
		IssueID: "i1",
		ActorID: "officer",
		Title:   "Updated",
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Created)

	created := repo.createdFor("reporter")
	require.Len(t, created, 1)
	plan := created[0].Channels
	assert.True(t, plan[models.ChannelRealtime].Requested)
	assert.True(t, plan[models.ChannelEmail].Requested)
	assert.True(t, plan[models.ChannelSMS].Requested)

	assert.ElementsMatch(t, []string{
		created[0].ID + "/email",
		created[0].ID + "/sms",
	}, deliverer.enqueued)
}

func TestDispatchDefaultsToRealtimeOnly(t *testing.T) {
	repo := newFakeNotificationRepo()
	users := &fakeUserDir{users: map[string]models.User{}}
	deliverer := &fakeDeliverer{}
	svc := NewService(repo, &fakeIssueDir{issue: baseIssue()}, users, &fakeEmitter{}, deliverer, time.Hour, zerolog.Nop())

	_, err := svc.Dispatch(context.Background(), Event{
		Kind:    models.NotificationIssueUpdated,
		IssueID: "i1",
		Title:   "Updated",
	})
	require.NoError(t, err)

	created := repo.createdFor("reporter")
	require.Len(t, created, 1)
	assert.Equal(t, []models.Channel{models.ChannelRealtime}, created[0].Channels.Requested())
	assert.Empty(t, deliverer.enqueued)
}

func TestDispatchRecordsQueueFailureOnChannel(t *testing.T) {
	repo := newFakeNotificationRepo()
	users := &fakeUserDir{users: map[string]models.User{
		"reporter": {
			ID:    "reporter",
			Email: "reporter@example.com",
			Prefs: models.NotificationPrefs{Email: true},
		},
	}}
	deliverer := &fakeDeliverer{err: fmt.Errorf("queue unavailable")}
	svc := NewService(repo, &fakeIssueDir{issue: baseIssue()}, users, &fakeEmitter{}, deliverer, time.Hour, zerolog.Nop())

	result, err := svc.Dispatch(context.Background(), Event{
		Kind:    models.NotificationIssueUpdated,
		IssueID: "i1",
		Title:   "Updated",
	})
	require.NoError(t, err)

	// The notification record still exists; only the channel carries the
	// failure.
	assert.Equal(t, 1, result.Created)
	require.Len(t, repo.outcomes, 1)
	assert.Contains(t, repo.outcomes[0], "sent=false")
	assert.Contains(t, repo.outcomes[0], "queue unavailable")
}

func TestDispatchCriticalEventBecomesUrgent(t *testing.T) {
	repo := newFakeNotificationRepo()
	users := &fakeUserDir{users: map[string]models.User{}}
	svc := NewService(repo, &fakeIssueDir{issue: baseIssue()}, users, &fakeEmitter{}, &fakeDeliverer{}, time.Hour, zerolog.Nop())

	_, err := svc.Dispatch(context.Background(), Event{
		Kind:     models.NotificationIssueUpdated,
		Priority: EventPriorityCritical,
		IssueID:  "i1",
		Title:    "Updated",
	})
	require.NoError(t, err)

	created := repo.createdFor("reporter")
	require.Len(t, created, 1)
	assert.Equal(t, models.NotificationPriorityUrgent, created[0].Priority)
}

func TestDispatchRequiresKind(t *testing.T) {
	svc := NewService(newFakeNotificationRepo(), &fakeIssueDir{}, &fakeUserDir{}, nil, nil, time.Hour, zerolog.Nop())
	_, err := svc.Dispatch(context.Background(), Event{Title: "missing kind"})
	assert.Error(t, err)
}

func TestMarkReadScopedToRecipient(t *testing.T) {
	repo := newFakeNotificationRepo()
	users := &fakeUserDir{users: map[string]models.User{}}
	svc := NewService(repo, &fakeIssueDir{issue: baseIssue()}, users, nil, nil, time.Hour, zerolog.Nop())

	_, err := svc.Dispatch(context.Background(), Event{
		Kind:         models.NotificationIssueAssigned,
		RecipientIDs: []string{"owner"},
		Title:        "Assigned",
	})
	require.NoError(t, err)

	created := repo.createdFor("owner")
	require.Len(t, created, 1)

	_, err = svc.MarkRead(context.Background(), "intruder", created[0].ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	notif, err := svc.MarkRead(context.Background(), "owner", created[0].ID)
	require.NoError(t, err)
	assert.True(t, notif.IsRead)
}
