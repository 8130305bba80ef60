package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/models"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/repository"
)

// EventPriority classifies the source event. Critical events map to urgent
// notification priority; this is advisory for the client UI and implies no
// differential delivery guarantee.
type EventPriority string

const (
	EventPriorityNormal   EventPriority = "normal"
	EventPriorityCritical EventPriority = "critical"
)

// Event is one domain occurrence to fan out: a lifecycle transition, an
// assignment, or a social action.
type Event struct {
	Kind      models.NotificationType
	Priority  EventPriority
	IssueID   string
	CommentID string
	ActorID   string
	// RecipientIDs overrides kind-based recipient resolution when set
	// (assignments and direct messages name their recipients explicitly).
	RecipientIDs []string
	Title        string
	Message      string
}

// RecipientError reports a per-recipient failure during fan-out.
type RecipientError struct {
	RecipientID string
	Err         error
}

func (e RecipientError) Error() string {
	return fmt.Sprintf("recipient %s: %v", e.RecipientID, e.Err)
}

// DispatchResult summarizes a fan-out: how many notification records were
// created and which recipients failed. Partial failure is per-recipient,
// never a rollback of the others.
type DispatchResult struct {
	Created int
	Errors  []RecipientError
}

// RealtimeEmitter is the broadcaster surface the dispatcher needs. It is
// injected at construction; the dispatcher never reaches for a global
// socket-server handle.
type RealtimeEmitter interface {
	EmitToUser(userID, event string, payload interface{})
}

// AsyncDeliverer queues a notification channel for out-of-band delivery
// (email, SMS).
type AsyncDeliverer interface {
	EnqueueDelivery(ctx context.Context, notificationID string, channel models.Channel) error
}

// IssueDirectory resolves issue context during recipient resolution.
type IssueDirectory interface {
	GetIssue(ctx context.Context, issueID string) (models.Issue, error)
	ListParticipants(ctx context.Context, issueID string) ([]string, error)
}

// UserDirectory resolves recipients and their channel preferences.
type UserDirectory interface {
	GetUserByID(ctx context.Context, userID string) (models.User, error)
	ListActiveByDepartmentRoles(ctx context.Context, department string, roles []models.UserRole) ([]models.User, error)
}

type Service interface {
	Dispatch(ctx context.Context, evt Event) (DispatchResult, error)
	ListRecent(ctx context.Context, recipientID string, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, recipientID, notificationID string) (models.Notification, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

type service struct {
	repo      repository.NotificationRepository
	issues    IssueDirectory
	users     UserDirectory
	realtime  RealtimeEmitter
	deliverer AsyncDeliverer
	ttl       time.Duration
	logger    zerolog.Logger
}

func NewService(
	repo repository.NotificationRepository,
	issues IssueDirectory,
	users UserDirectory,
	realtime RealtimeEmitter,
	deliverer AsyncDeliverer,
	ttl time.Duration,
	logger zerolog.Logger,
) Service {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &service{
		repo:      repo,
		issues:    issues,
		users:     users,
		realtime:  realtime,
		deliverer: deliverer,
		ttl:       ttl,
		logger:    logger.With().Str("component", "notification_service").Logger(),
	}
}

// Dispatch converts a domain event into durable notification records, one
// per recipient, and hands realtime-eligible ones to the broadcaster.
// It returns an error only when no recipient can be resolved at all;
// per-recipient failures are reported in the result.
func (s *service) Dispatch(ctx context.Context, evt Event) (DispatchResult, error) {
	if evt.Kind == "" {
		return DispatchResult{}, fmt.Errorf("event kind is required")
	}

	recipients, err := s.resolveRecipients(ctx, evt)
	if err != nil {
		return DispatchResult{}, fmt.Errorf("resolve recipients: %w", err)
	}

	var result DispatchResult
	for _, recipientID := range recipients {
		notif, err := s.createFor(ctx, evt, recipientID)
		if err != nil {
			s.logger.Error().Err(err).
				Str("recipient_id", recipientID).
				Str("event_kind", string(evt.Kind)).
				Msg("failed to persist notification")
			result.Errors = append(result.Errors, RecipientError{RecipientID: recipientID, Err: err})
			continue
		}
		result.Created++

		if notif.Channels[models.ChannelRealtime].Requested && s.realtime != nil {
			// Delivery to a disconnected recipient is silently dropped for
			// the realtime channel; other channels proceed independently.
			s.realtime.EmitToUser(recipientID, "notification", notif)
		}

		s.enqueueAsync(ctx, notif)
	}

	return result, nil
}

func (s *service) resolveRecipients(ctx context.Context, evt Event) ([]string, error) {
	if len(evt.RecipientIDs) > 0 {
		return dedupe(evt.RecipientIDs, evt.ActorID), nil
	}

	switch evt.Kind {
	case models.NotificationIssueCreated:
		issue, err := s.issues.GetIssue(ctx, evt.IssueID)
		if err != nil {
			return nil, err
		}
		staff, err := s.users.ListActiveByDepartmentRoles(ctx, issue.Department,
			[]models.UserRole{models.RoleDepartmentHead, models.RoleFieldOfficer})
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(staff))
		for _, u := range staff {
			ids = append(ids, u.ID)
		}
		return dedupe(ids, evt.ActorID), nil

	case models.NotificationIssueUpdated, models.NotificationIssueUpvoted:
		issue, err := s.issues.GetIssue(ctx, evt.IssueID)
		if err != nil {
			return nil, err
		}
		return dedupe([]string{issue.ReporterID}, evt.ActorID), nil

	case models.NotificationCommentAdded:
		participants, err := s.issues.ListParticipants(ctx, evt.IssueID)
		if err != nil {
			return nil, err
		}
		return dedupe(participants, evt.ActorID), nil

	default:
		return nil, fmt.Errorf("no recipients for event kind %q", evt.Kind)
	}
}

func (s *service) createFor(ctx context.Context, evt Event, recipientID string) (models.Notification, error) {
	plan := models.DefaultChannelPlan()
	if user, err := s.users.GetUserByID(ctx, recipientID); err == nil {
		if user.Prefs.Email && user.Email != "" {
			plan[models.ChannelEmail] = models.ChannelState{Requested: true}
		}
		if user.Prefs.SMS && user.Phone != "" {
			plan[models.ChannelSMS] = models.ChannelState{Requested: true}
		}
	}

	priority := models.NotificationPriorityNormal
	if evt.Priority == EventPriorityCritical {
		priority = models.NotificationPriorityUrgent
	}

	params := repository.CreateNotificationParams{
		RecipientID: recipientID,
		Type:        evt.Kind,
		Priority:    priority,
		Title:       strings.TrimSpace(evt.Title),
		Message:     strings.TrimSpace(evt.Message),
		Channels:    plan,
		TTL:         s.ttl,
	}
	if params.Title == "" {
		params.Title = string(evt.Kind)
	}
	if evt.ActorID != "" {
		actor := evt.ActorID
		params.SenderID = &actor
	}
	if evt.IssueID != "" {
		issueID := evt.IssueID
		params.IssueID = &issueID
	}
	if evt.CommentID != "" {
		commentID := evt.CommentID
		params.CommentID = &commentID
	}

	return s.repo.Create(ctx, params)
}

// enqueueAsync hands every non-realtime requested channel to the deliverer.
// A queueing failure is recorded on the channel status, not raised.
func (s *service) enqueueAsync(ctx context.Context, notif models.Notification) {
	for _, ch := range notif.Channels.Requested() {
		if ch == models.ChannelRealtime {
			continue
		}
		var err error
		if s.deliverer == nil {
			err = fmt.Errorf("no async deliverer configured")
		} else {
			err = s.deliverer.EnqueueDelivery(ctx, notif.ID, ch)
		}
		if err != nil {
			logNotifyError(s.logger, err, ch, notif)
			if _, recErr := s.repo.SetChannelOutcome(ctx, notif.ID, ch, false, err.Error()); recErr != nil {
				s.logger.Error().Err(recErr).
					Str("notification_id", notif.ID).
					Str("channel", string(ch)).
					Msg("failed to record channel failure")
			}
		}
	}
}

func (s *service) ListRecent(ctx context.Context, recipientID string, limit int) ([]models.Notification, error) {
	return s.repo.ListRecent(ctx, recipientID, limit)
}

func (s *service) MarkRead(ctx context.Context, recipientID, notificationID string) (models.Notification, error) {
	return s.repo.MarkRead(ctx, recipientID, notificationID)
}

func (s *service) DeleteExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx)
}

// dedupe removes duplicates and the excluded actor from the recipient list,
// preserving order.
func dedupe(ids []string, exclude string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || id == exclude {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
