package realtime

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/models"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/notification"
)

// handleTimeout bounds the downstream work triggered by one inbound event.
const handleTimeout = 10 * time.Second

// IssueService is the lifecycle surface socket events may drive.
type IssueService interface {
	Transition(ctx context.Context, issueID string, newStatus models.IssueStatus, actorID, notes string) (models.Issue, error)
	AddComment(ctx context.Context, issueID, actorID, body string) (models.Comment, error)
}

// Dispatcher fans a domain event out to notification records.
type Dispatcher interface {
	Dispatch(ctx context.Context, evt notification.Event) (notification.DispatchResult, error)
}

// Router consumes the hub's inbound event stream and invokes the state
// machine and dispatcher. Connection goroutines publish; the router
// subscribes — no handler callbacks nested inside the transport layer.
type Router struct {
	hub        *Hub
	issues     IssueService
	dispatcher Dispatcher
	logger     zerolog.Logger
}

func NewRouter(hub *Hub, issues IssueService, dispatcher Dispatcher, logger zerolog.Logger) *Router {
	return &Router{
		hub:        hub,
		issues:     issues,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "realtime_router").Logger(),
	}
}

// Run processes inbound events until ctx is cancelled.
func (r *Router) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-r.hub.Inbound():
			r.handle(ctx, evt)
		}
	}
}

func (r *Router) handle(parent context.Context, in InboundEvent) {
	ctx, cancel := context.WithTimeout(parent, handleTimeout)
	defer cancel()

	c := in.Client
	switch evt := in.Event.(type) {
	case JoinIssue:
		r.hub.JoinIssueRoom(c, evt.IssueID)

	case LeaveIssue:
		r.hub.LeaveIssueRoom(c, evt.IssueID)

	case TypingStart:
		r.hub.EmitToIssue(evt.IssueID, "user_typing", map[string]interface{}{
			"issueId": evt.IssueID,
			"userId":  c.UserID(),
		})

	case TypingStop:
		r.hub.EmitToIssue(evt.IssueID, "user_stopped_typing", map[string]interface{}{
			"issueId": evt.IssueID,
			"userId":  c.UserID(),
		})

	case UpdateLocation:
		if !c.HasRole(models.RoleFieldOfficer) {
			r.reject(c, "update_location", "field officer role required")
			return
		}
		if c.identity.Department == "" {
			return
		}
		r.hub.EmitToDepartment(c.identity.Department, "officer_location_update", map[string]interface{}{
			"userId":    c.UserID(),
			"lat":       evt.Lat,
			"lng":       evt.Lng,
			"timestamp": time.Now().UTC(),
		})

	case IssueStatusUpdate:
		_, err := r.issues.Transition(ctx, evt.IssueID, models.IssueStatus(evt.Status), c.UserID(), evt.Notes)
		if err != nil {
			r.logger.Warn().Err(err).
				Str("issue_id", evt.IssueID).
				Str("user_id", c.UserID()).
				Msg("socket status update rejected")
			r.reject(c, "issue_status_update", err.Error())
		}

	case NewComment:
		_, err := r.issues.AddComment(ctx, evt.IssueID, c.UserID(), evt.Comment)
		if err != nil {
			r.reject(c, "new_comment", err.Error())
		}

	case DirectMessage:
		r.hub.EmitToUser(evt.RecipientID, "new_message", map[string]interface{}{
			"senderId":  c.UserID(),
			"message":   evt.Message,
			"timestamp": time.Now().UTC(),
		})
		if r.dispatcher != nil {
			_, err := r.dispatcher.Dispatch(ctx, notification.Event{
				Kind:         models.NotificationDirectMessage,
				ActorID:      c.UserID(),
				RecipientIDs: []string{evt.RecipientID},
				Title:        "New message",
				Message:      evt.Message,
			})
			if err != nil {
				r.logger.Error().Err(err).Msg("direct message dispatch failed")
			}
		}

	case EmergencyAlert:
		if !c.HasRole(models.RoleAdmin) {
			r.reject(c, "emergency_alert", "admin role required")
			return
		}
		r.hub.EmitToAll("emergency_notification", map[string]interface{}{
			"title":     evt.Title,
			"message":   evt.Message,
			"severity":  evt.Severity,
			"issuedBy":  c.UserID(),
			"timestamp": time.Now().UTC(),
		})

	default:
		r.logger.Warn().Str("user_id", c.UserID()).Msg("unhandled client event")
	}
}

// reject tells the offending connection, and only it, why its event was
// refused. The hub checks membership, so a client that disconnected while
// its event sat in the inbound queue is skipped rather than written to.
func (r *Router) reject(c *Client, event, reason string) {
	r.hub.EmitToClient(c, "error", map[string]interface{}{
		"event":  event,
		"reason": reason,
	})
}
