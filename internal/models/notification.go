package models

import (
	"time"
)

type NotificationType string

const (
	NotificationIssueCreated  NotificationType = "issue_created"
	NotificationIssueUpdated  NotificationType = "issue_updated"
	NotificationIssueAssigned NotificationType = "issue_assigned"
	NotificationCommentAdded  NotificationType = "comment_added"
	NotificationIssueUpvoted  NotificationType = "issue_upvoted"
	NotificationDirectMessage NotificationType = "direct_message"
)

type NotificationPriority string

const (
	NotificationPriorityNormal NotificationPriority = "normal"
	NotificationPriorityUrgent NotificationPriority = "urgent"
)

// Channel is a delivery surface for a notification.
type Channel string

const (
	ChannelRealtime Channel = "realtime"
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
)

func IsValidChannel(ch Channel) bool {
	return ch == ChannelRealtime || ch == ChannelEmail || ch == ChannelSMS
}

// ChannelState tracks one channel of a notification's delivery plan. Once
// Sent flips to true it stays true; the attempt outcome is written exactly
// once per channel.
type ChannelState struct {
	Requested bool       `json:"requested"`
	Sent      bool       `json:"sent"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// ChannelPlan maps each delivery surface to its requested/sent state.
type ChannelPlan map[Channel]ChannelState

// DefaultChannelPlan is the plan applied when the recipient has no stored
// preference: realtime on, everything else off.
func DefaultChannelPlan() ChannelPlan {
	return ChannelPlan{
		ChannelRealtime: {Requested: true},
		ChannelEmail:    {},
		ChannelSMS:      {},
	}
}

// Requested lists the channels the plan asks for, in a stable order.
func (p ChannelPlan) Requested() []Channel {
	var out []Channel
	for _, ch := range []Channel{ChannelRealtime, ChannelEmail, ChannelSMS} {
		if p[ch].Requested {
			out = append(out, ch)
		}
	}
	return out
}

type Notification struct {
	ID          string               `json:"id" db:"id"`
	RecipientID string               `json:"recipient_id" db:"recipient_id"`
	SenderID    *string              `json:"sender_id,omitempty" db:"sender_id"`
	Type        NotificationType     `json:"type" db:"type"`
	Priority    NotificationPriority `json:"priority" db:"priority"`
	Title       string               `json:"title" db:"title"`
	Message     string               `json:"message" db:"message"`
	IssueID     *string              `json:"issue_id,omitempty" db:"issue_id"`
	CommentID   *string              `json:"comment_id,omitempty" db:"comment_id"`
	Channels    ChannelPlan          `json:"channels" db:"channels"`
	IsRead      bool                 `json:"is_read" db:"is_read"`
	ReadAt      *time.Time           `json:"read_at,omitempty" db:"read_at"`
	CreatedAt   time.Time            `json:"created_at" db:"created_at"`
	ExpiresAt   time.Time            `json:"expires_at" db:"expires_at"`
}
