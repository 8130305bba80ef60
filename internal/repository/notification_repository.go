package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/models"
)

type NotificationRepository interface {
	Create(ctx context.Context, params CreateNotificationParams) (models.Notification, error)
	Get(ctx context.Context, notificationID string) (models.Notification, error)
	ListRecent(ctx context.Context, recipientID string, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, recipientID, notificationID string) (models.Notification, error)
	SetChannelOutcome(ctx context.Context, notificationID string, channel models.Channel, sent bool, errMsg string) (models.Notification, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

type CreateNotificationParams struct {
	RecipientID string
	SenderID    *string
	Type        models.NotificationType
	Priority    models.NotificationPriority
	Title       string
	Message     string
	IssueID     *string
	CommentID   *string
	Channels    models.ChannelPlan
	TTL         time.Duration
}

type notificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

const notificationColumns = `id, recipient_id, sender_id, type, priority, title, message, issue_id, comment_id, channels, is_read, read_at, created_at, expires_at`

func (r *notificationRepository) Create(ctx context.Context, params CreateNotificationParams) (models.Notification, error) {
	if params.Priority == "" {
		params.Priority = models.NotificationPriorityNormal
	}
	if params.Channels == nil {
		params.Channels = models.DefaultChannelPlan()
	}
	if params.TTL <= 0 {
		params.TTL = 30 * 24 * time.Hour
	}

	channels, err := json.Marshal(params.Channels)
	if err != nil {
		return models.Notification{}, fmt.Errorf("marshal channels: %w", err)
	}

	const query = `
		INSERT INTO civic.notifications (recipient_id, sender_id, type, priority, title, message, issue_id, comment_id, channels, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now() + $10::interval)
		RETURNING ` + notificationColumns

	interval := fmt.Sprintf("%d seconds", int(params.TTL.Seconds()))
	row := r.db.QueryRowContext(ctx, query,
		params.RecipientID, params.SenderID, params.Type, params.Priority,
		params.Title, params.Message, params.IssueID, params.CommentID, channels, interval)
	return scanNotification(row)
}

func (r *notificationRepository) Get(ctx context.Context, notificationID string) (models.Notification, error) {
	const query = `
		SELECT ` + notificationColumns + `
		FROM civic.notifications
		WHERE id = $1`
	return scanNotification(r.db.QueryRowContext(ctx, query, notificationID))
}

func (r *notificationRepository) ListRecent(ctx context.Context, recipientID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	const query = `
		SELECT ` + notificationColumns + `
		FROM civic.notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, recipientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		notif, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, notif)
	}
	return notifications, rows.Err()
}

func (r *notificationRepository) MarkRead(ctx context.Context, recipientID, notificationID string) (models.Notification, error) {
	const query = `
		UPDATE civic.notifications
		SET is_read = TRUE, read_at = COALESCE(read_at, now())
		WHERE id = $1 AND recipient_id = $2
		RETURNING ` + notificationColumns

	return scanNotification(r.db.QueryRowContext(ctx, query, notificationID, recipientID))
}

// SetChannelOutcome records the result of one delivery attempt on the given
// channel. A channel already marked sent is left untouched: sent=true is
// monotonic and a later failure never resets it.
func (r *notificationRepository) SetChannelOutcome(ctx context.Context, notificationID string, channel models.Channel, sent bool, errMsg string) (models.Notification, error) {
	if !models.IsValidChannel(channel) {
		return models.Notification{}, fmt.Errorf("unknown channel %q", channel)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Notification{}, err
	}
	defer tx.Rollback()

	const lock = `
		SELECT ` + notificationColumns + `
		FROM civic.notifications
		WHERE id = $1
		FOR UPDATE`

	notif, err := scanNotification(tx.QueryRowContext(ctx, lock, notificationID))
	if err != nil {
		return models.Notification{}, err
	}

	state := notif.Channels[channel]
	if !state.Sent {
		state.Sent = sent
		state.Error = errMsg
		if sent {
			now := time.Now().UTC()
			state.SentAt = &now
			state.Error = ""
		}
		notif.Channels[channel] = state

		channels, err := json.Marshal(notif.Channels)
		if err != nil {
			return models.Notification{}, fmt.Errorf("marshal channels: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE civic.notifications SET channels = $2 WHERE id = $1`, notificationID, channels); err != nil {
			return models.Notification{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Notification{}, err
	}
	return notif, nil
}

// DeleteExpired garbage-collects notifications past their TTL, read or not.
func (r *notificationRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM civic.notifications WHERE expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanNotification(scanner interface {
	Scan(dest ...interface{}) error
}) (models.Notification, error) {
	var (
		notif       models.Notification
		senderID    sql.NullString
		issueID     sql.NullString
		commentID   sql.NullString
		channelsRaw []byte
		readAt      sql.NullTime
	)

	if err := scanner.Scan(
		&notif.ID,
		&notif.RecipientID,
		&senderID,
		&notif.Type,
		&notif.Priority,
		&notif.Title,
		&notif.Message,
		&issueID,
		&commentID,
		&channelsRaw,
		&notif.IsRead,
		&readAt,
		&notif.CreatedAt,
		&notif.ExpiresAt,
	); err != nil {
		return models.Notification{}, err
	}

	if senderID.Valid {
		notif.SenderID = &senderID.String
	}
	if issueID.Valid {
		notif.IssueID = &issueID.String
	}
	if commentID.Valid {
		notif.CommentID = &commentID.String
	}
	if readAt.Valid {
		notif.ReadAt = &readAt.Time
	}
	if len(channelsRaw) > 0 {
		if err := json.Unmarshal(channelsRaw, &notif.Channels); err != nil {
			return models.Notification{}, fmt.Errorf("unmarshal channels: %w", err)
		}
	}

	return notif, nil
}
