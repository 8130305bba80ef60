package handlers

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/authz"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/notification"
)

const defaultNotificationLimit = 50

type NotificationHandler struct {
	svc    notification.Service
	logger zerolog.Logger
}

func NewNotificationHandler(svc notification.Service, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		svc:    svc,
		logger: logger.With().Str("handler", "notification").Logger(),
	}
}

// List returns the authenticated user's recent notifications, newest first.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit := defaultNotificationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	notifs, err := h.svc.ListRecent(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to list notifications")
		http.Error(w, "Failed to list notifications", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, notifs)
}

// MarkRead flags one notification read. The lookup is scoped to the
// authenticated recipient, so users cannot touch each other's records.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	notificationID := mux.Vars(r)["notificationID"]

	notif, err := h.svc.MarkRead(r.Context(), userID, notificationID)
	if err != nil {
		if err == sql.ErrNoRows {
			http.Error(w, "Notification not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("notification_id", notificationID).Msg("failed to mark notification read")
		http.Error(w, "Failed to mark notification read", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, notif)
}
