package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/authz"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/models"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/repository"
)

type UserHandler struct {
	users  repository.UserRepository
	logger zerolog.Logger
}

type updatePrefsRequest struct {
	Email bool `json:"email"`
	SMS   bool `json:"sms"`
}

func NewUserHandler(users repository.UserRepository, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		logger: logger.With().Str("handler", "user").Logger(),
	}
}

// UpdatePreferences replaces the authenticated user's delivery opt-ins.
// Realtime delivery is always on; this only toggles email and SMS.
func (h *UserHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req updatePrefsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.users.UpdateNotificationPrefs(r.Context(), userID, models.NotificationPrefs{
		Email: req.Email,
		SMS:   req.SMS,
	})
	if err != nil {
		if err == sql.ErrNoRows {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to update notification preferences")
		http.Error(w, "Failed to update preferences", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
