package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/authz"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/handlers"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/models"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/realtime"
)

// NewRouter wires all HTTP surfaces. Auth and health endpoints are public,
// the websocket handshake authenticates its own credential, and everything
// else sits behind the JWT middleware.
func NewRouter(
	auth *handlers.AuthHandler,
	users *handlers.UserHandler,
	issues *handlers.IssueHandler,
	notifications *handlers.NotificationHandler,
	handshake *realtime.HandshakeHandler,
) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/api/signup", auth.SignUp).Methods(http.MethodPost)
	router.HandleFunc("/api/login", auth.Login).Methods(http.MethodPost)
	router.Handle("/ws", handshake)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(auth.JWTMiddleware)

	api.HandleFunc("/issues", issues.Create).Methods(http.MethodPost)
	api.HandleFunc("/issues", issues.List).Methods(http.MethodGet)
	api.HandleFunc("/issues/{issueID}", issues.Get).Methods(http.MethodGet)
	api.HandleFunc("/issues/{issueID}/status", issues.UpdateStatus).Methods(http.MethodPatch)
	api.Handle("/issues/{issueID}/assign",
		authz.RequireRoleHandler(models.RoleDepartmentHead, http.HandlerFunc(issues.Assign))).Methods(http.MethodPatch)
	api.HandleFunc("/issues/{issueID}/upvote", issues.Upvote).Methods(http.MethodPost)
	api.HandleFunc("/issues/{issueID}/comments", issues.AddComment).Methods(http.MethodPost)

	api.HandleFunc("/users/me/preferences", users.UpdatePreferences).Methods(http.MethodPatch)

	api.HandleFunc("/notifications", notifications.List).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{notificationID}/read", notifications.MarkRead).Methods(http.MethodPatch)

	return router
}
