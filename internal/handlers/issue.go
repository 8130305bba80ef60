package handlers

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/authz"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/config"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/lifecycle"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/models"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/notification"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/ratelimit"
	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/repository"
)

type IssueHandler struct {
	issues       repository.IssueRepository
	machine      lifecycle.Machine
	dispatcher   notification.Service
	guard        *ratelimit.Limiter
	createMax    int
	createWindow time.Duration
	logger       zerolog.Logger
}

type createIssueRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Department  string `json:"department"`
	Priority    string `json:"priority"`
}

type updateStatusRequest struct {
	Status                  string `json:"status"`
	Notes                   string `json:"notes"`
	EstimatedResolutionTime string `json:"estimated_resolution_time"`
}

type assignRequest struct {
	AssigneeID *string `json:"assignee_id"`
	Department string  `json:"department"`
}

type addCommentRequest struct {
	Body string `json:"body"`
}

func NewIssueHandler(
	issues repository.IssueRepository,
	machine lifecycle.Machine,
	dispatcher notification.Service,
	guard *ratelimit.Limiter,
	cfg *config.Config,
	logger zerolog.Logger,
) *IssueHandler {
	return &IssueHandler{
		issues:       issues,
		machine:      machine,
		dispatcher:   dispatcher,
		guard:        guard,
		createMax:    cfg.RateLimits.IssueCreateMax,
		createWindow: cfg.RateLimits.IssueCreateWindow,
		logger:       logger.With().Str("handler", "issue").Logger(),
	}
}

func (h *IssueHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if h.guard != nil && !h.guard.Allow("issue:"+userID, h.createMax, h.createWindow) {
		http.Error(w, "Report submission limit reached, try again later", http.StatusTooManyRequests)
		return
	}

	var req createIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == "" || req.Department == "" {
		http.Error(w, "title and department are required", http.StatusBadRequest)
		return
	}

	issue, err := h.issues.CreateIssue(r.Context(), repository.CreateIssueParams{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Department:  req.Department,
		Priority:    models.IssuePriority(req.Priority),
		ReporterID:  userID,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to create issue")
		http.Error(w, "Failed to create issue", http.StatusInternalServerError)
		return
	}

	if h.dispatcher != nil {
		if _, err := h.dispatcher.Dispatch(r.Context(), notification.Event{
			Kind:    models.NotificationIssueCreated,
			IssueID: issue.ID,
			ActorID: userID,
			Title:   fmt.Sprintf("New issue %s reported", issue.TrackingRef),
			Message: issue.Title,
		}); err != nil {
			h.logger.Error().Err(err).Str("issue_id", issue.ID).Msg("failed to dispatch creation event")
		}
	}

	writeJSON(w, http.StatusCreated, issue)
}

func (h *IssueHandler) Get(w http.ResponseWriter, r *http.Request) {
	issueID := mux.Vars(r)["issueID"]
	issue, err := h.issues.GetIssue(r.Context(), issueID)
	if err != nil {
		if err == sql.ErrNoRows {
			http.Error(w, "Issue not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to load issue", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (h *IssueHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := repository.ListIssuesParams{
		Department: q.Get("department"),
		Status:     models.IssueStatus(q.Get("status")),
	}
	if params.Status != "" && !models.IsValidStatus(params.Status) {
		http.Error(w, "Invalid status filter", http.StatusBadRequest)
		return
	}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			params.Limit = n
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			params.Offset = n
		}
	}

	issues, err := h.issues.ListIssues(r.Context(), params)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list issues")
		http.Error(w, "Failed to list issues", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, issues)
}

func (h *IssueHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	issueID := mux.Vars(r)["issueID"]

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	notes := req.Notes
	if req.EstimatedResolutionTime != "" {
		if notes != "" {
			notes += " "
		}
		notes += "ETA: " + req.EstimatedResolutionTime
	}

	issue, err := h.machine.Transition(r.Context(), issueID, models.IssueStatus(req.Status), userID, notes)
	if err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (h *IssueHandler) Assign(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	issueID := mux.Vars(r)["issueID"]

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Department == "" {
		http.Error(w, "department is required", http.StatusBadRequest)
		return
	}

	issue, err := h.machine.Assign(r.Context(), issueID, req.AssigneeID, req.Department, userID)
	if err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (h *IssueHandler) Upvote(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	issueID := mux.Vars(r)["issueID"]

	count, upvoted, err := h.machine.ToggleUpvote(r.Context(), issueID, userID)
	if err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"upvotes":   count,
		"isUpvoted": upvoted,
	})
}

func (h *IssueHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	issueID := mux.Vars(r)["issueID"]

	var req addCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Body == "" {
		http.Error(w, "body is required", http.StatusBadRequest)
		return
	}

	comment, err := h.machine.AddComment(r.Context(), issueID, userID, req.Body)
	if err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

// writeLifecycleError maps domain errors to HTTP statuses.
func (h *IssueHandler) writeLifecycleError(w http.ResponseWriter, err error) {
	switch {
	case err == lifecycle.ErrNotFound:
		http.Error(w, "Issue not found", http.StatusNotFound)
	case err == lifecycle.ErrUnauthorized:
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	case err == lifecycle.ErrForbidden:
		http.Error(w, "Forbidden", http.StatusForbidden)
	case err == lifecycle.ErrInvalidAssignee:
		http.Error(w, "Assignee does not belong to the target department", http.StatusBadRequest)
	case lifecycle.IsInvalidTransition(err):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.logger.Error().Err(err).Msg("issue operation failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
