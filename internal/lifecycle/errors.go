package lifecycle

import (
	"errors"
	"fmt"

	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/models"
)

var (
	// ErrNotFound is returned when the referenced issue does not exist.
	ErrNotFound = errors.New("issue not found")

	// ErrUnauthorized is returned when the acting identity cannot be resolved.
	ErrUnauthorized = errors.New("unknown actor")

	// ErrForbidden is returned when the actor is authenticated but lacks the
	// role or department match required for the operation.
	ErrForbidden = errors.New("actor not permitted for this issue")

	// ErrInvalidAssignee is returned when the proposed assignee does not
	// belong to the target department.
	ErrInvalidAssignee = errors.New("assignee does not belong to department")
)

// InvalidTransitionError is returned when the target status is not reachable
// from the issue's current status.
type InvalidTransitionError struct {
	From models.IssueStatus
	To   models.IssueStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}
