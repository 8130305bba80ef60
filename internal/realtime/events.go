package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ClientEvent is the closed set of events a connection may send. Raw frames
// are decoded and validated at the boundary; nothing duck-typed reaches the
// core.
type ClientEvent interface {
	eventName() string
}

type JoinIssue struct {
	IssueID string `json:"issueId"`
}

type LeaveIssue struct {
	IssueID string `json:"issueId"`
}

type TypingStart struct {
	IssueID string `json:"issueId"`
}

type TypingStop struct {
	IssueID string `json:"issueId"`
}

// UpdateLocation is accepted from field officers only.
type UpdateLocation struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type IssueStatusUpdate struct {
	IssueID string `json:"issueId"`
	Status  string `json:"status"`
	Notes   string `json:"notes"`
}

type NewComment struct {
	IssueID string `json:"issueId"`
	Comment string `json:"comment"`
}

type DirectMessage struct {
	RecipientID string `json:"recipientId"`
	Message     string `json:"message"`
}

// EmergencyAlert is accepted from administrators only.
type EmergencyAlert struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

func (JoinIssue) eventName() string         { return "join_issue" }
func (LeaveIssue) eventName() string        { return "leave_issue" }
func (TypingStart) eventName() string       { return "typing_start" }
func (TypingStop) eventName() string        { return "typing_stop" }
func (UpdateLocation) eventName() string    { return "update_location" }
func (IssueStatusUpdate) eventName() string { return "issue_status_update" }
func (NewComment) eventName() string        { return "new_comment" }
func (DirectMessage) eventName() string     { return "direct_message" }
func (EmergencyAlert) eventName() string    { return "emergency_alert" }

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// DecodeClientEvent parses one inbound frame into its typed event,
// rejecting unknown event names and structurally invalid payloads.
func DecodeClientEvent(raw []byte) (ClientEvent, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	decode := func(v interface{}) error {
		if len(env.Data) == 0 {
			return fmt.Errorf("event %s requires a payload", env.Event)
		}
		return json.Unmarshal(env.Data, v)
	}

	switch env.Event {
	case "join_issue":
		var evt JoinIssue
		if err := decode(&evt); err != nil {
			return nil, err
		}
		if strings.TrimSpace(evt.IssueID) == "" {
			return nil, fmt.Errorf("join_issue requires issueId")
		}
		return evt, nil
	case "leave_issue":
		var evt LeaveIssue
		if err := decode(&evt); err != nil {
			return nil, err
		}
		if strings.TrimSpace(evt.IssueID) == "" {
			return nil, fmt.Errorf("leave_issue requires issueId")
		}
		return evt, nil
	case "typing_start":
		var evt TypingStart
		if err := decode(&evt); err != nil {
			return nil, err
		}
		if strings.TrimSpace(evt.IssueID) == "" {
			return nil, fmt.Errorf("typing_start requires issueId")
		}
		return evt, nil
	case "typing_stop":
		var evt TypingStop
		if err := decode(&evt); err != nil {
			return nil, err
		}
		if strings.TrimSpace(evt.IssueID) == "" {
			return nil, fmt.Errorf("typing_stop requires issueId")
		}
		return evt, nil
	case "update_location":
		var evt UpdateLocation
		if err := decode(&evt); err != nil {
			return nil, err
		}
		if evt.Lat < -90 || evt.Lat > 90 || evt.Lng < -180 || evt.Lng > 180 {
			return nil, fmt.Errorf("update_location coordinates out of range")
		}
		return evt, nil
	case "issue_status_update":
		var evt IssueStatusUpdate
		if err := decode(&evt); err != nil {
			return nil, err
		}
		if strings.TrimSpace(evt.IssueID) == "" || strings.TrimSpace(evt.Status) == "" {
			return nil, fmt.Errorf("issue_status_update requires issueId and status")
		}
		return evt, nil
	case "new_comment":
		var evt NewComment
		if err := decode(&evt); err != nil {
			return nil, err
		}
		if strings.TrimSpace(evt.IssueID) == "" || strings.TrimSpace(evt.Comment) == "" {
			return nil, fmt.Errorf("new_comment requires issueId and comment")
		}
		return evt, nil
	case "direct_message":
		var evt DirectMessage
		if err := decode(&evt); err != nil {
			return nil, err
		}
		if strings.TrimSpace(evt.RecipientID) == "" || strings.TrimSpace(evt.Message) == "" {
			return nil, fmt.Errorf("direct_message requires recipientId and message")
		}
		return evt, nil
	case "emergency_alert":
		var evt EmergencyAlert
		if err := decode(&evt); err != nil {
			return nil, err
		}
		if strings.TrimSpace(evt.Title) == "" || strings.TrimSpace(evt.Message) == "" {
			return nil, fmt.Errorf("emergency_alert requires title and message")
		}
		return evt, nil
	default:
		return nil, fmt.Errorf("unknown event %q", env.Event)
	}
}
