package dispatcher

import (
	"github.com/tashasho/social-media-posting-automator/internal/models"
	"github.com/tashasho/social-media-posting-automator/internal/publisher"
)

// ActionKind is the closed set of human decisions
type ActionKind int

const (
	ActionUnknown ActionKind = iota
	ActionApprove
	ActionReject
	ActionOpenEditor
	ActionSubmitEdit
)

func (k ActionKind) String() string {
	switch k {
	case ActionApprove:
		return "approve"
	case ActionReject:
		return "reject"
	case ActionOpenEditor:
		return "open_editor"
	case ActionSubmitEdit:
		return "submit_edit"
	default:
		return "unknown"
	}
}

// Event is one verified inbound decision
type Event struct {
	Kind      ActionKind
	DraftRef  string
	Actor     models.Actor
	Thread    models.Thread
	TriggerID string
	NewText   string
	Reason    string
	// RawAction keeps the platform action id for logging unknown actions
	RawAction string
}

// Outcome is what the transport answers with
type Outcome struct {
	OK          bool
	Ack         string
	Draft       *models.Draft
	Publication publisher.Results
	// ValidationError is shown on the edit form instead of closing it
	ValidationError string
	ClearView       bool
}
