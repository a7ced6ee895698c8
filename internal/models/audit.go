package models

import "time"

// AuditAction names a recorded draft transition
type AuditAction string

const (
	AuditCreated  AuditAction = "created"
	AuditApproved AuditAction = "approved"
	AuditRejected AuditAction = "rejected"
	AuditEdited   AuditAction = "edited"
	AuditExpired  AuditAction = "expired"
	AuditPublish  AuditAction = "published"
)

// AuditEntry is one row of the draft audit trail
type AuditEntry struct {
	ID        string      `json:"id" db:"id"`
	DraftRef  string      `json:"draft_ref" db:"draft_ref"`
	DraftID   string      `json:"draft_id" db:"draft_id"`
	Action    AuditAction `json:"action" db:"action"`
	Actor     string      `json:"actor" db:"actor"`
	Detail    string      `json:"detail,omitempty" db:"detail"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}
