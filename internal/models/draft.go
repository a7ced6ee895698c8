package models

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DraftStatus is the lifecycle state of a draft
type DraftStatus string

const (
	StatusPending  DraftStatus = "pending_approval"
	StatusApproved DraftStatus = "approved"
	StatusRejected DraftStatus = "rejected"
)

// ErrInvalidTransition is returned when a draft is asked to leave a terminal state
var ErrInvalidTransition = errors.New("invalid draft transition")

// fileTimeLayout keeps draft file names sortable; ':' is not allowed on every filesystem.
const fileTimeLayout = "2006-01-02T15-04-05.000000Z"

// Actor identifies the human (or system job) behind a transition
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// String renders the actor the way it is stored on the draft: "name (id)"
func (a Actor) String() string {
	name := a.Name
	if name == "" {
		name = "unknown"
	}
	return fmt.Sprintf("%s (%s)", name, a.ID)
}

// SystemExpiry is the actor used by the pending expiry job
var SystemExpiry = Actor{ID: "expiry", Name: "system"}

// Draft is a generated post moving through review
type Draft struct {
	ID              string      `json:"draft_id"`
	Text            string      `json:"text"`
	OriginalText    string      `json:"original_text,omitempty"`
	Status          DraftStatus `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	ApprovedAt      *time.Time  `json:"approved_at,omitempty"`
	ApprovedBy      string      `json:"approved_by,omitempty"`
	RejectedAt      *time.Time  `json:"rejected_at,omitempty"`
	RejectedBy      string      `json:"rejected_by,omitempty"`
	RejectionReason string      `json:"rejection_reason,omitempty"`
	EditedAt        *time.Time  `json:"edited_at,omitempty"`
	EditedBy        string      `json:"edited_by,omitempty"`
	Attempt         int         `json:"attempt"`
	CriticResult    string      `json:"critic_result"`
	WordCount       int         `json:"word_count"`

	// Provenance, fixed at creation
	NewsSource      string `json:"news_source,omitempty"`
	NewsScrapedAt   string `json:"news_scraped_at,omitempty"`
	Model           string `json:"model,omitempty"`
	RAGExamplesUsed int    `json:"rag_examples_used"`
}

// NewDraft builds a pending draft for accepted text
func NewDraft(text string, createdAt time.Time) *Draft {
	return &Draft{
		ID:        ContentID(text),
		Text:      text,
		Status:    StatusPending,
		CreatedAt: createdAt.UTC(),
		WordCount: WordCount(text),
	}
}

// ContentID returns the short content-derived identifier of a text
func ContentID(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])[:8]
}

// WordCount counts whitespace separated words
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// FileName is the storage key of the draft inside the pending collection
func (d *Draft) FileName() string {
	return d.CreatedAt.UTC().Format(fileTimeLayout) + "_" + d.ID + ".json"
}

// IsPending reports whether the draft still awaits a decision
func (d *Draft) IsPending() bool {
	return d.Status == StatusPending
}

// Approve moves a pending draft to approved
func (d *Draft) Approve(actor Actor, at time.Time) error {
	if !d.IsPending() {
		return fmt.Errorf("%w: approve from %s", ErrInvalidTransition, d.Status)
	}
	at = at.UTC()
	d.Status = StatusApproved
	d.ApprovedAt = &at
	d.ApprovedBy = actor.String()
	return nil
}

// Reject moves a pending draft to rejected
func (d *Draft) Reject(actor Actor, reason string, at time.Time) error {
	if !d.IsPending() {
		return fmt.Errorf("%w: reject from %s", ErrInvalidTransition, d.Status)
	}
	at = at.UTC()
	d.Status = StatusRejected
	d.RejectedAt = &at
	d.RejectedBy = actor.String()
	d.RejectionReason = reason
	return nil
}

// Edit replaces the text of a pending draft. The first edit preserves the
// generated text in OriginalText; later edits leave it alone.
func (d *Draft) Edit(text string, actor Actor, at time.Time) error {
	if !d.IsPending() {
		return fmt.Errorf("%w: edit from %s", ErrInvalidTransition, d.Status)
	}
	if d.OriginalText == "" {
		d.OriginalText = d.Text
	}
	at = at.UTC()
	d.Text = text
	d.WordCount = WordCount(text)
	d.EditedAt = &at
	d.EditedBy = actor.String()
	return nil
}

// Preview returns the first n characters of the text followed by an ellipsis
func (d *Draft) Preview(n int) string {
	runes := []rune(d.Text)
	if len(runes) <= n {
		return d.Text
	}
	return string(runes[:n]) + "..."
}

// DraftSummary is the redacted listing entry served to operators
type DraftSummary struct {
	Filename  string      `json:"filename"`
	Status    DraftStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	WordCount int         `json:"word_count"`
	Preview   string      `json:"preview"`
}

// GenerationRequest is a single call to a text generation provider
type GenerationRequest struct {
	Prompt      string
	Temperature float32
	MaxTokens   int
}

// Thread locates the review message a decision belongs to
type Thread struct {
	ChannelID string `json:"channel_id,omitempty"`
	MessageTS string `json:"message_ts,omitempty"`
}

// IsZero reports whether the thread is unknown
func (t Thread) IsZero() bool {
	return t.ChannelID == "" || t.MessageTS == ""
}
