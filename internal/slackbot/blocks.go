package slackbot

import (
	"encoding/json"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/tashasho/social-media-posting-automator/internal/models"
)

// Block and action ids shared by outbound messages and inbound callbacks
const (
	ApprovalBlockID   = "approval_actions"
	ActionApprove     = "approve_post"
	ActionReject      = "reject_post"
	ActionEdit        = "edit_post"
	EditCallbackID    = "edit_draft_modal"
	EditTextBlockID   = "draft_text_block"
	EditTextActionID  = "draft_text_input"
	maxReviewTextSize = 2800
)

// ReviewBlocks renders the review request for a pending draft
func ReviewBlocks(name string, d *models.Draft) []slack.Block {
	text := d.Text
	if runes := []rune(text); len(runes) > maxReviewTextSize {
		text = string(runes[:maxReviewTextSize]) + "..."
	}

	source := d.NewsSource
	if source == "" {
		source = "N/A"
	}

	header := slack.NewHeaderBlock(
		slack.NewTextBlockObject(slack.PlainTextType, "📝 New Draft Ready for Review", true, false))

	body := slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)

	details := slack.NewContextBlock("draft_context",
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("📰 Source: %s", source), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("🕐 Generated: %s", d.CreatedAt.Format("2006-01-02 15:04 UTC")), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("📊 Words: %d | Model: %s | Attempt: %d", d.WordCount, d.Model, d.Attempt), false, false),
	)

	approve := slack.NewButtonBlockElement(ActionApprove, name,
		slack.NewTextBlockObject(slack.PlainTextType, "✅ Approve & Post", true, false)).
		WithStyle(slack.StylePrimary)
	approve.Confirm = slack.NewConfirmationBlockObject(
		slack.NewTextBlockObject(slack.PlainTextType, "Post this draft?", false, false),
		slack.NewTextBlockObject(slack.MarkdownType, "It will be published to every configured platform.", false, false),
		slack.NewTextBlockObject(slack.PlainTextType, "Post", false, false),
		slack.NewTextBlockObject(slack.PlainTextType, "Cancel", false, false),
	)

	reject := slack.NewButtonBlockElement(ActionReject, name,
		slack.NewTextBlockObject(slack.PlainTextType, "❌ Reject", true, false)).
		WithStyle(slack.StyleDanger)

	edit := slack.NewButtonBlockElement(ActionEdit, name,
		slack.NewTextBlockObject(slack.PlainTextType, "✏️ Edit", true, false))

	return []slack.Block{
		header,
		body,
		details,
		slack.NewDividerBlock(),
		slack.NewActionBlock(ApprovalBlockID, approve, reject, edit),
	}
}

// DecisionBlocks replaces the review request once a decision is made
func DecisionBlocks(text string) []slack.Block {
	return []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil),
	}
}

// EditMetadata travels in the modal's private metadata
type EditMetadata struct {
	DraftRef  string `json:"draft_ref"`
	ChannelID string `json:"channel_id,omitempty"`
	MessageTS string `json:"message_ts,omitempty"`
}

// Thread returns the review message the edit came from
func (m EditMetadata) Thread() models.Thread {
	return models.Thread{ChannelID: m.ChannelID, MessageTS: m.MessageTS}
}

// Encode renders the metadata for private_metadata
func (m EditMetadata) Encode() string {
	data, err := json.Marshal(m)
	if err != nil {
		return m.DraftRef
	}
	return string(data)
}

// DecodeEditMetadata reads private_metadata. A value that is not JSON is taken
// as a bare draft reference.
func DecodeEditMetadata(raw string) EditMetadata {
	var m EditMetadata
	if err := json.Unmarshal([]byte(raw), &m); err != nil || m.DraftRef == "" {
		return EditMetadata{DraftRef: raw}
	}
	return m
}

// EditModal builds the edit form prefilled with the draft text
func EditModal(ref string, d *models.Draft, thread models.Thread) slack.ModalViewRequest {
	input := slack.NewPlainTextInputBlockElement(
		slack.NewTextBlockObject(slack.PlainTextType, "Edit the post text", false, false),
		EditTextActionID)
	input.Multiline = true
	input.InitialValue = d.Text

	block := slack.NewInputBlock(EditTextBlockID,
		slack.NewTextBlockObject(slack.PlainTextType, "Draft text", false, false),
		nil, input)

	meta := EditMetadata{DraftRef: ref, ChannelID: thread.ChannelID, MessageTS: thread.MessageTS}

	return slack.ModalViewRequest{
		Type:            slack.VTModal,
		CallbackID:      EditCallbackID,
		Title:           slack.NewTextBlockObject(slack.PlainTextType, "Edit Draft", false, false),
		Submit:          slack.NewTextBlockObject(slack.PlainTextType, "Save & Approve", false, false),
		Close:           slack.NewTextBlockObject(slack.PlainTextType, "Cancel", false, false),
		Blocks:          slack.Blocks{BlockSet: []slack.Block{block}},
		PrivateMetadata: meta.Encode(),
	}
}
