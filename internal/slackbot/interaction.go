package slackbot

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/slack-go/slack"

	"github.com/tashasho/social-media-posting-automator/internal/dispatcher"
	"github.com/tashasho/social-media-posting-automator/internal/models"
)

// ErrNoPayload is returned when a request carries no interaction payload
var ErrNoPayload = errors.New("no interaction payload")

// Interaction is a decoded interactivity callback
type Interaction struct {
	slack.InteractionCallback
	// Username is user.username, which slack.User does not decode
	Username string
}

// IsViewSubmission reports whether the callback is a modal submission
func (i *Interaction) IsViewSubmission() bool {
	return i.Type == slack.InteractionTypeViewSubmission
}

// ParsePayload decodes an interactivity request body. Slack sends a form with
// a single payload field; a raw JSON body is accepted as well.
func ParsePayload(contentType string, body []byte) (*Interaction, error) {
	raw := body
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("failed to parse form body: %w", err)
		}
		payload := form.Get("payload")
		if payload == "" {
			return nil, ErrNoPayload
		}
		raw = []byte(payload)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, ErrNoPayload
	}

	var cb slack.InteractionCallback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return nil, fmt.Errorf("failed to decode interaction payload: %w", err)
	}

	var extra struct {
		User struct {
			Username string `json:"username"`
		} `json:"user"`
	}
	if err := json.Unmarshal(raw, &extra); err != nil {
		return nil, fmt.Errorf("failed to decode interaction user: %w", err)
	}

	return &Interaction{InteractionCallback: cb, Username: extra.User.Username}, nil
}

// EventFromCallback maps a Slack interaction onto a dispatcher event
func EventFromCallback(in *Interaction) dispatcher.Event {
	actor := models.Actor{ID: in.User.ID, Name: in.Username}
	if actor.Name == "" {
		actor.Name = in.User.Name
	}

	switch in.Type {
	case slack.InteractionTypeBlockActions:
		ev := dispatcher.Event{
			Actor:     actor,
			TriggerID: in.TriggerID,
			Thread:    callbackThread(in),
		}
		if len(in.ActionCallback.BlockActions) == 0 {
			return ev
		}
		action := in.ActionCallback.BlockActions[0]
		ev.DraftRef = action.Value
		ev.RawAction = action.ActionID
		switch action.ActionID {
		case ActionApprove:
			ev.Kind = dispatcher.ActionApprove
		case ActionReject:
			ev.Kind = dispatcher.ActionReject
		case ActionEdit:
			ev.Kind = dispatcher.ActionOpenEditor
		}
		return ev

	case slack.InteractionTypeViewSubmission:
		if in.View.CallbackID != EditCallbackID {
			return dispatcher.Event{Actor: actor, RawAction: in.View.CallbackID}
		}
		meta := DecodeEditMetadata(in.View.PrivateMetadata)
		return dispatcher.Event{
			Kind:      dispatcher.ActionSubmitEdit,
			DraftRef:  meta.DraftRef,
			Actor:     actor,
			Thread:    meta.Thread(),
			NewText:   submittedText(in.View),
			RawAction: EditCallbackID,
		}

	default:
		return dispatcher.Event{Actor: actor, RawAction: string(in.Type)}
	}
}

func callbackThread(in *Interaction) models.Thread {
	t := models.Thread{ChannelID: in.Container.ChannelID, MessageTS: in.Container.MessageTs}
	if t.ChannelID == "" {
		t.ChannelID = in.Channel.ID
	}
	if t.MessageTS == "" {
		t.MessageTS = in.Message.Timestamp
	}
	return t
}

func submittedText(view slack.View) string {
	if view.State == nil {
		return ""
	}
	return view.State.Values[EditTextBlockID][EditTextActionID].Value
}
