package slackbot

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/tashasho/social-media-posting-automator/internal/dispatcher"
	"github.com/tashasho/social-media-posting-automator/internal/models"
)

const draftName = "2024-10-27T03-33-20.000000Z_abcd1234.json"

func testDraft() *models.Draft {
	d := models.NewDraft("Seed rounds are back.", time.Unix(1730000000, 0))
	d.Attempt = 2
	d.Model = "gemini-2.0-flash"
	d.NewsSource = "https://news.example.com/seed"
	return d
}

func TestReviewBlocks(t *testing.T) {
	d := testDraft()
	d.Text = strings.Repeat("x", 3000)

	blocks := ReviewBlocks(draftName, d)
	if len(blocks) != 5 {
		t.Fatalf("got %d blocks", len(blocks))
	}

	section, ok := blocks[1].(*slack.SectionBlock)
	if !ok {
		t.Fatalf("block 1 is %T", blocks[1])
	}
	if got := len([]rune(section.Text.Text)); got != maxReviewTextSize+3 {
		t.Errorf("body length = %d", got)
	}

	actions, ok := blocks[4].(*slack.ActionBlock)
	if !ok {
		t.Fatalf("block 4 is %T", blocks[4])
	}
	if actions.BlockID != ApprovalBlockID || len(actions.Elements.ElementSet) != 3 {
		t.Fatalf("actions = %+v", actions)
	}

	wantIDs := []string{ActionApprove, ActionReject, ActionEdit}
	for i, el := range actions.Elements.ElementSet {
		btn := el.(*slack.ButtonBlockElement)
		if btn.ActionID != wantIDs[i] || btn.Value != draftName {
			t.Errorf("button %d = %s/%s", i, btn.ActionID, btn.Value)
		}
	}
	if actions.Elements.ElementSet[0].(*slack.ButtonBlockElement).Confirm == nil {
		t.Error("approve button has no confirm dialog")
	}
}

func TestEditMetadataRoundTripAndFallback(t *testing.T) {
	meta := EditMetadata{DraftRef: draftName, ChannelID: "C1", MessageTS: "1.2"}
	if got := DecodeEditMetadata(meta.Encode()); got != meta {
		t.Errorf("decoded = %+v", got)
	}
	if got := DecodeEditMetadata(draftName); got.DraftRef != draftName || !got.Thread().IsZero() {
		t.Errorf("bare ref decoded as %+v", got)
	}
}

func TestEditModal(t *testing.T) {
	modal := EditModal(draftName, testDraft(), models.Thread{ChannelID: "C1", MessageTS: "1.2"})

	if modal.CallbackID != EditCallbackID || modal.Submit.Text != "Save & Approve" {
		t.Errorf("modal = %+v", modal)
	}
	input := modal.Blocks.BlockSet[0].(*slack.InputBlock)
	el := input.Element.(*slack.PlainTextInputBlockElement)
	if input.BlockID != EditTextBlockID || el.ActionID != EditTextActionID || !el.Multiline {
		t.Errorf("input = %+v", input)
	}
	if el.InitialValue != "Seed rounds are back." {
		t.Errorf("initial value = %q", el.InitialValue)
	}
	if DecodeEditMetadata(modal.PrivateMetadata).MessageTS != "1.2" {
		t.Errorf("metadata = %q", modal.PrivateMetadata)
	}
}

func formBody(t *testing.T, payload any) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return []byte(url.Values{"payload": {string(raw)}}.Encode())
}

func TestEventFromBlockAction(t *testing.T) {
	tests := []struct {
		actionID string
		want     dispatcher.ActionKind
	}{
		{ActionApprove, dispatcher.ActionApprove},
		{ActionReject, dispatcher.ActionReject},
		{ActionEdit, dispatcher.ActionOpenEditor},
		{"snooze_post", dispatcher.ActionUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.actionID, func(t *testing.T) {
			body := formBody(t, map[string]any{
				"type":       "block_actions",
				"trigger_id": "trig-1",
				"user":       map[string]any{"id": "U1", "username": "alice", "name": "alice.s"},
				"container":  map[string]any{"channel_id": "C1", "message_ts": "1730000000.000100"},
				"actions":    []map[string]any{{"action_id": tt.actionID, "block_id": ApprovalBlockID, "value": draftName}},
			})

			in, err := ParsePayload("application/x-www-form-urlencoded", body)
			if err != nil {
				t.Fatalf("ParsePayload: %v", err)
			}
			ev := EventFromCallback(in)

			if ev.Kind != tt.want || ev.DraftRef != draftName || ev.RawAction != tt.actionID {
				t.Errorf("event = %+v", ev)
			}
			if ev.Actor != (models.Actor{ID: "U1", Name: "alice"}) {
				t.Errorf("actor = %+v", ev.Actor)
			}
			if ev.Thread != (models.Thread{ChannelID: "C1", MessageTS: "1730000000.000100"}) || ev.TriggerID != "trig-1" {
				t.Errorf("thread = %+v trigger = %q", ev.Thread, ev.TriggerID)
			}
		})
	}
}

func TestEventFromViewSubmission(t *testing.T) {
	meta := EditMetadata{DraftRef: draftName, ChannelID: "C1", MessageTS: "1.2"}
	body := formBody(t, map[string]any{
		"type": "view_submission",
		"user": map[string]any{"id": "U2", "name": "bob"},
		"view": map[string]any{
			"callback_id":      EditCallbackID,
			"private_metadata": meta.Encode(),
			"state": map[string]any{
				"values": map[string]any{
					EditTextBlockID: map[string]any{
						EditTextActionID: map[string]any{"type": "plain_text_input", "value": "Edited body"},
					},
				},
			},
		},
	})

	in, err := ParsePayload("application/x-www-form-urlencoded; charset=utf-8", body)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if !in.IsViewSubmission() {
		t.Fatal("expected view submission")
	}

	ev := EventFromCallback(in)
	if ev.Kind != dispatcher.ActionSubmitEdit || ev.DraftRef != draftName || ev.NewText != "Edited body" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Actor.Name != "bob" || ev.Thread != meta.Thread() {
		t.Errorf("actor = %+v thread = %+v", ev.Actor, ev.Thread)
	}
}

func TestParsePayloadErrors(t *testing.T) {
	if _, err := ParsePayload("application/x-www-form-urlencoded", []byte("foo=bar")); err != ErrNoPayload {
		t.Errorf("missing payload: %v", err)
	}
	if _, err := ParsePayload("application/json", nil); err != ErrNoPayload {
		t.Errorf("empty body: %v", err)
	}
	if _, err := ParsePayload("application/json", []byte("{not json")); err == nil {
		t.Error("expected decode error")
	}
	if _, err := ParsePayload("application/json", []byte(`{"type":"block_actions","user":{"id":"U3","username":42}}`)); err == nil {
		t.Error("expected error for non-string username")
	}
	in, err := ParsePayload("application/json", []byte(`{"type":"shortcut","user":{"id":"U3"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if ev := EventFromCallback(in); ev.Kind != dispatcher.ActionUnknown || ev.Actor.Name != "" {
		t.Errorf("event = %+v", ev)
	}
}

type slackRequest struct {
	path string
	form url.Values
	body string
}

func fakeSlack(t *testing.T) (*httptest.Server, *[]slackRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []slackRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))

		mu.Lock()
		seen = append(seen, slackRequest{path: r.URL.Path, form: form, body: string(body)})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/chat.postMessage":
			io.WriteString(w, `{"ok":true,"channel":"C1","ts":"1730000000.000100"}`)
		case "/chat.update":
			io.WriteString(w, `{"ok":true,"channel":"C1","ts":"1730000000.000100","text":"done"}`)
		case "/views.open":
			io.WriteString(w, `{"ok":true,"view":{"id":"V1"}}`)
		default:
			io.WriteString(w, `{"ok":false,"error":"unknown_method"}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestClientCalls(t *testing.T) {
	srv, seen := fakeSlack(t)
	c := NewClient("xoxb-test", "C1", zap.NewNop(), WithAPIURL(srv.URL+"/"), WithHTTPClient(srv.Client()))
	ctx := context.Background()
	thread := models.Thread{ChannelID: "C1", MessageTS: "1730000000.000100"}

	if err := c.RequestReview(ctx, draftName, testDraft()); err != nil {
		t.Fatalf("RequestReview: %v", err)
	}
	if err := c.PostThreadNotice(ctx, thread, "✅ *Posted successfully* to: twitter"); err != nil {
		t.Fatalf("PostThreadNotice: %v", err)
	}
	if err := c.UpdateDecision(ctx, thread, "*Approved & posted* by <@U1> ✅"); err != nil {
		t.Fatalf("UpdateDecision: %v", err)
	}
	if err := c.OpenEditor(ctx, "trig-1", draftName, testDraft(), thread); err != nil {
		t.Fatalf("OpenEditor: %v", err)
	}

	reqs := *seen
	if len(reqs) != 4 {
		t.Fatalf("got %d requests", len(reqs))
	}
	if reqs[0].path != "/chat.postMessage" || !strings.Contains(reqs[0].form.Get("blocks"), ActionApprove) {
		t.Errorf("review request = %+v", reqs[0])
	}
	if reqs[1].form.Get("thread_ts") != thread.MessageTS {
		t.Errorf("thread notice not threaded: %+v", reqs[1].form)
	}
	if reqs[2].path != "/chat.update" || reqs[2].form.Get("ts") != thread.MessageTS {
		t.Errorf("update = %+v", reqs[2])
	}
	if reqs[3].path != "/views.open" || !strings.Contains(reqs[3].body, EditCallbackID) {
		t.Errorf("views.open = %+v", reqs[3])
	}

	if err := c.OpenEditor(ctx, "", draftName, testDraft(), thread); err == nil {
		t.Error("expected error without trigger id")
	}
}

func TestDisabledClientIsNoop(t *testing.T) {
	c := NewClient("", "C1", zap.NewNop())
	if c.Enabled() {
		t.Fatal("client without token must be disabled")
	}
	ctx := context.Background()
	if err := c.RequestReview(ctx, draftName, testDraft()); err != nil {
		t.Error(err)
	}
	if err := c.UpdateDecision(ctx, models.Thread{}, "x"); err != nil {
		t.Error(err)
	}
}
