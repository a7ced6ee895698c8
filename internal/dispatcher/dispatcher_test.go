package dispatcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tashasho/social-media-posting-automator/internal/critic"
	"github.com/tashasho/social-media-posting-automator/internal/models"
	"github.com/tashasho/social-media-posting-automator/internal/publisher"
	"github.com/tashasho/social-media-posting-automator/internal/repository"
	"github.com/tashasho/social-media-posting-automator/internal/sources"
	"github.com/tashasho/social-media-posting-automator/internal/writer"

	"go.uber.org/zap"
)

var (
	fixedNow = time.Unix(1730000000, 0).UTC()
	alice    = models.Actor{ID: "U1", Name: "alice"}
	thread   = models.Thread{ChannelID: "C1", MessageTS: "1730000000.000100"}
)

type recordingPlatform struct {
	name  string
	err   error
	mu    sync.Mutex
	texts []string
}

func (p *recordingPlatform) Name() string { return p.name }

func (p *recordingPlatform) Post(_ context.Context, text string) (string, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.texts = append(p.texts, text)
	if p.err != nil {
		return "", "", p.err
	}
	return "post-1", "https://example.com/post-1", nil
}

type recordingMessenger struct {
	mu        sync.Mutex
	decisions []string
	notices   []string
	editors   []string
	editorErr error
}

func (m *recordingMessenger) UpdateDecision(_ context.Context, _ models.Thread, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, text)
	return nil
}

func (m *recordingMessenger) PostThreadNotice(_ context.Context, _ models.Thread, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = append(m.notices, text)
	return nil
}

func (m *recordingMessenger) OpenEditor(_ context.Context, triggerID, ref string, _ *models.Draft, _ models.Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.editors = append(m.editors, triggerID+"|"+ref)
	return m.editorErr
}

type memoryAudit struct {
	mu      sync.Mutex
	entries []models.AuditEntry
}

func (a *memoryAudit) Record(_ context.Context, e models.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return nil
}

func (a *memoryAudit) actions() []models.AuditAction {
	var out []models.AuditAction
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type fixture struct {
	store     *repository.FileDraftStore
	pending   string
	approved  string
	platform  *recordingPlatform
	messenger *recordingMessenger
	audit     *memoryAudit
	d         *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		pending:   filepath.Join(root, "pending"),
		approved:  filepath.Join(root, "approved"),
		platform:  &recordingPlatform{name: "twitter"},
		messenger: &recordingMessenger{},
		audit:     &memoryAudit{},
	}

	store, err := repository.NewFileDraftStore(f.pending, f.approved, zap.NewNop(),
		repository.WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatal(err)
	}
	f.store = store

	pub := publisher.New([]publisher.Platform{f.platform}, nil, time.Second, nil, zap.NewNop())
	f.d = New(store, pub, f.messenger, zap.NewNop(), WithAudit(f.audit))
	return f
}

func (f *fixture) create(t *testing.T, text string) string {
	t.Helper()
	d := models.NewDraft(text, fixedNow.Add(-time.Minute))
	d.Attempt = 1
	d.CriticResult = "SAFE"
	name, err := f.store.Create(d)
	if err != nil {
		t.Fatal(err)
	}
	return name
}

type safeCritic struct{}

func (safeCritic) Evaluate(context.Context, string) critic.Verdict { return critic.ParseVerdict("SAFE") }

type onceGenerator struct{ text string }

func (g onceGenerator) Generate(context.Context, models.GenerationRequest) (string, error) {
	return g.text, nil
}

type noNews struct{}

func (noNews) Latest(context.Context) (*sources.NewsSnapshot, error) { return nil, nil }

type noExamples struct{}

func (noExamples) Sample(context.Context, int) ([]sources.StyleExample, error) { return nil, nil }

func TestGenerateThenApprovePublishesOnce(t *testing.T) {
	f := newFixture(t)

	loop := writer.NewLoop(writer.Config{}, onceGenerator{"Seed is the new Series A."}, safeCritic{},
		noNews{}, noExamples{}, f.store, zap.NewNop(), writer.WithClock(func() time.Time { return fixedNow }))
	draft, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	out := f.d.Dispatch(context.Background(), Event{
		Kind:     ActionApprove,
		DraftRef: draft.FileName(),
		Actor:    alice,
		Thread:   thread,
	})
	if !out.OK || out.Ack != AckApproved {
		t.Fatalf("outcome = %+v", out)
	}

	if len(f.platform.texts) != 1 || f.platform.texts[0] != "Seed is the new Series A." {
		t.Errorf("published texts = %q", f.platform.texts)
	}
	if _, err := os.Stat(filepath.Join(f.approved, draft.FileName())); err != nil {
		t.Errorf("approved copy missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.pending, draft.FileName())); !os.IsNotExist(err) {
		t.Errorf("pending copy still present: %v", err)
	}

	if len(f.messenger.decisions) != 1 || f.messenger.decisions[0] != "*Approved & posted* by <@U1> ✅" {
		t.Errorf("decisions = %q", f.messenger.decisions)
	}
	if len(f.messenger.notices) != 1 || !strings.Contains(f.messenger.notices[0], "twitter") {
		t.Errorf("notices = %q", f.messenger.notices)
	}
	if got := f.audit.actions(); len(got) != 2 || got[0] != models.AuditApproved || got[1] != models.AuditPublish {
		t.Errorf("audit actions = %v", got)
	}
}

func TestSecondApproveIsNotFound(t *testing.T) {
	f := newFixture(t)
	name := f.create(t, "Original body")

	first := f.d.Dispatch(context.Background(), Event{Kind: ActionApprove, DraftRef: name, Actor: alice})
	second := f.d.Dispatch(context.Background(), Event{Kind: ActionApprove, DraftRef: name, Actor: alice})

	if !first.OK {
		t.Fatalf("first approve failed: %+v", first)
	}
	if second.OK || second.Ack != AckNotFound {
		t.Errorf("second approve = %+v", second)
	}
	if len(f.platform.texts) != 1 {
		t.Errorf("published %d times, want once", len(f.platform.texts))
	}
}

func TestConcurrentApprovePublishesOnce(t *testing.T) {
	f := newFixture(t)
	name := f.create(t, "Original body")

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 8)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = f.d.Dispatch(context.Background(), Event{Kind: ActionApprove, DraftRef: name, Actor: alice})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, out := range outcomes {
		if out.OK {
			ok++
		}
	}
	if ok != 1 {
		t.Errorf("%d approvals succeeded, want 1", ok)
	}
	if len(f.platform.texts) != 1 {
		t.Errorf("published %d times, want once", len(f.platform.texts))
	}
}

func TestSubmitEditApprovesEditedText(t *testing.T) {
	f := newFixture(t)
	name := f.create(t, "Original body")

	out := f.d.Dispatch(context.Background(), Event{
		Kind:     ActionSubmitEdit,
		DraftRef: name,
		Actor:    alice,
		NewText:  "  Edited body \n",
		Thread:   thread,
	})
	if !out.OK || !out.ClearView || out.ValidationError != "" {
		t.Fatalf("outcome = %+v", out)
	}

	d := out.Draft
	if d.Text != "Edited body" || d.OriginalText != "Original body" || d.Status != models.StatusApproved {
		t.Errorf("draft = %+v", d)
	}
	if d.EditedBy != "alice (U1)" || d.ApprovedBy != "alice (U1)" {
		t.Errorf("edited_by = %q approved_by = %q", d.EditedBy, d.ApprovedBy)
	}
	if len(f.platform.texts) != 1 || f.platform.texts[0] != "Edited body" {
		t.Errorf("published = %q", f.platform.texts)
	}
	if got := f.audit.actions(); len(got) != 3 || got[0] != models.AuditEdited {
		t.Errorf("audit actions = %v", got)
	}
}

func TestSubmitEditRejectsBlankText(t *testing.T) {
	f := newFixture(t)
	name := f.create(t, "Original body")

	out := f.d.Dispatch(context.Background(), Event{Kind: ActionSubmitEdit, DraftRef: name, Actor: alice, NewText: "   "})
	if out.OK || out.ValidationError != ErrEmptyEditedText || out.ClearView {
		t.Errorf("outcome = %+v", out)
	}

	d, err := f.store.Load(name)
	if err != nil {
		t.Fatal(err)
	}
	if d.Text != "Original body" || !d.IsPending() {
		t.Errorf("draft changed: %+v", d)
	}
}

func TestRejectNotifiesThread(t *testing.T) {
	f := newFixture(t)
	name := f.create(t, "Original body")

	out := f.d.Dispatch(context.Background(), Event{Kind: ActionReject, DraftRef: name, Actor: alice, Reason: "off-tone", Thread: thread})
	if !out.OK || out.Ack != AckRejected {
		t.Fatalf("outcome = %+v", out)
	}

	if _, err := os.Stat(filepath.Join(f.pending, repository.RejectedPrefix+name)); err != nil {
		t.Errorf("archived draft missing: %v", err)
	}
	if len(f.platform.texts) != 0 {
		t.Error("rejected draft was published")
	}
	if len(f.messenger.decisions) != 1 || f.messenger.decisions[0] != "*Rejected* by <@U1> ❌" {
		t.Errorf("decisions = %q", f.messenger.decisions)
	}
	if len(f.messenger.notices) != 1 || !strings.HasSuffix(f.messenger.notices[0], "off-tone") {
		t.Errorf("notices = %q", f.messenger.notices)
	}

	again := f.d.Dispatch(context.Background(), Event{Kind: ActionApprove, DraftRef: repository.RejectedPrefix + name, Actor: alice})
	if again.OK || again.Ack != AckAlreadyHandled {
		t.Errorf("approve after reject = %+v", again)
	}
}

func TestOpenEditorDoesNotMutate(t *testing.T) {
	f := newFixture(t)
	name := f.create(t, "Original body")

	out := f.d.Dispatch(context.Background(), Event{Kind: ActionOpenEditor, DraftRef: name, Actor: alice, TriggerID: "trig"})
	if !out.OK {
		t.Fatalf("outcome = %+v", out)
	}
	if len(f.messenger.editors) != 1 || f.messenger.editors[0] != "trig|"+name {
		t.Errorf("editors = %q", f.messenger.editors)
	}
	if d, err := f.store.Load(name); err != nil || !d.IsPending() {
		t.Errorf("draft after open editor: %+v, %v", d, err)
	}

	f.messenger.editorErr = errors.New("expired_trigger_id")
	if out := f.d.Dispatch(context.Background(), Event{Kind: ActionOpenEditor, DraftRef: name, Actor: alice}); out.OK {
		t.Errorf("editor failure reported OK: %+v", out)
	}
}

func TestNotFoundAndUnknown(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		ev   Event
		ok   bool
		ack  string
	}{
		{"missing draft", Event{Kind: ActionApprove, DraftRef: "nope.json"}, false, AckNotFound},
		{"traversal", Event{Kind: ActionReject, DraftRef: "../../etc/passwd"}, false, AckNotFound},
		{"empty ref", Event{Kind: ActionApprove}, false, AckNotFound},
		{"unknown action", Event{Kind: ActionUnknown, RawAction: "snooze_post"}, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := f.d.Dispatch(context.Background(), tt.ev)
			if out.OK != tt.ok || out.Ack != tt.ack {
				t.Errorf("outcome = %+v", out)
			}
		})
	}
	if len(f.audit.entries) != 0 || len(f.platform.texts) != 0 {
		t.Error("no-op events caused side effects")
	}
}

func TestPublicationFailureKeepsApproval(t *testing.T) {
	f := newFixture(t)
	f.platform.err = errors.New("401 unauthorized")
	name := f.create(t, "Original body")

	out := f.d.Dispatch(context.Background(), Event{Kind: ActionApprove, DraftRef: name, Actor: alice, Thread: thread})
	if !out.OK || out.Draft.Status != models.StatusApproved {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Ack != AckApprovedUnposted {
		t.Errorf("ack = %q", out.Ack)
	}
	if len(f.messenger.notices) != 1 || !strings.HasPrefix(f.messenger.notices[0], "⚠️ *Posting failed*: twitter: 401") {
		t.Errorf("notices = %q", f.messenger.notices)
	}
}

func TestPublicationNotices(t *testing.T) {
	got := PublicationNotices(publisher.Results{"linkedin": {Skipped: true}})
	if len(got) != 1 || !strings.HasPrefix(got[0], "ℹ️") {
		t.Errorf("all skipped: %q", got)
	}

	got = PublicationNotices(publisher.Results{
		"twitter":  {Success: true},
		"linkedin": {Error: "boom"},
		"telegram": {Success: true},
	})
	if len(got) != 2 || got[0] != "✅ *Posted successfully* to: telegram, twitter" || got[1] != "⚠️ *Posting failed*: linkedin: boom" {
		t.Errorf("mixed: %q", got)
	}
}
