package repository

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tashasho/social-media-posting-automator/internal/models"

	"go.uber.org/zap"
)

var (
	fixedNow = time.Unix(1730000000, 0).UTC()
	alice    = models.Actor{ID: "U1", Name: "alice"}
)

func newTestStore(t *testing.T) (*FileDraftStore, string, string) {
	t.Helper()
	root := t.TempDir()
	pending := filepath.Join(root, "pending")
	approved := filepath.Join(root, "approved")

	s, err := NewFileDraftStore(pending, approved, zap.NewNop(), WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("NewFileDraftStore: %v", err)
	}
	return s, pending, approved
}

func createDraft(t *testing.T, s *FileDraftStore, text string) string {
	t.Helper()
	d := models.NewDraft(text, fixedNow.Add(-time.Hour))
	d.Attempt = 1
	d.CriticResult = "SAFE"
	name, err := s.Create(d)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return name
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestCreateAndLoad(t *testing.T) {
	s, pending, _ := newTestStore(t)
	name := createDraft(t, s, "Original body")

	if !exists(filepath.Join(pending, name)) {
		t.Fatalf("draft file %s not written", name)
	}

	d, err := s.Load(name)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d.Text != "Original body" || d.Status != models.StatusPending || d.Attempt != 1 {
		t.Errorf("unexpected draft: %+v", d)
	}

	if _, err := s.Create(models.NewDraft("Original body", fixedNow.Add(-time.Hour))); !errors.Is(err, ErrDraftExists) {
		t.Errorf("duplicate create: got %v, want ErrDraftExists", err)
	}
}

func TestApproveMovesDraft(t *testing.T) {
	s, pending, approved := newTestStore(t)
	name := createDraft(t, s, "Original body")

	d, err := s.Approve(name, alice)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}

	if exists(filepath.Join(pending, name)) {
		t.Error("draft still present in pending")
	}
	if !exists(filepath.Join(approved, name)) {
		t.Fatal("draft missing from approved")
	}
	if d.Status != models.StatusApproved {
		t.Errorf("status = %q", d.Status)
	}
	if d.ApprovedAt == nil || !d.ApprovedAt.Equal(fixedNow) {
		t.Errorf("approved_at = %v", d.ApprovedAt)
	}
	if d.ApprovedBy != "alice (U1)" {
		t.Errorf("approved_by = %q", d.ApprovedBy)
	}

	stored, err := readJSON(filepath.Join(approved, name))
	if err != nil {
		t.Fatalf("read approved copy: %v", err)
	}
	if stored.Status != models.StatusApproved {
		t.Errorf("stored status = %q", stored.Status)
	}

	if _, err := s.Approve(name, alice); !errors.Is(err, ErrDraftNotFound) {
		t.Errorf("second approve: got %v, want ErrDraftNotFound", err)
	}
}

func TestApproveKeepsPendingWhenWriteFails(t *testing.T) {
	s, pending, approved := newTestStore(t)
	name := createDraft(t, s, "Original body")

	// A non-empty directory in the way makes the final rename fail.
	blocker := filepath.Join(approved, name)
	if err := os.MkdirAll(filepath.Join(blocker, "x"), 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Approve(name, alice); err == nil {
		t.Fatal("expected approve to fail")
	}

	d, err := readJSON(filepath.Join(pending, name))
	if err != nil {
		t.Fatalf("pending copy lost: %v", err)
	}
	if d.Status != models.StatusPending {
		t.Errorf("pending copy was modified: status %q", d.Status)
	}
}

func TestRejectArchives(t *testing.T) {
	s, pending, _ := newTestStore(t)
	name := createDraft(t, s, "Original body")

	d, err := s.Reject(name, alice, "off-tone")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}

	if exists(filepath.Join(pending, name)) {
		t.Error("unmarked draft still in pending")
	}
	archived, err := readJSON(filepath.Join(pending, RejectedPrefix+name))
	if err != nil {
		t.Fatalf("archived draft missing: %v", err)
	}
	if archived.Status != models.StatusRejected || archived.RejectionReason != "off-tone" {
		t.Errorf("archived = %+v", archived)
	}
	if d.RejectedBy != "alice (U1)" {
		t.Errorf("rejected_by = %q", d.RejectedBy)
	}

	list, err := s.ListPending()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("rejected draft leaked into pending listing: %+v", list)
	}
}

func TestRejectedDraftCannotBeApproved(t *testing.T) {
	s, _, _ := newTestStore(t)
	name := createDraft(t, s, "Original body")

	if _, err := s.Reject(name, alice, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Approve(RejectedPrefix+name, alice); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("got %v, want ErrInvalidTransition", err)
	}
}

func TestEditTwiceKeepsFirstOriginal(t *testing.T) {
	s, _, _ := newTestStore(t)
	name := createDraft(t, s, "Original body")

	if _, err := s.Edit(name, "Second body", alice); err != nil {
		t.Fatal(err)
	}
	d, err := s.Edit(name, "Third body text", alice)
	if err != nil {
		t.Fatal(err)
	}

	if d.OriginalText != "Original body" {
		t.Errorf("original_text = %q", d.OriginalText)
	}
	loaded, err := s.Load(name)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Text != "Third body text" || loaded.WordCount != 3 || loaded.OriginalText != "Original body" {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestPathTraversal(t *testing.T) {
	s, _, _ := newTestStore(t)

	name, err := ResolveName("../../etc/passwd")
	if err != nil {
		t.Fatal(err)
	}
	if name != "passwd" {
		t.Errorf("ResolveName = %q, want passwd", name)
	}

	for _, ref := range []string{"../../etc/passwd", "..", "", "/", "  "} {
		if _, err := s.Load(ref); !errors.Is(err, ErrDraftNotFound) {
			t.Errorf("Load(%q): got %v, want ErrDraftNotFound", ref, err)
		}
		if _, err := s.Approve(ref, alice); !errors.Is(err, ErrDraftNotFound) {
			t.Errorf("Approve(%q): got %v, want ErrDraftNotFound", ref, err)
		}
	}
}

func TestLoadCorruptDraft(t *testing.T) {
	s, pending, _ := newTestStore(t)
	if err := os.WriteFile(filepath.Join(pending, "broken.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load("broken.json"); !errors.Is(err, ErrDraftNotFound) {
		t.Errorf("got %v, want ErrDraftNotFound", err)
	}
}

func TestListingAndCounts(t *testing.T) {
	s, pending, _ := newTestStore(t)

	first := createDraft(t, s, strings.Repeat("word ", 40))
	second := createDraft(t, s, "A second draft")
	third := createDraft(t, s, "A third draft")

	if _, err := s.Approve(second, alice); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Reject(third, alice, "no"); err != nil {
		t.Fatal(err)
	}
	// Stray files are ignored.
	os.WriteFile(filepath.Join(pending, ".tmp-partial"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(pending, "notes.txt"), []byte("x"), 0o644)

	list, err := s.ListPending()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Filename != first {
		t.Fatalf("ListPending = %+v", list)
	}
	if !strings.HasSuffix(list[0].Preview, "...") || len([]rune(list[0].Preview)) != 103 {
		t.Errorf("preview = %q", list[0].Preview)
	}

	p, a, err := s.Counts()
	if err != nil {
		t.Fatal(err)
	}
	if p != 1 || a != 1 {
		t.Errorf("Counts = %d, %d; want 1, 1", p, a)
	}
}

func TestListStale(t *testing.T) {
	s, _, _ := newTestStore(t)
	createDraft(t, s, "created an hour ago")

	tests := []struct {
		ttl  time.Duration
		want int
	}{
		{0, 0},
		{30 * time.Minute, 1},
		{2 * time.Hour, 0},
	}
	for _, tt := range tests {
		stale, err := s.ListStale(tt.ttl)
		if err != nil {
			t.Fatal(err)
		}
		if len(stale) != tt.want {
			t.Errorf("ListStale(%v) = %d drafts, want %d", tt.ttl, len(stale), tt.want)
		}
	}
}

func TestTwoStoresShareDirectories(t *testing.T) {
	server, pending, approved := newTestStore(t)
	expiry, err := NewFileDraftStore(pending, approved, zap.NewNop(), WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatal(err)
	}

	const drafts = 20
	names := make([]string, drafts)
	for i := range names {
		d := models.NewDraft("Draft number "+strings.Repeat("x", i+1), fixedNow.Add(-time.Duration(i+1)*time.Minute))
		if names[i], err = server.Create(d); err != nil {
			t.Fatal(err)
		}
	}

	for _, name := range names {
		var (
			wg                 sync.WaitGroup
			approveErr, rejErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, approveErr = server.Approve(name, alice)
		}()
		go func() {
			defer wg.Done()
			_, rejErr = expiry.Reject(name, models.SystemExpiry, "expired")
		}()
		wg.Wait()

		if (approveErr == nil) == (rejErr == nil) {
			t.Fatalf("%s: approve err = %v, reject err = %v; want exactly one success", name, approveErr, rejErr)
		}
		loser := approveErr
		if loser == nil {
			loser = rejErr
		}
		if !errors.Is(loser, ErrDraftNotFound) {
			t.Errorf("%s: losing transition err = %v, want ErrDraftNotFound", name, loser)
		}

		locations := 0
		for _, p := range []string{
			filepath.Join(pending, name),
			filepath.Join(approved, name),
			filepath.Join(pending, RejectedPrefix+name),
		} {
			if exists(p) {
				locations++
			}
		}
		if locations != 1 {
			t.Errorf("%s is in %d locations, want 1", name, locations)
		}
	}

	p, _, err := server.Counts()
	if err != nil {
		t.Fatal(err)
	}
	if p != 0 {
		t.Errorf("%d drafts still pending", p)
	}
}

func TestRemoveSourceWithdrawsCopyWhenSourceIsGone(t *testing.T) {
	s, pending, approved := newTestStore(t)
	dst := filepath.Join(approved, "gone.json")
	if err := writeJSON(dst, models.NewDraft("late copy", fixedNow)); err != nil {
		t.Fatal(err)
	}

	err := s.removeSource(filepath.Join(pending, "gone.json"), dst)
	if !errors.Is(err, ErrDraftNotFound) {
		t.Fatalf("err = %v, want ErrDraftNotFound", err)
	}
	if exists(dst) {
		t.Error("copy written for a vanished draft was kept")
	}
}
