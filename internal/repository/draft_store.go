package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/tashasho/social-media-posting-automator/internal/models"
)

// RejectedPrefix marks archived rejected drafts inside the pending collection
const RejectedPrefix = "REJECTED_"

const previewLength = 100

// lockDirName holds one lock file per draft inside the pending collection
const lockDirName = ".locks"

var (
	ErrDraftNotFound     = errors.New("draft not found")
	ErrInvalidTransition = models.ErrInvalidTransition
	ErrDraftExists       = errors.New("draft already exists")
)

// DraftStore persists drafts across the pending and approved collections
type DraftStore interface {
	Create(d *models.Draft) (string, error)
	Load(name string) (*models.Draft, error)
	Approve(name string, actor models.Actor) (*models.Draft, error)
	Reject(name string, actor models.Actor, reason string) (*models.Draft, error)
	Edit(name, newText string, actor models.Actor) (*models.Draft, error)
	ListPending() ([]models.DraftSummary, error)
	ListStale(olderThan time.Duration) ([]models.DraftSummary, error)
	Counts() (pending, approved int, err error)
}

var _ DraftStore = (*FileDraftStore)(nil)

// FileDraftStore keeps one JSON file per draft in two directories. Every
// operation on a draft holds an in-process lock and an OS file lock, so
// separate processes sharing the directories see each transition whole.
type FileDraftStore struct {
	pendingDir  string
	approvedDir string
	lockDir     string
	locks       *KeyedMutex
	now         func() time.Time
	logger      *zap.Logger
}

// StoreOption configures a FileDraftStore
type StoreOption func(*FileDraftStore)

// WithClock overrides the clock used to stamp transitions
func WithClock(now func() time.Time) StoreOption {
	return func(s *FileDraftStore) {
		s.now = now
	}
}

// NewFileDraftStore creates both collection directories if needed
func NewFileDraftStore(pendingDir, approvedDir string, logger *zap.Logger, opts ...StoreOption) (*FileDraftStore, error) {
	lockDir := filepath.Join(pendingDir, lockDirName)
	for _, dir := range []string{pendingDir, approvedDir, lockDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create draft directory %s: %w", dir, err)
		}
	}

	s := &FileDraftStore{
		pendingDir:  pendingDir,
		approvedDir: approvedDir,
		lockDir:     lockDir,
		locks:       NewKeyedMutex(),
		now:         time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	logger.Info("Draft store initialized",
		zap.String("pending_dir", pendingDir),
		zap.String("approved_dir", approvedDir))

	return s, nil
}

// lock serializes work on one draft within this process and across
// processes. Lock files are left in place; removing them would let two
// holders lock different inodes under the same name.
func (s *FileDraftStore) lock(name string) (func(), error) {
	unlock := s.locks.Lock(name)

	fl := flock.New(filepath.Join(s.lockDir, name+".lock"))
	if err := fl.Lock(); err != nil {
		unlock()
		return nil, fmt.Errorf("failed to lock draft %s: %w", name, err)
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			s.logger.Warn("Failed to release draft lock", zap.String("file", name), zap.Error(err))
		}
		unlock()
	}, nil
}

// ResolveName reduces an external draft reference to a bare file name
func ResolveName(ref string) (string, error) {
	name := filepath.Base(strings.TrimSpace(ref))
	switch name {
	case "", ".", "..", string(filepath.Separator):
		return "", fmt.Errorf("%w: %q", ErrDraftNotFound, ref)
	}
	return name, nil
}

// Create writes a new draft into the pending collection
func (s *FileDraftStore) Create(d *models.Draft) (string, error) {
	name := d.FileName()
	unlock, err := s.lock(name)
	if err != nil {
		return "", err
	}
	defer unlock()

	path := filepath.Join(s.pendingDir, name)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%w: %s", ErrDraftExists, name)
	}

	if err := writeJSON(path, d); err != nil {
		return "", err
	}

	s.logger.Info("Draft created",
		zap.String("file", name),
		zap.String("draft_id", d.ID),
		zap.Int("attempt", d.Attempt))

	return name, nil
}

// Load reads a draft from the pending collection
func (s *FileDraftStore) Load(ref string) (*models.Draft, error) {
	name, err := ResolveName(ref)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lock(name)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return readJSON(filepath.Join(s.pendingDir, name))
}

// Approve stamps the draft and moves it to the approved collection. The
// pending copy is removed only after the approved copy is on disk.
func (s *FileDraftStore) Approve(ref string, actor models.Actor) (*models.Draft, error) {
	name, err := ResolveName(ref)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lock(name)
	if err != nil {
		return nil, err
	}
	defer unlock()

	src := filepath.Join(s.pendingDir, name)
	d, err := readJSON(src)
	if err != nil {
		return nil, err
	}

	if err := d.Approve(actor, s.now()); err != nil {
		return nil, err
	}

	dst := filepath.Join(s.approvedDir, name)
	if err := writeJSON(dst, d); err != nil {
		return nil, fmt.Errorf("failed to write approved draft: %w", err)
	}

	if err := s.removeSource(src, dst); err != nil {
		return nil, err
	}

	s.logger.Info("Draft approved",
		zap.String("file", name),
		zap.String("draft_id", d.ID),
		zap.String("actor", d.ApprovedBy))

	return d, nil
}

// Reject archives the draft as REJECTED_<name> inside the pending collection
func (s *FileDraftStore) Reject(ref string, actor models.Actor, reason string) (*models.Draft, error) {
	name, err := ResolveName(ref)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lock(name)
	if err != nil {
		return nil, err
	}
	defer unlock()

	src := filepath.Join(s.pendingDir, name)
	d, err := readJSON(src)
	if err != nil {
		return nil, err
	}

	if err := d.Reject(actor, reason, s.now()); err != nil {
		return nil, err
	}

	dst := filepath.Join(s.pendingDir, RejectedPrefix+name)
	if err := writeJSON(dst, d); err != nil {
		return nil, fmt.Errorf("failed to write rejected draft: %w", err)
	}

	if err := s.removeSource(src, dst); err != nil {
		return nil, err
	}

	s.logger.Info("Draft rejected",
		zap.String("file", name),
		zap.String("draft_id", d.ID),
		zap.String("actor", d.RejectedBy),
		zap.String("reason", reason))

	return d, nil
}

// removeSource deletes the pending copy after dst was written. If the pending
// copy is already gone another writer finished a transition first, so dst is
// withdrawn and the draft stays where that writer put it.
func (s *FileDraftStore) removeSource(src, dst string) error {
	err := os.Remove(src)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove pending draft: %w", err)
	}

	if rmErr := os.Remove(dst); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		s.logger.Error("Failed to withdraw draft copy", zap.String("file", dst), zap.Error(rmErr))
	}
	return fmt.Errorf("%w: %s was moved concurrently", ErrDraftNotFound, filepath.Base(src))
}

// Edit replaces the text of a pending draft in place
func (s *FileDraftStore) Edit(ref, newText string, actor models.Actor) (*models.Draft, error) {
	name, err := ResolveName(ref)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lock(name)
	if err != nil {
		return nil, err
	}
	defer unlock()

	path := filepath.Join(s.pendingDir, name)
	d, err := readJSON(path)
	if err != nil {
		return nil, err
	}

	if err := d.Edit(newText, actor, s.now()); err != nil {
		return nil, err
	}

	if err := writeJSON(path, d); err != nil {
		return nil, fmt.Errorf("failed to write edited draft: %w", err)
	}

	s.logger.Info("Draft edited",
		zap.String("file", name),
		zap.String("draft_id", d.ID),
		zap.String("actor", d.EditedBy),
		zap.Int("word_count", d.WordCount))

	return d, nil
}

// ListPending returns redacted summaries of drafts awaiting review, oldest first
func (s *FileDraftStore) ListPending() ([]models.DraftSummary, error) {
	names, err := listDrafts(s.pendingDir)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.DraftSummary, 0, len(names))
	for _, name := range names {
		d, err := readJSON(filepath.Join(s.pendingDir, name))
		if err != nil {
			s.logger.Warn("Skipping unreadable draft", zap.String("file", name), zap.Error(err))
			continue
		}
		summaries = append(summaries, models.DraftSummary{
			Filename:  name,
			Status:    d.Status,
			CreatedAt: d.CreatedAt,
			WordCount: d.WordCount,
			Preview:   d.Preview(previewLength),
		})
	}

	return summaries, nil
}

// ListStale returns pending drafts created more than olderThan ago
func (s *FileDraftStore) ListStale(olderThan time.Duration) ([]models.DraftSummary, error) {
	if olderThan <= 0 {
		return nil, nil
	}

	pending, err := s.ListPending()
	if err != nil {
		return nil, err
	}

	cutoff := s.now().Add(-olderThan)
	var stale []models.DraftSummary
	for _, summary := range pending {
		if summary.CreatedAt.Before(cutoff) {
			stale = append(stale, summary)
		}
	}
	return stale, nil
}

// Counts returns the number of pending and approved drafts
func (s *FileDraftStore) Counts() (int, int, error) {
	pending, err := listDrafts(s.pendingDir)
	if err != nil {
		return 0, 0, err
	}
	approved, err := listDrafts(s.approvedDir)
	if err != nil {
		return 0, 0, err
	}
	return len(pending), len(approved), nil
}

// listDrafts returns the sorted draft file names of a collection, without
// archived rejections and in-flight temp files.
func listDrafts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || strings.HasPrefix(name, RejectedPrefix) {
			continue
		}
		if filepath.Ext(name) != ".json" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func readJSON(path string) (*models.Draft, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, filepath.Base(path))
		}
		return nil, fmt.Errorf("failed to read draft: %w", err)
	}

	var d models.Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %s is not a valid draft: %v", ErrDraftNotFound, filepath.Base(path), err)
	}
	return &d, nil
}

// writeJSON writes through a temp file in the target directory and renames it
// into place, so readers never observe a partial draft.
func writeJSON(path string, d *models.Draft) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write draft: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync draft: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close draft: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move draft into place: %w", err)
	}
	return nil
}
