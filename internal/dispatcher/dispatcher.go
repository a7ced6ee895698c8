// Package dispatcher applies verified human decisions to drafts.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tashasho/social-media-posting-automator/internal/metrics"
	"github.com/tashasho/social-media-posting-automator/internal/models"
	"github.com/tashasho/social-media-posting-automator/internal/publisher"
	"github.com/tashasho/social-media-posting-automator/internal/repository"

	"go.uber.org/zap"
)

const (
	AckApproved         = "✅ Draft approved and posted!"
	AckApprovedUnposted = "✅ Draft approved, but it was not posted anywhere."
	AckApproveFailed    = "❌ Failed to approve draft."
	AckRejected         = "❌ Draft rejected."
	AckRejectFailed     = "❌ Failed to reject draft."
	AckNotFound         = "❌ Draft not found."
	AckAlreadyHandled   = "⚠️ This draft has already been handled."
	AckEditorFailed     = "❌ Could not open the editor."
	ErrEmptyEditedText  = "Text cannot be empty"
)

// Store is the part of the draft store the dispatcher mutates
type Store interface {
	Load(name string) (*models.Draft, error)
	Approve(name string, actor models.Actor) (*models.Draft, error)
	Reject(name string, actor models.Actor, reason string) (*models.Draft, error)
	Edit(name, newText string, actor models.Actor) (*models.Draft, error)
}

// Publisher forwards approved drafts
type Publisher interface {
	Publish(ctx context.Context, d *models.Draft) publisher.Results
}

// Messenger talks back to the review conversation
type Messenger interface {
	UpdateDecision(ctx context.Context, thread models.Thread, text string) error
	PostThreadNotice(ctx context.Context, thread models.Thread, text string) error
	OpenEditor(ctx context.Context, triggerID, ref string, d *models.Draft, thread models.Thread) error
}

// AuditLog records transitions
type AuditLog interface {
	Record(ctx context.Context, e models.AuditEntry) error
}

// Dispatcher runs one transition sequence per event
type Dispatcher struct {
	store     Store
	publisher Publisher
	messenger Messenger
	audit     AuditLog
	metrics   *metrics.Metrics
	locks     *repository.KeyedMutex
	logger    *zap.Logger
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithAudit records every transition
func WithAudit(a AuditLog) Option {
	return func(d *Dispatcher) { d.audit = a }
}

// WithMetrics counts transitions
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// New creates a dispatcher
func New(store Store, pub Publisher, messenger Messenger, logger *zap.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:     store,
		publisher: pub,
		messenger: messenger,
		locks:     repository.NewKeyedMutex(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch applies ev. It never returns an error: failures become a negative
// acknowledgment so the platform does not retry.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) Outcome {
	logger := d.logger.With(
		zap.String("action", ev.Kind.String()),
		zap.String("draft_ref", ev.DraftRef),
		zap.String("actor", ev.Actor.String()))

	if ev.Kind == ActionUnknown {
		logger.Warn("Ignoring unknown action", zap.String("raw_action", ev.RawAction))
		return Outcome{OK: true}
	}

	if ev.Kind == ActionSubmitEdit && strings.TrimSpace(ev.NewText) == "" {
		return Outcome{ValidationError: ErrEmptyEditedText}
	}

	name, err := repository.ResolveName(ev.DraftRef)
	if err != nil {
		logger.Warn("Event references no draft")
		if ev.Kind == ActionSubmitEdit {
			return Outcome{ValidationError: AckNotFound}
		}
		return Outcome{Ack: AckNotFound}
	}

	unlock := d.locks.Lock(name)
	defer unlock()

	switch ev.Kind {
	case ActionApprove:
		return d.approve(ctx, logger, name, ev)
	case ActionReject:
		return d.reject(ctx, logger, name, ev)
	case ActionOpenEditor:
		return d.openEditor(ctx, logger, name, ev)
	case ActionSubmitEdit:
		return d.submitEdit(ctx, logger, name, ev)
	default:
		logger.Warn("Ignoring unknown action", zap.String("raw_action", ev.RawAction))
		return Outcome{OK: true}
	}
}

func (d *Dispatcher) approve(ctx context.Context, logger *zap.Logger, name string, ev Event) Outcome {
	draft, err := d.store.Approve(name, ev.Actor)
	if err != nil {
		logger.Error("Approve failed", zap.Error(err))
		return Outcome{Ack: failureAck(err, AckApproveFailed)}
	}
	d.record(ctx, logger, name, draft, models.AuditApproved, ev.Actor.String(), "")

	// Publication problems are reported, never rolled back into the draft.
	results := d.publisher.Publish(ctx, draft)
	d.record(ctx, logger, name, draft, models.AuditPublish, ev.Actor.String(), publicationSummary(results))

	if !ev.Thread.IsZero() {
		for _, notice := range PublicationNotices(results) {
			if err := d.messenger.PostThreadNotice(ctx, ev.Thread, notice); err != nil {
				logger.Error("Failed to post thread notice", zap.Error(err))
			}
		}
		if err := d.messenger.UpdateDecision(ctx, ev.Thread, ApprovedDecision(ev.Actor)); err != nil {
			logger.Error("Failed to update review message", zap.Error(err))
		}
	}

	logger.Info("Draft approved",
		zap.String("file", name),
		zap.Strings("published", results.Succeeded()),
		zap.Strings("failed", results.Failures()))

	ack := AckApproved
	if len(results.Succeeded()) == 0 {
		ack = AckApprovedUnposted
	}
	return Outcome{OK: true, Ack: ack, Draft: draft, Publication: results}
}

func (d *Dispatcher) reject(ctx context.Context, logger *zap.Logger, name string, ev Event) Outcome {
	draft, err := d.store.Reject(name, ev.Actor, ev.Reason)
	if err != nil {
		logger.Error("Reject failed", zap.Error(err))
		return Outcome{Ack: failureAck(err, AckRejectFailed)}
	}
	d.record(ctx, logger, name, draft, models.AuditRejected, ev.Actor.String(), ev.Reason)

	if !ev.Thread.IsZero() {
		if err := d.messenger.UpdateDecision(ctx, ev.Thread, RejectedDecision(ev.Actor)); err != nil {
			logger.Error("Failed to update review message", zap.Error(err))
		}
		if err := d.messenger.PostThreadNotice(ctx, ev.Thread, RejectionNotice(ev.Actor, ev.Reason)); err != nil {
			logger.Error("Failed to post thread notice", zap.Error(err))
		}
	}

	logger.Info("Draft rejected", zap.String("file", name))
	return Outcome{OK: true, Ack: AckRejected, Draft: draft}
}

func (d *Dispatcher) openEditor(ctx context.Context, logger *zap.Logger, name string, ev Event) Outcome {
	draft, err := d.store.Load(name)
	if err != nil {
		logger.Error("Cannot open editor", zap.Error(err))
		return Outcome{Ack: failureAck(err, AckEditorFailed)}
	}
	if !draft.IsPending() {
		return Outcome{Ack: AckAlreadyHandled}
	}

	if err := d.messenger.OpenEditor(ctx, ev.TriggerID, name, draft, ev.Thread); err != nil {
		logger.Error("Failed to open editor", zap.Error(err))
		return Outcome{Ack: AckEditorFailed}
	}
	return Outcome{OK: true, Draft: draft}
}

// submitEdit is two transitions, edit then approve, under one lock.
func (d *Dispatcher) submitEdit(ctx context.Context, logger *zap.Logger, name string, ev Event) Outcome {
	edited, err := d.store.Edit(name, strings.TrimSpace(ev.NewText), ev.Actor)
	if err != nil {
		logger.Error("Edit failed", zap.Error(err))
		return Outcome{ValidationError: failureAck(err, "Draft could not be updated")}
	}
	d.record(ctx, logger, name, edited, models.AuditEdited, ev.Actor.String(), "")

	out := d.approve(ctx, logger, name, ev)
	out.ClearView = out.OK
	if !out.OK {
		out.ValidationError = out.Ack
	}
	return out
}

func (d *Dispatcher) record(ctx context.Context, logger *zap.Logger, name string, draft *models.Draft, action models.AuditAction, actor, detail string) {
	d.metrics.ObserveTransition(string(action))
	if d.audit == nil {
		return
	}
	err := d.audit.Record(ctx, models.AuditEntry{
		DraftRef: name,
		DraftID:  draft.ID,
		Action:   action,
		Actor:    actor,
		Detail:   detail,
	})
	if err != nil {
		logger.Error("Failed to record audit entry", zap.String("audit_action", string(action)), zap.Error(err))
	}
}

func failureAck(err error, fallback string) string {
	switch {
	case errors.Is(err, repository.ErrDraftNotFound):
		return AckNotFound
	case errors.Is(err, repository.ErrInvalidTransition):
		return AckAlreadyHandled
	default:
		return fallback
	}
}

func publicationSummary(results publisher.Results) string {
	parts := make([]string, 0, 2)
	if ok := results.Succeeded(); len(ok) > 0 {
		parts = append(parts, "posted: "+strings.Join(ok, ", "))
	}
	if failed := results.Failures(); len(failed) > 0 {
		parts = append(parts, "failed: "+strings.Join(failed, "; "))
	}
	if len(parts) == 0 {
		return "no platforms"
	}
	return strings.Join(parts, " | ")
}

// ApprovedDecision replaces the review message after approval
func ApprovedDecision(actor models.Actor) string {
	return fmt.Sprintf("*Approved & posted* by <@%s> ✅", actor.ID)
}

// RejectedDecision replaces the review message after rejection
func RejectedDecision(actor models.Actor) string {
	return fmt.Sprintf("*Rejected* by <@%s> ❌", actor.ID)
}

// RejectionNotice is posted in the review thread after rejection
func RejectionNotice(actor models.Actor, reason string) string {
	if reason == "" {
		return fmt.Sprintf("❌ Draft rejected by <@%s>", actor.ID)
	}
	return fmt.Sprintf("❌ Draft rejected by <@%s>: %s", actor.ID, reason)
}

// PublicationNotices describes the publication result in the review thread
func PublicationNotices(results publisher.Results) []string {
	var notices []string
	if ok := results.Succeeded(); len(ok) > 0 {
		notices = append(notices, "✅ *Posted successfully* to: "+strings.Join(ok, ", "))
	}
	if failed := results.Failures(); len(failed) > 0 {
		notices = append(notices, "⚠️ *Posting failed*: "+strings.Join(failed, "; "))
	}
	if len(notices) == 0 {
		notices = append(notices, "ℹ️ Approved, but no platform was published to")
	}
	return notices
}
