// Package handler serves the Slack webhooks and the operator endpoints.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tashasho/social-media-posting-automator/internal/dispatcher"
	"github.com/tashasho/social-media-posting-automator/internal/metrics"
	"github.com/tashasho/social-media-posting-automator/internal/middleware"
	"github.com/tashasho/social-media-posting-automator/internal/models"
	"github.com/tashasho/social-media-posting-automator/internal/signature"
	"github.com/tashasho/social-media-posting-automator/internal/slackbot"
)

const maxBodyBytes = 1 << 20

// DraftReader is the read side of the draft store
type DraftReader interface {
	ListPending() ([]models.DraftSummary, error)
	ListStale(olderThan time.Duration) ([]models.DraftSummary, error)
	Counts() (pending, approved int, err error)
}

// Dispatcher applies decoded decisions
type Dispatcher interface {
	Dispatch(ctx context.Context, ev dispatcher.Event) dispatcher.Outcome
}

// RequestVerifier authenticates raw request bodies
type RequestVerifier interface {
	Verify(body []byte, timestamp, sig string) bool
}

// AuditReader summarizes the decision trail
type AuditReader interface {
	CountByAction(ctx context.Context) (map[string]int, error)
}

// Handler handles HTTP requests
type Handler struct {
	drafts     DraftReader
	dispatcher Dispatcher
	verifier   RequestVerifier
	audit      AuditReader
	metrics    *metrics.Metrics
	pendingTTL time.Duration
	opsSecret  []byte
	now        func() time.Time
	logger     *zap.Logger
}

// Option configures a Handler
type Option func(*Handler)

// WithPendingTTL sets the age after which pending drafts count as stale
func WithPendingTTL(ttl time.Duration) Option {
	return func(h *Handler) { h.pendingTTL = ttl }
}

// WithOpsSecret protects the operator endpoints with JWTs signed by secret
func WithOpsSecret(secret string) Option {
	return func(h *Handler) { h.opsSecret = []byte(secret) }
}

// WithMetrics records webhook metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithAudit adds per-action audit totals to the health report
func WithAudit(a AuditReader) Option {
	return func(h *Handler) { h.audit = a }
}

// WithClock overrides the clock used in health reports
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// NewHandler creates a new HTTP handler
func NewHandler(drafts DraftReader, d Dispatcher, verifier RequestVerifier, logger *zap.Logger, opts ...Option) *Handler {
	h := &Handler{
		drafts:     drafts,
		dispatcher: d,
		verifier:   verifier,
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers all routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.Use(middleware.RequestLogger(h.metrics, h.logger))

	slack := r.Group("/slack")
	{
		slack.POST("/actions", h.SlackActions)
		slack.POST("/events", h.SlackEvents)
	}

	r.GET("/health", h.HealthCheck)

	r.GET("/drafts", middleware.AuthMiddleware(h.opsSecret, h.logger), h.ListDrafts)

	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}
}

// readVerified reads the raw body and checks its signature. The body must be
// read before any form parsing so the exact bytes are authenticated.
func (h *Handler) readVerified(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		if isBodyTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "body too large"})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return nil, false
	}

	if !h.verifier.Verify(body, c.GetHeader(signature.HeaderTimestamp), c.GetHeader(signature.HeaderSignature)) {
		h.metrics.ObserveSignatureFailure()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return nil, false
	}
	return body, true
}

// SlackActions handles interactive button clicks and modal submissions
func (h *Handler) SlackActions(c *gin.Context) {
	body, ok := h.readVerified(c)
	if !ok {
		return
	}

	in, err := slackbot.ParsePayload(c.GetHeader("Content-Type"), body)
	if err != nil {
		h.logger.Warn("Rejecting malformed interaction payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "no payload"})
		return
	}

	out := h.dispatcher.Dispatch(c.Request.Context(), slackbot.EventFromCallback(in))

	if in.IsViewSubmission() {
		switch {
		case out.ValidationError != "":
			c.JSON(http.StatusOK, gin.H{
				"response_action": "errors",
				"errors":          gin.H{slackbot.EditTextBlockID: out.ValidationError},
			})
		case out.ClearView:
			c.JSON(http.StatusOK, gin.H{"response_action": "clear"})
		default:
			c.Status(http.StatusOK)
		}
		return
	}

	if out.Ack == "" {
		c.Status(http.StatusOK)
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": out.Ack})
}

// SlackEvents answers the Events API url_verification handshake
func (h *Handler) SlackEvents(c *gin.Context) {
	body, ok := h.readVerified(c)
	if !ok {
		return
	}

	var event struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON"})
		return
	}

	if event.Type == "url_verification" {
		c.JSON(http.StatusOK, gin.H{"challenge": event.Challenge})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// HealthCheck reports draft counts
func (h *Handler) HealthCheck(c *gin.Context) {
	pending, approved, err := h.drafts.Counts()
	if err != nil {
		h.logger.Error("Failed to count drafts", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "draft store unavailable"})
		return
	}

	stale, err := h.drafts.ListStale(h.pendingTTL)
	if err != nil {
		h.logger.Warn("Failed to list stale drafts", zap.Error(err))
	}
	h.metrics.SetDraftGauges(pending, len(stale))

	report := gin.H{
		"status":          "healthy",
		"timestamp":       h.now().UTC().Format(time.RFC3339),
		"pending_drafts":  pending,
		"approved_drafts": approved,
		"stale_drafts":    len(stale),
	}

	if h.audit != nil {
		counts, err := h.audit.CountByAction(c.Request.Context())
		if err != nil {
			h.logger.Warn("Failed to summarize audit trail", zap.Error(err))
		} else {
			report["audit"] = counts
		}
	}

	c.JSON(http.StatusOK, report)
}

// ListDrafts returns redacted summaries of pending drafts
func (h *Handler) ListDrafts(c *gin.Context) {
	drafts, err := h.drafts.ListPending()
	if err != nil {
		h.logger.Error("Failed to list drafts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list drafts"})
		return
	}
	if drafts == nil {
		drafts = []models.DraftSummary{}
	}

	c.JSON(http.StatusOK, gin.H{
		"drafts": drafts,
		"count":  len(drafts),
	})
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
