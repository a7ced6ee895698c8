// Package writer runs the generate-then-review loop that produces drafts.
package writer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tashasho/social-media-posting-automator/internal/critic"
	"github.com/tashasho/social-media-posting-automator/internal/metrics"
	"github.com/tashasho/social-media-posting-automator/internal/models"
	"github.com/tashasho/social-media-posting-automator/internal/sources"

	"go.uber.org/zap"
)

// ErrAttemptsExhausted means no candidate passed review within the attempt bound
var ErrAttemptsExhausted = errors.New("no draft passed review")

// Generator produces candidate text
type Generator interface {
	Generate(ctx context.Context, req models.GenerationRequest) (string, error)
}

// Critic reviews candidate text
type Critic interface {
	Evaluate(ctx context.Context, text string) critic.Verdict
}

// DraftCreator persists accepted drafts
type DraftCreator interface {
	Create(d *models.Draft) (string, error)
}

// ReviewNotifier asks a human to review a freshly stored draft
type ReviewNotifier interface {
	RequestReview(ctx context.Context, name string, d *models.Draft) error
}

// AuditLog records draft transitions
type AuditLog interface {
	Record(ctx context.Context, e models.AuditEntry) error
}

// Config tunes the loop
type Config struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	Temperature  float32       `yaml:"temperature"`
	MaxTokens    int           `yaml:"max_tokens"`
	ExampleCount int           `yaml:"example_count"`
	CallTimeout  time.Duration `yaml:"call_timeout"`
	Model        string        `yaml:"-"`
}

// WithDefaults fills unset fields
func (c Config) WithDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 500
	}
	if c.ExampleCount <= 0 {
		c.ExampleCount = 5
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 60 * time.Second
	}
	return c
}

// Loop produces at most one reviewed draft per Run
type Loop struct {
	cfg       Config
	generator Generator
	critic    Critic
	news      sources.NewsSource
	examples  sources.ExampleSource
	store     DraftCreator
	notifier  ReviewNotifier
	audit     AuditLog
	metrics   *metrics.Metrics
	now       func() time.Time
	logger    *zap.Logger
}

// Option configures a Loop
type Option func(*Loop)

// WithNotifier sends a review request after each stored draft
func WithNotifier(n ReviewNotifier) Option {
	return func(l *Loop) { l.notifier = n }
}

// WithAudit records created drafts
func WithAudit(a AuditLog) Option {
	return func(l *Loop) { l.audit = a }
}

// WithMetrics counts attempts and verdicts
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// WithClock overrides the creation clock
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// NewLoop wires a loop. The generator and critic should be separate provider instances.
func NewLoop(cfg Config, generator Generator, crit Critic, news sources.NewsSource, examples sources.ExampleSource, store DraftCreator, logger *zap.Logger, opts ...Option) *Loop {
	l := &Loop{
		cfg:       cfg.WithDefaults(),
		generator: generator,
		critic:    crit,
		news:      news,
		examples:  examples,
		store:     store,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run generates candidates until one passes review or attempts run out.
// Only accepted text is ever persisted.
func (l *Loop) Run(ctx context.Context) (*models.Draft, error) {
	news, err := l.news.Latest(ctx)
	if err != nil {
		l.logger.Warn("News unavailable, continuing without it", zap.Error(err))
		news = nil
	}

	examples, err := l.examples.Sample(ctx, l.cfg.ExampleCount)
	if err != nil {
		l.logger.Warn("Style examples unavailable, continuing without them", zap.Error(err))
		examples = nil
	}

	prompt := BuildPrompt(news, examples)

	for attempt := 1; attempt <= l.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		l.logger.Info("Generation attempt",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", l.cfg.MaxAttempts))

		text, err := l.generate(ctx, prompt)
		if err != nil {
			l.logger.Error("Generation failed", zap.Int("attempt", attempt), zap.Error(err))
			l.metrics.ObserveAttempt("generation_error")
			continue
		}

		words := models.WordCount(text)
		verdict := l.critic.Evaluate(ctx, text)
		if !verdict.Safe() {
			l.logger.Warn("Draft rejected by critic",
				zap.Int("attempt", attempt),
				zap.Int("word_count", words),
				zap.String("verdict", verdict.Kind.String()),
				zap.String("reason", verdict.Reason))
			l.metrics.ObserveAttempt(verdict.Kind.String())
			prompt += Feedback(verdict.Reason)
			continue
		}
		l.metrics.ObserveAttempt(verdict.Kind.String())

		d := models.NewDraft(text, l.now())
		d.Attempt = attempt
		d.CriticResult = verdict.Result()
		d.NewsSource = news.PrimaryURL()
		if news != nil {
			d.NewsScrapedAt = news.ScrapedAt
		}
		d.Model = l.cfg.Model
		d.RAGExamplesUsed = len(examples)

		name, err := l.store.Create(d)
		if err != nil {
			return nil, fmt.Errorf("failed to save draft: %w", err)
		}
		l.metrics.ObserveTransition(string(models.AuditCreated))

		l.logger.Info("Draft accepted",
			zap.String("file", name),
			zap.String("draft_id", d.ID),
			zap.Int("attempt", attempt),
			zap.Int("word_count", words))

		l.record(ctx, name, d)
		l.requestReview(ctx, name, d)

		return d, nil
	}

	l.logger.Error("All generation attempts failed", zap.Int("attempts", l.cfg.MaxAttempts))
	return nil, fmt.Errorf("%w after %d attempts", ErrAttemptsExhausted, l.cfg.MaxAttempts)
}

func (l *Loop) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.CallTimeout)
	defer cancel()

	text, err := l.generator.Generate(ctx, models.GenerationRequest{
		Prompt:      prompt,
		Temperature: l.cfg.Temperature,
		MaxTokens:   l.cfg.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("generator returned empty text")
	}
	return text, nil
}

func (l *Loop) record(ctx context.Context, name string, d *models.Draft) {
	if l.audit == nil {
		return
	}
	err := l.audit.Record(ctx, models.AuditEntry{
		DraftRef:  name,
		DraftID:   d.ID,
		Action:    models.AuditCreated,
		Actor:     "writer",
		Detail:    fmt.Sprintf("attempt %d", d.Attempt),
		CreatedAt: d.CreatedAt,
	})
	if err != nil {
		l.logger.Error("Failed to record audit entry", zap.String("file", name), zap.Error(err))
	}
}

// requestReview failures are logged only; the draft is already committed.
func (l *Loop) requestReview(ctx context.Context, name string, d *models.Draft) {
	if l.notifier == nil {
		return
	}
	if err := l.notifier.RequestReview(ctx, name, d); err != nil {
		l.logger.Error("Failed to send review request", zap.String("file", name), zap.Error(err))
	}
}
