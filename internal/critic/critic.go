// Package critic asks an independent model whether a draft is safe to show a reviewer.
package critic

import (
	"context"
	_ "embed"
	"strings"
	"time"

	"github.com/tashasho/social-media-posting-automator/internal/models"

	"go.uber.org/zap"
)

//go:embed constitution.md
var Constitution string

const (
	defaultMaxTokens = 150
	defaultTimeout   = 60 * time.Second
	ambiguousPreview = 100
)

// Provider is the model the critic consults
type Provider interface {
	Generate(ctx context.Context, req models.GenerationRequest) (string, error)
}

// VerdictKind classifies a critic response
type VerdictKind int

const (
	VerdictSafe VerdictKind = iota
	VerdictUnsafe
	VerdictAmbiguous
	VerdictError
)

func (k VerdictKind) String() string {
	switch k {
	case VerdictSafe:
		return "safe"
	case VerdictUnsafe:
		return "unsafe"
	case VerdictAmbiguous:
		return "ambiguous"
	case VerdictError:
		return "error"
	default:
		return "unknown"
	}
}

// Verdict is the classified outcome of one review
type Verdict struct {
	Kind   VerdictKind
	Reason string
	Raw    string
}

// Safe reports whether the draft was accepted. Anything but an explicit
// SAFE is a rejection.
func (v Verdict) Safe() bool {
	return v.Kind == VerdictSafe
}

// Result is the verdict string stored on accepted drafts
func (v Verdict) Result() string {
	if v.Safe() {
		return "SAFE"
	}
	return "UNSAFE: " + v.Reason
}

// ParseVerdict classifies a raw critic response by its prefix
func ParseVerdict(raw string) Verdict {
	text := strings.TrimSpace(raw)
	upper := strings.ToUpper(text)

	switch {
	case strings.HasPrefix(upper, "SAFE"):
		return Verdict{Kind: VerdictSafe, Raw: raw}
	case strings.HasPrefix(upper, "UNSAFE"):
		reason := text
		if _, after, ok := strings.Cut(text, ":"); ok {
			reason = strings.TrimSpace(after)
		}
		return Verdict{Kind: VerdictUnsafe, Reason: reason, Raw: raw}
	default:
		return Verdict{
			Kind:   VerdictAmbiguous,
			Reason: "Critic gave ambiguous response: " + truncate(text, ambiguousPreview),
			Raw:    raw,
		}
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// Prompt joins the policy text and the draft under review
func Prompt(policy, draft string) string {
	return policy + "\n\n---\n\nDRAFT TO REVIEW:\n" + draft
}

// Critic reviews drafts against a fixed policy with deterministic settings
type Critic struct {
	provider  Provider
	policy    string
	maxTokens int
	timeout   time.Duration
	logger    *zap.Logger
}

// Option configures a Critic
type Option func(*Critic)

// WithPolicy replaces the embedded constitution
func WithPolicy(policy string) Option {
	return func(c *Critic) {
		c.policy = policy
	}
}

// WithTimeout bounds each critic call
func WithTimeout(d time.Duration) Option {
	return func(c *Critic) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a critic backed by provider
func New(provider Provider, logger *zap.Logger, opts ...Option) *Critic {
	c := &Critic{
		provider:  provider,
		policy:    Constitution,
		maxTokens: defaultMaxTokens,
		timeout:   defaultTimeout,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Evaluate never fails: a provider error becomes a rejecting verdict
func (c *Critic) Evaluate(ctx context.Context, draft string) Verdict {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.provider.Generate(ctx, models.GenerationRequest{
		Prompt:      Prompt(c.policy, draft),
		Temperature: 0,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		c.logger.Error("Critic call failed", zap.Error(err))
		return Verdict{Kind: VerdictError, Reason: "Critic error: " + err.Error()}
	}

	verdict := ParseVerdict(raw)
	c.logger.Info("Critic verdict",
		zap.String("kind", verdict.Kind.String()),
		zap.String("reason", verdict.Reason))
	return verdict
}
