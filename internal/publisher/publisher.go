// Package publisher forwards approved drafts to social platforms.
package publisher

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tashasho/social-media-posting-automator/internal/metrics"
	"github.com/tashasho/social-media-posting-automator/internal/models"

	"go.uber.org/zap"
)

// Platform posts text to one social network
type Platform interface {
	Name() string
	Post(ctx context.Context, text string) (postID, url string, err error)
}

// Result is the outcome for one platform
type Result struct {
	Success bool   `json:"success"`
	PostID  string `json:"post_id,omitempty"`
	URL     string `json:"url,omitempty"`
	Error   string `json:"error,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
}

// Results maps platform name to its outcome
type Results map[string]Result

// Succeeded lists the platforms that accepted the post, sorted
func (r Results) Succeeded() []string {
	var names []string
	for name, res := range r {
		if res.Success {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Failures lists "platform: error" for each failed, non-skipped platform, sorted
func (r Results) Failures() []string {
	var out []string
	for name, res := range r {
		if !res.Success && !res.Skipped {
			out = append(out, fmt.Sprintf("%s: %s", name, res.Error))
		}
	}
	sort.Strings(out)
	return out
}

// Publisher posts to every configured platform
type Publisher struct {
	platforms []Platform
	skip      map[string]bool
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// New creates a publisher. Platforms named in skip are reported as skipped.
func New(platforms []Platform, skip []string, timeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *Publisher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	skipSet := make(map[string]bool, len(skip))
	for _, name := range skip {
		skipSet[strings.ToLower(strings.TrimSpace(name))] = true
	}
	return &Publisher{
		platforms: platforms,
		skip:      skipSet,
		timeout:   timeout,
		metrics:   m,
		logger:    logger,
	}
}

// Platforms returns the configured platform names
func (p *Publisher) Platforms() []string {
	names := make([]string, 0, len(p.platforms))
	for _, pl := range p.platforms {
		names = append(names, pl.Name())
	}
	return names
}

// Publish posts the draft text everywhere. Failures are recorded per platform.
func (p *Publisher) Publish(ctx context.Context, d *models.Draft) Results {
	results := make(Results, len(p.platforms))

	for _, platform := range p.platforms {
		name := platform.Name()
		if p.skip[name] {
			results[name] = Result{Skipped: true}
			p.metrics.ObservePublication(name, false, true)
			continue
		}

		postCtx, cancel := context.WithTimeout(ctx, p.timeout)
		postID, url, err := platform.Post(postCtx, d.Text)
		cancel()

		if err != nil {
			p.logger.Error("Publication failed",
				zap.String("platform", name),
				zap.String("draft_id", d.ID),
				zap.Error(err))
			results[name] = Result{Error: err.Error()}
			p.metrics.ObservePublication(name, false, false)
			continue
		}

		p.logger.Info("Published draft",
			zap.String("platform", name),
			zap.String("draft_id", d.ID),
			zap.String("post_id", postID))
		results[name] = Result{Success: true, PostID: postID, URL: url}
		p.metrics.ObservePublication(name, true, false)
	}

	return results
}
