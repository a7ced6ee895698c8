// Package sources reads the news context and the style corpus the writer builds its prompt from.
package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"

	"go.uber.org/zap"
)

// Article is one scraped news item
type Article struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url"`
}

// NewsSnapshot is the latest aggregated news context
type NewsSnapshot struct {
	Summary      string    `json:"summary"`
	Articles     []Article `json:"articles"`
	ScrapedAt    string    `json:"scraped_at"`
	ArticleCount int       `json:"article_count"`
}

// PrimaryURL returns the URL of the first article, if any
func (n *NewsSnapshot) PrimaryURL() string {
	if n == nil || len(n.Articles) == 0 {
		return ""
	}
	return n.Articles[0].URL
}

// StyleExample is a curated post used to steer tone
type StyleExample struct {
	Text string `json:"text"`
}

// NewsSource provides the news context for a run
type NewsSource interface {
	Latest(ctx context.Context) (*NewsSnapshot, error)
}

// ExampleSource provides style examples for a run
type ExampleSource interface {
	Sample(ctx context.Context, n int) ([]StyleExample, error)
}

// FileNewsSource reads a JSON snapshot written by the news collector
type FileNewsSource struct {
	path   string
	logger *zap.Logger
}

// NewFileNewsSource creates a news source for path
func NewFileNewsSource(path string, logger *zap.Logger) *FileNewsSource {
	return &FileNewsSource{path: path, logger: logger}
}

// Latest returns nil without error when no snapshot exists yet
func (s *FileNewsSource) Latest(_ context.Context) (*NewsSnapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("News file not found", zap.String("path", s.path))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read news file: %w", err)
	}

	var snapshot NewsSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse news file: %w", err)
	}

	s.logger.Info("Loaded news",
		zap.Int("article_count", snapshot.ArticleCount),
		zap.String("scraped_at", snapshot.ScrapedAt))

	return &snapshot, nil
}

type corpus struct {
	Examples []StyleExample `json:"examples"`
}

// FileExampleSource samples examples from a JSON corpus file
type FileExampleSource struct {
	path   string
	rng    *rand.Rand
	logger *zap.Logger
}

// NewFileExampleSource creates an example source. A nil rng uses a random seed.
func NewFileExampleSource(path string, rng *rand.Rand, logger *zap.Logger) *FileExampleSource {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &FileExampleSource{path: path, rng: rng, logger: logger}
}

// Sample returns up to n distinct examples in random order. A missing or
// unreadable corpus yields no examples.
func (s *FileExampleSource) Sample(_ context.Context, n int) ([]StyleExample, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("Style corpus not found, using empty examples", zap.String("path", s.path))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read style corpus: %w", err)
	}

	var c corpus
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse style corpus: %w", err)
	}

	examples := make([]StyleExample, 0, len(c.Examples))
	for _, ex := range c.Examples {
		if ex.Text != "" {
			examples = append(examples, ex)
		}
	}

	if n > len(examples) {
		n = len(examples)
	}
	picked := make([]StyleExample, 0, n)
	for _, i := range s.rng.Perm(len(examples))[:n] {
		picked = append(picked, examples[i])
	}

	s.logger.Info("Loaded style examples",
		zap.Int("sampled", len(picked)),
		zap.Int("corpus_size", len(examples)))

	return picked, nil
}
