package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	tweetLimit        = 280
	tweetSoftLimit    = 275
	defaultTwitterAPI = "https://api.twitter.com/2"
)

// FitTweet shortens text to the tweet limit, keeping whole sentences when it can
func FitTweet(text string) string {
	if runeLen(text) <= tweetLimit {
		return text
	}

	sentences := strings.Split(text, ". ")
	fitted := strings.TrimSuffix(sentences[0], ".") + "."
	for _, s := range sentences[1:] {
		if strings.TrimSpace(s) == "" {
			continue
		}
		candidate := fitted + " " + strings.TrimSuffix(s, ".") + "."
		if runeLen(candidate) > tweetSoftLimit {
			break
		}
		fitted = candidate
	}

	if runeLen(fitted) > tweetLimit {
		return string([]rune(text)[:tweetLimit-3]) + "..."
	}
	return fitted
}

func runeLen(s string) int {
	return len([]rune(s))
}

// Twitter posts through the v2 tweets endpoint with a user access token
type Twitter struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewTwitter creates the Twitter platform; baseURL defaults to the public API
func NewTwitter(token, baseURL string, logger *zap.Logger) *Twitter {
	if baseURL == "" {
		baseURL = defaultTwitterAPI
	}
	return &Twitter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

func (t *Twitter) Name() string { return "twitter" }

func (t *Twitter) Post(ctx context.Context, text string) (string, string, error) {
	fitted := FitTweet(text)
	if fitted != text {
		t.logger.Warn("Tweet shortened to fit the character limit",
			zap.Int("original_chars", runeLen(text)),
			zap.Int("chars", runeLen(fitted)))
	}

	payload, err := json.Marshal(map[string]string{"text": fitted})
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal tweet: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/tweets", bytes.NewReader(payload))
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("twitter request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("failed to read twitter response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("twitter API returned status %d: %s", resp.StatusCode, string(body))
	}

	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", "", fmt.Errorf("failed to parse twitter response: %w", err)
	}
	if created.Data.ID == "" {
		return "", "", fmt.Errorf("twitter response has no tweet id")
	}

	return created.Data.ID, "https://twitter.com/i/status/" + created.Data.ID, nil
}
