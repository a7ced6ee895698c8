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

const defaultLinkedInAPI = "https://api.linkedin.com/v2"

// LinkedIn shares posts as an organization through the UGC posts API
type LinkedIn struct {
	baseURL    string
	token      string
	orgID      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewLinkedIn creates the LinkedIn platform; baseURL defaults to the public API
func NewLinkedIn(token, orgID, baseURL string, logger *zap.Logger) *LinkedIn {
	if baseURL == "" {
		baseURL = defaultLinkedInAPI
	}
	return &LinkedIn{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		orgID:      orgID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

func (l *LinkedIn) Name() string { return "linkedin" }

type ugcPost struct {
	Author          string              `json:"author"`
	LifecycleState  string              `json:"lifecycleState"`
	SpecificContent map[string]ugcShare `json:"specificContent"`
	Visibility      map[string]string   `json:"visibility"`
}

type ugcShare struct {
	ShareCommentary struct {
		Text string `json:"text"`
	} `json:"shareCommentary"`
	ShareMediaCategory string `json:"shareMediaCategory"`
}

func (l *LinkedIn) Post(ctx context.Context, text string) (string, string, error) {
	share := ugcShare{ShareMediaCategory: "NONE"}
	share.ShareCommentary.Text = text

	payload, err := json.Marshal(ugcPost{
		Author:          "urn:li:organization:" + l.orgID,
		LifecycleState:  "PUBLISHED",
		SpecificContent: map[string]ugcShare{"com.linkedin.ugc.ShareContent": share},
		Visibility:      map[string]string{"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC"},
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal linkedin post: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/ugcPosts", bytes.NewReader(payload))
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+l.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("linkedin request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", "", fmt.Errorf("linkedin API returned status %d: %s", resp.StatusCode, string(body))
	}

	postID := resp.Header.Get("X-RestLi-Id")
	if postID == "" {
		l.logger.Warn("LinkedIn response carried no post id")
		return "", "", nil
	}
	return postID, "https://www.linkedin.com/feed/update/" + postID, nil
}
