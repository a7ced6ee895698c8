// Package slackbot is the Slack side of the review workflow: outbound review
// requests and decision updates, inbound interaction payloads.
package slackbot

import (
	"context"
	"fmt"
	"net/http"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/tashasho/social-media-posting-automator/internal/models"
)

// Client posts to the review channel
type Client struct {
	api       *slack.Client
	channelID string
	logger    *zap.Logger
}

// ClientOption configures a Client
type ClientOption func(*clientOptions)

type clientOptions struct {
	apiURL     string
	httpClient *http.Client
}

// WithAPIURL points the client at another Slack API base URL
func WithAPIURL(url string) ClientOption {
	return func(o *clientOptions) { o.apiURL = url }
}

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *clientOptions) { o.httpClient = c }
}

// NewClient creates a Slack client. Without a token the client is disabled
// and every call is a logged no-op.
func NewClient(token, channelID string, logger *zap.Logger, opts ...ClientOption) *Client {
	c := &Client{channelID: channelID, logger: logger}
	if token == "" {
		logger.Warn("Slack is disabled (slack.bot_token is empty)")
		return c
	}

	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	slackOpts := []slack.Option{}
	if o.apiURL != "" {
		slackOpts = append(slackOpts, slack.OptionAPIURL(o.apiURL))
	}
	if o.httpClient != nil {
		slackOpts = append(slackOpts, slack.OptionHTTPClient(o.httpClient))
	}

	c.api = slack.New(token, slackOpts...)
	return c
}

// Enabled reports whether the client talks to Slack
func (c *Client) Enabled() bool {
	return c != nil && c.api != nil
}

// RequestReview posts the review request for a freshly stored draft
func (c *Client) RequestReview(ctx context.Context, name string, d *models.Draft) error {
	if !c.Enabled() {
		c.skip("review request", name)
		return nil
	}
	if c.channelID == "" {
		return fmt.Errorf("slack review channel is not configured")
	}

	channel, ts, err := c.api.PostMessageContext(ctx, c.channelID,
		slack.MsgOptionText("New draft ready for review", false),
		slack.MsgOptionBlocks(ReviewBlocks(name, d)...))
	if err != nil {
		return fmt.Errorf("failed to post review request: %w", err)
	}

	c.logger.Info("Review request sent",
		zap.String("file", name),
		zap.String("channel", channel),
		zap.String("ts", ts))
	return nil
}

// UpdateDecision replaces the review message with the decision line
func (c *Client) UpdateDecision(ctx context.Context, thread models.Thread, text string) error {
	if !c.Enabled() {
		c.skip("decision update", thread.MessageTS)
		return nil
	}

	_, _, _, err := c.api.UpdateMessageContext(ctx, thread.ChannelID, thread.MessageTS,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(DecisionBlocks(text)...))
	if err != nil {
		return fmt.Errorf("failed to update review message: %w", err)
	}
	return nil
}

// PostThreadNotice replies in the review message thread
func (c *Client) PostThreadNotice(ctx context.Context, thread models.Thread, text string) error {
	if !c.Enabled() {
		c.skip("thread notice", thread.MessageTS)
		return nil
	}

	_, _, err := c.api.PostMessageContext(ctx, thread.ChannelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionTS(thread.MessageTS))
	if err != nil {
		return fmt.Errorf("failed to post thread notice: %w", err)
	}
	return nil
}

// OpenEditor opens the edit modal for a pending draft
func (c *Client) OpenEditor(ctx context.Context, triggerID, ref string, d *models.Draft, thread models.Thread) error {
	if !c.Enabled() {
		c.skip("edit modal", ref)
		return nil
	}
	if triggerID == "" {
		return fmt.Errorf("cannot open editor without a trigger id")
	}

	if _, err := c.api.OpenViewContext(ctx, triggerID, EditModal(ref, d, thread)); err != nil {
		return fmt.Errorf("failed to open edit modal: %w", err)
	}
	return nil
}

func (c *Client) skip(what, ref string) {
	if c == nil || c.logger == nil {
		return
	}
	c.logger.Debug("Slack disabled, skipping", zap.String("call", what), zap.String("ref", ref))
}
