package writer

import (
	"strings"

	"github.com/tashasho/social-media-posting-automator/internal/sources"
)

const (
	noNewsSummary = "No news summary available."
	noExamples    = "- [No examples available, use professional VC tone]"
)

// BuildPrompt renders the generation instruction for one run
func BuildPrompt(news *sources.NewsSnapshot, examples []sources.StyleExample) string {
	summary := noNewsSummary
	if news != nil && strings.TrimSpace(news.Summary) != "" {
		summary = news.Summary
	}

	styleLines := noExamples
	if len(examples) > 0 {
		lines := make([]string, 0, len(examples))
		for _, ex := range examples {
			lines = append(lines, "- "+ex.Text)
		}
		styleLines = strings.Join(lines, "\n")
	}

	var b strings.Builder
	b.WriteString("You are a VC associate at Z5 Capital writing a LinkedIn post.\n\n")
	b.WriteString("TODAY'S NEWS:\n")
	b.WriteString(summary)
	b.WriteString("\n\nSTYLE EXAMPLES (match this tone and approach):\n")
	b.WriteString(styleLines)
	b.WriteString(`

INSTRUCTIONS:
Write a LinkedIn post of about 150 words on one trend from today's news.
- Be insightful, not preachy
- Be data-driven and cite the news source for any fact
- Be optimistic about technology
- Stay professional: no hype, no financial advice, no "invest in X"
- Close with a forward-looking statement or question
- Use at most 2-3 relevant hashtags
- Do not open with emoji

Output ONLY the post text, with no preamble.`)

	return b.String()
}

// Feedback is appended to the prompt after a rejected attempt
func Feedback(reason string) string {
	return "\n\n[PREVIOUS DRAFT WAS REJECTED: " + reason + ". Please fix this issue.]"
}
