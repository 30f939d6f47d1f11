package orchestrator

import (
	"strings"

	"smidr/smidr/services/provider"
)

// LatestAssistantText returns the first text block of the most recent assistant
// message, or NoTextualContent. Messages tagged with runID are preferred, so a later
// run's reply is not attributed to an earlier one; untagged lists fall back to all
// assistant messages. Recency is by created_at, list order breaking ties, so it
// works whichever way the provider sorted the page.
func LatestAssistantText(messages []provider.Message, runID string) string {
	var latest, latestOfRun *provider.Message
	for i := range messages {
		m := &messages[i]
		if m.Role != "assistant" {
			continue
		}
		if latest == nil || m.CreatedAt > latest.CreatedAt {
			latest = m
		}
		if runID != "" && m.RunID == runID && (latestOfRun == nil || m.CreatedAt > latestOfRun.CreatedAt) {
			latestOfRun = m
		}
	}
	if latestOfRun != nil {
		latest = latestOfRun
	}
	if latest == nil {
		return NoTextualContent
	}
	for _, block := range latest.Content {
		if block.Type == "text" && block.Text != nil {
			return block.Text.Value
		}
	}
	return NoTextualContent
}

// ResponseText picks the reply out of a /responses result: the first content block
// of the first output item, else every text-bearing block joined by newlines.
func ResponseText(resp *provider.Response) string {
	if resp == nil || len(resp.Output) == 0 {
		return NoResponse
	}
	if content := resp.Output[0].Content; len(content) > 0 && content[0].Text != "" {
		return content[0].Text
	}
	var parts []string
	for _, item := range resp.Output {
		for _, c := range item.Content {
			if (c.Type == "output_text" || c.Type == "text") && c.Text != "" {
				parts = append(parts, c.Text)
			}
		}
	}
	if len(parts) == 0 {
		return NoResponse
	}
	return strings.Join(parts, "\n")
}
