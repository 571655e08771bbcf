package tool

import (
	"context"
	"fmt"

	slacklib "github.com/slack-go/slack"
)

// SlackAPI abstracts the subset of the Slack client the tool uses, so tests
// run without real HTTP calls.
type SlackAPI interface {
	PostMessage(channelID string, options ...slacklib.MsgOption) (string, string, error)
}

// SlackMessageTool posts a message to a Slack channel on the model's behalf.
type SlackMessageTool struct {
	API SlackAPI
}

// NewSlackMessageTool builds the tool from a bot token.
func NewSlackMessageTool(botToken string) *SlackMessageTool {
	return &SlackMessageTool{API: slacklib.New(botToken)}
}

func (t *SlackMessageTool) Name() string { return "slack_message" }

func (t *SlackMessageTool) Description() string {
	return "Post a message to a Slack channel."
}

func (t *SlackMessageTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"channel": map[string]any{
				"type":        "string",
				"description": "Slack channel ID",
			},
			"text": map[string]any{
				"type":        "string",
				"description": "Message text",
			},
			"thread_ts": map[string]any{
				"type":        "string",
				"description": "Optional thread timestamp to reply under",
			},
		},
		"required": []string{"channel", "text"},
	}
}

func (t *SlackMessageTool) Execute(_ context.Context, args map[string]any) Result {
	channel, ok := stringArg(args, "channel")
	if !ok || channel == "" {
		return Fail("slack_message: channel is required")
	}
	text, ok := stringArg(args, "text")
	if !ok || text == "" {
		return Fail("slack_message: text is required")
	}

	opts := []slacklib.MsgOption{slacklib.MsgOptionText(text, false)}
	if threadTS, hasThread := stringArg(args, "thread_ts"); hasThread && threadTS != "" {
		opts = append(opts, slacklib.MsgOptionTS(threadTS))
	}

	_, ts, err := t.API.PostMessage(channel, opts...)
	if err != nil {
		return Fail(fmt.Sprintf("slack_message: %v", err))
	}

	res := Ok(fmt.Sprintf("message posted to %s", channel))
	res.Metadata = map[string]any{"ts": ts}
	return res
}
