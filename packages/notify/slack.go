package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	treqhttp "github.com/abdul-hamid-achik/treq/packages/http"
)

// SlackNotifier posts run summaries to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	channel    string
	username   string
	iconEmoji  string
	client     *treqhttp.Client
}

type SlackOption func(*SlackNotifier)

func WithSlackChannel(channel string) SlackOption {
	return func(s *SlackNotifier) { s.channel = channel }
}

func WithSlackUsername(username string) SlackOption {
	return func(s *SlackNotifier) { s.username = username }
}

func WithSlackIconEmoji(emoji string) SlackOption {
	return func(s *SlackNotifier) { s.iconEmoji = emoji }
}

func NewSlackNotifier(webhookURL string, opts ...SlackOption) *SlackNotifier {
	s := &SlackNotifier{
		webhookURL: webhookURL,
		username:   "treq",
		iconEmoji:  ":satellite:",
		client:     treqhttp.NewClient(treqhttp.WithTimeout(10 * time.Second)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SlackNotifier) Name() string {
	return "slack"
}

type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text,omitempty"`
	Fields []slackField `json:"fields,omitempty"`
	Footer string       `json:"footer,omitempty"`
	TS     int64        `json:"ts,omitempty"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func (s *SlackNotifier) Notify(ctx context.Context, summary *RunSummary) error {
	color := "good"
	title := "All requests passed"

	switch {
	case summary.Failed > 0:
		color = "danger"
		title = fmt.Sprintf("%d request(s) failed", summary.Failed)
	case summary.IsRecovery:
		title = "Requests recovered"
	}

	fields := []slackField{
		{Title: "Total", Value: fmt.Sprintf("%d", summary.Total), Short: true},
		{Title: "Passed", Value: fmt.Sprintf("%d", summary.Passed), Short: true},
		{Title: "Failed", Value: fmt.Sprintf("%d", summary.Failed), Short: true},
		{Title: "Duration", Value: summary.Elapsed.Round(time.Millisecond).String(), Short: true},
	}
	if summary.Environment != "" {
		fields = append(fields, slackField{Title: "Environment", Value: summary.Environment, Short: true})
	}

	var text string
	if len(summary.Failures) > 0 {
		text = "*Failed requests:*\n"
		for _, f := range summary.Failures {
			text += fmt.Sprintf("• `%s`", f.Name)
			if f.File != "" {
				text += fmt.Sprintf(" (%s)", f.File)
			}
			text += "\n"
			if f.Error != "" {
				text += fmt.Sprintf("  - %s\n", f.Error)
			}
		}
	}

	msg := slackMessage{
		Channel:   s.channel,
		Username:  s.username,
		IconEmoji: s.iconEmoji,
		Attachments: []slackAttachment{{
			Color:  color,
			Title:  title,
			Text:   text,
			Fields: fields,
			Footer: "treq",
			TS:     time.Now().Unix(),
		}},
	}

	return s.send(ctx, msg)
}

func (s *SlackNotifier) send(ctx context.Context, msg slackMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding slack message: %w", err)
	}

	req := treqhttp.NewRequest("POST", s.webhookURL)
	req.SetHeader("Content-Type", "application/json")
	req.SetBody(string(data))

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("sending slack notification: %w", err)
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("slack webhook returned status %d: %s", resp.StatusCode, resp.BodyString())
	}
	return nil
}
