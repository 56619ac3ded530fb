package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	treqhttp "github.com/abdul-hamid-achik/treq/packages/http"
)

// TeamsNotifier posts run summaries to a Microsoft Teams webhook as an
// Adaptive Card.
type TeamsNotifier struct {
	webhookURL string
	client     *treqhttp.Client
}

func NewTeamsNotifier(webhookURL string) *TeamsNotifier {
	return &TeamsNotifier{
		webhookURL: webhookURL,
		client:     treqhttp.NewClient(treqhttp.WithTimeout(10 * time.Second)),
	}
}

func (t *TeamsNotifier) Name() string {
	return "teams"
}

type teamsMessage struct {
	Type        string      `json:"type"`
	Attachments []teamsCard `json:"attachments"`
}

type teamsCard struct {
	ContentType string           `json:"contentType"`
	ContentURL  *string          `json:"contentUrl"`
	Content     teamsCardContent `json:"content"`
}

type teamsCardContent struct {
	Schema  string       `json:"$schema"`
	Type    string       `json:"type"`
	Version string       `json:"version"`
	Body    []teamsBlock `json:"body"`
}

type teamsBlock struct {
	Type      string        `json:"type"`
	Size      string        `json:"size,omitempty"`
	Weight    string        `json:"weight,omitempty"`
	Text      string        `json:"text,omitempty"`
	Color     string        `json:"color,omitempty"`
	Wrap      bool          `json:"wrap,omitempty"`
	Columns   []teamsColumn `json:"columns,omitempty"`
	Spacing   string        `json:"spacing,omitempty"`
	Separator bool          `json:"separator,omitempty"`
}

type teamsColumn struct {
	Type  string       `json:"type"`
	Width string       `json:"width"`
	Items []teamsBlock `json:"items"`
}

func (t *TeamsNotifier) Notify(ctx context.Context, summary *RunSummary) error {
	color := "good"
	title := "All requests passed"

	switch {
	case summary.Failed > 0:
		color = "attention"
		title = fmt.Sprintf("%d request(s) failed", summary.Failed)
	case summary.IsRecovery:
		title = "Requests recovered"
	}

	counter := func(label, value, valueColor string) teamsColumn {
		return teamsColumn{
			Type:  "Column",
			Width: "stretch",
			Items: []teamsBlock{
				{Type: "TextBlock", Text: "**" + label + "**", Wrap: true},
				{Type: "TextBlock", Text: value, Color: valueColor, Wrap: true},
			},
		}
	}

	body := []teamsBlock{
		{Type: "TextBlock", Size: "Large", Weight: "Bolder", Text: title, Color: color},
		{
			Type:      "ColumnSet",
			Separator: true,
			Spacing:   "Medium",
			Columns: []teamsColumn{
				counter("Total", fmt.Sprintf("%d", summary.Total), ""),
				counter("Passed", fmt.Sprintf("%d", summary.Passed), "good"),
				counter("Failed", fmt.Sprintf("%d", summary.Failed), "attention"),
				counter("Duration", summary.Elapsed.Round(time.Millisecond).String(), ""),
			},
		},
	}

	if summary.Environment != "" {
		body = append(body, teamsBlock{
			Type: "TextBlock",
			Text: fmt.Sprintf("**Environment:** %s", summary.Environment),
			Wrap: true,
		})
	}

	if len(summary.Failures) > 0 {
		body = append(body, teamsBlock{
			Type:      "TextBlock",
			Text:      "**Failed requests:**",
			Separator: true,
			Spacing:   "Medium",
		})
		for _, f := range summary.Failures {
			text := fmt.Sprintf("- `%s`", f.Name)
			if f.File != "" {
				text += fmt.Sprintf(" (%s)", f.File)
			}
			body = append(body, teamsBlock{Type: "TextBlock", Text: text, Wrap: true})
			if f.Error != "" {
				body = append(body, teamsBlock{Type: "TextBlock", Text: "  - " + f.Error, Wrap: true})
			}
		}
	}

	msg := teamsMessage{
		Type: "message",
		Attachments: []teamsCard{{
			ContentType: "application/vnd.microsoft.card.adaptive",
			Content: teamsCardContent{
				Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
				Type:    "AdaptiveCard",
				Version: "1.2",
				Body:    body,
			},
		}},
	}

	return t.send(ctx, msg)
}

func (t *TeamsNotifier) send(ctx context.Context, msg teamsMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding teams message: %w", err)
	}

	req := treqhttp.NewRequest("POST", t.webhookURL)
	req.SetHeader("Content-Type", "application/json")
	req.SetBody(string(data))

	resp, err := t.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("sending teams notification: %w", err)
	}
	if resp.StatusCode != 200 && resp.StatusCode != 202 {
		return fmt.Errorf("teams webhook returned status %d: %s", resp.StatusCode, resp.BodyString())
	}
	return nil
}
