package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/feedsync/internal/model"
)

// Ensure SlackNotifier implements model.Notifier.
var _ model.Notifier = (*SlackNotifier)(nil)

// MaxJobsPerMessage caps the jobs listed in one Slack digest.
const MaxJobsPerMessage = 10

// SlackNotifier posts a digest of newly arrived jobs to a Slack channel via
// Incoming Webhooks.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSlackNotifier returns a notifier that posts to Slack via webhook.
func NewSlackNotifier(webhookURL string, httpClient *http.Client, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Notify sends one digest message for the whole batch.
func (s *SlackNotifier) Notify(jobs []model.JobRecord) error {
	if len(jobs) == 0 {
		return nil
	}

	body, err := json.Marshal(buildDigest(jobs))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	status, retryAfter, err := s.post(body)
	if err != nil {
		return err
	}
	if status == http.StatusTooManyRequests {
		s.logger.Warn("slack rate limited, retrying", "retry_after", retryAfter)
		time.Sleep(retryAfter)
		if status, _, err = s.post(body); err != nil {
			return fmt.Errorf("retry: %w", err)
		}
	}
	if status != http.StatusOK {
		return fmt.Errorf("slack returned %d", status)
	}

	s.logger.Info("slack digest sent", "jobs", len(jobs))
	return nil
}

func (s *SlackNotifier) post(body []byte) (int, time.Duration, error) {
	resp, err := s.httpClient.Post(s.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("post to slack: %w", err)
	}
	defer resp.Body.Close()

	retryAfter := time.Second
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		retryAfter = time.Duration(secs) * time.Second
	}
	return resp.StatusCode, retryAfter, nil
}

// Block Kit payload types.

type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type      string        `json:"type"`
	Text      *slackText    `json:"text,omitempty"`
	Elements  []slackText   `json:"elements,omitempty"`
	Accessory *slackElement `json:"accessory,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackElement struct {
	Type  string    `json:"type"`
	Text  slackText `json:"text"`
	URL   string    `json:"url"`
	Style string    `json:"style,omitempty"`
}

// SendTestMessage sends a dummy job notification to verify the integration works.
func SendTestMessage(n model.Notifier) error {
	now := time.Now()
	return n.Notify([]model.JobRecord{{
		ID:           "test-001",
		Title:        "Test Notification",
		Company:      "feedsync",
		Location:     "Everywhere",
		URL:          "https://example.com/jobs/test-001",
		AIMatchScore: 100,
		PostedAt:     &now,
		Source:       "test",
	}})
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func buildDigest(jobs []model.JobRecord) slackPayload {
	summary := fmt.Sprintf("%d new job", len(jobs))
	if len(jobs) != 1 {
		summary += "s"
	}

	blocks := []slackBlock{{
		Type: "header",
		Text: &slackText{Type: "plain_text", Text: "🆕 " + summary + " in your feed"},
	}}

	shown := jobs
	if len(shown) > MaxJobsPerMessage {
		shown = shown[:MaxJobsPerMessage]
	}
	for _, j := range shown {
		blocks = append(blocks, jobSection(j))
	}

	if hidden := len(jobs) - len(shown); hidden > 0 {
		blocks = append(blocks, slackBlock{
			Type:     "context",
			Elements: []slackText{{Type: "mrkdwn", Text: fmt.Sprintf("+%d more in the feed", hidden)}},
		})
	}
	blocks = append(blocks, slackBlock{Type: "divider"})

	return slackPayload{Text: summary, Blocks: blocks}
}

func jobSection(j model.JobRecord) slackBlock {
	var lines []string
	lines = append(lines, "*"+j.Title+"* · "+capitalize(j.Company))

	var meta []string
	if j.Location != "" {
		meta = append(meta, j.Location)
	}
	if j.AIMatchScore > 0 {
		meta = append(meta, fmt.Sprintf("match %d%%", j.AIMatchScore))
	}
	if j.PostedAt != nil {
		meta = append(meta, "posted "+j.PostedAt.Format("Jan 2 15:04"))
	}
	if len(meta) > 0 {
		lines = append(lines, strings.Join(meta, " · "))
	}

	block := slackBlock{
		Type: "section",
		Text: &slackText{Type: "mrkdwn", Text: strings.Join(lines, "\n")},
	}
	if j.URL != "" {
		block.Accessory = &slackElement{
			Type:  "button",
			Text:  slackText{Type: "plain_text", Text: "Apply"},
			URL:   j.URL,
			Style: "primary",
		}
	}
	return block
}
