package notifier

import (
	"log/slog"

	"github.com/amishk599/feedsync/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes newly arrived jobs to the given logger.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs one line per job. Never fails.
func (n *LogNotifier) Notify(jobs []model.JobRecord) error {
	for _, j := range jobs {
		args := []any{"id", j.ID, "company", j.Company, "title", j.Title}
		if j.Location != "" {
			args = append(args, "location", j.Location)
		}
		if j.AIMatchScore > 0 {
			args = append(args, "match", j.AIMatchScore)
		}
		if j.URL != "" {
			args = append(args, "url", j.URL)
		}
		if j.PostedAt != nil {
			args = append(args, "posted_at", *j.PostedAt)
		}
		n.logger.Info("new job", args...)
	}
	return nil
}
