package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/amishk599/feedsync/internal/model"
)

const (
	EventNewJobs          = "new_jobs"
	EventScrapingProgress = "scraping_progress"
)

// Event is a server-pushed message. Type decides which payload field is set.
type Event struct {
	Type   string            `json:"type" validate:"required,oneof=new_jobs scraping_progress"`
	Jobs   []model.JobRecord `json:"jobs,omitempty" validate:"required_if=Type new_jobs"`
	Status string            `json:"status,omitempty" validate:"required_if=Type scraping_progress"`

	progress model.ScrapeStatus
}

// Progress returns the parsed status of a scraping_progress event.
func (e Event) Progress() model.ScrapeStatus {
	return e.progress
}

// DecodeEvent parses and validates one raw event. Every failure wraps
// model.ErrMalformedEvent.
func DecodeEvent(validate *validator.Validate, data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", model.ErrMalformedEvent, err)
	}
	if err := validate.Struct(ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", model.ErrMalformedEvent, err)
	}
	if ev.Type == EventScrapingProgress {
		status, err := model.ParseScrapeStatus(ev.Status)
		if err != nil {
			return Event{}, fmt.Errorf("%w: %v", model.ErrMalformedEvent, err)
		}
		ev.progress = status
	}
	return ev, nil
}
