package speech

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// CleanupSchedule runs the audio janitor at the top of every hour.
const CleanupSchedule = "@hourly"

// StartJanitor schedules Cleanup and returns a function that stops it.
func (s *Service) StartJanitor() (stop func(), err error) {
	c := cron.New()
	if _, err := c.AddFunc(CleanupSchedule, func() {
		n, err := s.Cleanup()
		if err != nil {
			slog.Error("audio cleanup failed", "error", err)
			return
		}
		if n > 0 {
			slog.Info("audio cleanup", "removed", n)
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule audio cleanup: %w", err)
	}
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}
