// Package sweeper schedules the recurring stale-session purge.
package sweeper

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/meridianpress/editorial-backend/internal/service"
)

// Start registers the sweep on the given cron spec and starts the
// scheduler. Each run is independent: a failure is logged and the next
// scheduled run proceeds with no carried-over state.
func Start(spec string, auth *service.AuthService) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		removed, err := auth.Sweep(context.Background())
		if err != nil {
			log.Printf("sweeper: run failed: %v", err)
			return
		}
		if removed > 0 {
			log.Printf("sweeper: removed %d stale sessions", removed)
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
