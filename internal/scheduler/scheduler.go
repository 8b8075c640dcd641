// Package scheduler drives the campaign's autonomous follow-ups: a single
// background loop that periodically asks the manager to re-send consent
// requests and re-attempt calls for contacts that never responded.
package scheduler

import (
	"log"
	"time"

	"campaign-gateway/internal/campaign"
)

type Scheduler struct {
	manager  *campaign.Manager
	interval time.Duration
	stop     chan struct{}
}

func New(manager *campaign.Manager, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		manager:  manager,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start launches the follow-up loop in its own goroutine.
func (s *Scheduler) Start() {
	go s.run()
}

func (s *Scheduler) run() {
	log.Printf("Follow-up scheduler running every %s", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			s.manager.Tick(now)
		case <-s.stop:
			return
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stop)
}
