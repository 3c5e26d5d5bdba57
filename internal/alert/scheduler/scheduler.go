package scheduler

import (
	"log"

	"buddyalert-backend/internal/alert/usecase"

	"github.com/robfig/cron/v3"
)

// ExpirySweeper periodically transitions OPEN alerts past their TTL to
// EXPIRED. Readers already treat such alerts as expired; the sweep keeps
// the store in agreement.
type ExpirySweeper struct {
	lifecycle usecase.AlertLifecycle
	cron      *cron.Cron
}

// NewExpirySweeper creates a sweeper running every minute.
func NewExpirySweeper(lifecycle usecase.AlertLifecycle) *ExpirySweeper {
	return &ExpirySweeper{
		lifecycle: lifecycle,
		cron:      cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
	}
}

// Start begins the sweep loop.
func (s *ExpirySweeper) Start() error {
	if _, err := s.cron.AddFunc("@every 1m", s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	log.Println("[Sweep] expiry sweeper started (interval: 1 minute)")
	return nil
}

// Stop gracefully stops the sweeper, waiting for a running sweep.
func (s *ExpirySweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("[Sweep] expiry sweeper stopped")
}

func (s *ExpirySweeper) sweep() {
	expired, err := s.lifecycle.ExpireDue()
	if err != nil {
		log.Printf("[Sweep] expiry sweep failed: %v", err)
		return
	}
	if expired > 0 {
		log.Printf("[Sweep] expired %d alerts", expired)
	}
}
