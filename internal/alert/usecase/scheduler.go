package usecase

import (
	"context"
	"log"
	"time"
)

// Scheduler drives the alert pipeline on two independent cadences: a slow
// evaluation loop that generates alerts and a fast dispatch loop that
// delivers the due ones.
type Scheduler struct {
	evaluator        *Evaluator
	dispatcher       *Dispatcher
	evalInterval     time.Duration
	dispatchInterval time.Duration
	stopChan         chan struct{}
}

func NewScheduler(
	evaluator *Evaluator,
	dispatcher *Dispatcher,
	evalInterval, dispatchInterval time.Duration,
) *Scheduler {
	return &Scheduler{
		evaluator:        evaluator,
		dispatcher:       dispatcher,
		evalInterval:     evalInterval,
		dispatchInterval: dispatchInterval,
		stopChan:         make(chan struct{}),
	}
}

// Start begins both loops. Each runs once immediately, then on its ticker.
func (s *Scheduler) Start(ctx context.Context) {
	log.Printf("[AlertScheduler] Starting (evaluate every %s, dispatch every %s)",
		s.evalInterval, s.dispatchInterval)

	go func() {
		s.evaluator.EvaluateAll()

		ticker := time.NewTicker(s.evalInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.evaluator.EvaluateAll()
			case <-s.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		s.dispatcher.DispatchDue(ctx)

		ticker := time.NewTicker(s.dispatchInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.dispatcher.DispatchDue(ctx)
			case <-s.stopChan:
				log.Println("[AlertScheduler] Stopped")
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop gracefully stops both loops
func (s *Scheduler) Stop() {
	close(s.stopChan)
}
