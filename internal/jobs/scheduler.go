// Package jobs runs knowledge processing in the background. Runs are keyed
// by knowledge id and single-flight: while a run for an id is in flight,
// further triggers for that id are rejected rather than queued.
package jobs

import (
	"context"
	"log"
	"sync"

	"github.com/corpuslabs/corpusd/internal/domain"
)

// Runner executes one processing run for a knowledge id.
type Runner interface {
	Run(ctx context.Context, knowledgeID string) error
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, knowledgeID string) error

func (f RunnerFunc) Run(ctx context.Context, knowledgeID string) error {
	return f(ctx, knowledgeID)
}

// Scheduler dispatches background processing runs, one in-flight run per
// knowledge id.
type Scheduler struct {
	runner Runner

	mu       sync.Mutex
	inFlight map[string]struct{}
	wg       sync.WaitGroup

	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a Scheduler. Runs spawned by Trigger inherit from the
// scheduler's own context, not the caller's, so an HTTP request finishing
// does not cancel the processing it started.
func NewScheduler(runner Runner) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		runner:   runner,
		inFlight: make(map[string]struct{}),
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// Trigger starts a processing run for the knowledge id in the background.
// Returns ErrProcessingInFlight if a run for that id is already in flight,
// or an error if the scheduler has been shut down.
func (s *Scheduler) Trigger(knowledgeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.baseCtx.Err(); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "scheduler is shut down", err)
	}
	if _, running := s.inFlight[knowledgeID]; running {
		return domain.ErrProcessingInFlight
	}

	s.inFlight[knowledgeID] = struct{}{}
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer s.release(knowledgeID)

		if err := s.runner.Run(s.baseCtx, knowledgeID); err != nil {
			log.Printf("processing run for knowledge %s failed: %v", knowledgeID, err)
		}
	}()

	return nil
}

// InFlight reports whether a run for the knowledge id is currently running.
func (s *Scheduler) InFlight(knowledgeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, running := s.inFlight[knowledgeID]
	return running
}

// Shutdown cancels in-flight runs and waits for them to finish.
func (s *Scheduler) Shutdown() {
	s.cancel()
	s.wg.Wait()
	log.Println("Scheduler shutdown complete")
}

// Wait blocks until all in-flight runs have finished without cancelling
// them. Used by tests and by the CLI's one-shot processing path.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) release(knowledgeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, knowledgeID)
}
