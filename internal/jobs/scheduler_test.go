package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/corpuslabs/corpusd/internal/domain"
	"github.com/stretchr/testify/assert"
)

// blockingRunner holds each run open until released so tests can observe
// the in-flight window.
type blockingRunner struct {
	started chan string
	release chan struct{}

	mu   sync.Mutex
	runs []string
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		started: make(chan string, 8),
		release: make(chan struct{}),
	}
}

func (r *blockingRunner) Run(ctx context.Context, knowledgeID string) error {
	r.mu.Lock()
	r.runs = append(r.runs, knowledgeID)
	r.mu.Unlock()

	r.started <- knowledgeID
	select {
	case <-r.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *blockingRunner) runCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func TestScheduler_SecondTriggerRejectedWhileInFlight(t *testing.T) {
	runner := newBlockingRunner()
	s := NewScheduler(runner)
	defer s.Shutdown()

	assert.NoError(t, s.Trigger("knowledge-1"))
	<-runner.started
	assert.True(t, s.InFlight("knowledge-1"))

	err := s.Trigger("knowledge-1")
	var domainErr *domain.DomainError
	assert.True(t, errors.As(err, &domainErr))
	assert.Equal(t, domain.ErrCodeConflict, domainErr.Code)

	close(runner.release)
	s.Wait()

	assert.False(t, s.InFlight("knowledge-1"))
	assert.Equal(t, 1, runner.runCount())
}

func TestScheduler_DistinctIDsRunConcurrently(t *testing.T) {
	runner := newBlockingRunner()
	s := NewScheduler(runner)
	defer s.Shutdown()

	assert.NoError(t, s.Trigger("knowledge-1"))
	assert.NoError(t, s.Trigger("knowledge-2"))

	<-runner.started
	<-runner.started
	assert.True(t, s.InFlight("knowledge-1"))
	assert.True(t, s.InFlight("knowledge-2"))

	close(runner.release)
	s.Wait()
	assert.Equal(t, 2, runner.runCount())
}

func TestScheduler_RetriggerAfterCompletion(t *testing.T) {
	done := make(chan struct{}, 2)
	s := NewScheduler(RunnerFunc(func(ctx context.Context, knowledgeID string) error {
		done <- struct{}{}
		return nil
	}))
	defer s.Shutdown()

	assert.NoError(t, s.Trigger("knowledge-1"))
	<-done
	s.Wait()

	// Once the first run has finished the id is free again.
	assert.NoError(t, s.Trigger("knowledge-1"))
	<-done
	s.Wait()
}

func TestScheduler_ShutdownCancelsInFlightRuns(t *testing.T) {
	runner := newBlockingRunner()
	s := NewScheduler(runner)

	assert.NoError(t, s.Trigger("knowledge-1"))
	<-runner.started

	finished := make(chan struct{})
	go func() {
		s.Shutdown()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete")
	}

	assert.Error(t, s.Trigger("knowledge-1"))
}

func TestScheduler_RunnerErrorDoesNotStickInFlight(t *testing.T) {
	done := make(chan struct{})
	s := NewScheduler(RunnerFunc(func(ctx context.Context, knowledgeID string) error {
		defer close(done)
		return errors.New("run failed")
	}))
	defer s.Shutdown()

	assert.NoError(t, s.Trigger("knowledge-1"))
	<-done
	s.Wait()
	assert.False(t, s.InFlight("knowledge-1"))
}
