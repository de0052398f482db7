// Package scheduler triggers batch runs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// Parser accepts classic five-field expressions and an optional leading seconds field
var Parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Task is one scheduled run
type Task func(ctx context.Context)

// Service runs a single task on a cron expression and never overlaps runs
type Service struct {
	cron    *cron.Cron
	task    Task
	ctx     context.Context
	logger  arbor.ILogger
	entryID cron.EntryID

	mu           sync.Mutex // Protects isProcessing
	isProcessing bool
	skipped      int
	running      bool
}

// NewService validates expr and binds task to it. Runs receive ctx.
func NewService(ctx context.Context, expr string, task Task, logger arbor.ILogger) (*Service, error) {
	if _, err := Parser.Parse(expr); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	s := &Service{
		cron:   cron.New(cron.WithParser(Parser)),
		task:   task,
		ctx:    ctx,
		logger: logger,
	}

	id, err := s.cron.AddFunc(expr, s.runScheduledTask)
	if err != nil {
		return nil, fmt.Errorf("failed to add cron job: %w", err)
	}
	s.entryID = id
	return s, nil
}

// Start begins the scheduler
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info().Str("next_run", s.NextRun().Format(time.RFC3339)).Msg("Scheduler started")
}

// Stop halts the scheduler and waits for a run in progress
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// NextRun is the next activation time, zero before Start
func (s *Service) NextRun() time.Time {
	return s.cron.Entry(s.entryID).Next
}

// Skipped counts activations dropped because a run was still in progress
func (s *Service) Skipped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}

func (s *Service) runScheduledTask() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("PANIC RECOVERED in scheduled run")
		}
	}()

	s.mu.Lock()
	if s.isProcessing {
		s.skipped++
		s.mu.Unlock()
		s.logger.Warn().Msg("Previous run still in progress, skipping this activation")
		return
	}
	s.isProcessing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isProcessing = false
		s.mu.Unlock()
	}()

	if s.ctx.Err() != nil {
		return
	}

	s.logger.Info().Msg("Scheduled run starting")
	start := time.Now()
	s.task(s.ctx)
	s.logger.Info().Str("elapsed", time.Since(start).String()).Str("next_run", s.NextRun().Format(time.RFC3339)).Msg("Scheduled run finished")
}
