package clients

import (
	"context"
	"fmt"
	"sync"

	"incidentboard/core/utils"

	"github.com/robfig/cron/v3"
)

// Sweeper evicts idle clients on a cron schedule.
type Sweeper struct {
	registry *Registry
	schedule string
	logger   *utils.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func NewSweeper(registry *Registry, schedule string, logger *utils.Logger) *Sweeper {
	return &Sweeper{registry: registry, schedule: schedule, logger: logger}
}

func (s *Sweeper) StartWithContext(ctx context.Context) error {
	if s == nil || s.registry == nil || s.schedule == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, s.RunOnce); err != nil {
		return fmt.Errorf("sweeper schedule %q: %w", s.schedule, err)
	}
	c.Start()
	s.cron = c
	s.running = true
	go func() {
		<-ctx.Done()
		_ = s.StopWithContext(context.Background())
	}()
	return nil
}

func (s *Sweeper) StopWithContext(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	c := s.cron
	wasRunning := s.running
	s.cron = nil
	s.running = false
	s.mu.Unlock()
	if !wasRunning || c == nil {
		return nil
	}
	stopped := c.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) RunOnce() {
	evicted := s.registry.Sweep(s.registry.now())
	if evicted > 0 && s.logger != nil {
		s.logger.Printf("sweeper: evicted %d idle clients", evicted)
	}
}
