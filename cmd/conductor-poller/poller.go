// Package main provides the Conductor poller, the external driver that
// re-invokes step polling until each in-flight step completes.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/0rca-network/conductor/pkg/models"
	"github.com/0rca-network/conductor/pkg/orchestrator"
)

// Poller sweeps pollable steps on a fixed cadence. Each sweep polls every
// step with an access token once; a step that exceeds maxAttempts sweeps
// without completing is failed as timed out.
type Poller struct {
	orchestrator *orchestrator.Service
	interval     time.Duration
	maxAttempts  int
	logger       *slog.Logger

	mu       sync.Mutex
	attempts map[string]int
}

// NewPoller creates a new Poller instance.
func NewPoller(
	service *orchestrator.Service,
	interval time.Duration,
	maxAttempts int,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		orchestrator: service,
		interval:     interval,
		maxAttempts:  maxAttempts,
		logger:       logger.With("module", "poller"),
		attempts:     make(map[string]int),
	}
}

// Start runs the poll loop until the context is cancelled or a shutdown
// signal arrives.
func (p *Poller) Start(ctx context.Context) {
	pCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.handleSignals(cancel)

	scheduler := cron.New()

	_, err := scheduler.AddFunc("@every "+p.interval.String(), func() {
		p.sweep(pCtx)
	})
	if err != nil {
		p.logger.Error("Failed to schedule poll sweep", "error", err)

		return
	}

	p.logger.Info("Starting poller", "interval", p.interval, "max_attempts", p.maxAttempts)
	scheduler.Start()

	<-pCtx.Done()
	p.logger.Info("Poller context cancelled, stopping...")

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
}

func (p *Poller) handleSignals(cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		p.logger.Info("Received signal", "signal", sig)
		cancel()
	}()
}

// sweep polls every pollable step once.
func (p *Poller) sweep(ctx context.Context) {
	steps, err := p.orchestrator.PollableSteps(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to list pollable steps", "error", err)

		return
	}

	live := make(map[string]struct{}, len(steps))

	for _, step := range steps {
		live[step.ID] = struct{}{}
		p.pollStep(ctx, step)
	}

	// Steps that left the pollable set without a terminal poll here, e.g.
	// cancelled through the API, would otherwise leak attempt entries.
	p.pruneAttempts(live)
}

func (p *Poller) pollStep(ctx context.Context, step *models.StepResult) {
	attempt := p.recordAttempt(step.ID)

	if attempt > p.maxAttempts {
		p.logger.WarnContext(ctx, "Step exceeded poll attempts, failing",
			"step_result_id", step.ID, "workflow_id", step.WorkflowID, "attempts", attempt)

		err := p.orchestrator.FailStep(ctx, step.ID, "polling timed out")
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to time out step",
				"step_result_id", step.ID, "error", err)
		}

		p.clearAttempts(step.ID)

		return
	}

	result, err := p.orchestrator.PollStep(ctx, step.ID)
	if err != nil {
		if orchestrator.IsStateViolation(err) {
			// Another actor finished or cancelled the step between the
			// sweep listing and this poll.
			p.clearAttempts(step.ID)

			return
		}

		p.logger.WarnContext(ctx, "Poll attempt failed",
			"step_result_id", step.ID, "workflow_id", step.WorkflowID, "error", err)

		return
	}

	if !result.Done {
		p.logger.DebugContext(ctx, "Step still in flight",
			"step_result_id", step.ID, "remote_status", result.RemoteStatus, "attempt", attempt)

		return
	}

	p.clearAttempts(step.ID)

	if result.Status != models.StepStatusSucceeded {
		return
	}

	advance, err := p.orchestrator.AdvanceWorkflow(ctx, step.WorkflowID)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to advance workflow",
			"workflow_id", step.WorkflowID, "error", err)

		return
	}

	if advance.Completed {
		p.logger.InfoContext(ctx, "Workflow completed", "workflow_id", step.WorkflowID)
	} else {
		p.logger.InfoContext(ctx, "Workflow advanced",
			"workflow_id", step.WorkflowID, "next_step", advance.NextStep)
	}
}

func (p *Poller) recordAttempt(stepResultID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.attempts[stepResultID]++

	return p.attempts[stepResultID]
}

func (p *Poller) clearAttempts(stepResultID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.attempts, stepResultID)
}

func (p *Poller) pruneAttempts(live map[string]struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id := range p.attempts {
		if _, ok := live[id]; !ok {
			delete(p.attempts, id)
		}
	}
}
