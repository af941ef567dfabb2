// Package schedule fires automations whose trigger is a CRON schedule.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/autoflow/pkg/eventbus"
	"github.com/dukex/autoflow/pkg/events"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/dukex/autoflow/pkg/steps/triggers"
	"github.com/dukex/autoflow/pkg/trigger"
	"github.com/robfig/cron/v3"
)

// Scheduler keeps one cron entry per CRON automation and fires it with production
// semantics.
type Scheduler struct {
	automations persistence.AutomationRepository
	matcher     *trigger.Matcher
	logger      *slog.Logger
	cron        *cron.Cron
	entries     map[string]cron.EntryID
	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
}

func NewScheduler(automations persistence.AutomationRepository, matcher *trigger.Matcher, logger *slog.Logger) *Scheduler {
	logger = logger.With("module", "scheduler")
	cronLog := cronLogger{logger: logger}

	return &Scheduler{
		automations: automations,
		matcher:     matcher,
		logger:      logger,
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(
				cron.SkipIfStillRunning(cronLog),
				cron.Recover(cronLog),
			),
		),
		entries: make(map[string]cron.EntryID),
		ctx:     context.Background(),
	}
}

// Start loads every stored automation, schedules the CRON ones and starts the clock.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	automations, err := s.automations.AllDocs(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to load automations: %w", err)
	}

	for _, automation := range automations {
		if err := s.Schedule(automation); err != nil {
			s.logger.ErrorContext(ctx, "Failed to schedule automation",
				"app_id", automation.AppID, "automation_id", automation.ID, "error", err)
		}
	}

	s.cron.Start()

	s.logger.InfoContext(ctx, "Scheduler started", "entries", s.Len())

	return nil
}

// Stop halts the clock and waits for running jobs.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.Info("Scheduler stopped")

	return nil
}

// Subscribe keeps the entries in line with saved and deleted automations.
func (s *Scheduler) Subscribe(ctx context.Context, bus eventbus.EventSubscriber) error {
	err := errors.Join(
		bus.Handle(events.AutomationSavedEvent, s.handleSaved),
		bus.Handle(events.AutomationDeletedEvent, s.handleDeleted),
	)
	if err != nil {
		return fmt.Errorf("failed to register scheduler handlers: %w", err)
	}

	return bus.Subscribe(ctx)
}

func (s *Scheduler) handleSaved(ctx context.Context, event any) error {
	saved, ok := event.(*events.AutomationSaved)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	if saved.TriggerID != triggers.CronTriggerID {
		s.Unschedule(saved.AppID, saved.AutomationID)

		return nil
	}

	automation, err := s.automations.Get(ctx, saved.AppID, saved.AutomationID)
	if persistence.IsAutomationNotFound(err) {
		s.Unschedule(saved.AppID, saved.AutomationID)

		return nil
	}

	if err != nil {
		return err
	}

	return s.Schedule(automation)
}

func (s *Scheduler) handleDeleted(_ context.Context, event any) error {
	deleted, ok := event.(*events.AutomationDeleted)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	s.Unschedule(deleted.AppID, deleted.AutomationID)

	return nil
}

// Schedule adds or replaces the entry of automation. Automations without a CRON
// trigger are removed from the schedule.
func (s *Scheduler) Schedule(automation *models.Automation) error {
	step := automation.Definition.Trigger
	if step == nil || step.StepID != triggers.CronTriggerID {
		s.Unschedule(automation.AppID, automation.ID)

		return nil
	}

	schedule, err := triggers.ParseSchedule(step.Inputs)
	if err != nil {
		return err
	}

	key := entryKey(automation.AppID, automation.ID)
	appID, id := automation.AppID, automation.ID

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[key]; ok {
		s.cron.Remove(entry)
	}

	s.entries[key] = s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.fire(appID, id)
	}))

	s.logger.Info("Scheduled automation", "app_id", appID, "automation_id", id, "cron", step.Inputs["cron"])

	return nil
}

// Unschedule removes the entry of an automation, if any.
func (s *Scheduler) Unschedule(appID, id string) {
	key := entryKey(appID, id)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return
	}

	s.cron.Remove(entry)
	delete(s.entries, key)

	s.logger.Info("Unscheduled automation", "app_id", appID, "automation_id", id)
}

// Len returns the number of scheduled automations.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// fire reloads the automation so the run uses its latest revision.
func (s *Scheduler) fire(appID, id string) {
	ctx := s.ctx
	logger := s.logger.With("app_id", appID, "automation_id", id)

	automation, err := s.automations.Get(ctx, appID, id)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load scheduled automation", "error", err)

		if persistence.IsAutomationNotFound(err) {
			s.Unschedule(appID, id)
		}

		return
	}

	event := map[string]any{
		"timestamp": time.Now().UnixMilli(),
		"appId":     appID,
	}

	if _, err := s.matcher.ExternalTrigger(ctx, automation, event, trigger.Options{}); err != nil {
		logger.ErrorContext(ctx, "Failed to trigger scheduled automation", "error", err)

		return
	}

	logger.Debug("Scheduled automation fired")
}

func entryKey(appID, id string) string {
	return appID + "/" + id
}

// cronLogger writes cron's own messages through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
