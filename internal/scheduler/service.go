package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dwizi/wabot/internal/briefing"
	"github.com/dwizi/wabot/internal/dispatch"
	"github.com/dwizi/wabot/internal/heartbeat"
	"github.com/dwizi/wabot/internal/store"
)

const (
	component = "scheduler"
	batchSize = 20

	jobKindReminder = "reminder"
	jobKindBriefing = "briefing"
)

type Store interface {
	ListDueReminders(ctx context.Context, now time.Time, limit int) ([]store.Reminder, error)
	MarkReminderFired(ctx context.Context, id string, firedAt time.Time) (bool, error)
	ListDueBriefings(ctx context.Context, now time.Time, limit int) ([]store.Contact, error)
	SetNextBriefing(ctx context.Context, chatID string, next time.Time) error
}

// Engine serializes deliveries with the chat's inbound messages.
type Engine interface {
	Enqueue(job dispatch.Job) (dispatch.Job, error)
}

type Sender interface {
	SendText(ctx context.Context, chatID, text string) error
}

type Briefer interface {
	Build(ctx context.Context, req briefing.Request) (string, error)
}

// Sweeper expires pending chat sessions.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type Config struct {
	PollInterval time.Duration
	Timezone     string
}

type Service struct {
	store        Store
	engine       Engine
	sender       Sender
	briefer      Briefer
	sweeper      Sweeper
	logger       *slog.Logger
	pollInterval time.Duration
	timezone     string
	now          func() time.Time
	reporter     heartbeat.Reporter
}

func New(store Store, engine Engine, sender Sender, cfg Config, logger *slog.Logger) *Service {
	if cfg.PollInterval < time.Second {
		cfg.PollInterval = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:        store,
		engine:       engine,
		sender:       sender,
		logger:       logger.With("component", component),
		pollInterval: cfg.PollInterval,
		timezone:     cfg.Timezone,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) SetBriefer(briefer Briefer) {
	s.briefer = briefer
}

func (s *Service) SetSweeper(sweeper Sweeper) {
	s.sweeper = sweeper
}

func (s *Service) SetHeartbeatReporter(reporter heartbeat.Reporter) {
	s.reporter = reporter
}

func (s *Service) Start(ctx context.Context) error {
	if s.store == nil || s.engine == nil || s.sender == nil {
		if s.reporter != nil {
			s.reporter.Disabled(component, "dependencies missing")
		}
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	if s.reporter != nil {
		s.reporter.Starting(component, "started")
	}
	s.logger.Info("scheduler started", "poll_interval", s.pollInterval.String())
	for {
		if err := s.processDue(ctx); err != nil {
			if s.reporter != nil {
				s.reporter.Degrade(component, "poll cycle failed", err)
			}
			s.logger.Error("scheduler poll failed", "error", err)
		} else if s.reporter != nil {
			s.reporter.Beat(component, "poll cycle completed")
		}
		select {
		case <-ctx.Done():
			if s.reporter != nil {
				s.reporter.Stopped(component, "stopped")
			}
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// processDue runs one poll cycle. Each stage runs even if an earlier one
// failed; the errors are joined.
func (s *Service) processDue(ctx context.Context) error {
	now := s.now()
	var errs []error
	if s.sweeper != nil {
		expired, err := s.sweeper.Sweep(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep sessions: %w", err))
		} else if expired > 0 {
			s.logger.Info("expired sessions swept", "count", expired)
		}
	}
	if err := s.processReminders(ctx, now); err != nil {
		errs = append(errs, err)
	}
	if err := s.processBriefings(ctx, now); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// processReminders claims each due reminder before queueing it, so a reminder
// is delivered at most once even if the queue is slow.
func (s *Service) processReminders(ctx context.Context, now time.Time) error {
	reminders, err := s.store.ListDueReminders(ctx, now, batchSize)
	if err != nil {
		return fmt.Errorf("list due reminders: %w", err)
	}
	for _, reminder := range reminders {
		claimed, err := s.store.MarkReminderFired(ctx, reminder.ID, now)
		if err != nil {
			s.logger.Error("mark reminder fired failed", "reminder_id", reminder.ID, "chat_id", reminder.ChatID, "error", err)
			continue
		}
		if !claimed {
			continue
		}
		text := "⏰ *Recordatorio:* " + strings.TrimSpace(reminder.Text)
		chatID := reminder.ChatID
		if _, err := s.engine.Enqueue(dispatch.Job{
			ChatID: chatID,
			Kind:   jobKindReminder,
			Run: func(ctx context.Context) error {
				return s.sender.SendText(ctx, chatID, text)
			},
		}); err != nil {
			s.logger.Error("reminder enqueue failed", "reminder_id", reminder.ID, "chat_id", chatID, "error", err)
			continue
		}
		s.logger.Info("reminder queued", "reminder_id", reminder.ID, "chat_id", chatID)
	}
	return nil
}

// processBriefings advances each due contact to its next slot first, then
// queues the briefing.
func (s *Service) processBriefings(ctx context.Context, now time.Time) error {
	contacts, err := s.store.ListDueBriefings(ctx, now, batchSize)
	if err != nil {
		return fmt.Errorf("list due briefings: %w", err)
	}
	for _, contact := range contacts {
		if !contact.Preferences.Briefing || s.briefer == nil {
			if err := s.store.SetNextBriefing(ctx, contact.ChatID, time.Time{}); err != nil {
				s.logger.Error("clear briefing schedule failed", "chat_id", contact.ChatID, "error", err)
			}
			continue
		}
		next, err := store.ComputeNextBriefing(contact.Preferences.Times, s.timezone, now)
		if err != nil {
			s.logger.Error("compute next briefing failed", "chat_id", contact.ChatID, "error", err)
			next = time.Time{}
		}
		if err := s.store.SetNextBriefing(ctx, contact.ChatID, next); err != nil {
			s.logger.Error("advance briefing schedule failed", "chat_id", contact.ChatID, "error", err)
			continue
		}

		request := briefing.Request{
			ChatID:      contact.ChatID,
			DisplayName: contact.DisplayName,
			Preferences: contact.Preferences,
			Now:         now,
		}
		chatID := contact.ChatID
		if _, err := s.engine.Enqueue(dispatch.Job{
			ChatID: chatID,
			Kind:   jobKindBriefing,
			Run: func(ctx context.Context) error {
				text, err := s.briefer.Build(ctx, request)
				if err != nil {
					return fmt.Errorf("build briefing: %w", err)
				}
				return s.sender.SendText(ctx, chatID, text)
			},
		}); err != nil {
			s.logger.Error("briefing enqueue failed", "chat_id", chatID, "error", err)
			continue
		}
		s.logger.Info("briefing queued", "chat_id", chatID, "next_run", next)
	}
	return nil
}
