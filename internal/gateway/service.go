package gateway

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dwizi/wabot/internal/briefing"
	"github.com/dwizi/wabot/internal/dispatch"
	"github.com/dwizi/wabot/internal/envelope"
	"github.com/dwizi/wabot/internal/expense"
	"github.com/dwizi/wabot/internal/intent"
	"github.com/dwizi/wabot/internal/ledger"
	"github.com/dwizi/wabot/internal/llm"
	"github.com/dwizi/wabot/internal/llm/safety"
	"github.com/dwizi/wabot/internal/media"
	"github.com/dwizi/wabot/internal/memorylog"
	"github.com/dwizi/wabot/internal/session"
	"github.com/dwizi/wabot/internal/store"
)

type Store interface {
	EnsureContact(ctx context.Context, chatID, displayName string) (store.Contact, error)
	CountContacts(ctx context.Context) (store.ContactStats, error)
	ListBlockedContacts(ctx context.Context) ([]store.Contact, error)
	SetActiveBot(ctx context.Context, chatID string, bot store.ActiveBot) error
	SetBlocked(ctx context.Context, chatID string, blocked bool) error
	SetNextBriefing(ctx context.Context, chatID string, next time.Time) error
	UpdatePreferences(ctx context.Context, chatID string, mutate func(*store.Preferences)) (store.Preferences, error)
	UpdateBotConfig(ctx context.Context, chatID string, mutate func(*store.BotConfig)) (store.BotConfig, error)
	ResetBotConfig(ctx context.Context, chatID string) error
	ResetAllBotConfigs(ctx context.Context) (int64, error)
	CreateReminder(ctx context.Context, input store.CreateReminderInput) (store.Reminder, error)
	ListPendingReminders(ctx context.Context, chatID string) ([]store.Reminder, error)
}

type Ledger interface {
	Append(ctx context.Context, account ledger.Account, row ledger.Row) (ledger.Row, error)
	Get(ctx context.Context, account ledger.Account, number int) (ledger.Row, error)
	Update(ctx context.Context, account ledger.Account, row ledger.Row) error
	List(ctx context.Context, account ledger.Account, from, to time.Time) ([]ledger.Row, error)
}

type Classifier interface {
	Classify(description, hint string) expense.Classification
}

// Learner persists a manual categorization so the classifier picks it up.
type Learner interface {
	Learn(description, category string) error
}

type Limiter interface {
	Check(input safety.Request) safety.Decision
}

type Briefer interface {
	Build(ctx context.Context, req briefing.Request) (string, error)
}

type GIFFinder interface {
	Find(ctx context.Context, term string) (string, error)
}

// Sender delivers messages that are not replies to an inbound message, such
// as session timeout notices.
type Sender interface {
	SendText(ctx context.Context, chatID, text string) error
}

// Dispatcher queues work on the chat's serial lane so it cannot interleave
// with that chat's inbound messages.
type Dispatcher interface {
	Enqueue(job dispatch.Job) (dispatch.Job, error)
}

type Config struct {
	AdminPhone          string
	CommandPrefix       string
	EchoMarker          string
	Timezone            string
	Location            *time.Location
	TranscriptRoot      string
	HistoryLines        int
	SheetsEnabled       bool
	BotSelectionTimeout time.Duration
	CategoryTimeout     time.Duration
	EditTimeout         time.Duration
	OnboardingTimeout   time.Duration
}

type Deps struct {
	Store      Store
	Ledger     Ledger
	Classifier Classifier
	Learner    Learner
	Responder  llm.Responder
	Limiter    Limiter
	Briefer    Briefer
	GIFs       GIFFinder
	Sessions   session.Store
	Now        func() time.Time
	Logger     *slog.Logger
}

type Service struct {
	cfg        Config
	store      Store
	ledger     Ledger
	classifier Classifier
	learner    Learner
	responder  llm.Responder
	limiter    Limiter
	briefer    Briefer
	gifs       GIFFinder
	sessions   *session.Manager
	matcher    *intent.Matcher
	now        func() time.Time
	logger     *slog.Logger

	// senderMu guards both late-bound transports.
	senderMu   sync.RWMutex
	sender     Sender
	dispatcher Dispatcher
}

type MessageInput struct {
	Connector   string
	ChatID      string
	DisplayName string
	Text        string
	Choice      *envelope.Choice
}

type MessageOutput struct {
	Handled    bool
	Reply      string
	Attachment *media.Attachment
}

func New(cfg Config, deps Deps) *Service {
	if strings.TrimSpace(cfg.CommandPrefix) == "" {
		cfg.CommandPrefix = "/"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.HistoryLines < 0 {
		cfg.HistoryLines = 0
	}
	if cfg.BotSelectionTimeout <= 0 {
		cfg.BotSelectionTimeout = time.Minute
	}
	if cfg.CategoryTimeout <= 0 {
		cfg.CategoryTimeout = 5 * time.Minute
	}
	if cfg.EditTimeout <= 0 {
		cfg.EditTimeout = 5 * time.Minute
	}
	if cfg.OnboardingTimeout <= 0 {
		cfg.OnboardingTimeout = 15 * time.Minute
	}
	cfg.AdminPhone = phoneDigits(cfg.AdminPhone)

	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gateway")
	classifier := deps.Classifier
	if classifier == nil {
		classifier = expense.NewClassifier(nil)
	}

	service := &Service{
		cfg:        cfg,
		store:      deps.Store,
		ledger:     deps.Ledger,
		classifier: classifier,
		learner:    deps.Learner,
		responder:  deps.Responder,
		limiter:    deps.Limiter,
		briefer:    deps.Briefer,
		gifs:       deps.GIFs,
		matcher:    intent.NewMatcher(cfg.CommandPrefix),
		now:        now,
		logger:     logger,
	}
	service.sessions = session.NewManager(deps.Sessions, now, logger)
	service.sessions.Register(session.KindBotSelection, cfg.BotSelectionTimeout, nil)
	service.sessions.Register(session.KindCategory, cfg.CategoryTimeout, service.onChatLane(service.categoryTimedOut))
	service.sessions.Register(session.KindEdit, cfg.EditTimeout, nil)
	return service
}

// SetSender attaches the outbound transport used for unsolicited messages.
func (s *Service) SetSender(sender Sender) {
	s.senderMu.Lock()
	s.sender = sender
	s.senderMu.Unlock()
}

// SetDispatcher routes session timeout fallbacks through the chat's dispatch
// lane. Without one they run inline on the caller's goroutine.
func (s *Service) SetDispatcher(dispatcher Dispatcher) {
	s.senderMu.Lock()
	s.dispatcher = dispatcher
	s.senderMu.Unlock()
}

// HandleMessage routes one inbound message through the fixed priority order:
// echo filter, blocklist, pending sessions, onboarding, commands, the gastos
// trigger, the active sub-bot, assistant intents and finally the LLM.
func (s *Service) HandleMessage(ctx context.Context, input MessageInput) (MessageOutput, error) {
	input.ChatID = strings.TrimSpace(input.ChatID)
	input.Text = strings.TrimSpace(input.Text)
	if input.Choice != nil && input.Text == "" {
		input.Text = strings.TrimSpace(input.Choice.Text)
	}
	if input.ChatID == "" || (input.Text == "" && input.Choice == nil) {
		return MessageOutput{}, nil
	}
	if s.cfg.EchoMarker != "" && strings.HasPrefix(input.Text, s.cfg.EchoMarker) {
		return MessageOutput{}, nil
	}

	contact, err := s.store.EnsureContact(ctx, input.ChatID, input.DisplayName)
	if err != nil {
		return MessageOutput{}, err
	}
	if contact.Blocked && !s.isAdmin(input.ChatID) {
		s.logger.Info("dropped message from blocked contact", "chat_id", input.ChatID)
		return MessageOutput{Handled: true}, nil
	}

	output, err := s.route(ctx, input, contact)
	s.record(input, output)
	return output, err
}

// Sweep expires overdue sessions and runs their fallbacks.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	return s.sessions.Sweep(ctx)
}

func (s *Service) route(ctx context.Context, input MessageInput, contact store.Contact) (MessageOutput, error) {
	if output, handled, err := s.resolvePending(ctx, input, contact); err != nil || handled {
		return output, err
	}

	command, arg, isCommand := s.splitCommand(input.Text)
	if !isCommand && contact.BotConfig.Gastos.Step != "" {
		if output, handled, err := s.continueOnboarding(ctx, input, contact); err != nil || handled {
			return output, err
		}
	}
	if isCommand {
		if output, handled, err := s.handleCommand(ctx, input, contact, command, arg); err != nil || handled {
			return output, err
		}
	}

	if contact.ActiveBot != store.BotGastos && isGastosTrigger(input.Text) {
		return s.enterGastos(ctx, input, contact)
	}
	if contact.ActiveBot == store.BotGastos {
		return s.handleExpense(ctx, input, contact)
	}
	if match, ok := s.matcher.Match(input.Text); ok {
		return s.handleIntent(ctx, input, contact, match)
	}
	return s.handleAssistant(ctx, input, contact)
}

func (s *Service) record(input MessageInput, output MessageOutput) {
	if strings.TrimSpace(s.cfg.TranscriptRoot) == "" {
		return
	}
	connector := connectorName(input.Connector)
	now := s.now()
	entries := []memorylog.Entry{{
		Root:        s.cfg.TranscriptRoot,
		Connector:   connector,
		ChatID:      input.ChatID,
		Direction:   memorylog.DirectionInbound,
		DisplayName: input.DisplayName,
		Text:        input.Text,
		Timestamp:   now,
	}}
	if reply := strings.TrimSpace(output.Reply); reply != "" {
		entries = append(entries, memorylog.Entry{
			Root:      s.cfg.TranscriptRoot,
			Connector: connector,
			ChatID:    input.ChatID,
			Direction: memorylog.DirectionOutbound,
			Text:      reply,
			Timestamp: now,
		})
	}
	for _, entry := range entries {
		if err := memorylog.Append(entry); err != nil {
			s.logger.Warn("transcript append failed", "chat_id", input.ChatID, "error", err)
			return
		}
	}
}

func (s *Service) notify(ctx context.Context, chatID, text string) {
	s.senderMu.RLock()
	sender := s.sender
	s.senderMu.RUnlock()
	if sender == nil {
		s.logger.Warn("no sender attached, notice dropped", "chat_id", chatID)
		return
	}
	if err := sender.SendText(ctx, chatID, text); err != nil {
		s.logger.Error("notice delivery failed", "chat_id", chatID, "error", err)
	}
}

// onChatLane wraps a fallback so it runs as a job keyed by the entry's chat.
// A full queue falls back to running it inline rather than losing the entry.
func (s *Service) onChatLane(fallback session.Fallback) session.Fallback {
	return func(ctx context.Context, entry session.Entry) {
		s.senderMu.RLock()
		dispatcher := s.dispatcher
		s.senderMu.RUnlock()
		if dispatcher == nil {
			fallback(ctx, entry)
			return
		}
		_, err := dispatcher.Enqueue(dispatch.Job{
			ChatID: entry.Key.ChatID,
			Kind:   jobKindSessionTimeout,
			Run: func(jobCtx context.Context) error {
				fallback(jobCtx, entry)
				return nil
			},
		})
		if err != nil {
			s.logger.Warn("session fallback not queued, running inline", "chat_id", entry.Key.ChatID, "kind", entry.Key.Kind, "error", err)
			fallback(ctx, entry)
		}
	}
}

func (s *Service) isAdmin(chatID string) bool {
	if s.cfg.AdminPhone == "" {
		return false
	}
	return phoneDigits(chatID) == s.cfg.AdminPhone
}

// splitCommand returns the lower-cased command name and its argument when
// text starts with the command prefix.
func (s *Service) splitCommand(text string) (string, string, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, s.cfg.CommandPrefix) {
		return "", "", false
	}
	trimmed = strings.TrimPrefix(trimmed, s.cfg.CommandPrefix)
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return "", "", false
	}
	command := strings.ToLower(fields[0])
	if idx := strings.Index(command, "@"); idx >= 0 {
		command = command[:idx]
	}
	if len(fields) == 1 {
		return command, "", true
	}
	argStart := strings.IndexAny(trimmed, " \t\n")
	if argStart < 0 {
		return command, "", true
	}
	return command, strings.TrimSpace(trimmed[argStart+1:]), true
}

// phoneDigits reduces a chat id or phone number to its digits, dropping any
// server or device suffix.
func phoneDigits(value string) string {
	value = strings.TrimSpace(value)
	if idx := strings.Index(value, "@"); idx >= 0 {
		value = value[:idx]
	}
	if idx := strings.Index(value, ":"); idx >= 0 {
		value = value[:idx]
	}
	var builder strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

func connectorName(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "whatsapp"
	}
	return value
}

func compactSnippet(input string) string {
	text := strings.TrimSpace(input)
	if text == "" {
		return ""
	}
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= 120 {
		return text
	}
	return string(runes[:120]) + "..."
}
