package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dwizi/wabot/internal/briefing"
	"github.com/dwizi/wabot/internal/config"
	"github.com/dwizi/wabot/internal/connectors"
	"github.com/dwizi/wabot/internal/connectors/whatsapp"
	"github.com/dwizi/wabot/internal/dispatch"
	"github.com/dwizi/wabot/internal/expense"
	"github.com/dwizi/wabot/internal/gateway"
	"github.com/dwizi/wabot/internal/heartbeat"
	"github.com/dwizi/wabot/internal/httpapi"
	"github.com/dwizi/wabot/internal/ledger"
	"github.com/dwizi/wabot/internal/llm/groq"
	"github.com/dwizi/wabot/internal/llm/safety"
	"github.com/dwizi/wabot/internal/media"
	"github.com/dwizi/wabot/internal/overrides"
	"github.com/dwizi/wabot/internal/scheduler"
	"github.com/dwizi/wabot/internal/session"
	"github.com/dwizi/wabot/internal/store"
	"github.com/dwizi/wabot/internal/watcher"
)

func New(cfg config.Config, version string, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	if err := os.MkdirAll(cfg.TranscriptRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript root: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.OverridesFile), 0o755); err != nil {
		return nil, fmt.Errorf("create overrides directory: %w", err)
	}

	location := loadLocation(cfg.Timezone, logger)
	ctx := context.Background()

	sqlStore, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := sqlStore.AutoMigrate(ctx); err != nil {
		sqlStore.Close()
		return nil, err
	}
	defaults := store.DefaultPreferences()
	if times, err := store.ParseClockTimes(cfg.BriefingDefaultTimesCSV); err == nil && len(times) > 0 {
		defaults.Times = times
	} else if err != nil {
		logger.Warn("invalid default briefing times, keeping built-in default", "value", cfg.BriefingDefaultTimesCSV, "error", err)
	}
	sqlStore.SetPreferenceDefaults(defaults)

	overrideTable, err := overrides.Open(cfg.OverridesFile, logger.With("component", "overrides"))
	if err != nil {
		sqlStore.Close()
		return nil, err
	}

	var sheets ledger.Ledger
	if cfg.SheetsCredentialsFile != "" {
		sheetsLedger, err := ledger.NewSheets(ctx, ledger.SheetsConfig{
			CredentialsFile: cfg.SheetsCredentialsFile,
			Range:           cfg.SheetsRange,
			Location:        location,
		}, logger.With("component", "ledger-sheets"))
		if err != nil {
			logger.Error("spreadsheet ledger disabled", "error", err)
		} else {
			sheets = sheetsLedger
		}
	}

	briefer := briefing.New(briefing.Config{
		WeatherCity:    cfg.WeatherCity,
		Latitude:       cfg.WeatherLatitude,
		Longitude:      cfg.WeatherLongitude,
		WeatherAPIBase: cfg.WeatherAPIBase,
		CryptoAPIBase:  cfg.CryptoAPIBase,
		FiatAPIBase:    cfg.FiatAPIBase,
		NewsFeedBase:   cfg.NewsFeedBase,
		NewsLanguage:   cfg.NewsLanguage,
		Location:       location,
		Timeout:        15 * time.Second,
	}, logger.With("component", "briefing"))

	commandGateway := gateway.New(gateway.Config{
		AdminPhone:          cfg.AdminPhone,
		CommandPrefix:       cfg.CommandPrefix,
		EchoMarker:          cfg.EchoMarker,
		Timezone:            cfg.Timezone,
		Location:            location,
		TranscriptRoot:      cfg.TranscriptRoot,
		HistoryLines:        cfg.LLMHistoryLines,
		SheetsEnabled:       sheets != nil,
		BotSelectionTimeout: seconds(cfg.BotSelectionTimeoutSec),
		CategoryTimeout:     seconds(cfg.CategoryTimeoutSec),
		EditTimeout:         seconds(cfg.EditTimeoutSec),
		OnboardingTimeout:   seconds(cfg.OnboardingTimeoutSec),
	}, gateway.Deps{
		Store:      sqlStore,
		Ledger:     ledger.NewMux(ledger.NewLocal(sqlStore), sheets),
		Classifier: expense.NewClassifier(overrideTable),
		Learner:    overrideTable,
		Responder: groq.New(groq.Config{
			APIKey:       cfg.LLMAPIKey,
			BaseURL:      cfg.LLMBaseURL,
			Model:        cfg.LLMModel,
			Timeout:      seconds(cfg.LLMTimeoutSec),
			SystemPrompt: cfg.LLMSystemPrompt,
			MaxRetries:   cfg.LLMMaxRetries,
		}, logger.With("component", "llm-groq")),
		Limiter: safety.New(safety.Config{
			Enabled:            true,
			RateLimitPerWindow: cfg.LLMRateLimitPerWindow,
			RateLimitWindow:    seconds(cfg.LLMRateLimitWindowSec),
		}),
		Briefer:  briefer,
		GIFs:     media.NewGIFSearch(cfg.TenorAPIBase, cfg.TenorAPIKey, "es", 10*time.Second),
		Sessions: session.NewMemoryStore(),
		Logger:   logger,
	})

	engine := dispatch.New(cfg.DispatchWorkers, logger.With("component", "dispatch"))
	commandGateway.SetDispatcher(engine)

	var (
		device         *whatsapp.Device
		sender         connectors.Sender
		chatConnectors []connectors.Connector
	)
	if cfg.WhatsAppEnabled {
		device, err = whatsapp.OpenDevice(ctx, whatsapp.DeviceConfig{
			DBPath:   cfg.WhatsAppDBPath,
			LogLevel: cfg.WhatsAppLogLevel,
		}, logger.With("component", "whatsmeow"))
		if err != nil {
			sqlStore.Close()
			return nil, err
		}
		connector := whatsapp.New(device, commandGateway, engine, whatsapp.Config{EchoMarker: cfg.EchoMarker}, logger)
		commandGateway.SetSender(connector)
		sender = connector
		chatConnectors = append(chatConnectors, connector)
	} else {
		logger.Info("whatsapp connector disabled by config")
	}

	schedulerService := scheduler.New(sqlStore, engine, sender, scheduler.Config{
		PollInterval: seconds(cfg.SchedulerPollSec),
		Timezone:     cfg.Timezone,
	}, logger)
	schedulerService.SetBriefer(briefer)
	schedulerService.SetSweeper(commandGateway)

	watchService, err := watcher.New(
		[]string{cfg.OverridesFile},
		logger.With("component", "watcher"),
		func(ctx context.Context, path string) {
			if err := overrideTable.Reload(); err != nil {
				logger.Error("category overrides reload failed", "path", path, "error", err)
				return
			}
			logger.Info("category overrides reloaded", "path", path, "entries", overrideTable.Len())
		},
	)
	if err != nil {
		closeQuietly(device, sqlStore)
		return nil, err
	}

	heartbeatRegistry := heartbeat.NewRegistry()
	staleAfter := seconds(cfg.HeartbeatStaleSec)
	notifier := newAdminNotifier(sender, cfg.AdminPhone, logger.With("component", "heartbeat-notifier"))
	heartbeatMonitor := heartbeat.NewMonitor(heartbeatRegistry, heartbeat.MonitorConfig{
		Interval:     30 * time.Second,
		StaleAfter:   staleAfter,
		Logger:       logger.With("component", "heartbeat-monitor"),
		OnTransition: notifier.HandleTransition,
	})
	schedulerService.SetHeartbeatReporter(heartbeatRegistry)
	for _, connector := range chatConnectors {
		if aware, ok := connector.(heartbeatAware); ok {
			aware.SetHeartbeatReporter(heartbeatRegistry)
		}
	}

	router := httpapi.NewRouter(httpapi.Dependencies{
		Config:              cfg,
		Store:               sqlStore,
		Gateway:             commandGateway,
		Sender:              sender,
		Logger:              logger.With("component", "http"),
		Heartbeat:           heartbeatRegistry,
		HeartbeatStaleAfter: staleAfter,
		Version:             version,
	})

	return &Runtime{
		cfg:       cfg,
		logger:    logger,
		store:     sqlStore,
		overrides: overrideTable,
		gateway:   commandGateway,
		engine:    engine,
		device:    device,
		httpServer: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		watcher:          watchService,
		scheduler:        schedulerService,
		connectors:       chatConnectors,
		heartbeat:        heartbeatRegistry,
		heartbeatMonitor: heartbeatMonitor,
	}, nil
}

func loadLocation(name string, logger *slog.Logger) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC
	}
	location, err := time.LoadLocation(name)
	if err != nil {
		logger.Warn("unknown timezone, using UTC", "timezone", name, "error", err)
		return time.UTC
	}
	return location
}

func seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

func closeQuietly(device *whatsapp.Device, sqlStore *store.Store) {
	if device != nil {
		_ = device.Close()
	}
	if sqlStore != nil {
		_ = sqlStore.Close()
	}
}
