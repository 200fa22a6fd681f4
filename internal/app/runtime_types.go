package app

import (
	"log/slog"
	"net/http"

	"github.com/dwizi/wabot/internal/config"
	"github.com/dwizi/wabot/internal/connectors"
	"github.com/dwizi/wabot/internal/connectors/whatsapp"
	"github.com/dwizi/wabot/internal/dispatch"
	"github.com/dwizi/wabot/internal/gateway"
	"github.com/dwizi/wabot/internal/heartbeat"
	"github.com/dwizi/wabot/internal/overrides"
	"github.com/dwizi/wabot/internal/scheduler"
	"github.com/dwizi/wabot/internal/store"
	"github.com/dwizi/wabot/internal/watcher"
)

type Runtime struct {
	cfg              config.Config
	logger           *slog.Logger
	store            *store.Store
	overrides        *overrides.Table
	gateway          *gateway.Service
	engine           *dispatch.Engine
	device           *whatsapp.Device
	httpServer       *http.Server
	watcher          *watcher.Service
	scheduler        *scheduler.Service
	connectors       []connectors.Connector
	heartbeat        *heartbeat.Registry
	heartbeatMonitor *heartbeat.Monitor
}

type heartbeatAware interface {
	SetHeartbeatReporter(reporter heartbeat.Reporter)
}
