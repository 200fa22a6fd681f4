package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dwizi/wabot/internal/heartbeat"
)

// component is one long-running loop supervised by Run.
type component struct {
	name  string
	beat  time.Duration
	start func(context.Context) error
}

func (r *Runtime) components() []component {
	list := []component{
		{name: "dispatch", beat: 20 * time.Second, start: r.engine.Start},
		{name: "watcher", start: r.watcher.Start},
		{name: "scheduler", start: r.scheduler.Start},
	}
	for _, connector := range r.connectors {
		list = append(list, component{
			name:  "connector:" + strings.ToLower(strings.TrimSpace(connector.Name())),
			start: connector.Start,
		})
	}
	list = append(list, component{name: "api", beat: 20 * time.Second, start: r.serveHTTP})
	if r.heartbeatMonitor != nil {
		list = append(list, component{name: "heartbeat-monitor", start: r.heartbeatMonitor.Start})
	}
	return list
}

// Run blocks until ctx is cancelled or a component fails, then shuts the
// HTTP server down.
func (r *Runtime) Run(ctx context.Context) error {
	r.logger.Info("wabot runtime starting",
		"addr", r.cfg.HTTPAddr,
		"whatsapp_enabled", r.cfg.WhatsAppEnabled,
		"timezone", r.cfg.Timezone,
	)
	if r.heartbeat != nil {
		r.heartbeat.Beat("runtime", "runtime loop started")
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, item := range r.components() {
		group.Go(func() error {
			return runMonitored(groupCtx, r.heartbeat, item.name, item.beat, item.start)
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return r.httpServer.Shutdown(shutdownCtx)
	})

	err := group.Wait()
	r.logger.Info("wabot runtime stopped", "error", err)
	return err
}

func (r *Runtime) serveHTTP(context.Context) error {
	err := r.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (r *Runtime) Close() error {
	var errs []error
	if r.device != nil {
		if err := r.device.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func runMonitored(
	ctx context.Context,
	reporter heartbeat.Reporter,
	component string,
	beatInterval time.Duration,
	run func(context.Context) error,
) error {
	if run == nil {
		return nil
	}
	if reporter != nil {
		reporter.Starting(component, "starting")
		reporter.Beat(component, "running")
	}

	var stopHeartbeat func()
	if reporter != nil && beatInterval > 0 {
		heartbeatCtx, cancel := context.WithCancel(ctx)
		stopHeartbeat = cancel
		go func() {
			ticker := time.NewTicker(beatInterval)
			defer ticker.Stop()
			for {
				select {
				case <-heartbeatCtx.Done():
					return
				case <-ticker.C:
					reporter.Beat(component, "running")
				}
			}
		}()
	}

	err := run(ctx)
	if stopHeartbeat != nil {
		stopHeartbeat()
	}
	if reporter == nil {
		return err
	}
	if err != nil && ctx.Err() == nil {
		reporter.Degrade(component, "component failed", err)
		return err
	}
	reporter.Stopped(component, "stopped")
	return err
}
