package app

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dwizi/wabot/internal/connectors"
	"github.com/dwizi/wabot/internal/heartbeat"
)

const noticeTimeout = 8 * time.Second

// adminNotifier forwards degrade and recovery transitions to the admin chat.
type adminNotifier struct {
	sender     connectors.Sender
	adminPhone string
	logger     *slog.Logger
}

func newAdminNotifier(sender connectors.Sender, adminPhone string, logger *slog.Logger) *adminNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &adminNotifier{
		sender:     sender,
		adminPhone: strings.TrimSpace(adminPhone),
		logger:     logger,
	}
}

func (n *adminNotifier) HandleTransition(ctx context.Context, transition heartbeat.Transition, _ heartbeat.Snapshot) {
	if !notifiable(transition) {
		return
	}
	if n.sender == nil || n.adminPhone == "" {
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, noticeTimeout)
	defer cancel()
	if err := n.sender.SendText(sendCtx, n.adminPhone, transition.Notice()); err != nil {
		n.logger.Error("heartbeat notice failed", "component", transition.Component, "error", err)
	}
}

// notifiable is true for healthy to degraded and degraded to healthy moves.
// A component that never came up (disabled, starting) stays quiet.
func notifiable(transition heartbeat.Transition) bool {
	fromDegraded := heartbeat.IsDegradedState(transition.FromState)
	toDegraded := heartbeat.IsDegradedState(transition.ToState)
	switch {
	case !fromDegraded && toDegraded:
		return true
	case fromDegraded && strings.EqualFold(strings.TrimSpace(transition.ToState), heartbeat.StateHealthy):
		return true
	default:
		return false
	}
}
