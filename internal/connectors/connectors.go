package connectors

import "context"

// Connector is a long-running chat transport started by the runtime.
type Connector interface {
	Name() string
	Start(ctx context.Context) error
}

// Sender delivers text to a chat on the transport it was last seen on.
type Sender interface {
	SendText(ctx context.Context, chatID, text string) error
}
