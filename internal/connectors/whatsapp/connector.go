// Package whatsapp connects the gateway to WhatsApp through whatsmeow.
// Inbound messages are queued per chat on the dispatcher; replies and
// scheduler deliveries go out through SendText and SendAttachment.
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/dwizi/wabot/internal/dispatch"
	"github.com/dwizi/wabot/internal/envelope"
	"github.com/dwizi/wabot/internal/gateway"
	"github.com/dwizi/wabot/internal/heartbeat"
	"github.com/dwizi/wabot/internal/media"
)

const (
	connectorName  = "whatsapp"
	component      = "connector:whatsapp"
	jobKindInbound = "inbound"
	healthInterval = 30 * time.Second
)

type CommandGateway interface {
	HandleMessage(ctx context.Context, input gateway.MessageInput) (gateway.MessageOutput, error)
}

type Dispatcher interface {
	Enqueue(job dispatch.Job) (dispatch.Job, error)
}

type Config struct {
	EchoMarker string
}

type Connector struct {
	client     Client
	gateway    CommandGateway
	dispatcher Dispatcher
	echoMarker string
	logger     *slog.Logger
	reporter   heartbeat.Reporter

	mu     sync.RWMutex
	routes map[string]types.JID
}

func New(client Client, commandGateway CommandGateway, dispatcher Dispatcher, cfg Config, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		client:     client,
		gateway:    commandGateway,
		dispatcher: dispatcher,
		echoMarker: cfg.EchoMarker,
		logger:     logger.With("connector", connectorName),
		routes:     map[string]types.JID{},
	}
}

func (c *Connector) Name() string {
	return connectorName
}

func (c *Connector) SetHeartbeatReporter(reporter heartbeat.Reporter) {
	c.reporter = reporter
}

func (c *Connector) Start(ctx context.Context) error {
	if c.client == nil || c.gateway == nil || c.dispatcher == nil {
		c.report(func(r heartbeat.Reporter) { r.Disabled(component, "dependencies missing") })
		c.logger.Info("connector disabled, dependencies missing")
		<-ctx.Done()
		return nil
	}
	if !c.client.Paired() {
		c.report(func(r heartbeat.Reporter) { r.Degrade(component, "device not paired, run `wabot pair`", ErrNotPaired) })
		c.logger.Warn("connector idle, device not paired")
		<-ctx.Done()
		return nil
	}

	c.report(func(r heartbeat.Reporter) { r.Starting(component, "connecting") })
	c.client.AddEventHandler(c.handleEvent)
	if err := c.client.Connect(); err != nil {
		c.report(func(r heartbeat.Reporter) { r.Degrade(component, "connect failed", err) })
		return fmt.Errorf("connect whatsapp: %w", err)
	}
	c.logger.Info("connector started", "own_user", c.client.OwnUser())

	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.client.Disconnect()
			c.report(func(r heartbeat.Reporter) { r.Stopped(component, "stopped") })
			c.logger.Info("connector stopped")
			return nil
		case <-ticker.C:
			if c.client.IsConnected() {
				c.report(func(r heartbeat.Reporter) { r.Beat(component, "connected") })
			} else {
				c.report(func(r heartbeat.Reporter) { r.Degrade(component, "disconnected", nil) })
			}
		}
	}
}

func (c *Connector) handleEvent(evt any) {
	switch value := evt.(type) {
	case *events.Message:
		c.handleMessage(value)
	case *events.Connected:
		c.report(func(r heartbeat.Reporter) { r.Beat(component, "connected") })
		c.logger.Info("whatsapp connected")
	case *events.Disconnected:
		c.report(func(r heartbeat.Reporter) { r.Degrade(component, "disconnected", nil) })
		c.logger.Warn("whatsapp disconnected")
	case *events.LoggedOut:
		c.report(func(r heartbeat.Reporter) { r.Degrade(component, "logged out, pair again", ErrNotPaired) })
		c.logger.Error("whatsapp logged out", "reason", value.Reason.String())
	case *events.StreamReplaced:
		c.report(func(r heartbeat.Reporter) { r.Degrade(component, "stream replaced by another client", nil) })
		c.logger.Error("whatsapp stream replaced")
	}
}

// handleMessage filters and queues one inbound message. Groups, broadcasts
// and the account's own messages to other people are ignored; messages the
// account sends to itself are handled so the owner can use the bot from
// their self-chat.
func (c *Connector) handleMessage(evt *events.Message) {
	if evt == nil || evt.Message == nil {
		return
	}
	info := evt.Info
	if info.IsGroup || !isPersonalServer(info.Chat.Server) {
		return
	}
	chatID, route := resolveChat(info)
	if chatID == "" {
		return
	}
	if info.IsFromMe && chatID != c.client.OwnUser() {
		return
	}
	content := envelope.ExtractProto(evt.Message)
	if content.Text == "" && content.Choice == nil {
		return
	}
	c.remember(chatID, route)

	input := gateway.MessageInput{
		Connector:   connectorName,
		ChatID:      chatID,
		DisplayName: strings.TrimSpace(info.PushName),
		Text:        content.Text,
		Choice:      content.Choice,
	}
	job, err := c.dispatcher.Enqueue(dispatch.Job{
		ChatID: chatID,
		Kind:   jobKindInbound,
		Run: func(ctx context.Context) error {
			return c.process(ctx, input)
		},
	})
	if err != nil {
		c.logger.Error("enqueue inbound message failed", "chat_id", chatID, "message_id", info.ID, "error", err)
		return
	}
	c.logger.Debug("inbound message queued", "chat_id", chatID, "job_id", job.ID, "message_id", info.ID)
}

func (c *Connector) process(ctx context.Context, input gateway.MessageInput) error {
	output, err := c.gateway.HandleMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("handle message: %w", err)
	}
	if !output.Handled {
		return nil
	}
	if output.Reply != "" {
		if err := c.SendText(ctx, input.ChatID, output.Reply); err != nil {
			return err
		}
	}
	if output.Attachment != nil {
		if err := c.SendAttachment(ctx, input.ChatID, *output.Attachment); err != nil {
			return err
		}
	}
	return nil
}

// SendText sends a marked message so the self-chat echo is recognizable.
func (c *Connector) SendText(ctx context.Context, chatID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	to, err := c.target(chatID)
	if err != nil {
		return err
	}
	_, err = c.client.SendMessage(ctx, to, &waE2E.Message{
		Conversation: proto.String(c.echoMarker + text),
	})
	if err != nil {
		return fmt.Errorf("send whatsapp text: %w", err)
	}
	return nil
}

func (c *Connector) SendAttachment(ctx context.Context, chatID string, attachment media.Attachment) error {
	if len(attachment.Data) == 0 {
		return fmt.Errorf("attachment is empty")
	}
	to, err := c.target(chatID)
	if err != nil {
		return err
	}
	mediaType := whatsmeow.MediaDocument
	if attachment.Kind == media.KindImage {
		mediaType = whatsmeow.MediaImage
	}
	uploaded, err := c.client.Upload(ctx, attachment.Data, mediaType)
	if err != nil {
		return fmt.Errorf("upload whatsapp media: %w", err)
	}
	message := attachmentMessage(attachment, uploaded, c.echoMarker)
	if _, err := c.client.SendMessage(ctx, to, message); err != nil {
		return fmt.Errorf("send whatsapp media: %w", err)
	}
	return nil
}

func attachmentMessage(attachment media.Attachment, uploaded whatsmeow.UploadResponse, marker string) *waE2E.Message {
	caption := proto.String(marker + attachment.Caption)
	if attachment.Kind == media.KindImage {
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Caption:       caption,
			Mimetype:      proto.String(attachment.MimeType),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
		}}
	}
	return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
		Caption:       caption,
		Mimetype:      proto.String(attachment.MimeType),
		FileName:      proto.String(attachment.FileName),
		Title:         proto.String(attachment.FileName),
		URL:           proto.String(uploaded.URL),
		DirectPath:    proto.String(uploaded.DirectPath),
		MediaKey:      uploaded.MediaKey,
		FileEncSHA256: uploaded.FileEncSHA256,
		FileSHA256:    uploaded.FileSHA256,
		FileLength:    proto.Uint64(uploaded.FileLength),
	}}
}

func (c *Connector) remember(chatID string, route types.JID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes[chatID] = route
}

// target is the JID a chat id was last seen on, or its phone-number JID.
func (c *Connector) target(chatID string) (types.JID, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return types.JID{}, fmt.Errorf("chat id is required")
	}
	c.mu.RLock()
	route, ok := c.routes[chatID]
	c.mu.RUnlock()
	if ok {
		return route, nil
	}
	return types.NewJID(chatID, types.DefaultUserServer), nil
}

func (c *Connector) report(fn func(heartbeat.Reporter)) {
	if c.reporter != nil {
		fn(c.reporter)
	}
}

func isPersonalServer(server string) bool {
	return server == types.DefaultUserServer || server == types.HiddenUserServer
}

// resolveChat returns the chat id (the partner's phone digits) and the JID
// replies should go to. Chats addressed by LID fall back to the alternate
// phone-number JID when the server provides one.
func resolveChat(info types.MessageInfo) (string, types.JID) {
	chat := info.Chat.ToNonAD()
	if chat.Server != types.HiddenUserServer {
		return chat.User, chat
	}
	alt := info.SenderAlt
	if info.IsFromMe {
		alt = info.RecipientAlt
	}
	if alt.User != "" && alt.Server == types.DefaultUserServer {
		return alt.User, chat
	}
	return chat.User, chat
}
