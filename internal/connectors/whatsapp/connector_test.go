package whatsapp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/dwizi/wabot/internal/dispatch"
	"github.com/dwizi/wabot/internal/gateway"
	"github.com/dwizi/wabot/internal/media"
)

const (
	ownUser  = "573001112233"
	userChat = "573004445566"
	marker   = "\u200b"
)

type sentMessage struct {
	to      types.JID
	message *waE2E.Message
}

type fakeClient struct {
	mu        sync.Mutex
	sent      []sentMessage
	uploads   []whatsmeow.MediaType
	sendErr   error
	uploadErr error
	paired    bool
}

func (f *fakeClient) Connect() error    { return nil }
func (f *fakeClient) Disconnect()       {}
func (f *fakeClient) IsConnected() bool { return true }
func (f *fakeClient) OwnUser() string   { return ownUser }
func (f *fakeClient) Paired() bool      { return f.paired }

func (f *fakeClient) AddEventHandler(handler whatsmeow.EventHandler) uint32 {
	return 1
}

func (f *fakeClient) SendMessage(ctx context.Context, to types.JID, message *waE2E.Message, extra ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error) {
	if f.sendErr != nil {
		return whatsmeow.SendResponse{}, f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{to: to, message: message})
	return whatsmeow.SendResponse{}, nil
}

func (f *fakeClient) Upload(ctx context.Context, plaintext []byte, mediaType whatsmeow.MediaType) (whatsmeow.UploadResponse, error) {
	if f.uploadErr != nil {
		return whatsmeow.UploadResponse{}, f.uploadErr
	}
	f.uploads = append(f.uploads, mediaType)
	return whatsmeow.UploadResponse{
		URL:        "https://mmg.whatsapp.net/x",
		DirectPath: "/v/x",
		MediaKey:   []byte("key"),
		FileLength: uint64(len(plaintext)),
	}, nil
}

type fakeGateway struct {
	inputs []gateway.MessageInput
	output gateway.MessageOutput
	err    error
}

func (f *fakeGateway) HandleMessage(ctx context.Context, input gateway.MessageInput) (gateway.MessageOutput, error) {
	f.inputs = append(f.inputs, input)
	return f.output, f.err
}

// inlineDispatcher runs each job immediately and keeps its error.
type inlineDispatcher struct {
	jobs []dispatch.Job
	errs []error
}

func (d *inlineDispatcher) Enqueue(job dispatch.Job) (dispatch.Job, error) {
	d.jobs = append(d.jobs, job)
	d.errs = append(d.errs, job.Run(context.Background()))
	return job, nil
}

func newTestConnector(client *fakeClient, gw *fakeGateway) (*Connector, *inlineDispatcher) {
	dispatcher := &inlineDispatcher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(client, gw, dispatcher, Config{EchoMarker: marker}, logger), dispatcher
}

func textEvent(chat types.JID, fromMe bool, text string) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:     chat,
				Sender:   chat,
				IsFromMe: fromMe,
			},
			ID:       "3EB0TEST",
			PushName: "Ana",
		},
		Message: &waE2E.Message{Conversation: proto.String(text)},
	}
}

func TestHandleMessageRoutesReplyThroughDispatcher(t *testing.T) {
	client := &fakeClient{}
	gw := &fakeGateway{output: gateway.MessageOutput{Handled: true, Reply: "✅ Gasto registrado"}}
	connector, dispatcher := newTestConnector(client, gw)

	connector.handleMessage(textEvent(types.NewJID(userChat, types.DefaultUserServer), false, "almuerzo 25k"))

	if len(dispatcher.jobs) != 1 || dispatcher.jobs[0].ChatID != userChat || dispatcher.jobs[0].Kind != jobKindInbound {
		t.Fatalf("unexpected jobs: %+v", dispatcher.jobs)
	}
	if dispatcher.errs[0] != nil {
		t.Fatalf("job failed: %v", dispatcher.errs[0])
	}
	if len(gw.inputs) != 1 {
		t.Fatalf("expected one gateway call, got %d", len(gw.inputs))
	}
	input := gw.inputs[0]
	if input.Connector != "whatsapp" || input.ChatID != userChat || input.Text != "almuerzo 25k" || input.DisplayName != "Ana" {
		t.Fatalf("unexpected input: %+v", input)
	}
	if len(client.sent) != 1 {
		t.Fatalf("expected one reply, got %d", len(client.sent))
	}
	if got := client.sent[0].message.GetConversation(); got != marker+"✅ Gasto registrado" {
		t.Fatalf("expected marked reply, got %q", got)
	}
	if client.sent[0].to.User != userChat {
		t.Fatalf("unexpected reply target: %s", client.sent[0].to)
	}
}

func TestHandleMessageFilters(t *testing.T) {
	tests := []struct {
		name  string
		event *events.Message
	}{
		{name: "group", event: func() *events.Message {
			evt := textEvent(types.NewJID("120363000000", types.GroupServer), false, "hola")
			evt.Info.IsGroup = true
			return evt
		}()},
		{name: "broadcast", event: textEvent(types.NewJID("status", types.BroadcastServer), false, "hola")},
		{name: "own message to someone else", event: textEvent(types.NewJID(userChat, types.DefaultUserServer), true, "hola")},
		{name: "no text", event: &events.Message{
			Info:    types.MessageInfo{MessageSource: types.MessageSource{Chat: types.NewJID(userChat, types.DefaultUserServer)}},
			Message: &waE2E.Message{},
		}},
		{name: "nil message", event: &events.Message{}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			gw := &fakeGateway{}
			connector, dispatcher := newTestConnector(&fakeClient{}, gw)
			connector.handleMessage(test.event)
			if len(dispatcher.jobs) != 0 || len(gw.inputs) != 0 {
				t.Fatalf("expected message to be ignored, got %d jobs", len(dispatcher.jobs))
			}
		})
	}
}

func TestHandleMessageAcceptsSelfChat(t *testing.T) {
	gw := &fakeGateway{}
	connector, _ := newTestConnector(&fakeClient{}, gw)

	connector.handleMessage(textEvent(types.NewJID(ownUser, types.DefaultUserServer), true, "/status"))

	if len(gw.inputs) != 1 || gw.inputs[0].ChatID != ownUser {
		t.Fatalf("expected self-chat message to reach the gateway, got %+v", gw.inputs)
	}
}

func TestHandleMessageResolvesLIDChats(t *testing.T) {
	client := &fakeClient{}
	gw := &fakeGateway{output: gateway.MessageOutput{Handled: true, Reply: "hola"}}
	connector, _ := newTestConnector(client, gw)

	lid := types.NewJID("987654321", types.HiddenUserServer)
	evt := textEvent(lid, false, "hola")
	evt.Info.SenderAlt = types.NewJID(userChat, types.DefaultUserServer)
	connector.handleMessage(evt)

	if len(gw.inputs) != 1 || gw.inputs[0].ChatID != userChat {
		t.Fatalf("expected phone chat id, got %+v", gw.inputs)
	}
	if len(client.sent) != 1 || client.sent[0].to != lid {
		t.Fatalf("expected reply on the LID chat, got %+v", client.sent)
	}
}

func TestHandleMessageUsesButtonChoice(t *testing.T) {
	gw := &fakeGateway{}
	connector, _ := newTestConnector(&fakeClient{}, gw)
	evt := textEvent(types.NewJID(userChat, types.DefaultUserServer), false, "")
	evt.Message = &waE2E.Message{ButtonsResponseMessage: &waE2E.ButtonsResponseMessage{
		SelectedButtonID: proto.String("bot_gastos"),
		Response:         &waE2E.ButtonsResponseMessage_SelectedDisplayText{SelectedDisplayText: "Gastos"},
	}}
	connector.handleMessage(evt)

	if len(gw.inputs) != 1 || gw.inputs[0].Choice == nil || gw.inputs[0].Choice.ID != "bot_gastos" {
		t.Fatalf("expected button choice, got %+v", gw.inputs)
	}
}

func TestProcessSendsAttachment(t *testing.T) {
	client := &fakeClient{}
	gw := &fakeGateway{output: gateway.MessageOutput{
		Handled: true,
		Attachment: &media.Attachment{
			Kind:     media.KindDocument,
			MimeType: "application/pdf",
			FileName: "receta.pdf",
			Caption:  "📄 Receta",
			Data:     []byte("%PDF-1.4"),
		},
	}}
	connector, dispatcher := newTestConnector(client, gw)

	connector.handleMessage(textEvent(types.NewJID(userChat, types.DefaultUserServer), false, "hazme un pdf de una receta"))

	if dispatcher.errs[0] != nil {
		t.Fatalf("job failed: %v", dispatcher.errs[0])
	}
	if len(client.uploads) != 1 || client.uploads[0] != whatsmeow.MediaDocument {
		t.Fatalf("expected one document upload, got %v", client.uploads)
	}
	document := client.sent[0].message.GetDocumentMessage()
	if document == nil || document.GetFileName() != "receta.pdf" || !strings.HasPrefix(document.GetCaption(), marker) {
		t.Fatalf("unexpected document message: %+v", client.sent[0].message)
	}
}

func TestSendAttachmentImage(t *testing.T) {
	client := &fakeClient{}
	connector, _ := newTestConnector(client, &fakeGateway{})
	attachment, err := media.QRCode("https://example.com")
	if err != nil {
		t.Fatalf("qr: %v", err)
	}
	if err := connector.SendAttachment(context.Background(), userChat, attachment); err != nil {
		t.Fatalf("send attachment: %v", err)
	}
	image := client.sent[0].message.GetImageMessage()
	if image == nil || image.GetMimetype() != "image/png" || image.GetFileLength() != uint64(len(attachment.Data)) {
		t.Fatalf("unexpected image message: %+v", client.sent[0].message)
	}
}

func TestProcessReturnsErrors(t *testing.T) {
	client := &fakeClient{sendErr: errors.New("not connected")}
	gw := &fakeGateway{output: gateway.MessageOutput{Handled: true, Reply: "hola"}}
	connector, dispatcher := newTestConnector(client, gw)

	connector.handleMessage(textEvent(types.NewJID(userChat, types.DefaultUserServer), false, "hola"))
	if !errors.Is(dispatcher.errs[0], client.sendErr) {
		t.Fatalf("expected send error, got %v", dispatcher.errs[0])
	}

	gw.err = errors.New("boom")
	connector.handleMessage(textEvent(types.NewJID(userChat, types.DefaultUserServer), false, "hola"))
	if !errors.Is(dispatcher.errs[1], gw.err) {
		t.Fatalf("expected gateway error, got %v", dispatcher.errs[1])
	}
}

func TestSendTextSkipsEmpty(t *testing.T) {
	client := &fakeClient{}
	connector, _ := newTestConnector(client, &fakeGateway{})
	if err := connector.SendText(context.Background(), userChat, "   "); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(client.sent) != 0 {
		t.Fatalf("expected nothing sent, got %d", len(client.sent))
	}
	if err := connector.SendText(context.Background(), "", "hola"); err == nil {
		t.Fatal("expected error for empty chat id")
	}
}

func TestStartIdlesWhenNotPaired(t *testing.T) {
	connector, _ := newTestConnector(&fakeClient{paired: false}, &fakeGateway{})
	reporter := &recordingReporter{}
	connector.SetHeartbeatReporter(reporter)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := connector.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if reporter.last != "degraded" || !errors.Is(reporter.err, ErrNotPaired) {
		t.Fatalf("expected not-paired degrade, got %q (%v)", reporter.last, reporter.err)
	}
}

func TestSlogAdapterFiltersLevels(t *testing.T) {
	var buffer strings.Builder
	logger := slog.New(slog.NewTextHandler(&buffer, &slog.HandlerOptions{Level: slog.LevelDebug}))
	adapter := newLogger(logger, "client", "warn").Sub("socket")
	adapter.Infof("noisy %d", 1)
	adapter.Warnf("frame dropped %d", 2)

	out := buffer.String()
	if strings.Contains(out, "noisy") {
		t.Fatalf("expected info to be filtered: %s", out)
	}
	if !strings.Contains(out, "frame dropped 2") || !strings.Contains(out, "module=client/socket") {
		t.Fatalf("unexpected log output: %s", out)
	}
}

type recordingReporter struct {
	last string
	err  error
}

func (r *recordingReporter) Starting(component, message string) { r.last = "starting" }
func (r *recordingReporter) Beat(component, message string)     { r.last = "beat" }
func (r *recordingReporter) Degrade(component, message string, err error) {
	r.last = "degraded"
	r.err = err
}
func (r *recordingReporter) Disabled(component, message string) { r.last = "disabled" }
func (r *recordingReporter) Stopped(component, message string)  { r.last = "stopped" }
