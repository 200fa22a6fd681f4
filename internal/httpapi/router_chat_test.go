package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dwizi/wabot/internal/config"
	"github.com/dwizi/wabot/internal/gateway"
	"github.com/dwizi/wabot/internal/heartbeat"
	"github.com/dwizi/wabot/internal/media"
	"github.com/dwizi/wabot/internal/store"
)

type fakeMessageGateway struct {
	calls  int
	last   gateway.MessageInput
	output gateway.MessageOutput
	err    error
}

func (f *fakeMessageGateway) HandleMessage(ctx context.Context, input gateway.MessageInput) (gateway.MessageOutput, error) {
	f.calls++
	f.last = input
	if f.err != nil {
		return gateway.MessageOutput{}, f.err
	}
	return f.output, nil
}

type fakeStore struct {
	pingErr error
	stats   store.ContactStats
}

func (f *fakeStore) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeStore) CountContacts(ctx context.Context) (store.ContactStats, error) {
	return f.stats, nil
}

type fakeSender struct {
	chatID string
	text   string
	err    error
}

func (f *fakeSender) SendText(ctx context.Context, chatID, text string) error {
	f.chatID = chatID
	f.text = text
	return f.err
}

func newTestRouter(deps Dependencies) http.Handler {
	deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(deps)
}

func doJSON(t *testing.T, handler http.Handler, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestChatEndpointRoutesThroughGateway(t *testing.T) {
	fakeGateway := &fakeMessageGateway{output: gateway.MessageOutput{
		Handled: true,
		Reply:   "📱 listo",
		Attachment: &media.Attachment{
			Kind:     media.KindImage,
			MimeType: "image/png",
			FileName: "qr.png",
			Data:     []byte{1, 2, 3},
		},
	}}
	handler := newTestRouter(Dependencies{Gateway: fakeGateway})

	res := doJSON(t, handler, http.MethodPost, "/api/v1/chat", map[string]string{
		"chat_id":      "+57 300 444 5566",
		"display_name": "Ana",
		"text":         "genera un qr de https://example.com",
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", res.Code, res.Body.String())
	}
	if fakeGateway.last.ChatID != "573004445566" || fakeGateway.last.Connector != apiConnector || fakeGateway.last.Choice != nil {
		t.Fatalf("unexpected gateway input: %+v", fakeGateway.last)
	}
	var payload chatResponse
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !payload.Handled || payload.Reply != "📱 listo" || payload.Attachment == nil || payload.Attachment.Size != 3 {
		t.Fatalf("unexpected response: %+v", payload)
	}
}

func TestChatEndpointPassesChoice(t *testing.T) {
	fakeGateway := &fakeMessageGateway{output: gateway.MessageOutput{Handled: true}}
	handler := newTestRouter(Dependencies{Gateway: fakeGateway})

	res := doJSON(t, handler, http.MethodPost, "/api/v1/chat", map[string]string{
		"chat_id":   "573004445566",
		"choice_id": "cat_2",
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	if fakeGateway.last.Choice == nil || fakeGateway.last.Choice.ID != "cat_2" {
		t.Fatalf("expected choice to be forwarded, got %+v", fakeGateway.last)
	}
}

func TestChatEndpointValidation(t *testing.T) {
	tests := []struct {
		name    string
		deps    Dependencies
		method  string
		payload any
		status  int
	}{
		{name: "no gateway", deps: Dependencies{}, method: http.MethodPost, payload: map[string]string{"chat_id": "1", "text": "x"}, status: http.StatusServiceUnavailable},
		{name: "missing chat id", deps: Dependencies{Gateway: &fakeMessageGateway{}}, method: http.MethodPost, payload: map[string]string{"text": "hola"}, status: http.StatusBadRequest},
		{name: "missing text", deps: Dependencies{Gateway: &fakeMessageGateway{}}, method: http.MethodPost, payload: map[string]string{"chat_id": "573004445566"}, status: http.StatusBadRequest},
		{name: "gateway error", deps: Dependencies{Gateway: &fakeMessageGateway{err: errors.New("boom")}}, method: http.MethodPost, payload: map[string]string{"chat_id": "573004445566", "text": "hola"}, status: http.StatusInternalServerError},
		{name: "wrong method", deps: Dependencies{Gateway: &fakeMessageGateway{}}, method: http.MethodGet, status: http.StatusMethodNotAllowed},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			res := doJSON(t, newTestRouter(test.deps), test.method, "/api/v1/chat", test.payload)
			if res.Code != test.status {
				t.Fatalf("expected status %d, got %d body=%s", test.status, res.Code, res.Body.String())
			}
		})
	}
}

func TestSendEndpoint(t *testing.T) {
	sender := &fakeSender{}
	handler := newTestRouter(Dependencies{Sender: sender})

	res := doJSON(t, handler, http.MethodPost, "/api/v1/send", map[string]string{"chat_id": "573004445566", "text": "Mantenimiento a las 22:00"})
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", res.Code)
	}
	if sender.chatID != "573004445566" || sender.text != "Mantenimiento a las 22:00" {
		t.Fatalf("unexpected send: %+v", sender)
	}

	sender.err = errors.New("not connected")
	res = doJSON(t, handler, http.MethodPost, "/api/v1/send", map[string]string{"chat_id": "573004445566", "text": "x"})
	if res.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", res.Code)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	st := &fakeStore{stats: store.ContactStats{Total: 3, Gastos: 1}}
	registry := heartbeat.NewRegistry()
	registry.Beat("scheduler", "ok")
	handler := newTestRouter(Dependencies{
		Config:              config.Config{Environment: "test", Timezone: "America/Bogota"},
		Store:               st,
		Heartbeat:           registry,
		HeartbeatStaleAfter: time.Minute,
	})

	if res := doJSON(t, handler, http.MethodGet, "/healthz", nil); res.Code != http.StatusOK {
		t.Fatalf("healthz: %d", res.Code)
	}
	if res := doJSON(t, handler, http.MethodGet, "/readyz", nil); res.Code != http.StatusOK {
		t.Fatalf("readyz: %d", res.Code)
	}

	res := doJSON(t, handler, http.MethodGet, "/api/v1/heartbeat", nil)
	var snapshot heartbeat.Snapshot
	if err := json.Unmarshal(res.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode heartbeat: %v", err)
	}
	if snapshot.Overall != heartbeat.StateHealthy || len(snapshot.Components) != 1 {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}

	res = doJSON(t, handler, http.MethodGet, "/api/v1/info", nil)
	var info map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	contacts, ok := info["contacts"].(map[string]any)
	if info["name"] != "wabot" || !ok || contacts["total"] != float64(3) {
		t.Fatalf("unexpected info: %+v", info)
	}

	st.pingErr = errors.New("database is closed")
	if res := doJSON(t, handler, http.MethodGet, "/readyz", nil); res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected readyz to fail, got %d", res.Code)
	}
}

func TestHeartbeatDisabled(t *testing.T) {
	res := doJSON(t, newTestRouter(Dependencies{}), http.MethodGet, "/api/v1/heartbeat", nil)
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}
