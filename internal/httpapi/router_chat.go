package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dwizi/wabot/internal/envelope"
	"github.com/dwizi/wabot/internal/gateway"
)

const apiConnector = "api"

type chatRequest struct {
	ChatID      string `json:"chat_id"`
	DisplayName string `json:"display_name"`
	Text        string `json:"text"`
	ChoiceID    string `json:"choice_id"`
}

type attachmentView struct {
	Kind     string `json:"kind"`
	MimeType string `json:"mime_type"`
	FileName string `json:"file_name"`
	Caption  string `json:"caption"`
	Size     int    `json:"size"`
}

type chatResponse struct {
	Handled    bool            `json:"handled"`
	Reply      string          `json:"reply"`
	Attachment *attachmentView `json:"attachment,omitempty"`
}

// handleChat runs one message through the gateway as if the chat id had sent
// it over WhatsApp; the reply is returned instead of sent.
func (r *router) handleChat(w http.ResponseWriter, req *http.Request) {
	if r.deps.Gateway == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "chat gateway is unavailable"})
		return
	}
	var payload chatRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	chatID := digitsOnly(payload.ChatID)
	if chatID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "chat_id is required"})
		return
	}
	text := strings.TrimSpace(payload.Text)
	choiceID := strings.TrimSpace(payload.ChoiceID)
	if text == "" && choiceID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text or choice_id is required"})
		return
	}

	input := gateway.MessageInput{
		Connector:   apiConnector,
		ChatID:      chatID,
		DisplayName: strings.TrimSpace(payload.DisplayName),
		Text:        text,
	}
	if choiceID != "" {
		input.Choice = &envelope.Choice{ID: choiceID, Text: text}
	}
	output, err := r.deps.Gateway.HandleMessage(req.Context(), input)
	if err != nil {
		r.deps.Logger.Error("api chat failed", "chat_id", chatID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	response := chatResponse{Handled: output.Handled, Reply: strings.TrimSpace(output.Reply)}
	if output.Attachment != nil {
		response.Attachment = &attachmentView{
			Kind:     string(output.Attachment.Kind),
			MimeType: output.Attachment.MimeType,
			FileName: output.Attachment.FileName,
			Caption:  output.Attachment.Caption,
			Size:     len(output.Attachment.Data),
		}
	}
	writeJSON(w, http.StatusOK, response)
}

type sendRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

func (r *router) handleSend(w http.ResponseWriter, req *http.Request) {
	if r.deps.Sender == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "whatsapp sender is unavailable"})
		return
	}
	var payload sendRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	chatID := digitsOnly(payload.ChatID)
	text := strings.TrimSpace(payload.Text)
	if chatID == "" || text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "chat_id and text are required"})
		return
	}
	if err := r.deps.Sender.SendText(req.Context(), chatID, text); err != nil {
		r.deps.Logger.Error("api send failed", "chat_id", chatID, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent", "chat_id": chatID})
}

func digitsOnly(value string) string {
	var builder strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}
