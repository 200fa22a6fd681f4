package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dwizi/wabot/internal/intent"
	"github.com/dwizi/wabot/internal/llm"
	"github.com/dwizi/wabot/internal/llm/safety"
	"github.com/dwizi/wabot/internal/media"
	"github.com/dwizi/wabot/internal/memorylog"
	"github.com/dwizi/wabot/internal/store"
)

const (
	assistantApology = "😔 Lo siento, no pude responder en este momento. Intenta de nuevo."
	assistantBusy    = "⏳ Estoy recibiendo muchas solicitudes. Intenta de nuevo en un momento."
)

var rolePrompts = map[string]string{
	"tutor":      "Eres un profesor paciente. Explica paso a paso con ejemplos sencillos.",
	"developer":  "Eres un programador senior. Responde con código claro y explicaciones breves.",
	"translator": "Eres un traductor profesional. Traduce con precisión y conserva el tono original.",
	"chef":       "Eres un chef. Da recetas prácticas con ingredientes fáciles de conseguir.",
	"coach":      "Eres un entrenador motivador. Da consejos concretos y anima a la persona.",
	"therapist":  "Eres un acompañante empático. Escucha, valida emociones y sugiere recursos profesionales cuando haga falta.",
	"lawyer":     "Eres un asesor legal informativo. Aclara que no reemplazas a un abogado.",
}

var roleNames = map[string]string{
	"tutor":      "profesor",
	"developer":  "programador",
	"translator": "traductor",
	"chef":       "chef",
	"coach":      "entrenador",
	"therapist":  "terapeuta",
	"lawyer":     "abogado",
	"assistant":  "asistente",
}

func (s *Service) handleIntent(ctx context.Context, input MessageInput, contact store.Contact, match intent.Match) (MessageOutput, error) {
	switch match.Intent {
	case intent.KindReminder:
		return s.createReminder(ctx, input, match)
	case intent.KindVoiceOn, intent.KindVoiceOff:
		enabled := match.Intent == intent.KindVoiceOn
		if _, err := s.store.UpdatePreferences(ctx, input.ChatID, func(prefs *store.Preferences) {
			prefs.Voice = enabled
		}); err != nil {
			return MessageOutput{}, err
		}
		if enabled {
			return MessageOutput{Handled: true, Reply: "🔊 Respuestas de voz activadas."}, nil
		}
		return MessageOutput{Handled: true, Reply: "🔇 Respuestas de voz desactivadas."}, nil
	case intent.KindListReminders:
		return s.listReminders(ctx, input.ChatID)
	case intent.KindRole:
		if _, err := s.store.UpdatePreferences(ctx, input.ChatID, func(prefs *store.Preferences) {
			prefs.Role = match.Value
		}); err != nil {
			return MessageOutput{}, err
		}
		return MessageOutput{Handled: true, Reply: "🎭 Ahora respondo como *" + roleName(match.Value) + "*."}, nil
	case intent.KindModel:
		if _, err := s.store.UpdatePreferences(ctx, input.ChatID, func(prefs *store.Preferences) {
			prefs.Model = match.Value
		}); err != nil {
			return MessageOutput{}, err
		}
		return MessageOutput{Handled: true, Reply: "🧠 Modelo cambiado a *" + match.Value + "*."}, nil
	case intent.KindGIF:
		return s.findGIF(ctx, input, match.Payload)
	case intent.KindPDF:
		return s.writePDF(ctx, input, contact, match.Payload)
	case intent.KindQR:
		attachment, err := media.QRCode(match.Payload)
		if err != nil {
			s.logger.Warn("qr encode failed", "chat_id", input.ChatID, "error", err)
			return MessageOutput{Handled: true, Reply: "No pude generar ese código QR, el texto es demasiado largo."}, nil
		}
		return MessageOutput{Handled: true, Reply: attachment.Caption, Attachment: &attachment}, nil
	default:
		return s.handleAssistant(ctx, input, contact)
	}
}

func (s *Service) createReminder(ctx context.Context, input MessageInput, match intent.Match) (MessageOutput, error) {
	due := s.now().Add(match.Delay)
	if _, err := s.store.CreateReminder(ctx, store.CreateReminderInput{
		ChatID: input.ChatID,
		Text:   match.Payload,
		DueAt:  due,
	}); err != nil {
		return MessageOutput{}, err
	}
	reply := fmt.Sprintf("⏰ Listo, te recordaré «%s» a las %s.", match.Payload, due.In(s.cfg.Location).Format("15:04"))
	return MessageOutput{Handled: true, Reply: reply}, nil
}

func (s *Service) listReminders(ctx context.Context, chatID string) (MessageOutput, error) {
	reminders, err := s.store.ListPendingReminders(ctx, chatID)
	if err != nil {
		return MessageOutput{}, err
	}
	if len(reminders) == 0 {
		return MessageOutput{Handled: true, Reply: "No tienes recordatorios pendientes."}, nil
	}
	lines := []string{"⏰ *Recordatorios pendientes:*"}
	for _, reminder := range reminders {
		lines = append(lines, fmt.Sprintf("• %s: %s", reminder.DueAt.In(s.cfg.Location).Format("02/01 15:04"), compactSnippet(reminder.Text)))
	}
	return MessageOutput{Handled: true, Reply: strings.Join(lines, "\n")}, nil
}

func (s *Service) findGIF(ctx context.Context, input MessageInput, term string) (MessageOutput, error) {
	if s.gifs == nil {
		return MessageOutput{Handled: true, Reply: "La búsqueda de GIFs no está disponible."}, nil
	}
	link, err := s.gifs.Find(ctx, term)
	if err != nil {
		s.logger.Warn("gif search failed", "chat_id", input.ChatID, "error", err)
		return MessageOutput{Handled: true, Reply: "😔 No encontré un GIF ahora mismo."}, nil
	}
	return MessageOutput{Handled: true, Reply: "🎬 " + link}, nil
}

func (s *Service) writePDF(ctx context.Context, input MessageInput, contact store.Contact, topic string) (MessageOutput, error) {
	if s.responder == nil {
		return MessageOutput{Handled: true, Reply: assistantApology}, nil
	}
	if output, blocked := s.checkRate(input); blocked {
		return output, nil
	}
	body, err := s.responder.Reply(ctx, llm.MessageInput{
		ChatID:       input.ChatID,
		DisplayName:  input.DisplayName,
		Text:         "Escribe un documento breve y bien organizado, en texto plano sin markdown, sobre: " + topic,
		SystemPrompt: rolePrompts[contact.Preferences.Role],
		Model:        contact.Preferences.Model,
	})
	if err != nil {
		return s.assistantFailure(input.ChatID, err), nil
	}
	attachment, err := media.PDFDocument(topic, body)
	if err != nil {
		s.logger.Error("pdf render failed", "chat_id", input.ChatID, "error", err)
		return MessageOutput{Handled: true, Reply: body}, nil
	}
	return MessageOutput{Handled: true, Reply: attachment.Caption, Attachment: &attachment}, nil
}

// handleAssistant is the default route: a rate limited LLM reply with the
// recent transcript as history.
func (s *Service) handleAssistant(ctx context.Context, input MessageInput, contact store.Contact) (MessageOutput, error) {
	if s.responder == nil {
		return MessageOutput{}, nil
	}
	if output, blocked := s.checkRate(input); blocked {
		return output, nil
	}
	reply, err := s.responder.Reply(ctx, llm.MessageInput{
		ChatID:       input.ChatID,
		DisplayName:  input.DisplayName,
		Text:         input.Text,
		SystemPrompt: rolePrompts[contact.Preferences.Role],
		Model:        contact.Preferences.Model,
		History:      s.history(input),
	})
	if err != nil {
		return s.assistantFailure(input.ChatID, err), nil
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return MessageOutput{Handled: true, Reply: assistantApology}, nil
	}
	return MessageOutput{Handled: true, Reply: reply}, nil
}

func (s *Service) checkRate(input MessageInput) (MessageOutput, bool) {
	if s.limiter == nil {
		return MessageOutput{}, false
	}
	decision := s.limiter.Check(safety.Request{ChatID: input.ChatID, IsAdmin: s.isAdmin(input.ChatID)})
	if decision.Allowed {
		return MessageOutput{}, false
	}
	s.logger.Info("assistant request throttled", "chat_id", input.ChatID, "reason", decision.Reason)
	return MessageOutput{Handled: true, Reply: decision.Notify}, true
}

func (s *Service) assistantFailure(chatID string, err error) MessageOutput {
	if errors.Is(err, llm.ErrRateLimited) {
		s.logger.Warn("llm rate limited", "chat_id", chatID, "error", err)
		return MessageOutput{Handled: true, Reply: assistantBusy}
	}
	s.logger.Error("llm reply failed", "chat_id", chatID, "error", err)
	return MessageOutput{Handled: true, Reply: assistantApology}
}

func (s *Service) history(input MessageInput) []llm.Turn {
	if s.cfg.HistoryLines == 0 || strings.TrimSpace(s.cfg.TranscriptRoot) == "" {
		return nil
	}
	records, err := memorylog.Tail(s.cfg.TranscriptRoot, connectorName(input.Connector), input.ChatID, s.cfg.HistoryLines)
	if err != nil {
		s.logger.Warn("transcript tail failed", "chat_id", input.ChatID, "error", err)
		return nil
	}
	turns := make([]llm.Turn, 0, len(records))
	for _, record := range records {
		role := "user"
		if record.Direction == memorylog.DirectionOutbound {
			role = "assistant"
		}
		turns = append(turns, llm.Turn{Role: role, Content: record.Text})
	}
	return turns
}

func roleName(value string) string {
	if name, ok := roleNames[value]; ok {
		return name
	}
	return value
}
