package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dwizi/wabot/internal/briefing"
	"github.com/dwizi/wabot/internal/session"
	"github.com/dwizi/wabot/internal/store"
	"github.com/dwizi/wabot/internal/textnorm"
)

const adminOnly = "⛔ Este comando es solo para el administrador."

// handleCommand runs a prefixed command. Unknown commands report false so the
// text falls through to the assistant.
func (s *Service) handleCommand(ctx context.Context, input MessageInput, contact store.Contact, command, arg string) (MessageOutput, bool, error) {
	var (
		output MessageOutput
		err    error
	)
	switch command {
	case "bot":
		output, err = s.handleBotMenu(ctx, input, contact)
	case "status", "estado":
		output, err = s.handleStatus(ctx, input, contact)
	case "start", "iniciar":
		output, err = s.handleStart(ctx, input, contact, arg)
	case "stop", "detener", "salir":
		output, err = s.handleStop(ctx, input, contact, arg)
	case "prefs", "preferencias":
		output, err = s.handlePrefs(ctx, input, contact, arg)
	case "block", "bloquear":
		output, err = s.handleBlock(ctx, input, arg, true)
	case "unblock", "desbloquear":
		output, err = s.handleBlock(ctx, input, arg, false)
	case "blocked", "bloqueados":
		output, err = s.handleBlockedList(ctx, input)
	case "refresh", "briefing":
		output, err = s.handleRefresh(ctx, input, contact)
	case "reset":
		output, err = s.handleReset(ctx, input, arg)
	case "editar", "edit":
		output, err = s.handleEditCommand(ctx, input, contact, arg)
	case "resumen", "summary":
		output, err = s.handleSummary(ctx, input, contact)
	case "recordatorios", "reminders":
		output, err = s.listReminders(ctx, input.ChatID)
	case "help", "ayuda":
		output = MessageOutput{Handled: true, Reply: s.helpText(s.isAdmin(input.ChatID))}
	default:
		return MessageOutput{}, false, nil
	}
	return output, true, err
}

func (s *Service) handleBotMenu(ctx context.Context, input MessageInput, contact store.Contact) (MessageOutput, error) {
	if !s.isAdmin(input.ChatID) {
		return MessageOutput{Handled: true, Reply: adminOnly}, nil
	}
	if err := s.sessions.Open(ctx, input.ChatID, session.KindBotSelection, botSelection{Previous: string(contact.ActiveBot)}); err != nil {
		return MessageOutput{}, err
	}
	reply := fmt.Sprintf("🤖 *Elige un bot* (tienes %d segundos):\n1. Asistente IA\n2. Gastos\n\nResponde con el número.",
		int(s.cfg.BotSelectionTimeout.Seconds()))
	return MessageOutput{Handled: true, Reply: reply}, nil
}

func (s *Service) activateAssistant(ctx context.Context, chatID string, contact store.Contact) (MessageOutput, error) {
	if err := s.store.SetActiveBot(ctx, chatID, store.BotGroq); err != nil {
		return MessageOutput{}, err
	}
	if contact.BotConfig.Gastos.Step != "" {
		if _, err := s.store.UpdateBotConfig(ctx, chatID, func(cfg *store.BotConfig) {
			cfg.Gastos.Step = ""
			cfg.Gastos.StartedAtUnix = 0
		}); err != nil {
			return MessageOutput{}, err
		}
	}
	return MessageOutput{Handled: true, Reply: "🤖 *Asistente IA* activo. Escríbeme lo que necesites."}, nil
}

func (s *Service) handleStatus(ctx context.Context, input MessageInput, contact store.Contact) (MessageOutput, error) {
	prefs := contact.Preferences
	lines := []string{"📋 *Estado*", "Bot activo: " + botLabel(contact.ActiveBot)}
	if step := contact.BotConfig.Gastos.Step; step != "" {
		lines = append(lines, "Configuración de gastos en curso (paso "+step+")")
	}
	if contact.BotConfig.Gastos.Onboarded {
		lines = append(lines, "Registro de gastos: "+sheetReference(contact.BotConfig.Gastos))
	}
	pending, err := s.sessions.Pending(ctx, input.ChatID)
	if err != nil {
		return MessageOutput{}, err
	}
	for _, entry := range pending {
		remaining := entry.ExpiresAt.Sub(s.now()).Round(time.Second)
		lines = append(lines, fmt.Sprintf("Pendiente: %s (expira en %s)", sessionLabel(entry.Key.Kind), remaining))
	}

	briefingState := "apagado"
	if prefs.Briefing {
		briefingState = "encendido a las " + strings.Join(prefs.Times, ", ")
		if !contact.NextBriefingAt.IsZero() {
			briefingState += " (próximo " + contact.NextBriefingAt.In(s.cfg.Location).Format("02/01 15:04") + ")"
		}
	}
	lines = append(lines,
		"Resumen diario: "+briefingState,
		"Rol: "+prefs.Role,
		"Voz: "+onOff(prefs.Voice),
	)
	if prefs.Model != "" {
		lines = append(lines, "Modelo: "+prefs.Model)
	}

	if s.isAdmin(input.ChatID) {
		stats, err := s.store.CountContacts(ctx)
		if err != nil {
			return MessageOutput{}, err
		}
		lines = append(lines, "", fmt.Sprintf("👥 Contactos: %d (IA %d, gastos %d, bloqueados %d)", stats.Total, stats.Groq, stats.Gastos, stats.Blocked))
	}
	return MessageOutput{Handled: true, Reply: strings.Join(lines, "\n")}, nil
}

func (s *Service) handleStart(ctx context.Context, input MessageInput, contact store.Contact, arg string) (MessageOutput, error) {
	switch textnorm.Fold(arg) {
	case "gastos":
		return s.enterGastos(ctx, input, contact)
	case "ia", "groq", "asistente":
		return s.activateAssistant(ctx, input.ChatID, contact)
	case "briefing", "resumen":
		prefs, err := s.store.UpdatePreferences(ctx, input.ChatID, func(prefs *store.Preferences) {
			prefs.Briefing = true
		})
		if err != nil {
			return MessageOutput{}, err
		}
		next, err := s.scheduleBriefing(ctx, input.ChatID, prefs)
		if err != nil {
			return MessageOutput{}, err
		}
		return MessageOutput{Handled: true, Reply: "☀️ Resumen diario activado. Próximo envío: " + next.In(s.cfg.Location).Format("02/01 15:04")}, nil
	default:
		return MessageOutput{Handled: true, Reply: "Uso: " + s.cfg.CommandPrefix + "start gastos|ia|briefing"}, nil
	}
}

func (s *Service) handleStop(ctx context.Context, input MessageInput, contact store.Contact, arg string) (MessageOutput, error) {
	if folded := textnorm.Fold(arg); folded == "briefing" || folded == "resumen" {
		if _, err := s.store.UpdatePreferences(ctx, input.ChatID, func(prefs *store.Preferences) {
			prefs.Briefing = false
		}); err != nil {
			return MessageOutput{}, err
		}
		if err := s.store.SetNextBriefing(ctx, input.ChatID, time.Time{}); err != nil {
			return MessageOutput{}, err
		}
		return MessageOutput{Handled: true, Reply: "🌙 Resumen diario desactivado."}, nil
	}

	inGastos := contact.ActiveBot == store.BotGastos || contact.BotConfig.Gastos.Step != ""
	if !inGastos {
		return MessageOutput{Handled: true, Reply: "No tienes ningún bot especial activo. Sigues con el asistente IA."}, nil
	}
	for _, kind := range []session.Kind{session.KindCategory, session.KindEdit} {
		if _, err := s.sessions.Close(ctx, input.ChatID, kind); err != nil {
			return MessageOutput{}, err
		}
	}
	if _, err := s.activateAssistant(ctx, input.ChatID, contact); err != nil {
		return MessageOutput{}, err
	}
	return MessageOutput{Handled: true, Reply: "👋 Saliste de *gastos*. Vuelves al asistente IA."}, nil
}

func (s *Service) handleBlock(ctx context.Context, input MessageInput, arg string, blocked bool) (MessageOutput, error) {
	if !s.isAdmin(input.ChatID) {
		return MessageOutput{Handled: true, Reply: adminOnly}, nil
	}
	target := phoneDigits(arg)
	if target == "" {
		verb := "block"
		if !blocked {
			verb = "unblock"
		}
		return MessageOutput{Handled: true, Reply: "Uso: " + s.cfg.CommandPrefix + verb + " <teléfono>"}, nil
	}
	if blocked && target == s.cfg.AdminPhone {
		return MessageOutput{Handled: true, Reply: "No puedes bloquear al administrador."}, nil
	}
	if err := s.store.SetBlocked(ctx, target, blocked); err != nil {
		return MessageOutput{}, err
	}
	if blocked {
		return MessageOutput{Handled: true, Reply: "🚫 " + target + " bloqueado."}, nil
	}
	return MessageOutput{Handled: true, Reply: "✅ " + target + " desbloqueado."}, nil
}

func (s *Service) handleBlockedList(ctx context.Context, input MessageInput) (MessageOutput, error) {
	if !s.isAdmin(input.ChatID) {
		return MessageOutput{Handled: true, Reply: adminOnly}, nil
	}
	contacts, err := s.store.ListBlockedContacts(ctx)
	if err != nil {
		return MessageOutput{}, err
	}
	if len(contacts) == 0 {
		return MessageOutput{Handled: true, Reply: "No hay contactos bloqueados."}, nil
	}
	lines := []string{"🚫 *Bloqueados:*"}
	for _, contact := range contacts {
		line := "• " + contact.ChatID
		if name := strings.TrimSpace(contact.DisplayName); name != "" {
			line += " (" + name + ")"
		}
		lines = append(lines, line)
	}
	return MessageOutput{Handled: true, Reply: strings.Join(lines, "\n")}, nil
}

func (s *Service) handleRefresh(ctx context.Context, input MessageInput, contact store.Contact) (MessageOutput, error) {
	if s.briefer == nil {
		return MessageOutput{Handled: true, Reply: "El resumen diario no está disponible."}, nil
	}
	text, err := s.briefer.Build(ctx, briefing.Request{
		ChatID:      input.ChatID,
		DisplayName: firstNonEmpty(input.DisplayName, contact.DisplayName),
		Preferences: contact.Preferences,
		Now:         s.now(),
	})
	if err != nil {
		s.logger.Error("briefing build failed", "chat_id", input.ChatID, "error", err)
		return MessageOutput{Handled: true, Reply: "😔 No pude preparar el resumen ahora. Intenta más tarde."}, nil
	}
	return MessageOutput{Handled: true, Reply: text}, nil
}

func (s *Service) handleReset(ctx context.Context, input MessageInput, arg string) (MessageOutput, error) {
	if textnorm.Fold(arg) == "all" || textnorm.Fold(arg) == "todos" {
		if !s.isAdmin(input.ChatID) {
			return MessageOutput{Handled: true, Reply: adminOnly}, nil
		}
		count, err := s.store.ResetAllBotConfigs(ctx)
		if err != nil {
			return MessageOutput{}, err
		}
		return MessageOutput{Handled: true, Reply: fmt.Sprintf("🧹 Configuración reiniciada para %d contactos.", count)}, nil
	}
	for _, kind := range []session.Kind{session.KindCategory, session.KindEdit, session.KindBotSelection} {
		if _, err := s.sessions.Close(ctx, input.ChatID, kind); err != nil {
			return MessageOutput{}, err
		}
	}
	if err := s.store.ResetBotConfig(ctx, input.ChatID); err != nil {
		return MessageOutput{}, err
	}
	return MessageOutput{Handled: true, Reply: "🧹 Tu configuración se reinició. Escribe *gastos* para configurarlo de nuevo."}, nil
}

func (s *Service) handlePrefs(ctx context.Context, input MessageInput, contact store.Contact, arg string) (MessageOutput, error) {
	fields := strings.Fields(arg)
	if len(fields) == 0 {
		return MessageOutput{Handled: true, Reply: describePreferences(contact.Preferences)}, nil
	}
	if textnorm.Fold(fields[0]) != "set" || len(fields) < 3 {
		return MessageOutput{Handled: true, Reply: s.prefsUsage()}, nil
	}
	key := textnorm.Fold(fields[1])
	value := strings.TrimSpace(strings.Join(fields[2:], " "))

	var (
		mutate  func(*store.Preferences)
		problem string
	)
	switch key {
	case "horarios", "horas", "times":
		times, err := store.ParseClockTimes(value)
		if err != nil {
			problem = "Horario inválido: " + err.Error()
			break
		}
		mutate = func(prefs *store.Preferences) { prefs.Times = times }
	case "cripto", "crypto":
		mutate = func(prefs *store.Preferences) { prefs.Crypto = splitList(value, strings.ToLower) }
	case "fiat", "monedas":
		mutate = func(prefs *store.Preferences) { prefs.Fiat = splitList(value, strings.ToUpper) }
	case "noticias", "news":
		mutate = func(prefs *store.Preferences) { prefs.NewsTopics = splitList(value, strings.ToLower) }
	case "cantidad", "count":
		count, err := strconv.Atoi(value)
		if err != nil || count < 1 || count > 10 {
			problem = "La cantidad de noticias debe ser un número entre 1 y 10."
			break
		}
		mutate = func(prefs *store.Preferences) { prefs.NewsCount = count }
	case "clima", "weather":
		enabled, ok := parseToggle(value)
		if !ok {
			problem = "Usa *on* u *off*."
			break
		}
		mutate = func(prefs *store.Preferences) { prefs.Weather = enabled }
	case "tasas", "rates":
		enabled, ok := parseToggle(value)
		if !ok {
			problem = "Usa *on* u *off*."
			break
		}
		mutate = func(prefs *store.Preferences) { prefs.Rates = enabled }
	default:
		return MessageOutput{Handled: true, Reply: s.prefsUsage()}, nil
	}
	if problem != "" {
		return MessageOutput{Handled: true, Reply: problem}, nil
	}

	prefs, err := s.store.UpdatePreferences(ctx, input.ChatID, mutate)
	if err != nil {
		return MessageOutput{}, err
	}
	if prefs.Briefing && (key == "horarios" || key == "horas" || key == "times") {
		if _, err := s.scheduleBriefing(ctx, input.ChatID, prefs); err != nil {
			return MessageOutput{}, err
		}
	}
	return MessageOutput{Handled: true, Reply: "✅ Preferencias actualizadas.\n\n" + describePreferences(prefs)}, nil
}

func (s *Service) scheduleBriefing(ctx context.Context, chatID string, prefs store.Preferences) (time.Time, error) {
	next, err := store.ComputeNextBriefing(prefs.Times, s.cfg.Timezone, s.now())
	if err != nil {
		return time.Time{}, err
	}
	if err := s.store.SetNextBriefing(ctx, chatID, next); err != nil {
		return time.Time{}, err
	}
	return next, nil
}

func (s *Service) prefsUsage() string {
	p := s.cfg.CommandPrefix
	return strings.Join([]string{
		"Uso:",
		p + "prefs",
		p + "prefs set horarios 07:00,19:00",
		p + "prefs set cripto bitcoin,ethereum",
		p + "prefs set fiat USD,EUR",
		p + "prefs set noticias tecnologia,economia",
		p + "prefs set cantidad 5",
		p + "prefs set clima on|off",
		p + "prefs set tasas on|off",
	}, "\n")
}

func (s *Service) helpText(admin bool) string {
	p := s.cfg.CommandPrefix
	lines := []string{
		"🤖 *Comandos*",
		p + "status: tu estado actual",
		p + "start gastos|ia|briefing: activar un bot o el resumen diario",
		p + "stop [briefing]: salir de gastos o apagar el resumen",
		p + "prefs: ver o cambiar preferencias",
		p + "refresh: recibir el resumen ahora",
		p + "resumen: gastos del mes",
		p + "editar N: corregir un gasto",
		p + "recordatorios: tus recordatorios pendientes",
		p + "reset: reiniciar tu configuración",
	}
	if admin {
		lines = append(lines,
			"",
			"👑 *Admin*",
			p+"bot: elegir bot",
			p+"block / "+p+"unblock <teléfono>",
			p+"blocked: lista de bloqueados",
			p+"reset all: reiniciar a todos",
		)
	}
	lines = append(lines, "", "También puedes escribirme normalmente, por ejemplo: *recuérdame en 10 minutos tomar agua*.")
	return strings.Join(lines, "\n")
}

func describePreferences(prefs store.Preferences) string {
	return strings.Join([]string{
		"⚙️ *Preferencias*",
		"Horarios: " + joinOrDash(prefs.Times),
		"Cripto: " + joinOrDash(prefs.Crypto),
		"Fiat: " + joinOrDash(prefs.Fiat),
		"Noticias: " + joinOrDash(prefs.NewsTopics) + fmt.Sprintf(" (%d)", prefs.NewsCount),
		"Clima: " + onOff(prefs.Weather),
		"Tasas: " + onOff(prefs.Rates),
		"Resumen diario: " + onOff(prefs.Briefing),
	}, "\n")
}

func botLabel(bot store.ActiveBot) string {
	switch bot {
	case store.BotGastos:
		return "💰 Gastos"
	default:
		return "🤖 Asistente IA"
	}
}

func sessionLabel(kind session.Kind) string {
	switch kind {
	case session.KindBotSelection:
		return "selección de bot"
	case session.KindCategory:
		return "categoría de un gasto"
	case session.KindEdit:
		return "edición de un gasto"
	default:
		return string(kind)
	}
}

func splitList(raw string, normalize func(string) string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, part := range strings.Split(raw, ",") {
		part = normalize(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if _, ok := seen[part]; ok {
			continue
		}
		seen[part] = struct{}{}
		out = append(out, part)
	}
	return out
}

func parseToggle(value string) (bool, bool) {
	switch textnorm.Fold(value) {
	case "on", "si", "true", "1", "activar":
		return true, true
	case "off", "no", "false", "0", "desactivar":
		return false, true
	default:
		return false, false
	}
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}

func joinOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
