package gateway

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dwizi/wabot/internal/expense"
	"github.com/dwizi/wabot/internal/ledger"
	"github.com/dwizi/wabot/internal/session"
	"github.com/dwizi/wabot/internal/store"
	"github.com/dwizi/wabot/internal/textnorm"
)

const (
	ledgerApology = "😔 No pude guardar en tu registro de gastos en este momento. Intenta de nuevo en unos minutos."
	expenseUsage  = "No encontré un gasto en tu mensaje. Escribe la descripción y el monto, por ejemplo *Almuerzo 25k* o *Taxi 12.000 #trabajo*."
	sheetsURLBase = "https://docs.google.com/spreadsheets/d/"
)

var (
	sheetURLPattern = regexp.MustCompile(`/spreadsheets/d/([A-Za-z0-9_-]+)`)
	sheetIDPattern  = regexp.MustCompile(`^[A-Za-z0-9_-]{20,}$`)
)

var gastosTriggerPhrases = []string{
	"registrar mis gastos",
	"registrar gastos",
	"anotar mis gastos",
	"control de gastos",
	"llevar mis gastos",
	"track my expenses",
	"expense tracker",
}

var spanishMonths = [...]string{"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"}

func isGastosTrigger(text string) bool {
	if textnorm.Fold(text) == "gastos" {
		return true
	}
	_, ok := textnorm.ContainsAnyPhrase(text, gastosTriggerPhrases)
	return ok
}

// enterGastos activates the expense tracker, starting onboarding for contacts
// that never completed it.
func (s *Service) enterGastos(ctx context.Context, input MessageInput, contact store.Contact) (MessageOutput, error) {
	gastos := contact.BotConfig.Gastos
	if gastos.Onboarded {
		if err := s.store.SetActiveBot(ctx, input.ChatID, store.BotGastos); err != nil {
			return MessageOutput{}, err
		}
		reply := "💰 *Gastos* activo.\n📄 Registro: " + sheetReference(gastos) + "\n\n" + gastosUsage
		return MessageOutput{Handled: true, Reply: reply}, nil
	}
	now := s.now()
	if _, err := s.store.UpdateBotConfig(ctx, input.ChatID, func(cfg *store.BotConfig) {
		cfg.Gastos.Step = store.GastosStepSheet
		cfg.Gastos.StartedAtUnix = now.Unix()
	}); err != nil {
		return MessageOutput{}, err
	}
	return MessageOutput{Handled: true, Reply: onboardingSheetPrompt(s.cfg.SheetsEnabled)}, nil
}

// continueOnboarding advances the durable onboarding steps. An onboarding
// left idle past its window is dropped and the message routed normally.
func (s *Service) continueOnboarding(ctx context.Context, input MessageInput, contact store.Contact) (MessageOutput, bool, error) {
	gastos := contact.BotConfig.Gastos
	now := s.now()
	if gastos.StartedAtUnix > 0 && now.Unix()-gastos.StartedAtUnix > int64(s.cfg.OnboardingTimeout.Seconds()) {
		s.logger.Info("onboarding expired", "chat_id", input.ChatID, "step", gastos.Step)
		_, err := s.store.UpdateBotConfig(ctx, input.ChatID, func(cfg *store.BotConfig) {
			cfg.Gastos.Step = ""
			cfg.Gastos.StartedAtUnix = 0
		})
		return MessageOutput{}, false, err
	}

	switch gastos.Step {
	case store.GastosStepSheet:
		sheetID, ok := parseSheetReference(input.Text)
		if !ok {
			return MessageOutput{Handled: true, Reply: "No reconocí ese enlace.\n\n" + onboardingSheetPrompt(s.cfg.SheetsEnabled)}, true, nil
		}
		note := ""
		if sheetID != "local" && !s.cfg.SheetsEnabled {
			sheetID = "local"
			note = "Google Sheets no está disponible en este servidor, usaré el registro local.\n\n"
		}
		if _, err := s.store.UpdateBotConfig(ctx, input.ChatID, func(cfg *store.BotConfig) {
			cfg.Gastos.SheetID = sheetID
			cfg.Gastos.Step = store.GastosStepBudget
			cfg.Gastos.StartedAtUnix = now.Unix()
		}); err != nil {
			return MessageOutput{}, true, err
		}
		return MessageOutput{Handled: true, Reply: note + "Paso 2/2: ¿Cuál es tu presupuesto mensual? (ej. *1.5m*) o escribe *no*."}, true, nil
	case store.GastosStepBudget:
		var budget int64
		if !isSkip(input.Text) {
			amount, ok := expense.ParseAmount(input.Text)
			if !ok {
				return MessageOutput{Handled: true, Reply: "Ese monto no es válido. Escribe algo como *2m* o *1.500.000*, o *no* para omitir."}, true, nil
			}
			budget = amount
		}
		updated, err := s.store.UpdateBotConfig(ctx, input.ChatID, func(cfg *store.BotConfig) {
			cfg.Gastos.Budget = budget
			cfg.Gastos.Onboarded = true
			cfg.Gastos.Step = ""
			cfg.Gastos.StartedAtUnix = 0
		})
		if err != nil {
			return MessageOutput{}, true, err
		}
		if err := s.store.SetActiveBot(ctx, input.ChatID, store.BotGastos); err != nil {
			return MessageOutput{}, true, err
		}
		lines := []string{"🎉 ¡Listo! *Gastos* activo.", "📄 Registro: " + sheetReference(updated.Gastos)}
		if budget > 0 {
			lines = append(lines, "💵 Presupuesto mensual: "+expense.FormatAmount(budget))
		}
		lines = append(lines, "", gastosUsage)
		return MessageOutput{Handled: true, Reply: strings.Join(lines, "\n")}, true, nil
	default:
		_, err := s.store.UpdateBotConfig(ctx, input.ChatID, func(cfg *store.BotConfig) {
			cfg.Gastos.Step = ""
		})
		return MessageOutput{}, false, err
	}
}

func (s *Service) handleExpense(ctx context.Context, input MessageInput, contact store.Contact) (MessageOutput, error) {
	gastos := contact.BotConfig.Gastos
	if !gastos.Onboarded {
		return s.enterGastos(ctx, input, contact)
	}
	parsed, ok := expense.ParseExpense(input.Text)
	if !ok {
		return MessageOutput{Handled: true, Reply: expenseUsage}, nil
	}
	pending := pendingExpense{
		Description: parsed.Description,
		Amount:      parsed.Amount,
		Hint:        parsed.CategoryHint,
		Tag:         parsed.Tag,
		SheetID:     gastos.SheetID,
		SpentAtUnix: s.now().Unix(),
	}

	classification := s.classifier.Classify(parsed.Description, parsed.CategoryHint)
	if !classification.Confident() {
		if err := s.sessions.Open(ctx, input.ChatID, session.KindCategory, pending); err != nil {
			return MessageOutput{}, err
		}
		reply := fmt.Sprintf("🤔 ¿En qué categoría va *%s* %s?\n\n%s\n\nResponde con el número o el nombre, o *cancelar*.",
			parsed.Description, expense.FormatAmount(parsed.Amount), categoryMenu())
		return MessageOutput{Handled: true, Reply: reply}, nil
	}

	row, err := s.writeExpense(ctx, input.ChatID, pending, classification.Category)
	if err != nil {
		s.logger.Error("ledger append failed", "chat_id", input.ChatID, "error", err)
		return MessageOutput{Handled: true, Reply: ledgerApology}, nil
	}
	reply := confirmExpense(row, classification.Category)
	if line := s.budgetLine(ctx, input.ChatID, gastos); line != "" {
		reply += "\n" + line
	}
	return MessageOutput{Handled: true, Reply: reply}, nil
}

func (s *Service) handleEditCommand(ctx context.Context, input MessageInput, contact store.Contact, arg string) (MessageOutput, error) {
	gastos := contact.BotConfig.Gastos
	if !gastos.Onboarded {
		return MessageOutput{Handled: true, Reply: "Primero activa *gastos* para poder editar tus registros."}, nil
	}
	number, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(arg), "#"))
	if err != nil || number < 1 {
		return MessageOutput{Handled: true, Reply: "Uso: " + s.cfg.CommandPrefix + "editar N (el número de fila que te mostré al registrar)"}, nil
	}
	account := ledger.Account{ChatID: input.ChatID, SheetID: gastos.SheetID}
	row, err := s.ledger.Get(ctx, account, number)
	if err != nil {
		if errors.Is(err, ledger.ErrRowNotFound) {
			return MessageOutput{Handled: true, Reply: fmt.Sprintf("No encontré la fila %d.", number)}, nil
		}
		s.logger.Error("ledger read failed", "chat_id", input.ChatID, "row", number, "error", err)
		return MessageOutput{Handled: true, Reply: ledgerApology}, nil
	}
	if err := s.sessions.Open(ctx, input.ChatID, session.KindEdit, pendingEdit{Row: number, SheetID: gastos.SheetID}); err != nil {
		return MessageOutput{}, err
	}
	return MessageOutput{Handled: true, Reply: "✏️ Editando:\n" + describeRow(row) + "\n\n" + editHelp}, nil
}

func (s *Service) handleSummary(ctx context.Context, input MessageInput, contact store.Contact) (MessageOutput, error) {
	gastos := contact.BotConfig.Gastos
	if !gastos.Onboarded {
		return MessageOutput{Handled: true, Reply: "Aún no tienes *gastos* configurado. Escribe *gastos* para empezar."}, nil
	}
	now := s.now().In(s.cfg.Location)
	from, to := ledger.MonthRange(now, s.cfg.Location)
	rows, err := s.ledger.List(ctx, ledger.Account{ChatID: input.ChatID, SheetID: gastos.SheetID}, from, to)
	if err != nil {
		s.logger.Error("ledger list failed", "chat_id", input.ChatID, "error", err)
		return MessageOutput{Handled: true, Reply: ledgerApology}, nil
	}
	if len(rows) == 0 {
		return MessageOutput{Handled: true, Reply: "Aún no tienes gastos registrados este mes."}, nil
	}
	totals, total := ledger.Summarize(rows)
	lines := []string{fmt.Sprintf("📊 *Resumen de %s %d*", spanishMonths[now.Month()-1], now.Year())}
	for _, item := range totals {
		lines = append(lines, fmt.Sprintf("• %s: %s (%d)", categoryLabel(item.Category), expense.FormatAmount(item.Total), item.Count))
	}
	lines = append(lines, "", "*Total:* "+expense.FormatAmount(total))
	if gastos.Budget > 0 {
		remaining := gastos.Budget - total
		if remaining >= 0 {
			lines = append(lines, fmt.Sprintf("💵 Disponible: %s de %s", expense.FormatAmount(remaining), expense.FormatAmount(gastos.Budget)))
		} else {
			lines = append(lines, fmt.Sprintf("⚠️ Superaste tu presupuesto de %s por %s", expense.FormatAmount(gastos.Budget), expense.FormatAmount(-remaining)))
		}
	}
	return MessageOutput{Handled: true, Reply: strings.Join(lines, "\n")}, nil
}

// budgetLine reports month-to-date spend against the budget. Read failures
// only drop the line.
func (s *Service) budgetLine(ctx context.Context, chatID string, gastos store.GastosConfig) string {
	if gastos.Budget <= 0 {
		return ""
	}
	from, to := ledger.MonthRange(s.now(), s.cfg.Location)
	rows, err := s.ledger.List(ctx, ledger.Account{ChatID: chatID, SheetID: gastos.SheetID}, from, to)
	if err != nil {
		s.logger.Warn("budget lookup failed", "chat_id", chatID, "error", err)
		return ""
	}
	_, total := ledger.Summarize(rows)
	return fmt.Sprintf("📊 Llevas %s de %s este mes.", expense.FormatAmount(total), expense.FormatAmount(gastos.Budget))
}

const gastosUsage = "Envíame tus gastos así: *Almuerzo 25k* o *Taxi 12.000 #trabajo*.\nComandos: /resumen, /editar N, /salir."

func onboardingSheetPrompt(sheetsEnabled bool) string {
	if !sheetsEnabled {
		return "💰 Vamos a configurar *gastos*.\nPaso 1/2: escribe *local* para guardar tus gastos aquí mismo."
	}
	return "💰 Vamos a configurar *gastos*.\nPaso 1/2: envíame el enlace de tu Google Sheet (compártela con la cuenta del bot) o escribe *local* para guardarlos aquí."
}

func parseSheetReference(text string) (string, bool) {
	text = strings.TrimSpace(text)
	switch textnorm.Fold(text) {
	case "local", "aqui", "no":
		return "local", true
	}
	if groups := sheetURLPattern.FindStringSubmatch(text); groups != nil {
		return groups[1], true
	}
	if sheetIDPattern.MatchString(text) {
		return text, true
	}
	return "", false
}

func sheetReference(gastos store.GastosConfig) string {
	if gastos.LocalLedger() {
		return "registro local (usa /resumen para verlo)"
	}
	return sheetsURLBase + strings.TrimSpace(gastos.SheetID)
}

func isSkip(text string) bool {
	switch textnorm.Fold(text) {
	case "no", "omitir", "ninguno", "skip", "0":
		return true
	default:
		return false
	}
}

func confirmExpense(row ledger.Row, category expense.Category) string {
	return fmt.Sprintf("✅ Gasto registrado: *%s* %s en %s (fila %d)", row.Description, expense.FormatAmount(row.Amount), category.Label(), row.Number)
}

func describeRow(row ledger.Row) string {
	line := fmt.Sprintf("Fila %d · %s · *%s* %s · %s", row.Number, row.Date.Format("02/01/2006"), row.Description, expense.FormatAmount(row.Amount), categoryLabel(row.Category))
	if row.Tag != "" {
		line += " #" + row.Tag
	}
	if row.Note != "" {
		line += "\n📝 " + row.Note
	}
	return line
}

func categoryLabel(name string) string {
	if category, ok := expense.LookupCategory(name); ok {
		return category.Label()
	}
	return name
}

func categoryMenu() string {
	categories := expense.Categories()
	lines := make([]string, 0, len(categories))
	for index, category := range categories {
		lines = append(lines, fmt.Sprintf("%d. %s", index+1, category.Label()))
	}
	return strings.Join(lines, "\n")
}
