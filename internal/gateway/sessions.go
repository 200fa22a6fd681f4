package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dwizi/wabot/internal/expense"
	"github.com/dwizi/wabot/internal/ledger"
	"github.com/dwizi/wabot/internal/session"
	"github.com/dwizi/wabot/internal/store"
	"github.com/dwizi/wabot/internal/textnorm"
)

const (
	choiceBotGroq    = "bot_groq"
	choiceBotGastos  = "bot_gastos"
	choiceCategoryID = "cat_"

	jobKindSessionTimeout = "session_timeout"
)

type botSelection struct {
	Previous string `json:"previous"`
}

type pendingExpense struct {
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
	Hint        string `json:"hint,omitempty"`
	Tag         string `json:"tag,omitempty"`
	SheetID     string `json:"sheet_id,omitempty"`
	SpentAtUnix int64  `json:"spent_at_unix"`
}

type pendingEdit struct {
	Row     int    `json:"row"`
	SheetID string `json:"sheet_id,omitempty"`
}

// resolvePending gives open sessions first claim on a message. Replies that do
// not answer the session leave it in place and fall through.
func (s *Service) resolvePending(ctx context.Context, input MessageInput, contact store.Contact) (MessageOutput, bool, error) {
	if output, handled, err := s.resolveBotSelection(ctx, input, contact); err != nil || handled {
		return output, handled, err
	}
	if output, handled, err := s.resolveCategory(ctx, input); err != nil || handled {
		return output, handled, err
	}
	return s.resolveEdit(ctx, input)
}

func (s *Service) resolveBotSelection(ctx context.Context, input MessageInput, contact store.Contact) (MessageOutput, bool, error) {
	entry, ok, err := s.sessions.Take(ctx, input.ChatID, session.KindBotSelection)
	if err != nil || !ok {
		return MessageOutput{}, false, err
	}
	bot, valid := parseBotChoice(input)
	if !valid {
		if err := s.sessions.Put(ctx, entry); err != nil {
			return MessageOutput{}, false, err
		}
		return MessageOutput{}, false, nil
	}
	switch bot {
	case store.BotGastos:
		output, err := s.enterGastos(ctx, input, contact)
		return output, true, err
	default:
		output, err := s.activateAssistant(ctx, input.ChatID, contact)
		return output, true, err
	}
}

func (s *Service) resolveCategory(ctx context.Context, input MessageInput) (MessageOutput, bool, error) {
	entry, ok, err := s.sessions.Take(ctx, input.ChatID, session.KindCategory)
	if err != nil || !ok {
		return MessageOutput{}, false, err
	}
	var pending pendingExpense
	if err := entry.Decode(&pending); err != nil {
		s.sessions.Release(ctx, entry)
		return MessageOutput{}, true, err
	}
	if _, _, isCommand := s.splitCommand(input.Text); isCommand {
		return MessageOutput{}, false, s.sessions.Put(ctx, entry)
	}

	answer := choiceValue(input, choiceCategoryID)
	if isCancel(answer) {
		return MessageOutput{Handled: true, Reply: "❌ Gasto descartado, no se registró nada."}, true, nil
	}
	category, found := expense.LookupCategory(answer)
	if !found {
		if err := s.sessions.Put(ctx, entry); err != nil {
			return MessageOutput{}, true, err
		}
		reply := "No reconocí esa categoría. Responde con el número o el nombre, o escribe *cancelar*.\n\n" + categoryMenu()
		return MessageOutput{Handled: true, Reply: reply}, true, nil
	}

	row, err := s.writeExpense(ctx, input.ChatID, pending, category)
	if err != nil {
		s.logger.Error("ledger append failed", "chat_id", input.ChatID, "error", err)
		if putErr := s.sessions.Put(ctx, entry); putErr != nil {
			return MessageOutput{}, true, putErr
		}
		return MessageOutput{Handled: true, Reply: ledgerApology}, true, nil
	}
	if s.learner != nil {
		if err := s.learner.Learn(pending.Description, category.Name); err != nil {
			s.logger.Warn("category override not saved", "chat_id", input.ChatID, "error", err)
		}
	}
	reply := confirmExpense(row, category) + fmt.Sprintf("\n🧠 La próxima vez clasificaré *%s* como %s.", row.Description, category.Name)
	return MessageOutput{Handled: true, Reply: reply}, true, nil
}

func (s *Service) resolveEdit(ctx context.Context, input MessageInput) (MessageOutput, bool, error) {
	entry, ok, err := s.sessions.Take(ctx, input.ChatID, session.KindEdit)
	if err != nil || !ok {
		return MessageOutput{}, false, err
	}
	var pending pendingEdit
	if err := entry.Decode(&pending); err != nil {
		s.sessions.Release(ctx, entry)
		return MessageOutput{}, true, err
	}
	if _, _, isCommand := s.splitCommand(input.Text); isCommand {
		return MessageOutput{}, false, s.sessions.Put(ctx, entry)
	}
	if isCancel(input.Text) {
		return MessageOutput{Handled: true, Reply: "Edición cancelada."}, true, nil
	}

	update, valid := parseEditReply(input.Text)
	if !valid {
		if err := s.sessions.Put(ctx, entry); err != nil {
			return MessageOutput{}, true, err
		}
		return MessageOutput{Handled: true, Reply: "No entendí el cambio.\n\n" + editHelp}, true, nil
	}

	account := ledger.Account{ChatID: input.ChatID, SheetID: pending.SheetID}
	row, err := s.ledger.Get(ctx, account, pending.Row)
	if err != nil {
		if errors.Is(err, ledger.ErrRowNotFound) {
			return MessageOutput{Handled: true, Reply: fmt.Sprintf("La fila %d ya no existe.", pending.Row)}, true, nil
		}
		s.logger.Error("ledger read failed", "chat_id", input.ChatID, "row", pending.Row, "error", err)
		if putErr := s.sessions.Put(ctx, entry); putErr != nil {
			return MessageOutput{}, true, putErr
		}
		return MessageOutput{Handled: true, Reply: ledgerApology}, true, nil
	}
	update.apply(&row)
	if err := s.ledger.Update(ctx, account, row); err != nil {
		s.logger.Error("ledger update failed", "chat_id", input.ChatID, "row", pending.Row, "error", err)
		if putErr := s.sessions.Put(ctx, entry); putErr != nil {
			return MessageOutput{}, true, putErr
		}
		return MessageOutput{Handled: true, Reply: ledgerApology}, true, nil
	}
	return MessageOutput{Handled: true, Reply: "✏️ Fila actualizada:\n" + describeRow(row)}, true, nil
}

const pendingExpenseLost = "⚠️ No pude recuperar tu gasto pendiente. Envíalo de nuevo, por ejemplo *Almuerzo 25k*."

// categoryTimedOut writes the pending expense with the default category.
func (s *Service) categoryTimedOut(ctx context.Context, entry session.Entry) {
	var pending pendingExpense
	if err := entry.Decode(&pending); err != nil {
		s.logger.Error("decode expired category session", "chat_id", entry.Key.ChatID, "error", err)
		s.notify(ctx, entry.Key.ChatID, pendingExpenseLost)
		return
	}
	category := expense.DefaultCategory()
	row, err := s.writeExpense(ctx, entry.Key.ChatID, pending, category)
	if err != nil {
		s.logger.Error("default category write failed", "chat_id", entry.Key.ChatID, "error", err)
		return
	}
	s.notify(ctx, entry.Key.ChatID, "⏱️ No recibí la categoría a tiempo.\n"+confirmExpense(row, category))
}

func (s *Service) writeExpense(ctx context.Context, chatID string, pending pendingExpense, category expense.Category) (ledger.Row, error) {
	if s.ledger == nil {
		return ledger.Row{}, errors.New("ledger is not configured")
	}
	spentAt := s.now()
	if pending.SpentAtUnix > 0 {
		spentAt = time.Unix(pending.SpentAtUnix, 0)
	}
	row := ledger.Row{
		Date:        spentAt.In(s.cfg.Location),
		Description: pending.Description,
		Amount:      pending.Amount,
		Category:    category.Name,
		Tag:         pending.Tag,
	}
	return s.ledger.Append(ctx, ledger.Account{ChatID: chatID, SheetID: pending.SheetID}, row)
}

func parseBotChoice(input MessageInput) (store.ActiveBot, bool) {
	switch textnorm.Fold(choiceValue(input, "")) {
	case "1", choiceBotGroq, "ia", "groq", "asistente":
		return store.BotGroq, true
	case "2", choiceBotGastos, "gastos":
		return store.BotGastos, true
	default:
		return "", false
	}
}

// choiceValue prefers an interactive reply id, with prefix removed, over the
// typed text.
func choiceValue(input MessageInput, prefix string) string {
	if input.Choice != nil {
		if id := strings.TrimSpace(input.Choice.ID); id != "" {
			if prefix != "" && strings.HasPrefix(id, prefix) {
				return strings.TrimPrefix(id, prefix)
			}
			return id
		}
	}
	return strings.TrimSpace(input.Text)
}

func isCancel(text string) bool {
	switch textnorm.Fold(text) {
	case "cancelar", "cancel", "salir", "no":
		return true
	default:
		return false
	}
}

type editUpdate struct {
	field string
	text  string
	value int64
}

const editHelp = "Responde con el cambio, por ejemplo:\n• monto 30k\n• categoria Transporte\n• descripcion Cena\n• nota con amigos\nO escribe *cancelar*."

func parseEditReply(text string) (editUpdate, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) < 2 {
		return editUpdate{}, false
	}
	value := strings.TrimSpace(strings.Join(fields[1:], " "))
	switch textnorm.Fold(fields[0]) {
	case "monto", "valor", "amount":
		amount, ok := expense.ParseAmount(value)
		if !ok {
			return editUpdate{}, false
		}
		return editUpdate{field: "amount", value: amount}, true
	case "categoria", "category":
		category, ok := expense.LookupCategory(value)
		if !ok {
			return editUpdate{}, false
		}
		return editUpdate{field: "category", text: category.Name}, true
	case "descripcion", "description", "nombre":
		return editUpdate{field: "description", text: value}, true
	case "nota", "note":
		return editUpdate{field: "note", text: value}, true
	default:
		return editUpdate{}, false
	}
}

func (u editUpdate) apply(row *ledger.Row) {
	switch u.field {
	case "amount":
		row.Amount = u.value
	case "category":
		row.Category = u.text
	case "description":
		row.Description = u.text
	case "note":
		row.Note = u.text
	}
}
