package intent

import (
	"testing"
	"time"
)

func TestMatchRejectsShortAndCommands(t *testing.T) {
	matcher := NewMatcher("/")
	for _, input := range []string{"", "hey", "  ok  ", "/bot", "/recuérdame en 5 minutos algo"} {
		if result, ok := matcher.Match(input); ok {
			t.Fatalf("expected no match for %q, got %+v", input, result)
		}
	}
}

func TestMatchReminderPhrasings(t *testing.T) {
	matcher := NewMatcher("/")
	tests := []struct {
		input   string
		rule    string
		delay   time.Duration
		payload string
	}{
		{"recuérdame en 10 minutos llamar a mamá", "reminder_prefix_time_payload", 10 * time.Minute, "llamar a mamá"},
		{"Remind me in 2h to call the bank", "reminder_prefix_time_payload", 2 * time.Hour, "call the bank"},
		{"ponme un recordatorio en 3 días para pagar la luz", "reminder_set_variant", 72 * time.Hour, "pagar la luz"},
		{"set a reminder in 15m to stretch", "reminder_set_variant", 15 * time.Minute, "stretch"},
		{"recuérdame sacar la basura en 1 hora", "reminder_payload_then_time", time.Hour, "sacar la basura"},
		{"en 5 min recuérdame revisar el horno", "reminder_time_then_verb", 5 * time.Minute, "revisar el horno"},
		{"programa la reunión semanal en 2 d", "reminder_schedule", 48 * time.Hour, "la reunión semanal"},
	}
	for _, tc := range tests {
		result, ok := matcher.Match(tc.input)
		if !ok {
			t.Fatalf("expected reminder match for %q", tc.input)
		}
		if result.Intent != KindReminder {
			t.Fatalf("expected reminder intent for %q, got %s", tc.input, result.Intent)
		}
		if result.Rule != tc.rule {
			t.Fatalf("expected rule %s for %q, got %s", tc.rule, tc.input, result.Rule)
		}
		if result.Delay != tc.delay {
			t.Fatalf("expected delay %s for %q, got %s", tc.delay, tc.input, result.Delay)
		}
		if result.Payload != tc.payload {
			t.Fatalf("expected payload %q for %q, got %q", tc.payload, tc.input, result.Payload)
		}
	}
}

func TestMatchReminderRejectsShortPayload(t *testing.T) {
	matcher := NewMatcher("/")
	if result, ok := matcher.Match("recuérdame en 10 minutos ok"); ok {
		t.Fatalf("expected short payload to be rejected, got %+v", result)
	}
	if result, ok := matcher.Match("recuérdame en 0 minutos llamar"); ok {
		t.Fatalf("expected zero delay to be rejected, got %+v", result)
	}
}

func TestMatchToggleAndListIntents(t *testing.T) {
	matcher := NewMatcher("/")
	tests := map[string]Kind{
		"activa la voz por favor":         KindVoiceOn,
		"respóndeme con audios":           KindVoiceOn,
		"desactiva la voz":                KindVoiceOff,
		"solo texto de ahora en adelante": KindVoiceOff,
		"muéstrame mis recordatorios":     KindListReminders,
		"Recordatorios?":                  KindListReminders,
	}
	for input, want := range tests {
		result, ok := matcher.Match(input)
		if !ok || result.Intent != want {
			t.Fatalf("expected %s for %q, got %+v (ok=%v)", want, input, result, ok)
		}
	}
}

func TestMatchRoleNeedsSwitchPhrase(t *testing.T) {
	matcher := NewMatcher("/")
	tests := map[string]string{
		"quiero que seas mi profesor de inglés": "tutor",
		"actúa como un traductor":               "translator",
		"act as my lawyer":                      "lawyer",
		"be my coach":                           "coach",
		"ponte en modo chef":                    "chef",
		"vuelve a ser asistente normal":         "assistant",
	}
	for input, want := range tests {
		result, ok := matcher.Match(input)
		if !ok || result.Intent != KindRole || result.Value != want {
			t.Fatalf("expected role %s for %q, got %+v (ok=%v)", want, input, result, ok)
		}
	}
	for _, input := range []string{
		"mi profesor me dejó tarea",
		"I want to be a teacher, what should I study?",
		"quiero ser abogado cuando sea grande",
		"mi hermano quiere ser chef",
	} {
		if result, ok := matcher.Match(input); ok {
			t.Fatalf("expected no intent for %q, got %+v", input, result)
		}
	}
}

func TestMatchModel(t *testing.T) {
	matcher := NewMatcher("/")
	tests := map[string]string{
		"usa el modelo rápido":       "llama-3.1-8b-instant",
		"cambia a mixtral":           "mixtral-8x7b-32768",
		"switch to llama 70b please": "llama-3.3-70b-versatile",
		"usa el modelo grande":       "llama-3.3-70b-versatile",
		"use deepseek":               "deepseek-r1-distill-llama-70b",
	}
	for input, want := range tests {
		result, ok := matcher.Match(input)
		if !ok || result.Intent != KindModel || result.Value != want {
			t.Fatalf("expected model %s for %q, got %+v (ok=%v)", want, input, result, ok)
		}
	}
	for _, input := range []string{
		"me encanta gemma la actriz",
		"quiero saber cómo se llama la capital de Francia",
		"quiero que me digas como se llama esta canción",
		"usa tu imaginación y dime cómo se llama mi perro",
		"switch to llama please",
	} {
		if result, ok := matcher.Match(input); ok {
			t.Fatalf("expected no intent for %q, got %+v", input, result)
		}
	}
}

func TestMatchGeneratorIntents(t *testing.T) {
	matcher := NewMatcher("/")
	tests := []struct {
		input   string
		intent  Kind
		payload string
	}{
		{"mándame un gif de gatos bailando", KindGIF, "gatos bailando"},
		{"gif of happy dogs", KindGIF, "happy dogs"},
		{"genera un pdf sobre la historia del café", KindPDF, "la historia del café"},
		{"hazme un código qr para https://example.com", KindQR, "https://example.com"},
		{"create a qr with hello world", KindQR, "hello world"},
	}
	for _, tc := range tests {
		result, ok := matcher.Match(tc.input)
		if !ok || result.Intent != tc.intent || result.Payload != tc.payload {
			t.Fatalf("expected %s/%q for %q, got %+v (ok=%v)", tc.intent, tc.payload, tc.input, result, ok)
		}
	}
}

func TestMatchIsDeterministic(t *testing.T) {
	matcher := NewMatcher("/")
	first, okFirst := matcher.Match("recuérdame en 10 minutos llamar a mamá")
	second, okSecond := matcher.Match("recuérdame en 10 minutos llamar a mamá")
	if okFirst != okSecond || first != second {
		t.Fatalf("expected identical results, got %+v and %+v", first, second)
	}
}

func TestRulesOrderStartsWithReminders(t *testing.T) {
	names := NewMatcher("/").Rules()
	if len(names) < 13 {
		t.Fatalf("expected full rule table, got %v", names)
	}
	if names[0] != "reminder_prefix_time_payload" || names[len(names)-1] != "qr" {
		t.Fatalf("unexpected rule order: %v", names)
	}
}

func TestMatchUnknownText(t *testing.T) {
	if result, ok := NewMatcher("/").Match("¿cuál es la capital de Francia?"); ok {
		t.Fatalf("expected no intent, got %+v", result)
	}
}
