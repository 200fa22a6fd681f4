package intent

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dwizi/wabot/internal/textnorm"
)

const (
	relativeTime = `(\d+)\s*(minutos?|minutes?|mins?|m|horas?|hours?|hrs?|h|d[ií]as?|days?|d)`
	remindVerb   = `(?:recu[eé]rdame|recordarme|recu[eé]rdale|remind me)`
	inWord       = `(?:en|in|dentro de|within)`
	payloadLead  = `(?:(?:que|de|to|a|about)\s+)?`
)

// reminderForm describes one reminder phrasing and where its groups are.
type reminderForm struct {
	name    string
	pattern *regexp.Regexp
	amount  int
	unit    int
	payload int
}

var reminderForms = []reminderForm{
	{
		name:    "reminder_prefix_time_payload",
		pattern: regexp.MustCompile(`(?i)^` + remindVerb + `\s+` + inWord + `\s+` + relativeTime + `\s+` + payloadLead + `(.+)$`),
		amount:  1,
		unit:    2,
		payload: 3,
	},
	{
		name:    "reminder_set_variant",
		pattern: regexp.MustCompile(`(?i)^(?:pon(?:me)?|crea(?:me)?|programa(?:me)?|agrega|a[nñ]ade|set|create|add)\s+(?:un|a)\s+(?:recordatorio|reminder)\s+(?:para\s+)?` + inWord + `\s+` + relativeTime + `\s+(?:(?:para|que|de|to|for)\s+)?(.+)$`),
		amount:  1,
		unit:    2,
		payload: 3,
	},
	{
		name:    "reminder_payload_then_time",
		pattern: regexp.MustCompile(`(?i)^` + remindVerb + `\s+` + payloadLead + `(.+?)\s+` + inWord + `\s+` + relativeTime + `\s*[.!]?$`),
		amount:  2,
		unit:    3,
		payload: 1,
	},
	{
		name:    "reminder_time_then_verb",
		pattern: regexp.MustCompile(`(?i)^` + inWord + `\s+` + relativeTime + `\s*,?\s+` + remindVerb + `\s+` + payloadLead + `(.+)$`),
		amount:  1,
		unit:    2,
		payload: 3,
	},
	{
		name:    "reminder_schedule",
		pattern: regexp.MustCompile(`(?i)^(?:programa|agenda|schedule)\s+(.+?)\s+` + inWord + `\s+` + relativeTime + `\s*[.!]?$`),
		amount:  2,
		unit:    3,
		payload: 1,
	},
}

var (
	voiceOnPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:^|\s)(?:activa|activar|enciende|encender|habilita|habilitar|prende|turn on|enable)\s+(?:\S+\s+){0,3}?(?:voz|audios?|voice|notas de voz)(?:\s|[.!?]|$)`),
		regexp.MustCompile(`(?i)(?:^|\s)(?:resp[oó]ndeme|h[aá]blame|contesta(?:me)?|reply|answer|talk)\s+(?:\S+\s+){0,2}?(?:con|en|with|in|by)\s+(?:voz|audios?|voice)(?:\s|[.!?]|$)`),
	}
	voiceOffPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:^|\s)(?:desactiva|desactivar|apaga|apagar|deshabilita|deshabilitar|quita|quitar|turn off|disable)\s+(?:\S+\s+){0,3}?(?:voz|audios?|voice|notas de voz)(?:\s|[.!?]|$)`),
		regexp.MustCompile(`(?i)(?:^|\s)(?:solo texto|s[oó]lo texto|sin voz|sin audios?|text only|no voice|no m[aá]s audios?)(?:\s|[.!?]|$)`),
	}
	listRemindersPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:^|\s)(?:mis|ver|lista|listar|mu[eé]strame|muestra|cu[aá]les son|qu[eé]|list|show|my|what are)\s+(?:\S+\s+){0,3}?(?:recordatorios|reminders)(?:\s|[.!?]|$)`),
		regexp.MustCompile(`(?i)^(?:recordatorios|reminders)\s*[?!.]?$`),
	}
	gifPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(?:m[aá]nd(?:a|ame)|env[ií](?:a|ame)|busca(?:me)?|dame|p[aá]same|send(?:\s+me)?|show(?:\s+me)?|find(?:\s+me)?|quiero)\s+(?:(?:un|una|a|el|the)\s+)?gifs?\s+(?:(?:de|del|sobre|of|about|with)\s+)?(.+)$`),
		regexp.MustCompile(`(?i)^gifs?\s+(?:(?:de|del|sobre|of|about|with)\s+)?(.+)$`),
	}
	pdfPattern = regexp.MustCompile(`(?i)^(?:genera(?:me)?|crea(?:me)?|haz(?:me)?|dame|escribe(?:me)?|create|make|generate|write)\s+(?:(?:un|una|a|el)\s+)?(?:documento\s+)?pdf\s+(?:(?:de|del|sobre|con|acerca de|about|on|of|with)\s+)?(.+)$`)
	qrPattern  = regexp.MustCompile(`(?i)^(?:genera(?:me)?|crea(?:me)?|haz(?:me)?|dame|create|make|generate)\s+(?:(?:un|una|a|el)\s+)?(?:c[oó]digo\s+)?qr\s+(?:(?:de|del|para|con|for|of|with)\s+)?(.+)$`)
)

// switchForm pairs the lead phrases that ask for a change with the values
// they can select. A keyword only counts when it follows a lead within
// maxGap words, so "quiero saber como se llama" never picks a model.
type switchForm struct {
	leads  []string
	maxGap int
	table  []keywordValue
}

type keywordValue struct {
	value    string
	keywords []string
}

var roleForm = switchForm{
	leads: []string{
		"actua como", "actues como", "actua de", "comportate como", "se mi", "seas mi", "seas un", "seas una",
		"ponte en modo", "modo", "vuelve a ser", "vuelve a modo",
		"act as", "act like", "behave like", "be my", "become my", "pretend to be", "you are now", "go back to",
	},
	maxGap: 2,
	table: []keywordValue{
		{value: "tutor", keywords: []string{"profesor", "profesora", "maestro", "maestra", "tutor", "teacher"}},
		{value: "developer", keywords: []string{"programador", "programadora", "desarrollador", "developer", "programmer", "coder"}},
		{value: "translator", keywords: []string{"traductor", "traductora", "translator"}},
		{value: "chef", keywords: []string{"chef", "cocinero", "cocinera"}},
		{value: "coach", keywords: []string{"entrenador", "entrenadora", "coach", "motivador"}},
		{value: "therapist", keywords: []string{"psicologo", "psicologa", "terapeuta", "therapist"}},
		{value: "lawyer", keywords: []string{"abogado", "abogada", "lawyer"}},
		{value: "assistant", keywords: []string{"asistente normal", "asistente general", "normal assistant", "default assistant"}},
	},
}

var modelForm = switchForm{
	leads: []string{
		"usa", "usar", "utiliza", "cambia", "cambiar", "cambiame", "pasa", "pasate", "pon", "ponme",
		"use", "switch", "change", "set",
	},
	maxGap: 3,
	table: []keywordValue{
		{value: "llama-3.1-8b-instant", keywords: []string{"llama 8b", "llama rapido", "modelo rapido", "fast model"}},
		{value: "llama-3.3-70b-versatile", keywords: []string{"llama 70b", "modelo grande", "big model"}},
		{value: "mixtral-8x7b-32768", keywords: []string{"mixtral"}},
		{value: "gemma2-9b-it", keywords: []string{"gemma"}},
		{value: "deepseek-r1-distill-llama-70b", keywords: []string{"deepseek"}},
	},
}

func defaultRules() []rule {
	rules := make([]rule, 0, len(reminderForms)+8)
	for _, form := range reminderForms {
		rules = append(rules, rule{name: form.name, intent: KindReminder, match: form.match})
	}
	rules = append(rules,
		rule{name: "voice_on", intent: KindVoiceOn, match: anyPattern(voiceOnPatterns)},
		rule{name: "voice_off", intent: KindVoiceOff, match: anyPattern(voiceOffPatterns)},
		rule{name: "list_reminders", intent: KindListReminders, match: anyPattern(listRemindersPatterns)},
		rule{name: "role", intent: KindRole, match: roleForm.compile()},
		rule{name: "model", intent: KindModel, match: modelForm.compile()},
		rule{name: "gif", intent: KindGIF, match: payloadPatterns(gifPatterns...)},
		rule{name: "pdf", intent: KindPDF, match: payloadPatterns(pdfPattern)},
		rule{name: "qr", intent: KindQR, match: payloadPatterns(qrPattern)},
	)
	return rules
}

func (f reminderForm) match(text string) (Match, bool) {
	groups := f.pattern.FindStringSubmatch(text)
	if groups == nil {
		return Match{}, false
	}
	amount, err := strconv.Atoi(groups[f.amount])
	if err != nil || amount <= 0 {
		return Match{}, false
	}
	unit := unitDuration(groups[f.unit])
	if unit == 0 {
		return Match{}, false
	}
	payload := strings.TrimSpace(strings.TrimRight(groups[f.payload], ".!"))
	if utf8.RuneCountInString(payload) <= 2 {
		return Match{}, false
	}
	return Match{Delay: time.Duration(amount) * unit, Payload: payload}, true
}

func unitDuration(unit string) time.Duration {
	switch folded := textnorm.Fold(unit); {
	case strings.HasPrefix(folded, "m"):
		return time.Minute
	case strings.HasPrefix(folded, "h"):
		return time.Hour
	case strings.HasPrefix(folded, "d"):
		return 24 * time.Hour
	default:
		return 0
	}
}

func anyPattern(patterns []*regexp.Regexp) func(text string) (Match, bool) {
	return func(text string) (Match, bool) {
		for _, pattern := range patterns {
			if pattern.MatchString(text) {
				return Match{}, true
			}
		}
		return Match{}, false
	}
}

// compile builds one pattern per table entry over the folded words of the
// text. The first entry whose keyword follows a lead wins.
func (f switchForm) compile() func(text string) (Match, bool) {
	leads := quotePhrases(f.leads)
	type compiled struct {
		value   string
		pattern *regexp.Regexp
	}
	entries := make([]compiled, 0, len(f.table))
	for _, entry := range f.table {
		expr := `(?:^| )(?:` + leads + `)(?: \S+){0,` + strconv.Itoa(f.maxGap) + `} (?:` + quotePhrases(entry.keywords) + `)(?: |$)`
		entries = append(entries, compiled{value: entry.value, pattern: regexp.MustCompile(expr)})
	}
	return func(text string) (Match, bool) {
		folded := strings.Join(textnorm.Words(text), " ")
		for _, entry := range entries {
			if entry.pattern.MatchString(folded) {
				return Match{Value: entry.value}, true
			}
		}
		return Match{}, false
	}
}

func quotePhrases(phrases []string) string {
	quoted := make([]string, 0, len(phrases))
	for _, phrase := range phrases {
		quoted = append(quoted, regexp.QuoteMeta(strings.Join(textnorm.Words(phrase), " ")))
	}
	return strings.Join(quoted, "|")
}

func payloadPatterns(patterns ...*regexp.Regexp) func(text string) (Match, bool) {
	return func(text string) (Match, bool) {
		for _, pattern := range patterns {
			groups := pattern.FindStringSubmatch(text)
			if groups == nil {
				continue
			}
			payload := strings.TrimSpace(groups[len(groups)-1])
			if payload == "" {
				continue
			}
			return Match{Payload: payload}, true
		}
		return Match{}, false
	}
}
