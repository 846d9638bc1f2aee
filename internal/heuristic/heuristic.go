// Package heuristic is the deterministic, network-free safety-net
// interpreter. It classifies Brazilian Portuguese text into tasks, notes,
// and reminders with keyword rules; identical (text, reference date) input
// always yields an identical interpretation.
package heuristic

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/amartel/anota/internal/action"
)

// UnknownMessage is returned when no rule matches.
const UnknownMessage = "Não consegui entender o que você quis dizer. Pode reformular?"

// defaultHour is the time of day used when the text carries a date but no
// explicit time.
const defaultHour = 9

var weekdays = map[string]time.Weekday{
	"domingo": time.Sunday,
	"segunda": time.Monday,
	"terça":   time.Tuesday,
	"terca":   time.Tuesday,
	"quarta":  time.Wednesday,
	"quinta":  time.Thursday,
	"sexta":   time.Friday,
	"sábado":  time.Saturday,
	"sabado":  time.Saturday,
}

var (
	// "toda segunda", "todas as terças", "toda sexta-feira"
	weekdayRecurrenceRe = regexp.MustCompile(`\b(?:toda|todas\s+as)\s+(domingos?|segundas?|terças?|tercas?|quartas?|quintas?|sextas?|sábados?|sabados?)(?:-feiras?)?\b`)

	// "lembrar de", "lembrar", "me lembre", "lembre-me" always routes to
	// reminder, overriding task keywords.
	lembrarRe = regexp.MustCompile(`\blembrar(?:\s+de)?\b|\bme\s+lembr[ae]\b|\blembre(?:-me)?\b`)

	diaRe = regexp.MustCompile(`\bdia\s+(\d{1,2})\b`)
	// No \b before "às": RE2 word boundaries are ASCII-only, so a space
	// followed by "à" never sits on one. Groups 1 (hour) and 2 (minutes)
	// stay stable because the boundary alternative is non-capturing.
	timeRe = regexp.MustCompile(`(?:^|\s)[àa]s\s+(\d{1,2})(?:[:h](\d{2})|h)?\b`)
)

var taskKeywords = []string{
	"preciso", "tenho que", "tenho de", "fazer", "comprar", "pagar",
	"enviar", "mandar", "ligar", "marcar", "agendar", "resolver",
	"terminar", "entregar", "buscar",
}

var reminderKeywords = []string{
	"lembrar", "lembre", "lembrete", "não esquecer", "nao esquecer",
	"não posso esquecer", "nao posso esquecer", "avisar", "alarme",
}

var noteKeywords = []string{
	"anotar", "anota", "nota", "registrar", "guardar", "ideia",
	"observação", "observacao",
}

// recurrenceRules maps non-weekday recurrence phrases to rules, checked in
// order (longer phrases first so "todos os dias" wins over "todo dia").
var recurrenceRules = []struct {
	phrase string
	rule   string
}{
	{"todos os dias", action.RecurDaily},
	{"todo dia", action.RecurDaily},
	{"cada dia", action.RecurDaily},
	{"diariamente", action.RecurDaily},
	{"toda semana", action.RecurWeekly},
	{"todas as semanas", action.RecurWeekly},
	{"semanalmente", action.RecurWeekly},
	{"todo mês", action.RecurMonthly},
	{"todo mes", action.RecurMonthly},
	{"mensalmente", action.RecurMonthly},
	{"todo ano", action.RecurYearly},
	{"anualmente", action.RecurYearly},
}

var highPriorityKeywords = []string{
	"urgente", "urgência", "urgencia", "importante", "prioridade alta",
	"alta prioridade", "crítico", "critico", "pra ontem",
}

var lowPriorityKeywords = []string{
	"sem pressa", "quando puder", "quando der", "baixa prioridade",
	"prioridade baixa", "pode esperar",
}

var mediumPriorityKeywords = []string{
	"prioridade média", "prioridade media", "prioridade normal",
}

var stopwords = map[string]struct{}{
	"de": {}, "da": {}, "do": {}, "das": {}, "dos": {}, "para": {},
	"pra": {}, "que": {}, "o": {}, "a": {}, "os": {}, "as": {},
	"um": {}, "uma": {}, "me": {}, "meu": {}, "minha": {}, "no": {},
	"na": {}, "nos": {}, "nas": {}, "em": {}, "com": {}, "e": {},
	"à": {}, "às": {}, "ao": {}, "aos": {},
}

// Interpret classifies text relative to the reference date ref.
// Classification precedence: weekday recurrence, task keywords (unless a
// "lembrar" phrase is present), reminder or recurrence keywords, note
// keywords, unknown. The asymmetry is a contract inherited from the rule
// set's origin and is covered by tests; do not reorder.
func Interpret(text string, ref time.Time) action.Interpretation {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return action.Unknown(UnknownMessage)
	}

	if m := weekdayRecurrenceRe.FindStringSubmatch(lower); m != nil {
		return weeklyReminder(text, lower, m[1], ref)
	}

	hasLembrar := lembrarRe.MatchString(lower)

	if kw := firstKeyword(lower, taskKeywords); kw != "" && !hasLembrar {
		return taskInterpretation(text, lower, ref)
	}

	if hasLembrar || firstKeyword(lower, reminderKeywords) != "" || recurrenceRule(lower) != "" {
		return reminderInterpretation(text, lower, ref)
	}

	if firstKeyword(lower, noteKeywords) != "" {
		return noteInterpretation(text, lower)
	}

	return action.Unknown(UnknownMessage)
}

func weeklyReminder(text, lower, weekdayWord string, ref time.Time) action.Interpretation {
	wd, ok := weekdays[strings.TrimSuffix(weekdayWord, "s")]
	if !ok {
		wd = weekdays[weekdayWord]
	}
	hour, minute := extractTime(lower)
	date := nextWeekday(ref, wd)
	date = time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, ref.Location())

	title := extractTitle(text)
	return action.Interpretation{
		NeedsConfirmation: len([]rune(title)) < 3,
		Type:              action.TypeReminder,
		Reminder: &action.ReminderPayload{
			Title:          title,
			ReminderDate:   date,
			IsRecurring:    true,
			RecurrenceRule: action.RecurWeekly,
		},
		ConfirmationMessage: confirmationMessage(title, "lembrete"),
	}
}

func taskInterpretation(text, lower string, ref time.Time) action.Interpretation {
	title := extractTitle(text)
	payload := &action.TaskPayload{
		Title:    title,
		Priority: extractPriority(lower),
	}
	if date, ok := extractDate(lower, ref); ok {
		hour, minute := extractTime(lower)
		due := time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, ref.Location())
		payload.DueDate = &due
	}
	return action.Interpretation{
		NeedsConfirmation:   len([]rune(title)) < 3,
		Type:                action.TypeTask,
		Task:                payload,
		ConfirmationMessage: confirmationMessage(title, "tarefa"),
	}
}

func reminderInterpretation(text, lower string, ref time.Time) action.Interpretation {
	title := extractTitle(text)
	hour, minute := extractTime(lower)

	date, ok := extractDate(lower, ref)
	if !ok {
		// No explicit date: remind the next day.
		date = ref.AddDate(0, 0, 1)
	}
	when := time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, ref.Location())

	rule := recurrenceRule(lower)
	return action.Interpretation{
		NeedsConfirmation: len([]rune(title)) < 3,
		Type:              action.TypeReminder,
		Reminder: &action.ReminderPayload{
			Title:          title,
			ReminderDate:   when,
			IsRecurring:    rule != "",
			RecurrenceRule: rule,
		},
		ConfirmationMessage: confirmationMessage(title, "lembrete"),
	}
}

func noteInterpretation(text, lower string) action.Interpretation {
	title := extractTitle(text)
	return action.Interpretation{
		NeedsConfirmation: len([]rune(title)) < 3,
		Type:              action.TypeNote,
		Note: &action.NotePayload{
			Title:   title,
			Content: strings.TrimSpace(text),
		},
		ConfirmationMessage: confirmationMessage(title, "nota"),
	}
}

func confirmationMessage(title, kind string) string {
	if len([]rune(title)) < 3 {
		return "Não entendi bem o título. Confirma a criação?"
	}
	return fmt.Sprintf("Criar %s %q?", kind, title)
}

// firstKeyword returns the first keyword found in lower, or "".
func firstKeyword(lower string, keywords []string) string {
	for _, kw := range keywords {
		if containsWord(lower, kw) {
			return kw
		}
	}
	return ""
}

func recurrenceRule(lower string) string {
	for _, rr := range recurrenceRules {
		if strings.Contains(lower, rr.phrase) {
			return rr.rule
		}
	}
	if weekdayRecurrenceRe.MatchString(lower) {
		return action.RecurWeekly
	}
	return ""
}

// containsWord reports whether phrase occurs in lower on word boundaries.
func containsWord(lower, phrase string) bool {
	idx := 0
	for {
		n := strings.Index(lower[idx:], phrase)
		if n < 0 {
			return false
		}
		start := idx + n
		end := start + len(phrase)
		beforeOK := start == 0 || isBoundary(rune(lower[start-1]))
		afterOK := end >= len(lower) || isBoundary(rune(lower[end]))
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isBoundary(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}

// extractDate finds an explicit or relative date in lower.
// "dia N" rolls into the next month (and across a year boundary) when day
// N has already passed this month.
func extractDate(lower string, ref time.Time) (time.Time, bool) {
	if strings.Contains(lower, "depois de amanhã") || strings.Contains(lower, "depois de amanha") {
		return ref.AddDate(0, 0, 2), true
	}
	if strings.Contains(lower, "amanhã") || strings.Contains(lower, "amanha") {
		return ref.AddDate(0, 0, 1), true
	}
	if containsWord(lower, "hoje") {
		return ref, true
	}
	if m := diaRe.FindStringSubmatch(lower); m != nil {
		day, err := strconv.Atoi(m[1])
		if err == nil && day >= 1 && day <= 31 {
			month := ref.Month()
			year := ref.Year()
			if day < ref.Day() {
				month++ // time.Date normalizes month 13 into January next year
			}
			return time.Date(year, month, day, 0, 0, 0, 0, ref.Location()), true
		}
	}
	return time.Time{}, false
}

// extractTime finds an "às Hh[:MM]" pattern; absent, the 09:00 default
// applies.
func extractTime(lower string) (hour, minute int) {
	hour, minute = defaultHour, 0
	m := timeRe.FindStringSubmatch(lower)
	if m == nil {
		return hour, minute
	}
	h, err := strconv.Atoi(m[1])
	if err != nil || h > 23 {
		return hour, minute
	}
	hour = h
	minute = 0
	if m[2] != "" {
		if mm, err := strconv.Atoi(m[2]); err == nil && mm < 60 {
			minute = mm
		}
	}
	return hour, minute
}

func extractPriority(lower string) action.Priority {
	for _, kw := range highPriorityKeywords {
		if strings.Contains(lower, kw) {
			return action.PriorityHigh
		}
	}
	for _, kw := range lowPriorityKeywords {
		if strings.Contains(lower, kw) {
			return action.PriorityLow
		}
	}
	for _, kw := range mediumPriorityKeywords {
		if strings.Contains(lower, kw) {
			return action.PriorityMedium
		}
	}
	return ""
}

// nextWeekday returns the next occurrence of wd strictly after ref.
func nextWeekday(ref time.Time, wd time.Weekday) time.Time {
	days := (int(wd) - int(ref.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return ref.AddDate(0, 0, days)
}

// Phrases removed from the title before stopword filtering: trigger
// keywords, auxiliary lead-ins, recurrence phrases, dates, and times.
// Content verbs like "comprar" or "pagar" stay in the title.
var titleStripRes = func() []*regexp.Regexp {
	patterns := []string{
		weekdayRecurrenceRe.String(),
		lembrarRe.String(),
		diaRe.String(),
		timeRe.String(),
		// No trailing \b: RE2 word boundaries are ASCII-only and "ã" would
		// never sit on one.
		`\bdepois\s+de\s+amanh[ãa]`,
		`\bamanh[ãa]`,
		`\bhoje\b`,
	}
	var phrases []string
	phrases = append(phrases, "preciso", "tenho que", "tenho de")
	phrases = append(phrases, reminderKeywords...)
	phrases = append(phrases, noteKeywords...)
	phrases = append(phrases, highPriorityKeywords...)
	phrases = append(phrases, lowPriorityKeywords...)
	phrases = append(phrases, mediumPriorityKeywords...)
	for _, rr := range recurrenceRules {
		phrases = append(phrases, rr.phrase)
	}
	for _, p := range phrases {
		patterns = append(patterns, `\b`+strings.ReplaceAll(regexp.QuoteMeta(p), ` `, `\s+`)+`\b`)
	}

	res := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		res[i] = regexp.MustCompile(p)
	}
	return res
}()

// extractTitle strips matched keywords, stopwords, and embedded dates and
// times from text, then capitalizes the first letter.
func extractTitle(text string) string {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, re := range titleStripRes {
		lower = re.ReplaceAllString(lower, " ")
	}

	var words []string
	for _, w := range strings.Fields(lower) {
		w = strings.TrimFunc(w, func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSymbol(r) })
		if w == "" {
			continue
		}
		if _, ok := stopwords[w]; ok {
			continue
		}
		words = append(words, w)
	}

	title := strings.Join(words, " ")
	return capitalize(title)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
