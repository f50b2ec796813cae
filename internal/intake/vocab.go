package intake

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Phrase sets are matched against the normalized message: lower-cased,
// trimmed, trailing punctuation removed, inner whitespace collapsed.
var (
	defaultCancelPhrases = []string{
		"cancel", "stop", "never mind", "nevermind", "forget it", "abort", "quit",
		"annuler", "annule", "laisse tomber", "oublie", "arrête", "arrete",
	}

	affirmativePhrases = []string{
		"yes", "y", "yeah", "yep", "yup", "ok", "okay", "sure", "please do", "go ahead", "do it",
		"of course", "absolutely", "oui", "ouais", "d'accord", "dac", "volontiers", "bien sûr",
		"bien sur", "vas-y", "allez-y", "c'est parti",
	}

	negativePhrases = []string{
		"no", "n", "nope", "nah", "no thanks", "not now", "don't", "do not",
		"non", "non merci", "pas besoin", "pas maintenant", "surtout pas",
	}

	resolvedPhrases = []string{
		"thanks", "thank you", "it worked", "that worked", "that helped", "it helped", "solved",
		"resolved", "fixed", "perfect", "great", "merci", "ça marche", "ca marche", "c'est bon",
		"résolu", "resolu", "parfait", "ça fonctionne", "ca fonctionne",
	}

	unresolvedPhrases = []string{
		"didn't work", "did not work", "doesn't work", "does not work", "not working", "still",
		"not solved", "not resolved", "no luck", "doesn't help", "didn't help",
		"marche pas", "fonctionne pas", "toujours", "pas résolu", "pas resolu", "ça ne marche",
	}

	distressWords = []string{
		"problem", "issue", "error", "broken", "not working", "doesn't work", "does not work",
		"can't", "cannot", "unable", "bug", "crash", "fail", "down", "stuck", "blocked",
		"problème", "probleme", "souci", "erreur", "panne", "bloqué", "bloque", "marche pas",
		"fonctionne pas", "impossible", "plante", "plantage",
	}

	createPhrases = []string{
		"open a ticket", "create a ticket", "new ticket", "submit a ticket", "raise a ticket",
		"file a ticket", "log a ticket", "open ticket", "create ticket",
		"ouvrir un ticket", "créer un ticket", "creer un ticket", "nouveau ticket",
		"ouvre un ticket", "crée un ticket", "cree un ticket", "déclarer un incident",
	}

	statusWords = []string{"status", "state", "statut", "état", "etat", "où en est", "ou en est"}
)

var (
	trailingPunct = "!?.,;:… "
	ticketNumber  = regexp.MustCompile(`#?(\d+)`)
)

// normalize prepares a message for vocabulary matching.
func normalize(msg string) string {
	msg = strings.ToLower(strings.TrimSpace(msg))
	msg = strings.Trim(msg, trailingPunct)
	msg = strings.ReplaceAll(msg, "’", "'")
	return strings.Join(strings.Fields(msg), " ")
}

// isExactly reports whether the normalized message equals one of phrases.
func isExactly(msg string, phrases []string) bool {
	n := normalize(msg)
	for _, p := range phrases {
		if n == p {
			return true
		}
	}
	return false
}

// startsWith reports whether the normalized message is one of phrases
// or begins with one followed by a word boundary.
func startsWith(msg string, phrases []string) bool {
	n := normalize(msg)
	for _, p := range phrases {
		if n == p {
			return true
		}
		if strings.HasPrefix(n, p) {
			next, _ := firstRune(n[len(p):])
			if !unicode.IsLetter(next) && !unicode.IsDigit(next) {
				return true
			}
		}
	}
	return false
}

// containsAny reports whether one of phrases appears as a whole word
// sequence inside the normalized message.
func containsAny(msg string, phrases []string) bool {
	n := " " + wordsOnly(normalize(msg)) + " "
	for _, p := range phrases {
		if strings.Contains(n, " "+wordsOnly(p)+" ") {
			return true
		}
	}
	return false
}

func wordsOnly(s string) string {
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	}), " ")
}

func firstRune(s string) (rune, bool) {
	for _, r := range s {
		return r, true
	}
	return 0, false
}

// ticketIDIn returns the first number found in msg.
func ticketIDIn(msg string) (int, bool) {
	m := ticketNumber.FindStringSubmatch(msg)
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

type feedback int

const (
	feedbackUnknown feedback = iota
	feedbackPositive
	feedbackNegative
)

// confirmation classifies an answer to "shall I open a ticket?".
func confirmation(msg string) feedback {
	switch {
	case startsWith(msg, negativePhrases):
		return feedbackNegative
	case startsWith(msg, affirmativePhrases):
		return feedbackPositive
	}
	return feedbackUnknown
}

// faqFeedback classifies an answer to "did this solve your problem?".
// Negative phrases win over positive ones ("no, still broken, thanks").
func faqFeedback(msg string) feedback {
	switch {
	case startsWith(msg, negativePhrases) || containsAny(msg, unresolvedPhrases):
		return feedbackNegative
	case startsWith(msg, affirmativePhrases) || containsAny(msg, resolvedPhrases):
		return feedbackPositive
	}
	return feedbackUnknown
}
