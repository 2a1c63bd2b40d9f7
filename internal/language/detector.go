package language

import "strings"

// StopwordDetector is the built-in Detector: it counts hits against small
// per-language stopword sets and returns the language with the most hits.
// It is deliberately crude: greetings and one-word messages carry little
// signal, so anything under three characters or with no hits at all returns
// "" and lets the resolver fall back to the default.
type StopwordDetector struct{}

var stopwords = map[string][]string{
	"en": {"the", "and", "you", "are", "is", "what", "how", "hello", "help", "need", "can", "have", "please", "want", "my"},
	"fr": {"le", "la", "les", "et", "vous", "est", "que", "comment", "bonjour", "aide", "besoin", "je", "suis", "mon", "une"},
	"sw": {"na", "ni", "ya", "wa", "habari", "nini", "saidia", "nataka", "mimi", "yangu", "gani", "kwa"},
}

// Detect implements Detector.
func (StopwordDetector) Detect(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 3 {
		return ""
	}
	words := strings.Fields(strings.ToLower(trimmed))
	tokens := make(map[string]struct{}, len(words))
	for _, w := range words {
		tokens[strings.Trim(w, ".,!?;:'\"")] = struct{}{}
	}

	best, bestHits := "", 0
	for code, list := range stopwords {
		hits := 0
		for _, sw := range list {
			if _, ok := tokens[sw]; ok {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = code, hits
		}
	}
	if bestHits == 0 {
		return ""
	}
	return best
}
