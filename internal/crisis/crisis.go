// Package crisis detects high-risk message content with fixed
// regular-expression categories. A match forces escalation regardless of
// what the intent classifier thinks, and selects the canned response sent to
// the user while a counsellor is found.
package crisis

import "regexp"

// Category labels one family of high-risk patterns.
type Category string

// Known categories. Generic is the fallback template key, not a detector.
const (
	SelfHarm          Category = "self_harm"
	MedicalEmergency  Category = "medical_emergency"
	Coercion          Category = "coercion"
	PartnerViolence   Category = "partner_violence"
	MedicationRequest Category = "medication_request"
	Generic           Category = "generic"
)

// patterns are evaluated in order; the first match wins. Case folding is
// done in the expressions themselves so callers pass raw text.
var patterns = []struct {
	category Category
	re       *regexp.Regexp
}{
	{SelfHarm, regexp.MustCompile(`(?i)\b(kill(ing)? myself|end(ing)? (my|it) (life|all)|suicid\w*|hurt(ing)? myself|self[- ]harm|don'?t want to (live|be alive)|no reason to live)\b`)},
	{MedicalEmergency, regexp.MustCompile(`(?i)\b(bleeding (a lot|heavily|won'?t stop)|heavy bleeding|severe (pain|cramps)|can'?t stop (the )?bleeding|high fever|passed? out|unconscious|emergency)\b`)},
	{Coercion, regexp.MustCompile(`(?i)\b(forc(ed|ing) me|being forced|against my will|(he|she|they) (made|is making) me|threaten(ed|ing) me|won'?t let me)\b`)},
	{PartnerViolence, regexp.MustCompile(`(?i)\b((he|she|my (partner|husband|boyfriend)) (hits?|beats?|hurts?) me|(hit|beat|abus\w+) (me|by my)|afraid of (him|her|my partner)|violen(t|ce) at home)\b`)},
	{MedicationRequest, regexp.MustCompile(`(?i)\b(where (can|do) i (get|buy|find) (the )?(pills?|misoprostol|mifepristone|medication)|send me (the )?pills?|give me (a )?(doctor|provider|clinic) (contact|number)|which (clinic|doctor) should i)\b`)},
}

// Detect scans text against every category and returns the first match.
// The second return is false when no pattern matched.
func Detect(text string) (Category, bool) {
	for _, p := range patterns {
		if p.re.MatchString(text) {
			return p.category, true
		}
	}
	return "", false
}

// responses are the canned, localized escalation messages per category.
// A category with no entry falls back to Generic.
var responses = map[Category]map[string]string{
	SelfHarm: {
		"en": "I'm really glad you told me. You matter, and you don't have to face this alone. I'm connecting you with a counsellor right now who can support you.",
		"fr": "Merci de me l'avoir dit. Vous comptez, et vous n'êtes pas seule. Je vous mets en relation avec un conseiller dès maintenant.",
	},
	MedicalEmergency: {
		"en": "This sounds like it may need urgent medical attention. Please seek care at the nearest health facility if you can. I'm also connecting you with a counsellor right now.",
		"fr": "Cela pourrait nécessiter des soins médicaux urgents. Rendez-vous si possible au centre de santé le plus proche. Je vous mets aussi en relation avec un conseiller.",
	},
	PartnerViolence: {
		"en": "I'm sorry you're going through this. Your safety matters. I'm connecting you with a counsellor who can talk it through with you privately.",
		"fr": "Je suis désolée que vous viviez cela. Votre sécurité compte. Je vous mets en relation avec un conseiller pour en parler en toute confidentialité.",
	},
	Generic: {
		"en": "Thank you for sharing that with me. I'm connecting you with a human counsellor who can help; they will reach out shortly.",
		"fr": "Merci de me l'avoir confié. Je vous mets en relation avec un conseiller qui pourra vous aider ; il vous contactera bientôt.",
	},
}

// Response returns the localized canned message for a category, falling back
// to the generic template (and to English) when no closer match exists.
func Response(cat Category, lang string) string {
	byLang, ok := responses[cat]
	if !ok {
		byLang = responses[Generic]
	}
	if msg, ok := byLang[lang]; ok {
		return msg
	}
	return byLang["en"]
}
