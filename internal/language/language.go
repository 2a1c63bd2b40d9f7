// Package language resolves which conversation language a user wants.
//
// Resolution order during language selection mirrors what users actually
// send: a structured button reply carrying a language id, then an explicit
// keyword ("english", "français"), then the pluggable Detector; when none
// of those fire the resolver reports "" and the conversation re-asks.
// Detected codes are normalized against the
// supported set with golang.org/x/text's matcher so regional variants
// (fr-CA, en-GB) land on the right catalog language.
package language

import (
	"strings"

	"golang.org/x/text/language"
)

// Detector guesses a language code from free text. Implementations return
// the empty string when they cannot tell; the resolver applies the default.
type Detector interface {
	Detect(text string) string
}

// keywords map explicit selection words to a language code.
var keywords = map[string]string{
	"english":   "en",
	"anglais":   "en",
	"en":        "en",
	"french":    "fr",
	"francais":  "fr",
	"français":  "fr",
	"fr":        "fr",
	"swahili":   "sw",
	"kiswahili": "sw",
	"sw":        "sw",
}

// Resolver normalizes language choices against the supported set.
type Resolver struct {
	supported []language.Tag
	codes     []string
	def       string
	matcher   language.Matcher
	detector  Detector
}

// NewResolver builds a resolver over the supported ISO codes. The default
// code must be part of the supported set; it doubles as the fallback for
// anything the matcher cannot place.
func NewResolver(supported []string, def string, det Detector) *Resolver {
	tags := make([]language.Tag, 0, len(supported))
	for _, code := range supported {
		tags = append(tags, language.Make(code))
	}
	return &Resolver{
		supported: tags,
		codes:     supported,
		def:       def,
		matcher:   language.NewMatcher(tags),
		detector:  det,
	}
}

// Default returns the fallback language code.
func (r *Resolver) Default() string { return r.def }

// Normalize maps an arbitrary language code onto the supported set,
// returning the default when the code is unknown or too distant.
func (r *Resolver) Normalize(code string) string {
	if code == "" {
		return r.def
	}
	tag, err := language.Parse(code)
	if err != nil {
		return r.def
	}
	_, i, conf := r.matcher.Match(tag)
	if conf == language.No {
		return r.def
	}
	return r.codes[i]
}

// Resolve picks the user's language from a language-selection reply.
// structuredID is the machine id of a button reply ("lang:fr"), empty when
// the user typed free text. Returns "" when nothing in the reply carries a
// language signal; the caller decides whether to re-ask or default.
func (r *Resolver) Resolve(structuredID, text string) string {
	if structuredID != "" {
		if code, ok := strings.CutPrefix(structuredID, "lang:"); ok {
			return r.Normalize(code)
		}
	}
	lowered := strings.ToLower(strings.TrimSpace(text))
	if code, ok := keywords[lowered]; ok {
		return r.Normalize(code)
	}
	// keyword may be embedded ("English please")
	for _, word := range strings.Fields(lowered) {
		if code, ok := keywords[strings.Trim(word, ".,!?")]; ok {
			return r.Normalize(code)
		}
	}
	if r.detector != nil {
		if code := r.detector.Detect(text); code != "" {
			return r.Normalize(code)
		}
	}
	return ""
}

// Detect runs the detector directly (used for the very first inbound
// message, before the user has been asked anything).
func (r *Resolver) Detect(text string) string {
	if r.detector != nil {
		if code := r.detector.Detect(text); code != "" {
			return r.Normalize(code)
		}
	}
	return r.def
}
