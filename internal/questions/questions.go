// Package questions implements the onboarding question engine: a fixed,
// ordered questionnaire with per-question validation and localization.
//
// A Set is an ordered list of questions. Each question has a stable key, a
// localized prompt (plus optional localized options), a constraint, and the
// user profile field its sanitized answer is written to. The engine never
// mutates user state itself; the session state machine owns the cursor and
// persistence. The cursor contract is:
//
//	next := set.Next(currentKey)   // Done sentinel means the flow is finished
//	prompt, opts, _ := set.Render(key, lang)
//	res := set.Validate(answer, key, lang)
//
// Validation failures are recovered locally: the caller re-renders the same
// question with res.Error and does not advance the cursor.
package questions

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
)

// Done is the sentinel returned by Next when the questionnaire is complete.
const Done = "Done"

// Constraint kinds.
const (
	KindNumber = "number"
	KindText   = "text"
	KindChoice = "choice"
)

// skipTokens are the locale-specific literals that skip an optional question.
var skipTokens = map[string][]string{
	"en": {"skip"},
	"fr": {"passer"},
}

// validationMessages are the localized errors re-sent with a question.
var validationMessages = map[string]map[string]string{
	"en": {
		"number":  "Please answer with a number.",
		"range":   "Please answer with a number between %d and %d.",
		"min":     "Please answer with a number of at least %d.",
		"max":     "Please answer with a number of at most %d.",
		"empty":   "Please type an answer.",
		"toolong": "That answer is too long, please shorten it.",
		"pattern": "That doesn't look right, please try again.",
		"choice":  "Please pick one of the listed options.",
	},
	"fr": {
		"number":  "Veuillez répondre par un nombre.",
		"range":   "Veuillez répondre par un nombre entre %d et %d.",
		"min":     "Veuillez répondre par un nombre d'au moins %d.",
		"max":     "Veuillez répondre par un nombre d'au plus %d.",
		"empty":   "Veuillez saisir une réponse.",
		"toolong": "Cette réponse est trop longue, veuillez la raccourcir.",
		"pattern": "Cela ne semble pas correct, veuillez réessayer.",
		"choice":  "Veuillez choisir une des options proposées.",
	},
}

// Constraint describes how an answer is validated.
//
// Kind selects the rule set:
//   - number: integer answer, optional Min/Max bounds.
//   - text: free text, optional MaxLen and Pattern.
//   - choice: answer must match one of the question's options for the
//     user's language (case-insensitive); AllowFreeText accepts anything
//     else as a plain text answer instead.
type Constraint struct {
	Kind          string `yaml:"kind"`
	Min           *int   `yaml:"min,omitempty"`
	Max           *int   `yaml:"max,omitempty"`
	MaxLen        int    `yaml:"max_len,omitempty"`
	Pattern       string `yaml:"pattern,omitempty"`
	AllowFreeText bool   `yaml:"allow_free_text,omitempty"`

	re *regexp.Regexp
}

// Question is one step of the questionnaire.
type Question struct {
	Key        string              `yaml:"key"`
	Field      string              `yaml:"field"`
	Optional   bool                `yaml:"optional,omitempty"`
	Prompt     map[string]string   `yaml:"prompt"`
	Options    map[string][]string `yaml:"options,omitempty"`
	Constraint Constraint          `yaml:"constraint"`
}

// Set is an ordered, validated questionnaire.
type Set struct {
	Questions []Question `yaml:"questions"`

	index map[string]int
}

// Result is the outcome of validating one answer.
type Result struct {
	OK      bool    // answer accepted (or skipped)
	Skipped bool    // answer was a skip token on an optional question
	Error   string  // localized validation error when !OK
	Value   *string // sanitized value to persist when OK && !Skipped
}

// Load reads a question set from a YAML file and validates it.
func Load(path string) (*Set, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Set
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse question set %s: %w", path, err)
	}
	if err := s.init(); err != nil {
		return nil, fmt.Errorf("invalid question set %s: %w", path, err)
	}
	return &s, nil
}

// init builds the key index and compiles patterns.
func (s *Set) init() error {
	if len(s.Questions) == 0 {
		return fmt.Errorf("no questions defined")
	}
	s.index = make(map[string]int, len(s.Questions))
	for i := range s.Questions {
		q := &s.Questions[i]
		if q.Key == "" {
			return fmt.Errorf("question %d has no key", i)
		}
		if q.Key == Done {
			return fmt.Errorf("question key %q collides with the done sentinel", Done)
		}
		if _, dup := s.index[q.Key]; dup {
			return fmt.Errorf("duplicate question key %q", q.Key)
		}
		if len(q.Prompt) == 0 {
			return fmt.Errorf("question %q has no prompt", q.Key)
		}
		switch q.Constraint.Kind {
		case KindNumber, KindText:
		case KindChoice:
			if len(q.Options) == 0 {
				return fmt.Errorf("choice question %q has no options", q.Key)
			}
		default:
			return fmt.Errorf("question %q has unknown constraint kind %q", q.Key, q.Constraint.Kind)
		}
		if p := q.Constraint.Pattern; p != "" {
			re, err := regexp.Compile(p)
			if err != nil {
				return fmt.Errorf("question %q pattern: %w", q.Key, err)
			}
			q.Constraint.re = re
		}
		s.index[q.Key] = i
	}
	return nil
}

// First returns the key of the first question.
func (s *Set) First() string { return s.Questions[0].Key }

// Next returns the key following currentKey, or Done when currentKey is the
// last question. An unknown key restarts the flow at the first question
// rather than stranding the user.
func (s *Set) Next(currentKey string) string {
	i, ok := s.index[currentKey]
	if !ok {
		return s.First()
	}
	if i+1 >= len(s.Questions) {
		return Done
	}
	return s.Questions[i+1].Key
}

// Get returns the question for a key.
func (s *Set) Get(key string) (*Question, bool) {
	i, ok := s.index[key]
	if !ok {
		return nil, false
	}
	return &s.Questions[i], true
}

// Render returns the localized prompt and options for a question. Prompts
// fall back to English when the requested language has no translation.
func (s *Set) Render(key, lang string) (string, []string, error) {
	q, ok := s.Get(key)
	if !ok {
		return "", nil, fmt.Errorf("unknown question key %q", key)
	}
	prompt := localize(q.Prompt, lang)
	var opts []string
	if len(q.Options) > 0 {
		opts = localizeList(q.Options, lang)
	}
	return prompt, opts, nil
}

// Validate checks an answer against the question's constraint. The cursor is
// the caller's concern: an !OK result means "re-ask the same question".
func (s *Set) Validate(answer, key, lang string) Result {
	q, ok := s.Get(key)
	if !ok {
		return Result{Error: localizeMsg("pattern", lang)}
	}
	answer = strings.TrimSpace(answer)

	if q.Optional && isSkip(answer, lang) {
		return Result{OK: true, Skipped: true}
	}
	if answer == "" {
		return Result{Error: localizeMsg("empty", lang)}
	}

	c := q.Constraint
	switch c.Kind {
	case KindNumber:
		n, err := strconv.Atoi(answer)
		if err != nil {
			return Result{Error: localizeMsg("number", lang)}
		}
		switch {
		case c.Min != nil && c.Max != nil && (n < *c.Min || n > *c.Max):
			return Result{Error: fmt.Sprintf(localizeMsg("range", lang), *c.Min, *c.Max)}
		case c.Min != nil && n < *c.Min:
			return Result{Error: fmt.Sprintf(localizeMsg("min", lang), *c.Min)}
		case c.Max != nil && n > *c.Max:
			return Result{Error: fmt.Sprintf(localizeMsg("max", lang), *c.Max)}
		}
		v := strconv.Itoa(n)
		return Result{OK: true, Value: &v}

	case KindChoice:
		for _, opt := range localizeList(q.Options, lang) {
			if strings.EqualFold(answer, opt) {
				v := strings.ToLower(opt)
				return Result{OK: true, Value: &v}
			}
		}
		if c.AllowFreeText {
			v := answer
			return Result{OK: true, Value: &v}
		}
		return Result{Error: localizeMsg("choice", lang)}

	default: // KindText
		if c.MaxLen > 0 && len([]rune(answer)) > c.MaxLen {
			return Result{Error: localizeMsg("toolong", lang)}
		}
		if c.re != nil && !c.re.MatchString(answer) {
			return Result{Error: localizeMsg("pattern", lang)}
		}
		v := answer
		return Result{OK: true, Value: &v}
	}
}

func isSkip(answer, lang string) bool {
	tokens, ok := skipTokens[lang]
	if !ok {
		tokens = skipTokens["en"]
	}
	for _, t := range tokens {
		if strings.EqualFold(answer, t) {
			return true
		}
	}
	return false
}

func localize(m map[string]string, lang string) string {
	if v, ok := m[lang]; ok {
		return v
	}
	return m["en"]
}

func localizeList(m map[string][]string, lang string) []string {
	if v, ok := m[lang]; ok {
		return v
	}
	return m["en"]
}

func localizeMsg(key, lang string) string {
	msgs, ok := validationMessages[lang]
	if !ok {
		msgs = validationMessages["en"]
	}
	return msgs[key]
}
