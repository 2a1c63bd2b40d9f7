package questions

func intp(n int) *int { return &n }

// Default returns the built-in intake questionnaire, used when no question
// set file is configured. Keys map onto the user profile columns.
func Default() *Set {
	s := &Set{
		Questions: []Question{
			{
				Key:   "age",
				Field: "age",
				Prompt: map[string]string{
					"en": "To get started, how old are you?",
					"fr": "Pour commencer, quel âge avez-vous ?",
				},
				Constraint: Constraint{Kind: KindNumber, Min: intp(10), Max: intp(100)},
			},
			{
				Key:   "gender",
				Field: "gender",
				Prompt: map[string]string{
					"en": "How do you identify? You can reply \"skip\" if you'd rather not say.",
					"fr": "Comment vous identifiez-vous ? Répondez \"passer\" si vous préférez ne pas le dire.",
				},
				Options: map[string][]string{
					"en": {"Female", "Male", "Other"},
					"fr": {"Femme", "Homme", "Autre"},
				},
				Optional:   true,
				Constraint: Constraint{Kind: KindChoice, AllowFreeText: true},
			},
			{
				Key:   "location",
				Field: "location",
				Prompt: map[string]string{
					"en": "Which town or region are you reaching out from? Reply \"skip\" to continue.",
					"fr": "De quelle ville ou région nous écrivez-vous ? Répondez \"passer\" pour continuer.",
				},
				Optional:   true,
				Constraint: Constraint{Kind: KindText, MaxLen: 120},
			},
		},
	}
	// built-in set is static; a failure here is a programming error
	if err := s.init(); err != nil {
		panic(err)
	}
	return s
}
