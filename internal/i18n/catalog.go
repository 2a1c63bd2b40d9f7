// Package i18n holds the canned, localized texts the engine sends: greeting,
// language prompt, onboarding intro and completion, escalation notices, and
// failure apologies. One catalog, keyed by message id and language, replaces
// the per-revision greeting strings that used to drift apart.
package i18n

// Message ids.
const (
	Greeting           = "greeting"
	LanguagePrompt     = "language_prompt"
	OnboardingIntro    = "onboarding_intro"
	OnboardingComplete = "onboarding_complete"
	EscalationNotice   = "escalation_notice"
	NoCounsellor       = "no_counsellor"
	GenerationFailure  = "generation_failure"
	DeliveryFailure    = "delivery_failure"
)

var catalog = map[string]map[string]string{
	Greeting: {
		"en": "Hello bestie, welcome to aunty queen connect. I'm your good friend AWAA and I'm here to listen to, and share truthful, judgment-free information about safe abortion and reproductive health with you.\nFeel free to ask me anything. It's private, safe, and always with care.",
		"fr": "Bonjour ma belle, bienvenue sur aunty queen connect. Je suis AWAA, votre amie, et je suis là pour vous écouter et partager des informations honnêtes et sans jugement sur l'avortement sécurisé et la santé reproductive.\nPosez-moi toutes vos questions. C'est privé, sûr, et toujours avec bienveillance.",
	},
	LanguagePrompt: {
		"en": "Which language would you like to chat in? Reply \"English\" or \"Français\".",
		"fr": "Dans quelle langue souhaitez-vous discuter ? Répondez \"English\" ou \"Français\".",
	},
	OnboardingIntro: {
		"en": "Before we chat, I'd love to know you a little better. A few quick questions; you can reply \"skip\" to any optional one.",
		"fr": "Avant de discuter, j'aimerais mieux vous connaître. Quelques questions rapides ; répondez \"passer\" pour sauter une question facultative.",
	},
	OnboardingComplete: {
		"en": "Thank you! That's everything. You can now ask me anything about safe abortion and reproductive health.",
		"fr": "Merci ! C'est tout. Vous pouvez maintenant me poser toutes vos questions sur l'avortement sécurisé et la santé reproductive.",
	},
	EscalationNotice: {
		"en": "I'm connecting you with one of our counsellors. They will continue this conversation with you shortly.",
		"fr": "Je vous mets en relation avec l'un de nos conseillers. Il poursuivra cette conversation avec vous très bientôt.",
	},
	NoCounsellor: {
		"en": "All our counsellors are busy right now, but your request has been noted and someone will reach out as soon as possible.",
		"fr": "Tous nos conseillers sont occupés pour le moment, mais votre demande a été enregistrée et quelqu'un vous contactera dès que possible.",
	},
	GenerationFailure: {
		"en": "Sorry, I couldn't process your request just now. Please try again in a moment.",
		"fr": "Désolée, je n'ai pas pu traiter votre demande. Veuillez réessayer dans un instant.",
	},
	DeliveryFailure: {
		"en": "Sorry, something went wrong on our side. Please send your message again.",
		"fr": "Désolée, une erreur s'est produite de notre côté. Veuillez renvoyer votre message.",
	},
}

// T returns the text for a message id in the given language, falling back
// to English. Unknown ids return the empty string; callers pass constants,
// so that is a programming error surfaced loudly in tests.
func T(id, lang string) string {
	byLang, ok := catalog[id]
	if !ok {
		return ""
	}
	if msg, ok := byLang[lang]; ok {
		return msg
	}
	return byLang["en"]
}
