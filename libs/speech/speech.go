package speech

// Utterance represents a phrase to speak aloud.
type Utterance struct {
	Text string
	Lang string
}

// SpeakResult contains the response from the provider.
type SpeakResult struct {
	ProviderUtteranceID string
}

// Provider synthesizes speech via a specific backend.
type Provider interface {
	Name() string
	Speak(u Utterance) (SpeakResult, error)
}

// Synthesizer is the top-level entry point for spoken confirmations.
type Synthesizer struct {
	provider    Provider
	defaultLang string
}

// New creates a new Synthesizer with the given provider and default language tag.
func New(provider Provider, defaultLang string) *Synthesizer {
	return &Synthesizer{
		provider:    provider,
		defaultLang: defaultLang,
	}
}

// Speak voices an utterance via the configured provider.
// If u.Lang is empty, the default language tag is used.
func (s *Synthesizer) Speak(u Utterance) (SpeakResult, error) {
	if u.Lang == "" {
		u.Lang = s.defaultLang
	}
	return s.provider.Speak(u)
}

// ProviderName returns the name of the configured provider.
func (s *Synthesizer) ProviderName() string {
	return s.provider.Name()
}
