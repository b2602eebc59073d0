package speech

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// LogProvider is a fallback provider that logs utterances instead of voicing them.
type LogProvider struct {
	Logger *slog.Logger
}

// NewLogProvider creates a new log-only provider.
func NewLogProvider(logger *slog.Logger) *LogProvider {
	return &LogProvider{Logger: logger}
}

// Name returns the provider name.
func (l *LogProvider) Name() string {
	return "log"
}

// Speak logs the utterance and returns a fake utterance ID.
func (l *LogProvider) Speak(u Utterance) (SpeakResult, error) {
	fakeID := uuid.New().String()
	l.Logger.Info("speech: utterance logged (not voiced)",
		"provider", "log",
		"lang", u.Lang,
		"text", u.Text,
		"fake_utterance_id", fakeID,
	)
	return SpeakResult{ProviderUtteranceID: fmt.Sprintf("log-%s", fakeID)}, nil
}
