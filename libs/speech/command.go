package speech

import (
	"fmt"
	"os/exec"

	"github.com/google/uuid"
)

// CommandProvider voices utterances by shelling out to a local TTS binary,
// for example espeak-ng. The binary is invoked as:
//
//	<binary> -v <lang> <text>
type CommandProvider struct {
	binary string
}

// NewCommandProvider creates a provider backed by the given TTS binary.
func NewCommandProvider(binary string) *CommandProvider {
	return &CommandProvider{binary: binary}
}

// Name returns the provider name.
func (c *CommandProvider) Name() string {
	return "command"
}

// Speak runs the TTS binary synchronously and waits for it to finish.
func (c *CommandProvider) Speak(u Utterance) (SpeakResult, error) {
	cmd := exec.Command(c.binary, "-v", u.Lang, u.Text)
	if err := cmd.Run(); err != nil {
		return SpeakResult{}, fmt.Errorf("speech command failed: %w", err)
	}
	return SpeakResult{ProviderUtteranceID: uuid.New().String()}, nil
}
