package rewrite

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInstruction is returned when no edit instruction was given.
	ErrEmptyInstruction = errors.New("please enter instructions for the AI")

	// ErrEmptyTemplate is returned when there is no template content to edit.
	ErrEmptyTemplate = errors.New("no HTML template selected or content is empty")

	// ErrGenerationFailed wraps every failure of the generation backend.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrSaveFailed is returned when valid output could not be persisted.
	ErrSaveFailed = errors.New("failed to save edited template")
)

// InvalidOutputError reports generated text that does not look like HTML.
type InvalidOutputError struct {
	// Diagnostic holds the first 200 characters of the rejected text.
	Diagnostic string
}

func (e *InvalidOutputError) Error() string {
	return fmt.Sprintf("AI response did not seem to be valid HTML. Got: %s...", e.Diagnostic)
}
