// Package validator rejects malformed utterances before a turn runs.
package validator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sweetpotato0/studybuddy/errors"
	"github.com/sweetpotato0/studybuddy/middleware"
)

// DefaultMaxChars bounds an utterance.
const DefaultMaxChars = 8000

// ValidatorFunc validates input
type ValidatorFunc func(string) error

// NonEmpty rejects blank input.
func NonEmpty(input string) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("%w: message must not be empty", errors.ErrInvalidInput)
	}
	return nil
}

// MaxChars rejects input longer than n characters.
func MaxChars(n int) ValidatorFunc {
	return func(input string) error {
		if n > 0 && utf8.RuneCountInString(input) > n {
			return fmt.Errorf("%w: message exceeds %d characters", errors.ErrInvalidInput, n)
		}
		return nil
	}
}

// InputValidator validates input
type InputValidator struct {
	validators []ValidatorFunc
}

// NewInputValidator creates an input validation middleware. With no
// validators it applies NonEmpty and MaxChars(DefaultMaxChars).
func NewInputValidator(validators ...ValidatorFunc) *InputValidator {
	if len(validators) == 0 {
		validators = []ValidatorFunc{NonEmpty, MaxChars(DefaultMaxChars)}
	}
	return &InputValidator{validators: validators}
}

// Name returns the middleware name
func (m *InputValidator) Name() string {
	return "InputValidator"
}

// Execute validates the input
func (m *InputValidator) Execute(ctx *middleware.Context, next middleware.Handler) error {
	for _, validate := range m.validators {
		if validate == nil {
			continue
		}
		if err := validate(ctx.Input); err != nil {
			return err
		}
	}
	return next(ctx)
}
