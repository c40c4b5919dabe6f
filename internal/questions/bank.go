// Package questions serves ordered question sets to rooms.
package questions

import (
	"context"
	"errors"
	"fmt"

	"github.com/DoyleJ11/quiz-battle-backend/internal/engine"
)

var ErrInvalidQuestion = errors.New("invalid question")

// Bank returns up to count questions of a set, in set order. Fewer than
// count is not an error here; the engine decides whether that is enough.
type Bank interface {
	GetQuestions(ctx context.Context, setRef string, count int) ([]engine.Question, error)
}

// Validate checks that q has an id, text, at least two options with unique
// ids, and exactly one correct option.
func Validate(q engine.Question) error {
	if q.ID == "" || q.Text == "" {
		return fmt.Errorf("%w: missing id or text", ErrInvalidQuestion)
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("%w: %s has fewer than two options", ErrInvalidQuestion, q.ID)
	}
	seen := make(map[string]bool, len(q.Options))
	correct := 0
	for _, o := range q.Options {
		if o.ID == "" || seen[o.ID] {
			return fmt.Errorf("%w: %s has a blank or repeated option id", ErrInvalidQuestion, q.ID)
		}
		seen[o.ID] = true
		if o.IsCorrect {
			correct++
		}
	}
	if correct != 1 {
		return fmt.Errorf("%w: %s has %d correct options", ErrInvalidQuestion, q.ID, correct)
	}
	return nil
}
