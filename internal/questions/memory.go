package questions

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/DoyleJ11/quiz-battle-backend/internal/engine"
)

var _ Bank = (*Memory)(nil)

type Memory struct {
	sets map[string][]engine.Question
}

func NewMemory(sets map[string][]engine.Question) (*Memory, error) {
	for ref, qs := range sets {
		for _, q := range qs {
			if err := Validate(q); err != nil {
				return nil, fmt.Errorf("set %s: %w", ref, err)
			}
		}
	}
	return &Memory{sets: sets}, nil
}

// LoadFile reads a JSON object of set ref to question list.
func LoadFile(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}
	var sets map[string][]engine.Question
	if err := json.Unmarshal(data, &sets); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return NewMemory(sets)
}

func (m *Memory) GetQuestions(ctx context.Context, setRef string, count int) ([]engine.Question, error) {
	qs, ok := m.sets[setRef]
	if !ok {
		return nil, fmt.Errorf("question set %q: %w", setRef, engine.ErrNotFound)
	}
	if count > len(qs) {
		count = len(qs)
	}
	out := make([]engine.Question, count)
	copy(out, qs[:count])
	return out, nil
}

// Sets exposes the loaded sets so they can seed another bank.
func (m *Memory) Sets() map[string][]engine.Question { return m.sets }
