package bot

import (
	"math/rand"
	"sync"
	"time"

	"github.com/DoyleJ11/quiz-battle-backend/internal/engine"
)

type Config struct {
	MinDelay time.Duration
	Accuracy float64 // probability of picking the correct option
}

func DefaultConfig() Config {
	return Config{MinDelay: 1500 * time.Millisecond, Accuracy: 0.6}
}

// Plan is one scheduled bot answer.
type Plan struct {
	SlotIndex     int
	QuestionIndex int
	OptionID      string
	Delay         time.Duration
}

type Responder struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand
}

func NewResponder(cfg Config, rng *rand.Rand) *Responder {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Responder{cfg: cfg, rng: rng}
}

// Plan picks a delay and an option for every bot slot. Delays land in
// [MinDelay, 0.9*limit] so a bot is never instant and never misses the deadline.
func (r *Responder) Plan(questionIndex int, q engine.Question, botSlots []int, limit time.Duration) []Plan {
	if len(q.Options) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	hi := limit * 9 / 10
	lo := r.cfg.MinDelay
	if lo > hi {
		lo = hi
	}

	plans := make([]Plan, 0, len(botSlots))
	for _, slot := range botSlots {
		delay := lo
		if span := int64(hi - lo); span > 0 {
			delay += time.Duration(r.rng.Int63n(span + 1))
		}
		plans = append(plans, Plan{
			SlotIndex:     slot,
			QuestionIndex: questionIndex,
			OptionID:      r.pick(q),
			Delay:         delay,
		})
	}
	return plans
}

func (r *Responder) pick(q engine.Question) string {
	correct := q.CorrectOptionID()
	if r.rng.Float64() < r.cfg.Accuracy {
		return correct
	}
	var wrong []string
	for _, o := range q.Options {
		if o.ID != correct {
			wrong = append(wrong, o.ID)
		}
	}
	if len(wrong) == 0 {
		return correct
	}
	return wrong[r.rng.Intn(len(wrong))]
}
