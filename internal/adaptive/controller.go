package adaptive

import (
	"fmt"
	"math"

	"github.com/felixgeelhaar/temario/internal/domain"
)

// DefaultWindowSize is used when Init is given no window size
const DefaultWindowSize = 10

// Config tunes the adaptive controller
type Config struct {
	// WarmupAnswers is the number of answers collected before any biasing
	WarmupAnswers int
	// TrailingWindow is the number of recent answers accuracy is computed on
	TrailingWindow int
	// UpperThreshold biases harder when trailing accuracy is above it
	UpperThreshold float64
	// LowerThreshold biases easier when trailing accuracy is below it
	LowerThreshold float64
}

// DefaultConfig returns the default controller tuning
func DefaultConfig() Config {
	return Config{
		WarmupAnswers:  5,
		TrailingWindow: 5,
		UpperThreshold: 0.8,
		LowerThreshold: 0.5,
	}
}

// Controller drives adaptive sessions. It holds no session state.
type Controller struct {
	cfg Config
}

// NewController creates a controller, filling unset tuning with defaults
func NewController(cfg Config) *Controller {
	def := DefaultConfig()
	if cfg.WarmupAnswers < 0 {
		cfg.WarmupAnswers = def.WarmupAnswers
	}
	if cfg.TrailingWindow <= 0 {
		cfg.TrailingWindow = def.TrailingWindow
	}
	if cfg.UpperThreshold <= 0 {
		cfg.UpperThreshold = def.UpperThreshold
	}
	if cfg.LowerThreshold <= 0 {
		cfg.LowerThreshold = def.LowerThreshold
	}
	return &Controller{cfg: cfg}
}

// Config returns the effective tuning
func (c *Controller) Config() Config {
	return c.cfg
}

// Init builds the initial state from the ordered plan. The first windowSize
// items form the active window and the rest the pool. An empty plan starts
// completed.
func (c *Controller) Init(ordered []Item, windowSize int) State {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	split := min(len(ordered), windowSize)

	state := State{
		Phase:        PhaseWarming,
		Bias:         BiasNone,
		WindowSize:   windowSize,
		ActiveWindow: append([]Item{}, ordered[:split]...),
		Pool:         append([]Item{}, ordered[split:]...),
		Answers:      []Answer{},
	}
	if len(state.ActiveWindow) == 0 {
		state.Phase = PhaseCompleted
	}
	return state
}

// Advance records the result for the head of the active window and returns
// the next state. It fails with domain.ErrStateConflict when the result does
// not apply to the current state.
func (c *Controller) Advance(state State, result Result) (State, error) {
	if err := c.check(state, result); err != nil {
		return state, err
	}

	next := state.Clone()
	head := next.ActiveWindow[0]
	next.ActiveWindow = next.ActiveWindow[1:]
	next.Answers = append(next.Answers, Answer{
		QuestionID: head.ID,
		Correct:    result.Correct,
		Difficulty: head.Difficulty,
		Sequence:   len(state.Answers) + 1,
	})

	trailing := c.trailing(next.Answers)
	next.Accuracy = accuracy(trailing)

	if len(next.Answers) <= c.cfg.WarmupAnswers {
		next.Phase = PhaseWarming
	} else {
		bias := c.biasFor(next.Accuracy, state.Bias)
		if bias != state.Bias {
			next.Phase = PhaseAdjusting
		} else {
			next.Phase = PhaseSteady
		}
		next.Bias = bias
		// Inside the band nothing moves: target and pool order stay put
		if c.outsideBand(next.Accuracy) {
			next.Target = targetDifficulty(trailing, bias)
			next.Pool = prefer(next.Pool, next.Target)
		}
	}

	for len(next.ActiveWindow) < next.WindowSize && len(next.Pool) > 0 {
		next.ActiveWindow = append(next.ActiveWindow, next.Pool[0])
		next.Pool = next.Pool[1:]
	}
	if len(next.ActiveWindow) == 0 {
		next.Phase = PhaseCompleted
	}

	return next, nil
}

func (c *Controller) check(state State, result Result) error {
	if state.Phase == PhaseCompleted || len(state.ActiveWindow) == 0 {
		return fmt.Errorf("%w: session is completed", domain.ErrStateConflict)
	}
	for _, a := range state.Answers {
		if a.QuestionID == result.QuestionID {
			return fmt.Errorf("%w: question %s was already answered", domain.ErrStateConflict, result.QuestionID)
		}
	}
	if head := state.ActiveWindow[0].ID; head != result.QuestionID {
		return fmt.Errorf("%w: expected an answer for %s, got %s", domain.ErrStateConflict, head, result.QuestionID)
	}
	if want := len(state.Answers) + 1; result.Sequence != 0 && result.Sequence != want {
		return fmt.Errorf("%w: expected sequence %d, got %d", domain.ErrStateConflict, want, result.Sequence)
	}
	return nil
}

func (c *Controller) trailing(answers []Answer) []Answer {
	if len(answers) <= c.cfg.TrailingWindow {
		return answers
	}
	return answers[len(answers)-c.cfg.TrailingWindow:]
}

// biasFor keeps the current bias while accuracy stays inside the band
func (c *Controller) biasFor(acc float64, current Bias) Bias {
	switch {
	case acc > c.cfg.UpperThreshold:
		return BiasHarder
	case acc < c.cfg.LowerThreshold:
		return BiasEasier
	case current == "":
		return BiasNone
	default:
		return current
	}
}

func (c *Controller) outsideBand(acc float64) bool {
	return acc > c.cfg.UpperThreshold || acc < c.cfg.LowerThreshold
}

func accuracy(answers []Answer) float64 {
	if len(answers) == 0 {
		return 0
	}
	correct := 0
	for _, a := range answers {
		if a.Correct {
			correct++
		}
	}
	return float64(correct) / float64(len(answers))
}

// targetDifficulty is one tier above or below the rounded mean tier of the
// trailing answers
func targetDifficulty(answers []Answer, bias Bias) domain.Difficulty {
	if bias == BiasNone || len(answers) == 0 {
		return ""
	}

	sum, n := 0, 0
	for _, a := range answers {
		if r := a.Difficulty.Rank(); r >= 0 {
			sum += r
			n++
		}
	}
	if n == 0 {
		return ""
	}
	mean := int(math.Round(float64(sum) / float64(n)))

	if bias == BiasHarder {
		return domain.DifficultyFromRank(mean + 1)
	}
	return domain.DifficultyFromRank(mean - 1)
}

// prefer stable-partitions the pool so items of the target difficulty come
// first. Relative order inside each half is preserved.
func prefer(pool []Item, target domain.Difficulty) []Item {
	if target == "" {
		return pool
	}
	out := make([]Item, 0, len(pool))
	for _, it := range pool {
		if it.Difficulty == target {
			out = append(out, it)
		}
	}
	for _, it := range pool {
		if it.Difficulty != target {
			out = append(out, it)
		}
	}
	return out
}
