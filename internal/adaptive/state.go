package adaptive

import "github.com/felixgeelhaar/temario/internal/domain"

// Phase is the lifecycle stage of an adaptive session
type Phase string

const (
	PhaseWarming   Phase = "warming"
	PhaseAdjusting Phase = "adjusting"
	PhaseSteady    Phase = "steady"
	PhaseCompleted Phase = "completed"
)

// Bias is the direction the pool is currently pushed towards
type Bias string

const (
	BiasNone   Bias = "none"
	BiasHarder Bias = "harder"
	BiasEasier Bias = "easier"
)

// Item is a planned question as the controller sees it
type Item struct {
	ID         string            `json:"id"`
	Difficulty domain.Difficulty `json:"difficulty"`
}

// Answer is an accepted result
type Answer struct {
	QuestionID string            `json:"question_id"`
	Correct    bool              `json:"correct"`
	Difficulty domain.Difficulty `json:"difficulty"`
	Sequence   int               `json:"sequence"`
}

// Result is the outcome of the question at the head of the active window.
// Sequence is optional; when set it must be the next answer number.
type Result struct {
	QuestionID string `json:"question_id"`
	Correct    bool   `json:"last_result"`
	Sequence   int    `json:"sequence,omitempty"`
}

// State is the full adaptive session state. It is a value: Advance returns a
// new State and never mutates its input.
type State struct {
	Phase        Phase             `json:"phase"`
	Bias         Bias              `json:"bias"`
	Target       domain.Difficulty `json:"target_difficulty,omitempty"`
	Accuracy     float64           `json:"accuracy"`
	WindowSize   int               `json:"window_size"`
	ActiveWindow []Item            `json:"active_window"`
	Pool         []Item            `json:"pool"`
	Answers      []Answer          `json:"answers"`
}

// Next returns the id of the question to present, or "" once completed
func (s State) Next() string {
	if s.Phase == PhaseCompleted || len(s.ActiveWindow) == 0 {
		return ""
	}
	return s.ActiveWindow[0].ID
}

// Answered returns the number of accepted answers
func (s State) Answered() int {
	return len(s.Answers)
}

// Remaining returns the number of questions not answered yet
func (s State) Remaining() int {
	return len(s.ActiveWindow) + len(s.Pool)
}

// Completed reports whether the session reached its terminal phase
func (s State) Completed() bool {
	return s.Phase == PhaseCompleted
}

// Clone returns a deep copy of the state
func (s State) Clone() State {
	out := s
	out.ActiveWindow = append([]Item{}, s.ActiveWindow...)
	out.Pool = append([]Item{}, s.Pool...)
	out.Answers = append([]Answer{}, s.Answers...)
	return out
}

// ItemsFromPlan pairs the plan's ordered ids with their difficulty
func ItemsFromPlan(plan domain.SessionPlan) []Item {
	items := make([]Item, 0, len(plan.Details))
	for _, d := range plan.Details {
		items = append(items, Item{ID: d.ID, Difficulty: d.Difficulty})
	}
	return items
}
