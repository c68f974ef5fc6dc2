package domain

// PlannedQuestion carries the metadata the quiz UI and the adaptive
// controller need about a planned question
type PlannedQuestion struct {
	ID            string     `json:"id"`
	Law           string     `json:"law"`
	ArticleNumber string     `json:"article_number"`
	Difficulty    Difficulty `json:"difficulty"`
	NeverSeen     bool       `json:"never_seen"`
	TimesFailed   int        `json:"times_failed,omitempty"`
}

// SessionPlan is the ordered result of a selection. Questions never holds
// duplicates and its length is min(Requested, Available). Adaptive plans also
// split the same ids into ActiveWindow and Pool.
type SessionPlan struct {
	SessionID string        `json:"session_id"`
	Mode      SelectionMode `json:"mode"`
	Seed      int64         `json:"seed"`

	Requested int `json:"requested"`
	Available int `json:"available"`
	Delivered int `json:"delivered"`

	Questions []string          `json:"questions"`
	Details   []PlannedQuestion `json:"details,omitempty"`

	Adaptive     bool     `json:"adaptive"`
	ActiveWindow []string `json:"active_window,omitempty"`
	Pool         []string `json:"pool,omitempty"`
}

// Empty reports the "no questions available under this configuration" outcome
func (p SessionPlan) Empty() bool {
	return p.Delivered == 0
}
