package engine

type Option struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

type Question struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Options []Option `json:"options"`
}

// PublicOption is what players see before the reveal.
type PublicOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func (q Question) CorrectOptionID() string {
	for _, o := range q.Options {
		if o.IsCorrect {
			return o.ID
		}
	}
	return ""
}

func (q Question) HasOption(id string) bool {
	for _, o := range q.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

func (q Question) Public() []PublicOption {
	out := make([]PublicOption, len(q.Options))
	for i, o := range q.Options {
		out[i] = PublicOption{ID: o.ID, Text: o.Text}
	}
	return out
}
