package model

// Task is a scorable household activity. Tasks are listed by Type then Score,
// both descending.
type Task struct {
	ID      int64   `json:"id,omitempty"`
	Name    string  `json:"name"`
	Unit    string  `json:"unit"`
	Score   float64 `json:"score"`
	Type    string  `json:"type"`
	Enabled *bool   `json:"enabled,omitempty"`
}

// IsEnabled reports the effective enabled flag. An unset flag counts as enabled.
func (t Task) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}
