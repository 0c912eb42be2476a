package model

// Gift is a reward that can be requested in exchange for Score points.
type Gift struct {
	ID      int64   `json:"id,omitempty"`
	Name    string  `json:"name"`
	Image   string  `json:"image,omitempty"`
	Score   float64 `json:"score"`
	Enabled *bool   `json:"enabled,omitempty"`
}

func (g Gift) IsEnabled() bool {
	return g.Enabled == nil || *g.Enabled
}

// Bool returns a pointer to b, for the optional Enabled fields.
func Bool(b bool) *bool {
	return &b
}
