package model

import (
	"encoding/json"
	"time"
)

// Setting is one backend settings row. Value is opaque JSON.
type Setting struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}
