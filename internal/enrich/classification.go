package enrich

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"quotelens/internal/ai"
)

var (
	ErrInvalidJSON              = errors.New("invalid JSON response from AI")
	ErrIncompleteClassification = errors.New("incomplete classification data")
)

type Classification struct {
	Category    string  `json:"category"`
	Subcategory string  `json:"subcategory"`
	Confidence  float64 `json:"confidence"`
	Error       string  `json:"error,omitempty"`
}

func (c Classification) OK() bool {
	return c.Error == ""
}

// ParseClassification checks the model reply strictly: it must be a JSON
// object with a non-empty string category and a numeric confidence.
func ParseClassification(raw string) (Classification, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(ai.ExtractJSON(raw)), &fields); err != nil {
		return Classification{}, ErrInvalidJSON
	}

	var c Classification
	if !decodeField(fields, "category", &c.Category) || strings.TrimSpace(c.Category) == "" {
		return Classification{}, ErrIncompleteClassification
	}
	if !decodeField(fields, "confidence", &c.Confidence) {
		return Classification{}, ErrIncompleteClassification
	}
	decodeField(fields, "subcategory", &c.Subcategory)
	return c, nil
}

func decodeField(fields map[string]json.RawMessage, key string, dst interface{}) bool {
	raw, ok := fields[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}
