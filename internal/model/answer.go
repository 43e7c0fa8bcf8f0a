package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// AnswerValue holds one quiz answer: a number, a single string or a list of strings.
// Exactly one of the three forms is set on a decoded value.
type AnswerValue struct {
	Number  *float64
	Text    *string
	Choices []string
}

// NumberAnswer builds a numeric answer
func NumberAnswer(n float64) AnswerValue {
	return AnswerValue{Number: &n}
}

// TextAnswer builds a single-choice or free text answer
func TextAnswer(s string) AnswerValue {
	return AnswerValue{Text: &s}
}

// ChoicesAnswer builds a multi-choice answer
func ChoicesAnswer(choices ...string) AnswerValue {
	if choices == nil {
		choices = []string{}
	}
	return AnswerValue{Choices: choices}
}

// IsZero reports whether no form is set
func (v AnswerValue) IsZero() bool {
	return v.Number == nil && v.Text == nil && v.Choices == nil
}

// String renders the answer for prompts and logs
func (v AnswerValue) String() string {
	switch {
	case v.Number != nil:
		return strconv.FormatFloat(*v.Number, 'f', -1, 64)
	case v.Text != nil:
		return *v.Text
	case v.Choices != nil:
		return strings.Join(v.Choices, ", ")
	}
	return ""
}

// Native returns the answer as float64, string or []string, nil when unset
func (v AnswerValue) Native() any {
	switch {
	case v.Number != nil:
		return *v.Number
	case v.Text != nil:
		return *v.Text
	case v.Choices != nil:
		return v.Choices
	}
	return nil
}

func (v AnswerValue) MarshalJSON() ([]byte, error) {
	switch {
	case v.Number != nil:
		return json.Marshal(*v.Number)
	case v.Text != nil:
		return json.Marshal(*v.Text)
	case v.Choices != nil:
		return json.Marshal(v.Choices)
	}
	return []byte("null"), nil
}

func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	*v = AnswerValue{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		v.Text = &s
	case '[':
		var choices []string
		if err := json.Unmarshal(trimmed, &choices); err != nil {
			return fmt.Errorf("answer list must contain strings: %w", err)
		}
		if choices == nil {
			choices = []string{}
		}
		v.Choices = choices
	default:
		var n float64
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return fmt.Errorf("answer must be a number, string or string list: %w", err)
		}
		v.Number = &n
	}
	return nil
}

// QuizAnswer is one answer keyed by question identity
type QuizAnswer struct {
	QuestionID string      `json:"qid" validate:"required"`
	Value      AnswerValue `json:"answer"`
}

// StoredResponse is a persisted answer joined with its question prompt
type StoredResponse struct {
	UserID       string      `json:"user_id"`
	ResponseDate string      `json:"response_date"`
	QuestionID   string      `json:"qid"`
	Prompt       string      `json:"prompt,omitempty"`
	Value        AnswerValue `json:"answer"`
}

// SubmitResponsesRequest is the body of POST /responses
type SubmitResponsesRequest struct {
	UserID       string       `json:"user_id" validate:"required"`
	ResponseDate string       `json:"response_date" validate:"required"`
	Answers      []QuizAnswer `json:"answers" validate:"required,dive"`
}
