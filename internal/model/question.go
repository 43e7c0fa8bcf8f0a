package model

// QuestionType defines the type of quiz question
type QuestionType string

const (
	QuestionTypeSingleChoice QuestionType = "single_choice"
	QuestionTypeMultiChoice  QuestionType = "multi_choice"
)

// Valid reports whether t is a supported question type
func (t QuestionType) Valid() bool {
	return t == QuestionTypeSingleChoice || t == QuestionTypeMultiChoice
}

// Question is a quiz question shown before product discovery
type Question struct {
	ID      string       `json:"id" bson:"_id"`
	Prompt  string       `json:"prompt" bson:"prompt"`
	Type    QuestionType `json:"type" bson:"type"`
	Options []string     `json:"options" bson:"options"`
}

// CreateQuestionRequest is the body of POST /questions
type CreateQuestionRequest struct {
	Prompt  string       `json:"prompt" validate:"required"`
	Type    QuestionType `json:"type" validate:"required,oneof=single_choice multi_choice"`
	Options []string     `json:"options" validate:"required,min=1,dive,required"`
}

// DefaultQuestions is the stock quiz used by cmd/seed and fresh memory stores
func DefaultQuestions() []Question {
	return []Question{
		{
			Prompt:  "How are you feeling today?",
			Type:    QuestionTypeSingleChoice,
			Options: []string{"Energized", "Relaxed", "Adventurous", "Cozy"},
		},
		{
			Prompt:  "Which style speaks to you most?",
			Type:    QuestionTypeSingleChoice,
			Options: []string{"Minimalist", "Streetwear", "Classic", "Bohemian"},
		},
		{
			Prompt:  "Which colors are you drawn to?",
			Type:    QuestionTypeMultiChoice,
			Options: []string{"Neutrals", "Earth tones", "Pastels", "Bold brights", "Monochrome"},
		},
		{
			Prompt:  "What's your budget for a single item?",
			Type:    QuestionTypeSingleChoice,
			Options: []string{"Under $25", "$25-$75", "$75-$150", "$150+"},
		},
		{
			Prompt:  "What are you shopping for?",
			Type:    QuestionTypeSingleChoice,
			Options: []string{"Everyday wear", "Work", "A night out", "Travel", "A gift"},
		},
		{
			Prompt:  "How do you like your clothes to fit?",
			Type:    QuestionTypeSingleChoice,
			Options: []string{"Relaxed", "Tailored", "Oversized", "Stretchy"},
		},
	}
}
