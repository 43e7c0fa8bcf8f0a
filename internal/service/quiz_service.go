package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"quizpicks/internal/model"
	"quizpicks/internal/repository"
)

var (
	ErrNoResponses         = errors.New("no responses found for this date")
	ErrInvalidQuestionType = errors.New("question type must be single_choice or multi_choice")
)

// QuestionService manages the quiz
type QuestionService struct {
	repo repository.QuestionRepo
}

// NewQuestionService creates a new question service
func NewQuestionService(repo repository.QuestionRepo) *QuestionService {
	return &QuestionService{repo: repo}
}

// List returns the quiz in id order
func (s *QuestionService) List(ctx context.Context) ([]model.Question, error) {
	qs, err := s.repo.ListQuestions(ctx)
	if err != nil {
		return nil, err
	}
	if qs == nil {
		qs = []model.Question{}
	}
	return qs, nil
}

// Create adds a question and returns its id
func (s *QuestionService) Create(ctx context.Context, req model.CreateQuestionRequest) (string, error) {
	if !req.Type.Valid() {
		return "", ErrInvalidQuestionType
	}
	return s.repo.AddQuestion(ctx, model.Question{Prompt: req.Prompt, Type: req.Type, Options: req.Options})
}

// ResponseService stores quiz answers
type ResponseService struct {
	repo repository.ResponseRepo
}

// NewResponseService creates a new response service
func NewResponseService(repo repository.ResponseRepo) *ResponseService {
	return &ResponseService{repo: repo}
}

// Submit upserts every answer; a later answer to the same question wins
func (s *ResponseService) Submit(ctx context.Context, req model.SubmitResponsesRequest) error {
	for _, a := range req.Answers {
		if err := s.repo.SaveResponse(ctx, req.UserID, req.ResponseDate, a); err != nil {
			return fmt.Errorf("save answer %s: %w", a.QuestionID, err)
		}
	}
	return nil
}

// QueryService turns a day's answers into search queries
type QueryService struct {
	repo       repository.ResponseRepo
	llm        *LLMClient
	maxQueries int
	log        *zap.Logger
}

// NewQueryService creates a new query service
func NewQueryService(repo repository.ResponseRepo, llm *LLMClient, maxQueries int, log *zap.Logger) *QueryService {
	if maxQueries <= 0 {
		maxQueries = 6
	}
	return &QueryService{repo: repo, llm: llm, maxQueries: maxQueries, log: log.Named("queries")}
}

// Generate builds and stores at most maxQueries queries for the session
func (s *QueryService) Generate(ctx context.Context, req model.GenerateQueriesRequest) ([]string, error) {
	responses, err := s.repo.ListResponses(ctx, req.UserID, req.ResponseDate)
	if err != nil {
		return nil, err
	}
	if len(responses) == 0 {
		return nil, ErrNoResponses
	}

	queries, err := s.llm.GenerateQueries(ctx, QueryPrompt{
		Responses:       FormatResponses(responses),
		BuyerAttributes: req.BuyerAttributes,
		GenderAffinity:  req.GenderAffinity,
		MaxQueries:      s.maxQueries,
	})
	if err != nil {
		return nil, fmt.Errorf("generate queries: %w", err)
	}
	if err := s.repo.SaveQueries(ctx, req.UserID, req.ResponseDate, queries); err != nil {
		return nil, fmt.Errorf("store queries: %w", err)
	}

	s.log.Info("generated search queries",
		zap.String("user_id", req.UserID),
		zap.Int("count", len(queries)))
	return queries, nil
}

// FormatResponses keys each answer by its snake-cased prompt
func FormatResponses(responses []model.StoredResponse) map[string]any {
	out := make(map[string]any, len(responses))
	for _, r := range responses {
		key := "question_" + r.QuestionID
		if r.Prompt != "" {
			key = spacePattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(r.Prompt)), "_")
		}
		out[key] = r.Value.Native()
	}
	return out
}
