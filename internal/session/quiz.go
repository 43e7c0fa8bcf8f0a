package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"quizpicks/internal/model"
)

// Quiz drives the question phase of a session
type Quiz struct {
	store   *Store
	backend QuizBackend
	log     *zap.Logger
}

// NewQuiz creates the quiz controller
func NewQuiz(store *Store, backend QuizBackend, log *zap.Logger) *Quiz {
	if log == nil {
		log = zap.NewNop()
	}
	return &Quiz{store: store, backend: backend, log: log.Named("quiz")}
}

// LoadQuestions fetches the quiz
func (q *Quiz) LoadQuestions(ctx context.Context) error {
	gen := q.store.Generation()
	q.store.DispatchFor(gen, SetLoading{Key: LoadingQuestions, Value: true}, SetError{})

	questions, err := q.backend.GetQuestions(ctx)
	if err != nil {
		q.log.Error("load questions failed", zap.Error(err))
		q.store.DispatchFor(gen,
			SetError{Message: MsgQuestionsLoad},
			SetLoading{Key: LoadingQuestions, Value: false})
		return fmt.Errorf("load questions: %w", err)
	}

	if !q.store.DispatchFor(gen,
		SetQuestions{Questions: questions},
		SetLoading{Key: LoadingQuestions, Value: false},
	) {
		return ErrStaleSession
	}
	return nil
}

// Answer records one answer; a later answer to the same question wins
func (q *Quiz) Answer(questionID string, value model.AnswerValue) {
	q.store.Dispatch(SetAnswer{QuestionID: questionID, Value: value})
}

// Submit persists the answers, generates search queries and moves the
// session to the loading screen. On failure the session stays on the quiz.
func (q *Quiz) Submit(ctx context.Context, buyer map[string]any, genderAffinity string) error {
	gen := q.store.Generation()
	state := q.store.State()
	if !q.store.DispatchFor(gen, SetLoading{Key: LoadingSubmitAnswers, Value: true}, SetError{}) {
		return ErrStaleSession
	}

	fail := func(key LoadingKey, err error) error {
		q.log.Error("submit failed", zap.String("step", string(key)), zap.Error(err))
		q.store.DispatchFor(gen,
			SetError{Message: MsgSubmitFailed},
			SetLoading{Key: key, Value: false})
		return err
	}

	if err := q.backend.SubmitResponses(ctx, state.UserID, state.SessionDate, state.AnswerList()); err != nil {
		return fail(LoadingSubmitAnswers, fmt.Errorf("submit responses: %w", err))
	}
	if !q.store.DispatchFor(gen,
		SetLoading{Key: LoadingSubmitAnswers, Value: false},
		SetLoading{Key: LoadingGenerateQueries, Value: true},
	) {
		return ErrStaleSession
	}

	queries, err := q.backend.GenerateQueries(ctx, model.GenerateQueriesRequest{
		UserID:          state.UserID,
		ResponseDate:    state.SessionDate,
		BuyerAttributes: buyer,
		GenderAffinity:  genderAffinity,
	})
	if err != nil {
		return fail(LoadingGenerateQueries, fmt.Errorf("generate queries: %w", err))
	}

	if !q.store.DispatchFor(gen,
		SetQueries{Queries: queries},
		SetLoading{Key: LoadingGenerateQueries, Value: false},
		SetScreen{Screen: ScreenLoading},
	) {
		return ErrStaleSession
	}
	q.log.Info("queries generated", zap.Int("count", len(queries)))
	return nil
}
