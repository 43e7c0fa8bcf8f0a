package session

import (
	"sort"

	"quizpicks/internal/model"
)

// Screen selects which view a front end renders
type Screen string

const (
	ScreenQuiz    Screen = "quiz"
	ScreenLoading Screen = "loading"
	ScreenCard    Screen = "card"
	ScreenFan     Screen = "fan"
	ScreenResults Screen = "results"
)

// LoadingKey names one asynchronous operation with its own busy flag
type LoadingKey string

const (
	LoadingQuestions       LoadingKey = "questions"
	LoadingSubmitAnswers   LoadingKey = "submitAnswers"
	LoadingGenerateQueries LoadingKey = "generateQueries"
	LoadingSearch          LoadingKey = "search"
	LoadingRecommended     LoadingKey = "recommended"
	LoadingStore           LoadingKey = "store"
	LoadingBuildRanking    LoadingKey = "buildRanking"
	LoadingFetchRanking    LoadingKey = "fetchRanking"
	LoadingReplenish       LoadingKey = "replenish"
)

// State is one user session. Values are treated as immutable: the reducer
// always returns fresh maps and slices for the fields it changes.
type State struct {
	UserID           string
	SessionDate      string
	Questions        []model.Question
	Answers          map[string]model.AnswerValue
	GeneratedQueries []string
	Ranked           []model.RankedProduct
	FrozenIDs        map[string]struct{}
	Offset           int
	HasMore          bool
	Loading          map[LoadingKey]bool
	Screen           Screen
	Error            string
}

// NewState returns the initial state of a session
func NewState(userID, sessionDate string) State {
	return State{
		UserID:      userID,
		SessionDate: sessionDate,
		Answers:     map[string]model.AnswerValue{},
		FrozenIDs:   map[string]struct{}{},
		Loading:     map[LoadingKey]bool{},
		Screen:      ScreenQuiz,
	}
}

// IsLoading reports the busy flag for key
func (s State) IsLoading(key LoadingKey) bool {
	return s.Loading[key]
}

// IsFrozen reports whether productID is pinned against reshuffles
func (s State) IsFrozen(productID string) bool {
	_, ok := s.FrozenIDs[productID]
	return ok
}

// SeenProductIDs lists the ids currently in the ranked list, in order
func (s State) SeenProductIDs() []string {
	ids := make([]string, 0, len(s.Ranked))
	for _, p := range s.Ranked {
		ids = append(ids, p.ProductID)
	}
	return ids
}

// AnswerList returns answers ordered by the question list, then any extra keys
func (s State) AnswerList() []model.QuizAnswer {
	out := make([]model.QuizAnswer, 0, len(s.Answers))
	used := make(map[string]struct{}, len(s.Answers))
	for _, q := range s.Questions {
		if v, ok := s.Answers[q.ID]; ok {
			out = append(out, model.QuizAnswer{QuestionID: q.ID, Value: v})
			used[q.ID] = struct{}{}
		}
	}
	extra := make([]string, 0)
	for qid := range s.Answers {
		if _, ok := used[qid]; !ok {
			extra = append(extra, qid)
		}
	}
	sort.Strings(extra)
	for _, qid := range extra {
		out = append(out, model.QuizAnswer{QuestionID: qid, Value: s.Answers[qid]})
	}
	return out
}
