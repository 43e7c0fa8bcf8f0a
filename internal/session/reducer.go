package session

import (
	"math/rand"

	"quizpicks/internal/model"
)

// Action is a state transition. The set is closed: only this package
// defines actions.
type Action interface {
	apply(State) State
}

type (
	SetQuestions struct{ Questions []model.Question }
	SetAnswer    struct {
		QuestionID string
		Value      model.AnswerValue
	}
	SetQueries   struct{ Queries []string }
	SetRanked    struct{ Products []model.RankedProduct }
	AppendRanked struct{ Products []model.RankedProduct }
	ToggleFreeze struct{ ProductID string }
	SetLoading   struct {
		Key   LoadingKey
		Value bool
	}
	// SetError with an empty Message clears the error
	SetError   struct{ Message string }
	SetScreen  struct{ Screen Screen }
	SetOffset  struct{ Offset int }
	SetHasMore struct{ HasMore bool }
	// ReshuffleUnfrozen permutes unfrozen rows; Seed makes it reproducible
	ReshuffleUnfrozen struct{ Seed int64 }
	// Reset starts a new session for the same user. An empty SessionDate
	// keeps the current one.
	Reset struct{ SessionDate string }
)

// Reduce applies a to s and returns the next state. It has no side effects.
func Reduce(s State, a Action) State {
	if a == nil {
		return s
	}
	return a.apply(s)
}

func (a SetQuestions) apply(s State) State {
	s.Questions = append([]model.Question(nil), a.Questions...)
	return s
}

func (a SetAnswer) apply(s State) State {
	answers := make(map[string]model.AnswerValue, len(s.Answers)+1)
	for k, v := range s.Answers {
		answers[k] = v
	}
	answers[a.QuestionID] = a.Value
	s.Answers = answers
	return s
}

func (a SetQueries) apply(s State) State {
	s.GeneratedQueries = append([]string(nil), a.Queries...)
	return s
}

func (a SetRanked) apply(s State) State {
	s.Ranked = append([]model.RankedProduct(nil), a.Products...)
	return s
}

func (a AppendRanked) apply(s State) State {
	ranked := make([]model.RankedProduct, 0, len(s.Ranked)+len(a.Products))
	ranked = append(ranked, s.Ranked...)
	s.Ranked = append(ranked, a.Products...)
	return s
}

func (a ToggleFreeze) apply(s State) State {
	frozen := make(map[string]struct{}, len(s.FrozenIDs)+1)
	for k := range s.FrozenIDs {
		frozen[k] = struct{}{}
	}
	if _, ok := frozen[a.ProductID]; ok {
		delete(frozen, a.ProductID)
	} else {
		frozen[a.ProductID] = struct{}{}
	}
	s.FrozenIDs = frozen
	return s
}

func (a SetLoading) apply(s State) State {
	loading := make(map[LoadingKey]bool, len(s.Loading)+1)
	for k, v := range s.Loading {
		loading[k] = v
	}
	loading[a.Key] = a.Value
	s.Loading = loading
	return s
}

func (a SetError) apply(s State) State {
	s.Error = a.Message
	return s
}

func (a SetScreen) apply(s State) State {
	s.Screen = a.Screen
	return s
}

func (a SetOffset) apply(s State) State {
	s.Offset = a.Offset
	return s
}

func (a SetHasMore) apply(s State) State {
	s.HasMore = a.HasMore
	return s
}

func (a ReshuffleUnfrozen) apply(s State) State {
	s.Ranked = reshuffleUnfrozen(s.Ranked, s.FrozenIDs, rand.New(rand.NewSource(a.Seed)))
	return s
}

func (a Reset) apply(s State) State {
	date := a.SessionDate
	if date == "" {
		date = s.SessionDate
	}
	return NewState(s.UserID, date)
}

// reshuffleUnfrozen keeps frozen rows at their index and Fisher-Yates
// shuffles the rest into the remaining slots.
func reshuffleUnfrozen(ranked []model.RankedProduct, frozen map[string]struct{}, rng *rand.Rand) []model.RankedProduct {
	out := append([]model.RankedProduct(nil), ranked...)

	slots := make([]int, 0, len(out))
	for i, p := range out {
		if _, ok := frozen[p.ProductID]; !ok {
			slots = append(slots, i)
		}
	}

	unfrozen := make([]model.RankedProduct, len(slots))
	for i, idx := range slots {
		unfrozen[i] = out[idx]
	}
	for i := len(unfrozen) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		unfrozen[i], unfrozen[j] = unfrozen[j], unfrozen[i]
	}

	for i, idx := range slots {
		out[idx] = unfrozen[i]
	}
	return out
}
