package session

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizpicks/internal/model"
	"quizpicks/internal/ranking"
)

func rankedList(ids ...string) []model.RankedProduct {
	ps := make([]model.Product, len(ids))
	for i, id := range ids {
		ps[i] = model.Product{ProductID: id}
	}
	return ranking.PassThrough(ps, nil, "r")
}

func TestMergeKeepsFirstOccurrence(t *testing.T) {
	a := []model.Product{{ProductID: "1", Title: "first"}, {ProductID: ""}, {ProductID: "2"}}
	b := []model.Product{{ProductID: "2", Title: "later"}, {ProductID: "3"}, {ProductID: "1"}}

	got := Merge(a, b)

	assert.Equal(t, []string{"1", "2", "3"}, productIDs(got))
	assert.Equal(t, "first", got[0].Title)
	assert.Empty(t, got[1].Title)
}

func TestMergeReturnsFreshSlice(t *testing.T) {
	a := []model.Product{{ProductID: "1"}}
	got := Merge(a, nil)
	got[0].Title = "changed"
	assert.Empty(t, a[0].Title)

	assert.Empty(t, Merge(nil, nil))
}

func TestMergeDedupProperty(t *testing.T) {
	for seed := 0; seed < 50; seed++ {
		var a, b []model.Product
		for i := 0; i < 10; i++ {
			a = append(a, model.Product{ProductID: fmt.Sprintf("p%d", (i*7+seed)%9)})
			b = append(b, model.Product{ProductID: fmt.Sprintf("p%d", (i*5+seed)%13)})
		}
		got := Merge(a, b)

		seen := map[string]bool{}
		for _, p := range got {
			require.False(t, seen[p.ProductID], "duplicate %s", p.ProductID)
			seen[p.ProductID] = true
		}

		var order []string
		first := map[string]bool{}
		for _, p := range append(append([]model.Product{}, a...), b...) {
			if !first[p.ProductID] {
				first[p.ProductID] = true
				order = append(order, p.ProductID)
			}
		}
		assert.Equal(t, order, productIDs(got))
	}
}

func TestReducerBasicActions(t *testing.T) {
	s := NewState("u1", "2026-10-17")
	s = Reduce(s, SetQuestions{Questions: []model.Question{{ID: "1"}, {ID: "2"}}})
	s = Reduce(s, SetAnswer{QuestionID: "1", Value: model.TextAnswer("Cozy")})
	s = Reduce(s, SetAnswer{QuestionID: "1", Value: model.TextAnswer("Relaxed")})
	s = Reduce(s, SetQueries{Queries: []string{"q1"}})
	s = Reduce(s, SetLoading{Key: LoadingSearch, Value: true})
	s = Reduce(s, SetError{Message: "oops"})
	s = Reduce(s, SetScreen{Screen: ScreenLoading})
	s = Reduce(s, SetOffset{Offset: 20})
	s = Reduce(s, SetHasMore{HasMore: true})

	assert.Len(t, s.Questions, 2)
	assert.Equal(t, "Relaxed", s.Answers["1"].String())
	assert.Equal(t, []string{"q1"}, s.GeneratedQueries)
	assert.True(t, s.IsLoading(LoadingSearch))
	assert.False(t, s.IsLoading(LoadingReplenish))
	assert.Equal(t, "oops", s.Error)
	assert.Equal(t, ScreenLoading, s.Screen)
	assert.Equal(t, 20, s.Offset)
	assert.True(t, s.HasMore)

	s = Reduce(s, SetError{})
	assert.Empty(t, s.Error)
	assert.Equal(t, s, Reduce(s, nil))
}

func TestReducerDoesNotMutatePreviousState(t *testing.T) {
	before := NewState("u1", "d")
	before = Reduce(before, SetRanked{Products: rankedList("a", "b")})

	after := Reduce(before, SetAnswer{QuestionID: "q", Value: model.NumberAnswer(3)})
	after = Reduce(after, ToggleFreeze{ProductID: "a"})
	after = Reduce(after, SetLoading{Key: LoadingStore, Value: true})
	after = Reduce(after, AppendRanked{Products: rankedList("c")})

	assert.Empty(t, before.Answers)
	assert.Empty(t, before.FrozenIDs)
	assert.Empty(t, before.Loading)
	assert.Len(t, before.Ranked, 2)
	assert.Len(t, after.Ranked, 3)
}

func TestSetRankedReplacesAndAppendConcats(t *testing.T) {
	s := Reduce(NewState("u", "d"), SetRanked{Products: rankedList("a", "b")})
	s = Reduce(s, SetRanked{Products: rankedList("x")})
	assert.Equal(t, []string{"x"}, ids(s.Ranked))

	s = Reduce(s, AppendRanked{Products: rankedList("y", "z")})
	assert.Equal(t, []string{"x", "y", "z"}, s.SeenProductIDs())
}

func TestToggleFreeze(t *testing.T) {
	s := Reduce(NewState("u", "d"), ToggleFreeze{ProductID: "a"})
	assert.True(t, s.IsFrozen("a"))
	s = Reduce(s, ToggleFreeze{ProductID: "a"})
	assert.False(t, s.IsFrozen("a"))
}

func TestResetKeepsUser(t *testing.T) {
	s := NewState("u1", "2026-10-16")
	s = Reduce(s, SetRanked{Products: rankedList("a")})
	s = Reduce(s, SetScreen{Screen: ScreenCard})

	next := Reduce(s, Reset{SessionDate: "2026-10-17"})
	assert.Equal(t, "u1", next.UserID)
	assert.Equal(t, "2026-10-17", next.SessionDate)
	assert.Empty(t, next.Ranked)
	assert.Equal(t, ScreenQuiz, next.Screen)

	same := Reduce(s, Reset{})
	assert.Equal(t, "2026-10-16", same.SessionDate)
}

func TestReshuffleFrozenStayInPlace(t *testing.T) {
	// A(frozen), B, C(frozen), D
	s := Reduce(NewState("u", "d"), SetRanked{Products: rankedList("A", "B", "C", "D")})
	s = Reduce(s, ToggleFreeze{ProductID: "A"})
	s = Reduce(s, ToggleFreeze{ProductID: "C"})

	sawSwap := false
	for seed := int64(0); seed < 64; seed++ {
		got := ids(Reduce(s, ReshuffleUnfrozen{Seed: seed}).Ranked)
		require.Equal(t, "A", got[0])
		require.Equal(t, "C", got[2])
		rest := []string{got[1], got[3]}
		sort.Strings(rest)
		require.Equal(t, []string{"B", "D"}, rest)
		if got[1] == "D" {
			sawSwap = true
		}
	}
	assert.True(t, sawSwap, "unfrozen rows never moved")
}

func TestReshufflePreservesMultiset(t *testing.T) {
	all := make([]string, 12)
	for i := range all {
		all[i] = fmt.Sprintf("p%02d", i)
	}
	s := Reduce(NewState("u", "d"), SetRanked{Products: rankedList(all...)})
	for _, id := range []string{"p01", "p05", "p06", "p11"} {
		s = Reduce(s, ToggleFreeze{ProductID: id})
	}

	for seed := int64(1); seed <= 20; seed++ {
		got := Reduce(s, ReshuffleUnfrozen{Seed: seed}).Ranked
		var unfrozen []string
		for i, p := range got {
			if s.IsFrozen(all[i]) {
				assert.Equal(t, all[i], p.ProductID)
				continue
			}
			unfrozen = append(unfrozen, p.ProductID)
		}
		sort.Strings(unfrozen)
		assert.Equal(t, []string{"p00", "p02", "p03", "p04", "p07", "p08", "p09", "p10"}, unfrozen)
	}

	// same seed, same order
	assert.Equal(t,
		ids(Reduce(s, ReshuffleUnfrozen{Seed: 7}).Ranked),
		ids(Reduce(s, ReshuffleUnfrozen{Seed: 7}).Ranked))
	assert.Equal(t, all, ids(s.Ranked))
}

func TestAnswerListFollowsQuestionOrder(t *testing.T) {
	s := NewState("u", "d")
	s = Reduce(s, SetQuestions{Questions: []model.Question{{ID: "2"}, {ID: "1"}}})
	s = Reduce(s, SetAnswer{QuestionID: "1", Value: model.TextAnswer("a")})
	s = Reduce(s, SetAnswer{QuestionID: "z", Value: model.TextAnswer("c")})
	s = Reduce(s, SetAnswer{QuestionID: "2", Value: model.TextAnswer("b")})
	s = Reduce(s, SetAnswer{QuestionID: "y", Value: model.TextAnswer("d")})

	var got []string
	for _, a := range s.AnswerList() {
		got = append(got, a.QuestionID)
	}
	assert.Equal(t, []string{"2", "1", "y", "z"}, got)
}
