package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizpicks/internal/model"
)

type flowFixture struct {
	store   *Store
	sources *fakeSources
	backend *fakeBackend
	phases  []Phase
}

func newFlow(queries ...string) *flowFixture {
	f := &flowFixture{
		store:   NewStore("shop_user_1", "2026-10-17"),
		sources: &fakeSources{search: map[string][]Snapshot{}},
		backend: newFakeBackend(),
	}
	f.store.Dispatch(SetQueries{Queries: queries}, SetScreen{Screen: ScreenLoading})
	return f
}

func (f *flowFixture) orchestrator(r Ranker, vision bool) *Orchestrator {
	return NewOrchestrator(f.store, f.sources, f.backend, r, OrchestratorOptions{
		Search:      Runner{PageCap: 1, StallTimeout: time.Second},
		Recommended: Runner{PageCap: 1, StallTimeout: time.Second},
		Vision:      vision,
		OnPhase:     func(p Phase) { f.phases = append(f.phases, p) },
	}, nil)
}

func TestSingleQueryOnePageMovesToRecommended(t *testing.T) {
	f := newFlow("red sneakers")
	f.sources.search["red sneakers"] = []Snapshot{page(false, "s1", "s2", "s3")}
	o := f.orchestrator(PassThroughRanker{}, false)

	require.NoError(t, o.Run(context.Background()))

	require.Len(t, f.sources.sources, 2)
	assert.Equal(t, 1, f.sources.sources[0].fetches)
	assert.Equal(t, []string{"red sneakers", "<recommended>"}, f.sources.opened)
	assert.Len(t, o.Accumulated(), 3)
	assert.Equal(t, 1, o.QueryIndex())
	assert.Equal(t, []Phase{PhaseSearch, PhaseRecommended, PhaseRanking, PhaseDone}, f.phases)
	assert.Equal(t, PhaseDone, o.Phase())
	assert.Len(t, f.backend.stored[model.SourceSearch], 3)
	assert.Empty(t, f.backend.stored[model.SourceRecommended])
}

func TestSharedProductAcrossQueriesCountedOnce(t *testing.T) {
	f := newFlow("q1", "q2")
	f.sources.search["q1"] = []Snapshot{page(false, "a", "shared")}
	f.sources.search["q2"] = []Snapshot{page(false, "b", "shared")}
	o := f.orchestrator(PassThroughRanker{}, false)

	require.NoError(t, o.Run(context.Background()))

	assert.Equal(t, []string{"a", "shared", "b"}, productIDs(o.Accumulated()))
	assert.Equal(t, []string{"q1", "q2", "<recommended>"}, f.sources.opened)
	assert.Len(t, f.backend.stored[model.SourceSearch], 3)
}

func TestRankingFailureFallsBackToPassThrough(t *testing.T) {
	f := newFlow("q1")
	f.sources.search["q1"] = []Snapshot{page(false, "a", "b")}
	f.sources.recommended = []Snapshot{page(false, "c", "a")}
	o := f.orchestrator(failingRanker{err: errBoom}, false)

	require.NoError(t, o.Run(context.Background()))

	state := f.store.State()
	assert.Equal(t, []string{"a", "b", "c"}, ids(state.Ranked))
	for i, p := range state.Ranked {
		assert.Equal(t, 1.0, p.Score)
		assert.Equal(t, i+1, p.Rank)
	}
	assert.Equal(t, ScreenCard, state.Screen)
	assert.Equal(t, MsgRankingFailed, state.Error)
	assert.False(t, state.HasMore)
	assert.False(t, state.IsLoading(LoadingBuildRanking))
	assert.False(t, state.IsLoading(LoadingFetchRanking))
}

func TestEmptyQueriesSkipSearch(t *testing.T) {
	f := newFlow()
	f.sources.recommended = []Snapshot{page(false, "r1", "r2")}
	o := f.orchestrator(PassThroughRanker{}, false)

	require.NoError(t, o.Run(context.Background()))

	assert.Equal(t, []string{"<recommended>"}, f.sources.opened)
	assert.Empty(t, f.backend.stored[model.SourceSearch])
	assert.Len(t, f.backend.stored[model.SourceRecommended], 2)
	assert.Equal(t, []string{"r1", "r2"}, f.store.State().SeenProductIDs())
}

func TestSearchErrorsAreSkipped(t *testing.T) {
	f := newFlow("bad", "good")
	f.sources.search["bad"] = []Snapshot{{Err: errBoom}}
	f.sources.search["good"] = []Snapshot{page(false, "g1")}
	f.sources.recommended = []Snapshot{{Err: errBoom}}
	f.backend.storeErr = errBoom
	o := f.orchestrator(PassThroughRanker{}, false)

	require.NoError(t, o.Run(context.Background()))

	state := f.store.State()
	assert.Equal(t, []string{"g1"}, state.SeenProductIDs())
	assert.Empty(t, state.Error)
	assert.Equal(t, ScreenCard, state.Screen)
	assert.Empty(t, state.Loading[LoadingStore])
}

func TestRemoteRankerHydratesFromPool(t *testing.T) {
	f := newFlow("q1")
	f.sources.search["q1"] = []Snapshot{page(false, "a", "b", "c")}
	o := f.orchestrator(RemoteRanker{Backend: f.backend, PageSize: 2}, true)

	require.NoError(t, o.Run(context.Background()))

	state := f.store.State()
	assert.Equal(t, 1, f.backend.buildCalls)
	assert.Equal(t, []string{"a", "b"}, ids(state.Ranked))
	assert.Equal(t, "Item a", state.Ranked[0].Title)
	assert.Equal(t, "19.99", state.Ranked[0].Price)
	assert.Equal(t, 0.9, state.Ranked[0].Score)
	assert.True(t, state.HasMore)
	assert.Equal(t, 2, state.Offset)
	assert.Len(t, f.backend.vision, 3)
	assert.Equal(t, "https://img/a.jpg", f.backend.vision[0].ImageURL)
}

func TestRemoteRankerOffsetCountsDroppedRows(t *testing.T) {
	f := newFlow("q1")
	f.sources.search["q1"] = []Snapshot{page(false, "a", "b", "c")}
	o := f.orchestrator(remoteExcluding{RemoteRanker{Backend: f.backend, PageSize: 2}, []string{"a"}}, false)

	require.NoError(t, o.Run(context.Background()))

	state := f.store.State()
	assert.Equal(t, []string{"b"}, ids(state.Ranked))
	assert.Equal(t, 1, state.Ranked[0].Rank)
	assert.Equal(t, 2, state.Offset)
}

// remoteExcluding ranks through the wrapped ranker with a fixed exclude list
type remoteExcluding struct {
	RemoteRanker
	exclude []string
}

func (r remoteExcluding) Rank(ctx context.Context, req RankRequest) (RankResult, error) {
	req.Exclude = r.exclude
	return r.RemoteRanker.Rank(ctx, req)
}

func TestCancelledRunClearsLoadingFlags(t *testing.T) {
	f := newFlow("q1", "q2")
	f.sources.search["q1"] = []Snapshot{page(false, "a")}
	f.sources.search["q2"] = []Snapshot{page(false, "b")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o := NewOrchestrator(f.store, f.sources, f.backend, PassThroughRanker{}, OrchestratorOptions{
		Search:      Runner{PageCap: 1, StallTimeout: time.Second},
		Recommended: Runner{PageCap: 1, StallTimeout: time.Second},
		OnQuery:     func(int, string, int) { cancel() },
	}, nil)

	err := o.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	state := f.store.State()
	for _, key := range []LoadingKey{LoadingSearch, LoadingRecommended, LoadingStore, LoadingBuildRanking, LoadingFetchRanking} {
		assert.False(t, state.IsLoading(key), key)
	}
	assert.Empty(t, state.Ranked)
}

func TestVisionFailureDoesNotBlockRanking(t *testing.T) {
	f := newFlow("q1")
	f.sources.search["q1"] = []Snapshot{page(false, "a")}
	f.backend.visionErr = errBoom
	o := f.orchestrator(RemoteRanker{Backend: f.backend}, true)

	require.NoError(t, o.Run(context.Background()))

	assert.Equal(t, []string{"a"}, f.store.State().SeenProductIDs())
	assert.Empty(t, f.store.State().Error)
}

func TestRankerResultIsDensified(t *testing.T) {
	f := newFlow("q1")
	f.sources.search["q1"] = []Snapshot{page(false, "a", "b")}
	r := funcRanker(func(_ context.Context, req RankRequest) (RankResult, error) {
		return RankResult{Products: []model.RankedProduct{
			{Product: req.Pool[1], Rank: 7, Score: 0.4},
			{Product: req.Pool[0], Rank: 9, Score: 0.3},
		}}, nil
	})

	require.NoError(t, f.orchestrator(r, false).Run(context.Background()))

	ranked := f.store.State().Ranked
	assert.Equal(t, []string{"b", "a"}, ids(ranked))
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, 2, ranked[1].Rank)
}

func TestResetDuringRunDropsLateResults(t *testing.T) {
	f := newFlow("q1")
	f.sources.search["q1"] = []Snapshot{page(false, "a")}
	r := funcRanker(func(context.Context, RankRequest) (RankResult, error) {
		f.store.Reset("2026-10-18")
		return RankResult{Products: rankedList("late")}, nil
	})

	err := f.orchestrator(r, false).Run(context.Background())

	assert.ErrorIs(t, err, ErrStaleSession)
	state := f.store.State()
	assert.Empty(t, state.Ranked)
	assert.Equal(t, ScreenQuiz, state.Screen)
	assert.Equal(t, "2026-10-18", state.SessionDate)
}

func TestRankRequestCarriesAnswers(t *testing.T) {
	f := newFlow()
	f.store.Dispatch(
		SetQuestions{Questions: []model.Question{{ID: "1"}}},
		SetAnswer{QuestionID: "1", Value: model.TextAnswer("Cozy")},
	)
	var got RankRequest
	r := funcRanker(func(_ context.Context, req RankRequest) (RankResult, error) {
		got = req
		return RankResult{}, nil
	})

	require.NoError(t, f.orchestrator(r, false).Run(context.Background()))

	assert.Equal(t, "shop_user_1", got.UserID)
	assert.Equal(t, "2026-10-17", got.SessionDate)
	require.Len(t, got.Answers, 1)
	assert.Equal(t, "Cozy", got.Answers[0].Value.String())
}
