package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatchNotifiesSubscribers(t *testing.T) {
	store := NewStore("u", "d")
	var seen []Screen
	unsubscribe := store.Subscribe(func(s State) { seen = append(seen, s.Screen) })

	store.Dispatch(SetScreen{Screen: ScreenLoading}, SetScreen{Screen: ScreenCard})
	unsubscribe()
	store.Dispatch(SetScreen{Screen: ScreenFan})

	assert.Equal(t, []Screen{ScreenCard}, seen)
	assert.Equal(t, ScreenFan, store.State().Screen)
}

func TestDispatchForRejectsStaleGeneration(t *testing.T) {
	store := NewStore("u", "2026-10-16")
	gen := store.Generation()

	newGen := store.Reset("2026-10-17")
	assert.NotEqual(t, gen, newGen)

	ok := store.DispatchFor(gen, SetRanked{Products: rankedList("late")})
	assert.False(t, ok)
	assert.Empty(t, store.State().Ranked)

	assert.True(t, store.DispatchFor(newGen, SetRanked{Products: rankedList("fresh")}))
	assert.Equal(t, []string{"fresh"}, store.State().SeenProductIDs())
	assert.Equal(t, "u", store.State().UserID)
	assert.Equal(t, "2026-10-17", store.State().SessionDate)
}

func TestStoreFreezeAndReshuffle(t *testing.T) {
	store := NewStore("u", "d")
	store.seedFn = func() int64 { return 3 }
	store.Dispatch(SetRanked{Products: rankedList("A", "B", "C", "D")})
	store.ToggleFreeze("A")
	store.ToggleFreeze("C")

	store.Reshuffle()

	got := store.State().SeenProductIDs()
	assert.Equal(t, "A", got[0])
	assert.Equal(t, "C", got[2])
	assert.ElementsMatch(t, []string{"B", "D"}, []string{got[1], got[3]})
}

func TestStoreConcurrentDispatch(t *testing.T) {
	store := NewStore("u", "d")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Dispatch(AppendRanked{Products: rankedList("x")})
			_ = store.State().SeenProductIDs()
		}()
	}
	wg.Wait()
	assert.Len(t, store.State().Ranked, 50)
}
