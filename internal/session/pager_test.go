package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerSinglePage(t *testing.T) {
	src := newScripted(page(false, "a", "b", "c"))

	got, err := Runner{PageCap: 3}.Run(context.Background(), src)

	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, 1, src.fetches)
}

func TestRunnerStopsAtPageCap(t *testing.T) {
	src := newScripted(page(true, "a"), page(true, "b"), page(true, "c"), page(false, "d"))

	got, err := Runner{PageCap: 3}.Run(context.Background(), src)

	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, 3, src.fetches)
}

func TestRunnerPageCapOneIgnoresNextPage(t *testing.T) {
	src := newScripted(page(true, "a", "b"), page(false, "c"))

	got, err := Runner{PageCap: 1}.Run(context.Background(), src)

	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, src.fetches)
}

func TestRunnerErrorKeepsPartialResults(t *testing.T) {
	src := newScripted(page(true, "a"), Snapshot{Err: errBoom})

	got, err := Runner{PageCap: 3}.Run(context.Background(), src)

	assert.ErrorIs(t, err, errBoom)
	assert.Len(t, got, 1)
}

func TestRunnerFetchMoreFailureFinishesWithCollected(t *testing.T) {
	src := newScripted(page(true, "a", "b"))
	src.moreErr = errors.New("network")

	got, err := Runner{PageCap: 3}.Run(context.Background(), src)

	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestRunnerNormalizesContainerShapes(t *testing.T) {
	edges := map[string]any{"edges": []any{
		map[string]any{"node": item("a")},
		map[string]any{"node": item("b")},
	}}
	src := newScripted(Snapshot{Items: edges, HasNextPage: true}, Snapshot{Items: map[string]any{"results": items("c")}})

	got, err := Runner{PageCap: 2}.Run(context.Background(), src)

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, productIDs(NormalizeAll(got)))
}

func TestRunnerStalledSourceReturnsEmpty(t *testing.T) {
	src := &scriptedSource{ch: make(chan Snapshot, 2), noSettle: true}
	src.emit()

	start := time.Now()
	got, err := Runner{PageCap: 1, StallTimeout: 30 * time.Millisecond}.Run(context.Background(), src)

	assert.ErrorIs(t, err, ErrStalled)
	assert.Empty(t, got)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRunnerLoadingSnapshotsDoNotExtendStallBound(t *testing.T) {
	ch := make(chan Snapshot)
	src := &scriptedSource{ch: ch}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tick := time.NewTicker(5 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				select {
				case ch <- Snapshot{Loading: true}:
				case <-done:
					return
				}
			}
		}
	}()

	start := time.Now()
	got, err := Runner{PageCap: 1, StallTimeout: 50 * time.Millisecond}.Run(context.Background(), src)
	elapsed := time.Since(start)
	close(done)
	wg.Wait()

	assert.ErrorIs(t, err, ErrStalled)
	assert.Empty(t, got)
	assert.Less(t, elapsed, time.Second)
}

func TestRunnerClosedChannel(t *testing.T) {
	ch := make(chan Snapshot)
	close(ch)
	src := &scriptedSource{ch: ch}

	got, err := Runner{}.Run(context.Background(), src)

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRunnerContextCancel(t *testing.T) {
	src := &scriptedSource{ch: make(chan Snapshot, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Runner{StallTimeout: time.Minute}.Run(ctx, src)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestHookSourcePaginates(t *testing.T) {
	var calls atomic.Int32
	fetch := func(_ context.Context, cursor string) (Page, error) {
		n := calls.Add(1)
		switch cursor {
		case "":
			return Page{Items: items("a", "b"), HasNextPage: true, Cursor: "c1"}, nil
		case "c1":
			return Page{Items: map[string]any{"items": items("c")}, HasNextPage: true, Cursor: "c2"}, nil
		}
		return Page{}, fmt.Errorf("unexpected call %d with cursor %q", n, cursor)
	}

	src := NewHookSource(context.Background(), fetch)
	defer src.Close()

	got, err := Runner{PageCap: 2, StallTimeout: time.Second}.Run(context.Background(), src)

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, productIDs(NormalizeAll(got)))
	assert.EqualValues(t, 2, calls.Load())
}

func TestHookSourceReportsError(t *testing.T) {
	src := NewHookSource(context.Background(), func(context.Context, string) (Page, error) {
		return Page{}, errBoom
	})
	defer src.Close()

	got, err := Runner{StallTimeout: time.Second}.Run(context.Background(), src)

	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, got)
}

func TestHookSourceCloseCancelsBlockedFetch(t *testing.T) {
	started := make(chan struct{})
	src := NewHookSource(context.Background(), func(ctx context.Context, _ string) (Page, error) {
		close(started)
		<-ctx.Done()
		return Page{}, ctx.Err()
	})

	// drain the loading snapshot so the fetch goroutine starts
	<-src.Updates()
	<-started
	src.Close()

	assert.ErrorIs(t, src.FetchMore(context.Background()), context.Canceled)
}
