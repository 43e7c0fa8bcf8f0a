package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultStallTimeout bounds how long a runner waits for a source that
// produces nothing.
const DefaultStallTimeout = 6 * time.Second

// ErrStalled is returned when a source stops producing pages
var ErrStalled = errors.New("paged source stalled")

// Snapshot is one observation of a reactive paged source
type Snapshot struct {
	Items       any // list or container shape, see ContainerItems
	Loading     bool
	Err         error
	HasNextPage bool
}

// PagedSource is an external paginated data hook. Updates delivers a snapshot
// whenever the source changes; FetchMore asks for the next page.
type PagedSource interface {
	Updates() <-chan Snapshot
	FetchMore(ctx context.Context) error
	Close()
}

// Runner drains a PagedSource up to PageCap settled pages
type Runner struct {
	PageCap      int
	StallTimeout time.Duration
	Logger       *zap.Logger
}

// Run collects raw items from src. Failures are reported together with the
// items gathered so far; callers treat them as non-fatal.
func (r Runner) Run(ctx context.Context, src PagedSource) ([]any, error) {
	pageCap := r.PageCap
	if pageCap <= 0 {
		pageCap = 1
	}
	stall := r.StallTimeout
	if stall <= 0 {
		stall = DefaultStallTimeout
	}
	log := r.Logger
	if log == nil {
		log = zap.NewNop()
	}

	timer := time.NewTimer(stall)
	defer timer.Stop()

	collected := []any{}
	pages := 0
	updates := src.Updates()
	for {
		select {
		case <-ctx.Done():
			return collected, ctx.Err()

		case <-timer.C:
			log.Warn("paged source stalled",
				zap.Int("pages", pages),
				zap.Int("items", len(collected)),
				zap.Duration("timeout", stall))
			return collected, ErrStalled

		case snap, ok := <-updates:
			if !ok {
				return collected, nil
			}
			if snap.Loading {
				continue
			}
			if snap.Err != nil {
				return collected, snap.Err
			}

			collected = append(collected, ContainerItems(snap.Items)...)
			pages++
			timer.Reset(stall)

			if !snap.HasNextPage || pages >= pageCap {
				return collected, nil
			}
			if err := src.FetchMore(ctx); err != nil {
				log.Debug("fetch more failed, keeping collected items", zap.Error(err))
				return collected, nil
			}
		}
	}
}

// Page is one result of a blocking page fetch
type Page struct {
	Items       any
	HasNextPage bool
	Cursor      string
}

// PageFetcher loads the page after cursor ("" for the first page)
type PageFetcher func(ctx context.Context, cursor string) (Page, error)

// HookSource adapts a blocking PageFetcher into a PagedSource. The first page
// is requested on construction; Close cancels any fetch in flight.
type HookSource struct {
	fetch   PageFetcher
	updates chan Snapshot
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	cursor   string
	inFlight bool
}

// NewHookSource starts loading the first page
func NewHookSource(ctx context.Context, fetch PageFetcher) *HookSource {
	ctx, cancel := context.WithCancel(ctx)
	h := &HookSource{
		fetch:   fetch,
		updates: make(chan Snapshot, 2),
		ctx:     ctx,
		cancel:  cancel,
	}
	h.load("")
	return h
}

func (h *HookSource) Updates() <-chan Snapshot {
	return h.updates
}

func (h *HookSource) FetchMore(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := h.ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	busy := h.inFlight
	cursor := h.cursor
	h.mu.Unlock()
	if busy {
		return nil
	}
	h.load(cursor)
	return nil
}

// Close stops the source and waits for its fetch goroutine to exit
func (h *HookSource) Close() {
	h.cancel()
	h.wg.Wait()
}

func (h *HookSource) load(cursor string) {
	h.mu.Lock()
	h.inFlight = true
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if !h.send(Snapshot{Loading: true}) {
			return
		}
		page, err := h.fetch(h.ctx, cursor)

		h.mu.Lock()
		h.inFlight = false
		if err == nil {
			h.cursor = page.Cursor
		}
		h.mu.Unlock()

		if err != nil {
			h.send(Snapshot{Err: err})
			return
		}
		h.send(Snapshot{Items: page.Items, HasNextPage: page.HasNextPage})
	}()
}

func (h *HookSource) send(snap Snapshot) bool {
	select {
	case h.updates <- snap:
		return true
	case <-h.ctx.Done():
		return false
	}
}
