package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"quizpicks/internal/model"
	"quizpicks/internal/ranking"
)

// ErrBusy is returned when a paging operation is already running
var ErrBusy = errors.New("ranking page request already in progress")

// Feed pages through and extends a session's ranked list
type Feed struct {
	store    *Store
	backend  RankingBackend
	pageSize int
	log      *zap.Logger
}

// NewFeed creates a feed reading pageSize rows per request
func NewFeed(store *Store, backend RankingBackend, pageSize int, log *zap.Logger) *Feed {
	if pageSize <= 0 {
		pageSize = ranking.TopN
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Feed{store: store, backend: backend, pageSize: pageSize, log: log.Named("feed")}
}

// LoadMore appends the next ranked page. When the server has no further
// rows it asks for a replenish that excludes everything already shown.
func (f *Feed) LoadMore(ctx context.Context) error {
	state := f.store.State()
	if state.IsLoading(LoadingFetchRanking) || state.IsLoading(LoadingReplenish) {
		return ErrBusy
	}
	gen := f.store.Generation()
	if !f.store.DispatchFor(gen, SetLoading{Key: LoadingFetchRanking, Value: true}, SetError{}) {
		return ErrStaleSession
	}

	offset := state.Offset
	page, err := f.backend.GetRanking(ctx, state.UserID, state.SessionDate, f.pageSize, offset)
	if err != nil {
		f.log.Warn("load more failed", zap.Int("offset", offset), zap.Error(err))
		f.finish(gen, LoadingFetchRanking, SetError{Message: MsgLoadMoreFailed})
		return fmt.Errorf("fetch ranking page: %w", err)
	}

	current := f.store.State()
	fresh := ranking.Hydrate(page.Products, nil, current.SeenProductIDs(), ranking.MaxRank(current.Ranked)+1)
	if len(fresh) > 0 {
		if !f.finish(gen, LoadingFetchRanking,
			AppendRanked{Products: fresh},
			SetOffset{Offset: offset + len(page.Products)},
			SetHasMore{HasMore: page.HasMore()},
		) {
			return ErrStaleSession
		}
		return nil
	}

	if !f.finish(gen, LoadingFetchRanking, SetHasMore{HasMore: page.HasMore()}) {
		return ErrStaleSession
	}
	if page.HasMore() {
		return nil
	}
	_, err = f.Replenish(ctx, current.SeenProductIDs())
	return err
}

// Replenish asks the server for a new context version built from products
// not in excludeIDs and appends it with ranks continuing after the current
// maximum. An empty result is a successful no-op. On any failure the ranked
// list is left unchanged and the error message is set.
func (f *Feed) Replenish(ctx context.Context, excludeIDs []string) ([]model.RankedProduct, error) {
	state := f.store.State()
	if state.IsLoading(LoadingReplenish) {
		return nil, ErrBusy
	}
	gen := f.store.Generation()
	if !f.store.DispatchFor(gen, SetLoading{Key: LoadingReplenish, Value: true}, SetError{}) {
		return nil, ErrStaleSession
	}

	added, err := f.backend.Replenish(ctx, state.UserID, state.SessionDate, excludeIDs)
	if err != nil {
		f.log.Warn("replenish failed", zap.Int("excluded", len(excludeIDs)), zap.Error(err))
		f.finish(gen, LoadingReplenish, SetError{Message: MsgLoadMoreFailed})
		return nil, fmt.Errorf("replenish: %w", err)
	}
	if added == 0 {
		f.log.Info("replenish found no new candidates")
		if !f.finish(gen, LoadingReplenish, SetHasMore{HasMore: false}) {
			return nil, ErrStaleSession
		}
		return []model.RankedProduct{}, nil
	}

	// The new version's rows start right after every server row already
	// consumed; ranks continue after the highest one shown.
	current := f.store.State()
	offset := current.Offset
	page, err := f.backend.GetRanking(ctx, state.UserID, state.SessionDate, added, offset)
	if err != nil {
		f.log.Warn("fetch replenished page failed", zap.Int("offset", offset), zap.Error(err))
		f.finish(gen, LoadingReplenish, SetError{Message: MsgLoadMoreFailed})
		return nil, fmt.Errorf("fetch replenished page: %w", err)
	}

	exclude := append(append([]string(nil), excludeIDs...), current.SeenProductIDs()...)
	fresh := ranking.Hydrate(page.Products, nil, exclude, ranking.MaxRank(current.Ranked)+1)
	if !f.finish(gen, LoadingReplenish,
		AppendRanked{Products: fresh},
		SetOffset{Offset: offset + len(page.Products)},
		SetHasMore{HasMore: page.HasMore()},
	) {
		return nil, ErrStaleSession
	}
	f.log.Info("replenished", zap.Int("added", len(fresh)), zap.Int("context_version", page.ContextVersion))
	return fresh, nil
}

// finish clears the loading flag together with the given actions
func (f *Feed) finish(gen uint64, key LoadingKey, actions ...Action) bool {
	actions = append(actions, SetLoading{Key: key, Value: false})
	return f.store.DispatchFor(gen, actions...)
}
