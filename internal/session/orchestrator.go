package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"quizpicks/internal/model"
	"quizpicks/internal/ranking"
)

// Phase is a step of the discovery flow
type Phase string

const (
	PhaseSearch      Phase = "search"
	PhaseRecommended Phase = "recommended"
	PhaseRanking     Phase = "ranking"
	PhaseDone        Phase = "done"
)

// User-facing error messages
const (
	MsgRankingFailed  = "Failed to build recommendations. Please try again."
	MsgLoadMoreFailed = "Failed to load more products"
	MsgSubmitFailed   = "Failed to submit responses. Please try again."
	MsgQuestionsLoad  = "Failed to load questions"
)

// ErrStaleSession is returned when the store was reset while a flow was running
var ErrStaleSession = errors.New("session was reset")

// OrchestratorOptions tunes one discovery run
type OrchestratorOptions struct {
	Search        Runner
	Recommended   Runner
	ResultsScreen Screen
	// Vision asks the backend to caption images before ranking
	Vision  bool
	OnPhase func(Phase)
	OnQuery func(index int, query string, found int)
}

// Orchestrator runs search, recommended and ranking phases once per session
type Orchestrator struct {
	store    *Store
	sources  Sources
	products ProductBackend
	ranker   Ranker
	opts     OrchestratorOptions
	log      *zap.Logger

	mu          sync.RWMutex
	phase       Phase
	queryIndex  int
	accumulated []model.Product
}

// NewOrchestrator wires a discovery run
func NewOrchestrator(store *Store, sources Sources, products ProductBackend, ranker Ranker, opts OrchestratorOptions, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.ResultsScreen == "" {
		opts.ResultsScreen = ScreenCard
	}
	if opts.Search.Logger == nil {
		opts.Search.Logger = log
	}
	if opts.Recommended.Logger == nil {
		opts.Recommended.Logger = log
	}
	return &Orchestrator{
		store:    store,
		sources:  sources,
		products: products,
		ranker:   ranker,
		opts:     opts,
		log:      log.Named("orchestrator"),
		phase:    PhaseSearch,
	}
}

// Phase returns the current phase
func (o *Orchestrator) Phase() Phase {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.phase
}

// QueryIndex returns how many search queries have completed
func (o *Orchestrator) QueryIndex() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.queryIndex
}

// Accumulated returns the deduplicated pool gathered so far
func (o *Orchestrator) Accumulated() []model.Product {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.accumulated
}

// Run drives the flow to PhaseDone. Fetch and persistence failures are
// logged and skipped; a ranking failure falls back to discovery order. The
// only errors returned are context cancellation and ErrStaleSession.
func (o *Orchestrator) Run(ctx context.Context) (err error) {
	gen := o.store.Generation()
	snapshot := o.store.State()
	defer func() {
		if err != nil {
			// no-op after a reset, which already cleared the flags
			o.store.DispatchFor(gen, clearLoading()...)
		}
	}()

	if err := o.searchPhase(ctx, gen, snapshot); err != nil {
		return err
	}
	if err := o.recommendedPhase(ctx, gen); err != nil {
		return err
	}
	if err := o.rankingPhase(ctx, gen, snapshot); err != nil {
		return err
	}
	o.setPhase(PhaseDone)
	return nil
}

func (o *Orchestrator) searchPhase(ctx context.Context, gen uint64, snapshot State) error {
	o.setPhase(PhaseSearch)
	queries := snapshot.GeneratedQueries
	if len(queries) == 0 {
		o.log.Info("no queries, skipping search")
		return nil
	}

	if err := o.dispatch(gen, SetLoading{Key: LoadingSearch, Value: true}); err != nil {
		return err
	}

	// One query at a time keeps a single external fetch in flight.
	for i, q := range queries {
		src := o.sources.Search(ctx, q)
		items, err := o.opts.Search.Run(ctx, src)
		src.Close()
		if cerr := o.checkLive(ctx, gen); cerr != nil {
			return cerr
		}
		if err != nil {
			o.log.Warn("search query failed", zap.String("query", q), zap.Error(err))
		}

		found := NormalizeAll(items)
		o.mu.Lock()
		o.accumulated = Merge(o.accumulated, found)
		o.queryIndex = i + 1
		o.mu.Unlock()

		if o.opts.OnQuery != nil {
			o.opts.OnQuery(i, q, len(found))
		}
	}

	pool := o.Accumulated()
	if len(pool) > 0 {
		if err := o.persist(ctx, gen, model.SourceSearch, pool); err != nil {
			return err
		}
	}
	return o.dispatch(gen, SetLoading{Key: LoadingSearch, Value: false})
}

func (o *Orchestrator) recommendedPhase(ctx context.Context, gen uint64) error {
	o.setPhase(PhaseRecommended)
	if err := o.dispatch(gen, SetLoading{Key: LoadingRecommended, Value: true}); err != nil {
		return err
	}

	src := o.sources.Recommended(ctx)
	items, err := o.opts.Recommended.Run(ctx, src)
	src.Close()
	if cerr := o.checkLive(ctx, gen); cerr != nil {
		return cerr
	}
	if err != nil {
		o.log.Warn("recommended fetch failed", zap.Error(err))
	}

	found := NormalizeAll(items)
	o.mu.Lock()
	o.accumulated = Merge(o.accumulated, found)
	o.mu.Unlock()

	if len(found) > 0 {
		if err := o.persist(ctx, gen, model.SourceRecommended, found); err != nil {
			return err
		}
	}
	return o.dispatch(gen, SetLoading{Key: LoadingRecommended, Value: false})
}

func (o *Orchestrator) rankingPhase(ctx context.Context, gen uint64, snapshot State) error {
	o.setPhase(PhaseRanking)
	if err := o.dispatch(gen,
		SetLoading{Key: LoadingBuildRanking, Value: true},
		SetLoading{Key: LoadingFetchRanking, Value: true},
		SetError{},
	); err != nil {
		return err
	}

	pool := o.Accumulated()
	if o.opts.Vision {
		o.enrich(ctx, snapshot, pool)
		if err := o.checkLive(ctx, gen); err != nil {
			return err
		}
	}

	result, err := o.ranker.Rank(ctx, RankRequest{
		UserID:      snapshot.UserID,
		SessionDate: snapshot.SessionDate,
		Pool:        pool,
		Answers:     snapshot.AnswerList(),
	})
	if cerr := o.checkLive(ctx, gen); cerr != nil {
		return cerr
	}

	actions := []Action{}
	if err != nil {
		o.log.Error("ranking failed, using discovery order", zap.Error(err), zap.Int("pool", len(pool)))
		fallback := ranking.PassThrough(pool, nil, ranking.PassThroughReason)
		actions = append(actions,
			SetRanked{Products: fallback},
			SetOffset{Offset: len(fallback)},
			SetHasMore{HasMore: false},
			SetError{Message: MsgRankingFailed},
		)
	} else {
		products := densify(result.Products)
		offset := result.Offset
		if offset == 0 {
			offset = len(products)
		}
		actions = append(actions,
			SetRanked{Products: products},
			SetOffset{Offset: offset},
			SetHasMore{HasMore: result.HasMore},
		)
	}
	actions = append(actions,
		SetLoading{Key: LoadingBuildRanking, Value: false},
		SetLoading{Key: LoadingFetchRanking, Value: false},
		SetScreen{Screen: o.opts.ResultsScreen},
	)
	return o.dispatch(gen, actions...)
}

func (o *Orchestrator) persist(ctx context.Context, gen uint64, source model.ProductSource, products []model.Product) error {
	if err := o.dispatch(gen, SetLoading{Key: LoadingStore, Value: true}); err != nil {
		return err
	}
	snapshot := o.store.State()
	stored, err := o.products.StoreProducts(ctx, snapshot.UserID, snapshot.SessionDate, source, products)
	if cerr := o.checkLive(ctx, gen); cerr != nil {
		return cerr
	}
	if err != nil {
		o.log.Warn("store products failed", zap.String("source", string(source)), zap.Error(err))
	} else {
		o.log.Debug("products stored", zap.String("source", string(source)), zap.Int("stored", stored))
	}
	return o.dispatch(gen, SetLoading{Key: LoadingStore, Value: false})
}

// enrich is best-effort: failures never block ranking
func (o *Orchestrator) enrich(ctx context.Context, snapshot State, pool []model.Product) {
	refs := make([]model.ImageRef, 0, len(pool))
	for _, p := range pool {
		if img := p.PrimaryImage(); img != "" {
			refs = append(refs, model.ImageRef{ProductID: p.ProductID, ImageURL: img})
		}
	}
	if len(refs) == 0 {
		return
	}
	processed, err := o.products.ProcessVision(ctx, snapshot.UserID, snapshot.SessionDate, refs)
	if err != nil {
		o.log.Warn("vision enrichment failed", zap.Error(err))
		return
	}
	o.log.Debug("vision enrichment done", zap.Int("processed", processed), zap.Int("requested", len(refs)))
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
	if o.opts.OnPhase != nil {
		o.opts.OnPhase(p)
	}
}

func (o *Orchestrator) dispatch(gen uint64, actions ...Action) error {
	if !o.store.DispatchFor(gen, actions...) {
		return ErrStaleSession
	}
	return nil
}

func (o *Orchestrator) checkLive(ctx context.Context, gen uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o.store.Generation() != gen {
		return ErrStaleSession
	}
	return nil
}

func clearLoading() []Action {
	keys := []LoadingKey{LoadingSearch, LoadingRecommended, LoadingStore, LoadingBuildRanking, LoadingFetchRanking}
	actions := make([]Action, len(keys))
	for i, k := range keys {
		actions[i] = SetLoading{Key: k, Value: false}
	}
	return actions
}

func densify(products []model.RankedProduct) []model.RankedProduct {
	out := make([]model.RankedProduct, len(products))
	for i, p := range products {
		p.Rank = i + 1
		out[i] = p
	}
	return out
}
