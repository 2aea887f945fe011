// Package service provides the study engine facade: one object that wires
// the store, scheduler, deduper and estimation pipeline together for hosts
// and tools.
package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	refreshqueue "github.com/scAIentist/sciblind-sub001/internal/adapters/bt/queue"
	workerpool "github.com/scAIentist/sciblind-sub001/internal/adapters/bt/worker"
	"github.com/scAIentist/sciblind-sub001/internal/adapters/repository"
	"github.com/scAIentist/sciblind-sub001/internal/domain/dedupe"
	"github.com/scAIentist/sciblind-sub001/internal/domain/graph"
	"github.com/scAIentist/sciblind-sub001/internal/domain/model"
	"github.com/scAIentist/sciblind-sub001/internal/domain/publish"
	"github.com/scAIentist/sciblind-sub001/internal/domain/rating"
	"github.com/scAIentist/sciblind-sub001/internal/domain/schedule"
	"github.com/scAIentist/sciblind-sub001/internal/domain/types"
	"github.com/scAIentist/sciblind-sub001/pkg/logger"
	"github.com/scAIentist/sciblind-sub001/pkg/metrics"
)

// Refresh request reasons.
const (
	refreshReasonVoteCadence = "vote_cadence"
	refreshReasonManual      = "manual"
)

// quadItems is the number of items a quad vote presents.
const quadItems = 4

// ItemSpec describes one item to register with the study.
type ItemSpec struct {
	// ID is the caller's identifier; one is generated when empty.
	ID string

	// ArtistRank is the external rank 1..10, nil when unranked.
	ArtistRank *int
}

// Vote is one pairwise decision submitted by a rater.
type Vote struct {
	// VoteID is the client idempotency key; one is generated when empty.
	VoteID         string
	WinnerID       string
	LoserID        string
	LeftItemID     string // display side bookkeeping, optional
	RightItemID    string
	CategoryID     string
	SessionID      string
	ResponseTimeMs int
	IsFlagged      bool
	FlagReason     string
}

// QuadVote is one quadruplet decision: the winner implicitly beats the
// other three displayed items.
type QuadVote struct {
	VoteID         string
	WinnerID       string
	ItemIDs        []string // all four ids in display order
	CategoryID     string
	SessionID      string
	ResponseTimeMs int
	IsFlagged      bool
	FlagReason     string
}

// Diagnostics bundles the comparison-graph health reports.
type Diagnostics struct {
	Connectivity graph.ConnectivityReport `json:"connectivity"`
	Triads       graph.TriadReport        `json:"triads"`
}

// Service implements the study engine operations.
type Service struct {
	mu sync.RWMutex

	// Core components
	store        repository.Store
	deduper      dedupe.Deduper
	refreshQueue refreshqueue.Queue
	scheduler    *schedule.Scheduler
	workerPool   *workerpool.Pool

	// Study policy
	studyConfig model.StudyConfig
	applier     repository.ApplyFunc

	// Configuration
	workerCount            int
	queueSize              int
	dedupeSize             int
	estimateEveryVotes     int
	estimatorTolerance     float64
	estimatorMaxIterations int
	triadItemLimit         int
	confirmationMargin     float64
	schedulerSeed          *int64

	// Vote accounting
	acceptedVotes  atomic.Int64
	duplicateVotes atomic.Int64
	rejectedVotes  atomic.Int64

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStudyConfig sets the study rating and scheduling policy.
func WithStudyConfig(cfg model.StudyConfig) Option {
	return func(s *Service) {
		s.studyConfig = cfg
	}
}

// WithWorkerCount sets the number of estimation workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the refresh request queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the vote deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithEstimateEveryVotes sets how many accepted votes pass between
// Bradley-Terry refresh requests.
func WithEstimateEveryVotes(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.estimateEveryVotes = n
		}
	}
}

// WithEstimatorTolerance overrides the estimator convergence threshold.
func WithEstimatorTolerance(tolerance float64) Option {
	return func(s *Service) {
		if tolerance > 0 {
			s.estimatorTolerance = tolerance
		}
	}
}

// WithEstimatorMaxIterations caps the estimator fitting loop.
func WithEstimatorMaxIterations(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.estimatorMaxIterations = n
		}
	}
}

// WithTriadItemLimit bounds the circular-triad census.
func WithTriadItemLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.triadItemLimit = limit
		}
	}
}

// WithConfirmationMargin scales the publishability floors for the
// confirmation verdict.
func WithConfirmationMargin(margin float64) Option {
	return func(s *Service) {
		if margin >= 1 {
			s.confirmationMargin = margin
		}
	}
}

// WithSchedulerSeed fixes the scheduler's random source.
func WithSchedulerSeed(seed int64) Option {
	return func(s *Service) {
		s.schedulerSeed = &seed
	}
}

// WithStore injects a prebuilt item store. Start builds its own
// TreapStore when none is given.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		studyConfig:        model.DefaultStudyConfig(),
		workerCount:        1,      // full-log refits make extra workers redundant
		queueSize:          16,     // refresh requests coalesce, a short queue suffices
		dedupeSize:         50_000, // vote idempotency window
		estimateEveryVotes: 10,
		logger:             nil, // resolved when the service starts
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start validates the policy and brings up the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if err := s.studyConfig.Validate(); err != nil {
		return fmt.Errorf("study config: %w", err)
	}

	// Initialize logger if not already set
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting study engine...")

	// Initialize components
	if s.store == nil {
		s.store = repository.NewTreapStore(ctx)
	}
	s.deduper = dedupe.NewInMemoryDeduper(
		dedupe.WithMaxSize(s.dedupeSize),
	)
	s.refreshQueue = refreshqueue.NewInMemoryQueue(
		refreshqueue.WithCapacity(s.queueSize),
		refreshqueue.WithBufferSize(s.queueSize),
	)

	var schedOpts []schedule.Option
	if s.schedulerSeed != nil {
		schedOpts = append(schedOpts, schedule.WithSeed(*s.schedulerSeed))
	}
	s.scheduler = schedule.NewScheduler(schedOpts...)

	s.applier = rating.Applier(s.studyConfig)

	// Create and start the estimation pool; the store is both the
	// comparison source and the ability sink.
	var workerOpts []workerpool.Option
	if s.estimatorTolerance > 0 {
		workerOpts = append(workerOpts, workerpool.WithTolerance(s.estimatorTolerance))
	}
	if s.estimatorMaxIterations > 0 {
		workerOpts = append(workerOpts, workerpool.WithMaxIterations(s.estimatorMaxIterations))
	}
	s.workerPool = workerpool.NewPool(s.workerCount, s.refreshQueue, s.store, s.store, workerOpts...)
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "study engine started",
		logger.String("mode", string(s.studyConfig.ComparisonMode)),
		logger.Float64("kFactor", s.studyConfig.KFactor),
		logger.Bool("adaptiveK", s.studyConfig.AdaptiveKFactor),
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("estimateEveryVotes", s.estimateEveryVotes),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping study engine...")

	// Shut down the estimation pool; this also closes the refresh queue
	if s.workerPool != nil {
		_ = s.workerPool.Shutdown(ctx)
	}

	// Close the store
	if s.store != nil {
		_ = s.store.Close()
	}

	s.started = false
	s.logger.Info(ctx, "study engine stopped")
}

// ready reports whether the components are up.
func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// AddItems registers items with the study and returns their ids in input
// order. Items start at the initial rating with zeroed counters; the
// artist boost is derived from the supplied rank.
func (s *Service) AddItems(ctx context.Context, specs []ItemSpec) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(specs))
	for _, spec := range specs {
		id := spec.ID
		if id == "" {
			id = uuid.NewString()
		}

		item := model.NewItem(id)
		item.ArtistRank = spec.ArtistRank
		item.ArtistBoost = rating.ArtistBoostFor(spec.ArtistRank)

		if err := s.store.AddItem(ctx, item); err != nil {
			return ids, fmt.Errorf("add item %q: %w", id, err)
		}
		ids = append(ids, id)
	}

	s.logger.Info(ctx, "items registered", logger.Int("count", len(ids)))
	return ids, nil
}

// Items returns all item aggregates in current rank order.
func (s *Service) Items(ctx context.Context) ([]model.Item, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.Items(ctx), nil
}

// NextUnit asks the scheduler what the session's rater should see next.
// Done marks a completed session; Exhausted means the selection space ran
// out first.
func (s *Service) NextUnit(ctx context.Context, sessionID string) (types.NextUnit, error) {
	if err := s.ready(); err != nil {
		return types.NextUnit{}, err
	}

	items := s.store.Items(ctx)
	session := s.store.SessionComparisons(ctx, sessionID)

	unit, err := s.scheduler.Next(items, session, s.studyConfig)
	if err != nil {
		metrics.RecordErrorByComponent("scheduler", "selection")
		return types.NextUnit{}, fmt.Errorf("next unit: %w", err)
	}

	out := types.NextUnit{Phase: string(unit.Phase), Done: unit.Done}
	switch {
	case unit.Done:
	case unit.Pair != nil:
		out.Pair = &types.PairUnit{
			LeftItemID:  unit.Pair.LeftItemID,
			RightItemID: unit.Pair.RightItemID,
		}
		metrics.RecordSchedulerSelection(string(unit.Phase), string(s.studyConfig.ComparisonMode))
	case unit.Quad != nil:
		out.Quad = &types.QuadUnit{ItemIDs: unit.Quad.ItemIDs}
		metrics.RecordSchedulerSelection(string(unit.Phase), string(s.studyConfig.ComparisonMode))
	default:
		out.Exhausted = true
		metrics.RecordSchedulerExhausted()
	}
	return out, nil
}

// SubmitVote records one pairwise decision. A repeated VoteID is answered
// as a duplicate without touching any state.
func (s *Service) SubmitVote(ctx context.Context, vote Vote) (types.VoteResult, error) {
	if err := s.ready(); err != nil {
		return types.VoteResult{}, err
	}

	start := time.Now()

	voteID := vote.VoteID
	if voteID == "" {
		voteID = uuid.NewString()
	}

	cmp := model.Comparison{
		ID:             voteID,
		ItemAID:        vote.WinnerID,
		ItemBID:        vote.LoserID,
		WinnerID:       vote.WinnerID,
		LeftItemID:     vote.LeftItemID,
		RightItemID:    vote.RightItemID,
		CategoryID:     vote.CategoryID,
		SessionID:      vote.SessionID,
		ResponseTimeMs: vote.ResponseTimeMs,
		IsFlagged:      vote.IsFlagged,
		FlagReason:     vote.FlagReason,
		RecordedAt:     time.Now(),
	}
	if err := cmp.Validate(); err != nil {
		metrics.RecordVoteRejected()
		s.rejectedVotes.Add(1)
		return types.VoteResult{}, err
	}

	if s.deduper.SeenAndRecord(ctx, voteID) {
		metrics.RecordVoteDuplicate()
		s.duplicateVotes.Add(1)
		s.logger.Debug(ctx, "duplicate vote ignored", logger.String("voteID", voteID))
		return types.VoteResult{VoteID: voteID, Duplicate: true}, nil
	}

	upd, err := s.store.RecordComparison(ctx, cmp, s.applier)
	if err != nil {
		// The vote never happened; let the id be retried.
		s.deduper.Unrecord(ctx, voteID)
		metrics.RecordVoteRejected()
		s.rejectedVotes.Add(1)
		return types.VoteResult{}, fmt.Errorf("record vote: %w", err)
	}

	metrics.RecordVoteAccepted()
	metrics.RecordRatingLatency(float64(time.Since(start).Milliseconds()))
	s.afterAcceptedVote(ctx)

	return types.VoteResult{
		VoteID:   voteID,
		Appended: 1,
		Changes: []types.RatingChange{
			{ItemID: upd.WinnerID, Delta: upd.WinnerDelta, Rating: upd.WinnerRating},
			{ItemID: upd.LoserID, Delta: upd.LoserDelta, Rating: upd.LoserRating},
		},
	}, nil
}

// SubmitQuadVote records one quadruplet decision as three synthetic
// pairwise comparisons: the winner beats each other displayed item. The
// batch lands atomically; a repeated VoteID is answered as a duplicate.
func (s *Service) SubmitQuadVote(ctx context.Context, vote QuadVote) (types.VoteResult, error) {
	if err := s.ready(); err != nil {
		return types.VoteResult{}, err
	}

	start := time.Now()

	if len(vote.ItemIDs) != quadItems {
		metrics.RecordVoteRejected()
		s.rejectedVotes.Add(1)
		return types.VoteResult{}, fmt.Errorf("%w: quad vote needs %d items, got %d",
			model.ErrInvalidComparison, quadItems, len(vote.ItemIDs))
	}
	pos := make(map[string]int, quadItems)
	for i, id := range vote.ItemIDs {
		if id == "" {
			metrics.RecordVoteRejected()
			s.rejectedVotes.Add(1)
			return types.VoteResult{}, fmt.Errorf("%w: empty item id in quad", model.ErrInvalidComparison)
		}
		if _, dup := pos[id]; dup {
			metrics.RecordVoteRejected()
			s.rejectedVotes.Add(1)
			return types.VoteResult{}, fmt.Errorf("%w: item %q repeated in quad", model.ErrInvalidComparison, id)
		}
		pos[id] = i
	}
	if _, ok := pos[vote.WinnerID]; !ok {
		metrics.RecordVoteRejected()
		s.rejectedVotes.Add(1)
		return types.VoteResult{}, fmt.Errorf("%w: winner %q not among displayed items",
			model.ErrInvalidComparison, vote.WinnerID)
	}

	voteID := vote.VoteID
	if voteID == "" {
		voteID = uuid.NewString()
	}

	if s.deduper.SeenAndRecord(ctx, voteID) {
		metrics.RecordVoteDuplicate()
		s.duplicateVotes.Add(1)
		s.logger.Debug(ctx, "duplicate quad vote ignored", logger.String("voteID", voteID))
		return types.VoteResult{VoteID: voteID, Duplicate: true}, nil
	}

	// Expand to winner-vs-loser pairs in display order. For each pair the
	// item shown earlier takes the left side.
	now := time.Now()
	cmps := make([]model.Comparison, 0, quadItems-1)
	for _, id := range vote.ItemIDs {
		if id == vote.WinnerID {
			continue
		}
		cmp := model.Comparison{
			ID:             fmt.Sprintf("%s-%d", voteID, len(cmps)+1),
			ItemAID:        vote.WinnerID,
			ItemBID:        id,
			WinnerID:       vote.WinnerID,
			CategoryID:     vote.CategoryID,
			SessionID:      vote.SessionID,
			ResponseTimeMs: vote.ResponseTimeMs,
			IsFlagged:      vote.IsFlagged,
			FlagReason:     vote.FlagReason,
			RecordedAt:     now,
		}
		if pos[vote.WinnerID] < pos[id] {
			cmp.LeftItemID, cmp.RightItemID = vote.WinnerID, id
		} else {
			cmp.LeftItemID, cmp.RightItemID = id, vote.WinnerID
		}
		cmps = append(cmps, cmp)
	}

	updates, err := s.store.RecordComparisons(ctx, cmps, s.applier)
	if err != nil {
		s.deduper.Unrecord(ctx, voteID)
		metrics.RecordVoteRejected()
		s.rejectedVotes.Add(1)
		return types.VoteResult{}, fmt.Errorf("record quad vote: %w", err)
	}

	metrics.RecordVoteAccepted()
	metrics.RecordRatingLatency(float64(time.Since(start).Milliseconds()))
	s.afterAcceptedVote(ctx)

	changes := make([]types.RatingChange, 0, len(updates)*2)
	for _, upd := range updates {
		changes = append(changes,
			types.RatingChange{ItemID: upd.WinnerID, Delta: upd.WinnerDelta, Rating: upd.WinnerRating},
			types.RatingChange{ItemID: upd.LoserID, Delta: upd.LoserDelta, Rating: upd.LoserRating},
		)
	}
	return types.VoteResult{VoteID: voteID, Appended: len(cmps), Changes: changes}, nil
}

// afterAcceptedVote advances the vote counter and requests an ability
// refresh at the configured cadence.
func (s *Service) afterAcceptedVote(ctx context.Context) {
	accepted := s.acceptedVotes.Add(1)
	if s.estimateEveryVotes <= 0 || accepted%int64(s.estimateEveryVotes) != 0 {
		return
	}

	req := refreshqueue.Request{
		Reason:      refreshReasonVoteCadence,
		Votes:       int(accepted),
		RequestedAt: time.Now(),
	}
	if !s.refreshQueue.Enqueue(ctx, req) {
		// A pending request already covers this one.
		s.logger.Debug(ctx, "refresh request coalesced", logger.Int("votes", int(accepted)))
	}
	metrics.UpdateQueueSize(s.refreshQueue.Len(ctx))
}

// Rankings returns the full leaderboard in rank order.
func (s *Service) Rankings(ctx context.Context) ([]types.Entry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.Entries(ctx), nil
}

// TopN returns the top N leaderboard entries.
func (s *Service) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.TopN(ctx, n)
}

// Rank returns the leaderboard entry for a given item id.
func (s *Service) Rank(ctx context.Context, itemID string) (types.Entry, error) {
	if err := s.ready(); err != nil {
		return types.Entry{}, err
	}
	return s.store.Rank(ctx, itemID)
}

// Phase reports the scheduling phase a session is in.
func (s *Service) Phase(ctx context.Context, sessionID string) (schedule.Phase, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	items := s.store.Items(ctx)
	session := s.store.SessionComparisons(ctx, sessionID)
	return schedule.PhaseFor(items, session, s.studyConfig), nil
}

// Progress reports a category's completion within a session.
func (s *Service) Progress(ctx context.Context, sessionID, categoryID string, target int) (schedule.Progress, error) {
	if err := s.ready(); err != nil {
		return schedule.Progress{}, err
	}
	session := s.store.SessionComparisons(ctx, sessionID)
	return schedule.CategoryProgress(session, categoryID, target), nil
}

// Publishability evaluates the study against its data-quality gate.
func (s *Service) Publishability(ctx context.Context) (publish.Verdict, error) {
	if err := s.ready(); err != nil {
		return publish.Verdict{}, err
	}

	items := s.store.Items(ctx)
	comparisons := s.store.Comparisons(ctx)
	thresholds := publish.Thresholds{
		MinExposuresPerItem: s.studyConfig.MinExposuresPerItem,
		MinTotalComparisons: s.studyConfig.MinTotalComparisons,
	}

	var opts []publish.Option
	if s.confirmationMargin >= 1 {
		opts = append(opts, publish.WithConfirmationMargin(s.confirmationMargin))
	}
	verdict := publish.Evaluate(items, comparisons, thresholds, opts...)

	for _, status := range []publish.Status{
		publish.StatusInsufficient, publish.StatusPublishable, publish.StatusConfirmation,
	} {
		metrics.UpdatePublishabilityStatus(string(status), status == verdict.Status)
	}
	metrics.UpdatePublishabilityComparisons(verdict.CountedComparisons)

	return verdict, nil
}

// Diagnostics reports comparison-graph connectivity and the circular
// triad census.
func (s *Service) Diagnostics(ctx context.Context) (Diagnostics, error) {
	if err := s.ready(); err != nil {
		return Diagnostics{}, err
	}

	items := s.store.Items(ctx)
	comparisons := s.store.Comparisons(ctx)

	var triadOpts []graph.TriadOption
	if s.triadItemLimit > 0 {
		triadOpts = append(triadOpts, graph.WithTriadItemLimit(s.triadItemLimit))
	}
	return Diagnostics{
		Connectivity: graph.Connectivity(items, comparisons),
		Triads:       graph.CircularTriads(comparisons, triadOpts...),
	}, nil
}

// RefreshEstimates re-fits Bradley-Terry abilities synchronously; the
// refreshed values are visible once it returns.
func (s *Service) RefreshEstimates(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.workerPool.Refresh(ctx, refreshReasonManual)
}

// Stats returns a point-in-time engine snapshot for dashboards and logs.
func (s *Service) Stats(ctx context.Context) types.StudyStats {
	st := types.StudyStats{
		AcceptedVotes:  int(s.acceptedVotes.Load()),
		DuplicateVotes: int(s.duplicateVotes.Load()),
		RejectedVotes:  int(s.rejectedVotes.Load()),
	}

	if s.ready() != nil {
		return st
	}

	st.Items = s.store.Count(ctx)
	st.Comparisons = s.store.ComparisonCount(ctx)
	st.Sessions = s.store.SessionCount(ctx)
	st.QueueDepth = s.refreshQueue.Len(ctx)

	ws := s.workerPool.Stats()
	st.EstimatorRuns = ws.Runs
	st.LastIterations = ws.LastIterations
	st.LastConverged = ws.LastConverged

	// Update metrics
	metrics.UpdateQueueSize(st.QueueDepth)
	metrics.UpdateTotalItems(st.Items)
	metrics.UpdateWorkerCount(s.workerCount)

	return st
}

// StudyConfig returns the policy the engine is running with.
func (s *Service) StudyConfig() model.StudyConfig {
	return s.studyConfig
}
