package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/stellar/go-stellar-sdk/support/log"

	"github.com/walletkit/stellar-kit/internal/apptracker"
	"github.com/walletkit/stellar-kit/internal/data"
	"github.com/walletkit/stellar-kit/internal/horizon"
	"github.com/walletkit/stellar-kit/internal/metrics"
	"github.com/walletkit/stellar-kit/internal/pubsub"
	"github.com/walletkit/stellar-kit/internal/wallet"
)

const (
	operationSyncerName = "operations"

	// syncPageLimit is the page size requested from Horizon during both
	// catch-up and backfill.
	syncPageLimit = 200

	// DefaultMaxBackfillPages bounds the backward backfill work of a single
	// sync invocation; the next invocation resumes where this one stopped.
	DefaultMaxBackfillPages = 10
)

// OperationSyncService keeps the local operation log aligned with the
// remote ledger: forward catch-up to now plus bounded backward backfill of
// history, publishing each persisted page to subscribers.
type OperationSyncService interface {
	// Sync triggers one catch-up/backfill cycle asynchronously. While a
	// cycle is in flight further triggers are silent no-ops.
	Sync(ctx context.Context)
	// State returns the current sync state.
	State() wallet.SyncState
	// StatePublisher subscribes to sync state changes; the current state is
	// delivered immediately.
	StatePublisher() (<-chan wallet.SyncState, func())
	// Operations reads the local log, filtered by tagQuery, starting after
	// pagingToken in the given direction.
	Operations(ctx context.Context, tagQuery wallet.TagQuery, pagingToken string, descending bool, limit int) ([]wallet.TxOperation, error)
	// OperationPublisher subscribes to persisted operation batches matching
	// tagQuery. Batches left empty by the filter are suppressed.
	OperationPublisher(tagQuery wallet.TagQuery) (<-chan wallet.OperationInfo, func())
	// Assets lists the distinct assets the stored operations were tagged
	// with.
	Assets(ctx context.Context) ([]wallet.Asset, error)
}

var _ OperationSyncService = (*operationSyncService)(nil)

type operationSyncService struct {
	accountID        string
	client           horizon.ClientInterface
	models           *data.Models
	pool             pond.Pool
	metricsService   metrics.MetricsService
	appTracker       apptracker.AppTracker
	maxBackfillPages int

	guard      sync.Mutex
	state      *pubsub.Value[wallet.SyncState]
	operations *pubsub.Topic[wallet.OperationInfo]
}

// NewOperationSyncService wires an operation synchronizer. maxBackfillPages
// caps backward backfill per invocation; zero or negative selects
// DefaultMaxBackfillPages.
func NewOperationSyncService(accountID string, client horizon.ClientInterface, models *data.Models, pool pond.Pool, metricsService metrics.MetricsService, appTracker apptracker.AppTracker, maxBackfillPages int) (*operationSyncService, error) {
	if accountID == "" {
		return nil, errors.New("accountID cannot be empty")
	}
	if client == nil {
		return nil, errors.New("client cannot be nil")
	}
	if models == nil {
		return nil, errors.New("models cannot be nil")
	}
	if pool == nil {
		return nil, errors.New("pool cannot be nil")
	}
	if maxBackfillPages <= 0 {
		maxBackfillPages = DefaultMaxBackfillPages
	}

	return &operationSyncService{
		accountID:        accountID,
		client:           client,
		models:           models,
		pool:             pool,
		metricsService:   metricsService,
		appTracker:       appTracker,
		maxBackfillPages: maxBackfillPages,
		state:            pubsub.NewValueWith(wallet.NotSyncedState(wallet.ErrNotStarted), wallet.SyncState.Equal),
		operations:       pubsub.NewTopic[wallet.OperationInfo](),
	}, nil
}

func (s *operationSyncService) Sync(ctx context.Context) {
	s.guard.Lock()
	state, _ := s.state.Get()
	if state.Syncing() {
		s.guard.Unlock()
		return
	}
	s.state.Publish(wallet.SyncingState())
	s.guard.Unlock()

	s.pool.Submit(func() {
		s.sync(ctx)
	})
}

func (s *operationSyncService) sync(ctx context.Context) {
	start := time.Now()

	if err := s.catchUp(ctx); err != nil {
		s.fail(ctx, err)
		return
	}
	if err := s.backfill(ctx); err != nil {
		s.fail(ctx, err)
		return
	}

	s.state.Publish(wallet.SyncedState())
	s.metricsService.ObserveSyncDuration(operationSyncerName, time.Since(start).Seconds())
}

// catchUp pulls ascending pages from the latest stored operation to "now",
// persisting and publishing every page as it arrives.
func (s *operationSyncService) catchUp(ctx context.Context) error {
	cursor := ""
	if latest, err := s.models.Operations.Latest(ctx); err != nil {
		return err
	} else if latest != nil {
		cursor = latest.PagingToken
	}

	for {
		page, err := s.client.GetOperations(ctx, s.accountID, cursor, true, syncPageLimit)
		if err != nil {
			return err
		}
		s.persistAndPublish(ctx, page, false)
		if len(page) < syncPageLimit {
			return nil
		}
		cursor = page[len(page)-1].PagingToken
	}
}

// backfill pulls descending pages below the oldest stored operation until
// the start of history or the per-invocation page cap. The allSynced flag
// is persisted only when a short page proved the true history start.
func (s *operationSyncService) backfill(ctx context.Context) error {
	allSynced, err := s.models.Operations.GetSyncState(ctx)
	if err != nil {
		return err
	}
	if allSynced {
		return nil
	}

	cursor := ""
	if oldest, err := s.models.Operations.Oldest(ctx); err != nil {
		return err
	} else if oldest != nil {
		cursor = oldest.PagingToken
	}

	for fetched := 0; fetched < s.maxBackfillPages; fetched++ {
		page, err := s.client.GetOperations(ctx, s.accountID, cursor, false, syncPageLimit)
		if err != nil {
			return err
		}
		s.persistAndPublish(ctx, page, true)
		if len(page) < syncPageLimit {
			if err := s.models.Operations.SaveSyncState(ctx, true); err != nil {
				return err
			}
			return nil
		}
		cursor = page[len(page)-1].PagingToken
	}
	// Cap reached with history left: the next invocation resumes from the
	// new oldest watermark.
	return nil
}

// persistAndPublish writes the page and its tags to the store and then
// publishes it. A store failure is logged but never suppresses publication:
// subscribers see fresh remote data even when the local write lags.
func (s *operationSyncService) persistAndPublish(ctx context.Context, page []wallet.TxOperation, initial bool) {
	if len(page) == 0 {
		return
	}

	if err := s.models.Operations.BatchUpsert(ctx, page); err != nil {
		log.Ctx(ctx).Errorf("persisting %d operations: %v", len(page), err)
		if s.appTracker != nil {
			s.appTracker.CaptureException(err)
		}
	} else {
		var tags []wallet.Tag
		for _, op := range page {
			tags = append(tags, op.Tags(s.accountID)...)
		}
		if err := s.models.Operations.UpsertTags(ctx, tags); err != nil {
			log.Ctx(ctx).Errorf("persisting %d operation tags: %v", len(tags), err)
			if s.appTracker != nil {
				s.appTracker.CaptureException(err)
			}
		}
	}

	s.operations.Publish(wallet.OperationInfo{Operations: page, Initial: initial})
}

func (s *operationSyncService) fail(ctx context.Context, err error) {
	log.Ctx(ctx).Errorf("operation sync for %s failed: %v", s.accountID, err)
	s.metricsService.IncSyncError(operationSyncerName)
	if s.appTracker != nil {
		s.appTracker.CaptureException(err)
	}
	s.state.Publish(wallet.NotSyncedState(err))
}

func (s *operationSyncService) State() wallet.SyncState {
	state, _ := s.state.Get()
	return state
}

func (s *operationSyncService) StatePublisher() (<-chan wallet.SyncState, func()) {
	return s.state.Subscribe()
}

func (s *operationSyncService) Operations(ctx context.Context, tagQuery wallet.TagQuery, pagingToken string, descending bool, limit int) ([]wallet.TxOperation, error) {
	return s.models.Operations.List(ctx, tagQuery, pagingToken, descending, limit)
}

func (s *operationSyncService) OperationPublisher(tagQuery wallet.TagQuery) (<-chan wallet.OperationInfo, func()) {
	upstream, unsubscribe := s.operations.Subscribe()
	if tagQuery.IsEmpty() {
		return upstream, unsubscribe
	}

	filtered := make(chan wallet.OperationInfo, 1)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() { close(done) })
		unsubscribe()
	}
	go func() {
		defer close(filtered)
		for info := range upstream {
			kept := make([]wallet.TxOperation, 0, len(info.Operations))
			for _, op := range info.Operations {
				if operationMatches(op, s.accountID, tagQuery) {
					kept = append(kept, op)
				}
			}
			if len(kept) == 0 {
				continue
			}
			// The send races receiver abandonment: an unsubscribed caller
			// stops draining filtered, so bail out instead of parking.
			select {
			case filtered <- wallet.OperationInfo{Operations: kept, Initial: info.Initial}:
			case <-done:
				return
			}
		}
	}()
	return filtered, cancel
}

func operationMatches(op wallet.TxOperation, accountID string, query wallet.TagQuery) bool {
	for _, tag := range op.Tags(accountID) {
		if tag.Conforms(query) {
			return true
		}
	}
	return false
}

func (s *operationSyncService) Assets(ctx context.Context) ([]wallet.Asset, error) {
	ids, err := s.models.Operations.AssetIDs(ctx)
	if err != nil {
		return nil, err
	}
	assets := make([]wallet.Asset, 0, len(ids))
	for _, id := range ids {
		assets = append(assets, wallet.ParseAssetID(id))
	}
	return assets, nil
}
