// Package services implements the synchronizers that keep the local store
// aligned with the remote ledger, and the transaction construction service.
package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stellar/go-stellar-sdk/support/log"

	"github.com/walletkit/stellar-kit/internal/apptracker"
	"github.com/walletkit/stellar-kit/internal/data"
	"github.com/walletkit/stellar-kit/internal/horizon"
	"github.com/walletkit/stellar-kit/internal/metrics"
	"github.com/walletkit/stellar-kit/internal/pubsub"
	"github.com/walletkit/stellar-kit/internal/wallet"
)

const accountSyncerName = "account"

// AccountSyncService keeps the local account snapshot aligned with the
// remote ledger and publishes the snapshot, sync state and added-asset
// events.
type AccountSyncService interface {
	// Sync triggers one fetch/diff/persist/publish cycle asynchronously.
	// While a cycle is in flight further triggers are silent no-ops.
	Sync(ctx context.Context)
	// State returns the current sync state.
	State() wallet.SyncState
	// StatePublisher subscribes to sync state changes; the current state is
	// delivered immediately.
	StatePublisher() (<-chan wallet.SyncState, func())
	// Account returns the latest known snapshot, nil before the first one.
	Account() *wallet.Account
	// AccountPublisher subscribes to snapshot changes; the current snapshot,
	// if any, is delivered immediately.
	AccountPublisher() (<-chan wallet.Account, func())
	// AddedAssetPublisher subscribes to the assets newly received since the
	// previous snapshot. Events are transient and never replayed.
	AddedAssetPublisher() (<-chan []wallet.Asset, func())
}

var _ AccountSyncService = (*accountSyncService)(nil)

type accountSyncService struct {
	accountID      string
	client         horizon.ClientInterface
	models         *data.Models
	pool           pond.Pool
	metricsService metrics.MetricsService
	appTracker     apptracker.AppTracker

	guard       sync.Mutex
	state       *pubsub.Value[wallet.SyncState]
	account     *pubsub.Value[wallet.Account]
	addedAssets *pubsub.Topic[[]wallet.Asset]
}

// NewAccountSyncService wires an account synchronizer, hydrating the
// in-memory snapshot from the store so consumers see the last known state
// before the first remote fetch.
func NewAccountSyncService(ctx context.Context, accountID string, client horizon.ClientInterface, models *data.Models, pool pond.Pool, metricsService metrics.MetricsService, appTracker apptracker.AppTracker) (*accountSyncService, error) {
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

	s := &accountSyncService{
		accountID:      accountID,
		client:         client,
		models:         models,
		pool:           pool,
		metricsService: metricsService,
		appTracker:     appTracker,
		state:          pubsub.NewValueWith(wallet.NotSyncedState(wallet.ErrNotStarted), wallet.SyncState.Equal),
		account:        pubsub.NewValue(wallet.Account.Equal),
		addedAssets:    pubsub.NewTopic[[]wallet.Asset](),
	}

	stored, err := models.Account.Get(ctx)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		s.account.Publish(*stored)
	}
	return s, nil
}

func (s *accountSyncService) Sync(ctx context.Context) {
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

func (s *accountSyncService) sync(ctx context.Context) {
	start := time.Now()

	remote, err := s.client.GetAccount(ctx, s.accountID)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	// An account absent from the ledger is validly synced with no balances.
	if remote == nil {
		remote = &wallet.Account{Balances: map[wallet.Asset]wallet.AssetBalance{}}
	}

	var previous wallet.Account
	if current, ok := s.account.Get(); ok {
		previous = current
	}
	added := addedAssets(previous, *remote)

	// Persistence is best effort: the fresh remote state still reaches
	// subscribers when the local write fails.
	if err := s.models.Account.Replace(ctx, s.accountID, *remote); err != nil {
		log.Ctx(ctx).Errorf("persisting account %s: %v", s.accountID, err)
		if s.appTracker != nil {
			s.appTracker.CaptureException(err)
		}
	}

	s.account.Publish(*remote)
	if len(added) > 0 {
		s.addedAssets.Publish(added)
	}
	s.state.Publish(wallet.SyncedState())
	s.metricsService.ObserveSyncDuration(accountSyncerName, time.Since(start).Seconds())
}

func (s *accountSyncService) fail(ctx context.Context, err error) {
	log.Ctx(ctx).Errorf("account sync for %s failed: %v", s.accountID, err)
	s.metricsService.IncSyncError(accountSyncerName)
	if s.appTracker != nil {
		s.appTracker.CaptureException(err)
	}
	s.state.Publish(wallet.NotSyncedState(err))
}

func (s *accountSyncService) State() wallet.SyncState {
	state, _ := s.state.Get()
	return state
}

func (s *accountSyncService) StatePublisher() (<-chan wallet.SyncState, func()) {
	return s.state.Subscribe()
}

func (s *accountSyncService) Account() *wallet.Account {
	account, ok := s.account.Get()
	if !ok {
		return nil
	}
	return &account
}

func (s *accountSyncService) AccountPublisher() (<-chan wallet.Account, func()) {
	return s.account.Subscribe()
}

func (s *accountSyncService) AddedAssetPublisher() (<-chan []wallet.Asset, func()) {
	return s.addedAssets.Subscribe()
}

// addedAssets returns the assets received since previous: every asset that
// is new with a positive balance, or whose balance strictly increased.
func addedAssets(previous, current wallet.Account) []wallet.Asset {
	known := mapset.NewThreadUnsafeSet[wallet.Asset]()
	for asset := range previous.Balances {
		known.Add(asset)
	}

	var added []wallet.Asset
	for asset, balance := range current.Balances {
		if !known.Contains(asset) {
			if balance.Balance.IsPositive() {
				added = append(added, asset)
			}
			continue
		}
		if balance.Balance.GreaterThan(previous.Balances[asset].Balance) {
			added = append(added, asset)
		}
	}

	sort.Slice(added, func(i, j int) bool { return added[i].ID() < added[j].ID() })
	return added
}
