// Package kit is the embeddable sync facade: one Kit owns the local store,
// the synchronizers and the transaction service for a single (wallet,
// network) pair.
package kit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/go-playground/validator/v10"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/shopspring/decimal"
	"github.com/stellar/go-stellar-sdk/keypair"
	"github.com/stellar/go-stellar-sdk/network"
	"github.com/stellar/go-stellar-sdk/strkey"
	"github.com/stellar/go-stellar-sdk/support/log"
	"github.com/stellar/go-stellar-sdk/txnbuild"

	"github.com/walletkit/stellar-kit/internal/apptracker"
	"github.com/walletkit/stellar-kit/internal/data"
	"github.com/walletkit/stellar-kit/internal/db"
	"github.com/walletkit/stellar-kit/internal/horizon"
	"github.com/walletkit/stellar-kit/internal/metrics"
	"github.com/walletkit/stellar-kit/internal/services"
	"github.com/walletkit/stellar-kit/internal/utils"
	"github.com/walletkit/stellar-kit/internal/wallet"
)

const (
	syncPoolWorkers = 4

	// streamRetryDelay spaces reconnection attempts of the live operation
	// stream.
	streamRetryDelay = 5 * time.Second
)

// Config wires a Kit. AccountID is the account being synced; WalletID
// namespaces the local database so multiple wallets can share a DataDir.
type Config struct {
	AccountID        string `validate:"required"`
	WalletID         string `validate:"required,excludesall=/\\"`
	DataDir          string `validate:"required"`
	Testnet          bool
	HorizonURL       string `validate:"omitempty,url"`
	MaxBackfillPages int    `validate:"gte=0"`

	// HTTPClient overrides the client used against Horizon; nil selects a
	// default with sane timeouts.
	HTTPClient utils.HTTPClient
	// AppTracker receives sync failures; nil disables tracking.
	AppTracker apptracker.AppTracker
	// MetricsService overrides the Prometheus metrics sink; nil creates one.
	MetricsService metrics.MetricsService
}

var validate = validator.New()

// ValidateAccountID reports whether accountID is a well-formed Stellar
// account public key.
func ValidateAccountID(accountID string) error {
	if _, err := strkey.Decode(strkey.VersionByteAccountID, accountID); err != nil {
		return fmt.Errorf("invalid account id %q: %w", accountID, err)
	}
	return nil
}

// Kit is the sync facade. All methods are safe for concurrent use.
type Kit struct {
	cfg               Config
	networkPassphrase string

	dbConnectionPool db.ConnectionPool
	models           *data.Models
	pool             pond.Pool
	client           horizon.ClientInterface
	metricsService   metrics.MetricsService

	accountSync   services.AccountSyncService
	operationSync services.OperationSyncService
	transactions  services.TransactionService

	streamMu     sync.Mutex
	streamCancel context.CancelFunc
}

// New opens (and migrates) the wallet database for cfg and wires the
// synchronizers. The returned Kit holds the database open until Close.
func New(ctx context.Context, cfg Config) (*Kit, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if err := ValidateAccountID(cfg.AccountID); err != nil {
		return nil, err
	}

	networkPassphrase := network.PublicNetworkPassphrase
	horizonURL := horizon.PublicHorizonURL
	if cfg.Testnet {
		networkPassphrase = network.TestNetworkPassphrase
		horizonURL = horizon.TestnetHorizonURL
	}
	if cfg.HorizonURL != "" {
		horizonURL = cfg.HorizonURL
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	dbPath := DatabasePath(cfg.DataDir, cfg.WalletID, cfg.Testnet)
	if _, err := db.Migrate(ctx, dbPath, migrate.Up, 0); err != nil {
		return nil, fmt.Errorf("migrating wallet database: %w", err)
	}
	dbConnectionPool, err := db.OpenDBConnectionPool(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening wallet database: %w", err)
	}

	metricsService := cfg.MetricsService
	if metricsService == nil {
		metricsService = metrics.NewMetricsService()
	}
	if sqlxDB, err := dbConnectionPool.SqlxDB(ctx); err == nil {
		metricsService.RegisterDBMetrics(cfg.WalletID, sqlxDB)
	}

	models, err := data.NewModels(dbConnectionPool, metricsService)
	if err != nil {
		return nil, closeOnError(dbConnectionPool, err)
	}

	pool := pond.NewPool(syncPoolWorkers)
	metricsService.RegisterPoolMetrics(cfg.WalletID, pool)

	client := horizon.NewClient(horizonURL, cfg.HTTPClient, metricsService)

	accountSync, err := services.NewAccountSyncService(ctx, cfg.AccountID, client, models, pool, metricsService, cfg.AppTracker)
	if err != nil {
		return nil, closeOnError(dbConnectionPool, err)
	}
	operationSync, err := services.NewOperationSyncService(cfg.AccountID, client, models, pool, metricsService, cfg.AppTracker, cfg.MaxBackfillPages)
	if err != nil {
		return nil, closeOnError(dbConnectionPool, err)
	}
	transactions, err := services.NewTransactionService(cfg.AccountID, networkPassphrase, client, accountSync)
	if err != nil {
		return nil, closeOnError(dbConnectionPool, err)
	}

	return &Kit{
		cfg:               cfg,
		networkPassphrase: networkPassphrase,
		dbConnectionPool:  dbConnectionPool,
		models:            models,
		pool:              pool,
		client:            client,
		metricsService:    metricsService,
		accountSync:       accountSync,
		operationSync:     operationSync,
		transactions:      transactions,
	}, nil
}

func closeOnError(pool db.ConnectionPool, err error) error {
	if closeErr := pool.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	return err
}

// Sync triggers both synchronizers. Each runs at most one cycle at a time;
// triggers during a running cycle are no-ops.
func (k *Kit) Sync(ctx context.Context) {
	k.accountSync.Sync(ctx)
	k.operationSync.Sync(ctx)
}

// ReceiveAddress returns the synced account's public key.
func (k *Kit) ReceiveAddress() string {
	return k.cfg.AccountID
}

// BaseFee returns the per-operation fee in XLM offered by Send.
func (k *Kit) BaseFee() decimal.Decimal {
	return services.BaseFee
}

func (k *Kit) SyncState() wallet.SyncState {
	return k.accountSync.State()
}

func (k *Kit) SyncStatePublisher() (<-chan wallet.SyncState, func()) {
	return k.accountSync.StatePublisher()
}

func (k *Kit) OperationSyncState() wallet.SyncState {
	return k.operationSync.State()
}

func (k *Kit) OperationSyncStatePublisher() (<-chan wallet.SyncState, func()) {
	return k.operationSync.StatePublisher()
}

// Account returns the latest known snapshot, nil before the first sync of a
// fresh wallet.
func (k *Kit) Account() *wallet.Account {
	return k.accountSync.Account()
}

func (k *Kit) AccountPublisher() (<-chan wallet.Account, func()) {
	return k.accountSync.AccountPublisher()
}

func (k *Kit) AddedAssetPublisher() (<-chan []wallet.Asset, func()) {
	return k.accountSync.AddedAssetPublisher()
}

// Operations reads the local operation log; it never blocks on a running
// sync.
func (k *Kit) Operations(ctx context.Context, tagQuery wallet.TagQuery, pagingToken string, descending bool, limit int) ([]wallet.TxOperation, error) {
	return k.operationSync.Operations(ctx, tagQuery, pagingToken, descending, limit)
}

func (k *Kit) OperationPublisher(tagQuery wallet.TagQuery) (<-chan wallet.OperationInfo, func()) {
	return k.operationSync.OperationPublisher(tagQuery)
}

func (k *Kit) Assets(ctx context.Context) ([]wallet.Asset, error) {
	return k.operationSync.Assets(ctx)
}

func (k *Kit) PaymentOperations(destination string, asset wallet.Asset, amount decimal.Decimal) ([]txnbuild.Operation, error) {
	return k.transactions.PaymentOperations(destination, asset, amount)
}

func (k *Kit) CreateAccountOperations(destination string, startingBalance decimal.Decimal) ([]txnbuild.Operation, error) {
	return k.transactions.CreateAccountOperations(destination, startingBalance)
}

func (k *Kit) TrustlineOperations(asset wallet.Asset, limit *decimal.Decimal) ([]txnbuild.Operation, error) {
	return k.transactions.TrustlineOperations(asset, limit)
}

func (k *Kit) Send(ctx context.Context, ops []txnbuild.Operation, memo string, kp *keypair.Full) (string, error) {
	return k.transactions.Send(ctx, ops, memo, kp)
}

// StartOperationStream follows the account's live operation feed and
// triggers a sync whenever activity arrives, reconnecting with a fixed
// delay until ctx is cancelled or Close is called. Starting an already
// running stream is a no-op.
func (k *Kit) StartOperationStream(ctx context.Context) {
	k.streamMu.Lock()
	defer k.streamMu.Unlock()
	if k.streamCancel != nil {
		return
	}

	streamCtx, cancel := context.WithCancel(ctx)
	k.streamCancel = cancel

	go func() {
		for {
			err := k.client.StreamOperations(streamCtx, k.cfg.AccountID, "", func(wallet.TxOperation) {
				k.Sync(streamCtx)
			})
			if streamCtx.Err() != nil {
				return
			}
			log.Ctx(streamCtx).Warnf("operation stream interrupted, reconnecting: %v", err)
			select {
			case <-streamCtx.Done():
				return
			case <-time.After(streamRetryDelay):
			}
		}
	}()
}

// StopOperationStream stops the live feed started by StartOperationStream.
func (k *Kit) StopOperationStream() {
	k.streamMu.Lock()
	defer k.streamMu.Unlock()
	if k.streamCancel != nil {
		k.streamCancel()
		k.streamCancel = nil
	}
}

// Close stops the stream and the worker pool and closes the database.
// In-flight sync cycles are allowed to finish.
func (k *Kit) Close() error {
	k.StopOperationStream()
	k.pool.StopAndWait()
	if err := k.dbConnectionPool.Close(); err != nil {
		return fmt.Errorf("closing wallet database: %w", err)
	}
	return nil
}

// DatabasePath returns the wallet database file for a (wallet, network)
// pair inside dataDir.
func DatabasePath(dataDir, walletID string, testnet bool) string {
	networkName := "public"
	if testnet {
		networkName = "testnet"
	}
	return filepath.Join(dataDir, fmt.Sprintf("stellar-%s-%s.db", walletID, networkName))
}

// Clear deletes every kit database under dataDir, forgetting all sync
// progress, except the wallet ids listed in except. The next Kit opened for
// a cleared wallet starts from an empty store.
func Clear(dataDir string, except ...string) error {
	kept := make(map[string]struct{}, len(except)*2)
	for _, walletID := range except {
		for _, testnet := range []bool{false, true} {
			kept[DatabasePath(dataDir, walletID, testnet)] = struct{}{}
		}
	}

	matches, err := filepath.Glob(filepath.Join(dataDir, "stellar-*.db"))
	if err != nil {
		return fmt.Errorf("listing kit databases: %w", err)
	}
	for _, match := range matches {
		if _, ok := kept[match]; ok {
			continue
		}
		// WAL sidecar files go with the database.
		for _, path := range []string{match, match + "-wal", match + "-shm"} {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("removing %s: %w", path, err)
			}
		}
	}
	return nil
}
