package services

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stellar/go-stellar-sdk/keypair"
	"github.com/stellar/go-stellar-sdk/txnbuild"
	"github.com/stretchr/testify/mock"

	"github.com/walletkit/stellar-kit/internal/wallet"
)

type MockAccountSyncService struct {
	mock.Mock
}

var _ AccountSyncService = (*MockAccountSyncService)(nil)

func (m *MockAccountSyncService) Sync(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockAccountSyncService) State() wallet.SyncState {
	args := m.Called()
	return args.Get(0).(wallet.SyncState)
}

func (m *MockAccountSyncService) StatePublisher() (<-chan wallet.SyncState, func()) {
	args := m.Called()
	return args.Get(0).(<-chan wallet.SyncState), args.Get(1).(func())
}

func (m *MockAccountSyncService) Account() *wallet.Account {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*wallet.Account)
}

func (m *MockAccountSyncService) AccountPublisher() (<-chan wallet.Account, func()) {
	args := m.Called()
	return args.Get(0).(<-chan wallet.Account), args.Get(1).(func())
}

func (m *MockAccountSyncService) AddedAssetPublisher() (<-chan []wallet.Asset, func()) {
	args := m.Called()
	return args.Get(0).(<-chan []wallet.Asset), args.Get(1).(func())
}

type MockOperationSyncService struct {
	mock.Mock
}

var _ OperationSyncService = (*MockOperationSyncService)(nil)

func (m *MockOperationSyncService) Sync(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockOperationSyncService) State() wallet.SyncState {
	args := m.Called()
	return args.Get(0).(wallet.SyncState)
}

func (m *MockOperationSyncService) StatePublisher() (<-chan wallet.SyncState, func()) {
	args := m.Called()
	return args.Get(0).(<-chan wallet.SyncState), args.Get(1).(func())
}

func (m *MockOperationSyncService) Operations(ctx context.Context, tagQuery wallet.TagQuery, pagingToken string, descending bool, limit int) ([]wallet.TxOperation, error) {
	args := m.Called(ctx, tagQuery, pagingToken, descending, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]wallet.TxOperation), args.Error(1)
}

func (m *MockOperationSyncService) OperationPublisher(tagQuery wallet.TagQuery) (<-chan wallet.OperationInfo, func()) {
	args := m.Called(tagQuery)
	return args.Get(0).(<-chan wallet.OperationInfo), args.Get(1).(func())
}

func (m *MockOperationSyncService) Assets(ctx context.Context) ([]wallet.Asset, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]wallet.Asset), args.Error(1)
}

type MockTransactionService struct {
	mock.Mock
}

var _ TransactionService = (*MockTransactionService)(nil)

func (m *MockTransactionService) PaymentOperations(destination string, asset wallet.Asset, amount decimal.Decimal) ([]txnbuild.Operation, error) {
	args := m.Called(destination, asset, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]txnbuild.Operation), args.Error(1)
}

func (m *MockTransactionService) CreateAccountOperations(destination string, startingBalance decimal.Decimal) ([]txnbuild.Operation, error) {
	args := m.Called(destination, startingBalance)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]txnbuild.Operation), args.Error(1)
}

func (m *MockTransactionService) TrustlineOperations(asset wallet.Asset, limit *decimal.Decimal) ([]txnbuild.Operation, error) {
	args := m.Called(asset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]txnbuild.Operation), args.Error(1)
}

func (m *MockTransactionService) Send(ctx context.Context, ops []txnbuild.Operation, memo string, kp *keypair.Full) (string, error) {
	args := m.Called(ctx, ops, memo, kp)
	return args.String(0), args.Error(1)
}
