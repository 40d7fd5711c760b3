package horizon

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/walletkit/stellar-kit/internal/entities"
	"github.com/walletkit/stellar-kit/internal/wallet"
)

type MockClient struct {
	mock.Mock
}

var _ ClientInterface = (*MockClient)(nil)

func (m *MockClient) GetAccount(ctx context.Context, accountID string) (*wallet.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Account), args.Error(1)
}

func (m *MockClient) GetAccountRecord(ctx context.Context, accountID string) (*entities.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Account), args.Error(1)
}

func (m *MockClient) GetOperations(ctx context.Context, accountID, cursor string, ascending bool, limit int) ([]wallet.TxOperation, error) {
	args := m.Called(ctx, accountID, cursor, ascending, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]wallet.TxOperation), args.Error(1)
}

func (m *MockClient) SubmitTransaction(ctx context.Context, envelopeXDR string) (string, error) {
	args := m.Called(ctx, envelopeXDR)
	return args.String(0), args.Error(1)
}

func (m *MockClient) StreamOperations(ctx context.Context, accountID, cursor string, handler func(wallet.TxOperation)) error {
	args := m.Called(ctx, accountID, cursor, handler)
	return args.Error(0)
}
