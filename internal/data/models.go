package data

import (
	"errors"

	"github.com/walletkit/stellar-kit/internal/db"
	"github.com/walletkit/stellar-kit/internal/metrics"
)

type Models struct {
	Account    *AccountModel
	Operations *OperationModel
}

func NewModels(db db.ConnectionPool, metricsService metrics.MetricsService) (*Models, error) {
	if db == nil {
		return nil, errors.New("ConnectionPool must be initialized")
	}
	if metricsService == nil {
		return nil, errors.New("MetricsService must be initialized")
	}

	return &Models{
		Account:    &AccountModel{DB: db, MetricsService: metricsService},
		Operations: &OperationModel{DB: db, MetricsService: metricsService},
	}, nil
}
