package data

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletkit/stellar-kit/internal/db/dbtest"
	"github.com/walletkit/stellar-kit/internal/metrics"
	"github.com/walletkit/stellar-kit/internal/wallet"
)

const testAccountID = "GBBD47IF6LWK7P7MDEVSCWR7DPUWV3NY3DTQEVFL4NAT4AQH3ZLLFLA5"

func newAccountModel(t *testing.T) *AccountModel {
	t.Helper()
	return &AccountModel{
		DB:             dbtest.Open(t),
		MetricsService: metrics.NewMetricsService(),
	}
}

func TestAccountModelGetEmpty(t *testing.T) {
	m := newAccountModel(t)

	account, err := m.Get(context.Background())
	require.NoError(t, err)
	assert.Nil(t, account)
}

func TestAccountModelReplaceAndGet(t *testing.T) {
	m := newAccountModel(t)
	ctx := context.Background()

	limit := decimal.RequireFromString("1000")
	usdc := wallet.NewAsset("USDC", "GA5Z")
	account := wallet.Account{
		SubentryCount: 2,
		Balances: map[wallet.Asset]wallet.AssetBalance{
			wallet.NativeAsset(): {Asset: wallet.NativeAsset(), Balance: decimal.RequireFromString("10.5")},
			usdc:                 {Asset: usdc, Balance: decimal.RequireFromString("25"), Limit: &limit},
		},
	}

	require.NoError(t, m.Replace(ctx, testAccountID, account))

	stored, err := m.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, account.Equal(*stored))
}

func TestAccountModelReplaceIsWholesale(t *testing.T) {
	m := newAccountModel(t)
	ctx := context.Background()

	usdc := wallet.NewAsset("USDC", "GA5Z")
	first := wallet.Account{
		SubentryCount: 1,
		Balances: map[wallet.Asset]wallet.AssetBalance{
			wallet.NativeAsset(): {Asset: wallet.NativeAsset(), Balance: decimal.RequireFromString("10")},
			usdc:                 {Asset: usdc, Balance: decimal.RequireFromString("5")},
		},
	}
	require.NoError(t, m.Replace(ctx, testAccountID, first))

	// The trustline disappeared remotely; the replace must not leave the old row behind.
	second := wallet.Account{
		SubentryCount: 0,
		Balances: map[wallet.Asset]wallet.AssetBalance{
			wallet.NativeAsset(): {Asset: wallet.NativeAsset(), Balance: decimal.RequireFromString("12")},
		},
	}
	require.NoError(t, m.Replace(ctx, testAccountID, second))

	stored, err := m.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, second.Equal(*stored))

	var balanceCount int
	require.NoError(t, m.DB.GetContext(ctx, &balanceCount, "SELECT COUNT(*) FROM asset_balances"))
	assert.Equal(t, 1, balanceCount)

	var accountCount int
	require.NoError(t, m.DB.GetContext(ctx, &accountCount, "SELECT COUNT(*) FROM accounts"))
	assert.Equal(t, 1, accountCount)
}
