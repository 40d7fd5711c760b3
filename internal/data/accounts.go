// AccountModel persists the singleton account snapshot and its asset
// balances. The snapshot is replaced wholesale on every successful sync,
// never partially updated.

package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/guregu/null"
	"github.com/shopspring/decimal"

	"github.com/walletkit/stellar-kit/internal/db"
	"github.com/walletkit/stellar-kit/internal/metrics"
	"github.com/walletkit/stellar-kit/internal/wallet"
)

type AccountModel struct {
	DB             db.ConnectionPool
	MetricsService metrics.MetricsService
}

type accountRow struct {
	AccountID     string `db:"account_id"`
	SubentryCount uint32 `db:"subentry_count"`
}

type assetBalanceRow struct {
	AccountID  string      `db:"account_id"`
	AssetID    string      `db:"asset_id"`
	Balance    string      `db:"balance"`
	TrustLimit null.String `db:"trust_limit"`
}

// Get returns the persisted account snapshot, or nil if none was stored yet.
func (m *AccountModel) Get(ctx context.Context) (*wallet.Account, error) {
	const query = `SELECT account_id, subentry_count FROM accounts LIMIT 1`
	var row accountRow
	start := time.Now()
	err := m.DB.GetContext(ctx, &row, query)
	m.MetricsService.ObserveDBQueryDuration("SELECT", "accounts", time.Since(start).Seconds())
	if errors.Is(err, sql.ErrNoRows) {
		m.MetricsService.IncDBQuery("SELECT", "accounts")
		return nil, nil
	}
	if err != nil {
		m.MetricsService.IncDBQueryError("SELECT", "accounts")
		return nil, fmt.Errorf("getting account: %w", err)
	}
	m.MetricsService.IncDBQuery("SELECT", "accounts")

	const balancesQuery = `SELECT account_id, asset_id, balance, trust_limit FROM asset_balances WHERE account_id = ?`
	var balanceRows []assetBalanceRow
	start = time.Now()
	err = m.DB.SelectContext(ctx, &balanceRows, balancesQuery, row.AccountID)
	m.MetricsService.ObserveDBQueryDuration("SELECT", "asset_balances", time.Since(start).Seconds())
	if err != nil {
		m.MetricsService.IncDBQueryError("SELECT", "asset_balances")
		return nil, fmt.Errorf("getting asset balances: %w", err)
	}
	m.MetricsService.IncDBQuery("SELECT", "asset_balances")

	balances := make(map[wallet.Asset]wallet.AssetBalance, len(balanceRows))
	for _, balanceRow := range balanceRows {
		balance, err := parseAssetBalanceRow(balanceRow)
		if err != nil {
			return nil, err
		}
		balances[balance.Asset] = balance
	}

	return &wallet.Account{SubentryCount: row.SubentryCount, Balances: balances}, nil
}

// Replace stores the new snapshot wholesale: the account row is upserted and
// the balance rows are deleted and re-inserted in one transaction.
func (m *AccountModel) Replace(ctx context.Context, accountID string, account wallet.Account) error {
	start := time.Now()
	err := db.RunInTransaction(ctx, m.DB, nil, func(dbTx db.Transaction) error {
		const upsertQuery = `
			INSERT INTO accounts (account_id, subentry_count)
			VALUES (?, ?)
			ON CONFLICT (account_id) DO UPDATE SET subentry_count = excluded.subentry_count`
		if _, err := dbTx.ExecContext(ctx, upsertQuery, accountID, account.SubentryCount); err != nil {
			return fmt.Errorf("upserting account %s: %w", accountID, err)
		}

		if _, err := dbTx.ExecContext(ctx, `DELETE FROM asset_balances WHERE account_id = ?`, accountID); err != nil {
			return fmt.Errorf("deleting asset balances: %w", err)
		}

		const insertQuery = `
			INSERT INTO asset_balances (account_id, asset_id, balance, trust_limit)
			VALUES (?, ?, ?, ?)`
		for _, balance := range account.Balances {
			var trustLimit null.String
			if balance.Limit != nil {
				trustLimit = null.StringFrom(balance.Limit.String())
			}
			if _, err := dbTx.ExecContext(ctx, insertQuery, accountID, balance.Asset.ID(), balance.Balance.String(), trustLimit); err != nil {
				return fmt.Errorf("inserting asset balance %s: %w", balance.Asset.ID(), err)
			}
		}
		return nil
	})
	m.MetricsService.ObserveDBQueryDuration("REPLACE", "accounts", time.Since(start).Seconds())
	if err != nil {
		m.MetricsService.IncDBQueryError("REPLACE", "accounts")
		return fmt.Errorf("replacing account snapshot: %w", err)
	}
	m.MetricsService.IncDBQuery("REPLACE", "accounts")
	return nil
}

func parseAssetBalanceRow(row assetBalanceRow) (wallet.AssetBalance, error) {
	balance, err := decimal.NewFromString(row.Balance)
	if err != nil {
		return wallet.AssetBalance{}, fmt.Errorf("parsing balance %q of asset %s: %w", row.Balance, row.AssetID, err)
	}

	assetBalance := wallet.AssetBalance{
		Asset:   wallet.ParseAssetID(row.AssetID),
		Balance: balance,
	}
	if row.TrustLimit.Valid {
		limit, err := decimal.NewFromString(row.TrustLimit.String)
		if err != nil {
			return wallet.AssetBalance{}, fmt.Errorf("parsing trust limit %q of asset %s: %w", row.TrustLimit.String, row.AssetID, err)
		}
		assetBalance.Limit = &limit
	}
	return assetBalance, nil
}
