package horizon

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stellar/go-stellar-sdk/support/log"

	"github.com/walletkit/stellar-kit/internal/entities"
	"github.com/walletkit/stellar-kit/internal/utils"
	"github.com/walletkit/stellar-kit/internal/wallet"
)

// ConvertAccount maps a raw Horizon account record to the kit's account
// snapshot. Individual balance entries that fail to parse are skipped with a
// warning rather than failing the whole account.
func ConvertAccount(ctx context.Context, record *entities.Account) *wallet.Account {
	account := &wallet.Account{
		SubentryCount: record.SubentryCount,
		Balances:      make(map[wallet.Asset]wallet.AssetBalance, len(record.Balances)),
	}

	for _, entry := range record.Balances {
		asset, ok := convertBalanceAsset(entry)
		if !ok {
			continue
		}
		amount, err := decimal.NewFromString(entry.Balance)
		if err != nil {
			log.Ctx(ctx).Warnf("skipping balance of %s on account %s: %v", asset.ID(), record.AccountID, err)
			continue
		}
		balance := wallet.AssetBalance{Asset: asset, Balance: amount}
		if entry.Limit != "" {
			limit, err := decimal.NewFromString(entry.Limit)
			if err != nil {
				log.Ctx(ctx).Warnf("skipping trust limit of %s on account %s: %v", asset.ID(), record.AccountID, err)
			} else {
				balance.Limit = &limit
			}
		}
		account.Balances[asset] = balance
	}

	return account
}

func convertBalanceAsset(entry entities.Balance) (wallet.Asset, bool) {
	switch entry.AssetType {
	case entities.AssetTypeNative:
		return wallet.NativeAsset(), true
	default:
		// Pool shares and other unrepresentable entries are not tracked.
		if entry.AssetCode == "" || entry.AssetIssuer == "" {
			return wallet.Asset{}, false
		}
		return wallet.NewAsset(entry.AssetCode, entry.AssetIssuer), true
	}
}

// ConvertOperation maps a raw Horizon operation record to the kit's
// domain form. Unrecognized operation types still convert, carrying an
// Unknown payload; a record missing its required fields is an error and the
// caller drops it.
func ConvertOperation(record entities.Operation) (wallet.TxOperation, error) {
	if record.ID == "" || record.PagingToken == "" {
		return wallet.TxOperation{}, fmt.Errorf("operation record missing id or paging token")
	}

	op := wallet.TxOperation{
		ID:                    record.ID,
		CreatedAt:             record.CreatedAt,
		PagingToken:           record.PagingToken,
		SourceAccount:         record.SourceAccount,
		TransactionHash:       record.TransactionHash,
		TransactionSuccessful: record.TransactionSuccessful,
	}

	if tx := record.Transaction; tx != nil {
		if tx.MemoType == entities.MemoTypeText && tx.Memo != "" {
			op.Memo = utils.PointOf(tx.Memo)
		}
		if tx.FeeCharged != "" {
			stroops, err := decimal.NewFromString(tx.FeeCharged)
			if err != nil {
				return wallet.TxOperation{}, fmt.Errorf("parsing fee %q: %w", tx.FeeCharged, err)
			}
			// fee_charged is denominated in stroops.
			op.FeeCharged = utils.PointOf(stroops.Shift(-7))
		}
	}

	payload, err := convertPayload(record)
	if err != nil {
		return wallet.TxOperation{}, err
	}
	op.Payload = payload
	return op, nil
}

func convertPayload(record entities.Operation) (wallet.Payload, error) {
	switch record.Type {
	case entities.OperationTypeCreateAccount:
		startingBalance, err := decimal.NewFromString(record.StartingBalance)
		if err != nil {
			return nil, fmt.Errorf("parsing starting balance %q: %w", record.StartingBalance, err)
		}
		return wallet.AccountCreated{
			StartingBalance: startingBalance,
			Funder:          record.Funder,
			Account:         record.Account,
		}, nil

	case entities.OperationTypePayment:
		amount, err := decimal.NewFromString(record.Amount)
		if err != nil {
			return nil, fmt.Errorf("parsing payment amount %q: %w", record.Amount, err)
		}
		asset, err := convertOperationAsset(record)
		if err != nil {
			return nil, err
		}
		return wallet.Payment{
			Amount: amount,
			Asset:  asset,
			From:   record.From,
			To:     record.To,
		}, nil

	case entities.OperationTypeChangeTrust:
		limit, err := decimal.NewFromString(record.Limit)
		if err != nil {
			return nil, fmt.Errorf("parsing trust limit %q: %w", record.Limit, err)
		}
		changeTrust := wallet.ChangeTrust{
			Trustor: record.Trustor,
			Limit:   limit,
		}
		if record.Trustee != "" {
			changeTrust.Trustee = utils.PointOf(record.Trustee)
		}
		if record.LiquidityPoolID != "" {
			// Pool-share trustlines carry a pool id instead of an asset.
			changeTrust.LiquidityPoolID = utils.PointOf(record.LiquidityPoolID)
		} else {
			asset, err := convertOperationAsset(record)
			if err != nil {
				return nil, err
			}
			changeTrust.Asset = asset
		}
		return changeTrust, nil

	default:
		return wallet.Unknown{RawType: record.Type}, nil
	}
}

func convertOperationAsset(record entities.Operation) (wallet.Asset, error) {
	if record.AssetType == entities.AssetTypeNative {
		return wallet.NativeAsset(), nil
	}
	if record.AssetCode == "" || record.AssetIssuer == "" {
		return wallet.Asset{}, fmt.Errorf("operation %s has incomplete asset (type %q)", record.ID, record.AssetType)
	}
	return wallet.NewAsset(record.AssetCode, record.AssetIssuer), nil
}
