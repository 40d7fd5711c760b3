package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/stellar/go-stellar-sdk/keypair"
	"github.com/stellar/go-stellar-sdk/txnbuild"

	"github.com/walletkit/stellar-kit/internal/entities"
	"github.com/walletkit/stellar-kit/internal/horizon"
	"github.com/walletkit/stellar-kit/internal/wallet"
)

const (
	// baseFeeStroops is the fee offered per operation, in stroops.
	baseFeeStroops = 1000

	// transactionTimeout bounds the validity window of built transactions,
	// in seconds.
	transactionTimeout = 300
)

// BaseFee is the per-operation fee in XLM corresponding to baseFeeStroops.
var BaseFee = decimal.New(baseFeeStroops, -7)

// TransactionService builds, signs and submits transactions for the
// wallet's account. Construction errors are synchronous and never touch
// the synchronizers' state.
type TransactionService interface {
	// PaymentOperations builds a payment of amount in asset to destination,
	// rejecting amounts above the spendable balance.
	PaymentOperations(destination string, asset wallet.Asset, amount decimal.Decimal) ([]txnbuild.Operation, error)
	// CreateAccountOperations builds the funding of a new account.
	CreateAccountOperations(destination string, startingBalance decimal.Decimal) ([]txnbuild.Operation, error)
	// TrustlineOperations builds a change-trust for asset; a nil limit
	// requests the maximum, a zero limit removes the trustline.
	TrustlineOperations(asset wallet.Asset, limit *decimal.Decimal) ([]txnbuild.Operation, error)
	// Send builds a transaction from ops, signs it with kp and submits it,
	// returning the transaction id. A non-empty memo is attached as a text
	// memo; without one, a payment destination that opted into SEP-29 memo
	// enforcement yields a DestinationRequiresMemoError.
	Send(ctx context.Context, ops []txnbuild.Operation, memo string, kp *keypair.Full) (string, error)
}

var _ TransactionService = (*transactionService)(nil)

type transactionService struct {
	accountID         string
	networkPassphrase string
	client            horizon.ClientInterface
	accountSync       AccountSyncService
}

func NewTransactionService(accountID, networkPassphrase string, client horizon.ClientInterface, accountSync AccountSyncService) (*transactionService, error) {
	if accountID == "" {
		return nil, errors.New("accountID cannot be empty")
	}
	if networkPassphrase == "" {
		return nil, errors.New("networkPassphrase cannot be empty")
	}
	if client == nil {
		return nil, errors.New("client cannot be nil")
	}
	if accountSync == nil {
		return nil, errors.New("accountSync cannot be nil")
	}

	return &transactionService{
		accountID:         accountID,
		networkPassphrase: networkPassphrase,
		client:            client,
		accountSync:       accountSync,
	}, nil
}

func (s *transactionService) PaymentOperations(destination string, asset wallet.Asset, amount decimal.Decimal) ([]txnbuild.Operation, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("payment amount must be positive, got %s", amount)
	}
	if err := s.checkBalance(asset, amount); err != nil {
		return nil, err
	}

	return []txnbuild.Operation{
		&txnbuild.Payment{
			Destination:   destination,
			Amount:        amount.StringFixed(7),
			Asset:         convertTxnAsset(asset),
			SourceAccount: s.accountID,
		},
	}, nil
}

func (s *transactionService) CreateAccountOperations(destination string, startingBalance decimal.Decimal) ([]txnbuild.Operation, error) {
	if !startingBalance.IsPositive() {
		return nil, fmt.Errorf("starting balance must be positive, got %s", startingBalance)
	}
	if err := s.checkBalance(wallet.NativeAsset(), startingBalance); err != nil {
		return nil, err
	}

	return []txnbuild.Operation{
		&txnbuild.CreateAccount{
			Destination:   destination,
			Amount:        startingBalance.StringFixed(7),
			SourceAccount: s.accountID,
		},
	}, nil
}

func (s *transactionService) TrustlineOperations(asset wallet.Asset, limit *decimal.Decimal) ([]txnbuild.Operation, error) {
	if asset.IsNative() {
		return nil, fmt.Errorf("cannot change trust for the native asset")
	}

	trustLimit := txnbuild.MaxTrustlineLimit
	if limit != nil {
		trustLimit = limit.StringFixed(7)
	}

	return []txnbuild.Operation{
		&txnbuild.ChangeTrust{
			Line: txnbuild.ChangeTrustAssetWrapper{
				Asset: txnbuild.CreditAsset{Code: asset.Code(), Issuer: asset.Issuer()},
			},
			Limit:         trustLimit,
			SourceAccount: s.accountID,
		},
	}, nil
}

// checkBalance rejects amounts above the spendable balance of asset,
// using the latest synced snapshot. With no snapshot yet the check is
// skipped and the ledger has the final word.
func (s *transactionService) checkBalance(asset wallet.Asset, amount decimal.Decimal) error {
	account := s.accountSync.Account()
	if account == nil {
		return nil
	}

	if asset.IsNative() {
		if amount.GreaterThan(account.AvailableBalance()) {
			return ErrInsufficientBalance
		}
		return nil
	}
	balance, ok := account.Balances[asset]
	if !ok || amount.GreaterThan(balance.Balance) {
		return ErrInsufficientBalance
	}
	return nil
}

func (s *transactionService) Send(ctx context.Context, ops []txnbuild.Operation, memo string, kp *keypair.Full) (string, error) {
	if len(ops) == 0 {
		return "", errors.New("no operations to send")
	}
	if kp == nil {
		return "", errors.New("keypair cannot be nil")
	}

	if memo == "" {
		if err := s.checkMemoRequired(ctx, ops); err != nil {
			return "", err
		}
	}

	record, err := s.client.GetAccountRecord(ctx, s.accountID)
	if horizon.IsNotFoundError(err) {
		return "", ErrAccountNotFound
	}
	if err != nil {
		return "", fmt.Errorf("fetching source account: %w", err)
	}
	sequence, err := strconv.ParseInt(record.Sequence, 10, 64)
	if err != nil {
		return "", fmt.Errorf("parsing sequence number %q: %w", record.Sequence, err)
	}

	params := txnbuild.TransactionParams{
		SourceAccount:        &txnbuild.SimpleAccount{AccountID: s.accountID, Sequence: sequence},
		IncrementSequenceNum: true,
		Operations:           ops,
		BaseFee:              baseFeeStroops,
		Preconditions:        txnbuild.Preconditions{TimeBounds: txnbuild.NewTimeout(transactionTimeout)},
	}
	if memo != "" {
		params.Memo = txnbuild.MemoText(memo)
	}

	tx, err := txnbuild.NewTransaction(params)
	if err != nil {
		return "", fmt.Errorf("building transaction: %w", err)
	}
	tx, err = tx.Sign(s.networkPassphrase, kp)
	if err != nil {
		return "", fmt.Errorf("signing transaction: %w", err)
	}
	envelope, err := tx.Base64()
	if err != nil {
		return "", fmt.Errorf("encoding transaction: %w", err)
	}

	id, err := s.client.SubmitTransaction(ctx, envelope)
	if err != nil {
		return "", fmt.Errorf("submitting transaction: %w", err)
	}
	return id, nil
}

// checkMemoRequired rejects memo-less sends whose payment destination has
// the SEP-29 config.memo_required data entry set.
func (s *transactionService) checkMemoRequired(ctx context.Context, ops []txnbuild.Operation) error {
	for _, op := range ops {
		payment, ok := op.(*txnbuild.Payment)
		if !ok {
			continue
		}
		record, err := s.client.GetAccountRecord(ctx, payment.Destination)
		if horizon.IsNotFoundError(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("fetching destination account %s: %w", payment.Destination, err)
		}
		if record.Data[entities.MemoRequiredDataKey] == entities.MemoRequiredDataValue {
			return &horizon.DestinationRequiresMemoError{DestinationAccountID: payment.Destination}
		}
	}
	return nil
}

func convertTxnAsset(asset wallet.Asset) txnbuild.Asset {
	if asset.IsNative() {
		return txnbuild.NativeAsset{}
	}
	return txnbuild.CreditAsset{Code: asset.Code(), Issuer: asset.Issuer()}
}
