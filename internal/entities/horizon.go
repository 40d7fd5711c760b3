// Package entities holds the wire-format payloads of the Horizon REST API,
// in the shape needed by this kit.
package entities

import "time"

const (
	AssetTypeNative = "native"

	OperationTypeCreateAccount = "create_account"
	OperationTypePayment       = "payment"
	OperationTypeChangeTrust   = "change_trust"

	MemoTypeText = "text"

	// MemoRequiredDataKey is the account data entry consulted before
	// submitting a memo-less payment (SEP-29). MemoRequiredDataValue is the
	// base64 encoding of "1".
	MemoRequiredDataKey   = "config.memo_required"
	MemoRequiredDataValue = "MQ=="
)

type Account struct {
	ID            string            `json:"id"`
	AccountID     string            `json:"account_id"`
	Sequence      string            `json:"sequence"`
	SubentryCount uint32            `json:"subentry_count"`
	Balances      []Balance         `json:"balances"`
	Data          map[string]string `json:"data"`
}

type Balance struct {
	Balance     string `json:"balance"`
	Limit       string `json:"limit,omitempty"`
	AssetType   string `json:"asset_type"`
	AssetCode   string `json:"asset_code,omitempty"`
	AssetIssuer string `json:"asset_issuer,omitempty"`
}

// Transaction carries the transaction fields joined onto operation records
// via join=transactions.
type Transaction struct {
	Memo       string `json:"memo,omitempty"`
	MemoType   string `json:"memo_type,omitempty"`
	FeeCharged string `json:"fee_charged,omitempty"`
}

// Operation is the flat superset of the per-type operation record fields
// this kit consumes.
type Operation struct {
	ID                    string       `json:"id"`
	PagingToken           string       `json:"paging_token"`
	Type                  string       `json:"type"`
	CreatedAt             time.Time    `json:"created_at"`
	SourceAccount         string       `json:"source_account"`
	TransactionHash       string       `json:"transaction_hash"`
	TransactionSuccessful bool         `json:"transaction_successful"`
	Transaction           *Transaction `json:"transaction,omitempty"`

	// create_account
	StartingBalance string `json:"starting_balance,omitempty"`
	Funder          string `json:"funder,omitempty"`
	Account         string `json:"account,omitempty"`

	// payment
	AssetType   string `json:"asset_type,omitempty"`
	AssetCode   string `json:"asset_code,omitempty"`
	AssetIssuer string `json:"asset_issuer,omitempty"`
	From        string `json:"from,omitempty"`
	To          string `json:"to,omitempty"`
	Amount      string `json:"amount,omitempty"`

	// change_trust
	Trustor         string `json:"trustor,omitempty"`
	Trustee         string `json:"trustee,omitempty"`
	Limit           string `json:"limit,omitempty"`
	LiquidityPoolID string `json:"liquidity_pool_id,omitempty"`
}

type OperationsPage struct {
	Embedded struct {
		Records []Operation `json:"records"`
	} `json:"_embedded"`
}

// TransactionSuccess is the Horizon response to a successful submission.
type TransactionSuccess struct {
	ID         string `json:"id"`
	Hash       string `json:"hash"`
	Ledger     int64  `json:"ledger"`
	Successful bool   `json:"successful"`
}

// Problem is the RFC 7807 error document Horizon returns on failures.
type Problem struct {
	Type   string                 `json:"type"`
	Title  string                 `json:"title"`
	Status int                    `json:"status"`
	Detail string                 `json:"detail,omitempty"`
	Extras map[string]interface{} `json:"extras,omitempty"`
}
