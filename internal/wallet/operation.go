package wallet

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OperationType discriminates the payload variants of a TxOperation.
type OperationType string

const (
	OperationTypeAccountCreated OperationType = "account_created"
	OperationTypePayment        OperationType = "payment"
	OperationTypeChangeTrust    OperationType = "change_trust"
	OperationTypeUnknown        OperationType = "unknown"
)

// Payload is the closed union of operation kinds.
type Payload interface {
	OperationType() OperationType
}

type AccountCreated struct {
	StartingBalance decimal.Decimal `json:"startingBalance"`
	Funder          string          `json:"funder"`
	Account         string          `json:"account"`
}

func (AccountCreated) OperationType() OperationType { return OperationTypeAccountCreated }

type Payment struct {
	Amount decimal.Decimal `json:"amount"`
	Asset  Asset           `json:"asset"`
	From   string          `json:"from"`
	To     string          `json:"to"`
}

func (Payment) OperationType() OperationType { return OperationTypePayment }

type ChangeTrust struct {
	Trustor         string          `json:"trustor"`
	Trustee         *string         `json:"trustee,omitempty"`
	Asset           Asset           `json:"asset"`
	Limit           decimal.Decimal `json:"limit"`
	LiquidityPoolID *string         `json:"liquidityPoolId,omitempty"`
}

func (ChangeTrust) OperationType() OperationType { return OperationTypeChangeTrust }

type Unknown struct {
	RawType string `json:"rawType"`
}

func (Unknown) OperationType() OperationType { return OperationTypeUnknown }

// TxOperation is an immutable historical event in the account's operation
// log. Operations are append-only: once persisted they are never mutated,
// and re-applying the same operation id is an idempotent upsert.
type TxOperation struct {
	ID                    string
	CreatedAt             time.Time
	PagingToken           string
	SourceAccount         string
	TransactionHash       string
	TransactionSuccessful bool
	Memo                  *string
	FeeCharged            *decimal.Decimal
	Payload               Payload
}

func (o TxOperation) Type() OperationType {
	if o.Payload == nil {
		return OperationTypeUnknown
	}
	return o.Payload.OperationType()
}

// Tags derives the secondary-index facts for this operation relative to the
// owning account. An operation may yield zero, one or two tags; a
// self-payment yields both an incoming and an outgoing tag.
func (o TxOperation) Tags(accountID string) []Tag {
	var tags []Tag

	switch payload := o.Payload.(type) {
	case AccountCreated:
		if payload.Funder == accountID {
			tags = append(tags, Tag{
				OperationID: o.ID,
				Direction:   TagDirectionOutgoing,
				AssetID:     NativeAssetID,
				AccountIDs:  []string{payload.Account},
			})
		}
		if payload.Account == accountID {
			tags = append(tags, Tag{
				OperationID: o.ID,
				Direction:   TagDirectionIncoming,
				AssetID:     NativeAssetID,
				AccountIDs:  []string{payload.Funder},
			})
		}
	case Payment:
		if payload.From == accountID {
			tags = append(tags, Tag{
				OperationID: o.ID,
				Direction:   TagDirectionOutgoing,
				AssetID:     payload.Asset.ID(),
				AccountIDs:  []string{payload.To},
			})
		}
		if payload.To == accountID {
			tags = append(tags, Tag{
				OperationID: o.ID,
				Direction:   TagDirectionIncoming,
				AssetID:     payload.Asset.ID(),
				AccountIDs:  []string{payload.From},
			})
		}
	}

	return tags
}

// MarshalPayload serializes a payload variant for persistence.
func MarshalPayload(p Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshalling %s payload: %w", p.OperationType(), err)
	}
	return data, nil
}

// UnmarshalPayload deserializes a payload variant by its type discriminant.
func UnmarshalPayload(opType OperationType, data []byte) (Payload, error) {
	switch opType {
	case OperationTypeAccountCreated:
		var payload AccountCreated
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("unmarshalling %s payload: %w", opType, err)
		}
		return payload, nil
	case OperationTypePayment:
		var payload Payment
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("unmarshalling %s payload: %w", opType, err)
		}
		return payload, nil
	case OperationTypeChangeTrust:
		var payload ChangeTrust
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("unmarshalling %s payload: %w", opType, err)
		}
		return payload, nil
	case OperationTypeUnknown:
		var payload Unknown
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("unmarshalling %s payload: %w", opType, err)
		}
		return payload, nil
	default:
		return nil, fmt.Errorf("unknown operation type %q", opType)
	}
}

// OperationInfo is a batch of operations delivered to subscribers. Initial
// marks historical backfill batches, as opposed to live catch-up batches.
type OperationInfo struct {
	Operations []TxOperation
	Initial    bool
}
