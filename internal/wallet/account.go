package wallet

import (
	"github.com/shopspring/decimal"
)

// Reserve parameters of the network. An account must keep
// BaseReserve + ReservePerSubentry * subentryCount XLM locked.
var (
	BaseReserve        = decimal.NewFromInt(1)
	ReservePerSubentry = decimal.RequireFromString("0.5")
)

// AssetBalance is an immutable snapshot of one asset held by the account.
type AssetBalance struct {
	Asset   Asset
	Balance decimal.Decimal
	Limit   *decimal.Decimal
}

// Equal reports whether two balances are numerically identical.
func (b AssetBalance) Equal(other AssetBalance) bool {
	if b.Asset != other.Asset || !b.Balance.Equal(other.Balance) {
		return false
	}
	if (b.Limit == nil) != (other.Limit == nil) {
		return false
	}
	return b.Limit == nil || b.Limit.Equal(*other.Limit)
}

// Account is the on-ledger state of the wallet's account: the subentry count
// driving the reserve calculation and one AssetBalance per held asset.
type Account struct {
	SubentryCount uint32
	Balances      map[Asset]AssetBalance
}

// NativeBalance returns the XLM balance, zero if the account holds none.
func (a Account) NativeBalance() decimal.Decimal {
	if balance, ok := a.Balances[NativeAsset()]; ok {
		return balance.Balance
	}
	return decimal.Zero
}

// LockedBalance returns the ledger-imposed minimum balance.
func (a Account) LockedBalance() decimal.Decimal {
	return BaseReserve.Add(ReservePerSubentry.Mul(decimal.NewFromInt(int64(a.SubentryCount))))
}

// AvailableBalance returns the spendable native balance, never negative.
func (a Account) AvailableBalance() decimal.Decimal {
	available := a.NativeBalance().Sub(a.LockedBalance())
	if available.IsNegative() {
		return decimal.Zero
	}
	return available
}

// Equal reports whether two snapshots carry the same state.
func (a Account) Equal(other Account) bool {
	if a.SubentryCount != other.SubentryCount || len(a.Balances) != len(other.Balances) {
		return false
	}
	for asset, balance := range a.Balances {
		otherBalance, ok := other.Balances[asset]
		if !ok || !balance.Equal(otherBalance) {
			return false
		}
	}
	return true
}
