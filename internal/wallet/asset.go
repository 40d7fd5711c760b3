package wallet

import (
	"strings"
)

// NativeAssetID is the canonical identifier of the network-native asset (XLM).
const NativeAssetID = "native"

// Asset identifies a fungible asset on the network: either the native asset
// or a (code, issuer) pair. The zero value is the native asset. Assets are
// compared and hashed by their canonical string form, so Asset is usable as
// a map key.
type Asset struct {
	code   string
	issuer string
}

// NativeAsset returns the network-native asset.
func NativeAsset() Asset {
	return Asset{}
}

// NewAsset returns an issued asset with the given code and issuer account.
func NewAsset(code, issuer string) Asset {
	return Asset{code: code, issuer: issuer}
}

// ParseAssetID parses a canonical asset identifier, either "native" or
// "CODE:ISSUER".
func ParseAssetID(id string) Asset {
	parts := strings.SplitN(id, ":", 2)
	if len(parts) == 1 {
		return NativeAsset()
	}
	return Asset{code: parts[0], issuer: parts[1]}
}

func (a Asset) IsNative() bool {
	return a.code == "" && a.issuer == ""
}

// Code returns the asset code, or "XLM" for the native asset.
func (a Asset) Code() string {
	if a.IsNative() {
		return "XLM"
	}
	return a.code
}

// Issuer returns the issuing account, empty for the native asset.
func (a Asset) Issuer() string {
	return a.issuer
}

// ID returns the canonical identifier: "native" or "CODE:ISSUER".
func (a Asset) ID() string {
	if a.IsNative() {
		return NativeAssetID
	}
	return a.code + ":" + a.issuer
}

func (a Asset) String() string {
	return a.ID()
}

// MarshalText implements encoding.TextMarshaler so assets serialize as their
// canonical identifier, including when used as JSON object keys.
func (a Asset) MarshalText() ([]byte, error) {
	return []byte(a.ID()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Asset) UnmarshalText(text []byte) error {
	*a = ParseAssetID(string(text))
	return nil
}
