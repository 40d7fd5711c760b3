package wallet

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAssetID(t *testing.T) {
	native := ParseAssetID("native")
	assert.True(t, native.IsNative())
	assert.Equal(t, "XLM", native.Code())
	assert.Equal(t, "native", native.ID())

	usdc := ParseAssetID("USDC:GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN")
	assert.False(t, usdc.IsNative())
	assert.Equal(t, "USDC", usdc.Code())
	assert.Equal(t, "GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN", usdc.Issuer())
	assert.Equal(t, "USDC:GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN", usdc.ID())
}

func TestAssetMapKey(t *testing.T) {
	balances := map[Asset]string{
		NativeAsset():            "10",
		NewAsset("USDC", "GA5Z"): "5",
	}

	assert.Equal(t, "10", balances[ParseAssetID("native")])
	assert.Equal(t, "5", balances[ParseAssetID("USDC:GA5Z")])
}

func TestAssetJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(map[Asset]int{NewAsset("EURT", "GAP5"): 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"EURT:GAP5": 1}`, string(data))

	var asset Asset
	require.NoError(t, json.Unmarshal([]byte(`"native"`), &asset))
	assert.True(t, asset.IsNative())
}
