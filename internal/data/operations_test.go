package data

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletkit/stellar-kit/internal/db/dbtest"
	"github.com/walletkit/stellar-kit/internal/metrics"
	"github.com/walletkit/stellar-kit/internal/wallet"
)

const counterpartyID = "GA7QYNF7SOWQ3GLR2BGMZEHXAVIRZA4KVWLTJJFC7MGXUA74P7UJVSGZ"

func newOperationModel(t *testing.T) *OperationModel {
	t.Helper()
	return &OperationModel{
		DB:             dbtest.Open(t),
		MetricsService: metrics.NewMetricsService(),
	}
}

func testPayment(seq int, from, to string, asset wallet.Asset) wallet.TxOperation {
	memo := "memo"
	fee := decimal.RequireFromString("0.00001")
	return wallet.TxOperation{
		ID:                    fmt.Sprintf("%06d", seq),
		CreatedAt:             time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(seq) * time.Minute),
		PagingToken:           fmt.Sprintf("%06d", seq),
		SourceAccount:         from,
		TransactionHash:       fmt.Sprintf("hash-%06d", seq),
		TransactionSuccessful: true,
		Memo:                  &memo,
		FeeCharged:            &fee,
		Payload: wallet.Payment{
			Amount: decimal.RequireFromString("1.5"),
			Asset:  asset,
			From:   from,
			To:     to,
		},
	}
}

func saveWithTags(t *testing.T, m *OperationModel, ops ...wallet.TxOperation) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, m.BatchUpsert(ctx, ops))
	var tags []wallet.Tag
	for _, op := range ops {
		tags = append(tags, op.Tags(testAccountID)...)
	}
	require.NoError(t, m.UpsertTags(ctx, tags))
}

func TestOperationModelUpsertIsIdempotent(t *testing.T) {
	m := newOperationModel(t)
	ctx := context.Background()

	op := testPayment(1, testAccountID, counterpartyID, wallet.NativeAsset())
	saveWithTags(t, m, op)
	saveWithTags(t, m, op)

	var opCount int
	require.NoError(t, m.DB.GetContext(ctx, &opCount, "SELECT COUNT(*) FROM operations"))
	assert.Equal(t, 1, opCount)

	var tagCount int
	require.NoError(t, m.DB.GetContext(ctx, &tagCount, "SELECT COUNT(*) FROM tags"))
	assert.Equal(t, 1, tagCount)
}

func TestOperationModelRoundTrip(t *testing.T) {
	m := newOperationModel(t)
	ctx := context.Background()

	op := testPayment(7, counterpartyID, testAccountID, wallet.NewAsset("USDC", "GA5Z"))
	saveWithTags(t, m, op)

	stored, err := m.Get(ctx, op.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)

	assert.Equal(t, op.ID, stored.ID)
	assert.Equal(t, op.PagingToken, stored.PagingToken)
	assert.True(t, op.CreatedAt.Equal(stored.CreatedAt))
	assert.Equal(t, op.TransactionHash, stored.TransactionHash)
	require.NotNil(t, stored.Memo)
	assert.Equal(t, *op.Memo, *stored.Memo)
	require.NotNil(t, stored.FeeCharged)
	assert.True(t, op.FeeCharged.Equal(*stored.FeeCharged))

	payment, ok := stored.Payload.(wallet.Payment)
	require.True(t, ok)
	assert.Equal(t, "USDC:GA5Z", payment.Asset.ID())
	assert.True(t, payment.Amount.Equal(decimal.RequireFromString("1.5")))
}

func TestOperationModelListTagConjunction(t *testing.T) {
	m := newOperationModel(t)
	ctx := context.Background()

	usdc := wallet.NewAsset("USDC", "GA5Z")
	outNative := testPayment(1, testAccountID, counterpartyID, wallet.NativeAsset())
	inNative := testPayment(2, counterpartyID, testAccountID, wallet.NativeAsset())
	inUSDC := testPayment(3, counterpartyID, testAccountID, usdc)
	saveWithTags(t, m, outNative, inNative, inUSDC)

	testCases := []struct {
		name     string
		query    wallet.TagQuery
		expected []string
	}{
		{name: "empty query returns everything", query: wallet.TagQuery{}, expected: []string{"000001", "000002", "000003"}},
		{name: "direction only", query: wallet.TagQuery{Direction: wallet.TagDirectionIncoming}, expected: []string{"000002", "000003"}},
		{name: "asset only", query: wallet.TagQuery{AssetID: "native"}, expected: []string{"000001", "000002"}},
		{name: "direction and asset", query: wallet.TagQuery{Direction: wallet.TagDirectionIncoming, AssetID: "native"}, expected: []string{"000002"}},
		{name: "all three dimensions", query: wallet.TagQuery{Direction: wallet.TagDirectionOutgoing, AssetID: "native", AccountID: counterpartyID}, expected: []string{"000001"}},
		{name: "no match", query: wallet.TagQuery{Direction: wallet.TagDirectionSwap}, expected: []string{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ops, err := m.List(ctx, tc.query, "", false, 0)
			require.NoError(t, err)

			ids := make([]string, 0, len(ops))
			for _, op := range ops {
				ids = append(ids, op.ID)
			}
			assert.Equal(t, tc.expected, ids)
		})
	}
}

func TestOperationModelListCollapsesMultiTagOperations(t *testing.T) {
	m := newOperationModel(t)
	ctx := context.Background()

	// A self-payment derives both an incoming and an outgoing tag.
	selfPayment := testPayment(1, testAccountID, testAccountID, wallet.NativeAsset())
	saveWithTags(t, m, selfPayment)

	var tagCount int
	require.NoError(t, m.DB.GetContext(ctx, &tagCount, "SELECT COUNT(*) FROM tags"))
	require.Equal(t, 2, tagCount)

	ops, err := m.List(ctx, wallet.TagQuery{AssetID: "native"}, "", false, 0)
	require.NoError(t, err)
	assert.Len(t, ops, 1)
}

func TestOperationModelListCursorAndOrdering(t *testing.T) {
	m := newOperationModel(t)
	ctx := context.Background()

	var ops []wallet.TxOperation
	for seq := 1; seq <= 5; seq++ {
		ops = append(ops, testPayment(seq, testAccountID, counterpartyID, wallet.NativeAsset()))
	}
	saveWithTags(t, m, ops...)

	ascending, err := m.List(ctx, wallet.TagQuery{}, "000002", false, 2)
	require.NoError(t, err)
	require.Len(t, ascending, 2)
	assert.Equal(t, "000003", ascending[0].ID)
	assert.Equal(t, "000004", ascending[1].ID)

	descending, err := m.List(ctx, wallet.TagQuery{}, "000004", true, 0)
	require.NoError(t, err)
	require.Len(t, descending, 3)
	assert.Equal(t, "000003", descending[0].ID)
	assert.Equal(t, "000001", descending[2].ID)
}

func TestOperationModelLatestOldest(t *testing.T) {
	m := newOperationModel(t)
	ctx := context.Background()

	latest, err := m.Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	saveWithTags(t, m,
		testPayment(3, testAccountID, counterpartyID, wallet.NativeAsset()),
		testPayment(1, testAccountID, counterpartyID, wallet.NativeAsset()),
		testPayment(2, testAccountID, counterpartyID, wallet.NativeAsset()),
	)

	latest, err = m.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "000003", latest.PagingToken)

	oldest, err := m.Oldest(ctx)
	require.NoError(t, err)
	require.NotNil(t, oldest)
	assert.Equal(t, "000001", oldest.PagingToken)
}

func TestOperationModelPagingTokenNumericOrder(t *testing.T) {
	m := newOperationModel(t)
	ctx := context.Background()

	// Tokens crossing a digit-length boundary: lexicographically "1000"
	// sorts before "999", numerically it comes after.
	var ops []wallet.TxOperation
	for i, token := range []string{"999", "1000", "1001"} {
		op := testPayment(i+1, counterpartyID, testAccountID, wallet.NativeAsset())
		op.PagingToken = token
		ops = append(ops, op)
	}
	saveWithTags(t, m, ops...)

	listed, err := m.List(ctx, wallet.TagQuery{}, "", false, 0)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, "999", listed[0].PagingToken)
	assert.Equal(t, "1000", listed[1].PagingToken)
	assert.Equal(t, "1001", listed[2].PagingToken)

	latest, err := m.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "1001", latest.PagingToken)

	oldest, err := m.Oldest(ctx)
	require.NoError(t, err)
	require.NotNil(t, oldest)
	assert.Equal(t, "999", oldest.PagingToken)

	after, err := m.List(ctx, wallet.TagQuery{}, "999", false, 0)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, "1000", after[0].PagingToken)

	below, err := m.List(ctx, wallet.TagQuery{}, "1000", true, 0)
	require.NoError(t, err)
	require.Len(t, below, 1)
	assert.Equal(t, "999", below[0].PagingToken)
}

func TestOperationModelAssetIDs(t *testing.T) {
	m := newOperationModel(t)
	ctx := context.Background()

	saveWithTags(t, m,
		testPayment(1, testAccountID, counterpartyID, wallet.NativeAsset()),
		testPayment(2, counterpartyID, testAccountID, wallet.NewAsset("USDC", "GA5Z")),
		testPayment(3, testAccountID, counterpartyID, wallet.NewAsset("USDC", "GA5Z")),
	)

	assetIDs, err := m.AssetIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"USDC:GA5Z", "native"}, assetIDs)
}

func TestOperationModelSyncStateMonotonic(t *testing.T) {
	m := newOperationModel(t)
	ctx := context.Background()

	allSynced, err := m.GetSyncState(ctx)
	require.NoError(t, err)
	assert.False(t, allSynced)

	require.NoError(t, m.SaveSyncState(ctx, true))

	allSynced, err = m.GetSyncState(ctx)
	require.NoError(t, err)
	assert.True(t, allSynced)

	var count int
	require.NoError(t, m.DB.GetContext(ctx, &count, "SELECT COUNT(*) FROM operation_sync_state"))
	assert.Equal(t, 1, count)
}
