package horizon

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletkit/stellar-kit/internal/metrics"
	"github.com/walletkit/stellar-kit/internal/wallet"
)

const testAccountID = "GCKFBEIYTKP6RCZX6LRLD2NKCG6BNLDY2B6IOO2AQQLDYSC2FPB4F7ID"

const accountFixture = `{
	"id": "` + testAccountID + `",
	"account_id": "` + testAccountID + `",
	"sequence": "129664371176506021",
	"subentry_count": 2,
	"balances": [
		{"balance": "10.0000000", "asset_type": "native"},
		{"balance": "25.5000000", "limit": "1000.0000000", "asset_type": "credit_alphanum4", "asset_code": "USDC", "asset_issuer": "GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN"}
	],
	"data": {}
}`

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, server.Client(), metrics.NewMetricsService())
}

func TestClientGetAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("existing account converts balances", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/accounts/"+testAccountID, r.URL.Path)
			fmt.Fprint(w, accountFixture)
		}))

		account, err := client.GetAccount(ctx, testAccountID)
		require.NoError(t, err)
		require.NotNil(t, account)

		assert.Equal(t, uint32(2), account.SubentryCount)
		assert.Len(t, account.Balances, 2)
		assert.Equal(t, "10", account.NativeBalance().String())

		usdc := wallet.NewAsset("USDC", "GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN")
		require.Contains(t, account.Balances, usdc)
		assert.Equal(t, "25.5", account.Balances[usdc].Balance.String())
		require.NotNil(t, account.Balances[usdc].Limit)
		assert.Equal(t, "1000", account.Balances[usdc].Limit.String())
	})

	t.Run("unfunded account is nil without error", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"type": "https://stellar.org/horizon-errors/not_found", "title": "Resource Missing", "status": 404}`)
		}))

		account, err := client.GetAccount(ctx, testAccountID)
		require.NoError(t, err)
		assert.Nil(t, account)
	})

	t.Run("server errors are retried", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			fmt.Fprint(w, accountFixture)
		}))

		account, err := client.GetAccount(ctx, testAccountID)
		require.NoError(t, err)
		require.NotNil(t, account)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("client errors are final", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"title": "Bad Request", "status": 400}`)
		}))

		_, err := client.GetAccountRecord(ctx, testAccountID)
		require.Error(t, err)
		assert.False(t, IsNotFoundError(err))
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestClientGetOperations(t *testing.T) {
	ctx := context.Background()

	operationsFixture := `{
		"_embedded": {
			"records": [
				{
					"id": "100",
					"paging_token": "100-1",
					"type": "payment",
					"created_at": "2024-03-01T10:00:00Z",
					"source_account": "` + testAccountID + `",
					"transaction_hash": "deadbeef",
					"transaction_successful": true,
					"transaction": {"memo": "rent", "memo_type": "text", "fee_charged": "100"},
					"asset_type": "native",
					"from": "` + testAccountID + `",
					"to": "GDQNY3PBOJOKYZSRMK2S7LHHGWZIUISD4QORETLMXEWXBI7KFZZMKTL3",
					"amount": "5.0000000"
				},
				{
					"id": "101",
					"paging_token": "101-1",
					"type": "payment",
					"created_at": "2024-03-01T10:05:00Z",
					"transaction_successful": true,
					"asset_type": "native",
					"amount": "not-a-number"
				}
			]
		}
	}`

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/"+testAccountID+"/operations", r.URL.Path)
		assert.Equal(t, "asc", r.URL.Query().Get("order"))
		assert.Equal(t, "42", r.URL.Query().Get("cursor"))
		assert.Equal(t, "200", r.URL.Query().Get("limit"))
		assert.Equal(t, "transactions", r.URL.Query().Get("join"))
		fmt.Fprint(w, operationsFixture)
	}))

	ops, err := client.GetOperations(ctx, testAccountID, "42", true, 200)
	require.NoError(t, err)

	// The malformed second record is dropped, not fatal.
	require.Len(t, ops, 1)
	op := ops[0]
	assert.Equal(t, "100", op.ID)
	assert.Equal(t, "100-1", op.PagingToken)
	assert.True(t, op.TransactionSuccessful)
	require.NotNil(t, op.Memo)
	assert.Equal(t, "rent", *op.Memo)
	require.NotNil(t, op.FeeCharged)
	assert.Equal(t, "0.00001", op.FeeCharged.String())

	payment, ok := op.Payload.(wallet.Payment)
	require.True(t, ok)
	assert.True(t, payment.Asset.IsNative())
	assert.Equal(t, "5", payment.Amount.String())
}

func TestClientSubmitTransaction(t *testing.T) {
	ctx := context.Background()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "AAAA-envelope", r.PostForm.Get("tx"))
		fmt.Fprint(w, `{"id": "txid123", "hash": "txid123", "ledger": 7, "successful": true}`)
	}))

	id, err := client.SubmitTransaction(ctx, "AAAA-envelope")
	require.NoError(t, err)
	assert.Equal(t, "txid123", id)
}

func TestClientStreamOperations(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "now", r.URL.Query().Get("cursor"))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: \"hello\"\n\n")
		fmt.Fprint(w, ": heartbeat\n\n")
		fmt.Fprint(w, "data: {\"id\": \"200\", \"paging_token\": \"200-1\", \"type\": \"create_account\", \"starting_balance\": \"2.0000000\", \"funder\": \"GDQNY3PBOJOKYZSRMK2S7LHHGWZIUISD4QORETLMXEWXBI7KFZZMKTL3\", \"account\": \""+testAccountID+"\"}\n\n")
		fmt.Fprint(w, "data: not-json\n\n")
	}))

	var received []wallet.TxOperation
	err := client.StreamOperations(ctx, testAccountID, "", func(op wallet.TxOperation) {
		received = append(received, op)
	})
	require.NoError(t, err)

	require.Len(t, received, 1)
	assert.Equal(t, "200", received[0].ID)
	created, ok := received[0].Payload.(wallet.AccountCreated)
	require.True(t, ok)
	assert.Equal(t, "2", created.StartingBalance.String())
	assert.Equal(t, testAccountID, created.Account)
}
