// Package horizon implements the remote ledger client of the kit against
// the Horizon REST API.
package horizon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/stellar/go-stellar-sdk/support/log"

	"github.com/walletkit/stellar-kit/internal/entities"
	"github.com/walletkit/stellar-kit/internal/metrics"
	"github.com/walletkit/stellar-kit/internal/utils"
	"github.com/walletkit/stellar-kit/internal/wallet"
)

const (
	PublicHorizonURL  = "https://horizon.stellar.org"
	TestnetHorizonURL = "https://horizon-testnet.stellar.org"

	defaultRequestTimeout = 30 * time.Second
	defaultRetryAttempts  = 3
)

// ClientInterface is the boundary to the remote ledger consumed by the
// synchronizers and the transaction service.
type ClientInterface interface {
	// GetAccount returns the converted account state, or (nil, nil) when the
	// account does not exist remotely (not yet funded). Absence is a valid
	// outcome, not a failure.
	GetAccount(ctx context.Context, accountID string) (*wallet.Account, error)
	// GetAccountRecord returns the raw account record; a missing account is
	// an error satisfying IsNotFoundError.
	GetAccountRecord(ctx context.Context, accountID string) (*entities.Account, error)
	// GetOperations fetches one page of the account's operations starting
	// after cursor, in the given direction. It returns fewer than limit
	// records only at the boundary of available data.
	GetOperations(ctx context.Context, accountID, cursor string, ascending bool, limit int) ([]wallet.TxOperation, error)
	// SubmitTransaction submits a signed transaction envelope and returns
	// the transaction id.
	SubmitTransaction(ctx context.Context, envelopeXDR string) (string, error)
	// StreamOperations consumes the account's live operation feed, invoking
	// handler for each record, until ctx is cancelled or the stream breaks.
	StreamOperations(ctx context.Context, accountID, cursor string, handler func(wallet.TxOperation)) error
}

var _ ClientInterface = (*Client)(nil)

type Client struct {
	baseURL        string
	httpClient     utils.HTTPClient
	metricsService metrics.MetricsService
	retryAttempts  uint
}

func NewClient(baseURL string, httpClient utils.HTTPClient, metricsService metrics.MetricsService) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     httpClient,
		metricsService: metricsService,
		retryAttempts:  defaultRetryAttempts,
	}
}

func (c *Client) GetAccount(ctx context.Context, accountID string) (*wallet.Account, error) {
	record, err := c.GetAccountRecord(ctx, accountID)
	if IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ConvertAccount(ctx, record), nil
}

func (c *Client) GetAccountRecord(ctx context.Context, accountID string) (*entities.Account, error) {
	body, err := c.get(ctx, "accounts", fmt.Sprintf("/accounts/%s", accountID), nil)
	if err != nil {
		return nil, err
	}

	var account entities.Account
	if err := json.Unmarshal(body, &account); err != nil {
		return nil, fmt.Errorf("unmarshalling account %s: %w", accountID, err)
	}
	return &account, nil
}

func (c *Client) GetOperations(ctx context.Context, accountID, cursor string, ascending bool, limit int) ([]wallet.TxOperation, error) {
	query := url.Values{}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	order := "desc"
	if ascending {
		order = "asc"
	}
	query.Set("order", order)
	query.Set("limit", fmt.Sprintf("%d", limit))
	query.Set("include_failed", "true")
	query.Set("join", "transactions")

	body, err := c.get(ctx, "operations", fmt.Sprintf("/accounts/%s/operations", accountID), query)
	if err != nil {
		return nil, err
	}

	var page entities.OperationsPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("unmarshalling operations page: %w", err)
	}

	ops := make([]wallet.TxOperation, 0, len(page.Embedded.Records))
	for _, record := range page.Embedded.Records {
		op, err := ConvertOperation(record)
		if err != nil {
			// Malformed records are dropped, never failing the page.
			log.Ctx(ctx).Warnf("dropping malformed operation record %s: %v", record.ID, err)
			continue
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (c *Client) SubmitTransaction(ctx context.Context, envelopeXDR string) (string, error) {
	form := url.Values{"tx": []string{envelopeXDR}}

	endpoint := "transactions"
	start := time.Now()
	body, err := c.do(ctx, http.MethodPost, "/transactions", nil, strings.NewReader(form.Encode()), endpoint)
	c.metricsService.ObserveHorizonRequestDuration(endpoint, time.Since(start).Seconds())
	if err != nil {
		return "", err
	}

	var success entities.TransactionSuccess
	if err := json.Unmarshal(body, &success); err != nil {
		return "", fmt.Errorf("unmarshalling submit response: %w", err)
	}
	if success.ID != "" {
		return success.ID, nil
	}
	return success.Hash, nil
}

// get performs an instrumented GET with bounded retries on transport errors
// and 5xx responses.
func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values) ([]byte, error) {
	var body []byte
	err := retry.Do(
		func() error {
			start := time.Now()
			var reqErr error
			body, reqErr = c.do(ctx, http.MethodGet, path, query, nil, endpoint)
			c.metricsService.ObserveHorizonRequestDuration(endpoint, time.Since(start).Seconds())
			return reqErr
		},
		retry.Context(ctx),
		retry.Attempts(c.retryAttempts),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
	)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", path, err)
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, reqBody io.Reader, endpoint string) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer utils.DeferredClose(ctx, resp.Body, "closing response body")

	c.metricsService.IncHorizonRequest(endpoint, resp.StatusCode)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var problem entities.Problem
		if err := json.Unmarshal(respBody, &problem); err != nil {
			problem = entities.Problem{Title: http.StatusText(resp.StatusCode), Status: resp.StatusCode}
		}
		if problem.Status == 0 {
			problem.Status = resp.StatusCode
		}
		return nil, &Error{Problem: problem}
	}

	return respBody, nil
}

// isRetryable retries transport failures and server-side errors; client
// errors (4xx) are final.
func isRetryable(err error) bool {
	var horizonErr *Error
	if errors.As(err, &horizonErr) {
		return horizonErr.Problem.Status >= http.StatusInternalServerError
	}
	return true
}
