package horizon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/stellar/go-stellar-sdk/support/log"

	"github.com/walletkit/stellar-kit/internal/entities"
	"github.com/walletkit/stellar-kit/internal/utils"
	"github.com/walletkit/stellar-kit/internal/wallet"
)

// maxStreamLineSize bounds a single SSE line; operation records with joined
// transactions stay well under this.
const maxStreamLineSize = 1 << 20

// StreamOperations opens the server-sent-events feed of the account's
// operations and invokes handler for every record received. It returns when
// ctx is cancelled (with ctx.Err()) or the connection breaks; reconnecting
// is the caller's concern.
func (c *Client) StreamOperations(ctx context.Context, accountID, cursor string, handler func(wallet.TxOperation)) error {
	query := url.Values{}
	query.Set("cursor", cursor)
	if cursor == "" {
		query.Set("cursor", "now")
	}
	query.Set("join", "transactions")

	requestURL := fmt.Sprintf("%s/accounts/%s/operations?%s", c.baseURL, accountID, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("creating stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("opening operation stream: %w", err)
	}
	defer utils.DeferredClose(ctx, resp.Body, "closing operation stream")

	c.metricsService.IncHorizonRequest("operations_stream", resp.StatusCode)
	if resp.StatusCode >= http.StatusBadRequest {
		return &Error{Problem: entities.Problem{Title: http.StatusText(resp.StatusCode), Status: resp.StatusCode}}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 4096), maxStreamLineSize)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()

		// A blank line terminates one event.
		if line == "" {
			c.dispatchStreamEvent(ctx, data.String(), handler)
			data.Reset()
			continue
		}
		if payload, ok := strings.CutPrefix(line, "data: "); ok {
			data.WriteString(payload)
		}
		// Comment lines (": heartbeat") and field lines other than data
		// are ignored.
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("reading operation stream: %w", err)
	}
	return ctx.Err()
}

func (c *Client) dispatchStreamEvent(ctx context.Context, data string, handler func(wallet.TxOperation)) {
	// Horizon frames every stream with "hello" and "byebye" sentinels.
	if data == "" || data == `"hello"` || data == `"byebye"` {
		return
	}

	var record entities.Operation
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		log.Ctx(ctx).Warnf("dropping undecodable stream event: %v", err)
		return
	}
	op, err := ConvertOperation(record)
	if err != nil {
		log.Ctx(ctx).Warnf("dropping malformed stream operation %s: %v", record.ID, err)
		return
	}
	handler(op)
}
