// OperationModel persists the append-only operation log, the derived tag
// index and the backfill watermark flag, and serves the tag-filtered read
// queries.

package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/guregu/null"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/walletkit/stellar-kit/internal/db"
	"github.com/walletkit/stellar-kit/internal/metrics"
	"github.com/walletkit/stellar-kit/internal/wallet"
)

// DefaultQueryLimit caps List results when the caller does not provide a limit.
const DefaultQueryLimit = 100

type OperationModel struct {
	DB             db.ConnectionPool
	MetricsService metrics.MetricsService
}

type operationRow struct {
	ID                    string      `db:"id"`
	CreatedAt             time.Time   `db:"created_at"`
	PagingToken           string      `db:"paging_token"`
	SourceAccount         string      `db:"source_account"`
	TransactionHash       string      `db:"transaction_hash"`
	TransactionSuccessful bool        `db:"transaction_successful"`
	Memo                  null.String `db:"memo"`
	FeeCharged            null.String `db:"fee_charged"`
	OperationType         string      `db:"operation_type"`
	Payload               string      `db:"payload"`
}

func toOperationRow(op wallet.TxOperation) (operationRow, error) {
	payload, err := wallet.MarshalPayload(op.Payload)
	if err != nil {
		return operationRow{}, err
	}

	row := operationRow{
		ID:                    op.ID,
		CreatedAt:             op.CreatedAt.UTC(),
		PagingToken:           op.PagingToken,
		SourceAccount:         op.SourceAccount,
		TransactionHash:       op.TransactionHash,
		TransactionSuccessful: op.TransactionSuccessful,
		OperationType:         string(op.Type()),
		Payload:               string(payload),
	}
	if op.Memo != nil {
		row.Memo = null.StringFromPtr(op.Memo)
	}
	if op.FeeCharged != nil {
		row.FeeCharged = null.StringFrom(op.FeeCharged.String())
	}
	return row, nil
}

func fromOperationRow(row operationRow) (wallet.TxOperation, error) {
	payload, err := wallet.UnmarshalPayload(wallet.OperationType(row.OperationType), []byte(row.Payload))
	if err != nil {
		return wallet.TxOperation{}, fmt.Errorf("decoding payload of operation %s: %w", row.ID, err)
	}

	op := wallet.TxOperation{
		ID:                    row.ID,
		CreatedAt:             row.CreatedAt.UTC(),
		PagingToken:           row.PagingToken,
		SourceAccount:         row.SourceAccount,
		TransactionHash:       row.TransactionHash,
		TransactionSuccessful: row.TransactionSuccessful,
		Memo:                  row.Memo.Ptr(),
		Payload:               payload,
	}
	if row.FeeCharged.Valid {
		fee, err := decimal.NewFromString(row.FeeCharged.String)
		if err != nil {
			return wallet.TxOperation{}, fmt.Errorf("parsing fee %q of operation %s: %w", row.FeeCharged.String, row.ID, err)
		}
		op.FeeCharged = &fee
	}
	return op, nil
}

// BatchUpsert inserts the operations, replacing any already stored under the
// same id. Re-applying an already-seen page is idempotent.
func (m *OperationModel) BatchUpsert(ctx context.Context, ops []wallet.TxOperation) error {
	if len(ops) == 0 {
		return nil
	}

	const query = `
		INSERT INTO operations (id, created_at, paging_token, source_account, transaction_hash, transaction_successful, memo, fee_charged, operation_type, payload)
		VALUES (:id, :created_at, :paging_token, :source_account, :transaction_hash, :transaction_successful, :memo, :fee_charged, :operation_type, :payload)
		ON CONFLICT (id) DO UPDATE SET
			created_at = excluded.created_at,
			paging_token = excluded.paging_token,
			source_account = excluded.source_account,
			transaction_hash = excluded.transaction_hash,
			transaction_successful = excluded.transaction_successful,
			memo = excluded.memo,
			fee_charged = excluded.fee_charged,
			operation_type = excluded.operation_type,
			payload = excluded.payload`

	start := time.Now()
	err := db.RunInTransaction(ctx, m.DB, nil, func(dbTx db.Transaction) error {
		for _, op := range ops {
			row, err := toOperationRow(op)
			if err != nil {
				return err
			}
			if _, err := dbTx.NamedExecContext(ctx, query, row); err != nil {
				return fmt.Errorf("upserting operation %s: %w", op.ID, err)
			}
		}
		return nil
	})
	m.MetricsService.ObserveDBQueryDuration("UPSERT", "operations", time.Since(start).Seconds())
	if err != nil {
		m.MetricsService.IncDBQueryError("UPSERT", "operations")
		return fmt.Errorf("batch upserting %d operations: %w", len(ops), err)
	}
	m.MetricsService.IncDBQuery("UPSERT", "operations")
	return nil
}

// UpsertTags replaces the derived tag rows of the given operations. Tags are
// recomputable, so replacing keeps re-tagging idempotent.
func (m *OperationModel) UpsertTags(ctx context.Context, tags []wallet.Tag) error {
	if len(tags) == 0 {
		return nil
	}

	operationIDs := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		if !seen[tag.OperationID] {
			seen[tag.OperationID] = true
			operationIDs = append(operationIDs, tag.OperationID)
		}
	}

	start := time.Now()
	err := db.RunInTransaction(ctx, m.DB, nil, func(dbTx db.Transaction) error {
		deleteQuery, args, err := sqlx.In(`DELETE FROM tags WHERE operation_id IN (?)`, operationIDs)
		if err != nil {
			return fmt.Errorf("building tag delete query: %w", err)
		}
		if _, err := dbTx.ExecContext(ctx, dbTx.Rebind(deleteQuery), args...); err != nil {
			return fmt.Errorf("deleting stale tags: %w", err)
		}

		const insertQuery = `
			INSERT INTO tags (operation_id, direction, asset_id, account_ids)
			VALUES (?, ?, ?, ?)`
		for _, tag := range tags {
			accountIDs, err := json.Marshal(tag.AccountIDs)
			if err != nil {
				return fmt.Errorf("marshalling account ids of tag for operation %s: %w", tag.OperationID, err)
			}

			var direction, assetID null.String
			if tag.Direction != "" {
				direction = null.StringFrom(string(tag.Direction))
			}
			if tag.AssetID != "" {
				assetID = null.StringFrom(tag.AssetID)
			}
			if _, err := dbTx.ExecContext(ctx, insertQuery, tag.OperationID, direction, assetID, string(accountIDs)); err != nil {
				return fmt.Errorf("inserting tag for operation %s: %w", tag.OperationID, err)
			}
		}
		return nil
	})
	m.MetricsService.ObserveDBQueryDuration("UPSERT", "tags", time.Since(start).Seconds())
	if err != nil {
		m.MetricsService.IncDBQueryError("UPSERT", "tags")
		return fmt.Errorf("upserting %d tags: %w", len(tags), err)
	}
	m.MetricsService.IncDBQuery("UPSERT", "tags")
	return nil
}

// List returns persisted operations matching the conjunctive tag filter,
// ordered by paging token, optionally cursoring from pagingToken (exclusive).
// The result is identical whether zero, one or all filter dimensions are set.
func (m *OperationModel) List(ctx context.Context, tagQuery wallet.TagQuery, pagingToken string, descending bool, limit int) ([]wallet.TxOperation, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	var joinClause string
	var whereConditions []string
	var args []interface{}

	if !tagQuery.IsEmpty() {
		joinClause = "INNER JOIN tags ON operations.id = tags.operation_id"
		if tagQuery.Direction != "" {
			whereConditions = append(whereConditions, "tags.direction = ?")
			args = append(args, string(tagQuery.Direction))
		}
		if tagQuery.AssetID != "" {
			whereConditions = append(whereConditions, "tags.asset_id = ?")
			args = append(args, tagQuery.AssetID)
		}
		if tagQuery.AccountID != "" {
			whereConditions = append(whereConditions, "LOWER(tags.account_ids) LIKE ?")
			args = append(args, "%"+strings.ToLower(tagQuery.AccountID)+"%")
		}
	}

	// Paging tokens are variable-length numeric strings, so plain TEXT
	// comparison misorders across digit-length boundaries. Comparing length
	// first restores numeric order.
	if pagingToken != "" {
		comparator := ">"
		if descending {
			comparator = "<"
		}
		whereConditions = append(whereConditions, fmt.Sprintf("(LENGTH(operations.paging_token), operations.paging_token) %s (LENGTH(?), ?)", comparator))
		args = append(args, pagingToken, pagingToken)
	}

	ordering := "ASC"
	if descending {
		ordering = "DESC"
	}

	var whereClause string
	if len(whereConditions) > 0 {
		whereClause = "WHERE " + strings.Join(whereConditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT operations.*
		FROM operations
		%s
		%s
		ORDER BY LENGTH(operations.paging_token) %[3]s, operations.paging_token %[3]s
		LIMIT ?`, joinClause, whereClause, ordering)
	args = append(args, limit)

	var rows []operationRow
	start := time.Now()
	err := m.DB.SelectContext(ctx, &rows, query, args...)
	m.MetricsService.ObserveDBQueryDuration("SELECT", "operations", time.Since(start).Seconds())
	if err != nil {
		m.MetricsService.IncDBQueryError("SELECT", "operations")
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	m.MetricsService.IncDBQuery("SELECT", "operations")

	ops := make([]wallet.TxOperation, 0, len(rows))
	for _, row := range rows {
		op, err := fromOperationRow(row)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// Get returns one operation by id, or nil if it is not stored.
func (m *OperationModel) Get(ctx context.Context, id string) (*wallet.TxOperation, error) {
	return m.getOne(ctx, `SELECT * FROM operations WHERE id = ?`, id)
}

// Latest returns the newest stored operation by paging token, or nil.
func (m *OperationModel) Latest(ctx context.Context) (*wallet.TxOperation, error) {
	return m.getOne(ctx, `SELECT * FROM operations ORDER BY LENGTH(paging_token) DESC, paging_token DESC LIMIT 1`)
}

// Oldest returns the oldest stored operation by paging token, or nil.
func (m *OperationModel) Oldest(ctx context.Context) (*wallet.TxOperation, error) {
	return m.getOne(ctx, `SELECT * FROM operations ORDER BY LENGTH(paging_token) ASC, paging_token ASC LIMIT 1`)
}

func (m *OperationModel) getOne(ctx context.Context, query string, args ...interface{}) (*wallet.TxOperation, error) {
	var row operationRow
	start := time.Now()
	err := m.DB.GetContext(ctx, &row, query, args...)
	m.MetricsService.ObserveDBQueryDuration("SELECT", "operations", time.Since(start).Seconds())
	if errors.Is(err, sql.ErrNoRows) {
		m.MetricsService.IncDBQuery("SELECT", "operations")
		return nil, nil
	}
	if err != nil {
		m.MetricsService.IncDBQueryError("SELECT", "operations")
		return nil, fmt.Errorf("getting operation: %w", err)
	}
	m.MetricsService.IncDBQuery("SELECT", "operations")

	op, err := fromOperationRow(row)
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// AssetIDs returns the distinct asset ids present across all stored tags.
func (m *OperationModel) AssetIDs(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT asset_id FROM tags WHERE asset_id IS NOT NULL ORDER BY asset_id`
	var assetIDs []string
	start := time.Now()
	err := m.DB.SelectContext(ctx, &assetIDs, query)
	m.MetricsService.ObserveDBQueryDuration("SELECT", "tags", time.Since(start).Seconds())
	if err != nil {
		m.MetricsService.IncDBQueryError("SELECT", "tags")
		return nil, fmt.Errorf("getting distinct asset ids: %w", err)
	}
	m.MetricsService.IncDBQuery("SELECT", "tags")
	return assetIDs, nil
}

// GetSyncState reports whether backward backfill has reached the beginning
// of the account's history.
func (m *OperationModel) GetSyncState(ctx context.Context) (bool, error) {
	const query = `SELECT all_synced FROM operation_sync_state WHERE id = 1`
	var allSynced bool
	start := time.Now()
	err := m.DB.GetContext(ctx, &allSynced, query)
	m.MetricsService.ObserveDBQueryDuration("SELECT", "operation_sync_state", time.Since(start).Seconds())
	if errors.Is(err, sql.ErrNoRows) {
		m.MetricsService.IncDBQuery("SELECT", "operation_sync_state")
		return false, nil
	}
	if err != nil {
		m.MetricsService.IncDBQueryError("SELECT", "operation_sync_state")
		return false, fmt.Errorf("getting operation sync state: %w", err)
	}
	m.MetricsService.IncDBQuery("SELECT", "operation_sync_state")
	return allSynced, nil
}

// SaveSyncState persists the backfill-complete flag.
func (m *OperationModel) SaveSyncState(ctx context.Context, allSynced bool) error {
	const query = `
		INSERT INTO operation_sync_state (id, all_synced)
		VALUES (1, ?)
		ON CONFLICT (id) DO UPDATE SET all_synced = excluded.all_synced`
	start := time.Now()
	_, err := m.DB.ExecContext(ctx, query, allSynced)
	m.MetricsService.ObserveDBQueryDuration("UPSERT", "operation_sync_state", time.Since(start).Seconds())
	if err != nil {
		m.MetricsService.IncDBQueryError("UPSERT", "operation_sync_state")
		return fmt.Errorf("saving operation sync state: %w", err)
	}
	m.MetricsService.IncDBQuery("UPSERT", "operation_sync_state")
	return nil
}
