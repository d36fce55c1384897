package kpistore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/huangsam/kpi/contract"
	"github.com/huangsam/kpi/schema"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // SQLite driver
)

// DefaultTableName is the table KPI records live in unless WithTableName overrides it.
const DefaultTableName = "kpis"

// sqliteTimeLayout is fixed width so that text comparison orders like time.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000"

const recordColumns = "id, kpi_key, number_value, string_value, json_value, money_value, money_currency, metadata, created_at, updated_at"

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// SQLStore persists KPI records in SQLite, MySQL or PostgreSQL.
// Timestamps are stored in UTC, so SQL buckets are UTC buckets.
type SQLStore struct {
	db      *sqlx.DB
	backend schema.DatabaseBackend
	adapter contract.BucketAdapter
	table   string
	dbName  string // MySQL schema name, used for size lookups
	logger  *slog.Logger
}

var _ contract.RecordStore = &SQLStore{} // Compile-time check

// NewSQLStore opens a connection to backend, verifies it and creates the KPI table if missing.
// An empty SQLite connection string uses the default database file in $HOME.
func NewSQLStore(backend schema.DatabaseBackend, connStr string, opts ...Option) (*SQLStore, error) {
	o := newOptions(opts)
	if err := validateTableName(o.table); err != nil {
		return nil, err
	}

	adapter, err := AdapterFor(backend)
	if err != nil {
		return nil, err
	}

	var driverName, dbName string
	switch backend {
	case schema.SQLiteBackend:
		driverName = "sqlite"
		if connStr == "" {
			connStr = contract.GetDBFilePath()
		}
	case schema.MySQLBackend:
		// connStr should be:
		// user:password@tcp(host:port)/dbname
		driverName = "mysql"
		cfg, err := mysql.ParseDSN(connStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse MySQL connection string: %w. Check connection format: user:password@tcp(host:port)/dbname", err)
		}
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		connStr = cfg.FormatDSN()
		dbName = cfg.DBName
	case schema.PostgreSQLBackend:
		// connStr should be:
		// host=localhost port=5432 user=postgres password=mysecretpassword dbname=postgres
		driverName = "pgx"
	}

	db, err := sqlx.Open(driverName, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", backend, err)
	}
	if backend == schema.SQLiteBackend {
		// Limit SQLite to a single open connection to avoid "database is locked" errors
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		var connDetail string
		switch backend {
		case schema.MySQLBackend:
			connDetail = "Check that MySQL is running and the connection string is correct. Ensure user/password are valid."
		case schema.PostgreSQLBackend:
			connDetail = "Check that PostgreSQL is running and the connection string is correct. Ensure user/password are valid."
		default:
			connDetail = "Check that the directory is writable."
		}
		return nil, fmt.Errorf("failed to connect to %s database: %w. %s", backend, err, connDetail)
	}

	if err := createRecordTable(db, backend, o.table); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create table %s: %w", o.table, err)
	}

	o.logger.Debug("kpi store opened", "backend", backend, "table", o.table)
	return &SQLStore{
		db:      db,
		backend: backend,
		adapter: adapter,
		table:   o.table,
		dbName:  dbName,
		logger:  o.logger,
	}, nil
}

// createRecordTable creates the KPI table and its (key, created_at) index.
func createRecordTable(db *sqlx.DB, backend schema.DatabaseBackend, table string) error {
	for _, query := range getCreateTableQueries(backend, table) {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

// getCreateTableQueries returns the DDL statements for the given backend.
func getCreateTableQueries(backend schema.DatabaseBackend, table string) []string {
	quotedTableName := quoteTableName(table, backend)
	quotedIndexName := quoteTableName(table+"_key_created_at_idx", backend)

	switch backend {
	case schema.MySQLBackend:
		return []string{fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				kpi_key VARCHAR(255) NOT NULL,
				number_value DOUBLE,
				string_value TEXT,
				json_value TEXT,
				money_value DECIMAL(28,8),
				money_currency VARCHAR(8),
				metadata TEXT,
				created_at DATETIME(6) NOT NULL,
				updated_at DATETIME(6) NOT NULL,
				INDEX %s (kpi_key, created_at)
			);
		`, quotedTableName, quotedIndexName)}

	case schema.PostgreSQLBackend:
		return []string{
			fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id BIGSERIAL PRIMARY KEY,
				kpi_key TEXT NOT NULL,
				number_value DOUBLE PRECISION,
				string_value TEXT,
				json_value TEXT,
				money_value NUMERIC(28,8),
				money_currency TEXT,
				metadata TEXT,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			);
		`, quotedTableName),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (kpi_key, created_at);`, quotedIndexName, quotedTableName),
		}

	default: // SQLite
		return []string{
			fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				kpi_key TEXT NOT NULL,
				number_value REAL,
				string_value TEXT,
				json_value TEXT,
				money_value TEXT,
				money_currency TEXT,
				metadata TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			);
		`, quotedTableName),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (kpi_key, created_at);`, quotedIndexName, quotedTableName),
		}
	}
}

// Backend returns the database backend of the store.
func (ss *SQLStore) Backend() schema.DatabaseBackend {
	return ss.backend
}

// Insert implements the RecordStore interface.
func (ss *SQLStore) Insert(ctx context.Context, r *schema.Record) error {
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}

	args, err := ss.insertArgs(r)
	if err != nil {
		return err
	}

	moneyPlaceholder := "?"
	if ss.backend == schema.PostgreSQLBackend {
		moneyPlaceholder = "CAST(? AS NUMERIC)"
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (kpi_key, number_value, string_value, json_value, money_value,
		                money_currency, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, %s, ?, ?, ?, ?)`, quoteTableName(ss.table, ss.backend), moneyPlaceholder)

	var id int64
	switch ss.backend {
	case schema.PostgreSQLBackend:
		err = ss.db.QueryRowxContext(ctx, ss.db.Rebind(query+" RETURNING id"), args...).Scan(&id)
	default: // SQLite and MySQL
		var result sql.Result
		result, err = ss.db.ExecContext(ctx, query, args...)
		if err == nil {
			id, err = result.LastInsertId()
		}
	}
	if err != nil {
		return fmt.Errorf("failed to insert kpi record %q: %w", r.Key, err)
	}

	r.ID = id
	r.Synthetic = false
	return nil
}

func (ss *SQLStore) insertArgs(r *schema.Record) ([]any, error) {
	var jsonValue, money, metadata *string
	if len(r.JSON) > 0 {
		s := string(r.JSON)
		jsonValue = &s
	}
	if r.Money != nil {
		s := r.Money.String()
		money = &s
	}
	if r.Metadata != nil {
		raw, err := json.Marshal(r.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		s := string(raw)
		metadata = &s
	}

	return []any{
		r.Key, r.Number, r.String, jsonValue, money, r.Currency, metadata,
		formatTime(r.CreatedAt, ss.backend), formatTime(r.UpdatedAt, ss.backend),
	}, nil
}

// Find implements the RecordStore interface.
func (ss *SQLStore) Find(ctx context.Context, filter schema.RecordFilter) ([]schema.Record, error) {
	where, args, err := ss.buildWhere(filter)
	if err != nil {
		return nil, err
	}

	order := "ASC"
	if filter.Descending {
		order = "DESC"
	}
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY created_at %s, id %s",
		recordColumns, quoteTableName(ss.table, ss.backend), where, order, order)

	var rows []recordRow
	if err := ss.db.SelectContext(ctx, &rows, ss.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query kpi records: %w", err)
	}

	records := make([]schema.Record, 0, len(rows))
	for _, row := range rows {
		r, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// Count implements the RecordStore interface.
func (ss *SQLStore) Count(ctx context.Context, filter schema.RecordFilter) (int64, error) {
	where, args, err := ss.buildWhere(filter)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", quoteTableName(ss.table, ss.backend), where)
	var count int64
	if err := ss.db.GetContext(ctx, &count, ss.db.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("failed to count kpi records: %w", err)
	}
	return count, nil
}

// buildWhere renders the filter with ? placeholders. Interval de-duplication keeps the
// highest id per (key, bucket) among rows matching the key; the time range applies after.
func (ss *SQLStore) buildWhere(filter schema.RecordFilter) (string, []any, error) {
	var conds []string
	var args []any

	if filter.Key != "" {
		conds = append(conds, "kpi_key = ?")
		args = append(args, filter.Key)
	}

	if filter.Interval != "" {
		bucket, err := ss.adapter.BucketExpression("created_at", filter.Interval)
		if err != nil {
			return "", nil, err
		}
		inner := "SELECT MAX(id) FROM " + quoteTableName(ss.table, ss.backend)
		if filter.Key != "" {
			inner += " WHERE kpi_key = ?"
			args = append(args, filter.Key)
		}
		inner += " GROUP BY kpi_key, " + bucket
		conds = append(conds, "id IN ("+inner+")")
	}

	if filter.Start != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, formatTime(*filter.Start, ss.backend))
	}
	if filter.End != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, formatTime(*filter.End, ss.backend))
	}

	if len(conds) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// Delete implements the RecordStore interface.
func (ss *SQLStore) Delete(ctx context.Context, id int64) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", quoteTableName(ss.table, ss.backend))
	result, err := ss.db.ExecContext(ctx, ss.db.Rebind(query), id)
	if err != nil {
		return fmt.Errorf("failed to delete kpi record %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete kpi record %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("delete record %d: %w", id, schema.ErrNotFound)
	}
	return nil
}

// Status implements the RecordStore interface.
func (ss *SQLStore) Status(ctx context.Context) (schema.StoreStatus, error) {
	status := schema.StoreStatus{
		Backend:       string(ss.backend),
		Connected:     ss.db.PingContext(ctx) == nil,
		RecordsPerKey: make(map[string]int64),
	}
	if !status.Connected {
		return status, nil
	}

	quotedTableName := quoteTableName(ss.table, ss.backend)

	// Get total records and distinct keys
	countQuery := fmt.Sprintf("SELECT COUNT(*) AS total, COUNT(DISTINCT kpi_key) AS keys_count FROM %s", quotedTableName)
	var counts struct {
		Total int64 `db:"total"`
		Keys  int64 `db:"keys_count"`
	}
	if err := ss.db.GetContext(ctx, &counts, countQuery); err != nil {
		return status, fmt.Errorf("failed to get total records: %w", err)
	}
	status.TotalRecords = counts.Total
	status.DistinctKeys = counts.Keys

	if status.TotalRecords > 0 {
		// Get oldest and newest as-of dates
		rangeQuery := fmt.Sprintf("SELECT MIN(created_at) AS oldest, MAX(created_at) AS newest FROM %s", quotedTableName)
		var span struct {
			Oldest dbTime `db:"oldest"`
			Newest dbTime `db:"newest"`
		}
		if err := ss.db.GetContext(ctx, &span, rangeQuery); err != nil {
			return status, fmt.Errorf("failed to get record time range: %w", err)
		}
		status.OldestRecord = span.Oldest.Time
		status.NewestRecord = span.Newest.Time

		// Get per-key counts
		perKeyQuery := fmt.Sprintf("SELECT kpi_key, COUNT(*) AS total FROM %s GROUP BY kpi_key", quotedTableName)
		var perKey []struct {
			Key   string `db:"kpi_key"`
			Total int64  `db:"total"`
		}
		if err := ss.db.SelectContext(ctx, &perKey, perKeyQuery); err != nil {
			return status, fmt.Errorf("failed to get records per key: %w", err)
		}
		for _, row := range perKey {
			status.RecordsPerKey[row.Key] = row.Total
		}
	}

	status.TableSizeBytes = ss.tableSize(ctx, status.TotalRecords)
	return status, nil
}

// tableSize returns the on-disk size of the KPI table, falling back to a rough estimate.
func (ss *SQLStore) tableSize(ctx context.Context, rows int64) int64 {
	estimate := rows * 256
	var size int64

	switch ss.backend {
	case schema.SQLiteBackend:
		// For SQLite, use page_count * page_size of the whole file
		if err := ss.db.GetContext(ctx, &size, "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()"); err != nil {
			return estimate
		}
	case schema.MySQLBackend:
		if ss.dbName == "" {
			return estimate
		}
		query := "SELECT data_length + index_length FROM information_schema.tables WHERE table_schema = ? AND table_name = ?"
		if err := ss.db.GetContext(ctx, &size, query, ss.dbName, ss.table); err != nil {
			return estimate
		}
	case schema.PostgreSQLBackend:
		if err := ss.db.GetContext(ctx, &size, "SELECT pg_total_relation_size($1)", ss.table); err != nil {
			return estimate
		}
	}
	return size
}

// Close closes the underlying connection.
func (ss *SQLStore) Close() error {
	if ss.db == nil {
		return nil
	}
	ss.logger.Debug("kpi store closed", "backend", ss.backend, "table", ss.table)
	return ss.db.Close()
}

// recordRow is the storage shape of a KPI record.
type recordRow struct {
	ID        int64               `db:"id"`
	Key       string              `db:"kpi_key"`
	Number    sql.NullFloat64     `db:"number_value"`
	String    sql.NullString      `db:"string_value"`
	JSON      sql.NullString      `db:"json_value"`
	Money     decimal.NullDecimal `db:"money_value"`
	Currency  sql.NullString      `db:"money_currency"`
	Metadata  sql.NullString      `db:"metadata"`
	CreatedAt dbTime              `db:"created_at"`
	UpdatedAt dbTime              `db:"updated_at"`
}

func (row recordRow) toRecord() (schema.Record, error) {
	r := schema.Record{
		ID:        row.ID,
		Key:       row.Key,
		CreatedAt: row.CreatedAt.Time,
		UpdatedAt: row.UpdatedAt.Time,
	}
	if row.Number.Valid {
		n := row.Number.Float64
		r.Number = &n
	}
	if row.String.Valid {
		s := row.String.String
		r.String = &s
	}
	if row.JSON.Valid {
		r.JSON = json.RawMessage(row.JSON.String)
	}
	if row.Money.Valid {
		m := row.Money.Decimal
		r.Money = &m
	}
	if row.Currency.Valid {
		c := row.Currency.String
		r.Currency = &c
	}
	if row.Metadata.Valid {
		if err := json.Unmarshal([]byte(row.Metadata.String), &r.Metadata); err != nil {
			return r, fmt.Errorf("failed to unmarshal metadata of record %d: %w", row.ID, err)
		}
	}
	return r, nil
}

// dbTime scans native timestamps as well as the text timestamps SQLite stores.
type dbTime struct {
	time.Time
}

var timeLayouts = []string{sqliteTimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999", "2006-01-02 15:04:05"}

// Scan implements the sql.Scanner interface.
func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into a timestamp", src)
	}
}

func (t *dbTime) parse(s string) error {
	var errs []error
	for _, layout := range timeLayouts {
		parsed, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			t.Time = parsed.UTC()
			return nil
		}
		errs = append(errs, err)
	}
	return fmt.Errorf("failed to parse timestamp %q: %w", s, errors.Join(errs...))
}

// formatTime converts a time.Time to the appropriate format for the backend.
func formatTime(t time.Time, backend schema.DatabaseBackend) any {
	switch backend {
	case schema.SQLiteBackend:
		return t.UTC().Format(sqliteTimeLayout)
	default:
		return t.UTC()
	}
}
