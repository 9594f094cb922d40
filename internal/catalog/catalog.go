// Package catalog is the transactional columnar table catalog facade
// (component D), backed by ClickHouse MergeTree tables. Namespaces map
// to ClickHouse databases, tables map 1:1, and the row inserts of every
// append commit or fail as a single transaction.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	"github.com/lakeforge/lakeforge/internal/apperrors"
	"github.com/lakeforge/lakeforge/internal/job"
)

// Config mirrors the CATALOG_* environment surface. Addr carries the
// CATALOG_JDBC_URL value and is used as a ClickHouse TCP address
// (host:port); a leading jdbc: prefix, if present, is stripped for
// compatibility with how the rest of the configuration surface names it.
type Config struct {
	Addr     string
	Database string
	User     string
	Pass     string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Relation is an in-memory batch of rows with their schema: the unit
// Append writes. Ingest builds one from inferred CSV/NDJSON columns;
// query results come back as a ResultSet from Query, not as a Relation.
type Relation struct {
	Schema []job.ColumnSchema
	Rows   [][]any
}

// Catalog is the ClickHouse-backed table catalog.
type Catalog struct {
	db  *sql.DB
	log *zap.Logger
}

func Connect(cfg Config, log *zap.Logger) (*Catalog, error) {
	conn := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{strings.TrimPrefix(cfg.Addr, "jdbc:")},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: cfg.User,
			Password: cfg.Pass,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout:     30 * time.Second,
		MaxOpenConns:    nonZero(cfg.MaxOpenConns, 20),
		MaxIdleConns:    nonZero(cfg.MaxIdleConns, 10),
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, apperrors.WrapTransient(fmt.Errorf("ping clickhouse: %w", err))
	}

	return &Catalog{db: conn, log: log}, nil
}

func nonZero(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func namespace(project string) string {
	return sanitizeIdent(project)
}

func qualifiedTable(project, table string) string {
	return fmt.Sprintf("%s.%s", sanitizeIdent(project), sanitizeIdent(table))
}

// sanitizeIdent restricts identifiers to the characters ClickHouse
// accepts unquoted, since project/table names flow in from client
// requests and must never be interpolated into SQL unescaped.
func sanitizeIdent(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// CreateNamespaceIfAbsent creates the ClickHouse database backing project.
func (c *Catalog) CreateNamespaceIfAbsent(ctx context.Context, project string) error {
	_, err := c.db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", namespace(project)))
	if err != nil {
		return apperrors.WrapTransient(fmt.Errorf("create namespace %s: %w", project, err))
	}
	return nil
}

// TableExists reports whether (project, table) already has a backing table.
func (c *Catalog) TableExists(ctx context.Context, project, table string) (bool, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		"SELECT count() FROM system.tables WHERE database = ? AND name = ?",
		namespace(project), sanitizeIdent(table),
	).Scan(&n)
	if err != nil {
		return false, apperrors.WrapTransient(fmt.Errorf("table_exists %s.%s: %w", project, table, err))
	}
	return n > 0, nil
}

func columnDDL(col job.ColumnSchema) string {
	var chType string
	switch col.Type {
	case job.ColumnInteger:
		chType = "Int64"
	case job.ColumnFloating:
		chType = "Float64"
	case job.ColumnBoolean:
		chType = "UInt8"
	case job.ColumnDate:
		chType = "DateTime64(3)"
	default:
		chType = "String"
	}
	if col.Nullable {
		chType = "Nullable(" + chType + ")"
	}
	return fmt.Sprintf("%s %s", sanitizeIdent(col.Name), chType)
}

// Append creates the table with rel's schema on first write, or checks
// rel's schema against it if it already exists; both steps run before
// the transaction. The row inserts then run inside a single transaction,
// so the rows commit or fail as a unit. Returns the number of rows written.
func (c *Catalog) Append(ctx context.Context, project, table string, rel Relation) (int64, error) {
	if err := c.CreateNamespaceIfAbsent(ctx, project); err != nil {
		return 0, err
	}

	exists, err := c.TableExists(ctx, project, table)
	if err != nil {
		return 0, err
	}
	qualified := qualifiedTable(project, table)

	if !exists {
		cols := make([]string, 0, len(rel.Schema))
		orderCol := "tuple()"
		for i, col := range rel.Schema {
			cols = append(cols, columnDDL(col))
			if i == 0 {
				orderCol = sanitizeIdent(col.Name)
			}
		}
		ddl := fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (%s) ENGINE = MergeTree() ORDER BY %s SETTINGS index_granularity = 8192",
			qualified, strings.Join(cols, ", "), orderCol,
		)
		if _, err := c.db.ExecContext(ctx, ddl); err != nil {
			return 0, apperrors.WrapExecution(fmt.Errorf("create table %s: %w", qualified, err))
		}
	} else {
		current, err := c.Schema(ctx, project, table)
		if err != nil {
			return 0, err
		}
		if !schemaCompatible(current, rel.Schema) {
			return 0, apperrors.Execution(fmt.Sprintf("schema_mismatch: %s.%s", project, table))
		}
	}

	if len(rel.Rows) == 0 {
		return 0, nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperrors.WrapTransient(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	colNames := make([]string, len(rel.Schema))
	placeholders := make([]string, len(rel.Schema))
	for i, col := range rel.Schema {
		colNames[i] = sanitizeIdent(col.Name)
		placeholders[i] = "?"
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", qualified, strings.Join(colNames, ", "), strings.Join(placeholders, ", "))

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return 0, apperrors.WrapExecution(fmt.Errorf("prepare insert: %w", err))
	}
	defer stmt.Close()

	for _, row := range rel.Rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, apperrors.WrapExecution(fmt.Errorf("insert row: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, apperrors.WrapTransient(fmt.Errorf("commit: %w", err))
	}
	return int64(len(rel.Rows)), nil
}

func schemaCompatible(current, incoming []job.ColumnSchema) bool {
	byName := make(map[string]job.ColumnSchema, len(current))
	for _, c := range current {
		byName[c.Name] = c
	}
	for _, col := range incoming {
		existing, ok := byName[col.Name]
		if !ok || existing.Type != col.Type {
			return false
		}
	}
	return true
}

// Schema returns the column metadata of (project, table) without
// scanning any row data.
func (c *Catalog) Schema(ctx context.Context, project, table string) ([]job.ColumnSchema, error) {
	exists, err := c.TableExists(ctx, project, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.NotFound(fmt.Sprintf("table_not_found: %s.%s", project, table))
	}

	rows, err := c.db.QueryContext(ctx,
		"SELECT name, type, is_in_sorting_key FROM system.columns WHERE database = ? AND table = ? ORDER BY position",
		namespace(project), sanitizeIdent(table),
	)
	if err != nil {
		return nil, apperrors.WrapTransient(fmt.Errorf("schema query: %w", err))
	}
	defer rows.Close()

	var out []job.ColumnSchema
	for rows.Next() {
		var name, chType string
		var sortKey uint8
		if err := rows.Scan(&name, &chType, &sortKey); err != nil {
			return nil, apperrors.WrapTransient(fmt.Errorf("scan schema row: %w", err))
		}
		out = append(out, job.ColumnSchema{
			Name:     name,
			Type:     columnTypeFromClickHouse(chType),
			Nullable: strings.HasPrefix(chType, "Nullable("),
		})
	}
	return out, nil
}

func columnTypeFromClickHouse(chType string) job.ColumnType {
	t := strings.TrimPrefix(strings.TrimSuffix(chType, ")"), "Nullable(")
	switch {
	case strings.HasPrefix(t, "Int"), strings.HasPrefix(t, "UInt"):
		if t == "UInt8" {
			return job.ColumnBoolean
		}
		return job.ColumnInteger
	case strings.HasPrefix(t, "Float"):
		return job.ColumnFloating
	case strings.HasPrefix(t, "DateTime"), strings.HasPrefix(t, "Date"):
		return job.ColumnDate
	default:
		return job.ColumnString
	}
}

// Close releases the underlying connection pool.
func (c *Catalog) Close() error {
	return c.db.Close()
}
