// Package insert writes generated rows to the database in batched multi-row
// INSERT statements. Each batch executes in its own transaction, so the
// atomicity boundary is the batch.
package insert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"dbmock/internal/core"
	"dbmock/internal/db"
)

// ErrConstraintViolation wraps insert failures the database attributes to a
// declared constraint.
var ErrConstraintViolation = errors.New("constraint violation")

// Executor is the live-database sink.
type Executor struct {
	conn   *db.Conn
	logger *slog.Logger
}

// NewExecutor builds an executor over an open connection.
func NewExecutor(conn *db.Conn, logger *slog.Logger) *Executor {
	return &Executor{conn: conn, logger: logger}
}

// InsertRows writes one batch inside a transaction.
func (e *Executor) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	query, args := e.buildInsert(table, columns, rows)

	tx, err := e.conn.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning batch for %s: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		_ = tx.Rollback()
		return classify(table, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch for %s: %w", table, err)
	}

	e.logger.Debug("batch inserted", "table", table, "rows", len(rows))
	return nil
}

// Flush is the ordering barrier between a table and its dependents. Inserts
// are synchronous, so there is nothing left to drain; the hook stays so a
// buffering executor can honor the same contract.
func (e *Executor) Flush(ctx context.Context, table string) error {
	return nil
}

// Truncate empties a table before generation. SQLite has no TRUNCATE, so it
// falls back to DELETE.
func (e *Executor) Truncate(ctx context.Context, table string) error {
	var query string
	if e.conn.Dialect() == core.DialectSQLite {
		query = "DELETE FROM " + e.conn.QuoteIdentifier(table)
	} else {
		query = "TRUNCATE TABLE " + e.conn.QuoteIdentifier(table)
	}
	if _, err := e.conn.DB.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("truncating %s: %w", table, err)
	}
	e.logger.Info("table truncated", "table", table)
	return nil
}

// buildInsert renders one multi-row INSERT with the dialect's placeholder
// style and flattens the row values into the argument list.
func (e *Executor) buildInsert(table string, columns []string, rows [][]any) (string, []any) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(e.conn.QuoteIdentifier(table))
	sb.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(e.conn.QuoteIdentifier(c))
	}
	sb.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	n := 1
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j, v := range row {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(e.conn.Placeholder(n))
			args = append(args, v)
			n++
		}
		sb.WriteByte(')')
	}
	return sb.String(), args
}

// classify upgrades constraint failures to the ErrConstraintViolation kind
// so callers can distinguish them from transport errors.
func classify(table string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "constraint") || strings.Contains(msg, "check") ||
		strings.Contains(msg, "duplicate") || strings.Contains(msg, "foreign key") {
		return fmt.Errorf("%w: inserting into %s: %v", ErrConstraintViolation, table, err)
	}
	return fmt.Errorf("inserting into %s: %w", table, err)
}

// Preview is a dry-run sink that renders rows as JSON lines instead of
// touching the database.
type Preview struct {
	Out io.Writer
}

// InsertRows writes each row as {"table": ..., "row": {...}}.
func (p *Preview) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) error {
	enc := json.NewEncoder(p.Out)
	for _, row := range rows {
		doc := make(map[string]any, len(columns))
		for i, c := range columns {
			v := row[i]
			if b, ok := v.([]byte); ok {
				v = fmt.Sprintf("0x%x", b)
			}
			doc[c] = v
		}
		if err := enc.Encode(map[string]any{"table": table, "row": doc}); err != nil {
			return err
		}
	}
	return nil
}

// Flush is a no-op for previews.
func (p *Preview) Flush(ctx context.Context, table string) error {
	return nil
}
