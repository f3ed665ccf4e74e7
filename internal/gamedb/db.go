// Package gamedb is the database collaborator of the reconciliation passes.
// It exposes a deliberately small surface: a lazy select, a conditional
// update that stages changes in a transaction, and an explicit commit.
// Updates are guarded by a one-shot pre-write hook so the first mutation of a
// run can take a backup of the database file.
package gamedb

import (
	"database/sql"
	"fmt"
	"iter"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/macfreek/game-db-manager/pkg/errors"
	"github.com/macfreek/game-db-manager/pkg/logging"
)

// Record is one database row, field name to value. Values are as reported by
// the driver: string, int64, float64, []byte or nil.
type Record map[string]any

// Where is the conditional-filter mini-language: field equality, with a nil
// or blank value meaning IS NULL. Conditions are joined with AND.
type Where map[string]any

// DB wraps a single shared SQLite handle. Mutations are staged on one lazy
// transaction and become durable on Commit. Not safe for concurrent use.
type DB struct {
	handle *sql.DB
	tx     *sql.Tx

	// prewrite runs exactly once, immediately before the first mutating
	// call of a run. Never on read-only runs.
	prewrite     func() error
	prewriteDone bool

	path string
}

// Open opens the database file. WAL mode keeps the lazy select readable
// while updates are staged on the write transaction.
func Open(path string) (*DB, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "open", Err: err}
	}
	if err := handle.Ping(); err != nil {
		_ = handle.Close()
		return nil, &errors.DatabaseError{Operation: "open", Err: err}
	}
	logging.Debug().Str("path", path).Msg("database opened")
	return &DB{handle: handle, path: path}, nil
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// SetPrewriteHook installs the one-shot callback fired before the first
// Update of this run. A hook error aborts the update.
func (db *DB) SetPrewriteHook(hook func() error) {
	db.prewrite = hook
	db.prewriteDone = false
}

// Select streams the records of table matching cond, a raw SQL condition
// ("" selects everything), in the given order. Fields may use an
// "expr AS alias" form; the alias becomes the record key. Iteration stops
// early when the caller breaks; a non-nil error is yielded at most once, as
// the final element.
func (db *DB) Select(fields []string, table, cond, order string) iter.Seq2[Record, error] {
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoteFields(fields), ", "), quoteIdent(table))
	if cond != "" {
		query += " WHERE " + cond
	}
	if order != "" {
		query += " ORDER BY " + quoteIdent(order)
	}
	return func(yield func(Record, error) bool) {
		logging.Debug().Str("query", query).Msg("select")
		rows, err := db.handle.Query(query)
		if err != nil {
			yield(nil, &errors.DatabaseError{Operation: "select", Table: table, Err: err})
			return
		}
		defer rows.Close()
		cols, err := rows.Columns()
		if err != nil {
			yield(nil, &errors.DatabaseError{Operation: "select", Table: table, Err: err})
			return
		}
		for rows.Next() {
			values := make([]any, len(cols))
			targets := make([]any, len(cols))
			for i := range values {
				targets[i] = &values[i]
			}
			if err := rows.Scan(targets...); err != nil {
				yield(nil, &errors.DatabaseError{Operation: "select", Table: table, Err: err})
				return
			}
			record := make(Record, len(cols))
			for i, col := range cols {
				record[col] = normalize(values[i])
			}
			if !yield(record, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, &errors.DatabaseError{Operation: "select", Table: table, Err: err})
		}
	}
}

// Update stages a conditional update and returns the number of rows
// affected. An empty where is rejected: a filter that accidentally matches
// the whole table must never slip through. Changes are not durable until
// Commit.
func (db *DB) Update(table string, where Where, changes map[string]any) (int64, error) {
	if len(where) == 0 {
		return 0, fmt.Errorf("update %s without conditions: %w", table, errors.ErrInvalidInput)
	}
	if len(changes) == 0 {
		return 0, fmt.Errorf("update %s without changes: %w", table, errors.ErrInvalidInput)
	}
	if err := db.firePrewrite(); err != nil {
		return 0, err
	}
	if db.tx == nil {
		tx, err := db.handle.Begin()
		if err != nil {
			return 0, &errors.DatabaseError{Operation: "begin", Table: table, Err: err}
		}
		db.tx = tx
	}

	keys := make([]string, 0, len(changes))
	for key := range changes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	assigns := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, key := range keys {
		assigns[i] = quoteIdent(key) + " = ?"
		args[i] = changes[key]
	}
	cond, condArgs := buildWhere(where)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		quoteIdent(table), strings.Join(assigns, ", "), cond)
	logging.Debug().Str("query", query).Msg("update")

	result, err := db.tx.Exec(query, append(args, condArgs...)...)
	if err != nil {
		return 0, &errors.DatabaseError{Operation: "update", Table: table, Err: err}
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, &errors.DatabaseError{Operation: "update", Table: table, Err: err}
	}
	return count, nil
}

// Commit makes staged updates durable. A no-op when nothing was staged.
func (db *DB) Commit() error {
	if db.tx == nil {
		return nil
	}
	err := db.tx.Commit()
	db.tx = nil
	if err != nil {
		return &errors.DatabaseError{Operation: "commit", Err: err}
	}
	logging.Debug().Msg("database commit")
	return nil
}

// Close rolls back any uncommitted updates and closes the handle.
func (db *DB) Close() error {
	if db.tx != nil {
		if err := db.tx.Rollback(); err != nil {
			logging.Warn().Err(err).Msg("rollback failed")
		}
		db.tx = nil
	}
	return db.handle.Close()
}

func (db *DB) firePrewrite() error {
	if db.prewrite == nil || db.prewriteDone {
		return nil
	}
	db.prewriteDone = true
	return db.prewrite()
}

// buildWhere renders the Where map as a deterministic conjunction. Keys are
// sorted so identical filters produce identical SQL.
func buildWhere(where Where) (string, []any) {
	if len(where) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(where))
	for key := range where {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	conds := make([]string, 0, len(keys))
	var args []any
	for _, key := range keys {
		value := where[key]
		if value == nil || value == "" {
			conds = append(conds, quoteIdent(key)+" IS NULL")
			continue
		}
		conds = append(conds, quoteIdent(key)+" = ?")
		args = append(args, value)
	}
	return strings.Join(conds, " AND "), args
}

// quoteFields quotes plain field names, keeping "expr AS alias" intact with
// both parts quoted.
func quoteFields(fields []string) []string {
	quoted := make([]string, len(fields))
	for i, field := range fields {
		if expr, alias, ok := strings.Cut(field, " AS "); ok {
			quoted[i] = quoteIdent(expr) + " AS " + quoteIdent(alias)
			continue
		}
		quoted[i] = quoteIdent(field)
	}
	return quoted
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// normalize turns driver byte slices into strings; everything else passes
// through.
func normalize(value any) any {
	if b, ok := value.([]byte); ok {
		return string(b)
	}
	return value
}

// Str returns the named field as a trimmed string, with nil as "".
func (r Record) Str(field string) string {
	switch v := r[field].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Int returns the named field as an int, with nil or unparseable as 0.
func (r Record) Int(field string) int {
	switch v := r[field].(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		var n int
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%d", &n); err == nil {
			return n
		}
	}
	return 0
}
