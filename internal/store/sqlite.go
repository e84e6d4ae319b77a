package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"

	"github.com/vyrodovalexey/homelab-api/internal/model"
)

// DefaultSQLiteDSN is a private in-memory database. Every store opened with
// it starts empty. Shared-cache DSNs such as "file:name?mode=memory&cache=shared"
// are visible to every store in the process that opens the same name.
const DefaultSQLiteDSN = ":memory:"

const schema = `CREATE TABLE IF NOT EXISTS items (
	id          INTEGER PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT
);`

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store on an in-memory SQLite database. A single
// connection is used, which serializes writers and keeps the in-memory
// database alive for the lifetime of the store.
type SQLiteStore struct {
	db *sql.DB
}

// IsInMemoryDSN reports whether dsn refers to an in-memory SQLite database:
// ":memory:", or a file: URI naming ":memory:" or carrying mode=memory.
func IsInMemoryDSN(dsn string) bool {
	if dsn == ":memory:" {
		return true
	}
	if !strings.HasPrefix(dsn, "file:") {
		return false
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return false
	}

	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return false
	}
	if mode := query["mode"]; len(mode) > 0 {
		return len(mode) == 1 && mode[0] == "memory"
	}

	return u.Opaque == ":memory:"
}

// NewSQLiteStore opens the database at dsn and creates the items table.
// Only in-memory DSNs are accepted.
func NewSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	if !IsInMemoryDSN(dsn) {
		return nil, fmt.Errorf("open sqlite store %q: %w", dsn, ErrInvalidDSN)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite store: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// GetAll returns all items ordered by ID.
func (s *SQLiteStore) GetAll(ctx context.Context) ([]model.Item, error) {
	if err := checkContext(ctx, "list items"); err != nil {
		return nil, err
	}
	return getAll(ctx, s.db)
}

// Get retrieves an item by its ID.
func (s *SQLiteStore) Get(ctx context.Context, id int) (model.Item, bool, error) {
	if err := checkContext(ctx, "get item"); err != nil {
		return model.Item{}, false, err
	}
	return getOne(ctx, s.db, id)
}

// MaxID returns the highest stored ID.
func (s *SQLiteStore) MaxID(ctx context.Context) (int, error) {
	if err := checkContext(ctx, "max id"); err != nil {
		return 0, err
	}
	return selectMaxID(ctx, s.db)
}

// Update runs fn inside a transaction, committing when fn returns nil.
func (s *SQLiteStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := checkContext(ctx, "update"); err != nil {
		return err
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&sqliteTx{q: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Close closes the database. The in-memory data is discarded.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteTx struct {
	q queryer
}

func (tx *sqliteTx) GetAll(ctx context.Context) ([]model.Item, error) {
	if err := checkContext(ctx, "list items"); err != nil {
		return nil, err
	}
	return getAll(ctx, tx.q)
}

func (tx *sqliteTx) Get(ctx context.Context, id int) (model.Item, bool, error) {
	if err := checkContext(ctx, "get item"); err != nil {
		return model.Item{}, false, err
	}
	return getOne(ctx, tx.q, id)
}

func (tx *sqliteTx) MaxID(ctx context.Context) (int, error) {
	if err := checkContext(ctx, "max id"); err != nil {
		return 0, err
	}
	return selectMaxID(ctx, tx.q)
}

func (tx *sqliteTx) Insert(ctx context.Context, item model.Item) (model.Item, error) {
	if err := checkContext(ctx, "insert item"); err != nil {
		return model.Item{}, err
	}

	if item.ID <= 0 {
		return model.Item{}, fmt.Errorf("insert item %d: %w", item.ID, ErrInvalidID)
	}

	_, exists, err := getOne(ctx, tx.q, item.ID)
	if err != nil {
		return model.Item{}, err
	}
	if exists {
		return model.Item{}, fmt.Errorf("insert item %d: %w", item.ID, ErrAlreadyExists)
	}

	if _, err := tx.q.ExecContext(ctx,
		`INSERT INTO items (id, name, description) VALUES (?, ?, ?)`,
		item.ID, item.Name, nullable(item.Description),
	); err != nil {
		return model.Item{}, fmt.Errorf("insert item %d: %w", item.ID, err)
	}

	return item.Clone(), nil
}

func (tx *sqliteTx) Replace(ctx context.Context, id int, item model.Item) error {
	if err := checkContext(ctx, "replace item"); err != nil {
		return err
	}

	res, err := tx.q.ExecContext(ctx,
		`UPDATE items SET name = ?, description = ? WHERE id = ?`,
		item.Name, nullable(item.Description), id,
	)
	if err != nil {
		return fmt.Errorf("replace item %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("replace item %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("replace item %d: %w", id, ErrNotFound)
	}

	return nil
}

func (tx *sqliteTx) Remove(ctx context.Context, id int) (bool, error) {
	if err := checkContext(ctx, "remove item"); err != nil {
		return false, err
	}

	res, err := tx.q.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("remove item %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove item %d: %w", id, err)
	}

	return n > 0, nil
}

func getAll(ctx context.Context, q queryer) ([]model.Item, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name, description FROM items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := make([]model.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("list items: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	return items, nil
}

func getOne(ctx context.Context, q queryer, id int) (model.Item, bool, error) {
	row := q.QueryRowContext(ctx, `SELECT id, name, description FROM items WHERE id = ?`, id)

	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Item{}, false, nil
		}
		return model.Item{}, false, fmt.Errorf("get item %d: %w", id, err)
	}

	return item, true, nil
}

func selectMaxID(ctx context.Context, q queryer) (int, error) {
	var highest int
	if err := q.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM items`).Scan(&highest); err != nil {
		return 0, fmt.Errorf("max id: %w", err)
	}
	return highest, nil
}

// nullable converts an optional string into a driver value.
func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(sc scanner) (model.Item, error) {
	var (
		item        model.Item
		description sql.NullString
	)
	if err := sc.Scan(&item.ID, &item.Name, &description); err != nil {
		return model.Item{}, err
	}
	if description.Valid {
		item.Description = model.StringPtr(description.String)
	}
	return item, nil
}
