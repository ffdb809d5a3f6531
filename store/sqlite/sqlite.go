package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/tasknest/data-sync/store"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

type SQLiteSyncStorage struct {
	db *sql.DB
}

func NewSQLiteSyncStorage(file string) (*SQLiteSyncStorage, error) {
	db, err := sql.Open("sqlite3", file)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite3 database %w", err)
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver %w", err)
	}

	migrationDriver, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source %w", err)
	}

	m, err := migrate.NewWithInstance(
		"iofs", migrationDriver,
		file, driver)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate migrations %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return nil, fmt.Errorf("failed to run migrations %w", err)
	}
	return &SQLiteSyncStorage{db: db}, nil
}

func (s *SQLiteSyncStorage) ListChangedSince(ctx context.Context, table, userID string, sinceMs int64) ([]store.StoredRecord, error) {
	spec, ok := store.TableByName(table)
	if !ok {
		return nil, store.ErrUnknownTable
	}

	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE user_id = ? AND updated_at_ms > ? ORDER BY updated_at_ms",
		selectColumns(spec), spec.Name)
	rows, err := s.db.QueryContext(ctx, query, userID, sinceMs)
	if err != nil {
		return nil, fmt.Errorf("failed to query changed records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows, spec)
}

func (s *SQLiteSyncStorage) InsertIfAbsent(ctx context.Context, table string, record store.StoredRecord) (bool, error) {
	spec, ok := store.TableByName(table)
	if !ok {
		return false, store.ErrUnknownTable
	}

	cols := []string{"id", "user_id"}
	args := []any{record.ID, record.UserID}
	for _, c := range spec.Columns {
		cols = append(cols, c.Name)
		args = append(args, record.Fields[c.Name])
	}
	cols = append(cols, "created_at_ms", "updated_at_ms", "is_deleted")
	args = append(args, record.CreatedAtMs, record.UpdatedAtMs, record.IsDeleted)

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO NOTHING",
		spec.Name, strings.Join(cols, ", "), placeholders(len(cols)))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to insert record: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return inserted > 0, nil
}

func (s *SQLiteSyncStorage) UpdateOwned(ctx context.Context, table, userID, recordID string, fields map[string]any, updatedAtMs int64) error {
	spec, ok := store.TableByName(table)
	if !ok {
		return store.ErrUnknownTable
	}

	var sets []string
	var args []any
	for _, c := range spec.Columns {
		sets = append(sets, c.Name+" = ?")
		args = append(args, fields[c.Name])
	}
	sets = append(sets, "updated_at_ms = ?")
	args = append(args, updatedAtMs, recordID, userID)

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = ? AND user_id = ? AND is_deleted = 0",
		spec.Name, strings.Join(sets, ", "))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	return nil
}

func (s *SQLiteSyncStorage) TombstoneOwned(ctx context.Context, table, userID, recordID string, updatedAtMs int64) error {
	spec, ok := store.TableByName(table)
	if !ok {
		return store.ErrUnknownTable
	}

	query := fmt.Sprintf(
		"UPDATE %s SET is_deleted = 1, updated_at_ms = ? WHERE id = ? AND user_id = ?",
		spec.Name)
	if _, err := s.db.ExecContext(ctx, query, updatedAtMs, recordID, userID); err != nil {
		return fmt.Errorf("failed to tombstone record: %w", err)
	}
	return nil
}

func (s *SQLiteSyncStorage) ListCurrent(ctx context.Context, table, userID string) ([]store.StoredRecord, error) {
	spec, ok := store.TableByName(table)
	if !ok {
		return nil, store.ErrUnknownTable
	}

	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE user_id = ? AND is_deleted = 0 ORDER BY created_at_ms",
		selectColumns(spec), spec.Name)
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query current records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows, spec)
}

func (s *SQLiteSyncStorage) Close() error {
	return s.db.Close()
}

func selectColumns(spec store.TableSpec) string {
	cols := []string{"id", "user_id"}
	for _, c := range spec.Columns {
		cols = append(cols, c.Name)
	}
	cols = append(cols, "created_at_ms", "updated_at_ms", "is_deleted")
	return strings.Join(cols, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func scanRecords(rows *sql.Rows, spec store.TableSpec) ([]store.StoredRecord, error) {
	records := make([]store.StoredRecord, 0)
	for rows.Next() {
		record := store.StoredRecord{Fields: make(map[string]any, len(spec.Columns))}
		fieldVals := make([]any, len(spec.Columns))
		dest := []any{&record.ID, &record.UserID}
		for i := range fieldVals {
			dest = append(dest, &fieldVals[i])
		}
		dest = append(dest, &record.CreatedAtMs, &record.UpdatedAtMs, &record.IsDeleted)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		for i, c := range spec.Columns {
			record.Fields[c.Name] = store.Normalize(c.Kind, fieldVals[i])
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}
