package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/tasknest/data-sync/store"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

type PgSyncStorage struct {
	db *pgxpool.Pool
}

func NewPGSyncStorage(databaseURL string) (*PgSyncStorage, error) {
	db, err := sql.Open("pgx/v5", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database %w", err)
	}
	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver %w", err)
	}

	migrationDriver, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source %w", err)
	}

	m, err := migrate.NewWithInstance(
		"iofs", migrationDriver,
		"data-sync", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate migrations %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return nil, fmt.Errorf("failed to run migrations %w", err)
	}
	if err := db.Close(); err != nil {
		return nil, fmt.Errorf("failed to close migration connection %w", err)
	}

	pgxPool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New(%v): %w", databaseURL, err)
	}
	return &PgSyncStorage{db: pgxPool}, nil
}

func (s *PgSyncStorage) ListChangedSince(ctx context.Context, table, userID string, sinceMs int64) ([]store.StoredRecord, error) {
	spec, ok := store.TableByName(table)
	if !ok {
		return nil, store.ErrUnknownTable
	}

	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE user_id = $1 AND updated_at_ms > $2 ORDER BY updated_at_ms",
		selectColumns(spec), spec.Name)
	rows, err := s.db.Query(ctx, query, userID, sinceMs)
	if err != nil {
		return nil, fmt.Errorf("failed to query changed records: %w", err)
	}
	defer rows.Close()

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

func (s *PgSyncStorage) InsertIfAbsent(ctx context.Context, table string, record store.StoredRecord) (bool, error) {
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
	res, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to insert record: %w", err)
	}
	return res.RowsAffected() > 0, nil
}

func (s *PgSyncStorage) UpdateOwned(ctx context.Context, table, userID, recordID string, fields map[string]any, updatedAtMs int64) error {
	spec, ok := store.TableByName(table)
	if !ok {
		return store.ErrUnknownTable
	}

	var sets []string
	var args []any
	for _, c := range spec.Columns {
		sets = append(sets, fmt.Sprintf("%s = $%d", c.Name, len(args)+1))
		args = append(args, fields[c.Name])
	}
	sets = append(sets, fmt.Sprintf("updated_at_ms = $%d", len(args)+1))
	args = append(args, updatedAtMs, recordID, userID)

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = $%d AND user_id = $%d AND NOT is_deleted",
		spec.Name, strings.Join(sets, ", "), len(args)-1, len(args))
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	return nil
}

func (s *PgSyncStorage) TombstoneOwned(ctx context.Context, table, userID, recordID string, updatedAtMs int64) error {
	spec, ok := store.TableByName(table)
	if !ok {
		return store.ErrUnknownTable
	}

	query := fmt.Sprintf(
		"UPDATE %s SET is_deleted = TRUE, updated_at_ms = $1 WHERE id = $2 AND user_id = $3",
		spec.Name)
	if _, err := s.db.Exec(ctx, query, updatedAtMs, recordID, userID); err != nil {
		return fmt.Errorf("failed to tombstone record: %w", err)
	}
	return nil
}

func (s *PgSyncStorage) ListCurrent(ctx context.Context, table, userID string) ([]store.StoredRecord, error) {
	spec, ok := store.TableByName(table)
	if !ok {
		return nil, store.ErrUnknownTable
	}

	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE user_id = $1 AND NOT is_deleted ORDER BY created_at_ms",
		selectColumns(spec), spec.Name)
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query current records: %w", err)
	}
	defer rows.Close()

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

func (s *PgSyncStorage) Close() error {
	s.db.Close()
	return nil
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
	ps := make([]string, n)
	for i := range ps {
		ps[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(ps, ", ")
}
