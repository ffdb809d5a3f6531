package store

import (
	"context"
	"errors"
)

// ErrUnknownTable is returned by backends for a table name that is not in
// the registry.
var ErrUnknownTable = errors.New("unknown syncable table")

// ColumnKind tells the backends how to bind and normalize a domain column.
type ColumnKind int

const (
	ColumnText ColumnKind = iota
	ColumnBool
)

type Column struct {
	Name string
	Kind ColumnKind
}

// TableSpec describes one syncable table: its name and the domain columns it
// carries on top of the bookkeeping columns (id, user_id, created_at_ms,
// updated_at_ms, is_deleted) every syncable table shares.
type TableSpec struct {
	Name    string
	Columns []Column
}

// Tables is the registry of syncable tables, ordered parent-first. Pushes are
// applied in this order so a task never lands before the project it points to
// within the same changeset.
var Tables = []TableSpec{
	{
		Name: "projects",
		Columns: []Column{
			{Name: "name", Kind: ColumnText},
			{Name: "description", Kind: ColumnText},
		},
	},
	{
		Name: "tasks",
		Columns: []Column{
			{Name: "title", Kind: ColumnText},
			{Name: "description", Kind: ColumnText},
			{Name: "is_completed", Kind: ColumnBool},
			{Name: "project_id", Kind: ColumnText},
		},
	},
}

// TableByName returns the registry entry for name, or false when name is not
// a syncable table.
func TableByName(name string) (TableSpec, bool) {
	for _, t := range Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableSpec{}, false
}

// StoredRecord is one row of a syncable table in storage shape. Fields holds
// the domain columns keyed by column name; absent optional columns are nil.
type StoredRecord struct {
	ID          string
	UserID      string
	Fields      map[string]any
	CreatedAtMs int64
	UpdatedAtMs int64
	IsDeleted   bool
}

// SyncStorage is the change log store behind the sync protocol. All
// operations are row-atomic; no cross-row or cross-table transaction is
// required of a backend.
type SyncStorage interface {
	// ListChangedSince returns every row of table owned by userID with
	// updated_at_ms strictly greater than sinceMs, tombstones included,
	// ordered by updated_at_ms.
	ListChangedSince(ctx context.Context, table, userID string, sinceMs int64) ([]StoredRecord, error)

	// InsertIfAbsent inserts record unless its id already exists in table.
	// Returns false, without error, on an id collision so that a replayed
	// create is a no-op.
	InsertIfAbsent(ctx context.Context, table string, record StoredRecord) (bool, error)

	// UpdateOwned overwrites the domain columns and updated_at_ms of the row
	// matching (recordID, userID) that is not tombstoned. A foreign, missing
	// or tombstoned id matches zero rows and is not an error.
	UpdateOwned(ctx context.Context, table, userID, recordID string, fields map[string]any, updatedAtMs int64) error

	// TombstoneOwned soft-deletes the row matching (recordID, userID),
	// keeping it for delta propagation. Unmatched ids are not an error.
	TombstoneOwned(ctx context.Context, table, userID, recordID string, updatedAtMs int64) error

	// ListCurrent returns the live (non-tombstoned) rows of table owned by
	// userID, ordered by created_at_ms.
	ListCurrent(ctx context.Context, table, userID string) ([]StoredRecord, error)

	Close() error
}
