package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// StoreTest runs the same assertions against every SyncStorage backend.
// Record ids are uuids because id uniqueness is global per table and the
// Postgres suite reuses one database across tests and runs.
type StoreTest struct{}

func projectRecord(id, userID, name string, atMs int64) StoredRecord {
	return StoredRecord{
		ID:     id,
		UserID: userID,
		Fields: map[string]any{
			"name":        name,
			"description": nil,
		},
		CreatedAtMs: atMs,
		UpdatedAtMs: atMs,
	}
}

func (s *StoreTest) TestInsertAndListChanged(t *testing.T, storage SyncStorage) {
	userID := uuid.New().String()
	p1 := uuid.New().String()
	p2 := uuid.New().String()

	inserted, err := storage.InsertIfAbsent(context.Background(), "projects", projectRecord(p1, userID, "alpha", 100))
	require.NoError(t, err, "failed to insert first project")
	require.True(t, inserted)

	inserted, err = storage.InsertIfAbsent(context.Background(), "projects", projectRecord(p2, userID, "beta", 200))
	require.NoError(t, err, "failed to insert second project")
	require.True(t, inserted)

	records, err := storage.ListChangedSince(context.Background(), "projects", userID, 0)
	require.NoError(t, err, "failed to list changes")
	require.Len(t, records, 2)
	require.Equal(t, p1, records[0].ID)
	require.Equal(t, "alpha", records[0].Fields["name"])
	require.Nil(t, records[0].Fields["description"])
	require.Equal(t, int64(100), records[0].CreatedAtMs)
	require.False(t, records[0].IsDeleted)

	records, err = storage.ListChangedSince(context.Background(), "projects", userID, 100)
	require.NoError(t, err, "failed to list changes since 100")
	require.Len(t, records, 1)
	require.Equal(t, p2, records[0].ID)

	// Another owner sees nothing.
	records, err = storage.ListChangedSince(context.Background(), "projects", uuid.New().String(), 0)
	require.NoError(t, err, "failed to list changes for other owner")
	require.Empty(t, records)
}

func (s *StoreTest) TestInsertIfAbsentIsIdempotent(t *testing.T, storage SyncStorage) {
	userID := uuid.New().String()
	p1 := uuid.New().String()

	inserted, err := storage.InsertIfAbsent(context.Background(), "projects", projectRecord(p1, userID, "alpha", 100))
	require.NoError(t, err, "failed to insert project")
	require.True(t, inserted)

	inserted, err = storage.InsertIfAbsent(context.Background(), "projects", projectRecord(p1, userID, "other", 200))
	require.NoError(t, err, "replayed insert should not error")
	require.False(t, inserted)

	records, err := storage.ListChangedSince(context.Background(), "projects", userID, 0)
	require.NoError(t, err, "failed to list changes")
	require.Len(t, records, 1)
	require.Equal(t, "alpha", records[0].Fields["name"])
	require.Equal(t, int64(100), records[0].UpdatedAtMs)
}

func (s *StoreTest) TestUpdateOwnedScoping(t *testing.T, storage SyncStorage) {
	owner := uuid.New().String()
	stranger := uuid.New().String()
	p1 := uuid.New().String()

	_, err := storage.InsertIfAbsent(context.Background(), "projects", projectRecord(p1, owner, "alpha", 100))
	require.NoError(t, err, "failed to insert project")

	fields := map[string]any{"name": "stolen", "description": nil}
	err = storage.UpdateOwned(context.Background(), "projects", stranger, p1, fields, 200)
	require.NoError(t, err, "foreign update must be a silent no-op")

	records, err := storage.ListChangedSince(context.Background(), "projects", owner, 0)
	require.NoError(t, err, "failed to list changes")
	require.Equal(t, "alpha", records[0].Fields["name"])
	require.Equal(t, int64(100), records[0].UpdatedAtMs)

	fields = map[string]any{"name": "beta", "description": "renamed"}
	err = storage.UpdateOwned(context.Background(), "projects", owner, p1, fields, 300)
	require.NoError(t, err, "failed to update project")

	records, err = storage.ListChangedSince(context.Background(), "projects", owner, 0)
	require.NoError(t, err, "failed to list changes")
	require.Equal(t, "beta", records[0].Fields["name"])
	require.Equal(t, "renamed", records[0].Fields["description"])
	require.Equal(t, int64(300), records[0].UpdatedAtMs)
}

func (s *StoreTest) TestTombstone(t *testing.T, storage SyncStorage) {
	userID := uuid.New().String()
	p1 := uuid.New().String()
	p2 := uuid.New().String()

	_, err := storage.InsertIfAbsent(context.Background(), "projects", projectRecord(p1, userID, "alpha", 100))
	require.NoError(t, err, "failed to insert first project")
	_, err = storage.InsertIfAbsent(context.Background(), "projects", projectRecord(p2, userID, "beta", 100))
	require.NoError(t, err, "failed to insert second project")

	err = storage.TombstoneOwned(context.Background(), "projects", userID, p1, 200)
	require.NoError(t, err, "failed to tombstone project")

	// Gone from current state but retained in the change log.
	current, err := storage.ListCurrent(context.Background(), "projects", userID)
	require.NoError(t, err, "failed to list current records")
	require.Len(t, current, 1)
	require.Equal(t, p2, current[0].ID)

	changed, err := storage.ListChangedSince(context.Background(), "projects", userID, 100)
	require.NoError(t, err, "failed to list changes")
	require.Len(t, changed, 1)
	require.Equal(t, p1, changed[0].ID)
	require.True(t, changed[0].IsDeleted)
	require.Equal(t, int64(200), changed[0].UpdatedAtMs)

	// Updates no longer reach the tombstoned row.
	fields := map[string]any{"name": "zombie", "description": nil}
	err = storage.UpdateOwned(context.Background(), "projects", userID, p1, fields, 300)
	require.NoError(t, err, "update of a tombstoned record must be a no-op")

	changed, err = storage.ListChangedSince(context.Background(), "projects", userID, 100)
	require.NoError(t, err, "failed to list changes")
	require.Equal(t, "alpha", changed[0].Fields["name"])
	require.Equal(t, int64(200), changed[0].UpdatedAtMs)
}

func (s *StoreTest) TestTaskColumns(t *testing.T, storage SyncStorage) {
	userID := uuid.New().String()
	t1 := uuid.New().String()

	record := StoredRecord{
		ID:     t1,
		UserID: userID,
		Fields: map[string]any{
			"title":        "write report",
			"description":  nil,
			"is_completed": true,
			"project_id":   "p1",
		},
		CreatedAtMs: 100,
		UpdatedAtMs: 100,
	}
	inserted, err := storage.InsertIfAbsent(context.Background(), "tasks", record)
	require.NoError(t, err, "failed to insert task")
	require.True(t, inserted)

	records, err := storage.ListChangedSince(context.Background(), "tasks", userID, 0)
	require.NoError(t, err, "failed to list changes")
	require.Len(t, records, 1)
	require.Equal(t, "write report", records[0].Fields["title"])
	require.Equal(t, true, records[0].Fields["is_completed"])
	require.Equal(t, "p1", records[0].Fields["project_id"])
}

func (s *StoreTest) TestUnknownTable(t *testing.T, storage SyncStorage) {
	_, err := storage.ListChangedSince(context.Background(), "users", uuid.New().String(), 0)
	require.ErrorIs(t, err, ErrUnknownTable)
}
