package sync

import (
	"context"
	"fmt"

	"github.com/tasknest/data-sync/store"
)

// applyTableChanges reconciles one table's changeset against storage. Every
// operation is scoped to userID and idempotent: replayed creates hit the id
// collision no-op, updates and deletes of foreign or missing ids match zero
// rows. A storage failure aborts the remaining operations; rows already
// written stay written, which is safe because the client retries the whole
// changeset.
func applyTableChanges(ctx context.Context, storage store.SyncStorage, spec store.TableSpec, userID string, tc TableChanges, nowMs int64) error {
	for _, row := range tc.Created {
		id, _ := rowID(row)
		record := store.StoredRecord{
			ID:          id,
			UserID:      userID,
			Fields:      extractFields(spec, row),
			CreatedAtMs: nowMs,
			UpdatedAtMs: nowMs,
		}
		if _, err := storage.InsertIfAbsent(ctx, spec.Name, record); err != nil {
			return fmt.Errorf("failed to create %s record: %w", spec.Name, err)
		}
	}
	for _, row := range tc.Updated {
		id, _ := rowID(row)
		if err := storage.UpdateOwned(ctx, spec.Name, userID, id, extractFields(spec, row), nowMs); err != nil {
			return fmt.Errorf("failed to update %s record: %w", spec.Name, err)
		}
	}
	for _, id := range tc.Deleted {
		if err := storage.TombstoneOwned(ctx, spec.Name, userID, id, nowMs); err != nil {
			return fmt.Errorf("failed to delete %s record: %w", spec.Name, err)
		}
	}
	return nil
}
