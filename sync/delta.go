package sync

import (
	"github.com/tasknest/data-sync/store"
)

// computeTableDelta partitions rows changed after sinceMs into the
// created/updated/deleted buckets of the wire protocol. The tombstone check
// runs first: a record created and deleted inside the same window is
// reported once, as a deletion, never as a create.
func computeTableDelta(spec store.TableSpec, records []store.StoredRecord, sinceMs int64) TableChanges {
	tc := TableChanges{
		Created: []Row{},
		Updated: []Row{},
		Deleted: []string{},
	}
	for _, r := range records {
		switch {
		case r.IsDeleted:
			tc.Deleted = append(tc.Deleted, r.ID)
		case r.CreatedAtMs > sinceMs:
			tc.Created = append(tc.Created, clientRow(spec, r))
		default:
			tc.Updated = append(tc.Updated, clientRow(spec, r))
		}
	}
	return tc
}

// clientRow translates a stored row into the client-facing shape.
func clientRow(spec store.TableSpec, r store.StoredRecord) Row {
	row := Row{
		"id":         r.ID,
		"created_at": r.CreatedAtMs,
		"updated_at": r.UpdatedAtMs,
	}
	for _, c := range spec.Columns {
		row[c.Name] = r.Fields[c.Name]
	}
	return row
}
