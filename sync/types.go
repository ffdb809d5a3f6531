// Package sync implements the watermark-based delta synchronization protocol
// between offline-first clients and the server of record. A client pulls
// everything that changed after its last watermark, applies it locally, and
// later pushes its accumulated local mutations; every push operation is
// idempotent so a failed push can be retried verbatim.
package sync

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tasknest/data-sync/store"
)

var (
	// ErrMalformedChangeSet marks a structurally invalid push payload. It is
	// raised before any storage mutation, so a rejected push has no effects.
	ErrMalformedChangeSet = errors.New("malformed changeset")

	// ErrInvalidWatermark marks a pull with a negative watermark.
	ErrInvalidWatermark = errors.New("invalid watermark")
)

// Row is a record in the client-facing wire shape: "id", the table's domain
// columns, and "created_at"/"updated_at" millisecond timestamps. Timestamps
// submitted by a client are decoded but never trusted; the server assigns
// its own on every write.
type Row map[string]any

type TableChanges struct {
	Created []Row    `json:"created"`
	Updated []Row    `json:"updated"`
	Deleted []string `json:"deleted"`
}

// Changes is a changeset keyed by table name.
type Changes map[string]TableChanges

// PullRequest carries the client's watermark. SchemaVersion and Migration
// belong to the client's schema migration machinery and pass through this
// core untouched.
type PullRequest struct {
	LastPulledAt  int64           `json:"lastPulledAt"`
	SchemaVersion int             `json:"schemaVersion"`
	Migration     json.RawMessage `json:"migration"`
}

type PullResponse struct {
	Changes   Changes `json:"changes"`
	Timestamp int64   `json:"timestamp"`
}

// PushRequest carries the client's pending changeset. LastPulledAt is part
// of the wire protocol but the server's reconciliation does not depend on
// it: ordering comes from server-assigned timestamps alone.
type PushRequest struct {
	Changes      Changes `json:"changes"`
	LastPulledAt int64   `json:"lastPulledAt"`
}

type PushResponse struct {
	Success bool `json:"success"`
}

// Validate rejects a changeset that names an unknown table, carries a row
// without a string id, an empty deleted id, or a domain column of the wrong
// type. It runs before any storage operation.
func (c Changes) Validate() error {
	for name, tc := range c {
		spec, ok := store.TableByName(name)
		if !ok {
			return fmt.Errorf("%w: unknown table %q", ErrMalformedChangeSet, name)
		}
		for _, row := range tc.Created {
			if err := validateRow(spec, row); err != nil {
				return err
			}
		}
		for _, row := range tc.Updated {
			if err := validateRow(spec, row); err != nil {
				return err
			}
		}
		for _, id := range tc.Deleted {
			if id == "" {
				return fmt.Errorf("%w: empty deleted id in table %q", ErrMalformedChangeSet, name)
			}
		}
	}
	return nil
}

func validateRow(spec store.TableSpec, row Row) error {
	if _, ok := rowID(row); !ok {
		return fmt.Errorf("%w: row without id in table %q", ErrMalformedChangeSet, spec.Name)
	}
	for _, c := range spec.Columns {
		v, ok := row[c.Name]
		if !ok || v == nil {
			continue
		}
		switch c.Kind {
		case store.ColumnBool:
			if _, ok := v.(bool); !ok {
				return fmt.Errorf("%w: column %s.%s is not a boolean", ErrMalformedChangeSet, spec.Name, c.Name)
			}
		default:
			if _, ok := v.(string); !ok {
				return fmt.Errorf("%w: column %s.%s is not a string", ErrMalformedChangeSet, spec.Name, c.Name)
			}
		}
	}
	return nil
}

func rowID(row Row) (string, bool) {
	id, ok := row["id"].(string)
	return id, ok && id != ""
}

// extractFields projects a wire row onto the table's domain columns,
// dropping anything outside the registry. Absent text columns become NULL,
// absent booleans false.
func extractFields(spec store.TableSpec, row Row) map[string]any {
	fields := make(map[string]any, len(spec.Columns))
	for _, c := range spec.Columns {
		v := row[c.Name]
		if c.Kind == store.ColumnBool && v == nil {
			v = false
		}
		fields[c.Name] = v
	}
	return fields
}
