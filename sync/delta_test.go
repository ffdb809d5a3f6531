package sync

import (
	"testing"

	"github.com/tasknest/data-sync/store"
	"github.com/stretchr/testify/require"
)

func projectsSpec(t *testing.T) store.TableSpec {
	spec, ok := store.TableByName("projects")
	require.True(t, ok)
	return spec
}

func TestComputeTableDeltaClassification(t *testing.T) {
	spec := projectsSpec(t)
	records := []store.StoredRecord{
		{
			ID:          "created-after-watermark",
			Fields:      map[string]any{"name": "a", "description": nil},
			CreatedAtMs: 150,
			UpdatedAtMs: 150,
		},
		{
			ID:          "updated-after-watermark",
			Fields:      map[string]any{"name": "b", "description": "old row"},
			CreatedAtMs: 50,
			UpdatedAtMs: 200,
		},
		{
			ID:          "deleted-after-watermark",
			Fields:      map[string]any{"name": "c", "description": nil},
			CreatedAtMs: 50,
			UpdatedAtMs: 250,
			IsDeleted:   true,
		},
	}

	tc := computeTableDelta(spec, records, 100)

	require.Len(t, tc.Created, 1)
	require.Equal(t, "created-after-watermark", tc.Created[0]["id"])
	require.Equal(t, int64(150), tc.Created[0]["created_at"])
	require.Equal(t, int64(150), tc.Created[0]["updated_at"])
	require.Equal(t, "a", tc.Created[0]["name"])

	require.Len(t, tc.Updated, 1)
	require.Equal(t, "updated-after-watermark", tc.Updated[0]["id"])
	require.Equal(t, "old row", tc.Updated[0]["description"])

	require.Equal(t, []string{"deleted-after-watermark"}, tc.Deleted)
}

func TestComputeTableDeltaCreateThenDeleteCollapses(t *testing.T) {
	spec := projectsSpec(t)

	// Created and tombstoned inside the same pull window: must show up
	// once, in deleted, never in created.
	records := []store.StoredRecord{
		{
			ID:          "ephemeral",
			Fields:      map[string]any{"name": "a", "description": nil},
			CreatedAtMs: 150,
			UpdatedAtMs: 180,
			IsDeleted:   true,
		},
	}

	tc := computeTableDelta(spec, records, 100)
	require.Empty(t, tc.Created)
	require.Empty(t, tc.Updated)
	require.Equal(t, []string{"ephemeral"}, tc.Deleted)
}

func TestComputeTableDeltaEmptyInput(t *testing.T) {
	tc := computeTableDelta(projectsSpec(t), nil, 0)

	// Buckets must be empty arrays on the wire, not null.
	require.NotNil(t, tc.Created)
	require.NotNil(t, tc.Updated)
	require.NotNil(t, tc.Deleted)
	require.Empty(t, tc.Created)
}

func TestValidateChanges(t *testing.T) {
	cases := []struct {
		name    string
		changes Changes
	}{
		{
			name: "unknown table",
			changes: Changes{
				"users": {Created: []Row{{"id": "u1"}}},
			},
		},
		{
			name: "created row without id",
			changes: Changes{
				"projects": {Created: []Row{{"name": "a"}}},
			},
		},
		{
			name: "non-string id",
			changes: Changes{
				"projects": {Updated: []Row{{"id": 42.0}}},
			},
		},
		{
			name: "empty deleted id",
			changes: Changes{
				"projects": {Deleted: []string{""}},
			},
		},
		{
			name: "boolean column holds a string",
			changes: Changes{
				"tasks": {Created: []Row{{"id": "t1", "title": "x", "is_completed": "yes"}}},
			},
		},
		{
			name: "text column holds a number",
			changes: Changes{
				"projects": {Created: []Row{{"id": "p1", "name": 7.0}}},
			},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.ErrorIs(t, c.changes.Validate(), ErrMalformedChangeSet)
		})
	}

	valid := Changes{
		"projects": {
			Created: []Row{{"id": "p1", "name": "a", "description": nil}},
			Updated: []Row{},
			Deleted: []string{"p2"},
		},
		"tasks": {
			Created: []Row{{"id": "t1", "title": "x", "is_completed": false, "project_id": "p1"}},
		},
	}
	require.NoError(t, valid.Validate())
}
