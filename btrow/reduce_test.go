package btrow_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braintrustdata/braintrust-sdk-sub004/btrow"
)

var scope = btrow.ScopeKey{ExperimentID: "exp-1"}

func TestReduceMissingRowIDIsFatal(t *testing.T) {
	_, err := btrow.Reduce([]btrow.Mutation{
		{Scope: scope, RowID: "r1", Fields: map[string]any{"a": 1}},
		{Scope: scope, Fields: map[string]any{"a": 2}},
	})
	assert.True(t, errors.Is(err, btrow.ErrMissingRowID))
}

func TestReduceMergePreservesImmutableFields(t *testing.T) {
	rows, err := btrow.Reduce([]btrow.Mutation{
		{Scope: scope, RowID: "r1", Fields: map[string]any{
			"created": "2026-08-25T10:00:00Z",
			"span_id": "s1",
			"input":   "question",
		}},
		{Scope: scope, RowID: "r1", IsMerge: true, Fields: map[string]any{
			"created": "2026-08-25T10:00:05Z",
			"output":  "answer",
		}},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2026-08-25T10:00:00Z", rows[0].Fields["created"], "first setter wins")
	assert.Equal(t, "s1", rows[0].Fields["span_id"])
	assert.Equal(t, "question", rows[0].Fields["input"])
	assert.Equal(t, "answer", rows[0].Fields["output"])
}

func TestReduceReplaceDiscardsBodyKeepsImmutables(t *testing.T) {
	rows, err := btrow.Reduce([]btrow.Mutation{
		{Scope: scope, RowID: "r1", Fields: map[string]any{"a": 1, "span_id": "s1"}},
		{Scope: scope, RowID: "r1", Fields: map[string]any{"b": 2}},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, map[string]any{"b": 2, "span_id": "s1"}, rows[0].Fields)
	assert.False(t, rows[0].IsMerge)
}

func TestReduceLaterMergeCannotResurrectReplacedFields(t *testing.T) {
	rows, err := btrow.Reduce([]btrow.Mutation{
		{Scope: scope, RowID: "r1", Fields: map[string]any{"a": 1}},
		{Scope: scope, RowID: "r1", Fields: map[string]any{"b": 2}},
		{Scope: scope, RowID: "r1", IsMerge: true, Fields: map[string]any{"c": 3}},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, map[string]any{"b": 2, "c": 3}, rows[0].Fields)
	assert.False(t, rows[0].IsMerge, "a replaced row stays a replacement for the receiver")
}

func TestReduceMergeOnlyGroupStaysMerge(t *testing.T) {
	rows, err := btrow.Reduce([]btrow.Mutation{
		{Scope: scope, RowID: "r1", IsMerge: true, Fields: map[string]any{"a": 1}},
		{Scope: scope, RowID: "r1", IsMerge: true, Fields: map[string]any{"b": 2}},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsMerge, "nothing replaced, so the receiver must still merge")
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, rows[0].Fields)
}

func TestReduceTagsUnion(t *testing.T) {
	rows, err := btrow.Reduce([]btrow.Mutation{
		{Scope: scope, RowID: "r1", Fields: map[string]any{"tags": []string{"a", "b"}}},
		{Scope: scope, RowID: "r1", IsMerge: true, Fields: map[string]any{"tags": []string{"b", "c"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, rows[0].Fields["tags"])
}

func TestReduceGroupsByScopeAndRowID(t *testing.T) {
	other := btrow.ScopeKey{ProjectID: "proj-1"}
	rows, err := btrow.Reduce([]btrow.Mutation{
		{Scope: scope, RowID: "r1", Fields: map[string]any{"a": 1}},
		{Scope: other, RowID: "r1", Fields: map[string]any{"a": 2}},
		{Scope: scope, RowID: "r2", Fields: map[string]any{"a": 3}},
	})
	require.NoError(t, err)
	require.Len(t, rows, 3, "same row id in different scopes is a different row")
	assert.Equal(t, scope, rows[0].Scope)
	assert.Equal(t, other, rows[1].Scope)
	assert.Equal(t, "r2", rows[2].RowID)
}

func TestReduceParentRowIDFirstSetterWins(t *testing.T) {
	rows, err := btrow.Reduce([]btrow.Mutation{
		{Scope: scope, RowID: "r1", ParentRowID: "p1", Fields: map[string]any{}},
		{Scope: scope, RowID: "r1", IsMerge: true, ParentRowID: "p2", Fields: map[string]any{}},
	})
	require.NoError(t, err)
	assert.Equal(t, "p1", rows[0].ParentRowID)
}

func TestReduceDoesNotAliasCallerMaps(t *testing.T) {
	payload := map[string]any{"metadata": map[string]any{"model": "gpt-4"}}
	rows, err := btrow.Reduce([]btrow.Mutation{
		{Scope: scope, RowID: "r1", Fields: payload},
	})
	require.NoError(t, err)
	payload["metadata"].(map[string]any)["model"] = "changed"
	assert.Equal(t, "gpt-4", rows[0].Fields["metadata"].(map[string]any)["model"])
}

func TestReduceIdempotentReMerge(t *testing.T) {
	// a drain that is abandoned before transport re-queues its merged
	// rows; reducing them together with newer mutations must not move
	// the immutable fields
	first, err := btrow.Reduce([]btrow.Mutation{
		{Scope: scope, RowID: "r1", Fields: map[string]any{"created": "t1", "input": "q"}},
	})
	require.NoError(t, err)

	requeued := btrow.Mutation{
		Scope:       first[0].Scope,
		RowID:       first[0].RowID,
		ParentRowID: first[0].ParentRowID,
		IsMerge:     first[0].IsMerge,
		Fields:      first[0].Fields,
	}
	second, err := btrow.Reduce([]btrow.Mutation{
		requeued,
		{Scope: scope, RowID: "r1", IsMerge: true, Fields: map[string]any{"created": "t2", "output": "a"}},
	})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "t1", second[0].Fields["created"])
	assert.Equal(t, "q", second[0].Fields["input"])
	assert.Equal(t, "a", second[0].Fields["output"])
}
