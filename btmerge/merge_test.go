package btmerge_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/braintrustdata/braintrust-sdk-sub004/btmerge"
)

func TestMergeNested(t *testing.T) {
	into := map[string]any{
		"input": "question",
		"metadata": map[string]any{
			"model": "gpt-4",
			"params": map[string]any{
				"temperature": 0.5,
			},
		},
	}
	from := map[string]any{
		"output": "answer",
		"metadata": map[string]any{
			"params": map[string]any{
				"max_tokens": 100,
			},
		},
	}
	got := btmerge.Merge(into, from)
	assert.Equal(t, "question", got["input"], "untouched keys survive")
	assert.Equal(t, "answer", got["output"])
	metadata := got["metadata"].(map[string]any)
	assert.Equal(t, "gpt-4", metadata["model"], "sibling keys survive a nested merge")
	params := metadata["params"].(map[string]any)
	assert.Equal(t, 0.5, params["temperature"])
	assert.Equal(t, 100, params["max_tokens"])
}

func TestMergeCutPath(t *testing.T) {
	into := map[string]any{
		"metadata": map[string]any{
			"model": "gpt-4",
			"params": map[string]any{
				"temperature": 0.5,
			},
		},
	}
	from := map[string]any{
		"metadata": map[string]any{
			"params": map[string]any{
				"max_tokens": 100,
			},
		},
	}
	got := btmerge.Merge(into, from, "metadata.params")
	metadata := got["metadata"].(map[string]any)
	assert.Equal(t, "gpt-4", metadata["model"], "merging continues above the cut")
	params := metadata["params"].(map[string]any)
	assert.Equal(t, map[string]any{"max_tokens": 100}, params, "below the cut is full replace")
}

func TestMergeTopLevelCutPath(t *testing.T) {
	into := map[string]any{"input": map[string]any{"question": "a"}}
	from := map[string]any{"input": map[string]any{"context": "b"}}
	got := btmerge.Merge(into, from, "input")
	assert.Equal(t, map[string]any{"context": "b"}, got["input"])
}

func TestMergeArraysReplace(t *testing.T) {
	into := map[string]any{"scores": []any{1, 2}}
	from := map[string]any{"scores": []any{3}}
	got := btmerge.Merge(into, from)
	assert.Equal(t, []any{3}, got["scores"], "arrays never merge element-wise")
}

func TestTagsUnion(t *testing.T) {
	got := btmerge.Merge(
		map[string]any{"tags": []string{"a", "b"}},
		map[string]any{"tags": []string{"b", "c"}},
	)
	assert.Equal(t, []string{"a", "b", "c"}, got["tags"])
}

func TestTagsUnionFromJSONShapes(t *testing.T) {
	got := btmerge.Merge(
		map[string]any{"tags": []any{"a", "b"}},
		map[string]any{"tags": []string{"b", "c"}},
	)
	assert.Equal(t, []string{"a", "b", "c"}, got["tags"], "[]any of strings unions too")
}

func TestTagsNilReplaces(t *testing.T) {
	got := btmerge.Merge(
		map[string]any{"tags": []string{"a"}},
		map[string]any{"tags": nil},
	)
	assert.Nil(t, got["tags"], "nil clears rather than unions")
}

func TestTagsCutPathForcesReplace(t *testing.T) {
	got := btmerge.Merge(
		map[string]any{"tags": []string{"a", "b"}},
		map[string]any{"tags": []string{}},
		btmerge.FieldTags,
	)
	assert.Equal(t, []string{}, got["tags"], "cut path is how callers clear tags")
}

func TestTagsBelowTopLevelReplace(t *testing.T) {
	got := btmerge.Merge(
		map[string]any{"metadata": map[string]any{"tags": []string{"a"}}},
		map[string]any{"metadata": map[string]any{"tags": []string{"b"}}},
	)
	metadata := got["metadata"].(map[string]any)
	assert.Equal(t, []string{"b"}, metadata["tags"], "union only applies at the top level")
}

func TestMergeAbsentKeysDoNotClobber(t *testing.T) {
	got := btmerge.Merge(
		map[string]any{"input": "keep", "output": "old"},
		map[string]any{"output": "new"},
	)
	assert.Equal(t, "keep", got["input"])
	assert.Equal(t, "new", got["output"])
}

func TestMergeNilInto(t *testing.T) {
	got := btmerge.Merge(nil, map[string]any{"a": 1})
	assert.Equal(t, map[string]any{"a": 1}, got)
}

func TestApplyArrayDeletes(t *testing.T) {
	target := map[string]any{
		"span_parents": []any{"p1", "p2", "p3"},
		"metadata": map[string]any{
			"labels": []string{"x", "y"},
		},
	}
	btmerge.ApplyArrayDeletes(target, map[string][]any{
		"span_parents":    {"p2", "nope"},
		"metadata.labels": {"y"},
	})
	assert.Equal(t, []any{"p1", "p3"}, target["span_parents"])
	metadata := target["metadata"].(map[string]any)
	assert.Equal(t, []string{"x"}, metadata["labels"], "typed string slices work too")
}

func TestApplyArrayDeletesDeepEquality(t *testing.T) {
	target := map[string]any{
		"events": []any{
			map[string]any{"kind": "retry", "n": 1},
			map[string]any{"kind": "retry", "n": 2},
		},
	}
	btmerge.ApplyArrayDeletes(target, map[string][]any{
		"events": {map[string]any{"kind": "retry", "n": 1}},
	})
	assert.Equal(t, []any{map[string]any{"kind": "retry", "n": 2}}, target["events"])
}

func TestApplyArrayDeletesSilentNoOps(t *testing.T) {
	target := map[string]any{
		"input": "not an array",
		"metadata": map[string]any{
			"model": "gpt-4",
		},
	}
	assert.NotPanics(t, func() {
		btmerge.ApplyArrayDeletes(target, map[string][]any{
			"missing":            {"v"},
			"input":              {"not an array"},
			"metadata.missing":   {"v"},
			"input.not.a.map":    {"v"},
			"metadata.model.sub": {"v"},
		})
	})
	assert.Equal(t, "not an array", target["input"], "non-array fields are untouched")
	assert.Equal(t, "gpt-4", target["metadata"].(map[string]any)["model"])
}
