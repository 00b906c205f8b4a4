package btrow

import (
	"github.com/mohae/deepcopy"
	"github.com/pkg/errors"

	"github.com/braintrustdata/braintrust-sdk-sub004/btmerge"
)

// ErrMissingRowID is the fatal boundary error for a mutation with no row
// id. Nothing in the batch is processed when it fires.
var ErrMissingRowID = errors.New("log row mutation has no row id")

type rowKey struct {
	scope ScopeKey
	rowID string
}

// Reduce groups mutations by scope and row id and folds each group, in
// arrival order, into a single row. Group order follows first appearance.
//
// A merge-flagged mutation deep-merges into the accumulator; any other
// mutation replaces the accumulator's body outright. Either way the
// immutable-once-set fields (created, span_id, root_span_id, span_parents,
// and the parent row id) keep the value from whichever mutation set them
// first. Input maps are never aliased: payloads are deep-copied before the
// accumulator touches them, so callers keep ownership and a re-queued
// batch re-reduces cleanly.
func Reduce(mutations []Mutation) ([]MergedRow, error) {
	for i := range mutations {
		if mutations[i].RowID == "" {
			return nil, errors.Wrapf(ErrMissingRowID, "mutation %d", i)
		}
	}
	accumulators := make(map[rowKey]*MergedRow, len(mutations))
	order := make([]rowKey, 0, len(mutations))
	for _, m := range mutations {
		key := rowKey{scope: m.Scope, rowID: m.RowID}
		acc, ok := accumulators[key]
		if !ok {
			accumulators[key] = &MergedRow{
				Scope:       m.Scope,
				RowID:       m.RowID,
				ParentRowID: m.ParentRowID,
				IsMerge:     m.IsMerge,
				Fields:      copyFields(m.Fields),
			}
			order = append(order, key)
			continue
		}
		saved := extractImmutable(acc.Fields)
		if m.IsMerge {
			btmerge.Merge(acc.Fields, copyFields(m.Fields))
		} else {
			acc.Fields = copyFields(m.Fields)
			acc.IsMerge = false
		}
		restoreImmutable(acc.Fields, saved)
		if acc.ParentRowID == "" {
			acc.ParentRowID = m.ParentRowID
		}
	}
	rows := make([]MergedRow, len(order))
	for i, key := range order {
		rows[i] = *accumulators[key]
	}
	return rows, nil
}

func copyFields(fields map[string]any) map[string]any {
	if fields == nil {
		return make(map[string]any)
	}
	return deepcopy.Copy(fields).(map[string]any)
}

// extractImmutable snapshots the immutable-once-set fields currently held
// by the accumulator. Only fields that are actually present are saved, so
// a later mutation may still be the first setter.
func extractImmutable(fields map[string]any) map[string]any {
	var saved map[string]any
	for _, name := range immutableFields {
		if v, ok := fields[name]; ok {
			if saved == nil {
				saved = make(map[string]any, len(immutableFields))
			}
			saved[name] = v
		}
	}
	return saved
}

func restoreImmutable(fields, saved map[string]any) {
	for name, v := range saved {
		fields[name] = v
	}
}
