// Package btrow reduces streams of partial, out-of-order row mutations
// into consistent rows and orders them so parents are never transmitted
// after children.
package btrow

// Reserved payload keys. Producers must not repurpose these.
const (
	// FieldCreated, FieldSpanID, FieldRootSpanID, and FieldSpanParents
	// are immutable once set: the first mutation in a group that
	// populates one of them wins, no matter what later mutations say.
	FieldCreated     = "created"
	FieldSpanID      = "span_id"
	FieldRootSpanID  = "root_span_id"
	FieldSpanParents = "span_parents"

	// FieldID and FieldParentID are where the row id and parent row id
	// appear in serialized output.
	FieldID       = "id"
	FieldParentID = "_parent_id"
	FieldIsMerge  = "_is_merge"
)

// immutableFields are extracted from an accumulator before a merge or
// replace and re-applied afterwards.
var immutableFields = []string{FieldCreated, FieldSpanID, FieldRootSpanID, FieldSpanParents}

// ScopeKey is the container address of a row. Exactly one container axis
// is populated per mutation; the struct is comparable and forms the group
// key together with the row id.
type ScopeKey struct {
	OrgID           string
	ProjectID       string
	ExperimentID    string
	DatasetID       string
	PromptSessionID string
	LogID           string
}

// Mutation is one unit of input: a partial update to one logical row.
type Mutation struct {
	Scope ScopeKey

	// RowID names the logical row. Required; a mutation without one is
	// rejected at the pipeline boundary.
	RowID string

	// ParentRowID references the row this one is hierarchically
	// subordinate to (a child span names its parent). It may point
	// outside the current batch, in which case the row orders as a root.
	// Immutable once set, like FieldParentID implies.
	ParentRowID string

	// IsMerge selects deep-merge-into over full-replace-of the
	// accumulated row state. A non-merge mutation can still be merged
	// into by later mutations.
	IsMerge bool

	// Fields is the arbitrary nested payload, including any of the
	// reserved keys above.
	Fields map[string]any
}

// MergedRow is the reduction of every mutation sharing one identity.
type MergedRow struct {
	Scope       ScopeKey
	RowID       string
	ParentRowID string

	// IsMerge is true only when the row never absorbed a full replace,
	// so a receiver must merge it into existing state rather than
	// overwrite.
	IsMerge bool

	Fields map[string]any
}
