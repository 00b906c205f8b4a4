// Package btid gives every log row a compact, versioned, cross-service
// identity. A SpanIdentity addresses a row/span inside a parent container
// (an experiment, a project log, or a playground session) and encodes to an
// opaque URL-safe token that any newer SDK can decode.
package btid

import (
	"strings"

	"github.com/pkg/errors"
)

// ObjectType identifies the container a row lives in. The byte values are
// part of the token wire format and must never be renumbered.
type ObjectType byte

const (
	ObjectTypeUnknown        ObjectType = 0
	ObjectTypeExperiment     ObjectType = 1
	ObjectTypeProjectLogs    ObjectType = 2
	ObjectTypePlaygroundLogs ObjectType = 3
)

func (t ObjectType) String() string {
	switch t {
	case ObjectTypeExperiment:
		return "experiment"
	case ObjectTypeProjectLogs:
		return "project_logs"
	case ObjectTypePlaygroundLogs:
		return "playground_logs"
	}
	return "unknown"
}

func (t ObjectType) valid() bool {
	switch t {
	case ObjectTypeExperiment, ObjectTypeProjectLogs, ObjectTypePlaygroundLogs:
		return true
	}
	return false
}

// SpanIdentity is the tuple addressing one row/span. Exactly one of
// ObjectID and ComputeObjectMetadataArgs is set: the args stand in for the
// container id when it has not been resolved yet (eg addressing a project
// by name). RowID, SpanID, and RootSpanID travel together: all three set
// or all three empty.
type SpanIdentity struct {
	ObjectType                ObjectType
	ObjectID                  string
	ComputeObjectMetadataArgs map[string]any
	RowID                     string
	SpanID                    string
	RootSpanID                string

	// Propagated is the snapshot of context carried across process
	// boundaries along with the identity.
	Propagated map[string]any
}

// Validate checks the identity's structural invariants. Both Encode and
// Decode reject identities that fail it.
func (id SpanIdentity) Validate() error {
	if !id.ObjectType.valid() {
		return errors.Errorf("invalid object type %d", id.ObjectType)
	}
	hasID := id.ObjectID != ""
	hasArgs := len(id.ComputeObjectMetadataArgs) != 0
	if hasID && hasArgs {
		return errors.New("object id and compute-object-metadata args are mutually exclusive")
	}
	if !hasID && !hasArgs {
		return errors.New("one of object id or compute-object-metadata args is required")
	}
	set := 0
	for _, s := range []string{id.RowID, id.SpanID, id.RootSpanID} {
		if s != "" {
			set++
		}
	}
	if set != 0 && set != 3 {
		return errors.New("row id, span id, and root span id must be set together or not at all")
	}
	return nil
}

// ParentReference projects the identity down to the human-readable
// reference for its container, eg "experiment_id:<id>". It carries no
// row/span information and no codec state.
func (id SpanIdentity) ParentReference() string {
	if id.ObjectID != "" {
		switch id.ObjectType {
		case ObjectTypeExperiment:
			return RefPrefixExperimentID + id.ObjectID
		case ObjectTypeProjectLogs:
			return RefPrefixProjectID + id.ObjectID
		case ObjectTypePlaygroundLogs:
			return RefPrefixPlaygroundID + id.ObjectID
		}
	}
	if name, ok := id.ComputeObjectMetadataArgs["project_name"].(string); ok && name != "" {
		return RefPrefixProjectName + name
	}
	return ""
}

// Human-typed reference prefixes. Resolve accepts these as direct input;
// the encoder never produces them.
const (
	RefPrefixExperimentID = "experiment_id:"
	RefPrefixProjectID    = "project_id:"
	RefPrefixProjectName  = "project_name:"
	RefPrefixPlaygroundID = "playground_id:"
)

// Resolve accepts either an encoded token or one of the human-typed
// prefixed short forms and returns the identity it names.
func Resolve(ref string) (SpanIdentity, error) {
	if rest, ok := strings.CutPrefix(ref, RefPrefixExperimentID); ok {
		return containerOnly(ObjectTypeExperiment, rest, nil)
	}
	if rest, ok := strings.CutPrefix(ref, RefPrefixProjectID); ok {
		return containerOnly(ObjectTypeProjectLogs, rest, nil)
	}
	if rest, ok := strings.CutPrefix(ref, RefPrefixProjectName); ok {
		return containerOnly(ObjectTypeProjectLogs, "", map[string]any{"project_name": rest})
	}
	if rest, ok := strings.CutPrefix(ref, RefPrefixPlaygroundID); ok {
		return containerOnly(ObjectTypePlaygroundLogs, rest, nil)
	}
	return Decode(ref)
}

func containerOnly(objectType ObjectType, objectID string, args map[string]any) (SpanIdentity, error) {
	id := SpanIdentity{
		ObjectType:                objectType,
		ObjectID:                  objectID,
		ComputeObjectMetadataArgs: args,
	}
	if err := id.Validate(); err != nil {
		return SpanIdentity{}, err
	}
	return id, nil
}
