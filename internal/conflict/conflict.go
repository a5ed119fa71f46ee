// Package conflict implements field-level last-write-wins resolution for
// concurrent task mutations. Each task field carries a version stamp: the
// global row version that last wrote it. A client mutation carries the global
// version it was based on; a field may be overwritten only if no committed
// write has touched it since that base version.
package conflict

import (
	"fmt"
	"sort"
	"strings"
)

// Field names a logical task field subject to conflict resolution.
type Field string

const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldColumn      Field = "columnId"
	FieldPosition    Field = "position"
)

// Analysis is the outcome of resolving one mutation against the current row.
type Analysis struct {
	// MergedChanges holds the proposed values that won and should be written.
	MergedChanges map[Field]any
	// MergedFields lists the winning fields in deterministic order.
	MergedFields []Field
	// RejectedFields lists fields discarded because a concurrent writer got
	// there first, in deterministic order.
	RejectedFields []Field
}

// HasConflict reports whether any proposed field was rejected.
func (a Analysis) HasConflict() bool {
	return len(a.RejectedFields) > 0
}

// FullyRejected reports whether every proposed field was rejected.
func (a Analysis) FullyRejected() bool {
	return len(a.MergedFields) == 0 && len(a.RejectedFields) > 0
}

// Analyze resolves a proposed change set against the current per-field stamps.
// stamps maps each field to the global version that last wrote it; baseVersion
// is the global version the client observed when it built the mutation. A
// field merges when its stamp is at most baseVersion, otherwise it is
// rejected and the server-resident value stands.
func Analyze(stamps map[Field]int64, baseVersion int64, changes map[Field]any) Analysis {
	a := Analysis{MergedChanges: make(map[Field]any, len(changes))}

	fields := make([]Field, 0, len(changes))
	for f := range changes {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })

	for _, f := range fields {
		if stamps[f] <= baseVersion {
			a.MergedChanges[f] = changes[f]
			a.MergedFields = append(a.MergedFields, f)
		} else {
			a.RejectedFields = append(a.RejectedFields, f)
		}
	}
	return a
}

// Reason returns a deterministic human-readable explanation of the analysis,
// one of three templates: clean apply, partial merge, or full rejection.
func (a Analysis) Reason() string {
	switch {
	case !a.HasConflict():
		return "all changes applied"
	case a.FullyRejected():
		return fmt.Sprintf("changes to %s were rejected: newer edits already touched those fields", joinFields(a.RejectedFields))
	default:
		return fmt.Sprintf("changes to %s were merged; changes to %s were rejected by newer edits", joinFields(a.MergedFields), joinFields(a.RejectedFields))
	}
}

// FieldNames converts a field list to plain strings for wire payloads.
func FieldNames(fields []Field) []string {
	if len(fields) == 0 {
		return []string{}
	}
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = string(f)
	}
	return out
}

func joinFields(fields []Field) string {
	return strings.Join(FieldNames(fields), ", ")
}
