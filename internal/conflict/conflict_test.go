package conflict

import (
	"reflect"
	"strings"
	"testing"
)

func stamps(title, desc, col, pos int64) map[Field]int64 {
	return map[Field]int64{
		FieldTitle:       title,
		FieldDescription: desc,
		FieldColumn:      col,
		FieldPosition:    pos,
	}
}

func TestAnalyzeCleanApply(t *testing.T) {
	a := Analyze(stamps(1, 1, 1, 1), 1, map[Field]any{FieldTitle: "x"})
	if a.HasConflict() || a.FullyRejected() {
		t.Fatalf("expected clean apply, got %+v", a)
	}
	if !reflect.DeepEqual(a.MergedFields, []Field{FieldTitle}) {
		t.Errorf("merged fields: %v", a.MergedFields)
	}
	if a.MergedChanges[FieldTitle] != "x" {
		t.Errorf("merged changes: %v", a.MergedChanges)
	}
	if a.Reason() != "all changes applied" {
		t.Errorf("reason: %q", a.Reason())
	}
}

// A field whose stamp exceeds the base version was concurrently written and
// must be rejected; the rest of the change set still merges.
func TestAnalyzePartialMerge(t *testing.T) {
	// title was written at version 2; client is still on base 1.
	a := Analyze(stamps(2, 1, 1, 1), 1, map[Field]any{
		FieldTitle:       "B",
		FieldDescription: "B-desc",
	})
	if !a.HasConflict() || a.FullyRejected() {
		t.Fatalf("expected partial merge, got %+v", a)
	}
	if !reflect.DeepEqual(a.MergedFields, []Field{FieldDescription}) {
		t.Errorf("merged: %v", a.MergedFields)
	}
	if !reflect.DeepEqual(a.RejectedFields, []Field{FieldTitle}) {
		t.Errorf("rejected: %v", a.RejectedFields)
	}
	if _, ok := a.MergedChanges[FieldTitle]; ok {
		t.Error("rejected field value must be discarded")
	}
}

func TestAnalyzeFullRejection(t *testing.T) {
	a := Analyze(stamps(1, 1, 2, 2), 1, map[Field]any{
		FieldColumn:   "done",
		FieldPosition: 65536.0,
	})
	if !a.FullyRejected() {
		t.Fatalf("expected full rejection, got %+v", a)
	}
	if !reflect.DeepEqual(a.RejectedFields, []Field{FieldColumn, FieldPosition}) {
		t.Errorf("rejected: %v", a.RejectedFields)
	}
}

// A stamp equal to the base version is causally current and may be
// overwritten.
func TestAnalyzeStampEqualToBaseMerges(t *testing.T) {
	a := Analyze(stamps(3, 1, 1, 1), 3, map[Field]any{FieldTitle: "x"})
	if a.HasConflict() {
		t.Fatalf("stamp == baseVersion must merge, got %+v", a)
	}
}

func TestAnalyzeDeterministicFieldOrder(t *testing.T) {
	for i := 0; i < 20; i++ {
		a := Analyze(stamps(1, 1, 1, 1), 1, map[Field]any{
			FieldPosition:    1.0,
			FieldColumn:      "todo",
			FieldTitle:       "t",
			FieldDescription: "d",
		})
		want := []Field{FieldColumn, FieldDescription, FieldPosition, FieldTitle}
		if !reflect.DeepEqual(a.MergedFields, want) {
			t.Fatalf("order not deterministic: %v", a.MergedFields)
		}
	}
}

func TestReasonTemplates(t *testing.T) {
	partial := Analyze(stamps(2, 1, 1, 1), 1, map[Field]any{FieldTitle: "a", FieldDescription: "b"})
	full := Analyze(stamps(2, 2, 1, 1), 1, map[Field]any{FieldTitle: "a", FieldDescription: "b"})

	if partial.Reason() == full.Reason() {
		t.Error("partial and full rejection must use different templates")
	}
	if !strings.Contains(partial.Reason(), "description") || !strings.Contains(partial.Reason(), "title") {
		t.Errorf("partial reason must name both field sets: %q", partial.Reason())
	}
	if !strings.Contains(full.Reason(), "description, title") {
		t.Errorf("full rejection names fields in sorted order: %q", full.Reason())
	}
}

func TestFieldNames(t *testing.T) {
	if got := FieldNames(nil); got == nil || len(got) != 0 {
		t.Errorf("nil fields must yield empty (non-nil) slice, got %#v", got)
	}
	got := FieldNames([]Field{FieldTitle, FieldColumn})
	if !reflect.DeepEqual(got, []string{"title", "columnId"}) {
		t.Errorf("got %v", got)
	}
}
