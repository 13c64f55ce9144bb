package store

import (
	"testing"
	"time"
)

func TestParseSort(t *testing.T) {
	for _, s := range Sorts() {
		got, ok := ParseSort(string(s))
		if !ok || got != s {
			t.Fatalf("expected %q to parse, got %q ok=%v", s, got, ok)
		}
	}
	for _, raw := range []string{"", "votes_desc", "createdAt", "CREATEDAT_ASC"} {
		if _, ok := ParseSort(raw); ok {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

func TestSort_Order(t *testing.T) {
	cases := map[Sort]Order{
		SortCreatedAtAsc:  {Field: FieldCreatedAt},
		SortCreatedAtDesc: {Field: FieldCreatedAt, Desc: true},
		SortUpdatedAtAsc:  {Field: FieldUpdatedAt},
		SortUpdatedAtDesc: {Field: FieldUpdatedAt, Desc: true},
		SortTextAsc:       {Field: FieldText},
		SortTextDesc:      {Field: FieldText, Desc: true},
		Sort("bogus"):     DefaultOrder,
	}
	for s, want := range cases {
		if got := s.Order(); got != want {
			t.Fatalf("%q: expected %+v, got %+v", s, want, got)
		}
	}
}

func TestOrder_CompareTieBreaksOnID(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := Comment{ID: "a", CreatedAt: ts}
	b := Comment{ID: "b", CreatedAt: ts}

	asc := SortCreatedAtAsc.Order()
	if asc.Compare(a, b) >= 0 {
		t.Fatal("expected a before b ascending")
	}
	desc := SortCreatedAtDesc.Order()
	if desc.Compare(a, b) <= 0 {
		t.Fatal("expected b before a descending")
	}
	if !desc.After(a, b) {
		t.Fatal("expected a after b descending")
	}
	if desc.After(b, b) {
		t.Fatal("a row is never after itself")
	}
}

func TestDefaultOrder_IsNewestFirst(t *testing.T) {
	older, _ := NewID()
	newer, _ := NewID()
	if DefaultOrder.Compare(Comment{ID: newer}, Comment{ID: older}) >= 0 {
		t.Fatal("expected newer id first")
	}
}
