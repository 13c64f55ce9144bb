package store

import (
	"strings"
	"time"
)

// Sort is a listing order selector as accepted on the wire.
type Sort string

const (
	SortCreatedAtAsc  Sort = "createdAt_asc"
	SortCreatedAtDesc Sort = "createdAt_desc"
	SortUpdatedAtAsc  Sort = "updatedAt_asc"
	SortUpdatedAtDesc Sort = "updatedAt_desc"
	SortTextAsc       Sort = "text_asc"
	SortTextDesc      Sort = "text_desc"
)

// Field is a sortable comment attribute.
type Field string

const (
	FieldID        Field = "id"
	FieldCreatedAt Field = "createdAt"
	FieldUpdatedAt Field = "updatedAt"
	FieldText      Field = "text"
)

// Order is a concrete field and direction. The id is always the tie-break,
// in the same direction as Field.
type Order struct {
	Field Field
	Desc  bool
}

// DefaultOrder is insertion recency: most recent id first.
var DefaultOrder = Order{Field: FieldID, Desc: true}

var sortOrders = map[Sort]Order{
	SortCreatedAtAsc:  {Field: FieldCreatedAt},
	SortCreatedAtDesc: {Field: FieldCreatedAt, Desc: true},
	SortUpdatedAtAsc:  {Field: FieldUpdatedAt},
	SortUpdatedAtDesc: {Field: FieldUpdatedAt, Desc: true},
	SortTextAsc:       {Field: FieldText},
	SortTextDesc:      {Field: FieldText, Desc: true},
}

// Sorts lists every recognised selector.
func Sorts() []Sort {
	return []Sort{
		SortCreatedAtAsc, SortCreatedAtDesc,
		SortUpdatedAtAsc, SortUpdatedAtDesc,
		SortTextAsc, SortTextDesc,
	}
}

// ParseSort reports whether raw names a recognised selector.
func ParseSort(raw string) (Sort, bool) {
	s := Sort(strings.TrimSpace(raw))
	_, ok := sortOrders[s]
	return s, ok
}

// Order maps the selector to its concrete order; unknown selectors get
// DefaultOrder.
func (s Sort) Order() Order {
	if o, ok := sortOrders[s]; ok {
		return o
	}
	return DefaultOrder
}

// Compare orders a before b when negative.
func (o Order) Compare(a, b Comment) int {
	c := 0
	switch o.Field {
	case FieldCreatedAt:
		c = compareTime(a.CreatedAt, b.CreatedAt)
	case FieldUpdatedAt:
		c = compareTime(a.UpdatedAt, b.UpdatedAt)
	case FieldText:
		c = strings.Compare(a.Text, b.Text)
	}
	if c == 0 {
		c = strings.Compare(a.ID, b.ID)
	}
	if o.Desc {
		return -c
	}
	return c
}

// After reports whether c sorts strictly after boundary.
func (o Order) After(c, boundary Comment) bool {
	return o.Compare(boundary, c) < 0
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}
