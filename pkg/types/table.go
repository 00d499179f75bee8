package types

import (
	"fmt"
	"time"
)

// Column is one named series of values aligned to a Table's index.
type Column struct {
	Name   string
	Values []float64
}

// Table is an ordered, timestamp-indexed set of columns.
// Every column has exactly len(Index) values.
type Table struct {
	Index   []time.Time
	Columns []Column
}

// NewTable creates an empty table over the given index.
func NewTable(index []time.Time) *Table {
	return &Table{Index: index}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Index)
}

// Width returns the number of columns.
func (t *Table) Width() int {
	return len(t.Columns)
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column by name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Row returns the values of row i in column order.
func (t *Table) Row(i int) []float64 {
	row := make([]float64, len(t.Columns))
	for j, c := range t.Columns {
		row[j] = c.Values[i]
	}
	return row
}

// AddColumn appends a column, or replaces the values of an existing column
// with the same name in place.
func (t *Table) AddColumn(name string, values []float64) error {
	if len(values) != len(t.Index) {
		return fmt.Errorf("%w: column %q has %d values, table has %d rows",
			ErrColumnLength, name, len(values), len(t.Index))
	}
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			t.Columns[i].Values = values
			return nil
		}
	}
	t.Columns = append(t.Columns, Column{Name: name, Values: values})
	return nil
}

// Drop returns a copy of the table without the named columns.
// Column value slices are shared with the receiver.
func (t *Table) Drop(names ...string) *Table {
	skip := make(map[string]bool, len(names))
	for _, n := range names {
		skip[n] = true
	}
	out := &Table{Index: t.Index}
	for _, c := range t.Columns {
		if !skip[c.Name] {
			out.Columns = append(out.Columns, c)
		}
	}
	return out
}

// Select returns a copy of the table holding only the named columns, in the
// order given.
func (t *Table) Select(names ...string) (*Table, error) {
	out := &Table{Index: t.Index}
	for _, n := range names {
		c, ok := t.Column(n)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, n)
		}
		out.Columns = append(out.Columns, c)
	}
	return out, nil
}
