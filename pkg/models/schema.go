package models

import "time"

// SchemaColumn describes one column in a profiled table.
type SchemaColumn struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Nullable      bool   `json:"nullable"`
	Default       string `json:"default,omitempty"`
	PrimaryKey    bool   `json:"primary_key"`
	Autoincrement bool   `json:"autoincrement,omitempty"`
}

// SchemaTable is one profiled table: columns, row count and a small sample.
type SchemaTable struct {
	Name       string           `json:"name"`
	Columns    []SchemaColumn   `json:"columns"`
	RowCount   int64            `json:"row_count"`
	SampleRows []map[string]any `json:"sample_rows,omitempty"`
}

// SchemaCard is the profiled subset of the catalog used to ground prompt
// construction. Table order follows the selection order.
type SchemaCard struct {
	Tables      []SchemaTable `json:"tables"`
	GeneratedAt time.Time     `json:"generated_at"`
	Error       string        `json:"error,omitempty"`
}

// Table returns the named table entry, if profiled.
func (c *SchemaCard) Table(name string) (SchemaTable, bool) {
	for _, t := range c.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return SchemaTable{}, false
}
