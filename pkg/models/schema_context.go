package models

import (
	"sort"
	"strings"
	"time"
)

// ColumnInfo describes a single column of an introspected table.
type ColumnInfo struct {
	Name         string  `json:"name"`
	DataType     string  `json:"data_type"` // normalized type name ("integer", "varchar(255)", etc.)
	Nullable     bool    `json:"nullable"`
	Default      *string `json:"default,omitempty"`
	IsPrimaryKey bool    `json:"is_primary_key"`
}

// ForeignKeyRef describes one foreign key constraint on a table.
// Column order matches the constraint declaration order.
type ForeignKeyRef struct {
	ConstrainedColumns []string `json:"constrained_columns"`
	ReferredTable      string   `json:"referred_table"`
	ReferredColumns    []string `json:"referred_columns"`
}

// IndexInfo describes one index on a table. Columns are in index key order;
// expression index entries are omitted.
type IndexInfo struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"is_unique"`
}

// TableInfo is the introspected shape of one table.
type TableInfo struct {
	Name        string                `json:"name"`
	Columns     map[string]ColumnInfo `json:"columns"`
	PrimaryKeys []string              `json:"primary_keys"`
	ForeignKeys []ForeignKeyRef       `json:"foreign_keys"`
	Indexes     []IndexInfo           `json:"indexes,omitempty"`
	RowCount    int64                 `json:"row_count"` // planner estimate, -1 when unknown
}

// Column looks up a column by name, case-insensitively.
func (t *TableInfo) Column(name string) (ColumnInfo, bool) {
	if col, ok := t.Columns[name]; ok {
		return col, true
	}
	lower := strings.ToLower(name)
	for key, col := range t.Columns {
		if strings.ToLower(key) == lower {
			return col, true
		}
	}
	return ColumnInfo{}, false
}

// ColumnNames returns the table's column names in sorted order.
func (t *TableInfo) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for name := range t.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IndexedColumns returns the lowercased names of every column that appears
// in some index. Primary key columns are included even when the backing
// index was not introspected.
func (t *TableInfo) IndexedColumns() map[string]bool {
	indexed := make(map[string]bool, len(t.PrimaryKeys))
	for _, name := range t.PrimaryKeys {
		indexed[strings.ToLower(name)] = true
	}
	for _, idx := range t.Indexes {
		for _, name := range idx.Columns {
			indexed[strings.ToLower(name)] = true
		}
	}
	return indexed
}

// Relationship kinds as seen from the table the edge is attached to.
const (
	RelationshipReferences   = "references"    // this table's FK points at Edge.Table
	RelationshipReferencedBy = "referenced_by" // Edge.Table holds an FK pointing here
)

// RelationshipEdge is one direction of a foreign key relationship.
type RelationshipEdge struct {
	Kind            string   `json:"kind"` // "references" or "referenced_by"
	Table           string   `json:"table"`
	Columns         []string `json:"columns"`
	ReferredColumns []string `json:"referred_columns"`
}

// TableStatistics holds planner and storage statistics for one table.
// DistinctValues carries the planner's per-column distinct estimates; columns
// the planner has no estimate for are absent.
type TableStatistics struct {
	RowCount       int64            `json:"row_count"`
	TotalBytes     int64            `json:"total_bytes"`
	IndexBytes     int64            `json:"index_bytes"`
	SeqScans       int64            `json:"seq_scans"`
	IndexScans     int64            `json:"index_scans"`
	DeadRows       int64            `json:"dead_rows"`
	DistinctValues map[string]int64 `json:"distinct_values,omitempty"`
}

// SchemaContext is a point-in-time snapshot of the target database used for
// SQL generation and validation. A context is built whole; consumers never
// see a partially populated snapshot.
type SchemaContext struct {
	Tables        map[string]TableInfo          `json:"tables"`
	Relationships map[string][]RelationshipEdge `json:"relationships"`
	SampleData    map[string][]map[string]any   `json:"sample_data"`
	Statistics    map[string]TableStatistics    `json:"statistics"`
	BuiltAt       time.Time                     `json:"built_at"`
}

// LookupTable resolves a table by name, case-insensitively. The returned
// name is the canonical (as-introspected) spelling.
func (c *SchemaContext) LookupTable(name string) (TableInfo, bool) {
	if info, ok := c.Tables[name]; ok {
		return info, true
	}
	lower := strings.ToLower(name)
	for key, info := range c.Tables {
		if strings.ToLower(key) == lower {
			return info, true
		}
	}
	return TableInfo{}, false
}

// TableNames returns all table names in the snapshot, sorted.
func (c *SchemaContext) TableNames() []string {
	names := make([]string, 0, len(c.Tables))
	for name := range c.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
