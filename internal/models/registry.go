// Package models provides data model definitions for the BillSync core.
package models

import "fmt"

// ColumnKind describes the value type of a business column, used by the
// facade for input coercion and by the store for scanning.
type ColumnKind string

const (
	KindText ColumnKind = "text"
	KindInt  ColumnKind = "int"
	KindReal ColumnKind = "real"
	KindBool ColumnKind = "bool"
	KindDate ColumnKind = "date" // RFC 3339 string
)

// Column describes one business column of a syncable table.
type Column struct {
	Name string
	Kind ColumnKind
}

// Table describes one syncable entity table.
//
// Every row additionally carries the bookkeeping columns id,
// sync_status, created_at and updated_at, which are owned by the sync
// subsystem and are not listed here.
type Table struct {
	// Logical is the entity name used by callers of the facade and the
	// sync engine.
	Logical string

	// Physical is the storage table name, identical to the remote
	// backend's table name. The mapping is explicit; no name inference
	// happens at call sites.
	Physical string

	Columns []Column

	// DownloadWindowDays bounds the download fetch for high-volume
	// tables to a rolling window on created_at. Zero means the table is
	// small and fetched wholly.
	DownloadWindowDays int
}

// Dependency records that Table.Column holds foreign keys into RefTable.
// The identifier remapper walks this list when a server-assigned id
// replaces a locally-minted one.
type Dependency struct {
	Table    string
	Column   string
	RefTable string
}

// SequenceRule describes a human-facing sequence column whose values
// must stay unique per scope across all devices.
type SequenceRule struct {
	Table  string
	Column string
	// ScopeColumn narrows uniqueness to rows sharing this column's
	// value (e.g. loading location). Empty means globally scoped.
	ScopeColumn string
}

// Tables is the registry of all syncable entity tables.
var Tables = []Table{
	{
		Logical:  "customer",
		Physical: "customers",
		Columns: []Column{
			{Name: "name", Kind: KindText},
			{Name: "phone", Kind: KindText},
			{Name: "address", Kind: KindText},
			{Name: "gstin", Kind: KindText},
			{Name: "opening_balance", Kind: KindReal},
		},
	},
	{
		Logical:  "item",
		Physical: "items",
		Columns: []Column{
			{Name: "name", Kind: KindText},
			{Name: "unit", Kind: KindText},
			{Name: "rate", Kind: KindReal},
			{Name: "hsn_code", Kind: KindText},
		},
	},
	{
		Logical:  "entry",
		Physical: "entries",
		Columns: []Column{
			{Name: "serial_no", Kind: KindText},
			{Name: "loading_location", Kind: KindText},
			{Name: "item_id", Kind: KindText},
			{Name: "customer_id", Kind: KindText},
			{Name: "quantity", Kind: KindReal},
			{Name: "rate", Kind: KindReal},
			{Name: "entry_date", Kind: KindDate},
			{Name: "vehicle_no", Kind: KindText},
		},
		DownloadWindowDays: 90,
	},
	{
		Logical:  "sale",
		Physical: "sales",
		Columns: []Column{
			{Name: "bill_no", Kind: KindText},
			{Name: "loading_location", Kind: KindText},
			{Name: "entry_id", Kind: KindText},
			{Name: "customer_id", Kind: KindText},
			{Name: "amount", Kind: KindReal},
			{Name: "bill_date", Kind: KindDate},
			{Name: "is_paid", Kind: KindBool},
		},
		DownloadWindowDays: 90,
	},
	{
		Logical:  "receipt",
		Physical: "receipts",
		Columns: []Column{
			{Name: "receipt_no", Kind: KindText},
			{Name: "sale_id", Kind: KindText},
			{Name: "customer_id", Kind: KindText},
			{Name: "amount", Kind: KindReal},
			{Name: "receipt_date", Kind: KindDate},
			{Name: "mode", Kind: KindText},
		},
		DownloadWindowDays: 90,
	},
	{
		Logical:  "ledger_line",
		Physical: "ledger_lines",
		Columns: []Column{
			{Name: "customer_id", Kind: KindText},
			{Name: "entry_type", Kind: KindText},
			{Name: "amount", Kind: KindReal},
			{Name: "narration", Kind: KindText},
			{Name: "line_date", Kind: KindDate},
		},
		DownloadWindowDays: 90,
	},
	{
		Logical:  "note",
		Physical: "notes",
		Columns: []Column{
			{Name: "customer_id", Kind: KindText},
			{Name: "kind", Kind: KindText},
			{Name: "amount", Kind: KindReal},
			{Name: "reason", Kind: KindText},
			{Name: "note_date", Kind: KindDate},
		},
		DownloadWindowDays: 90,
	},
	{
		Logical:  "company_profile",
		Physical: "company_profile",
		Columns: []Column{
			{Name: "name", Kind: KindText},
			{Name: "address", Kind: KindText},
			{Name: "gstin", Kind: KindText},
			{Name: "phone", Kind: KindText},
			{Name: "fy_start", Kind: KindDate},
		},
	},
}

// Dependencies is the static foreign-key registry: which tables
// reference which other tables by id.
var Dependencies = []Dependency{
	{Table: "entries", Column: "item_id", RefTable: "items"},
	{Table: "entries", Column: "customer_id", RefTable: "customers"},
	{Table: "sales", Column: "entry_id", RefTable: "entries"},
	{Table: "sales", Column: "customer_id", RefTable: "customers"},
	{Table: "receipts", Column: "sale_id", RefTable: "sales"},
	{Table: "receipts", Column: "customer_id", RefTable: "customers"},
	{Table: "ledger_lines", Column: "customer_id", RefTable: "customers"},
	{Table: "notes", Column: "customer_id", RefTable: "customers"},
}

// SequenceRules lists the sequence-numbered columns subject to
// collision repair during upload.
var SequenceRules = []SequenceRule{
	{Table: "entries", Column: "serial_no", ScopeColumn: "loading_location"},
	{Table: "sales", Column: "bill_no", ScopeColumn: "loading_location"},
	{Table: "receipts", Column: "receipt_no"},
}

// TableByLogical returns the registry entry for a logical entity name.
func TableByLogical(logical string) (Table, bool) {
	for _, t := range Tables {
		if t.Logical == logical {
			return t, true
		}
	}
	return Table{}, false
}

// TableByPhysical returns the registry entry for a physical table name.
func TableByPhysical(physical string) (Table, bool) {
	for _, t := range Tables {
		if t.Physical == physical {
			return t, true
		}
	}
	return Table{}, false
}

// HasColumn reports whether the table declares the business column.
func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// ColumnKindOf returns the declared kind of a business column.
func (t Table) ColumnKindOf(name string) (ColumnKind, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c.Kind, true
		}
	}
	return "", false
}

// ForeignKeyColumns returns the columns of table that hold ids of other
// tables, in registry order.
func ForeignKeyColumns(table string) []string {
	var cols []string
	for _, d := range Dependencies {
		if d.Table == table {
			cols = append(cols, d.Column)
		}
	}
	return cols
}

// DependentsOf returns the (table, column) pairs that reference the
// given table by id.
func DependentsOf(refTable string) []Dependency {
	var deps []Dependency
	for _, d := range Dependencies {
		if d.RefTable == refTable {
			deps = append(deps, d)
		}
	}
	return deps
}

// SequenceRuleFor returns the sequence rule for a physical table, if any.
func SequenceRuleFor(table string) (SequenceRule, bool) {
	for _, r := range SequenceRules {
		if r.Table == table {
			return r, true
		}
	}
	return SequenceRule{}, false
}

// ValidateRegistry checks the registry for internal consistency. It is
// called once at startup; a failure here is a programming error.
func ValidateRegistry() error {
	logical := make(map[string]bool)
	physical := make(map[string]bool)

	for _, t := range Tables {
		if t.Logical == "" || t.Physical == "" {
			return fmt.Errorf("registry: table with empty name: %+v", t)
		}
		if logical[t.Logical] {
			return fmt.Errorf("registry: duplicate logical name %q", t.Logical)
		}
		if physical[t.Physical] {
			return fmt.Errorf("registry: duplicate physical name %q", t.Physical)
		}
		logical[t.Logical] = true
		physical[t.Physical] = true

		cols := make(map[string]bool)
		for _, c := range t.Columns {
			if cols[c.Name] {
				return fmt.Errorf("registry: table %q: duplicate column %q", t.Physical, c.Name)
			}
			cols[c.Name] = true
		}
	}

	for _, d := range Dependencies {
		t, ok := TableByPhysical(d.Table)
		if !ok {
			return fmt.Errorf("registry: dependency on unknown table %q", d.Table)
		}
		if !t.HasColumn(d.Column) {
			return fmt.Errorf("registry: table %q has no column %q", d.Table, d.Column)
		}
		if _, ok := TableByPhysical(d.RefTable); !ok {
			return fmt.Errorf("registry: dependency references unknown table %q", d.RefTable)
		}
	}

	for _, r := range SequenceRules {
		t, ok := TableByPhysical(r.Table)
		if !ok {
			return fmt.Errorf("registry: sequence rule on unknown table %q", r.Table)
		}
		if !t.HasColumn(r.Column) {
			return fmt.Errorf("registry: table %q has no sequence column %q", r.Table, r.Column)
		}
		if r.ScopeColumn != "" && !t.HasColumn(r.ScopeColumn) {
			return fmt.Errorf("registry: table %q has no scope column %q", r.Table, r.ScopeColumn)
		}
	}

	return nil
}
