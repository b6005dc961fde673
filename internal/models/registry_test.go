package models

import "testing"

func TestValidateRegistry(t *testing.T) {
	if err := ValidateRegistry(); err != nil {
		t.Fatalf("shipped registry must be consistent: %v", err)
	}
}

func TestTableLookups(t *testing.T) {
	table, ok := TableByLogical("sale")
	if !ok || table.Physical != "sales" {
		t.Errorf("expected sale -> sales, got %+v", table)
	}

	table, ok = TableByPhysical("entries")
	if !ok || table.Logical != "entry" {
		t.Errorf("expected entries -> entry, got %+v", table)
	}

	if _, ok := TableByLogical("invoice"); ok {
		t.Error("unknown logical name must not resolve")
	}
}

func TestColumnIntrospection(t *testing.T) {
	table, _ := TableByPhysical("sales")

	if !table.HasColumn("bill_no") {
		t.Error("expected bill_no on sales")
	}
	if table.HasColumn("serial_no") {
		t.Error("serial_no belongs to entries, not sales")
	}

	kind, ok := table.ColumnKindOf("is_paid")
	if !ok || kind != KindBool {
		t.Errorf("expected is_paid bool, got %v", kind)
	}
}

func TestDependencyRegistry(t *testing.T) {
	// entries, sales, receipts, ledger_lines, notes all carry customer_id.
	deps := DependentsOf("customers")
	if len(deps) != 5 {
		t.Fatalf("expected 5 tables referencing customers, got %d", len(deps))
	}
	for _, d := range deps {
		if d.Column != "customer_id" {
			t.Errorf("unexpected dependency column %q", d.Column)
		}
	}

	cols := ForeignKeyColumns("receipts")
	if len(cols) != 2 {
		t.Errorf("expected sale_id and customer_id on receipts, got %v", cols)
	}
}

func TestSequenceRuleLookup(t *testing.T) {
	rule, ok := SequenceRuleFor("entries")
	if !ok || rule.Column != "serial_no" || rule.ScopeColumn != "loading_location" {
		t.Errorf("unexpected rule %+v", rule)
	}

	rule, ok = SequenceRuleFor("receipts")
	if !ok || rule.ScopeColumn != "" {
		t.Errorf("receipt numbers are globally scoped, got %+v", rule)
	}

	if _, ok := SequenceRuleFor("customers"); ok {
		t.Error("customers has no sequence rule")
	}
}

func TestRowHelpers(t *testing.T) {
	row := Row{"id": "abc", "name": "x"}
	if row.ID() != "abc" {
		t.Errorf("unexpected id %q", row.ID())
	}
	if (Row{}).ID() != "" {
		t.Error("missing id must be empty")
	}

	clone := row.Clone()
	clone["name"] = "y"
	if row["name"] != "x" {
		t.Error("Clone must not share storage")
	}
}
