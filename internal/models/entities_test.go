package models

import (
	"reflect"
	"testing"
)

// The typed entities and the table registry describe the same schema
// from two angles; this keeps them from drifting apart.
func TestEntitiesMatchRegistry(t *testing.T) {
	entities := []interface{ TableName() string }{
		Customer{}, Item{}, Entry{}, Sale{},
		Receipt{}, LedgerLine{}, Note{}, CompanyProfile{},
	}

	bookkeeping := map[string]bool{
		"id": true, "sync_status": true, "created_at": true, "updated_at": true,
	}

	for _, entity := range entities {
		table, ok := TableByPhysical(entity.TableName())
		if !ok {
			t.Errorf("%T: table %q not in registry", entity, entity.TableName())
			continue
		}

		tagged := map[string]bool{}
		typ := reflect.TypeOf(entity)
		for i := 0; i < typ.NumField(); i++ {
			tag := typ.Field(i).Tag.Get("db")
			if tag == "" || bookkeeping[tag] {
				continue
			}
			tagged[tag] = true
		}

		for _, c := range table.Columns {
			if !tagged[c.Name] {
				t.Errorf("%T: registry column %q has no struct field", entity, c.Name)
			}
		}
		if len(tagged) != len(table.Columns) {
			t.Errorf("%T: %d tagged fields vs %d registry columns", entity, len(tagged), len(table.Columns))
		}
	}
}
