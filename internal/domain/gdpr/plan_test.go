package gdpr

import (
	"strings"
	"testing"
)

func position(stmts []Statement) map[string]int {
	pos := make(map[string]int, len(stmts))
	for i, s := range stmts {
		pos[s.Name] = i
	}
	return pos
}

func TestDefaultTables_Order(t *testing.T) {
	p, err := NewPlanner(DefaultTables())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stmts := p.Plan()
	if len(stmts) != len(DefaultTables()) {
		t.Fatalf("expected %d statements, got %d", len(DefaultTables()), len(stmts))
	}
	pos := position(stmts)
	for _, tbl := range DefaultTables() {
		for _, dep := range tbl.DependsOn {
			if pos[dep] > pos[tbl.Name] {
				t.Errorf("%s must run before %s", dep, tbl.Name)
			}
		}
	}
	if stmts[len(stmts)-1].Name != "member" {
		t.Errorf("expected member last, got %s", stmts[len(stmts)-1].Name)
	}
}

func TestPlanner_DeterministicByName(t *testing.T) {
	tables := []Table{
		{Name: "zeta", Filter: "user_id = $1"},
		{Name: "alpha", Filter: "user_id = $1"},
		{Name: "root", Filter: "id = $1", DependsOn: []string{"zeta", "alpha"}},
		{Name: "mid", Filter: "user_id = $1"},
	}
	for i := 0; i < 5; i++ {
		p, err := NewPlanner(tables)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var got []string
		for _, s := range p.Plan() {
			got = append(got, s.Name)
		}
		if strings.Join(got, ",") != "alpha,mid,zeta,root" {
			t.Errorf("expected alpha,mid,zeta,root, got %v", got)
		}
	}
}

func TestPlanner_SQL(t *testing.T) {
	p, err := NewPlanner([]Table{
		{Name: "a_clear", Table: "appointment", Filter: "cancelled_by_user_id = $1", Nullify: "cancelled_by_user_id"},
		{Name: "member", Filter: "id = $1", DependsOn: []string{"a_clear"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stmts := p.Plan()
	if stmts[0].SQL != "UPDATE appointment SET cancelled_by_user_id = NULL WHERE cancelled_by_user_id = $1" {
		t.Errorf("unexpected sql %q", stmts[0].SQL)
	}
	if stmts[1].SQL != "DELETE FROM member WHERE id = $1" {
		t.Errorf("unexpected sql %q", stmts[1].SQL)
	}
}

func TestNewPlanner_Errors(t *testing.T) {
	tests := map[string][]Table{
		"cycle": {
			{Name: "a", Filter: "x = $1", DependsOn: []string{"b"}},
			{Name: "b", Filter: "x = $1", DependsOn: []string{"a"}},
		},
		"unknown": {{Name: "a", Filter: "x = $1", DependsOn: []string{"missing"}}},
		"dup":     {{Name: "a", Filter: "x = $1"}, {Name: "a", Filter: "x = $1"}},
		"filter":  {{Name: "a"}},
	}
	for name, tables := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := NewPlanner(tables); err == nil {
				t.Error("expected error")
			}
		})
	}
}
