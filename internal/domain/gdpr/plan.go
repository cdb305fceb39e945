package gdpr

import (
	"fmt"
	"sort"
)

// Table is one purge step. Filter is a predicate over $1, the user id.
// When Nullify is set the step clears that column instead of deleting rows.
type Table struct {
	Name      string
	Table     string
	Filter    string
	Nullify   string
	DependsOn []string
}

func (t Table) sql() string {
	name := t.Table
	if name == "" {
		name = t.Name
	}
	if t.Nullify != "" {
		return fmt.Sprintf("UPDATE %s SET %s = NULL WHERE %s", name, t.Nullify, t.Filter)
	}
	return fmt.Sprintf("DELETE FROM %s WHERE %s", name, t.Filter)
}

// Statement is a planned step.
type Statement struct {
	Name string
	SQL  string
}

// Planner holds a validated dependency map in execution order.
type Planner struct {
	order []Statement
}

// NewPlanner orders tables so every table runs after the tables it depends
// on. Ties are broken by name. Unknown dependencies and cycles are errors.
func NewPlanner(tables []Table) (*Planner, error) {
	byName := make(map[string]Table, len(tables))
	for _, t := range tables {
		if t.Name == "" || t.Filter == "" {
			return nil, fmt.Errorf("gdpr table %q needs a name and filter", t.Name)
		}
		if _, dup := byName[t.Name]; dup {
			return nil, fmt.Errorf("duplicate gdpr table %s", t.Name)
		}
		byName[t.Name] = t
	}

	indegree := make(map[string]int, len(tables))
	dependents := make(map[string][]string)
	for _, t := range tables {
		indegree[t.Name] = len(t.DependsOn)
		for _, dep := range t.DependsOn {
			if _, ok := byName[dep]; !ok {
				return nil, fmt.Errorf("gdpr table %s depends on unknown table %s", t.Name, dep)
			}
			dependents[dep] = append(dependents[dep], t.Name)
		}
	}

	var ready []string
	for name, n := range indegree {
		if n == 0 {
			ready = append(ready, name)
		}
	}
	order := make([]Statement, 0, len(tables))
	for len(ready) > 0 {
		sort.Strings(ready)
		name := ready[0]
		ready = ready[1:]
		order = append(order, Statement{Name: name, SQL: byName[name].sql()})
		for _, d := range dependents[name] {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}
	if len(order) != len(tables) {
		var stuck []string
		for name, n := range indegree {
			if n > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("gdpr dependency cycle between %v", stuck)
	}
	return &Planner{order: order}, nil
}

// Plan returns the statements in execution order. Every statement takes the
// user id as its only argument.
func (p *Planner) Plan() []Statement {
	out := make([]Statement, len(p.order))
	copy(out, p.order)
	return out
}

const (
	walletsOf  = "SELECT id FROM wallet WHERE member_id = $1"
	requestsOf = "SELECT id FROM reimbursement_request WHERE wallet_id IN (" + walletsOf + ")"
)

// DefaultTables covers every table holding member data. A table lists
// the tables whose rows reference it.
func DefaultTables() []Table {
	return []Table{
		{Name: "message_read", Filter: "user_id = $1 OR message_id IN (SELECT id FROM message WHERE user_id = $1)"},
		{Name: "message", Filter: "user_id = $1", DependsOn: []string{"message_read"}},
		{Name: "channel_participant", Filter: "user_id = $1"},

		{Name: "appointment_cancelled_by", Table: "appointment", Filter: "cancelled_by_user_id = $1",
			Nullify: "cancelled_by_user_id"},
		{Name: "appointment", Filter: "member_id = $1 OR practitioner_id = $1",
			DependsOn: []string{"appointment_cancelled_by"}},
		{Name: "availability", Filter: "practitioner_id = $1"},
		{Name: "product", Filter: "practitioner_id = $1", DependsOn: []string{"appointment"}},
		{Name: "practitioner", Filter: "id = $1", DependsOn: []string{"appointment", "availability", "product"}},

		{Name: "reimbursement_request_source", Filter: "reimbursement_request_id IN (" + requestsOf + ")"},
		{Name: "reimbursement_request", Filter: "wallet_id IN (" + walletsOf + ")",
			DependsOn: []string{"reimbursement_request_source"}},
		{Name: "debit_card", Filter: "wallet_id IN (" + walletsOf + ")"},

		{Name: "accumulation_mapping", Filter: "treatment_procedure_id IN (SELECT id FROM treatment_procedure WHERE member_id = $1)"},
		{Name: "treatment_procedure", Filter: "member_id = $1", DependsOn: []string{"accumulation_mapping"}},
		{Name: "member_health_plan", Filter: "member_id = $1"},
		{Name: "wallet", Filter: "member_id = $1",
			DependsOn: []string{"debit_card", "member_health_plan", "reimbursement_request"}},

		{Name: "eligibility_verification", Filter: "member_id = $1"},
		{Name: "member", Filter: "id = $1", DependsOn: []string{
			"appointment", "channel_participant", "eligibility_verification", "message", "message_read",
			"practitioner", "treatment_procedure", "wallet",
		}},
	}
}
