package job

import "slices"

// Role is the caller's business role. Authentication happens elsewhere;
// roles arrive as plain strings with every request.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleAdmin      Role = "admin"
	RolePM         Role = "pm"
	RoleSalesRep   Role = "sales_rep"
	RoleContractor Role = "contractor"
)

// Edge is a directed pipeline transition.
type Edge struct {
	From Status
	To   Status
}

// Rule is one row of the permission table.
type Rule struct {
	Edge
	Roles    []Role
	Rollback bool
}

var (
	office      = []Role{RoleOwner, RoleAdmin, RolePM}
	sales       = []Role{RoleOwner, RoleAdmin, RolePM, RoleSalesRep}
	field       = []Role{RoleOwner, RoleAdmin, RolePM, RoleContractor}
	leadership  = []Role{RoleOwner, RoleAdmin}
	permissions = []Rule{
		{Edge: Edge{StatusLead, StatusSold}, Roles: sales},
		{Edge: Edge{StatusSold, StatusFrontEndHold}, Roles: sales},
		{Edge: Edge{StatusSold, StatusProduction}, Roles: office},
		{Edge: Edge{StatusFrontEndHold, StatusProduction}, Roles: office},
		{Edge: Edge{StatusProduction, StatusScheduled}, Roles: office},
		{Edge: Edge{StatusScheduled, StatusStarted}, Roles: field},
		{Edge: Edge{StatusStarted, StatusComplete}, Roles: field},
		{Edge: Edge{StatusComplete, StatusPaidInFull}, Roles: office},

		{Edge: Edge{StatusSold, StatusLead}, Roles: office, Rollback: true},
		{Edge: Edge{StatusFrontEndHold, StatusSold}, Roles: office, Rollback: true},
		{Edge: Edge{StatusProduction, StatusFrontEndHold}, Roles: office, Rollback: true},
		{Edge: Edge{StatusProduction, StatusSold}, Roles: office, Rollback: true},
		{Edge: Edge{StatusScheduled, StatusProduction}, Roles: office, Rollback: true},
		{Edge: Edge{StatusStarted, StatusScheduled}, Roles: office, Rollback: true},
		{Edge: Edge{StatusComplete, StatusStarted}, Roles: leadership, Rollback: true},
		{Edge: Edge{StatusPaidInFull, StatusComplete}, Roles: leadership, Rollback: true},
	}
	ruleIndex = indexRules(permissions)
)

func indexRules(rules []Rule) map[Edge]Rule {
	idx := make(map[Edge]Rule, len(rules))
	for _, r := range rules {
		idx[r.Edge] = r
	}
	return idx
}

// Rules returns a copy of the permission table.
func Rules() []Rule {
	out := make([]Rule, len(permissions))
	for i, r := range permissions {
		r.Roles = slices.Clone(r.Roles)
		out[i] = r
	}
	return out
}

// Lookup returns the rule for an edge, if the edge is legal.
func Lookup(from, to Status) (Rule, bool) {
	r, ok := ruleIndex[Edge{From: from, To: to}]
	return r, ok
}

// IsLegal reports whether the pipeline has an edge from -> to.
func IsLegal(from, to Status) bool {
	_, ok := ruleIndex[Edge{From: from, To: to}]
	return ok
}

// Permits reports whether role may take the edge from -> to.
// Illegal edges are never permitted.
func Permits(from, to Status, role Role) bool {
	r, ok := ruleIndex[Edge{From: from, To: to}]
	if !ok {
		return false
	}
	return slices.Contains(r.Roles, role)
}

// Targets lists the stages role may move a job to from the given stage,
// in pipeline order.
func Targets(from Status, role Role) []Status {
	var out []Status
	for _, s := range Pipeline {
		if Permits(from, s, role) {
			out = append(out, s)
		}
	}
	return out
}
