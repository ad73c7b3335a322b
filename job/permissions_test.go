package job

import (
	"slices"
	"testing"
)

var allRoles = []Role{RoleOwner, RoleAdmin, RolePM, RoleSalesRep, RoleContractor, "viewer"}

func TestIllegalEdgesNeverPermitted(t *testing.T) {
	for _, from := range Pipeline {
		for _, to := range Pipeline {
			if IsLegal(from, to) {
				continue
			}
			for _, role := range allRoles {
				if Permits(from, to, role) {
					t.Errorf("Permits(%s, %s, %s) = true for an illegal edge", from, to, role)
				}
			}
		}
	}
}

func TestLegalEdges(t *testing.T) {
	tests := []struct {
		from, to Status
		legal    bool
	}{
		{StatusLead, StatusSold, true},
		{StatusSold, StatusFrontEndHold, true},
		{StatusSold, StatusProduction, true},
		{StatusFrontEndHold, StatusProduction, true},
		{StatusProduction, StatusScheduled, true},
		{StatusScheduled, StatusStarted, true},
		{StatusStarted, StatusComplete, true},
		{StatusComplete, StatusPaidInFull, true},
		{StatusPaidInFull, StatusComplete, true},
		{StatusProduction, StatusSold, true},
		{StatusLead, StatusProduction, false},
		{StatusLead, StatusLead, false},
		{StatusPaidInFull, StatusLead, false},
		{StatusScheduled, StatusComplete, false},
		{StatusLead, "archived", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := IsLegal(tt.from, tt.to); got != tt.legal {
				t.Errorf("IsLegal: got %v, want %v", got, tt.legal)
			}
		})
	}
}

func TestEveryStageButLeadCanRollBack(t *testing.T) {
	for _, s := range Pipeline[1:] {
		found := false
		for _, r := range Rules() {
			if r.From == s && r.Rollback {
				if r.To.Index() >= s.Index() {
					t.Errorf("rollback %s->%s does not move backwards", r.From, r.To)
				}
				found = true
			}
		}
		if !found {
			t.Errorf("no rollback edge from %s", s)
		}
	}
}

func TestRollbackStricterThanForward(t *testing.T) {
	tests := []struct {
		name  string
		from  Status
		to    Status
		role  Role
		allow bool
	}{
		{"pm advances to paid", StatusComplete, StatusPaidInFull, RolePM, true},
		{"pm cannot roll back paid", StatusPaidInFull, StatusComplete, RolePM, false},
		{"admin rolls back paid", StatusPaidInFull, StatusComplete, RoleAdmin, true},
		{"owner rolls back paid", StatusPaidInFull, StatusComplete, RoleOwner, true},
		{"contractor completes", StatusStarted, StatusComplete, RoleContractor, true},
		{"contractor cannot reopen", StatusComplete, StatusStarted, RoleContractor, false},
		{"sales rep sells", StatusLead, StatusSold, RoleSalesRep, true},
		{"sales rep cannot unsell", StatusSold, StatusLead, RoleSalesRep, false},
		{"contractor cannot sell", StatusLead, StatusSold, RoleContractor, false},
		{"unknown role", StatusLead, StatusSold, "viewer", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Permits(tt.from, tt.to, tt.role); got != tt.allow {
				t.Errorf("Permits: got %v, want %v", got, tt.allow)
			}
		})
	}
}

func TestTargets(t *testing.T) {
	got := Targets(StatusSold, RolePM)
	want := []Status{StatusLead, StatusFrontEndHold, StatusProduction}
	if !slices.Equal(got, want) {
		t.Errorf("Targets(sold, pm): got %v, want %v", got, want)
	}

	if got := Targets(StatusSold, RoleSalesRep); !slices.Equal(got, []Status{StatusFrontEndHold}) {
		t.Errorf("Targets(sold, sales_rep): got %v", got)
	}

	if got := Targets(StatusPaidInFull, RolePM); len(got) != 0 {
		t.Errorf("Targets(paid_in_full, pm): got %v, want none", got)
	}
}

func TestRulesReturnsCopy(t *testing.T) {
	rules := Rules()
	rules[0].Roles[0] = "viewer"
	if Permits(StatusLead, StatusSold, "viewer") {
		t.Error("mutating Rules() leaked into the permission table")
	}
}

func TestParseStatus(t *testing.T) {
	if _, err := ParseStatus("production"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := ParseStatus("overdue"); err == nil {
		t.Error("expected error for unknown status")
	}
}
