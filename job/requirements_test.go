package job

import (
	"slices"
	"testing"
	"time"

	"github.com/kdgroup/jobledger/id"
	"github.com/kdgroup/jobledger/types"
)

func money(cents int64) *types.Money {
	m := types.USD(cents)
	return &m
}

func TestEvaluateUnconditionalEdges(t *testing.T) {
	j := New("Rivera", id.Nil)
	for _, e := range []Edge{
		{StatusSold, StatusFrontEndHold},
		{StatusSold, StatusProduction},
		{StatusPaidInFull, StatusComplete},
	} {
		reqs := Evaluate(j, e.From, e.To)
		if len(reqs) != 0 {
			t.Errorf("%s->%s: expected no requirements, got %v", e.From, e.To, reqs)
		}
		if !Satisfied(reqs) {
			t.Errorf("%s->%s: empty requirement list must be satisfied", e.From, e.To)
		}
	}
}

func TestEvaluateLeadToSold(t *testing.T) {
	j := New("Rivera", id.Nil)

	unmet := Unmet(Evaluate(j, StatusLead, StatusSold))
	want := []string{MsgContract, MsgDownPayment, MsgContractValue}
	if !slices.Equal(unmet, want) {
		t.Fatalf("Unmet: got %v, want %v", unmet, want)
	}

	j.Documents.Contract = &Document{URL: "s3://contract.pdf"}
	j.Documents.DownPayment = &Document{URL: "s3://check.jpg"}
	j.Commission.ContractValue = money(0)
	if unmet := Unmet(Evaluate(j, StatusLead, StatusSold)); !slices.Equal(unmet, []string{MsgContractValue}) {
		t.Errorf("zero contract value: got %v", unmet)
	}

	j.Commission.ContractValue = money(1_000_000)
	if reqs := Evaluate(j, StatusLead, StatusSold); !Satisfied(reqs) {
		t.Errorf("expected satisfied, unmet %v", Unmet(reqs))
	}
}

func TestEvaluateProductionToScheduledEmptyJob(t *testing.T) {
	j := New("Rivera", id.Nil)
	j.Materials = nil
	j.CrewIDs = nil

	reqs := Evaluate(j, StatusProduction, StatusScheduled)
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requirements, got %d", len(reqs))
	}
	if !reqs[0].Met {
		t.Error("empty materials list must satisfy the arrival date rule")
	}
	if got := Unmet(reqs); !slices.Equal(got, []string{MsgCrewAssigned}) {
		t.Errorf("Unmet: got %v", got)
	}
}

func TestEvaluateMaterials(t *testing.T) {
	eta := time.Now().Add(48 * time.Hour)

	tests := []struct {
		name      string
		materials []Material
		from, to  Status
		met       bool
	}{
		{"dated by expected", []Material{{Name: "tile", ExpectedArrival: &eta}}, StatusProduction, StatusScheduled, true},
		{"dated by actual", []Material{{Name: "tile", ActualArrival: &eta}}, StatusProduction, StatusScheduled, true},
		{"one undated", []Material{{Name: "tile", ExpectedArrival: &eta}, {Name: "grout"}}, StatusProduction, StatusScheduled, false},
		{"all arrived", []Material{{Status: MaterialArrived}, {Status: MaterialCollected}}, StatusScheduled, StatusStarted, true},
		{"one in transit", []Material{{Status: MaterialArrived}, {Status: MaterialInTransit}}, StatusScheduled, StatusStarted, false},
		{"no materials", nil, StatusScheduled, StatusStarted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := New("Rivera", id.Nil)
			j.Materials = tt.materials
			j.CrewIDs = []string{"crew-1"}
			if got := Satisfied(Evaluate(j, tt.from, tt.to)); got != tt.met {
				t.Errorf("Satisfied: got %v, want %v", got, tt.met)
			}
		})
	}
}

func TestEvaluateStartedToComplete(t *testing.T) {
	j := New("Rivera", id.Nil)
	j.Documents.CompletionCert = &CompletionCertificate{Customer: &Signature{Name: "Rivera"}}

	got := Unmet(Evaluate(j, StatusStarted, StatusComplete))
	want := []string{MsgCompletionSigned, MsgAfterPhotos, MsgFinalPaymentSet}
	if !slices.Equal(got, want) {
		t.Fatalf("Unmet: got %v, want %v", got, want)
	}

	j.Documents.CompletionCert.Contractor = &Signature{Name: "crew-1"}
	j.Photos.After = []string{"after-1.jpg"}
	j.FinalPayment = &Payment{Amount: types.USD(250_000)}
	if reqs := Evaluate(j, StatusStarted, StatusComplete); !Satisfied(reqs) {
		t.Errorf("expected satisfied, unmet %v", Unmet(reqs))
	}
	if reqs := Evaluate(j, StatusComplete, StatusPaidInFull); !Satisfied(reqs) {
		t.Errorf("paid_in_full: unmet %v", Unmet(reqs))
	}
}
