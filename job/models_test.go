package job

import (
	"testing"
	"time"

	"github.com/kdgroup/jobledger/id"
	"github.com/kdgroup/jobledger/types"
)

func TestNewJobStartsInLead(t *testing.T) {
	leadID := id.NewLeadID()
	j := New("Rivera", leadID)

	if j.Status != StatusLead {
		t.Errorf("Status: got %s, want lead", j.Status)
	}
	if _, ok := j.Dates[StatusLead]; !ok {
		t.Error("lead date must be set on creation")
	}
	if len(j.Dates) != 1 {
		t.Errorf("only the lead date may be set, got %v", j.Dates)
	}
	if j.LeadID != leadID {
		t.Errorf("LeadID: got %s, want %s", j.LeadID, leadID)
	}
	if j.ID.Prefix() != id.PrefixJob {
		t.Errorf("ID prefix: got %s", j.ID.Prefix())
	}
}

func TestHasRequest(t *testing.T) {
	j := New("Rivera", id.Nil)
	j.Log = append(j.Log, AuditEntry{Type: EntryStatusUpdate, RequestID: "evt-1"})

	if !j.HasRequest("evt-1") {
		t.Error("expected evt-1 to be recorded")
	}
	if j.HasRequest("evt-2") {
		t.Error("evt-2 was never applied")
	}
	if j.HasRequest("") {
		t.Error("empty request id must never match")
	}
}

func TestCloneIsDeep(t *testing.T) {
	cv := types.USD(100)
	eta := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	received := eta.Add(time.Hour)

	j := New("Rivera", id.Nil)
	j.CrewIDs = []string{"a"}
	j.Commission.ContractValue = &cv
	j.Materials = []Material{{Name: "tile", ExpectedArrival: &eta}}
	j.Documents = Documents{
		Contract:    &Document{URL: "contract.pdf"},
		DownPayment: &Document{URL: "deposit.jpg"},
		CompletionCert: &CompletionCertificate{
			Document: Document{URL: "cert.pdf"},
			Customer: &Signature{Name: "Rivera"},
		},
	}
	j.FinalPayment = &Payment{Amount: types.USD(900), ReceivedAt: &received}

	c := j.Clone()
	c.CrewIDs[0] = "b"
	c.Dates[StatusSold] = c.CreatedAt
	c.Commission.ContractValue.Amount = 999
	*c.Materials[0].ExpectedArrival = eta.AddDate(0, 1, 0)
	c.Documents.Contract.URL = "forged.pdf"
	c.Documents.DownPayment.URL = "forged.jpg"
	c.Documents.CompletionCert.URL = "forged-cert.pdf"
	c.Documents.CompletionCert.Customer.Name = "Mallory"
	*c.FinalPayment.ReceivedAt = eta

	tests := []struct {
		name   string
		shared bool
	}{
		{"crew", j.CrewIDs[0] != "a"},
		{"dates", len(j.Dates) != 1},
		{"contract value", j.Commission.ContractValue.Amount != 100},
		{"material arrival", !j.Materials[0].ExpectedArrival.Equal(eta)},
		{"contract", j.Documents.Contract.URL != "contract.pdf"},
		{"down payment", j.Documents.DownPayment.URL != "deposit.jpg"},
		{"completion cert", j.Documents.CompletionCert.URL != "cert.pdf"},
		{"cert signature", j.Documents.CompletionCert.Customer.Name != "Rivera"},
		{"payment received", !j.FinalPayment.ReceivedAt.Equal(received)},
	}
	for _, tt := range tests {
		if tt.shared {
			t.Errorf("%s shared with clone", tt.name)
		}
	}
}

func TestPatchApply(t *testing.T) {
	j := New("Rivera", id.Nil)
	crew := []string{"crew-1", "crew-2"}
	cv := types.USD(1_000_000)
	name := "Rivera Family"

	p := Patch{
		CustomerName:  &name,
		CrewIDs:       &crew,
		ContractValue: &cv,
		Contract:      &Document{URL: "contract.pdf"},
	}
	if p.IsEmpty() {
		t.Fatal("patch should not be empty")
	}
	p.Apply(j)

	if j.CustomerName != name || len(j.CrewIDs) != 2 || !j.ContractValuePositive() || !j.HasContract() {
		t.Errorf("patch not applied: %+v", j)
	}
	if j.Contractor() != "crew-1" {
		t.Errorf("Contractor: got %q", j.Contractor())
	}

	crew[0] = "mutated"
	if j.CrewIDs[0] != "crew-1" {
		t.Error("patch slice aliased into job")
	}

	if !(Patch{Note: "just a note"}).IsEmpty() {
		t.Error("a note alone changes nothing")
	}
}
