package job

import "github.com/kdgroup/jobledger/types"

// Patch is a typed partial update of a job's working data. Nil fields are
// left untouched. Status, dates, warranty, log and linked invoices are owned
// by the pipeline and cannot be patched.
type Patch struct {
	CustomerName   *string                `json:"customer_name,omitempty"`
	Address        *string                `json:"address,omitempty"`
	CrewIDs        *[]string              `json:"crew_ids,omitempty"`
	Materials      *[]Material            `json:"materials,omitempty"`
	Contract       *Document              `json:"contract,omitempty"`
	DownPayment    *Document              `json:"down_payment,omitempty"`
	CompletionCert *CompletionCertificate `json:"completion_cert,omitempty"`
	BeforePhotos   *[]string              `json:"before_photos,omitempty"`
	AfterPhotos    *[]string              `json:"after_photos,omitempty"`
	FinalPayment   *Payment               `json:"final_payment,omitempty"`
	ContractValue  *types.Money           `json:"contract_value,omitempty"`
	Commission     *types.Money           `json:"commission,omitempty"`
	Costs          *Costs                 `json:"costs,omitempty"`
	Note           string                 `json:"note,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.CustomerName == nil && p.Address == nil && p.CrewIDs == nil &&
		p.Materials == nil && p.Contract == nil && p.DownPayment == nil &&
		p.CompletionCert == nil && p.BeforePhotos == nil && p.AfterPhotos == nil &&
		p.FinalPayment == nil && p.ContractValue == nil && p.Commission == nil &&
		p.Costs == nil
}

// Apply copies every set field onto j.
func (p Patch) Apply(j *Job) {
	if p.CustomerName != nil {
		j.CustomerName = *p.CustomerName
	}
	if p.Address != nil {
		j.Address = *p.Address
	}
	if p.CrewIDs != nil {
		j.CrewIDs = append([]string(nil), (*p.CrewIDs)...)
	}
	if p.Materials != nil {
		j.Materials = cloneMaterials(*p.Materials)
	}
	if p.Contract != nil {
		j.Documents.Contract = clonePtr(p.Contract)
	}
	if p.DownPayment != nil {
		j.Documents.DownPayment = clonePtr(p.DownPayment)
	}
	if p.CompletionCert != nil {
		j.Documents.CompletionCert = p.CompletionCert.clone()
	}
	if p.BeforePhotos != nil {
		j.Photos.Before = append([]string(nil), (*p.BeforePhotos)...)
	}
	if p.AfterPhotos != nil {
		j.Photos.After = append([]string(nil), (*p.AfterPhotos)...)
	}
	if p.FinalPayment != nil {
		j.FinalPayment = p.FinalPayment.clone()
	}
	if p.ContractValue != nil {
		j.Commission.ContractValue = clonePtr(p.ContractValue)
	}
	if p.Commission != nil {
		j.Commission.Amount = clonePtr(p.Commission)
	}
	if p.Costs != nil {
		j.Costs = *p.Costs
	}
}
