package job

// Requirement is a single business rule checked before a transition.
type Requirement struct {
	Met     bool   `json:"met"`
	Message string `json:"message"`
}

// Requirement messages.
const (
	MsgContract         = "a signed contract must be uploaded"
	MsgDownPayment      = "proof of down payment must be uploaded"
	MsgContractValue    = "contract value must be greater than zero"
	MsgMaterialDates    = "every material must have an expected or actual arrival date"
	MsgCrewAssigned     = "at least one crew member must be assigned"
	MsgMaterialsOnSite  = "every material must be arrived or collected"
	MsgCompletionSigned = "completion certificate must be signed by the customer and the contractor"
	MsgAfterPhotos      = "at least one after photo must be uploaded"
	MsgFinalPaymentSet  = "final payment amount must be recorded"
)

type check struct {
	message string
	met     func(*Job) bool
}

var requirements = map[Edge][]check{
	{StatusLead, StatusSold}: {
		{MsgContract, (*Job).HasContract},
		{MsgDownPayment, (*Job).HasDownPaymentProof},
		{MsgContractValue, (*Job).ContractValuePositive},
	},
	{StatusProduction, StatusScheduled}: {
		{MsgMaterialDates, materialsDated},
		{MsgCrewAssigned, (*Job).HasCrew},
	},
	{StatusScheduled, StatusStarted}: {
		{MsgMaterialsOnSite, materialsOnSite},
	},
	{StatusStarted, StatusComplete}: {
		{MsgCompletionSigned, (*Job).HasSignedCompletionCert},
		{MsgAfterPhotos, (*Job).HasAfterPhotos},
		{MsgFinalPaymentSet, (*Job).HasFinalPayment},
	},
	{StatusComplete, StatusPaidInFull}: {
		{MsgFinalPaymentSet, (*Job).HasFinalPayment},
	},
}

// Evaluate returns the requirements for moving j from -> to, each marked
// met or unmet. Transitions without rules return an empty list.
func Evaluate(j *Job, from, to Status) []Requirement {
	checks := requirements[Edge{From: from, To: to}]
	out := make([]Requirement, 0, len(checks))
	for _, c := range checks {
		out = append(out, Requirement{Met: c.met(j), Message: c.message})
	}
	return out
}

// Satisfied is true when every requirement is met. An empty list is satisfied.
func Satisfied(reqs []Requirement) bool {
	for _, r := range reqs {
		if !r.Met {
			return false
		}
	}
	return true
}

// Unmet returns the messages of every unmet requirement in evaluation order.
func Unmet(reqs []Requirement) []string {
	var out []string
	for _, r := range reqs {
		if !r.Met {
			out = append(out, r.Message)
		}
	}
	return out
}

func materialsDated(j *Job) bool {
	for _, m := range j.Materials {
		if m.ExpectedArrival == nil && m.ActualArrival == nil {
			return false
		}
	}
	return true
}

func materialsOnSite(j *Job) bool {
	for _, m := range j.Materials {
		if !m.Status.OnSite() {
			return false
		}
	}
	return true
}
