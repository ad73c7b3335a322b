package job

import "fmt"

// Status is a stage in the renovation pipeline.
type Status string

const (
	StatusLead         Status = "lead"
	StatusSold         Status = "sold"
	StatusFrontEndHold Status = "front_end_hold"
	StatusProduction   Status = "production"
	StatusScheduled    Status = "scheduled"
	StatusStarted      Status = "started"
	StatusComplete     Status = "complete"
	StatusPaidInFull   Status = "paid_in_full"
)

// Pipeline lists every stage in pipeline order.
var Pipeline = []Status{
	StatusLead,
	StatusSold,
	StatusFrontEndHold,
	StatusProduction,
	StatusScheduled,
	StatusStarted,
	StatusComplete,
	StatusPaidInFull,
}

// Index returns the position of s in Pipeline, or -1 if s is unknown.
func (s Status) Index() int {
	for i, p := range Pipeline {
		if p == s {
			return i
		}
	}
	return -1
}

// IsValid reports whether s is one of the pipeline stages.
func (s Status) IsValid() bool { return s.Index() >= 0 }

// IsTerminal reports whether s is the final financial stage.
func (s Status) IsTerminal() bool { return s == StatusPaidInFull }

func (s Status) String() string { return string(s) }

// ParseStatus validates a stage name.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.IsValid() {
		return "", fmt.Errorf("job: unknown status %q", v)
	}
	return s, nil
}
