package job

import (
	"context"

	"github.com/kdgroup/jobledger/id"
)

// MutateFunc edits a job in place inside an atomic update. Returning an
// error aborts the update and leaves the stored job unchanged.
type MutateFunc func(j *Job) error

type Store interface {
	CreateJob(ctx context.Context, j *Job) error
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)
	// UpdateJob reads, mutates and writes the job as one atomic step keyed
	// on the job id. The stored Version is incremented on success.
	UpdateJob(ctx context.Context, jobID id.JobID, fn MutateFunc) (*Job, error)
	ListJobs(ctx context.Context, opts ListOpts) ([]*Job, error)
}

type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
