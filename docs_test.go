package jobledger_test

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/kdgroup/jobledger"
	"github.com/kdgroup/jobledger/job"
	"github.com/kdgroup/jobledger/lead"
	"github.com/kdgroup/jobledger/store/memory"
	"github.com/kdgroup/jobledger/types"
)

// TestDocumentationExamples verifies that the package documentation examples work.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use PostgreSQL in production)
		store := memory.New()

		e := jobledger.New(store,
			jobledger.WithLogger(zerolog.New(os.Stderr).Level(zerolog.WarnLevel)),
			jobledger.WithNetTermsDays(30),
		)

		ctx := context.Background()
		if err := e.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer e.Stop()

		// A converted lead becomes a job at the lead stage
		l := &lead.Lead{Source: "Google", CustomerName: "Okafor", ContractValue: ptr(types.USD(2_400_000))}
		if err := e.CreateLead(ctx, l); err != nil {
			t.Fatal(err)
		}
		j, err := e.CreateJob(ctx, jobledger.JobInput{CustomerName: "Okafor", LeadID: l.ID})
		if err != nil {
			t.Fatal(err)
		}

		// Ask what is missing before moving on
		reqs, err := e.CheckRequirements(ctx, j.ID, job.StatusSold)
		if err != nil {
			t.Fatal(err)
		}
		for _, msg := range job.Unmet(reqs) {
			log.Printf("blocked: %s\n", msg)
		}

		// Upload the contract and deposit, then sell the job
		if _, err := e.UpdateJobDetails(ctx, j.ID, job.Patch{
			Contract:    &job.Document{URL: "s3://docs/contract.pdf", UploadedAt: time.Now()},
			DownPayment: &job.Document{URL: "s3://docs/deposit.png", UploadedAt: time.Now()},
		}, "rep-7", job.RoleSalesRep); err != nil {
			t.Fatal(err)
		}

		res, err := e.Transition(ctx, jobledger.TransitionRequest{
			JobID:     j.ID,
			From:      job.StatusLead,
			To:        job.StatusSold,
			ActorID:   "rep-7",
			ActorRole: job.RoleSalesRep,
		})
		if err != nil {
			t.Fatal(err)
		}

		log.Printf("job %s is now %s\n", res.Job.ID, res.Job.Status)
	})

	t.Run("MoneyExamples", func(t *testing.T) {
		// Constructors
		_ = types.USD(4900)   // $49.00
		_ = types.CAD(9900)   // CA$99.00
		_ = types.Zero("usd") // $0.00

		// Arithmetic
		m1 := types.USD(100)
		m2 := types.USD(200)
		_ = m1.Add(m2)     // $3.00
		_ = m1.Multiply(3) // $3.00

		// Percentages round half away from zero
		fee := types.USD(1_000_000).MulDecimal(decimal.RequireFromString("0.05"))
		if fee.Amount != 50_000 {
			t.Errorf("5%% of $10,000: got %s", fee)
		}

		// Comparison
		if m2.GreaterThan(m1) {
			// m2 is greater than m1
		}

		// Formatting
		_ = m1.String()      // "$1.00"
		_ = m1.FormatMajor() // "1.00"
	})
}

func ptr[T any](v T) *T { return &v }
