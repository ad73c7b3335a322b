// Package jobledger runs a renovation company's job pipeline together with
// the invoice ledger shared by its three business entities.
//
// Jobledger is designed as a library with a thin service around it. The
// Engine provides:
//
//   - A role-gated stage machine from lead to paid_in_full
//   - Requirement checks that report every unmet rule at once
//   - An invoice ledger with atomic PREFIX-YYYY-NNNN numbering
//   - Idempotent settlement of lead fees and labor between entities
//   - Aging, monthly and profit-and-loss reports with staged export
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/kdgroup/jobledger"
//	    "github.com/kdgroup/jobledger/store/postgres"
//	)
//
//	s, err := postgres.Open(ctx, databaseURL, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	e := jobledger.New(s, jobledger.WithLogger(logger))
//	if err := e.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Stop()
//
// # Pipeline
//
// Jobs move through lead, sold, front_end_hold, production, scheduled,
// started, complete and paid_in_full. Every move names the stage the caller
// believes the job is in, so a stale request fails with ErrStatusConflict
// instead of overwriting a newer stage:
//
//	res, err := e.Transition(ctx, jobledger.TransitionRequest{
//	    JobID:     jobID,
//	    From:      job.StatusComplete,
//	    To:        job.StatusPaidInFull,
//	    ActorID:   userID,
//	    ActorRole: job.RolePM,
//	    RequestID: webhookID,
//	})
//
// Entering paid_in_full settles the job: KD invoices KR for the lead fee,
// KTS invoices KR for labor and commission, and a pending payout is recorded
// for each. Settlement failures are reported on the result and never undo
// the transition. Running settlement again reuses what already exists.
//
// # Money
//
// Amounts are integer minor units with a currency code. Percentages are
// applied with decimal arithmetic and rounded half away from zero.
//
// # TypeID
//
// All records use TypeID identifiers:
//
//	job_01h2xcejqtf2nbrexx3vqjhp41  // Job ID
//	inv_01h455vb4pex5vsknk084sn02q  // Invoice ID
//	pout_01h455vb4pex5vsknk084sn02q // Payout ID
package jobledger
