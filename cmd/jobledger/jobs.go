package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kdgroup/jobledger"
	"github.com/kdgroup/jobledger/id"
	"github.com/kdgroup/jobledger/job"
)

var transitionCmd = &cobra.Command{
	Use:   "transition JOB_ID FROM TO",
	Short: "Move a job to another pipeline stage",
	Long: `Move a job from one pipeline stage to another on behalf of an actor.

Stages: lead, sold, front_end_hold, production, scheduled, started,
complete, paid_in_full. Entering paid_in_full settles the job.`,
	Example: `  jobledger transition job_01h... complete paid_in_full --actor u-7 --role admin`,
	Args:    cobra.ExactArgs(3),
	RunE:    runTransition,
}

var settleCmd = &cobra.Command{
	Use:   "settle JOB_ID",
	Short: "Run settlement for a paid job",
	Long: `Run settlement for a job in paid_in_full. Settlement is idempotent:
records that already exist are reused and a partial run is completed.`,
	Args: cobra.ExactArgs(1),
	RunE: runSettle,
}

func init() {
	rootCmd.AddCommand(transitionCmd, settleCmd)

	transitionCmd.Flags().String("actor", "", "actor id (required)")
	transitionCmd.Flags().String("role", "", "actor role: owner, admin, pm, sales_rep or contractor (required)")
	transitionCmd.Flags().String("note", "", "note for the communication log")
	transitionCmd.Flags().String("request-id", "", "idempotency key of the triggering event")
	transitionCmd.Flags().Bool("skip-validation", false, "bypass requirement checks (permissions still apply)")
	_ = transitionCmd.MarkFlagRequired("actor")
	_ = transitionCmd.MarkFlagRequired("role")
}

func runTransition(cmd *cobra.Command, args []string) error {
	jobID, err := id.ParseJobID(args[0])
	if err != nil {
		return err
	}
	from, err := job.ParseStatus(args[1])
	if err != nil {
		return err
	}
	to, err := job.ParseStatus(args[2])
	if err != nil {
		return err
	}
	actor, _ := cmd.Flags().GetString("actor")
	role, _ := cmd.Flags().GetString("role")
	note, _ := cmd.Flags().GetString("note")
	requestID, _ := cmd.Flags().GetString("request-id")
	skip, _ := cmd.Flags().GetBool("skip-validation")

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.engine.Transition(cmd.Context(), jobledger.TransitionRequest{
		JobID:          jobID,
		From:           from,
		To:             to,
		ActorID:        actor,
		ActorRole:      job.Role(role),
		Note:           note,
		SkipValidation: skip,
		RequestID:      requestID,
	})
	var reqErr *jobledger.RequirementsError
	if errors.As(err, &reqErr) {
		for _, msg := range reqErr.Unmet {
			fmt.Fprintf(cmd.ErrOrStderr(), "  unmet: %s\n", msg)
		}
	}
	if err != nil {
		return err
	}
	for _, e := range res.SettlementErrors {
		log.Warn().Err(e).Str("job_id", jobID.String()).Msg("settlement incomplete, run `jobledger settle` to retry")
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func runSettle(cmd *cobra.Command, args []string) error {
	jobID, err := id.ParseJobID(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.engine.Settle(cmd.Context(), jobID)
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if len(res.Failures) > 0 {
		errs := make([]error, len(res.Failures))
		for i, f := range res.Failures {
			errs[i] = f
		}
		return errors.Join(errs...)
	}
	return nil
}
