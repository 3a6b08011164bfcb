// Trial commands for the studybook CLI.
package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var flagTrialStates string

var trialCmd = &cobra.Command{
	Use:   "trial",
	Short: "Manage trials",
}

var trialCreateCmd = &cobra.Command{
	Use:   "create <study-id>",
	Short: "Create a new running trial in a study",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		studyID, err := parseID(args[0])
		if err != nil {
			return err
		}

		s, err := openStorage()
		if err != nil {
			return err
		}
		defer s.Close()

		trialID, err := s.CreateTrial(studyID, nil)
		if err != nil {
			return err
		}
		number, err := s.TrialNumberFromID(trialID)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(map[string]any{"trial_id": trialID, "number": number})
		}
		fmt.Printf("created trial %d (number %d) in study %d\n", trialID, number, studyID)
		return nil
	},
}

var trialListCmd = &cobra.Command{
	Use:   "list <study-id>",
	Short: "List a study's trials",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		studyID, err := parseID(args[0])
		if err != nil {
			return err
		}
		states, err := parseStates(flagTrialStates)
		if err != nil {
			return err
		}

		s, err := openStorage()
		if err != nil {
			return err
		}
		defer s.Close()

		trials, err := s.AllTrials(studyID, states)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(trials)
		}
		for _, t := range trials {
			value := "-"
			if t.Value != nil {
				value = strconv.FormatFloat(*t.Value, 'g', -1, 64)
			} else if t.Values != nil {
				value = fmt.Sprintf("%v", t.Values)
			}
			fmt.Printf("%d\t#%d\t%s\t%s\n", t.TrialID, t.Number, t.State, value)
		}
		return nil
	},
}

var trialShowCmd = &cobra.Command{
	Use:   "show <trial-id>",
	Short: "Show a trial's frozen snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		trialID, err := parseID(args[0])
		if err != nil {
			return err
		}

		s, err := openStorage()
		if err != nil {
			return err
		}
		defer s.Close()

		trial, err := s.GetTrial(trialID)
		if err != nil {
			return err
		}
		return printJSON(trial)
	},
}

var trialSetStateCmd = &cobra.Command{
	Use:   "set-state <trial-id> <state> [value...]",
	Short: "Set a trial's state and objective values",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		trialID, err := parseID(args[0])
		if err != nil {
			return err
		}
		states, err := parseStates(args[1])
		if err != nil {
			return err
		}
		if len(states) != 1 {
			return fmt.Errorf("expected exactly one state, got %q", args[1])
		}

		var values []float64
		for _, raw := range args[2:] {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return fmt.Errorf("invalid objective value %q", raw)
			}
			values = append(values, v)
		}

		s, err := openStorage()
		if err != nil {
			return err
		}
		defer s.Close()

		updated, err := s.SetTrialStateValues(trialID, states[0], values)
		if err != nil {
			return err
		}
		if !updated {
			warnf("trial %d is already running; nothing to do", trialID)
		}
		return nil
	},
}

var trialHeartbeatCmd = &cobra.Command{
	Use:   "heartbeat <trial-id>",
	Short: "Record a liveness heartbeat for a trial",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		trialID, err := parseID(args[0])
		if err != nil {
			return err
		}

		s, err := openStorage()
		if err != nil {
			return err
		}
		defer s.Close()

		return s.RecordHeartbeat(trialID)
	},
}

var trialFailStaleCmd = &cobra.Command{
	Use:   "fail-stale <study-id>",
	Short: "Fail the study's running trials whose heartbeat went stale",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		studyID, err := parseID(args[0])
		if err != nil {
			return err
		}

		s, err := openStorage()
		if err != nil {
			return err
		}
		defer s.Close()

		failed, err := s.FailStaleTrials(studyID)
		if err != nil {
			return err
		}
		fmt.Printf("failed %d stale trial(s) in study %d\n", failed, studyID)
		return nil
	},
}

func init() {
	trialListCmd.Flags().StringVar(&flagTrialStates, "states", "", "comma-separated state filter (running, waiting, complete, pruned, fail)")

	trialCmd.AddCommand(trialCreateCmd)
	trialCmd.AddCommand(trialListCmd)
	trialCmd.AddCommand(trialShowCmd)
	trialCmd.AddCommand(trialSetStateCmd)
	trialCmd.AddCommand(trialHeartbeatCmd)
	trialCmd.AddCommand(trialFailStaleCmd)
}
