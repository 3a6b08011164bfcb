// Study commands for the studybook CLI.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	flagStudyName       string
	flagStudyDirections []string
	flagSystemAttr      bool
)

var studyCmd = &cobra.Command{
	Use:   "study",
	Short: "Manage studies",
}

var studyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new study",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStorage()
		if err != nil {
			return err
		}
		defer s.Close()

		studyID, err := s.CreateStudy(flagStudyName)
		if err != nil {
			return err
		}

		if len(flagStudyDirections) > 0 {
			directions, err := parseDirections(flagStudyDirections)
			if err != nil {
				return err
			}
			if err := s.SetStudyDirections(studyID, directions); err != nil {
				return err
			}
		}

		name, err := s.StudyNameFromID(studyID)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(map[string]any{"study_id": studyID, "study_name": name})
		}
		fmt.Printf("created study %d (%s)\n", studyID, name)
		return nil
	},
}

var studyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all studies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStorage()
		if err != nil {
			return err
		}
		defer s.Close()

		summaries, err := s.AllStudySummaries(false)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(summaries)
		}
		for _, sum := range summaries {
			fmt.Printf("%d\t%s\t%v\n", sum.StudyID, sum.StudyName, sum.Directions)
		}
		return nil
	},
}

var studyDeleteCmd = &cobra.Command{
	Use:   "delete <study-id>",
	Short: "Logically delete a study",
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

		if err := s.DeleteStudy(studyID); err != nil {
			return err
		}
		fmt.Printf("deleted study %d\n", studyID)
		return nil
	},
}

var studySetAttrCmd = &cobra.Command{
	Use:   "set-attr <study-id> <key> <value>",
	Short: "Set a study attribute",
	Long:  "Merge a single key into the study's user attributes, or system attributes with --system. JSON values are stored decoded.",
	Args:  cobra.ExactArgs(3),
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

		value := parseAttrValue(args[2])
		if flagSystemAttr {
			return s.SetStudySystemAttr(studyID, args[1], value)
		}
		return s.SetStudyUserAttr(studyID, args[1], value)
	},
}

var studyBestCmd = &cobra.Command{
	Use:   "best <study-id>",
	Short: "Show the best completed trial of a study",
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

		best, err := s.BestTrial(studyID)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(best)
		}
		fmt.Printf("trial %d (number %d) value %v params %v\n",
			best.TrialID, best.Number, *best.Value, best.Params)
		return nil
	},
}

func init() {
	studyCreateCmd.Flags().StringVar(&flagStudyName, "name", "", "study name (default: auto-generated)")
	studyCreateCmd.Flags().StringSliceVar(&flagStudyDirections, "directions", nil, "objective directions (minimize, maximize)")
	studySetAttrCmd.Flags().BoolVar(&flagSystemAttr, "system", false, "set a system attribute instead of a user attribute")

	studyCmd.AddCommand(studyCreateCmd)
	studyCmd.AddCommand(studyListCmd)
	studyCmd.AddCommand(studyDeleteCmd)
	studyCmd.AddCommand(studySetAttrCmd)
	studyCmd.AddCommand(studyBestCmd)
}
