// Init command for the studybook CLI.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the studybook data directory",
	Long:  "Create the data directory and backend database so later commands start from a known state.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStorage()
		if err != nil {
			return err
		}
		if err := s.Close(); err != nil {
			return err
		}
		fmt.Printf("initialized studybook storage in %s\n", cliConfig.DataDir)
		return nil
	},
}
