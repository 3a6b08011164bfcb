// Version command for the studybook CLI.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/studybook/pkg/studybook"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the studybook version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("studybook", studybook.Version)
	},
}
