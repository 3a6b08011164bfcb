// Root command for the studybook CLI.
package main

import (
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/studybook/internal/paths"
	"github.com/mesh-intelligence/studybook/pkg/studybook"
	"github.com/mesh-intelligence/studybook/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// Global flag values.
var (
	flagConfigDir string
	flagDataDir   string
	flagJSON      bool
)

// cliConfig is the engine configuration resolved from flags, config.yaml
// and environment. Set by PersistentPreRunE so all subcommands can use
// it.
var cliConfig types.Config

var rootCmd = &cobra.Command{
	Use:          "studybook",
	Short:        "Studybook persists optimization studies and trials",
	Version:      studybook.Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configDir, err := paths.ResolveConfigDir(flagConfigDir)
		if err != nil {
			return err
		}

		v, err := loadConfig(configDir)
		if err != nil {
			return err
		}

		dataDir, err := paths.ResolveDataDir(flagDataDir, v.GetString(cfgKeyDataDir))
		if err != nil {
			return err
		}

		cliConfig = types.Config{
			DataDir:           dataDir,
			HeartbeatInterval: v.GetInt(cfgKeyHeartbeatInterval),
			GracePeriod:       v.GetInt(cfgKeyGracePeriod),
		}
		return cliConfig.Validate()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "", "configuration directory (default: platform config dir)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory (default: $(CWD)/.studybook-db)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(studyCmd)
	rootCmd.AddCommand(trialCmd)
}
