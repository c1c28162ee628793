package cmd

import (
	"fmt"

	"github.com/nzcve71300/Zentro-Assistant/zentrobot"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the Zentro Assistant version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf(
			"version=%s commit=%s built: %s",
			zentrobot.Version,
			zentrobot.CommitSHA,
			zentrobot.BuildTime,
		)
	},
}

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(versionCmd)
}
