// Package cli implements the zoomctl command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Version = "dev"

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "zoomctl",
		Short:         "Zoom usage collector and licence reconciliation",
		Long:          "zoomctl archives Zoom meeting and webinar metrics as JSON lines, manages registrants and keeps webinar licences in line with use.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().Bool("debug", false, "verbose development logging")
	_ = viper.BindPFlag("debug", root.PersistentFlags().Lookup("debug"))

	root.AddCommand(
		newPollCmd(),
		newParticipantsCmd(),
		newRegistrantsCmd(),
		newLicensesCmd(),
		newMembersCmd(),
	)

	root.Version = Version
	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
