package cli

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the daemon is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := engine.Ping(cmd.Context())
		if err != nil {
			return errors.Wrap(err, "ping failed")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (API %s, %s)\n", res.Status, res.APIVersion, res.OSType)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
