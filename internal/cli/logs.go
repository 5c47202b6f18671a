package cli

import (
	"github.com/docker/go-units"
	"github.com/nczempin/enginestream/client"
	"github.com/nczempin/enginestream/stream"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	logsFollow     bool
	logsTail       string
	logsTimestamps bool
)

var logsCmd = &cobra.Command{
	Use:   "logs <container>",
	Short: "Stream a container's logs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// TTY containers log raw output, everything else is multiplexed
		info, err := engine.ContainerInspect(ctx, args[0])
		if err != nil {
			return errors.Wrapf(err, "inspect %s", args[0])
		}
		tty := info.Config != nil && info.Config.Tty

		out := stream.NewWriterConsumer(cmd.OutOrStdout(), cmd.ErrOrStderr())
		res, err := engine.ContainerLogs(ctx, args[0],
			client.LogsOptions{Follow: logsFollow, Stdout: true, Stderr: true, Timestamps: logsTimestamps, Tail: logsTail},
			client.StreamOptions{TTY: tty, Consumer: out, Timeout: streamTimeout},
		)
		if err != nil {
			return errors.Wrapf(err, "logs %s", args[0])
		}

		cliLog.WithFields(logrus.Fields{
			"session": res.ID,
			"state":   res.State,
			"frames":  res.Frames,
			"size":    units.HumanSize(float64(res.Bytes)),
		}).Debug("logs finished")

		if err := out.Err(); err != nil && res.State != stream.StateFailed {
			return errors.Wrap(err, "write output")
		}
		return sessionError(res)
	},
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "follow log output")
	logsCmd.Flags().StringVarP(&logsTail, "tail", "n", "all", "number of lines to show from the end of the logs")
	logsCmd.Flags().BoolVarP(&logsTimestamps, "timestamps", "t", false, "show timestamps")
	rootCmd.AddCommand(logsCmd)
}
