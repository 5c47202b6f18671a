package cli

import (
	"fmt"

	"github.com/nczempin/enginestream/client"
	"github.com/nczempin/enginestream/stream"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	execTTY     bool
	execUser    string
	execWorkdir string
	execEnv     []string
)

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command exited with code %d", e.Code)
}

var execCmd = &cobra.Command{
	Use:   "exec [flags] <container> -- <command> [args...]",
	Short: "Run a command in a running container and stream its output",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		container := args[0]

		created, err := engine.ContainerExec(ctx, container, client.ExecConfig{
			AttachStdout: true,
			AttachStderr: true,
			Tty:          execTTY,
			Cmd:          args[1:],
			User:         execUser,
			WorkingDir:   execWorkdir,
			Env:          execEnv,
		})
		if err != nil {
			return errors.Wrapf(err, "create exec in %s", container)
		}

		out := stream.NewWriterConsumer(cmd.OutOrStdout(), cmd.ErrOrStderr())
		res, err := engine.ExecStart(ctx, created.ID, client.ExecStartConfig{Tty: execTTY}, client.StreamOptions{
			Consumer: out,
			Timeout:  streamTimeout,
		})
		if err != nil {
			return errors.Wrapf(err, "start exec %s", created.ID)
		}
		if err := sessionError(res); err != nil {
			return err
		}
		if res.State == stream.StateCancelled {
			return nil
		}

		inspect, err := engine.ExecInspect(ctx, created.ID)
		if err != nil {
			return errors.Wrapf(err, "inspect exec %s", created.ID)
		}
		if inspect.ExitCode != nil && *inspect.ExitCode != 0 {
			return &ExitError{Code: *inspect.ExitCode}
		}
		return nil
	},
}

func init() {
	execCmd.Flags().BoolVarP(&execTTY, "tty", "t", false, "allocate a pseudo-TTY")
	execCmd.Flags().StringVarP(&execUser, "user", "u", "", "user to run the command as")
	execCmd.Flags().StringVarP(&execWorkdir, "workdir", "w", "", "working directory inside the container")
	execCmd.Flags().StringArrayVarP(&execEnv, "env", "e", nil, "set environment variables")
	rootCmd.AddCommand(execCmd)
}
