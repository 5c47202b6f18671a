// Package cli implements the enginectl commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nczempin/enginestream/client"
	"github.com/nczempin/enginestream/config"
	"github.com/nczempin/enginestream/protocol"
	"github.com/nczempin/enginestream/stream"
	"github.com/nczempin/enginestream/transport"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile       string
	hostFlag      string
	streamTimeout time.Duration
	logLevel      string

	// Shared state set during PersistentPreRun
	cfg    *config.Config
	engine *client.Client
)

var cliLog = logrus.WithField("subsystem", "cli")

// setLoggers points every package logger at entry. Each package keeps its
// own subsystem field.
func setLoggers(entry *logrus.Entry) {
	transport.SetLogger(entry)
	protocol.SetLogger(entry)
	stream.SetLogger(entry)
	client.SetLogger(entry)
	cliLog = entry.WithFields(cliLog.Data)
}

// rootCmd is the base command for enginectl.
var rootCmd = &cobra.Command{
	Use:   "enginectl",
	Short: "Stream logs, exec output and stats from a container engine",
	Long: `enginectl talks to a container engine daemon over its HTTP API.
It connects through a unix socket, named pipe, TCP or TLS, as set by
DOCKER_HOST, the config file or --host.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return errors.Wrap(err, "invalid --log-level")
		}
		logrus.SetLevel(level)
		setLoggers(logrus.WithFields(logrus.Fields{"name": "enginectl", "pid": os.Getpid()}))

		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if err := cfg.ApplyEnv(); err != nil {
			return errors.Wrap(err, "invalid configuration")
		}
		if hostFlag != "" {
			cfg.Host = hostFlag
		}

		desc, err := cfg.Descriptor()
		if err != nil {
			return err
		}
		engine, err = client.NewClient(desc, client.WithAPIVersion(cfg.APIVersion), client.WithLogger(cliLog))
		if err != nil {
			return errors.Wrap(err, "create client")
		}
		return nil
	},
}

// Execute runs the root command. An interrupt cancels a running stream.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// RootCmd returns the root cobra.Command for testing purposes.
func RootCmd() *cobra.Command {
	return rootCmd
}

// sessionError turns a session outcome into the command's error.
func sessionError(res stream.Result) error {
	switch res.State {
	case stream.StateFailed:
		return errors.Wrap(res.Err, "stream failed")
	case stream.StateTimedOut:
		return errors.Errorf("stream timed out after %s", streamTimeout)
	default:
		return nil
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVarP(&hostFlag, "host", "H", "", "daemon address, e.g. unix:///var/run/docker.sock or tcp://host:2376")
	rootCmd.PersistentFlags().DurationVar(&streamTimeout, "timeout", 0, "stop streaming after this long (0 streams until the daemon closes)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warning", "log level: debug, info, warning, error")
}
