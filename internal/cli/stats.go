package cli

import (
	"fmt"

	"github.com/docker/go-units"
	"github.com/nczempin/enginestream/client"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var statsNoStream bool

var statsCmd = &cobra.Command{
	Use:   "stats <container>",
	Short: "Stream a container's resource usage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-20s %-24s %-8s %s\n", "CONTAINER", "MEM USAGE / LIMIT", "MEM %", "PIDS")

		consumer := &client.StatsConsumer{OnStats: func(s client.Stats) {
			fmt.Fprintf(w, "%-20s %-24s %-8s %d\n",
				shortID(s.ID),
				units.BytesSize(float64(s.MemoryStats.Usage))+" / "+units.BytesSize(float64(s.MemoryStats.Limit)),
				memoryPercent(s.MemoryStats),
				s.PidsStats.Current,
			)
		}}

		res, err := engine.ContainerStats(cmd.Context(), args[0],
			client.StatsOptions{Stream: !statsNoStream, OneShot: statsNoStream},
			client.StreamOptions{Consumer: consumer, Timeout: streamTimeout},
		)
		if err != nil {
			return errors.Wrapf(err, "stats %s", args[0])
		}
		if err := consumer.Err(); err != nil {
			return err
		}
		return sessionError(res)
	},
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func memoryPercent(m client.MemoryStats) string {
	if m.Limit == 0 {
		return "--"
	}
	return fmt.Sprintf("%.2f%%", float64(m.Usage)/float64(m.Limit)*100)
}

func init() {
	statsCmd.Flags().BoolVar(&statsNoStream, "no-stream", false, "print one sample and exit")
	rootCmd.AddCommand(statsCmd)
}
