package cli

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/raphaelgruber/kaiwa/internal/metrics"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server runtime statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	snap, err := apiClient.Stats(cmd.Context())
	if err != nil {
		return err
	}
	printStats(cmd.OutOrStdout(), snap)
	return nil
}

func printStats(w io.Writer, s *metrics.Snapshot) {
	uptime := time.Duration(s.UptimeSeconds * float64(time.Second)).Round(time.Second)
	fmt.Fprintf(w, "Server Statistics (uptime %s)\n", uptime)
	fmt.Fprintf(w, "═══════════════════════════════════════\n\n")

	printOperation(w, "LLM streams", s.LLMStream)
	printOperation(w, "DB queries", s.DBQuery)

	if len(s.Counters) > 0 {
		names := make([]string, 0, len(s.Counters))
		for name := range s.Counters {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintln(w, "Counters:")
		for _, name := range names {
			fmt.Fprintf(w, "  %-18s %d\n", name, s.Counters[name])
		}
	}
}

func printOperation(w io.Writer, label string, op *metrics.OperationSnapshot) {
	if op == nil {
		return
	}
	fmt.Fprintf(w, "%s: %d (%d errors)\n", label, op.Count, op.Errors)
	fmt.Fprintf(w, "  avg %.1fms  min %dms  max %dms\n", op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
	if op.InputTokens != nil && op.OutputTokens != nil {
		fmt.Fprintf(w, "  tokens: %d in / %d out\n", *op.InputTokens, *op.OutputTokens)
	}
	fmt.Fprintln(w)
}
