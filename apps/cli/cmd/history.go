package cmd

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/treq/packages/core/config"
	"github.com/abdul-hamid-achik/treq/packages/history"
)

var (
	historyLimitFlag  int
	historyConfigFlag string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs from the history database",
	Long: `Show recent runs persisted to the history database.

Examples:
  treq history
  treq history --limit 50
  treq history reports <run-id>`,
	RunE: historyCommand,
}

var historyReportsCmd = &cobra.Command{
	Use:   "reports <run-id>",
	Short: "Show plugin reports recorded for a run",
	Args:  cobra.ExactArgs(1),
	RunE:  historyReportsCommand,
}

func init() {
	historyCmd.PersistentFlags().IntVar(&historyLimitFlag, "limit", 20, "Maximum number of runs to show")
	historyCmd.PersistentFlags().StringVar(&historyConfigFlag, "config", "", "Path to config file")
	historyCmd.AddCommand(historyReportsCmd)
}

func openHistory() (*history.Store, error) {
	cfg, err := config.LoadConfig(historyConfigFlag)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cfg.HistoryPath == "" {
		return nil, fmt.Errorf("history is disabled (no historyPath configured)")
	}
	return history.Open(cfg.HistoryPath)
}

func historyCommand(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(cmd.Context(), historyLimitFlag)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}

	for _, run := range runs {
		status := fmt.Sprintf("%d", run.Status)
		if run.Error != "" {
			status = "error"
		}

		if run.Error != "" {
			color.New(color.FgRed).Fprintf(out, "%-6s", status)
		} else {
			color.New(color.FgGreen).Fprintf(out, "%-6s", status)
		}
		fmt.Fprintf(out, " %s  %-7s %s (%dms)\n",
			run.CreatedAt.Format(time.DateTime), run.Method, run.URL, run.DurationMs)
		fmt.Fprintf(out, "       run: %s", run.RunID)
		if run.RequestName != "" {
			fmt.Fprintf(out, "  name: %s", run.RequestName)
		}
		fmt.Fprintln(out)
	}

	return nil
}

func historyReportsCommand(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	reports, err := store.ReportsForRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(reports) == 0 {
		fmt.Fprintln(out, "No reports recorded for this run.")
		return nil
	}

	for _, rep := range reports {
		fmt.Fprintf(out, "%3d  %-20s %s\n", rep.Seq, rep.PluginName, rep.Data)
	}

	return nil
}
