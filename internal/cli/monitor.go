package cli

import (
	"github.com/spf13/cobra"

	"github.com/arb-engine/flashloan-arb-engine/internal/tui"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Start terminal-based monitoring interface",
	Long: `Launch an interactive terminal UI showing live pipeline counters,
risk state and gas trend. Press 'q' to quit.`,
	RunE: runMonitor,
}

var (
	refreshRate int
	compactMode bool
)

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().IntVarP(&refreshRate, "refresh", "r", 1000, "refresh rate in milliseconds")
	monitorCmd.Flags().BoolVarP(&compactMode, "compact", "c", false, "compact display mode")
	monitorCmd.Flags().StringVar(&apiKey, "api-key", "", "API key for authenticated endpoints")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	config := tui.Config{
		RefreshRate: refreshRate,
		CompactMode: compactMode,
		APIKey:      apiKey,
	}

	return tui.StartMonitor(config)
}
