package cli

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the arbitrage engine",
	Long: `Stop a running engine instance gracefully. This sends SIGTERM so the
pipeline can finish in-flight opportunities and flush the pending bundle.`,
	RunE: runStop,
}

var (
	forceKill bool
	pidFile   string
)

func init() {
	rootCmd.AddCommand(stopCmd)

	stopCmd.Flags().BoolVarP(&forceKill, "force", "f", false, "force kill the process (SIGKILL)")
	stopCmd.Flags().StringVar(&pidFile, "pid-file", "./arb-engine.pid", "path to PID file")
}

func runStop(cmd *cobra.Command, args []string) error {
	fmt.Println("Stopping arbitrage engine...")

	if _, err := os.Stat(pidFile); os.IsNotExist(err) {
		return stopByProcessName()
	}

	pidBytes, err := os.ReadFile(pidFile)
	if err != nil {
		return fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(pidBytes)))
	if err != nil {
		return fmt.Errorf("invalid PID in file: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}

	var signal os.Signal = syscall.SIGTERM
	if forceKill {
		signal = syscall.SIGKILL
		fmt.Println("Force killing process...")
	}

	if err := process.Signal(signal); err != nil {
		return fmt.Errorf("failed to signal process: %w", err)
	}

	if err := os.Remove(pidFile); err != nil && !os.IsNotExist(err) {
		fmt.Printf("Warning: failed to remove PID file: %v\n", err)
	}

	fmt.Println("Stop signal sent")
	return nil
}

func stopByProcessName() error {
	cmd := exec.Command("pgrep", "-f", "arb-engine")
	output, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("no running engine process found")
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(output)))
	if err != nil {
		return fmt.Errorf("invalid PID from pgrep: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}

	var signal os.Signal = syscall.SIGTERM
	if forceKill {
		signal = syscall.SIGKILL
	}

	fmt.Printf("Sending signal to process %d...\n", pid)
	return process.Signal(signal)
}
