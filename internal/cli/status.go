package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check engine status",
	Long: `Check the current status of a running engine: pipeline counters,
risk controller state and dispatch queue depth.`,
	RunE: runStatus,
}

var (
	jsonOutput    bool
	watchMode     bool
	watchInterval time.Duration
	apiKey        string
)

// EngineStatus mirrors the /api/v1/status payload.
type EngineStatus struct {
	Status     string          `json:"status"`
	Uptime     string          `json:"uptime"`
	Pipeline   *PipelineCounts `json:"pipeline,omitempty"`
	Risk       *RiskState      `json:"risk,omitempty"`
	QueueDepth int             `json:"queue_depth"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// PipelineCounts are the aggregate pipeline counters.
type PipelineCounts struct {
	Detected       uint64 `json:"detected"`
	Deduplicated   uint64 `json:"deduplicated"`
	Validated      uint64 `json:"validated"`
	Simulated      uint64 `json:"simulated"`
	Executed       uint64 `json:"executed"`
	Failed         uint64 `json:"failed"`
	BlockedByRisk  uint64 `json:"blockedByRisk"`
	BlockedByGas   uint64 `json:"blockedByGas"`
	Superseded     uint64 `json:"superseded"`
	TotalProfitWei string `json:"totalProfitWei"`
}

// RiskState is the circuit breaker view.
type RiskState struct {
	CircuitBreakerActive bool    `json:"circuitBreakerActive"`
	ConsecutiveFailures  int     `json:"consecutiveFailures"`
	Drawdown             float64 `json:"drawdown"`
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "output in JSON format")
	statusCmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "watch mode (continuous updates)")
	statusCmd.Flags().DurationVar(&watchInterval, "interval", 5*time.Second, "watch interval duration")
	statusCmd.Flags().StringVar(&apiKey, "api-key", "", "API key for authenticated endpoints")
}

func runStatus(cmd *cobra.Command, args []string) error {
	if watchMode {
		return runWatchStatus()
	}

	status, err := getEngineStatus()
	if err != nil {
		return fmt.Errorf("failed to get engine status: %w", err)
	}

	if jsonOutput {
		return outputJSON(status)
	}

	return outputFormatted(status)
}

func runWatchStatus() error {
	fmt.Printf("Watching engine status (interval: %v)\n", watchInterval)
	fmt.Println("Press Ctrl+C to stop watching...")
	fmt.Println()

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	if err := showCurrentStatus(); err != nil {
		return err
	}

	for range ticker.C {
		fmt.Print("\033[H\033[2J") // Clear screen
		if err := showCurrentStatus(); err != nil {
			return err
		}
	}
	return nil
}

func showCurrentStatus() error {
	status, err := getEngineStatus()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return nil
	}
	return outputFormatted(status)
}

func getEngineStatus() (*EngineStatus, error) {
	apiHost := viper.GetString("server.host")
	if apiHost == "" || apiHost == "0.0.0.0" {
		apiHost = "localhost"
	}
	apiPort := viper.GetInt("server.port")
	if apiPort == 0 {
		apiPort = 8080
	}

	url := fmt.Sprintf("http://%s:%d/api/v1/status", apiHost, apiPort)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		// Engine might not be running
		return &EngineStatus{
			Status:    "offline",
			UpdatedAt: time.Now(),
		}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("unauthorized: pass --api-key (the key is logged at engine startup)")
	}

	var status EngineStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}

	return &status, nil
}

func outputJSON(status *EngineStatus) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(status)
}

func outputFormatted(status *EngineStatus) error {
	fmt.Printf("Arbitrage Engine Status\n")
	fmt.Printf("=======================\n\n")

	fmt.Printf("Status:      %s\n", status.Status)
	if status.Uptime != "" {
		fmt.Printf("Uptime:      %s\n", status.Uptime)
	}
	fmt.Printf("Queue Depth: %d\n", status.QueueDepth)
	fmt.Printf("Updated:     %s\n", status.UpdatedAt.Format(time.RFC3339))

	if status.Pipeline != nil {
		fmt.Printf("\nPipeline Counters\n")
		fmt.Printf("-----------------\n")
		fmt.Printf("Detected:        %d\n", status.Pipeline.Detected)
		fmt.Printf("Deduplicated:    %d\n", status.Pipeline.Deduplicated)
		fmt.Printf("Validated:       %d\n", status.Pipeline.Validated)
		fmt.Printf("Simulated:       %d\n", status.Pipeline.Simulated)
		fmt.Printf("Executed:        %d\n", status.Pipeline.Executed)
		fmt.Printf("Failed:          %d\n", status.Pipeline.Failed)
		fmt.Printf("Blocked (risk):  %d\n", status.Pipeline.BlockedByRisk)
		fmt.Printf("Blocked (gas):   %d\n", status.Pipeline.BlockedByGas)
		fmt.Printf("Superseded:      %d\n", status.Pipeline.Superseded)
		fmt.Printf("Total Profit:    %s wei\n", status.Pipeline.TotalProfitWei)
	}

	if status.Risk != nil {
		fmt.Printf("\nRisk State\n")
		fmt.Printf("----------\n")
		breaker := "inactive"
		if status.Risk.CircuitBreakerActive {
			breaker = "ACTIVE"
		}
		fmt.Printf("Circuit Breaker:       %s\n", breaker)
		fmt.Printf("Consecutive Failures:  %d\n", status.Risk.ConsecutiveFailures)
		fmt.Printf("Drawdown:              %.2f%%\n", status.Risk.Drawdown*100)
	}

	return nil
}
