package cli

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var overrideCmd = &cobra.Command{
	Use:   "override",
	Short: "Operator override commands",
	Long: `Operator override commands for manual control of a running engine.
These bypass the engine's automatic behavior; use with care.`,
}

var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Flush the dedup caches",
	Long: `Flush the opportunity dedup cache and the price aggregation cache.
Every active cycle becomes admissible again immediately, so the next scan
pass may re-execute opportunities that were recently traded.`,
	RunE: runClearCache,
}

var confirmOverride bool

func init() {
	rootCmd.AddCommand(overrideCmd)
	overrideCmd.AddCommand(clearCacheCmd)

	clearCacheCmd.Flags().BoolVar(&confirmOverride, "confirm", false, "skip the confirmation prompt")
	clearCacheCmd.Flags().StringVar(&apiKey, "api-key", "", "API key for authenticated endpoints")
}

func runClearCache(cmd *cobra.Command, args []string) error {
	fmt.Println("DEDUP CACHE CLEAR REQUESTED")
	fmt.Println("===========================")
	fmt.Println("Recently traded cycles will be admissible again on the next")
	fmt.Println("scan pass. This can cause duplicate executions.")
	fmt.Println()

	if !confirmOverride {
		fmt.Print("Type 'CLEAR CACHE' to confirm: ")
		reader := bufio.NewReader(os.Stdin)
		input, _ := reader.ReadString('\n')
		if strings.TrimSpace(input) != "CLEAR CACHE" {
			fmt.Println("Cache clear cancelled")
			return nil
		}
	}

	if err := sendOverrideCommand("dedup/clear"); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	fmt.Println("Dedup caches cleared")
	return nil
}

func sendOverrideCommand(path string) error {
	apiHost := viper.GetString("server.host")
	if apiHost == "" || apiHost == "0.0.0.0" {
		apiHost = "localhost"
	}
	apiPort := viper.GetInt("server.port")
	if apiPort == 0 {
		apiPort = 8080
	}

	url := fmt.Sprintf("http://%s:%d/api/v1/%s", apiHost, apiPort, path)

	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send override command: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("override command failed with status: %s", resp.Status)
	}

	return nil
}
