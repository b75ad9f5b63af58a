package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/arb-engine/flashloan-arb-engine/internal/app"
	"github.com/arb-engine/flashloan-arb-engine/internal/config"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the arbitrage engine",
	Long: `Start the arbitrage engine. The scanner probes the configured cycles
continuously and profitable candidates flow through the execution pipeline
until the process is stopped.`,
	RunE: runStart,
}

var lightweightMode bool

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().BoolVar(&lightweightMode, "lightweight", false, "run with reduced cache footprint and faster scans")
	startCmd.Flags().String("bind", "", "bind address for API server (overrides config)")
	startCmd.Flags().Int("port", 0, "port for API server (overrides config)")

	viper.BindPFlag("dedup.lightweight", startCmd.Flags().Lookup("lightweight"))
	viper.BindPFlag("server.host", startCmd.Flags().Lookup("bind"))
	viper.BindPFlag("server.port", startCmd.Flags().Lookup("port"))
}

func runStart(cmd *cobra.Command, args []string) error {
	fmt.Println("Starting arbitrage engine...")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if viper.GetBool("debug") {
		fmt.Printf("Configuration loaded: %+v\n", cfg)
	}

	fxApp := fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
		),
		app.Module,
		fx.Invoke(func(lifecycle fx.Lifecycle, application *app.Application) {
			lifecycle.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					return application.Start(ctx)
				},
				OnStop: func(ctx context.Context) error {
					return application.Stop(ctx)
				},
			})
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutdown signal received, stopping engine...")
		cancel()
	}()

	if err := fxApp.Start(ctx); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	<-ctx.Done()

	if err := fxApp.Stop(context.Background()); err != nil {
		fmt.Printf("Error during shutdown: %v\n", err)
	}

	fmt.Println("Arbitrage engine stopped")
	return nil
}
