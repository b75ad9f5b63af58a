package app

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/fx"

	"github.com/arb-engine/flashloan-arb-engine/internal/api"
	"github.com/arb-engine/flashloan-arb-engine/internal/config"
	"github.com/arb-engine/flashloan-arb-engine/pkg/chain"
	"github.com/arb-engine/flashloan-arb-engine/pkg/dedup"
	"github.com/arb-engine/flashloan-arb-engine/pkg/gas"
	"github.com/arb-engine/flashloan-arb-engine/pkg/interfaces"
	"github.com/arb-engine/flashloan-arb-engine/pkg/metrics"
	"github.com/arb-engine/flashloan-arb-engine/pkg/pipeline"
	"github.com/arb-engine/flashloan-arb-engine/pkg/profit"
	"github.com/arb-engine/flashloan-arb-engine/pkg/risk"
	"github.com/arb-engine/flashloan-arb-engine/pkg/scanner"
	"github.com/arb-engine/flashloan-arb-engine/pkg/timing"
	"github.com/arb-engine/flashloan-arb-engine/pkg/venue"
)

// Application owns the wired engine and its outer surfaces.
type Application struct {
	config      *config.Config
	chainClient *chain.Client
	riskCtrl    *risk.Controller
	engine      *pipeline.Engine
	apiServer   *api.Server
	collector   *metrics.Collector
	headFeed    *chain.HeadFeed

	// runCancel stops the background loops that outlive the fx start hook.
	runCancel context.CancelFunc
}

// NewApplication constructs every component from configuration and wires
// the pipeline. Construction dials the RPC endpoint; it fails fast when the
// endpoint or the signing key is unusable.
func NewApplication(cfg *config.Config) (*Application, error) {
	collector := metrics.NewCollector()

	dialCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	chainClient, err := chain.NewClient(dialCtx, &chain.Config{
		RPCURL:         cfg.RPC.URL,
		PrivateKey:     cfg.RPC.PrivateKey,
		ChainID:        big.NewInt(cfg.RPC.ChainID),
		ReceiptTimeout: cfg.RPC.ReceiptTimeout,
		ReceiptPoll:    cfg.RPC.ReceiptPoll,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chain client: %w", err)
	}

	venues, err := buildVenues(cfg.Venues, chainClient)
	if err != nil {
		return nil, err
	}

	dedupEngine, err := dedup.NewEngine(&dedup.Config{
		MaxCacheSize: cfg.Dedup.MaxCacheSize,
		DedupWindow:  cfg.Dedup.DedupWindow,
		CacheTimeout: cfg.Dedup.CacheTimeout,
		Lightweight:  cfg.Dedup.Lightweight,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create dedup engine: %w", err)
	}

	maxDailyLoss, err := parseWei("risk.max_daily_loss", cfg.Risk.MaxDailyLoss)
	if err != nil {
		return nil, err
	}
	minBalance, err := parseWei("risk.min_balance", cfg.Risk.MinBalance)
	if err != nil {
		return nil, err
	}

	riskCtrl, err := risk.NewController(&risk.Config{
		MaxDailyLoss:           maxDailyLoss,
		MaxConsecutiveFailures: cfg.Risk.MaxConsecutiveFailures,
		MaxDrawdown:            cfg.Risk.MaxDrawdown,
		MinBalance:             minBalance,
		CooldownPeriod:         cfg.Risk.CooldownPeriod,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create risk controller: %w", err)
	}

	gasCtrl, err := gas.NewController(&gas.Config{
		MaxGasPriceGwei:      cfg.Gas.MaxGasPriceGwei,
		TargetGasPriceGwei:   cfg.Gas.TargetGasPriceGwei,
		PeakHourMultiplier:   cfg.Gas.PeakHourMultiplier,
		HistoricalBlockCount: cfg.Gas.HistoricalBlockCount,
		CacheTimeout:         cfg.Gas.CacheTimeout,
		CompetitiveMarkup:    cfg.Gas.CompetitiveMarkup,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gas controller: %w", err)
	}

	timingCtrl, err := timing.NewController(&timing.Config{
		MinTimeBetweenTrades: cfg.Timing.MinTimeBetweenTrades,
		MaxRandomDelay:       cfg.Timing.MaxRandomDelay,
		BundleSize:           cfg.Timing.BundleSize,
		SlippageMultiplier:   cfg.Timing.SlippageMultiplier,
		SlippageCapBps:       cfg.Timing.SlippageCapBps,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create timing controller: %w", err)
	}

	sizing, err := profit.NewCalculator(&profit.Config{
		MaxReservesBps: cfg.Profit.MaxReservesBps,
		DrawBps:        cfg.Profit.DrawBps,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create profit calculator: %w", err)
	}

	probeAmount, err := parseWei("scanner.probe_amount", cfg.Scanner.ProbeAmount)
	if err != nil {
		return nil, err
	}

	cycles := make([]scanner.Cycle, 0, len(cfg.Scanner.Cycles))
	for _, cc := range cfg.Scanner.Cycles {
		path := make([]common.Address, 0, len(cc.Path))
		for _, addr := range cc.Path {
			path = append(path, common.HexToAddress(addr))
		}
		cycles = append(cycles, scanner.Cycle{Path: path, Venues: cc.Venues})
	}

	scan, err := scanner.NewScanner(&scanner.Config{
		ScanInterval:    cfg.Scanner.ScanInterval,
		MinProfitBps:    cfg.Scanner.MinProfitBps,
		ProbeAmount:     probeAmount,
		Lightweight:     cfg.Dedup.Lightweight,
		SpeedMultiplier: cfg.Scanner.SpeedMultiplier,
	}, cycles, venues, dedupEngine)
	if err != nil {
		return nil, fmt.Errorf("failed to create scanner: %w", err)
	}

	orch, err := pipeline.NewOrchestrator(&pipeline.Config{
		RevalidationToleranceBps: cfg.Pipeline.RevalidationToleranceBps,
		BaseSlippageBps:          cfg.Pipeline.BaseSlippageBps,
		GasUnits:                 cfg.Pipeline.GasUnits,
		SimulationTimeout:        cfg.Pipeline.SimulationTimeout,
		BroadcastTimeout:         cfg.Pipeline.BroadcastTimeout,
		BundleMaxWait:            cfg.Pipeline.BundleMaxWait,
		Contract:                 common.HexToAddress(cfg.Pipeline.Contract),
		Executor:                 chainClient.From(),
	}, dedupEngine, riskCtrl, gasCtrl, timingCtrl, sizing, chainClient, venues, collector, scan.LatestCycle)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	queue := pipeline.NewDispatchQueue(cfg.Pipeline.QueueCapacity)
	pool := pipeline.NewWorkerPool(&pipeline.WorkerPoolConfig{
		PoolSize:        cfg.Pipeline.WorkerPoolSize,
		QueueSize:       cfg.Pipeline.QueueCapacity,
		MaxJobTimeout:   cfg.Pipeline.BroadcastTimeout + cfg.Timing.MinTimeBetweenTrades,
		ShutdownTimeout: 10 * time.Second,
	})

	engine, err := pipeline.NewEngine(scan, orch, queue, pool, collector)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline engine: %w", err)
	}

	apiServer := api.NewServer(cfg, collector, riskCtrl, gasCtrl, dedupEngine, engine, collector)

	// Per-block base fee observations feed the gas history between trades.
	headFeed := chain.NewHeadFeed(&chain.HeadFeedConfig{WSURL: cfg.RPC.WSURL}, chainClient, func(gwei float64, block uint64) {
		gasCtrl.Observe(gwei)
		collector.UpdateGasPrice(gwei)
	})

	return &Application{
		config:      cfg,
		chainClient: chainClient,
		riskCtrl:    riskCtrl,
		engine:      engine,
		apiServer:   apiServer,
		collector:   collector,
		headFeed:    headFeed,
	}, nil
}

// Start seeds the risk controller with the live balance and launches the
// pipeline and the API server.
func (a *Application) Start(ctx context.Context) error {
	log.Printf("Starting arbitrage engine on %s:%d", a.config.Server.Host, a.config.Server.Port)

	balanceCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	balance, err := a.chainClient.BalanceOf(balanceCtx, a.chainClient.From())
	if err != nil {
		return fmt.Errorf("failed to fetch executor balance: %w", err)
	}
	a.riskCtrl.Initialize(balance)
	a.collector.UpdateBalance(weiToFloat(balance))

	// The start hook's context ends with startup; background loops get
	// their own.
	runCtx, runCancel := context.WithCancel(context.Background())
	a.runCancel = runCancel

	if err := a.engine.Start(runCtx); err != nil {
		runCancel()
		return fmt.Errorf("failed to start pipeline engine: %w", err)
	}

	if err := a.apiServer.Start(runCtx); err != nil {
		runCancel()
		return fmt.Errorf("failed to start API server: %w", err)
	}

	go a.headFeed.Run(runCtx)

	if a.config.Monitoring.Enabled {
		go func() {
			addr := fmt.Sprintf(":%d", a.config.Monitoring.MetricsPort)
			if err := metrics.StartPrometheusServer(addr); err != nil {
				log.Printf("Metrics server error: %v", err)
			}
		}()
	}

	log.Println("Arbitrage engine started")
	return nil
}

// Stop shuts everything down in dependency order.
func (a *Application) Stop(ctx context.Context) error {
	log.Println("Stopping arbitrage engine...")

	if err := a.engine.Stop(ctx); err != nil {
		log.Printf("Error stopping pipeline engine: %v", err)
	}
	if err := a.apiServer.Stop(ctx); err != nil {
		log.Printf("Error stopping API server: %v", err)
	}
	if a.runCancel != nil {
		a.runCancel()
	}
	a.chainClient.Close()

	log.Println("Arbitrage engine stopped")
	return nil
}

// buildVenues creates one adapter per configured venue, sharing the chain
// client's RPC connection.
func buildVenues(configs []config.VenueConfig, chainClient *chain.Client) (map[string]interfaces.VenueAdapter, error) {
	venues := make(map[string]interfaces.VenueAdapter, len(configs))
	for _, vc := range configs {
		pools := make(map[string]common.Address, len(vc.Pools))
		for pair, addr := range vc.Pools {
			pools[pair] = common.HexToAddress(addr)
		}

		adapter, err := venue.NewRouterAdapter(vc.Name, common.HexToAddress(vc.Router), pools, chainClient.Eth())
		if err != nil {
			return nil, fmt.Errorf("failed to create venue %q: %w", vc.Name, err)
		}
		venues[vc.Name] = adapter
	}
	return venues, nil
}

// parseWei parses a base-10 wei amount from configuration.
func parseWei(key, value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid wei amount for %s: %q", key, value)
	}
	return amount, nil
}

func weiToFloat(wei *big.Int) float64 {
	f, _ := new(big.Float).SetInt(wei).Float64()
	return f
}

// Module provides the fx module for dependency injection.
var Module = fx.Options(
	fx.Provide(
		NewApplication,
	),
)
