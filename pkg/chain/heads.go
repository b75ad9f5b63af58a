package chain

import (
	"context"
	"log"
	"math/big"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// HeadHandler receives one observation per new block: the base fee in gwei
// and the block number.
type HeadHandler func(baseFeeGwei float64, block uint64)

// HeadFeedConfig holds the block head feed configuration.
type HeadFeedConfig struct {
	// WSURL is an optional websocket endpoint for the newHeads
	// subscription. When empty the feed polls over the main RPC client.
	WSURL          string
	PollInterval   time.Duration
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration
}

// DefaultHeadFeedConfig returns the default feed configuration.
func DefaultHeadFeedConfig() *HeadFeedConfig {
	return &HeadFeedConfig{
		PollInterval:   2 * time.Second,
		BaseRetryDelay: time.Second,
		MaxRetryDelay:  30 * time.Second,
	}
}

// HeadFeed delivers per-block base fee observations. It prefers a newHeads
// subscription and degrades to polling when no websocket endpoint is
// configured or the subscription keeps failing. Reconnects use exponential
// backoff.
type HeadFeed struct {
	config  *HeadFeedConfig
	client  *Client
	handler HeadHandler
}

// NewHeadFeed creates a head feed over the chain client.
func NewHeadFeed(cfg *HeadFeedConfig, client *Client, handler HeadHandler) *HeadFeed {
	if cfg == nil {
		cfg = DefaultHeadFeedConfig()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.BaseRetryDelay <= 0 {
		cfg.BaseRetryDelay = time.Second
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = 30 * time.Second
	}
	return &HeadFeed{config: cfg, client: client, handler: handler}
}

// Run blocks until the context is cancelled.
func (f *HeadFeed) Run(ctx context.Context) {
	if f.config.WSURL == "" {
		f.poll(ctx)
		return
	}

	retryDelay := f.config.BaseRetryDelay
	for {
		err := f.subscribe(ctx)
		if ctx.Err() != nil {
			return
		}
		log.Printf("Head subscription dropped: %v (retrying in %s)", err, retryDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay):
		}

		retryDelay *= 2
		if retryDelay > f.config.MaxRetryDelay {
			retryDelay = f.config.MaxRetryDelay
		}
	}
}

// subscribe consumes newHeads until the subscription fails.
func (f *HeadFeed) subscribe(ctx context.Context) error {
	ws, err := ethclient.DialContext(ctx, f.config.WSURL)
	if err != nil {
		return err
	}
	defer ws.Close()

	heads := make(chan *ethtypes.Header, 16)
	sub, err := ws.SubscribeNewHead(ctx, heads)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case head := <-heads:
			f.deliver(head)
		}
	}
}

// poll fetches the latest header on an interval. Duplicate blocks between
// polls are skipped.
func (f *HeadFeed) poll(ctx context.Context) {
	ticker := time.NewTicker(f.config.PollInterval)
	defer ticker.Stop()

	var lastBlock uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			head, err := f.client.Eth().HeaderByNumber(ctx, nil)
			if err != nil {
				log.Printf("Head poll failed: %v", err)
				continue
			}
			if head.Number.Uint64() == lastBlock {
				continue
			}
			lastBlock = head.Number.Uint64()
			f.deliver(head)
		}
	}
}

func (f *HeadFeed) deliver(head *ethtypes.Header) {
	if f.handler == nil || head == nil {
		return
	}

	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}
	gwei, _ := new(big.Float).Quo(
		new(big.Float).SetInt(baseFee),
		big.NewFloat(1e9),
	).Float64()

	f.handler(gwei, head.Number.Uint64())
}
