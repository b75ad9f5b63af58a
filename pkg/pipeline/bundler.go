package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/arb-engine/flashloan-arb-engine/pkg/interfaces"
	"github.com/arb-engine/flashloan-arb-engine/pkg/types"
)

// broadcastOutcome is delivered to the worker that owns the bundled call.
type broadcastOutcome struct {
	receipt *types.Receipt
	err     error
}

// Bundler groups simulated calls into bundles before broadcast so
// transactions leave in bursts rather than a steady fingerprintable stream.
// The timing controller owns the pending list and flushes it at capacity;
// the bundler adds a deadline flush so a lone call never waits forever.
type Bundler struct {
	timing           interfaces.TimingController
	chain            interfaces.ChainClient
	broadcastTimeout time.Duration
	maxWait          time.Duration

	mu      sync.Mutex
	waiting map[string]chan broadcastOutcome
	timer   *time.Timer
	closed  bool
}

// NewBundler creates a bundler over the timing controller and chain client.
func NewBundler(timing interfaces.TimingController, chain interfaces.ChainClient, broadcastTimeout, maxWait time.Duration) *Bundler {
	return &Bundler{
		timing:           timing,
		chain:            chain,
		broadcastTimeout: broadcastTimeout,
		maxWait:          maxWait,
		waiting:          make(map[string]chan broadcastOutcome),
	}
}

// Submit appends the call to the pending bundle and blocks until the bundle
// containing it is broadcast (or the context is cancelled). The worker that
// fills the bundle broadcasts every call in it.
func (b *Bundler) Submit(ctx context.Context, call *types.FlashLoanCall) (*types.Receipt, error) {
	resultCh := make(chan broadcastOutcome, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("bundler is closed")
	}
	b.waiting[call.OpportunityID] = resultCh
	b.mu.Unlock()

	result := b.timing.Bundle(call)
	if result.Flushed {
		b.stopTimer()
		b.broadcastBundle(result.Bundle)
	} else {
		b.armTimer()
	}

	select {
	case outcome := <-resultCh:
		return outcome.receipt, outcome.err
	case <-ctx.Done():
		b.mu.Lock()
		delete(b.waiting, call.OpportunityID)
		b.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Close flushes any pending calls and rejects further submissions.
func (b *Bundler) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.stopTimer()
	if pending := b.timing.FlushPending(); len(pending) > 0 {
		b.broadcastBundle(pending)
	}
}

// armTimer schedules a deadline flush for a partially filled bundle.
func (b *Bundler) armTimer() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.maxWait, func() {
		if pending := b.timing.FlushPending(); len(pending) > 0 {
			log.Printf("[pipeline] bundle deadline flush of %d call(s)", len(pending))
			b.broadcastBundle(pending)
		}
	})
}

func (b *Bundler) stopTimer() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

// broadcastBundle broadcasts every still-owned call in the bundle back to
// back and delivers each outcome to its waiting worker. A call whose owner
// deregistered (cancelled context, already settled as a failure) is dropped
// without touching the chain: broadcasting it would produce a transaction
// whose outcome nobody records.
func (b *Bundler) broadcastBundle(bundle []*types.FlashLoanCall) {
	for _, call := range bundle {
		ch, ok := b.claim(call.OpportunityID)
		if !ok {
			log.Printf("[pipeline] dropping abandoned bundled call %s", call.OpportunityID)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), b.broadcastTimeout)
		receipt, err := b.chain.Broadcast(ctx, call)
		cancel()
		ch <- broadcastOutcome{receipt: receipt, err: err}
	}
}

// claim removes and returns the waiter channel for the opportunity.
func (b *Bundler) claim(opportunityID string) (chan broadcastOutcome, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.waiting[opportunityID]
	if ok {
		delete(b.waiting, opportunityID)
	}
	return ch, ok
}
