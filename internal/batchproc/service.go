package batchproc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gabapcia/txbatch/internal/batchvalidator"
	"github.com/gabapcia/txbatch/internal/pkg/logger"
)

const batchChannelBufferSize = 10

// Start launches a background loop that drains the buffer every drain
// interval, and immediately whenever the flush threshold is reached.
// Accepted batches are sent on the returned channel. Empty drains are
// skipped silently; other rejections and faults go to the RejectionHandler.
//
// The channel is closed once the loop exits after Close or cancellation of
// ctx. A batch accepted by a drain that was in flight at that moment is still
// sent before the channel closes, so callers must keep receiving until it is
// closed. Transactions still pending stay in the buffer and can be collected
// with a final Drain.
//
// Returns ErrServiceAlreadyStarted if the loop is already running.
func (p *Processor[T]) Start(ctx context.Context) (<-chan Batch[T], error) {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.isStarted {
		return nil, ErrServiceAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	batchCh := make(chan Batch[T], batchChannelBufferSize)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(batchCh)

		p.runDrainLoop(ctx, batchCh)
	}()

	p.closeFunc = func() {
		cancel()
		wg.Wait()
	}
	p.isStarted = true
	return batchCh, nil
}

// Close stops the drain loop and waits for it to exit. A drain in flight is
// allowed to finish first. It is safe to call Close on a Processor that was
// never started.
func (p *Processor[T]) Close() {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.closeFunc != nil {
		p.closeFunc()
	}

	p.closeFunc = nil
	p.isStarted = false
}

func (p *Processor[T]) runDrainLoop(ctx context.Context, batchCh chan<- Batch[T]) {
	ticker := time.NewTicker(p.cfg.drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.flushCh:
		}

		// Both cases may be ready at once; select picks at random.
		if ctx.Err() != nil {
			return
		}
		p.drainAndEmit(ctx, batchCh)
	}
}

// drainAndEmit runs one drain and routes its outcome. An accepted batch has
// already left the buffer, so it is sent even if ctx is done by now.
func (p *Processor[T]) drainAndEmit(ctx context.Context, batchCh chan<- Batch[T]) {
	batch, err := p.Drain(ctx)
	switch {
	case err == nil:
		batchCh <- batch
	case errors.Is(err, ErrDrainInProgress):
		logger.Debug(ctx, "drain skipped, another drain is in progress")
	case errors.Is(err, batchvalidator.ErrEmptyBatch):
	default:
		p.cfg.rejectionHandler(ctx, err)
	}
}
