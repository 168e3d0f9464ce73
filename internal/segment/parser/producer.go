package parser

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Producer is the entry point for envelopes. Send queues agent envelopes for the worker pool,
// Call parses a buffered envelope inline and is used as the retry buffer callback.
type Producer struct {
	parser    SegmentParser
	envelopes chan []byte
	workers   int
	logger    *zap.Logger
}

func NewProducer(parser SegmentParser, workers int, queueSize int, logger *zap.Logger) *Producer {
	if workers <= 0 {
		workers = 1
	}
	return &Producer{
		parser:    parser,
		envelopes: make(chan []byte, queueSize),
		workers:   workers,
		logger:    logger,
	}
}

// Send blocks until a worker slot accepts the envelope or ctx is done.
func (p *Producer) Send(ctx context.Context, raw []byte) error {
	select {
	case p.envelopes <- raw:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Producer) Call(ctx context.Context, raw []byte) bool {
	return p.parser.Parse(ctx, raw, Buffer)
}

// Run parses queued envelopes on the configured number of workers until ctx is done, then
// parses whatever is still queued before returning.
func (p *Producer) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.work(ctx)
		}()
	}
	wg.Wait()

	drainCtx := context.WithoutCancel(ctx)
	for {
		select {
		case raw := <-p.envelopes:
			p.parser.Parse(drainCtx, raw, Agent)
		default:
			p.logger.Info("Segment workers stopped")
			return nil
		}
	}
}

func (p *Producer) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw := <-p.envelopes:
			p.parser.Parse(ctx, raw, Agent)
		}
	}
}
