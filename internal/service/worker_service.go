package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/binlookup-engine/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// LookupProcessor handles one dequeued lookup message.
type LookupProcessor interface {
	Process(ctx context.Context, msg queue.LookupMessage) error
}

// WorkerService runs a pool of consumers over the lookup queue.
type WorkerService struct {
	consumer    queue.Consumer
	processor   LookupProcessor
	logger      *zap.Logger
	concurrency int
}

func NewWorkerService(
	consumer queue.Consumer,
	processor LookupProcessor,
	concurrency int,
	logger *zap.Logger,
) (*WorkerService, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if processor == nil {
		return nil, fmt.Errorf("lookup processor is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		consumer:    consumer,
		processor:   processor,
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

// Start consumes the lookup queue until context cancellation.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queue.LookupQueue),
			)

			err := s.consumer.Consume(groupCtx, queue.LookupQueue, s.processor.Process)
			if err != nil {
				s.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}
