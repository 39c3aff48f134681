package settlement

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/pmm-go/logconfig"
)

type ServerConfig struct {
	RedisOpt    asynq.RedisConnOpt
	Concurrency int
}

func traced(ctx context.Context, task *asynq.Task, tradeId string) context.Context {
	taskId, _ := asynq.GetTaskID(ctx)
	retried, _ := asynq.GetRetryCount(ctx)
	return logconfig.WithTrace(ctx, logger.WithFields(logger.Fields{
		"traceId": uuid.NewString(),
		"task":    task.Type(),
		"taskId":  taskId,
		"retried": retried,
		"tradeId": tradeId,
	}))
}

func (w *TransferWorker) HandleTask(ctx context.Context, task *asynq.Task) error {
	p, err := decodeTransfer(task.Payload())
	if err != nil {
		return errors.Join(err, asynq.SkipRetry)
	}
	return w.Process(traced(ctx, task, p.TradeId), p)
}

func (w *SubmitWorker) HandleTask(ctx context.Context, task *asynq.Task) error {
	p, err := decodeSubmit(task.Payload())
	if err != nil {
		return errors.Join(err, asynq.SkipRetry)
	}
	return w.Process(traced(ctx, task, p.TradeId), p)
}

func NewServeMux(transfer *TransferWorker, submit *SubmitWorker) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeTransfer, transfer.HandleTask)
	mux.HandleFunc(TaskTypeSubmit, submit.HandleTask)
	return mux
}

// Server consumes both settlement queues.
type Server struct {
	srv *asynq.Server
	mux *asynq.ServeMux
}

func NewServer(cfg ServerConfig, mux *asynq.ServeMux) *Server {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	srv := asynq.NewServer(cfg.RedisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			TransferQueue: 1,
			SubmitQueue:   1,
		},
		Logger:   logconfig.NewAsynqLogger(),
		LogLevel: asynq.InfoLevel,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logconfig.FromContext(ctx).WithFields(logger.Fields{
				"task":    task.Type(),
				"payload": string(task.Payload()),
				"err":     err,
			}).Error("settlement job failed")
		}),
	})
	return &Server{srv: srv, mux: mux}
}

// Start blocks until ctx is done, then drains in flight jobs.
func (s *Server) Start(ctx context.Context) error {
	if err := s.srv.Start(s.mux); err != nil {
		return err
	}
	logger.Info("settlement workers started")

	<-ctx.Done()
	s.srv.Shutdown()
	logger.Info("settlement workers stopped")
	return ctx.Err()
}
