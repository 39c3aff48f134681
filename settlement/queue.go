package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	logger "github.com/sirupsen/logrus"
)

const (
	TransferQueue    = "transfer_settlement_queue"
	SubmitQueue      = "submit_settlement_queue"
	TaskTypeTransfer = "process_transfer"
	TaskTypeSubmit   = "process_submit"

	DefaultSubmitMaxRetry = 25
	taskTimeout           = 10 * time.Minute
)

var (
	ErrBadPayload = errors.New("malformed job payload")
)

// Producer enqueues settlement jobs.
type Producer interface {
	EnqueueTransfer(ctx context.Context, p *TransferPayload, delay time.Duration) error
	EnqueueSubmit(ctx context.Context, p *SubmitPayload) error
}

// AsynqProducer enqueues on redis through an asynq client.
type AsynqProducer struct {
	client         *asynq.Client
	submitMaxRetry int
}

func NewAsynqProducer(client *asynq.Client, submitMaxRetry int) *AsynqProducer {
	if submitMaxRetry <= 0 {
		submitMaxRetry = DefaultSubmitMaxRetry
	}
	return &AsynqProducer{client: client, submitMaxRetry: submitMaxRetry}
}

// Transfer jobs are never retried by the queue, the worker re-enqueues
// them itself with a bumped retry count.
func newTransferTask(p *TransferPayload, delay time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{
		asynq.Queue(TransferQueue),
		asynq.MaxRetry(0),
		asynq.Timeout(taskTimeout),
	}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}
	return asynq.NewTask(TaskTypeTransfer, data, opts...), nil
}

func newSubmitTask(p *SubmitPayload, maxRetry int) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSubmit, data,
		asynq.Queue(SubmitQueue),
		asynq.MaxRetry(maxRetry),
		asynq.Timeout(taskTimeout),
	), nil
}

func (p *AsynqProducer) EnqueueTransfer(ctx context.Context, payload *TransferPayload, delay time.Duration) error {
	task, err := newTransferTask(payload, delay)
	if err != nil {
		return err
	}
	info, err := p.client.EnqueueContext(ctx, task)
	if err != nil {
		return err
	}
	logger.WithFields(logger.Fields{
		"tradeId":    payload.TradeId,
		"retryCount": payload.RetryCount,
		"taskId":     info.ID,
		"delay":      delay,
	}).Debug("transfer job enqueued")
	return nil
}

func (p *AsynqProducer) EnqueueSubmit(ctx context.Context, payload *SubmitPayload) error {
	task, err := newSubmitTask(payload, p.submitMaxRetry)
	if err != nil {
		return err
	}
	info, err := p.client.EnqueueContext(ctx, task)
	if err != nil {
		return err
	}
	logger.WithFields(logger.Fields{
		"tradeId":     payload.TradeId,
		"paymentTxId": payload.PaymentTxId,
		"taskId":      info.ID,
	}).Debug("submit job enqueued")
	return nil
}
