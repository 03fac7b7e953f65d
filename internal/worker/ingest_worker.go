package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"quotelens/internal/app"
	"quotelens/internal/model"
	"quotelens/internal/pkg/logx"
	"quotelens/internal/platform/rabbitmq"
)

// errShuttingDown marks a delivery that arrived after Close and goes back to the queue.
var errShuttingDown = errors.New("ingest worker shutting down")

// JobProcessor runs one ingest job to completion.
type JobProcessor interface {
	Process(ctx context.Context, job model.IngestJob) []app.FileOutcome
}

// IngestWorker consumes ingest jobs published by the upload endpoint. Staged
// files must be readable from this process, so it runs next to the API.
type IngestWorker struct {
	conn      *amqp.Connection
	processor JobProcessor
	queueName string
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIngestWorker(conn *amqp.Connection, processor JobProcessor, queueName string) *IngestWorker {
	return &IngestWorker{
		conn:      conn,
		processor: processor,
		queueName: queueName,
		logger:    logx.Component("ingest-worker"),
	}
}

func (w *IngestWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				if err := w.handle(workerCtx, d.Body); err != nil {
					if errors.Is(err, errShuttingDown) {
						_ = d.Nack(false, true)
						return
					}
					w.logger.Error("ingest job rejected", "correlation_id", d.CorrelationId, "err", err)
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

// handle decodes and runs one job. Per-file failures are logged by the
// processor and never cause a redelivery. A started job runs to completion
// even if the worker is closed meanwhile.
func (w *IngestWorker) handle(ctx context.Context, body []byte) error {
	if ctx.Err() != nil {
		return errShuttingDown
	}
	var job model.IngestJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("decode ingest job failed: %w", err)
	}
	if len(job.Files) == 0 {
		w.logger.Warn("ingest job without files", "conversation_id", job.ConversationID)
		return nil
	}

	outcomes := w.processor.Process(context.WithoutCancel(ctx), job)
	failed := 0
	for _, out := range outcomes {
		if out.Err != nil {
			failed++
		}
	}
	w.logger.Info("ingest job done", "conversation_id", job.ConversationID, "files", len(outcomes), "failed_files", failed)
	return nil
}

func (w *IngestWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
