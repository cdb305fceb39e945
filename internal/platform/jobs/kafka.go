package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaQueue produces jobs onto a single topic, keyed by job type.
type KafkaQueue struct {
	writer MessageWriter
}

func NewKafkaQueue(w MessageWriter) *KafkaQueue {
	return &KafkaQueue{writer: w}
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
}

func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
}

func (q *KafkaQueue) Enqueue(ctx context.Context, jobType string, payload any) error {
	job, err := NewJob(jobType, payload)
	if err != nil {
		return err
	}
	return q.write(ctx, job)
}

func (q *KafkaQueue) write(ctx context.Context, job Job) error {
	value, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.writer.WriteMessages(ctx, kafka.Message{Key: []byte(job.Type), Value: value}); err != nil {
		return fmt.Errorf("enqueue %s: %w", job.Type, err)
	}
	return nil
}

func (q *KafkaQueue) Close() error {
	return q.writer.Close()
}

// Worker consumes jobs from a consumer group. Offsets are committed after a
// job has been handled, requeued or dropped.
type Worker struct {
	reader     MessageReader
	queue      *KafkaQueue
	dispatcher *Dispatcher
	logger     zerolog.Logger
}

func NewWorker(r MessageReader, q *KafkaQueue, d *Dispatcher, logger zerolog.Logger) *Worker {
	return &Worker{reader: r, queue: q, dispatcher: d, logger: logger}
}

// Run blocks until ctx is cancelled or the reader fails.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Strs("job_types", w.dispatcher.Types()).Msg("job worker started")
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("fetch job: %w", err)
		}

		var job Job
		if err := json.Unmarshal(msg.Value, &job); err != nil {
			w.logger.Error().Err(err).Int64("offset", msg.Offset).Msg("dropping malformed job message")
		} else {
			// Retries are written back with a NotBefore; hold the partition
			// until then. Backoffs are short.
			if wait := job.NotBefore.Sub(w.dispatcher.now()); wait > 0 {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(wait):
				}
			}
			w.dispatcher.process(ctx, job, func(next Job) error {
				return w.queue.write(ctx, next)
			})
		}

		if err := w.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit job offset: %w", err)
		}
	}
}
