package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/enfinyte/umem/internal/config"
	"github.com/enfinyte/umem/internal/controller"
	"github.com/enfinyte/umem/internal/core"
	"github.com/enfinyte/umem/pkg/logger"
)

// captureMessage is the wire format of a capture request on the ingest topic.
type captureMessage struct {
	OwnerID string `json:"owner_id"`
	AgentID string `json:"agent_id,omitempty"`
	Content string `json:"content"`
}

// KafkaConsumer drains capture requests from a Kafka topic and stores each as
// a memory. Offsets are committed only after a message is fully processed, so
// a crash replays rather than loses work.
type KafkaConsumer struct {
	reader     *kafka.Reader
	controller *controller.Controller
	log        *logger.Logger
}

// NewKafkaConsumer creates a consumer for the configured topic.
func NewKafkaConsumer(cfg config.KafkaConfig, ctrl *controller.Controller, log *logger.Logger) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
	})
	return &KafkaConsumer{reader: reader, controller: ctrl, log: log}
}

// fetchBackoff spaces out retries when the broker is unreachable.
const fetchBackoff = time.Second

// Start consumes until ctx is cancelled. Malformed and rejected messages are
// logged and committed so they do not wedge the partition.
func (c *KafkaConsumer) Start(ctx context.Context) {
	go func() {
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
					return
				}
				c.log.WithError(err).Error("failed to fetch message")
				select {
				case <-ctx.Done():
					return
				case <-time.After(fetchBackoff):
				}
				continue
			}

			if err := c.handle(ctx, msg.Value); err != nil {
				c.log.WithError(err).Error("failed to capture message as memory")
			}

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				c.log.WithError(err).Error("failed to commit message")
			}
		}
	}()
}

func (c *KafkaConsumer) handle(ctx context.Context, value []byte) error {
	var msg captureMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return err
	}

	tctx := core.TenantContext{OwnerID: msg.OwnerID, AgentID: msg.AgentID}
	_, err := c.controller.Create(ctx, tctx, msg.Content)
	return err
}

// Close shuts the underlying reader down.
func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
