package emitter

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/dwarvesf/custody-backend/internal/utils/config"
	"github.com/dwarvesf/custody-backend/internal/utils/logger"
)

// New returns a Kafka emitter when brokers are configured, otherwise one
// that only logs.
func New(cfg *config.AppConfig, logger *logger.Logger) IEmitter {
	if len(cfg.Kafka.Brokers) == 0 {
		return NewLogEmitter(logger)
	}
	return NewKafkaEmitter(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 5 * time.Second,
	}, logger)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaEmitter struct {
	writer messageWriter
	logger *logger.Logger
	mu     sync.Mutex
}

func NewKafkaEmitter(writer messageWriter, logger *logger.Logger) *KafkaEmitter {
	return &KafkaEmitter{writer: writer, logger: logger}
}

// Emit keys messages by transfer id so one transfer's events stay ordered
// within a partition.
func (k *KafkaEmitter) Emit(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.writer == nil {
		return errors.New("emitter is closed")
	}

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(event.TransferID), 10)),
		Value: value,
	})
	if err != nil {
		return errors.Wrap(err, "write event to kafka")
	}

	k.logger.Debug("[KafkaEmitter][Emit] event published", map[string]string{
		"type":        string(event.Type),
		"transfer_id": strconv.FormatUint(uint64(event.TransferID), 10),
	})
	return nil
}

func (k *KafkaEmitter) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.writer != nil {
		err := k.writer.Close()
		k.writer = nil
		return err
	}
	return nil
}

type LogEmitter struct {
	logger *logger.Logger
}

func NewLogEmitter(logger *logger.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

func (l *LogEmitter) Emit(_ context.Context, event Event) error {
	l.logger.Info("[LogEmitter][Emit] "+string(event.Type), map[string]string{
		"event_id":    event.ID.String(),
		"transfer_id": strconv.FormatUint(uint64(event.TransferID), 10),
		"status":      string(event.Status),
		"tx_id":       event.TxID,
		"reason":      event.Reason,
	})
	return nil
}

func (l *LogEmitter) Close() error {
	return nil
}
