package events

import (
	"context"
	"errors"
	"time"

	"github.com/cozy-creator/image-ingest/internal/mq"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

type EventType string

const (
	ImageUploaded        EventType = "image.uploaded"
	ImageDeleted         EventType = "image.deleted"
	PrimaryChanged       EventType = "image.primary_changed"
	ProductImagesDeleted EventType = "product.images_deleted"
	SiteImageReplaced    EventType = "site_image.replaced"
	ObjectsReclaimed     EventType = "storage.reclaimed"
)

type ImageEvent struct {
	Type       EventType `msgpack:"type"`
	ProductID  *int64    `msgpack:"product_id,omitempty"`
	GroupKey   string    `msgpack:"group_key,omitempty"`
	Slot       string    `msgpack:"slot,omitempty"`
	FileHash   string    `msgpack:"file_hash,omitempty"`
	Dedup      bool      `msgpack:"dedup,omitempty"`
	OccurredAt time.Time `msgpack:"occurred_at"`
}

func Encode(event ImageEvent) ([]byte, error) {
	return msgpack.Marshal(&event)
}

func Decode(data []byte) (ImageEvent, error) {
	var event ImageEvent
	err := msgpack.Unmarshal(data, &event)
	return event, err
}

type Publisher interface {
	Publish(ctx context.Context, event ImageEvent)
}

// MQPublisher sends events to a topic. Failures are logged and swallowed;
// events describe changes that already committed.
type MQPublisher struct {
	queue  mq.MQ
	topic  string
	logger *zap.Logger
}

func NewMQPublisher(queue mq.MQ, topic string, logger *zap.Logger) *MQPublisher {
	return &MQPublisher{queue: queue, topic: topic, logger: logger}
}

func (p *MQPublisher) Publish(ctx context.Context, event ImageEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := Encode(event)
	if err != nil {
		p.logger.Warn("failed to encode event", zap.String("type", string(event.Type)), zap.Error(err))
		return
	}

	if err := p.queue.Publish(context.WithoutCancel(ctx), p.topic, data); err != nil {
		p.logger.Warn("failed to publish event",
			zap.String("type", string(event.Type)),
			zap.String("topic", p.topic),
			zap.Error(err),
		)
	}
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ImageEvent) {}

// Drain receives events from topic and writes each one to the audit log until
// ctx is cancelled or the queue closes.
func Drain(ctx context.Context, queue mq.MQ, topic string, logger *zap.Logger) error {
	for {
		message, err := queue.Receive(ctx, topic)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, mq.ErrQueueClosed) || errors.Is(err, mq.ErrTopicClosed) {
				return nil
			}
			return err
		}

		data, err := queue.GetMessageData(message)
		if err != nil {
			logger.Warn("failed to read event", zap.Error(err))
			continue
		}

		event, err := Decode(data)
		if err != nil {
			logger.Warn("failed to decode event", zap.Error(err))
		} else {
			fields := []zap.Field{
				zap.String("type", string(event.Type)),
				zap.Time("occurred_at", event.OccurredAt),
			}
			if event.ProductID != nil {
				fields = append(fields, zap.Int64("product_id", *event.ProductID))
			}
			if event.GroupKey != "" {
				fields = append(fields, zap.String("group_key", event.GroupKey))
			}
			if event.Slot != "" {
				fields = append(fields, zap.String("slot", event.Slot))
			}
			if event.FileHash != "" {
				fields = append(fields, zap.String("hash", event.FileHash), zap.Bool("dedup", event.Dedup))
			}
			logger.Info("image event", fields...)
		}

		if err := queue.Ack(topic, message); err != nil {
			logger.Warn("failed to ack event", zap.Error(err))
		}
	}
}
