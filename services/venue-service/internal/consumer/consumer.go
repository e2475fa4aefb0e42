package consumer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/courtdesk/libs/db"
	"github.com/md-rashed-zaman/courtdesk/libs/kafkax"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/inbox"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/codes"
)

// Handler applies one message inside the transaction that also records it in
// the inbox, so a message is either fully applied and remembered or neither.
type Handler func(ctx context.Context, tx pgx.Tx, meta kafkax.EventMeta, msg kafka.Message) error

var errDuplicate = errors.New("duplicate event")

type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	pool    *db.Pool
	inbox   *inbox.Repository
	handler Handler
}

type Config struct {
	Brokers string
	GroupID string
	Topics  []string
}

func New(logger *slog.Logger, pool *db.Pool, inboxRepo *inbox.Repository, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkax.SplitBrokers(cfg.Brokers),
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return &Consumer{
		reader:  reader,
		logger:  logger,
		pool:    pool,
		inbox:   inboxRepo,
		handler: handler,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}
		c.consume(ctx, msg)
	}
}

func (c *Consumer) consume(ctx context.Context, msg kafka.Message) {
	meta := kafkax.ExtractEventMeta(msg)
	ctxSpan, span := kafkax.StartConsumeSpan(ctx, msg)
	defer span.End()

	err := c.pool.InTx(ctxSpan, func(tx pgx.Tx) error {
		ok, err := c.inbox.Record(ctxSpan, tx, meta.EventID, meta.EventType)
		if err != nil {
			return err
		}
		if !ok {
			return errDuplicate
		}
		return c.handler(ctxSpan, tx, meta, msg)
	})
	switch {
	case errors.Is(err, errDuplicate):
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
	case err != nil:
		c.logger.Error("handler error", "err", err, "event_id", meta.EventID, "event_type", meta.EventType)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
