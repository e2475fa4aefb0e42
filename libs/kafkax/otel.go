package kafkax

import (
	"context"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/md-rashed-zaman/courtdesk/libs/kafkax"

// StartConsumeSpan continues the producer's trace from msg's headers under a
// consumer span. The caller ends the span.
func StartConsumeSpan(ctx context.Context, msg kafka.Message) (context.Context, trace.Span) {
	meta := ExtractEventMeta(msg)
	ctx = otel.GetTextMapPropagator().Extract(ctx, headerCarrier{headers: &msg.Headers})
	return otel.Tracer(tracerName).Start(ctx, "kafka.consume "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(append(messageAttributes(msg.Topic, meta, msg.Key),
			attribute.Int("messaging.kafka.destination.partition", msg.Partition),
			attribute.String("messaging.kafka.message.offset", strconv.FormatInt(msg.Offset, 10)),
		)...),
	)
}

// StartPublishSpan opens a producer span for msg and writes the span's trace
// context into msg's headers. The caller ends the span.
func StartPublishSpan(ctx context.Context, msg *kafka.Message) trace.Span {
	meta := ExtractEventMeta(*msg)
	ctx, span := otel.Tracer(tracerName).Start(ctx, "kafka.publish "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(messageAttributes(msg.Topic, meta, msg.Key)...),
	)
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{headers: &msg.Headers})
	return span
}

func messageAttributes(topic string, meta EventMeta, key []byte) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination.name", topic),
		attribute.String("messaging.message.id", meta.EventID),
		attribute.String("messaging.kafka.message.key", string(key)),
		attribute.String("courtdesk.event_type", meta.EventType),
	}
}

// headerCarrier lets the propagator read and overwrite message headers in
// place.
type headerCarrier struct {
	headers *[]kafka.Header
}

func (c headerCarrier) Get(key string) string {
	return HeaderValue(*c.headers, key)
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func (c headerCarrier) Set(key, value string) {
	hs := *c.headers
	for i := range hs {
		if hs[i].Key == key {
			hs[i].Value = []byte(value)
			return
		}
	}
	*c.headers = append(hs, kafka.Header{Key: key, Value: []byte(value)})
}

var _ propagation.TextMapCarrier = headerCarrier{}
