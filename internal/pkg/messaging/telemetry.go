package messaging

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/shandysiswandi/gostream/internal/pkg/instrument"
)

const instrumentationName = "github.com/shandysiswandi/gostream/internal/pkg/messaging"

type telemetry struct {
	system   string
	tracer   trace.Tracer
	sent     metric.Int64Counter
	received metric.Int64Counter
}

func newTelemetry(inst instrument.Instrumentation, system string) *telemetry {
	if inst == nil {
		inst = instrument.NewNoop()
	}

	meter := inst.Meter(instrumentationName)
	// Counter creation only fails on an invalid name, in which case the
	// returned noop counter is still safe to use.
	sent, _ := meter.Int64Counter("messaging.sent", metric.WithDescription("Messages handed to the broker, by outcome."))
	received, _ := meter.Int64Counter("messaging.received", metric.WithDescription("Messages received from the broker, by outcome."))

	return &telemetry{
		system:   system,
		tracer:   inst.Tracer(instrumentationName),
		sent:     sent,
		received: received,
	}
}

func (t *telemetry) attrs(topic string, err error) metric.MeasurementOption {
	status := "ok"
	if err != nil {
		status = "error"
	}
	return metric.WithAttributes(
		attribute.String("messaging.system", t.system),
		attribute.String("messaging.destination.name", topic),
		attribute.String("status", status),
	)
}

func (t *telemetry) startSend(ctx context.Context, topic string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "messaging.send", trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", t.system),
			attribute.String("messaging.destination.name", topic),
		))
}

func (t *telemetry) observeDelivery(h DeliveryHandler) DeliveryHandler {
	return func(ctx context.Context, messageID string, err error) {
		t.sent.Add(ctx, 1, t.attrs(TopicFromContext(ctx), err))
		h(ctx, messageID, err)
	}
}

func (t *telemetry) observeReceive(h ReceiveHandler) ReceiveHandler {
	return func(ctx context.Context, msg Message, err error) {
		topic := TopicFromContext(ctx)
		ctx, span := t.tracer.Start(ctx, "messaging.receive", trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				attribute.String("messaging.system", t.system),
				attribute.String("messaging.destination.name", topic),
			))
		defer span.End()

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "receive failed")
		}
		t.received.Add(ctx, 1, t.attrs(topic, err))
		h(ctx, msg, err)
	}
}
