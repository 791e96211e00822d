package emit

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns each Kind-tagged event into an OpenTelemetry span, named
// after event.Kind (falling back to Msg for an event with no Kind set) and
// ended immediately: events are points in time, not durations, so a
// NodeExit's own duration travels as the langgraph.node.duration_ms
// attribute rather than as the span's wall-clock length.
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter returns an OTelEmitter that creates spans on tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

func (o *OTelEmitter) spanName(event Event) string {
	if event.Kind != "" {
		return string(event.Kind)
	}
	return event.Msg
}

// Emit implements Emitter.
func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), o.spanName(event))
	defer span.End()
	o.annotate(span, event)
}

// EmitBatch implements Emitter.
func (o *OTelEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, event := range events {
		_, span := o.tracer.Start(ctx, o.spanName(event))
		o.annotate(span, event)
		span.End()
	}
	return nil
}

// Flush force-flushes the active TracerProvider if it supports it (the SDK
// provider does; the global no-op provider does not).
func (o *OTelEmitter) Flush(ctx context.Context) error {
	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := otel.GetTracerProvider().(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

func (o *OTelEmitter) annotate(span trace.Span, event Event) {
	span.SetAttributes(
		attribute.String("langgraph.kind", string(event.Kind)),
		attribute.String("langgraph.run_id", event.RunID),
		attribute.Int("langgraph.step", event.Step),
		attribute.String("langgraph.node_id", event.NodeID),
	)
	o.addMetadataAttributes(span, event.Meta)
	if errStr, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, errStr)
		span.RecordError(fmt.Errorf("%s", errStr))
	}
}

// addMetadataAttributes maps an event's Meta onto span attributes, renaming
// the cost/latency/stream keys the engine and cost-tracking callers use onto
// the langgraph.* namespace OpenTelemetry consumers expect.
func (o *OTelEmitter) addMetadataAttributes(span trace.Span, meta map[string]interface{}) {
	for key, value := range meta {
		attrKey := key
		switch key {
		case "input_tokens":
			attrKey = "langgraph.llm.input_tokens"
		case "output_tokens":
			attrKey = "langgraph.llm.output_tokens"
		case "cost_usd":
			attrKey = "langgraph.llm.cost_usd"
		case "duration_ms":
			attrKey = "langgraph.node.duration_ms"
		case "model":
			attrKey = "langgraph.llm.model"
		case "chunk":
			attrKey = "langgraph.stream.chunk"
		}

		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(attrKey, v))
		case int:
			span.SetAttributes(attribute.Int(attrKey, v))
		case int64:
			span.SetAttributes(attribute.Int64(attrKey, v))
		case float64:
			span.SetAttributes(attribute.Float64(attrKey, v))
		case bool:
			span.SetAttributes(attribute.Bool(attrKey, v))
		case time.Duration:
			span.SetAttributes(attribute.Int64(attrKey, int64(v/time.Millisecond)))
		default:
			span.SetAttributes(attribute.String(attrKey, fmt.Sprintf("%v", v)))
		}
	}
}
