package emit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter creates an OpenTelemetry span per event.
//
// Each span carries the run identity, owning session, node identity and
// class type as attributes, so traces can be filtered per run the same way
// the progress stream is routed per session. Spans for execution_error
// events get error status and the structured cause recorded.
//
// Events represent points in time, so spans are ended immediately; the
// configured span processor batches them for export.
//
// Usage:
//
//	tracer := otel.Tracer("nodeflow")
//	emitter := emit.NewOTelEmitter(tracer)
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an OTelEmitter from a tracer obtained via
// otel.Tracer("service-name").
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit creates and immediately ends a span named after the event kind.
func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), string(event.Kind))
	defer span.End()

	attrs := []attribute.KeyValue{
		attribute.String("nodeflow.run_id", event.RunID),
	}
	if event.SessionID != "" {
		attrs = append(attrs, attribute.String("nodeflow.session_id", event.SessionID))
	}
	if event.NodeID != "" {
		attrs = append(attrs, attribute.String("nodeflow.node_id", event.NodeID))
	}
	if event.ClassType != "" {
		attrs = append(attrs, attribute.String("nodeflow.class_type", event.ClassType))
	}
	if event.Progress != nil {
		attrs = append(attrs,
			attribute.Int("nodeflow.progress.current", event.Progress.Current),
			attribute.Int("nodeflow.progress.total", event.Progress.Total),
		)
	}
	if len(event.Nodes) > 0 {
		attrs = append(attrs, attribute.Int("nodeflow.cached_nodes", len(event.Nodes)))
	}
	for k, v := range event.Meta {
		attrs = append(attrs, attribute.String("nodeflow.meta."+k, fmt.Sprint(v)))
	}
	span.SetAttributes(attrs...)

	if event.Err != nil {
		span.SetStatus(codes.Error, event.Err.Message)
		span.RecordError(fmt.Errorf("%s: %s", event.Err.Code, event.Err.Message))
		span.SetAttributes(
			attribute.String("nodeflow.error.node_id", event.Err.NodeID),
			attribute.String("nodeflow.error.code", event.Err.Code),
		)
	}
}
