package emit

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter implements Emitter by creating OpenTelemetry spans, one per
// lifecycle event (teacher's graph/emit/otel.go, adapted from node spans to
// task lifecycle spans).
//
// Each event becomes a zero-duration span named by its Kind, carrying pid,
// tid, uses, key, and state as attributes; ErrKind events are marked with
// codes.Error.
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an OTelEmitter using the given tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), string(event.Kind))
	defer span.End()
	span.SetAttributes(
		attribute.String("pid", event.PID),
		attribute.String("tid", event.TID),
		attribute.String("uses", event.Uses),
		attribute.String("key", event.Key),
		attribute.String("state", event.State),
	)
	if event.Kind == Error {
		span.SetStatus(codes.Error, event.Err)
	}
}

func (o *OTelEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, e := range events {
		o.Emit(e)
	}
	return nil
}

func (o *OTelEmitter) Flush(ctx context.Context) error { return nil }
