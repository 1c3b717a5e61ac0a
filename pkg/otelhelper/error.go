package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SetError marks span as failed. attrs are attached to the recorded error.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}

// RecordOutcome tags span with how an event was handled and fails it when err is set.
func RecordOutcome(span trace.Span, outcome string, err error) {
	if outcome != "" {
		span.SetAttributes(attribute.String(OutcomeKey, outcome))
	}

	if err != nil {
		SetError(span, err, attribute.String(OutcomeKey, "error"))
	}
}
