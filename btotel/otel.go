// Package btotel exchanges span references with OpenTelemetry. A decoded
// identity whose ids have the OTEL widths maps onto a trace.SpanContext,
// and an incoming remote SpanContext can seed an identity ready to encode.
package btotel

import (
	"github.com/pkg/errors"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/braintrustdata/braintrust-sdk-sub004/btid"
)

// SpanContext converts an identity into an OTEL span context. The root
// span id must be 32 hex characters (an OTEL trace id) and the span id 16
// (an OTEL span id); identities with other id shapes cannot be
// represented and return an error.
func SpanContext(id btid.SpanIdentity) (oteltrace.SpanContext, error) {
	traceID, err := oteltrace.TraceIDFromHex(id.RootSpanID)
	if err != nil {
		return oteltrace.SpanContext{}, errors.Wrap(err, "root span id is not an otel trace id")
	}
	spanID, err := oteltrace.SpanIDFromHex(id.SpanID)
	if err != nil {
		return oteltrace.SpanContext{}, errors.Wrap(err, "span id is not an otel span id")
	}
	return oteltrace.NewSpanContext(oteltrace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
		Remote:  true,
	}), nil
}

// Identity builds a row identity from a remote OTEL span context. The
// span id doubles as the row id so that repeated imports of the same
// remote span collapse onto one logical row.
func Identity(objectType btid.ObjectType, objectID string, sc oteltrace.SpanContext) btid.SpanIdentity {
	return btid.SpanIdentity{
		ObjectType: objectType,
		ObjectID:   objectID,
		RowID:      sc.SpanID().String(),
		SpanID:     sc.SpanID().String(),
		RootSpanID: sc.TraceID().String(),
	}
}
