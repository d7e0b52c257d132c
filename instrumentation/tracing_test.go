package instrumentation

import (
	"context"
	"errors"
	"testing"
)

func TestRecordError(t *testing.T) {
	inst, err := New(Config{Enabled: true, ServiceName: "test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, span := inst.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
}

func TestSpanStatusHelpers(t *testing.T) {
	inst, err := New(Config{Enabled: true, ServiceName: "test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, span := inst.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	SetSpanSuccess(span)
	SetSpanError(span, "failed")
}

func TestAddAttributeHelpers(t *testing.T) {
	inst, err := New(Config{Enabled: true, ServiceName: "test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, span := inst.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	AddOAuthFlowAttributes(span, "client-1", "user-1", "profile email")
	AddOAuthFlowAttributes(span, "", "", "")
	AddStorageAttributes(span, "save_client", "memory")
	AddHTTPAttributes(span, "POST", "token", 200)
	AddSecurityAttributes(span, "203.0.113.7")
	AddSecurityAttributes(span, "")
}

func TestNilSafeHelpers_WithNilSpans(t *testing.T) {
	// Every helper must tolerate a nil span; handlers pass nil when
	// tracing is disabled.
	RecordError(nil, errors.New("boom"))
	SetSpanSuccess(nil)
	SetSpanError(nil, "failed")
	SetSpanAttributes(nil)
	AddOAuthFlowAttributes(nil, "client-1", "user-1", "profile")
	AddStorageAttributes(nil, "save_client", "memory")
	AddHTTPAttributes(nil, "GET", "authorize", 200)
	AddSecurityAttributes(nil, "203.0.113.7")
}
