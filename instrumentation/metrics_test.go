package instrumentation

import (
	"context"
	"sync"
	"testing"
)

func testMetrics(t *testing.T) *Metrics {
	t.Helper()

	inst, err := New(Config{Enabled: true, ServiceName: "test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return inst.Metrics()
}

// The recording methods should never panic regardless of input; the
// underlying providers absorb the values.

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	m := testMetrics(t)
	ctx := context.Background()

	m.RecordHTTPRequest(ctx, "GET", "authorize", 200, 12.5)
	m.RecordHTTPRequest(ctx, "POST", "token", 400, 0.1)
	m.RecordHTTPRequest(ctx, "GET", "userinfo", 401, 5000)
}

func TestMetrics_RecordAuthorizationFlow(t *testing.T) {
	m := testMetrics(t)
	ctx := context.Background()

	m.RecordAuthorizationRequest(ctx, "client-1")
	m.RecordLoginAttempt(ctx, "client-1", true)
	m.RecordLoginAttempt(ctx, "client-1", false)
	m.RecordCodeIssued(ctx, "client-1")
	m.RecordCodeExchange(ctx, "client-1", true)
	m.RecordCodeExchange(ctx, "client-1", false)
	m.RecordTokenIssued(ctx, "client-1")
	m.RecordUserinfoRequest(ctx, true)
	m.RecordUserinfoRequest(ctx, false)
}

func TestMetrics_RecordSecurityEvents(t *testing.T) {
	m := testMetrics(t)
	ctx := context.Background()

	m.RecordRateLimitExceeded(ctx, "ip")
	m.RecordRateLimitExceeded(ctx, "security_event")
	m.RecordCodeReuseDetected(ctx)
	m.RecordAuditEvent(ctx, "token_issued")
}

func TestMetrics_RecordStorageOperations(t *testing.T) {
	m := testMetrics(t)
	ctx := context.Background()

	m.RecordStorageOperation(ctx, "save_client", "success", 1.2)
	m.RecordStorageOperation(ctx, "consume_code", "error", 0.4)
}

func TestMetrics_ConcurrentRecording(t *testing.T) {
	m := testMetrics(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordHTTPRequest(ctx, "POST", "token", 200, 1)
			m.RecordCodeExchange(ctx, "client-1", true)
			m.RecordTokenIssued(ctx, "client-1")
		}()
	}
	wg.Wait()
}

func TestMetrics_NoOpBehavior(t *testing.T) {
	inst, err := New(Config{Enabled: false})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Disabled instrumentation still hands out a working Metrics value.
	m := inst.Metrics()
	if m == nil {
		t.Fatal("Metrics() returned nil for disabled instrumentation")
	}
	m.RecordHTTPRequest(context.Background(), "GET", "authorize", 200, 1)
}
