// Package instrumentation provides OpenTelemetry (OTEL) instrumentation for authd.
//
// This package enables observability across all layers through:
// - Metrics: Counters, histograms, and gauges for monitoring OAuth operations
// - Traces: Distributed tracing for request flows across components
//
// # Quick Start
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "authd",
//		ServiceVersion: "1.0.0",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	srv.SetInstrumentation(inst)
//
// # Available Metrics
//
// HTTP Layer:
//   - oauth.http.requests.total{method, endpoint, status} - Total HTTP requests
//   - oauth.http.request.duration{endpoint} - Request duration in milliseconds
//
// OAuth Flows:
//   - oauth.authorization.requests{client_id} - Authorization requests received
//   - oauth.login.attempts{client_id, success} - Resource owner login attempts
//   - oauth.code.issued{client_id} - Authorization codes issued
//   - oauth.code.exchanged{client_id, success} - Codes exchanged for tokens
//   - oauth.token.issued{client_id} - Access tokens issued
//   - oauth.userinfo.requests{success} - Userinfo requests served
//
// Security:
//   - oauth.rate_limit.exceeded{limiter_type} - Rate limit violations
//   - oauth.code.reuse_detected - Authorization code reuse attempts
//   - oauth.audit.events.total{event_type} - Audit events
//
// Storage:
//   - storage.operation.total{operation, result} - Storage operations
//   - storage.operation.duration{operation} - Operation duration in milliseconds
//   - storage.size.{clients,users,codes,tokens,refresh_tokens} - Store sizes
//
// # Performance
//
// When instrumentation is not configured or disabled, no-op providers are used
// and there is no measurable overhead.
//
// # Security Considerations
//
// Never record actual token values, authorization codes, client secrets, or
// passwords in traces or metrics. Only record metadata (token types, expiry
// times, validation results). Data collected here may be persisted for long
// periods and accessible to wider audiences than production systems.
package instrumentation
