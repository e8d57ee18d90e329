package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"chronicle/pkg/requestcontext"
)

// CorrelationHeader is the header a gateway may use to propagate an existing
// correlation identifier.
const CorrelationHeader = "X-Correlation-ID"

// Correlation assigns each request the correlation identifier that groups
// all audit records of the operation. Precedence: the OpenTelemetry trace id
// when the request is traced, the gateway's X-Correlation-ID header, else a
// fresh time-sortable UUIDv7. The chosen value is echoed on the response.
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		correlation := ""
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			correlation = sc.TraceID().String()
		}
		if correlation == "" {
			correlation = r.Header.Get(CorrelationHeader)
		}
		if correlation == "" {
			if id, err := uuid.NewV7(); err == nil {
				correlation = id.String()
			} else {
				correlation = uuid.NewString()
			}
		}

		w.Header().Set(CorrelationHeader, correlation)
		ctx = requestcontext.WithCorrelationUID(ctx, correlation)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestTime stamps the context with a single instant so every audit record
// written during the request shares the same timestamp.
func RequestTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
