package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/platinummonkey/larder/pkg/auth"
	"github.com/platinummonkey/larder/pkg/contextkeys"
	"github.com/platinummonkey/larder/pkg/httputil"
	"github.com/platinummonkey/larder/pkg/observability"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *Event) error

	// Close flushes and releases the logger
	Close() error
}

// Nop returns a logger that discards every event
func Nop() Logger {
	return noOpLogger{}
}

type noOpLogger struct{}

func (noOpLogger) Log(context.Context, *Event) error { return nil }
func (noOpLogger) Close() error                      { return nil }

// FromRequest builds an event populated with the request context: client IP,
// user agent, request ID, method and path.
func FromRequest(r *http.Request, eventType EventType, status EventStatus) *Event {
	event := &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
	}
	if r == nil {
		return event
	}

	event.IPAddress = httputil.ClientIP(r)
	event.UserAgent = r.UserAgent()
	event.RequestID = contextkeys.GetRequestID(r.Context())
	event.Method = r.Method
	event.Path = r.URL.Path
	return event
}

// WithActor fills the actor fields from an identity
func (e *Event) WithActor(id *auth.Identity) *Event {
	if id == nil {
		return e
	}
	e.UserID = id.UserID
	e.Login = id.Login
	e.TenantID = id.TenantID
	return e
}

// Record logs an event and reports failures to the application log. Audit
// failures never fail the request that produced the event.
func Record(ctx context.Context, l Logger, fallback *observability.Logger, event *Event) {
	if l == nil {
		return
	}
	if err := l.Log(ctx, event); err != nil {
		observability.FromContext(ctx, fallback).
			WithError(err).
			WithField("event_type", string(event.EventType)).
			Error("failed to write audit event")
	}
}

// StructuredLogger mirrors audit events into the application log
type StructuredLogger struct {
	logger *observability.Logger
}

// NewStructuredLogger creates a logger writing events at info level
func NewStructuredLogger(logger *observability.Logger) *StructuredLogger {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &StructuredLogger{logger: logger.WithField("audit", true)}
}

// Log writes the event as structured fields
func (s *StructuredLogger) Log(ctx context.Context, event *Event) error {
	fields := map[string]interface{}{
		"event_type": string(event.EventType),
		"status":     string(event.Status),
	}
	for k, v := range map[string]string{
		"user_id":         event.UserID,
		"login":           event.Login,
		"family_space_id": event.TenantID,
		"target_user_id":  event.TargetUserID,
		"ip_address":      event.IPAddress,
		"request_id":      event.RequestID,
	} {
		if v != "" {
			fields[k] = v
		}
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}

	msg := event.Message
	if msg == "" {
		msg = string(event.EventType)
	}
	s.logger.WithFields(fields).Info(msg)
	return nil
}

// Close is a no-op
func (s *StructuredLogger) Close() error {
	return nil
}
