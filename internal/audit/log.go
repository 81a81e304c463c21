package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"verida.org/internal/auth"
	"verida.org/internal/contract"
	"verida.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with request and caller context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if caller, ok := auth.UserIDFromContext(ctx); ok {
		entry["caller"] = caller
	}
	copyFields := make(map[string]any, len(fields))
	for k, v := range fields {
		copyFields[k] = v
	}
	entry["fields"] = copyFields

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}

// Outcome classifies a finished contract call for metrics and audit.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	switch contract.KindOf(err) {
	case contract.ValidationError:
		return "rejected"
	case contract.ConfigurationError:
		return "misconfigured"
	}
	return "error"
}

// ContractCalls writes an audit entry and call metrics for every contract
// invocation, rejected ones included.
func ContractCalls(ctx context.Context, call contract.Call) {
	outcome := Outcome(call.Err)
	obs.ObserveContractCall(call.Contract, call.Op, outcome, call.Duration)

	fields := map[string]any{
		"contract":    call.Contract,
		"op":          call.Op,
		"outcome":     outcome,
		"duration_ms": call.Duration.Milliseconds(),
	}
	if call.Err != nil {
		fields["error"] = call.Err.Error()
		if code := contract.CodeOf(call.Err); code != "" {
			fields["code"] = string(code)
		}
	}
	if len(call.Events) > 0 {
		names := make([]string, 0, len(call.Events))
		ids := make([]string, 0, len(call.Events))
		for _, evt := range call.Events {
			names = append(names, evt.Name)
			ids = append(ids, evt.ID)
		}
		fields["events"] = names
		fields["ids"] = ids
	}
	if err := LogEvent(ctx, "contract."+call.Op, fields); err != nil {
		obs.Warn("audit log failed", map[string]any{"error": err.Error()})
	}
}

var _ contract.Observer = ContractCalls
