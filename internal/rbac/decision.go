package rbac

import (
	"context"
	"fmt"
	"log/slog"
)

// Outcome is the result of an authorization decision.
type Outcome string

const (
	OutcomeAllow Outcome = "allow"
	OutcomeDeny  Outcome = "deny"
	OutcomeError Outcome = "error"
)

// Mode names the enforcement path that produced a decision.
type Mode string

const (
	ModeAuthenticated Mode = "authenticated"
	ModeRoles         Mode = "roles"
	ModePermission    Mode = "permission"
)

// Decision is one allow/deny record for the audit trail.
type Decision struct {
	Outcome Outcome
	Mode    Mode
	UserID  int64
	Role    string
	Action  string
	Kind    Kind
}

// DecisionRecorder observes decisions. Implementations must not block.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, d Decision)
}

// DecisionRecorderFunc adapts a function to DecisionRecorder.
type DecisionRecorderFunc func(ctx context.Context, d Decision)

// RecordDecision implements DecisionRecorder.
func (f DecisionRecorderFunc) RecordDecision(ctx context.Context, d Decision) {
	f(ctx, d)
}

// LogRecorder writes "{outcome} {role} -> {action}" lines.
type LogRecorder struct {
	Logger *slog.Logger
}

// RecordDecision implements DecisionRecorder.
func (r LogRecorder) RecordDecision(ctx context.Context, d Decision) {
	if r.Logger == nil {
		return
	}
	role := d.Role
	if role == "" {
		role = "anonymous"
	}
	level := slog.LevelInfo
	if d.Outcome != OutcomeAllow {
		level = slog.LevelWarn
	}
	r.Logger.LogAttrs(ctx, level, fmt.Sprintf("%s %s -> %s", d.Outcome, role, d.Action),
		slog.String("outcome", string(d.Outcome)),
		slog.String("mode", string(d.Mode)),
		slog.Int64("user_id", d.UserID),
		slog.String("role", role),
		slog.String("action", d.Action),
	)
}

// MultiRecorder fans a decision out to several recorders.
type MultiRecorder []DecisionRecorder

// RecordDecision implements DecisionRecorder.
func (m MultiRecorder) RecordDecision(ctx context.Context, d Decision) {
	for _, r := range m {
		safeRecord(ctx, r, d)
	}
}

// safeRecord isolates recorder failures from the request path.
func safeRecord(ctx context.Context, r DecisionRecorder, d Decision) {
	if r == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	r.RecordDecision(ctx, d)
}
