package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/auditdesk/auditdesk/internal/jobs"
	"github.com/auditdesk/auditdesk/internal/rbac"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// DriftChecker reports divergence between the persisted mapping and the
// static policy.
type DriftChecker interface {
	Drift(ctx context.Context) (rbac.DriftReport, error)
}

// PolicyDriftJob logs and publishes drift between role_permissions and the
// policy table. It never modifies either side.
type PolicyDriftJob struct {
	Checker DriftChecker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPolicyDriftJob wires dependencies for the drift handler.
func NewPolicyDriftJob(checker DriftChecker, logger *slog.Logger, metrics *jobmetrics.Metrics) *PolicyDriftJob {
	return &PolicyDriftJob{Checker: checker, Logger: logger, Metrics: metrics}
}

// Handle processes drift check tasks.
func (j *PolicyDriftJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Checker == nil {
		return errors.New("policy drift: handler not configured")
	}
	var payload PolicyDriftPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.metrics().Track(TaskPolicyDriftCheck)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int64("requested_by", payload.RequestedBy))
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	report, err := j.Checker.Drift(checkCtx)
	if err != nil {
		logger.Error("policy drift check", slog.Any("error", err))
		return err
	}

	missing, extra := countDrift(report.Missing), countDrift(report.Extra)
	j.metrics().SetDrift("missing", missing)
	j.metrics().SetDrift("extra", extra)

	if report.Empty() {
		logger.Info("role permissions match policy", slog.Duration("duration", time.Since(start)))
		return nil
	}
	for _, role := range sortedRoles(report.Missing) {
		logger.Warn("role missing policy permissions", slog.String("role", role), slog.Any("permissions", report.Missing[role]))
	}
	for _, role := range sortedRoles(report.Extra) {
		logger.Warn("role holds permissions outside policy", slog.String("role", role), slog.Any("permissions", report.Extra[role]))
	}
	logger.Warn("policy drift detected", slog.Int("missing", missing), slog.Int("extra", extra), slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *PolicyDriftJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPolicyDriftCheck))
	}
	return slog.Default().With(slog.String("job", TaskPolicyDriftCheck))
}

func (j *PolicyDriftJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func countDrift(m map[string][]rbac.Permission) int {
	total := 0
	for _, perms := range m {
		total += len(perms)
	}
	return total
}

func sortedRoles(m map[string][]rbac.Permission) []string {
	roles := make([]string, 0, len(m))
	for role := range m {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}
