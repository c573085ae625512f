package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(workflowsTotal, stepFailuresTotal, recoveryWarningsTotal, conversations)
}

var (
	workflowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hush_workflows_total",
			Help: "Session workflows run, by workflow and result.",
		},
		[]string{"workflow", "result"}, // result: 'ok', 'error'
	)

	stepFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hush_workflow_step_failures_total",
			Help: "Workflow steps which failed, by workflow and step.",
		},
		[]string{"workflow", "step"},
	)

	recoveryWarningsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hush_recovery_warnings_total",
			Help: "Persisted conversations dropped while loading a session.",
		},
		[]string{"reason"},
	)

	conversations = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hush_conversations",
			Help: "Conversations held by each session.",
		},
		[]string{"session"},
	)
)

func ObserveWorkflow(workflow string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	workflowsTotal.WithLabelValues(norm(workflow), result).Inc()
}

func IncStepFailure(workflow, step string) {
	stepFailuresTotal.WithLabelValues(norm(workflow), norm(step)).Inc()
}

func IncRecoveryWarning(reason string) {
	recoveryWarningsTotal.WithLabelValues(norm(reason)).Inc()
}

func SetConversations(session string, n int) {
	conversations.WithLabelValues(session).Set(float64(n))
}

func norm(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return "unknown"
	}
	return s
}
