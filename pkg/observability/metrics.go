package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/talebot/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the conversation collectors.
type Metrics struct {
	Turns        *prometheus.CounterVec
	TurnDuration *prometheus.HistogramVec
	StepsEntered *prometheus.CounterVec
	Rejections   *prometheus.CounterVec
	FlowsEnded   *prometheus.CounterVec
	FlowDuration *prometheus.HistogramVec
	Conflicts    prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "talebot_turns_total",
			Help: "Handled turns by flow and instruction kind",
		}, []string{"flow", "kind"}),
		TurnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "talebot_turn_duration_seconds",
			Help:    "Time to handle one turn, including hand-offs",
			Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 15, 30, 60, 120},
		}, []string{"kind"}),
		StepsEntered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "talebot_steps_entered_total",
			Help: "Steps prompted by flow and step",
		}, []string{"flow", "step"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "talebot_answers_rejected_total",
			Help: "Rejected answers by flow, step and reason",
		}, []string{"flow", "step", "reason"}),
		FlowsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "talebot_flows_ended_total",
			Help: "Flow endings and failed hand-offs by outcome",
		}, []string{"flow", "outcome"}),
		FlowDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "talebot_flow_duration_seconds",
			Help:    "Time from flow start to its end",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		}, []string{"flow", "outcome"}),
		Conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "talebot_session_conflicts_total",
			Help: "Optimistic concurrency conflicts on session writes",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.Turns, m.TurnDuration, m.StepsEntered, m.Rejections, m.FlowsEnded, m.FlowDuration, m.Conflicts,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks records every event into the collectors.
func (m *Metrics) Hooks() domain.TurnHooks {
	return domain.TurnHooks{
		OnStepEnter: func(_ context.Context, e *domain.StepEvent) {
			m.StepsEntered.WithLabelValues(string(e.Flow), e.Step).Inc()
		},
		OnStepRejected: func(_ context.Context, e *domain.StepEvent) {
			m.Rejections.WithLabelValues(string(e.Flow), e.Step, e.Reason).Inc()
		},
		OnFlowEnd: func(_ context.Context, e *domain.FlowEvent) {
			m.FlowsEnded.WithLabelValues(string(e.Flow), string(e.Outcome)).Inc()
			m.FlowDuration.WithLabelValues(string(e.Flow), string(e.Outcome)).Observe(e.Duration.Seconds())
		},
		OnConflict: func(context.Context, *domain.TurnEvent) {
			m.Conflicts.Inc()
		},
		OnTurn: func(_ context.Context, e *domain.TurnEvent) {
			m.Turns.WithLabelValues(string(e.Flow), string(e.Kind)).Inc()
			m.TurnDuration.WithLabelValues(string(e.Kind)).Observe(e.Duration.Seconds())
		},
	}
}

// LogHooks writes events to logger. Step events log at Debug so that
// rejected answers never show up as errors.
func LogHooks(logger *slog.Logger) domain.TurnHooks {
	return domain.TurnHooks{
		OnStepEnter: func(ctx context.Context, e *domain.StepEvent) {
			logger.DebugContext(ctx, "step_enter", "session", e.SessionKey, "flow", e.Flow, "step", e.Step)
		},
		OnStepRejected: func(ctx context.Context, e *domain.StepEvent) {
			logger.DebugContext(ctx, "step_rejected",
				"session", e.SessionKey, "flow", e.Flow, "step", e.Step, "reason", e.Reason)
		},
		OnFlowEnd: func(ctx context.Context, e *domain.FlowEvent) {
			attrs := []any{"session", e.SessionKey, "flow", e.Flow, "outcome", e.Outcome, "duration", e.Duration}
			if e.Err != nil {
				logger.WarnContext(ctx, "flow_end", append(attrs, "err", e.Err)...)
				return
			}
			logger.InfoContext(ctx, "flow_end", attrs...)
		},
		OnConflict: func(ctx context.Context, e *domain.TurnEvent) {
			logger.DebugContext(ctx, "session_conflict", "session", e.SessionKey, "retried", e.Retried)
		},
	}
}
