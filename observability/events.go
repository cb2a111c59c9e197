package observability

import (
	"log/slog"

	"creditnet/core/events"
)

// MetricsEmitter fans engine events into the Prometheus registry and the
// structured log, and forwards them to an optional downstream emitter.
type MetricsEmitter struct {
	metrics *EngineMetrics
	logger  *slog.Logger
	next    events.Emitter
}

// NewMetricsEmitter wraps next with metrics and log instrumentation. A nil
// next discards the events after recording them.
func NewMetricsEmitter(logger *slog.Logger, next events.Emitter) *MetricsEmitter {
	if next == nil {
		next = events.NoopEmitter{}
	}
	return &MetricsEmitter{metrics: Engine(), logger: logger, next: next}
}

// Emit implements the events.Emitter interface.
func (m *MetricsEmitter) Emit(event events.Event) {
	if m == nil || event == nil {
		return
	}
	switch evt := event.(type) {
	case events.LoanCreated:
		m.metrics.LoanCreated()
	case events.LoanRepaid:
		if evt.Final {
			m.metrics.LoanRepaid()
		}
	case events.LoanLiquidated:
		m.metrics.LoanLiquidated()
	case events.GracePeriodStarted:
		m.metrics.GraceStarted()
	case events.GracePeriodCancelled:
		m.metrics.GraceCancelled()
	case events.InsuranceAllocated:
		m.metrics.SetInsuranceBalance(evt.BalanceUsd)
	case events.InsurancePayout:
		m.metrics.InsurancePayout()
		m.metrics.SetInsuranceBalance(evt.BalanceUsd)
	case events.InsuranceBadDebt:
		m.metrics.BadDebt()
	}
	if m.logger != nil {
		m.logger.Debug("event", slog.String("type", event.EventType()))
	}
	m.next.Emit(event)
}
