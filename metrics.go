package authsystem

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation labels used on authsystem_operations_total.
const (
	opRegister               = "register"
	opLogin                  = "login"
	opChangePassword         = "change_password"
	opLoginChallenge         = "login_challenge"
	opLoginWithTwoFactor     = "login_two_factor"
	opBeginEnrollment        = "two_factor_enroll"
	opConfirmEnrollment      = "two_factor_confirm"
	opVerifyTwoFactor        = "two_factor_verify"
	opDisableTwoFactor       = "two_factor_disable"
	opValidateBearerToken    = "validate_token"
	outcomeSuccess           = "success"
	outcomeFailure           = "failure"
	outcomeTwoFactorRequired = "two_factor_required"
	outcomeError             = "error"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	OperationsTotal      *prometheus.CounterVec
	PasswordHashDuration *prometheus.HistogramVec
	AuditDroppedTotal    prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which is convenient in tests.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authsystem_operations_total",
				Help: "Total number of authentication operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		PasswordHashDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authsystem_password_hash_duration_seconds",
				Help:    "Password hash and verify duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"op"},
		),
		AuditDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authsystem_audit_dropped_total",
				Help: "Audit events discarded because the buffer was full",
			},
		),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.OperationsTotal, m.PasswordHashDuration, m.AuditDroppedTotal} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) observeHash(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.PasswordHashDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) auditDropped() {
	if m == nil {
		return
	}
	m.AuditDroppedTotal.Inc()
}

func (e *Engine) observe(operation string, err error) {
	if e == nil {
		return
	}
	outcome := outcomeSuccess
	switch {
	case err == nil:
	case errors.Is(err, ErrBackendUnavailable), errors.Is(err, ErrEngineNotReady):
		outcome = outcomeError
	default:
		outcome = outcomeFailure
	}
	e.metrics.observeOperation(operation, outcome)
}
