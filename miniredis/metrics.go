package miniredis

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by the client.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	MessagesTotal   prometheus.Counter
	ProtocolErrors  *prometheus.CounterVec
	Subscriptions   prometheus.Gauge
	ConnectsTotal   *prometheus.CounterVec
}

// Result labels for CommandsTotal.
const (
	resultOK          = "ok"
	resultNil         = "nil"
	resultServerError = "server_error"
	resultError       = "error"
)

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "miniredis",
			Name:      "commands_total",
			Help:      "Commands completed, by verb and result.",
		}, []string{"command", "result"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "miniredis",
			Name:      "command_duration_seconds",
			Help:      "Round-trip latency of synchronous commands.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 9),
		}, []string{"command"}),
		MessagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "miniredis",
			Name:      "pubsub_messages_total",
			Help:      "Pub/sub messages delivered to the subscription sink.",
		}),
		ProtocolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "miniredis",
			Name:      "protocol_errors_total",
			Help:      "Replies or frames rejected as protocol violations.",
		}, []string{"path"}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "miniredis",
			Name:      "subscriptions",
			Help:      "Channels currently subscribed.",
		}),
		ConnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "miniredis",
			Name:      "connects_total",
			Help:      "Connect attempts, by path and result.",
		}, []string{"path", "result"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.CommandsTotal, m.CommandDuration, m.MessagesTotal,
			m.ProtocolErrors, m.Subscriptions, m.ConnectsTotal,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) observeCommand(verb string, r *Reply, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := resultOK
	switch {
	case err != nil:
		result = resultError
	case r != nil && r.Kind == KindNil:
		result = resultNil
	case r != nil && r.Kind == KindError:
		result = resultServerError
	}
	m.CommandsTotal.WithLabelValues(verb, result).Inc()
	if elapsed > 0 {
		m.CommandDuration.WithLabelValues(verb).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) messageDelivered() {
	if m == nil {
		return
	}
	m.MessagesTotal.Inc()
}

func (m *Metrics) protocolError(path string) {
	if m == nil {
		return
	}
	m.ProtocolErrors.WithLabelValues(path).Inc()
}

func (m *Metrics) setSubscriptions(n int) {
	if m == nil {
		return
	}
	m.Subscriptions.Set(float64(n))
}

func (m *Metrics) connectAttempt(path string, err error) {
	if m == nil {
		return
	}
	result := resultOK
	if err != nil {
		result = resultError
	}
	m.ConnectsTotal.WithLabelValues(path, result).Inc()
}
