package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Core Prometheus metrics. Defined in a standalone package to avoid import
// cycles between the security components and whatever layer exposes them.

var (
	NonceAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nonce_accepted_total",
		Help: "Nonces aceptados (primer uso dentro de la ventana)",
	})

	NonceReplays = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nonce_replays_total",
		Help: "Nonces rechazados por replay",
	})

	AuditAppends = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_chain_appends_total",
		Help: "Entradas agregadas a la cadena de auditoría",
	})

	ReceiverAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "receiver_messages_accepted_total",
		Help: "Mensajes aceptados al buffer de ingesta",
	})

	ReceiverRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "receiver_messages_rejected_total",
		Help: "Mensajes rechazados, por motivo",
	}, []string{"reason"})

	ReceiverBufferFill = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "receiver_buffer_fill_ratio",
		Help: "Ocupación del buffer de ingesta (0..1)",
	})

	SnapshotDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "snapshot_duration_seconds",
		Help:    "Duración de snapshot/restore de persistencia",
		Buckets: prometheus.DefBuckets,
	})
)

// Register registers the core metrics on the given registry (or default if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		NonceAccepted,
		NonceReplays,
		AuditAppends,
		ReceiverAccepted,
		ReceiverRejected,
		ReceiverBufferFill,
		SnapshotDuration,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
