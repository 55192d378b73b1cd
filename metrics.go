package syncwire

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/syncwire/syncwire/utils"
)

// Metrics covers the synchronizer's visible work. All observe methods
// are nil-receiver safe so a Syncer without metrics costs nothing.
type Metrics struct {
	deltasSent      *prometheus.CounterVec
	deltaBytes      prometheus.Counter
	snapshotsServed prometheus.Counter
	desyncs         prometheus.Counter
	batchSize       utils.AvgVal
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		deltasSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "syncwire",
			Name:      "deltas_sent_total",
			Help:      "Delta batches broadcast, per collection.",
		}, []string{"collection"}),
		deltaBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "syncwire",
			Name:      "delta_bytes_total",
			Help:      "Payload bytes of broadcast delta batches.",
		}),
		snapshotsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "syncwire",
			Name:      "snapshots_served_total",
			Help:      "Full snapshots sent to observers.",
		}),
		desyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "syncwire",
			Name:      "desyncs_total",
			Help:      "Inbound batches rejected as desynced.",
		}),
	}
	avg := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "syncwire",
		Name:      "delta_batch_records_avg",
		Help:      "Running mean of records per delta batch.",
	}, m.batchSize.Val)
	if reg != nil {
		reg.MustRegister(m.deltasSent, m.deltaBytes, m.snapshotsServed, m.desyncs, avg)
	}
	return m
}

func (m *Metrics) observeDelta(collection string, records, bytes int) {
	if m == nil {
		return
	}
	m.deltasSent.WithLabelValues(collection).Inc()
	m.deltaBytes.Add(float64(bytes))
	m.batchSize.Add(float64(records))
}

func (m *Metrics) observeSnapshot() {
	if m == nil {
		return
	}
	m.snapshotsServed.Inc()
}

func (m *Metrics) observeDesync() {
	if m == nil {
		return
	}
	m.desyncs.Inc()
}
