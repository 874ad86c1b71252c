package camera

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	resyncChanged   = "changed"
	resyncUnchanged = "unchanged"
	resyncError     = "error"

	eventAdded   = "added"
	eventRemoved = "removed"
)

// Metrics は Watcher の Prometheus メトリクス
//
// nil の *Metrics に対する記録は何もしない。
type Metrics struct {
	resyncs *prometheus.CounterVec
	events  *prometheus.CounterVec
	devices prometheus.Gauge
}

// NewMetrics はメトリクスを作成して registerer に登録する
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		resyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "camwatch",
			Name:      "resyncs_total",
			Help:      "Number of device resynchronizations by result.",
		}, []string{"result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "camwatch",
			Name:      "device_events_total",
			Help:      "Number of device added/removed notifications.",
		}, []string{"kind"}),
		devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "camwatch",
			Name:      "devices",
			Help:      "Number of devices in the current snapshot.",
		}),
	}

	for _, c := range []prometheus.Collector{m.resyncs, m.events, m.devices} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeResync(result string) {
	if m == nil {
		return
	}
	m.resyncs.WithLabelValues(result).Inc()
}

func (m *Metrics) observeEvent(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

func (m *Metrics) setDevices(n int) {
	if m == nil {
		return
	}
	m.devices.Set(float64(n))
}
