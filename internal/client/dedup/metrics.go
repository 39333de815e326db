package dedup

import "github.com/prometheus/client_golang/prometheus"

// Collector exports the registry's state to prometheus.
type Collector struct {
	cache *Cache

	pending   *prometheus.Desc
	started   *prometheus.Desc
	coalesced *prometheus.Desc
	evicted   *prometheus.Desc
	cancelled *prometheus.Desc
}

// NewCollector builds a collector for c. Register it on a registry of
// your choice.
func NewCollector(c *Cache) *Collector {
	return &Collector{
		cache: c,
		pending: prometheus.NewDesc(
			"voicescreen_dedup_pending_requests",
			"Number of in-flight requests currently registered",
			nil, nil,
		),
		started: prometheus.NewDesc(
			"voicescreen_dedup_started_total",
			"Total number of network operations started",
			nil, nil,
		),
		coalesced: prometheus.NewDesc(
			"voicescreen_dedup_coalesced_total",
			"Total number of calls served by an already running operation",
			nil, nil,
		),
		evicted: prometheus.NewDesc(
			"voicescreen_dedup_evicted_total",
			"Total number of entries evicted for exceeding the TTL",
			nil, nil,
		),
		cancelled: prometheus.NewDesc(
			"voicescreen_dedup_cancelled_total",
			"Total number of entries dropped by cancel",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pending
	ch <- c.started
	ch <- c.coalesced
	ch <- c.evicted
	ch <- c.cancelled
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.cache.Stats()
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(c.cache.PendingCount()))
	ch <- prometheus.MustNewConstMetric(c.started, prometheus.CounterValue, float64(s.Started))
	ch <- prometheus.MustNewConstMetric(c.coalesced, prometheus.CounterValue, float64(s.Coalesced))
	ch <- prometheus.MustNewConstMetric(c.evicted, prometheus.CounterValue, float64(s.Evicted))
	ch <- prometheus.MustNewConstMetric(c.cancelled, prometheus.CounterValue, float64(s.Cancelled))
}
