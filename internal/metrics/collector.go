package metrics

import (
	"net/http"

	"github.com/leozw/zoom-dashboard/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the process metrics. A nil *Collector is valid and records
// nothing.
type Collector struct {
	config   *config.MimirConfig
	registry *prometheus.Registry

	// Polling
	pollCycles      *prometheus.CounterVec
	cycleDuration   *prometheus.HistogramVec
	recordsFetched  *prometheus.CounterVec
	recordsArchived *prometheus.CounterVec
	duplicates      *prometheus.CounterVec
	ledgerSize      *prometheus.GaugeVec

	// Live aggregates
	liveEvents       *prometheus.GaugeVec
	liveParticipants *prometheus.GaugeVec

	// Provider pacing
	cooldowns     *prometheus.CounterVec
	backoffs      *prometheus.CounterVec
	apiRequests   *prometheus.CounterVec
	mirrorFailure *prometheus.CounterVec

	// License reconciliation
	licenseActions *prometheus.CounterVec
	licenseMembers *prometheus.GaugeVec
}

func NewCollector(cfg config.MimirConfig) *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		config:   &cfg,
		registry: reg,

		pollCycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zoom_poll_cycles_total",
				Help: "Polling cycles by stream and outcome",
			},
			[]string{"stream", "outcome"},
		),
		cycleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zoom_poll_cycle_duration_seconds",
				Help:    "Wall time of a polling cycle, pauses included",
				Buckets: []float64{1, 5, 15, 60, 120, 300, 600, 1800},
			},
			[]string{"stream"},
		),
		recordsFetched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zoom_records_fetched_total",
				Help: "Records returned by the provider",
			},
			[]string{"stream"},
		),
		recordsArchived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zoom_records_archived_total",
				Help: "Records appended to the archive",
			},
			[]string{"stream"},
		),
		duplicates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zoom_records_duplicate_total",
				Help: "Records skipped because the ledger already held them",
			},
			[]string{"stream"},
		),
		ledgerSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "zoom_ledger_entries",
				Help: "Ids held by the dedup ledger",
			},
			[]string{"stream"},
		),
		liveEvents: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "zoom_live_events",
				Help: "Events in progress at the last live cycle",
			},
			[]string{"kind"},
		),
		liveParticipants: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "zoom_live_participants",
				Help: "Participants in progress at the last live cycle",
			},
			[]string{"kind"},
		),
		cooldowns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zoom_pagination_cooldowns_total",
				Help: "Pauses taken after a burst of page requests",
			},
			[]string{"resource"},
		),
		backoffs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zoom_pagination_backoffs_total",
				Help: "Collections abandoned after a recoverable failure",
			},
			[]string{"resource", "reason"},
		),
		apiRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zoom_api_requests_total",
				Help: "Outbound API requests by service and outcome",
			},
			[]string{"service", "outcome"},
		),
		mirrorFailure: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zoom_archive_mirror_failures_total",
				Help: "Failed writes to secondary archive mirrors",
			},
			[]string{"mirror"},
		),
		licenseActions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zoom_license_actions_total",
				Help: "Reconciliation actions by kind",
			},
			[]string{"action"},
		),
		licenseMembers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "zoom_license_group_members",
				Help: "Members per license group at the start of the last run",
			},
			[]string{"group"},
		),
	}
}

// Handler serves the collector's registry in the exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) RecordCycle(stream, outcome string, seconds float64) {
	if c == nil {
		return
	}
	c.pollCycles.WithLabelValues(stream, outcome).Inc()
	c.cycleDuration.WithLabelValues(stream).Observe(seconds)
}

func (c *Collector) RecordFetched(stream string, n int) {
	if c == nil {
		return
	}
	c.recordsFetched.WithLabelValues(stream).Add(float64(n))
}

func (c *Collector) RecordArchived(stream string, n int) {
	if c == nil {
		return
	}
	c.recordsArchived.WithLabelValues(stream).Add(float64(n))
}

func (c *Collector) RecordDuplicates(stream string, n int) {
	if c == nil {
		return
	}
	c.duplicates.WithLabelValues(stream).Add(float64(n))
}

func (c *Collector) SetLedgerSize(stream string, n int) {
	if c == nil {
		return
	}
	c.ledgerSize.WithLabelValues(stream).Set(float64(n))
}

func (c *Collector) SetLive(kind string, events, participants int) {
	if c == nil {
		return
	}
	c.liveEvents.WithLabelValues(kind).Set(float64(events))
	c.liveParticipants.WithLabelValues(kind).Set(float64(participants))
}

func (c *Collector) RecordCooldown(resource string) {
	if c == nil {
		return
	}
	c.cooldowns.WithLabelValues(resource).Inc()
}

func (c *Collector) RecordBackoff(resource, reason string) {
	if c == nil {
		return
	}
	c.backoffs.WithLabelValues(resource, reason).Inc()
}

func (c *Collector) RecordRequest(service, outcome string) {
	if c == nil {
		return
	}
	c.apiRequests.WithLabelValues(service, outcome).Inc()
}

func (c *Collector) RecordMirrorFailure(mirror string) {
	if c == nil {
		return
	}
	c.mirrorFailure.WithLabelValues(mirror).Inc()
}

func (c *Collector) RecordLicenseAction(action string) {
	if c == nil {
		return
	}
	c.licenseActions.WithLabelValues(action).Inc()
}

func (c *Collector) SetGroupMembers(group string, n int) {
	if c == nil {
		return
	}
	c.licenseMembers.WithLabelValues(group).Set(float64(n))
}
