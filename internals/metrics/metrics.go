// Copyright (c) 2025 Canonical Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License version 3 as
// published by the Free Software Foundation.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/canonical/bootctl/internals/bootctrl"
	"github.com/canonical/bootctl/internals/logger"
)

const namespace = "bootctl"

// SlotSource provides the slot snapshot exported on every scrape.
type SlotSource interface {
	Slots() ([]bootctrl.SlotInfo, error)
}

// Registry holds the daemon's metrics. It uses its own prometheus registry
// rather than the global one, so several can coexist in one process.
type Registry struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
}

// NewRegistry returns a registry exporting operation counters and the live
// state of the slots in source.
func NewRegistry(source SlotSource) *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of slot operations, by result.",
			},
			[]string{"operation", "result"}, // result: success/error
		),
		durations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Time taken by slot operations, including device I/O.",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"operation"},
		),
	}
	r.registry.MustRegister(r.operations, r.durations, newSlotCollector(source))
	return r
}

// Observe records the outcome of an operation that started at start.
func (r *Registry) Observe(operation string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	r.operations.WithLabelValues(operation, result).Inc()
	r.durations.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

var (
	recordReadableDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "record_readable"),
		"Whether the boot control record could be read and validated.",
		nil, nil,
	)
	slotLabels       = []string{"slot", "suffix"}
	slotPriorityDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "slot", "priority"),
		"Boot priority of the slot; higher is preferred.",
		slotLabels, nil,
	)
	slotTriesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "slot", "tries_remaining"),
		"Boot attempts left before the bootloader gives up on the slot.",
		slotLabels, nil,
	)
	slotSuccessfulDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "slot", "successful"),
		"Whether the slot has been marked as successfully booted.",
		slotLabels, nil,
	)
	slotBootableDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "slot", "bootable"),
		"Whether the bootloader may still pick the slot.",
		slotLabels, nil,
	)
	slotCurrentDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "slot", "current"),
		"Whether the system booted from the slot.",
		slotLabels, nil,
	)
)

// slotCollector reads the record on every scrape.
type slotCollector struct {
	source SlotSource
}

func newSlotCollector(source SlotSource) *slotCollector {
	return &slotCollector{source: source}
}

func (sc *slotCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- recordReadableDesc
	ch <- slotPriorityDesc
	ch <- slotTriesDesc
	ch <- slotSuccessfulDesc
	ch <- slotBootableDesc
	ch <- slotCurrentDesc
}

func (sc *slotCollector) Collect(ch chan<- prometheus.Metric) {
	slots, err := sc.source.Slots()
	if err != nil {
		logger.Debugf("Cannot collect slot metrics: %v", err)
		ch <- prometheus.MustNewConstMetric(recordReadableDesc, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(recordReadableDesc, prometheus.GaugeValue, 1)
	for _, slot := range slots {
		labels := []string{strconv.Itoa(slot.Slot), slot.Suffix}
		ch <- prometheus.MustNewConstMetric(slotPriorityDesc, prometheus.GaugeValue, float64(slot.Priority), labels...)
		ch <- prometheus.MustNewConstMetric(slotTriesDesc, prometheus.GaugeValue, float64(slot.TriesRemaining), labels...)
		ch <- prometheus.MustNewConstMetric(slotSuccessfulDesc, prometheus.GaugeValue, boolValue(slot.SuccessfulBoot), labels...)
		ch <- prometheus.MustNewConstMetric(slotBootableDesc, prometheus.GaugeValue, boolValue(slot.Bootable), labels...)
		ch <- prometheus.MustNewConstMetric(slotCurrentDesc, prometheus.GaugeValue, boolValue(slot.Current), labels...)
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
