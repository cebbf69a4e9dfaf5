package server

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"parking-spots/internal/parking"
)

type spotLister interface {
	List(ctx context.Context) []*parking.Spot
}

// spotCollector reads the registry on every scrape so the exported
// occupancy is never stale.
type spotCollector struct {
	spots spotLister

	occupied *prometheus.Desc
	total    *prometheus.Desc
	open     *prometheus.Desc
}

func newSpotCollector(spots spotLister) *spotCollector {
	labels := []string{"spot_id", "place"}
	return &spotCollector{
		spots:    spots,
		occupied: prometheus.NewDesc("parking_spot_occupied_area", "Area currently occupied in the spot.", labels, nil),
		total:    prometheus.NewDesc("parking_spot_total_area", "Total area of the spot.", labels, nil),
		open:     prometheus.NewDesc("parking_spot_open", "1 if the spot accepts entries.", labels, nil),
	}
}

func (c *spotCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.occupied
	ch <- c.total
	ch <- c.open
}

func (c *spotCollector) Collect(ch chan<- prometheus.Metric) {
	for _, spot := range c.spots.List(context.Background()) {
		id := strconv.FormatInt(spot.ID, 10)
		open := 0.0
		if spot.IsOpen {
			open = 1
		}
		ch <- prometheus.MustNewConstMetric(c.occupied, prometheus.GaugeValue, float64(spot.OccupiedArea), id, spot.Place)
		ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(spot.TotalArea), id, spot.Place)
		ch <- prometheus.MustNewConstMetric(c.open, prometheus.GaugeValue, open, id, spot.Place)
	}
}

type Metrics struct {
	registry      *prometheus.Registry
	gateDecisions *prometheus.CounterVec
}

func NewMetrics(spots spotLister) *Metrics {
	reg := prometheus.NewRegistry()

	gateDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parking_gate_requests_total",
		Help: "Gate requests handled over HTTP by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		newSpotCollector(spots),
		gateDecisions,
	)

	return &Metrics{
		registry:      reg,
		gateDecisions: gateDecisions,
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeGate(endpoint string, outcome *parking.EntryOutcome, err error) {
	label := "error"
	switch {
	case err != nil:
	case outcome.Allowed:
		label = "allowed"
	default:
		label = "denied"
	}
	m.gateDecisions.WithLabelValues(endpoint, label).Inc()
}
