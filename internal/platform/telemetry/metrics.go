// Package telemetry exposes Prometheus metrics for the care-pathway engine:
// bed occupancy, state transitions, transfers, bookings and HTTP latency.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pathway"

// Metrics holds every collector on a private registry. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	bedsTotal     *prometheus.GaugeVec
	bedsOccupied  *prometheus.GaugeVec
	transitions   *prometheus.CounterVec
	transfers     *prometheus.CounterVec
	bookings      *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	notifyFailure prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		bedsTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "beds_total",
			Help:      "Number of resources in each pool",
		}, []string{"pool"}),
		bedsOccupied: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "beds_occupied",
			Help:      "Number of occupied resources in each pool",
		}, []string{"pool"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "surgery_transitions_total",
			Help:      "Surgery status transitions attempted, by outcome",
		}, []string{"from", "to", "result"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Admissions created by the transfer coordinator, by unit and outcome",
		}, []string{"unit", "result"}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_bookings_total",
			Help:      "Appointment booking attempts, by outcome",
		}, []string{"result"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		notifyFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Notifications that could not be delivered",
		}),
	}

	reg.MustRegister(
		m.bedsTotal, m.bedsOccupied, m.transitions, m.transfers,
		m.bookings, m.httpDuration, m.notifyFailure,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// SetPoolOccupancy publishes the size and occupancy of one pool.
func (m *Metrics) SetPoolOccupancy(pool string, total, occupied int) {
	if m == nil {
		return
	}
	m.bedsTotal.WithLabelValues(pool).Set(float64(total))
	m.bedsOccupied.WithLabelValues(pool).Set(float64(occupied))
}

func (m *Metrics) Transition(from, to string, err error) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to, result(err)).Inc()
}

func (m *Metrics) Transfer(unit string, err error) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(unit, result(err)).Inc()
}

func (m *Metrics) Booking(err error) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) NotificationFailed() {
	if m == nil {
		return
	}
	m.notifyFailure.Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
	return echo.WrapHandler(h)
}

// Middleware records request latency labelled by the matched route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.httpDuration.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}
