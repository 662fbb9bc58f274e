// Package metrics exposes Prometheus collectors for HTTP traffic and clinic
// business events, plus the /metrics handler.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clinic"

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)

	// Business metrics
	appointmentsBooked = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointments_booked_total",
			Help:      "Appointments successfully booked",
		},
	)

	bookingRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_booking_rejections_total",
			Help:      "Booking attempts rejected, by reason",
		},
		[]string{"reason"},
	)

	appointmentsCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointments_cancelled_total",
			Help:      "Appointments cancelled",
		},
	)

	encountersCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encounters_completed_total",
			Help:      "Encounters completed together with their invoice",
		},
	)

	invoiceRevenue = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_amount_total",
			Help:      "Sum of invoice totals issued, in VND",
		},
	)

	remindersSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_sent_total",
			Help:      "Appointment reminders delivered",
		},
	)

	remindersFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_failed_total",
			Help:      "Appointment reminders that could not be delivered",
		},
	)

	stockClamped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_export_clamped_total",
			Help:      "Stock exports reduced to the quantity on hand",
		},
	)

	loginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Role login attempts, by result",
		},
		[]string{"result"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count, latency and in-flight requests. Requests
// are labelled by route template (/api/v1/patients/:id) rather than raw path
// to keep label cardinality bounded.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			httpRequestsInFlight.Inc()
			defer httpRequestsInFlight.Dec()

			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if !c.Response().Committed {
					status = http.StatusInternalServerError
				}
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

var poolOnce sync.Once

// RegisterPoolStats exports connection pool gauges read on every scrape.
func RegisterPoolStats(pool *pgxpool.Pool) {
	poolOnce.Do(func() {
		gauge := func(name, help string, fn func(*pgxpool.Stat) float64) {
			promauto.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "db_pool",
				Name:      name,
				Help:      help,
			}, func() float64 { return fn(pool.Stat()) })
		}
		gauge("total_connections", "Open connections in the pool", func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) })
		gauge("acquired_connections", "Connections currently in use", func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) })
		gauge("idle_connections", "Idle connections", func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) })
		gauge("max_connections", "Configured pool size", func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) })
	})
}

// --- Business metric helpers ---

func RecordAppointmentBooked() { appointmentsBooked.Inc() }

// RecordBookingRejected counts a refused booking; reason is "conflict" or "lead_time".
func RecordBookingRejected(reason string) {
	bookingRejections.WithLabelValues(reason).Inc()
}

func RecordAppointmentCancelled() { appointmentsCancelled.Inc() }

// RecordEncounterCompleted counts a completed encounter and the invoice total it produced.
func RecordEncounterCompleted(invoiceTotal float64) {
	encountersCompleted.Inc()
	if invoiceTotal > 0 {
		invoiceRevenue.Add(invoiceTotal)
	}
}

func RecordReminderSent() { remindersSent.Inc() }

func RecordReminderFailed() { remindersFailed.Inc() }

func RecordStockClamped() { stockClamped.Inc() }

// RecordLogin counts a role login attempt by outcome ("success", "invalid", "forbidden").
func RecordLogin(result string) {
	loginsTotal.WithLabelValues(result).Inc()
}
