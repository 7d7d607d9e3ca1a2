// Package metrics exposes the auth lifecycle counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bandcal/internal/auth"
)

// Collector implements auth.Metrics on Prometheus counters.
type Collector struct {
	signIns       *prometheus.CounterVec
	signOuts      prometheus.Counter
	refreshes     *prometheus.CounterVec
	notifications *prometheus.CounterVec
	staleWrites   *prometheus.CounterVec
}

var _ auth.Metrics = (*Collector)(nil)

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bandcal_auth_sign_ins_total",
			Help: "Sign-in and sign-up attempts by result.",
		}, []string{"result"}),
		signOuts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bandcal_auth_sign_outs_total",
			Help: "Completed sign-outs.",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bandcal_auth_refreshes_total",
			Help: "Proactive session refreshes by result.",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bandcal_auth_notifications_total",
			Help: "Identity provider notifications handled, by event.",
		}, []string{"event"}),
		staleWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bandcal_auth_stale_writes_total",
			Help: "Results discarded because a newer auth transition happened first.",
		}, []string{"handler"}),
	}

	reg.MustRegister(c.signIns, c.signOuts, c.refreshes, c.notifications, c.staleWrites)
	return c
}

func (c *Collector) RecordSignIn(result string)      { c.signIns.WithLabelValues(result).Inc() }
func (c *Collector) RecordSignOut()                  { c.signOuts.Inc() }
func (c *Collector) RecordRefresh(result string)     { c.refreshes.WithLabelValues(result).Inc() }
func (c *Collector) RecordNotification(event string) { c.notifications.WithLabelValues(event).Inc() }
func (c *Collector) RecordStaleWrite(handler string) { c.staleWrites.WithLabelValues(handler).Inc() }

// Handler serves the registry for scraping.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
