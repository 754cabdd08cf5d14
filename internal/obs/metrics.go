// Package obs exposes Prometheus counters for the execution pipeline.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Signals processed by ingestion outcome"},
		[]string{"outcome"},
	)
	RiskRejectReasons = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "risk_reject_reasons_total", Help: "Risk gate rejections by reason"},
		[]string{"reason"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Order lifecycle transitions by status"},
		[]string{"status"},
	)
	FillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fills_total", Help: "Fills applied by kind"},
		[]string{"kind"},
	)
	BrokerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "broker_errors_total", Help: "Broker submission failures by adapter"},
		[]string{"broker"},
	)
)

func init() {
	prometheus.MustRegister(SignalsTotal, RiskRejectReasons, OrdersTotal, FillsTotal, BrokerErrors)
}

// Serve starts the metrics endpoint in the background and returns the
// server for shutdown.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
