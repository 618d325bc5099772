/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Seednode/whopays/outcome"
)

type metrics struct {
	registry   *prometheus.Registry
	outcomes   *prometheus.CounterVec
	rejections *prometheus.CounterVec
	parties    prometheus.Gauge
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "whopays_outcomes_total",
			Help: "Results computed, by bill mode.",
		}, []string{"mode"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "whopays_rejections_total",
			Help: "Compute requests refused by the outcome engine, by reason.",
		}, []string{"reason"}),
		parties: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "whopays_parties_active",
			Help: "Parties currently held in memory.",
		}),
	}

	m.registry.MustRegister(m.outcomes, m.rejections, m.parties)

	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) computed(mode outcome.Mode) {
	m.outcomes.WithLabelValues(mode.String()).Inc()
}

func (m *metrics) rejected(err error) {
	m.rejections.WithLabelValues(rejectionReason(err)).Inc()
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, outcome.ErrInsufficientParticipants):
		return "insufficient_participants"
	case errors.Is(err, outcome.ErrInvalidSplitTarget):
		return "invalid_split_target"
	case errors.Is(err, outcome.ErrInvalidAmount):
		return "invalid_amount"
	default:
		return "other"
	}
}
