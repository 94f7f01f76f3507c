package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	numbersProvisionedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "provisioning",
			Name:      "numbers_provisioned_total",
			Help:      "Total numbers provisioned, by source.",
		},
		[]string{"source"}, // pool, purchased, placeholder
	)

	provisioningFallbackCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "provisioning",
			Name:      "fallbacks_total",
			Help:      "Provisioning stages that fell through to the next source.",
		},
		[]string{"stage", "reason"},
	)

	webhookEventsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "provisioning",
			Name:      "webhook_events_total",
			Help:      "Inbound webhook events processed.",
		},
		[]string{"event_type", "outcome"}, // outcome: provisioned, replayed, discarded, error
	)

	poolAvailableGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "provisioning",
			Name:      "pool_available_numbers",
			Help:      "Advisory count of available numbers in the pool.",
		},
	)

	providerRequestDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "provisioning",
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of number purchase requests to external providers.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider_name", "outcome"},
	)

	callHandoffCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "provisioning",
			Name:      "call_handoffs_total",
			Help:      "Inbound calls resolved and handed to the voice-AI consumer.",
		},
		[]string{"outcome"},
	)
)
