/*
Copyright 2026 DaleStudy
SPDX-License-Identifier: Apache-2.0
*/

package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weekbot_webhook_deliveries_total",
		Help: "Webhook deliveries by event type and outcome.",
	}, []string{"event", "outcome"})

	reconcileActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weekbot_reconcile_actions_total",
		Help: "Warning-comment reconciliation outcomes.",
	}, []string{"action"})

	bulkActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weekbot_bulk_actions_total",
		Help: "Bulk operation outcomes by action.",
	}, []string{"action", "outcome"})
)

func countReconcile(commented, deleted bool) {
	switch {
	case commented:
		reconcileActions.WithLabelValues("warned").Inc()
	case deleted:
		reconcileActions.WithLabelValues("cleared").Inc()
	default:
		reconcileActions.WithLabelValues("noop").Inc()
	}
}
