// Relay - Real-time Messaging for the OpenLancer Marketplace
// Copyright 2026 OpenLancer Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlancer/relay

// Package metrics defines the Prometheus instrumentation for Relay:
// connection and presence gauges, message throughput and delivery-state
// counters, store operation histograms, and REST request metrics.
// Metrics are registered with the default registry via promauto and exposed
// at /metrics.
package metrics
