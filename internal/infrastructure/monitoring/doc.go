/*
Package monitoring provides Prometheus metrics for the agent.

# Overview

Metrics are registered on a per-process registry rather than the global
default, so tests can build independent collectors. The registry also
carries the Go runtime and process collectors.

# Features

- Control channel traffic by source and type, plus parse/sequence anomalies
- Notification router output by level and agent-disabled events
- Notifier status gauge, supervisor restarts and lifecycle timings
- Entropy pool refill counters read straight from the pool
- Diagnostics HTTP request metrics and stream client counts

# Usage

	metrics := monitoring.NewMetrics()
	metrics.WatchPool(pool)
	metrics.WatchServer(ctl)
	router.Observe(metrics.RecordMessage)

	engine.Use(monitoring.Middleware(metrics))
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))
*/
package monitoring
