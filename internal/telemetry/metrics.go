package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/echoperf"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Perf client metrics
	ClientRequestsTotal           metric.Int64Counter
	ClientRequestErrorsTotal      metric.Int64Counter
	ClientChecksumMismatchesTotal metric.Int64Counter
	ClientRequestDuration         metric.Float64Histogram
	ClientBytesSentTotal          metric.Int64Counter
	ClientBytesReceivedTotal      metric.Int64Counter

	// Echo service metrics
	ServerConnectionsTotal   metric.Int64Counter
	ServerActiveConnections  metric.Int64UpDownCounter
	ServerBytesSentTotal     metric.Int64Counter
	ServerBytesReceivedTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.ClientRequestsTotal, _ = meter.Int64Counter(
		"echoperf.client.requests.total",
		metric.WithDescription("Total number of completed echo requests"),
		metric.WithUnit("{request}"),
	)

	m.ClientRequestErrorsTotal, _ = meter.Int64Counter(
		"echoperf.client.requests.errors.total",
		metric.WithDescription("Total number of failed echo requests"),
		metric.WithUnit("{error}"),
	)

	m.ClientChecksumMismatchesTotal, _ = meter.Int64Counter(
		"echoperf.client.checksum.mismatches.total",
		metric.WithDescription("Total number of request payload checksum mismatches"),
		metric.WithUnit("{mismatch}"),
	)

	m.ClientRequestDuration, _ = meter.Float64Histogram(
		"echoperf.client.request.duration",
		metric.WithDescription("Duration of echo requests including send and receive"),
		metric.WithUnit("ms"),
	)

	m.ClientBytesSentTotal, _ = meter.Int64Counter(
		"echoperf.client.bytes.sent.total",
		metric.WithDescription("Total bytes sent to the echo service"),
		metric.WithUnit("By"),
	)

	m.ClientBytesReceivedTotal, _ = meter.Int64Counter(
		"echoperf.client.bytes.received.total",
		metric.WithDescription("Total bytes received from the echo service"),
		metric.WithUnit("By"),
	)

	m.ServerConnectionsTotal, _ = meter.Int64Counter(
		"echoperf.server.connections.total",
		metric.WithDescription("Total number of accepted connections"),
		metric.WithUnit("{connection}"),
	)

	m.ServerActiveConnections, _ = meter.Int64UpDownCounter(
		"echoperf.server.connections.active",
		metric.WithDescription("Number of connections currently being served"),
		metric.WithUnit("{connection}"),
	)

	m.ServerBytesSentTotal, _ = meter.Int64Counter(
		"echoperf.server.bytes.sent.total",
		metric.WithDescription("Total response bytes written by the echo service"),
		metric.WithUnit("By"),
	)

	m.ServerBytesReceivedTotal, _ = meter.Int64Counter(
		"echoperf.server.bytes.received.total",
		metric.WithDescription("Total request bytes read by the echo service"),
		metric.WithUnit("By"),
	)

	return m
}
