// Package metrics exposes Prometheus instruments for the chat plane and
// webhook delivery pipeline.
package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config carries the constant labels stamped on every instrument.
type Config struct {
	ServiceName string
	Environment string
}

// ChatMetrics captures gateway, fanout and webhook health signals.
type ChatMetrics struct {
	gatewayConnections prometheus.Gauge
	messagesPublished  *prometheus.CounterVec
	fanoutDropped      prometheus.Counter
	webhookDeliveries  *prometheus.CounterVec
	webhookDuration    prometheus.Observer
	dispatcherRuns     prometheus.Counter
}

var (
	chatMetricsOnce sync.Once
	chatMetrics     *ChatMetrics
)

// Chat returns the singleton chat metrics registry.
func Chat() *ChatMetrics {
	return ChatWithConfig(Config{})
}

// ChatWithConfig returns the singleton chat metrics registry using config labels.
func ChatWithConfig(cfg Config) *ChatMetrics {
	chatMetricsOnce.Do(func() {
		chatMetrics = newChatMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return chatMetrics
}

// ResetChatMetricsForTest resets the chat metrics singleton for tests.
func ResetChatMetricsForTest() {
	chatMetricsOnce = sync.Once{}
	chatMetrics = nil
}

func newChatMetrics(registerer prometheus.Registerer, cfg Config) *ChatMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "chatboard"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	gatewayConnections := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "chatboard_gateway_connections",
		Help:        "Open WebSocket connections.",
		ConstLabels: constLabels,
	})
	messagesPublished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "chatboard_messages_published_total",
		Help:        "Messages published to the broadcast hub by event type.",
		ConstLabels: constLabels,
	}, []string{"type"})
	fanoutDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "chatboard_fanout_dropped_total",
		Help:        "Hub events dropped because a subscriber buffer was full.",
		ConstLabels: constLabels,
	})
	webhookDeliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "chatboard_webhook_deliveries_total",
		Help:        "Webhook delivery attempts by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	webhookDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "chatboard_webhook_delivery_duration_seconds",
		Help:        "Webhook delivery attempt latency.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: constLabels,
	})
	dispatcherRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "chatboard_webhook_dispatcher_runs_total",
		Help:        "Outbox dispatcher passes.",
		ConstLabels: constLabels,
	})

	for _, collector := range []prometheus.Collector{
		gatewayConnections,
		messagesPublished,
		fanoutDropped,
		webhookDeliveries,
		webhookDuration,
		dispatcherRuns,
	} {
		if err := registerer.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}

	return &ChatMetrics{
		gatewayConnections: gatewayConnections,
		messagesPublished:  messagesPublished,
		fanoutDropped:      fanoutDropped,
		webhookDeliveries:  webhookDeliveries,
		webhookDuration:    webhookDuration,
		dispatcherRuns:     dispatcherRuns,
	}
}

// ConnectionOpened records a gateway connection being established.
func (m *ChatMetrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.gatewayConnections.Inc()
}

// ConnectionClosed records a gateway connection going away.
func (m *ChatMetrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.gatewayConnections.Dec()
}

// MessagePublished records an event handed to the broadcast hub.
func (m *ChatMetrics) MessagePublished(eventType string) {
	if m == nil {
		return
	}
	m.messagesPublished.WithLabelValues(eventType).Inc()
}

// FanoutDropped records an event dropped on a slow subscriber.
func (m *ChatMetrics) FanoutDropped() {
	if m == nil {
		return
	}
	m.fanoutDropped.Inc()
}

// WebhookDelivery records a delivery attempt outcome and latency.
func (m *ChatMetrics) WebhookDelivery(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.webhookDeliveries.WithLabelValues(outcome).Inc()
	m.webhookDuration.Observe(elapsed.Seconds())
}

// DispatcherRun records one outbox dispatcher pass.
func (m *ChatMetrics) DispatcherRun() {
	if m == nil {
		return
	}
	m.dispatcherRuns.Inc()
}
