package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "whatsapp_bot"

// Metrics agrupa os instrumentos Prometheus do serviço. Registry próprio
// para os testes poderem criar quantas instâncias quiserem.
type Metrics struct {
	registry *prometheus.Registry

	MessagesReceived prometheus.Counter
	MessagesSent     prometheus.Counter
	SendFailures     prometheus.Counter
	EventsDropped    prometheus.Counter
	AutoReplies      *prometheus.CounterVec
	ConnectionUp     prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		MessagesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Mensagens recebidas processadas pelo pipeline.",
		}),
		MessagesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Mensagens enviadas com sucesso.",
		}),
		SendFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Envios que falharam no transporte.",
		}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Eventos descartados por fila cheia.",
		}),
		AutoReplies: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autoreplies_total",
			Help:      "Respostas automáticas enviadas, por tipo.",
		}, []string{"type"}),
		ConnectionUp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_up",
			Help:      "1 quando a sessão está conectada e pronta.",
		}),
	}
}

// ObserveConnection espelha o estado da sessão no gauge.
func (m *Metrics) ObserveConnection(ready bool) {
	if ready {
		m.ConnectionUp.Set(1)
		return
	}
	m.ConnectionUp.Set(0)
}

// Handler expõe o registry no formato de scrape do Prometheus.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
