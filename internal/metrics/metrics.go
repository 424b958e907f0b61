// Package metrics собирает Prometheus-метрики игрового движка.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "buildle"

// Metrics хранит все коллекторы приложения. Методы безопасны для nil-получателя.
type Metrics struct {
	challengesCreated prometheus.Counter
	roundsStarted     prometheus.Counter
	roundsClosed      *prometheus.CounterVec
	casLost           prometheus.Counter
	resultsRecorded   *prometheus.CounterVec
	hostRejected      prometheus.Counter

	feedPublished *prometheus.CounterVec
	feedDropped   prometheus.Counter

	wsClients     prometheus.Gauge
	wsRooms       prometheus.Gauge
	wsMessages    *prometheus.CounterVec
	guessRejected *prometheus.CounterVec
}

// New создает коллекторы и регистрирует их в reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		challengesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "challenges_created_total",
			Help: "Number of challenges created.",
		}),
		roundsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rounds_started_total",
			Help: "Number of races started by hosts.",
		}),
		roundsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rounds_closed_total",
			Help: "Rounds closed by a winner, by resulting status.",
		}, []string{"status"}),
		casLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "round_claims_lost_total",
			Help: "Winning submissions whose round-winner update matched no row.",
		}),
		resultsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "results_recorded_total",
			Help: "Round results upserted, by outcome.",
		}, []string{"outcome"}),
		hostRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "host_actions_rejected_total",
			Help: "Host-only actions rejected because of a wrong host key.",
		}),
		feedPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feed", Name: "published_total",
			Help: "Change events published, by kind.",
		}, []string{"kind"}),
		feedDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feed", Name: "dropped_total",
			Help: "Change events evicted from a full subscriber buffer.",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "ws", Name: "clients",
			Help: "Connected websocket clients.",
		}),
		wsRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "ws", Name: "rooms",
			Help: "Challenges with at least one connected client.",
		}),
		wsMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ws", Name: "messages_total",
			Help: "Websocket messages, by direction and type.",
		}, []string{"direction", "type"}),
		guessRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "guesses_rejected_total",
			Help: "Guesses rejected before evaluation, by reason.",
		}, []string{"reason"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.challengesCreated, m.roundsStarted, m.roundsClosed, m.casLost,
			m.resultsRecorded, m.hostRejected, m.feedPublished, m.feedDropped,
			m.wsClients, m.wsRooms, m.wsMessages, m.guessRejected,
		)
	}
	return m
}

func (m *Metrics) ChallengeCreated() {
	if m != nil {
		m.challengesCreated.Inc()
	}
}

func (m *Metrics) RoundStarted() {
	if m != nil {
		m.roundsStarted.Inc()
	}
}

// RoundClosed учитывает закрытый раунд; status - round_over или match_over
func (m *Metrics) RoundClosed(status string) {
	if m != nil {
		m.roundsClosed.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) ClaimLost() {
	if m != nil {
		m.casLost.Inc()
	}
}

func (m *Metrics) ResultRecorded(won bool) {
	if m == nil {
		return
	}
	outcome := "lost"
	if won {
		outcome = "won"
	}
	m.resultsRecorded.WithLabelValues(outcome).Inc()
}

func (m *Metrics) HostRejected() {
	if m != nil {
		m.hostRejected.Inc()
	}
}

func (m *Metrics) FeedPublished(kind string) {
	if m != nil {
		m.feedPublished.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) FeedDropped() {
	if m != nil {
		m.feedDropped.Inc()
	}
}

func (m *Metrics) ClientConnected() {
	if m != nil {
		m.wsClients.Inc()
	}
}

func (m *Metrics) ClientDisconnected() {
	if m != nil {
		m.wsClients.Dec()
	}
}

func (m *Metrics) SetRooms(n int) {
	if m != nil {
		m.wsRooms.Set(float64(n))
	}
}

// Message учитывает сообщение WebSocket; direction - in или out
func (m *Metrics) Message(direction, msgType string) {
	if m != nil {
		m.wsMessages.WithLabelValues(direction, msgType).Inc()
	}
}

func (m *Metrics) GuessRejected(reason string) {
	if m != nil {
		m.guessRejected.WithLabelValues(reason).Inc()
	}
}
