package replisync

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a zap logger at the given level ("debug", "info",
// "warn", "error"). development enables human-readable console output
// instead of JSON, for local runs.
func NewLogger(level string, development bool) (*zap.Logger, error) {
	lvl := zap.InfoLevel
	if level != "" {
		if err := lvl.Set(level); err != nil {
			return nil, fmt.Errorf("replisync: invalid log level %q: %w", level, err)
		}
	}

	encoding := "json"
	if development {
		encoding = "console"
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(lvl),
		Development: development,
		Encoding:    encoding,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stack",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	return cfg.Build()
}

// Metrics is the set of Prometheus collectors the server and client
// packages update (ConnectionsActive is registered, but nothing in this
// module sets it). All fields are safe to read/update concurrently;
// a nil *Metrics is valid everywhere it's accepted and simply means
// "metrics disabled".
type Metrics struct {
	EntitiesTracked   prometheus.Gauge
	ConnectionsActive prometheus.Gauge
	PacketsSent       prometheus.Counter
	PacketsResent     prometheus.Counter
	ProtocolViolations prometheus.Counter
	ReplaysTriggered  prometheus.Counter
}

// NewMetrics registers a fresh set of collectors on reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the
// default global registry across test runs.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EntitiesTracked: factory.NewGauge(prometheus.GaugeOpts{
			Name: "replisync_entities_tracked",
			Help: "Number of entities currently held by the server store.",
		}),
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "replisync_connections_active",
			Help: "Number of connections currently in the Connected state.",
		}),
		PacketsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "replisync_packets_sent_total",
			Help: "Total number of ticks written by connection writers, including idle ticks that write no bytes.",
		}),
		PacketsResent: factory.NewCounter(prometheus.CounterOpts{
			Name: "replisync_packets_resent_total",
			Help: "Total number of nacked packets whose entity actions were re-queued for sending.",
		}),
		ProtocolViolations: factory.NewCounter(prometheus.CounterOpts{
			Name: "replisync_protocol_violations_total",
			Help: "Total number of protocol violations that dropped a connection.",
		}),
		ReplaysTriggered: factory.NewCounter(prometheus.CounterOpts{
			Name: "replisync_replays_triggered_total",
			Help: "Total number of client-side prediction replays triggered.",
		}),
	}
}
