// Package app wires the parser, session adapter, engine and sinks into
// a runnable service.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cmdscript/cmdscript/config"
	"github.com/cmdscript/cmdscript/core/engine"
	coremqtt "github.com/cmdscript/cmdscript/core/mqtt"
	"github.com/cmdscript/cmdscript/core/script"
	"github.com/cmdscript/cmdscript/infra/logger"
	"github.com/cmdscript/cmdscript/infra/logsink"
	"github.com/cmdscript/cmdscript/infra/metrics"
	infmqtt "github.com/cmdscript/cmdscript/infra/mqtt"
	"github.com/cmdscript/cmdscript/internal/eventbus"
)

// Service executes one script file per run.
type Service struct {
	cfg   *config.Config
	log   logger.Logger
	sink  *logsink.Sink
	msgs  *eventbus.Bus[coremqtt.Message]
	links *eventbus.Bus[coremqtt.LinkEvent]
	stats *metrics.Collector
	reg   *prometheus.Registry
}

// New builds the service from runtime configuration.
func New(cfg *config.Config) (*Service, error) {
	logger.SetLevel(cfg.Logging.Level)
	reg := prometheus.NewRegistry()
	stats, err := metrics.NewCollector(reg)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	return &Service{
		cfg:   cfg,
		log:   logger.New("cmdscript"),
		sink:  logsink.New(logger.New("logsink")),
		msgs:  eventbus.New[coremqtt.Message](64),
		links: eventbus.New[coremqtt.LinkEvent](8),
		stats: stats,
		reg:   reg,
	}, nil
}

// Run parses scriptPath and executes it until completion or ctx cancel.
// Parsing happens entirely before any broker interaction.
func (s *Service) Run(ctx context.Context, scriptPath string) error {
	text, err := os.ReadFile(scriptPath)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	cmds, err := script.Parse(string(text))
	if err != nil {
		return fmt.Errorf("parse script: %w", err)
	}
	sessionCfg, steps := script.Accumulate(cmds)
	s.log.Debugw("session config", map[string]any{
		"client_id":     sessionCfg.ClientID,
		"clean_session": sessionCfg.CleanSession,
		"keepalive_s":   sessionCfg.KeepaliveSec,
		"use_tls":       sessionCfg.UseTLS,
	})

	if s.cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartServer(s.cfg.Metrics.Listen, s.reg); err != nil {
				s.log.Errorf("%v", err)
			}
		}()
	}

	session := infmqtt.NewPahoSession(sessionCfg, infmqtt.Options{
		ConnectTimeout:    time.Duration(s.cfg.MQTT.ConnectTimeoutSec) * time.Second,
		DisconnectQuiesce: time.Duration(s.cfg.MQTT.DisconnectQuiesceMS) * time.Millisecond,
	}, s.msgs, s.links, logger.New("mqtt"))

	eng := engine.New(session, s.sink, s.msgs, s.links, logger.New("engine"), s.stats)
	return eng.Run(ctx, steps)
}

// Close releases buses and flushes every open log file.
func (s *Service) Close() error {
	s.msgs.Close()
	s.links.Close()
	return s.sink.Close()
}
