package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/escrowd/internal/config"
	"github.com/fyrsmithlabs/escrowd/internal/events"
	apihttp "github.com/fyrsmithlabs/escrowd/internal/http"
	"github.com/fyrsmithlabs/escrowd/internal/ledger"
	"github.com/fyrsmithlabs/escrowd/internal/task"
	"github.com/fyrsmithlabs/escrowd/internal/telemetry"
)

// app holds the wired service graph for one process.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	tel      *telemetry.Telemetry
	registry *prometheus.Registry
	ledger   *ledger.Memory
	tasks    *task.Service
	server   *apihttp.Server

	natsServer *natsserver.Server
	natsConn   *nats.Conn
}

// newApp wires ledger, events, task service and HTTP server from cfg.
// tel may be nil.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, tel *telemetry.Telemetry) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		tel:      tel,
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a.ledger = ledger.NewMemory(ledger.NewMetrics(a.registry), logger)
	if cfg.Ledger.GenesisPath != "" {
		g, err := ledger.LoadGenesis(cfg.Ledger.GenesisPath)
		if err != nil {
			return nil, err
		}
		if err := g.Apply(ctx, a.ledger); err != nil {
			return nil, fmt.Errorf("apply genesis: %w", err)
		}
		logger.Info("genesis applied",
			zap.String("path", cfg.Ledger.GenesisPath),
			zap.Int("accounts", len(g.Accounts)))
	}

	emitter, err := a.initEvents()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.tasks, err = task.NewService(&task.Config{
		MaxNameLength: cfg.Limits.MaxNameLength,
		MaxRecipients: cfg.Limits.MaxRecipients,
	}, a.ledger, emitter, logger,
		task.WithTracer(tel.Tracer(task.InstrumentationName)),
		task.WithMeter(tel.Meter(task.InstrumentationName)),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("task service: %w", err)
	}

	var opts []apihttp.Option
	if tel != nil {
		opts = append(opts, apihttp.WithHealthCheck("telemetry", func(context.Context) error {
			if h := tel.Health(); h.Degraded {
				return fmt.Errorf("degraded: %v", h.Reasons)
			}
			return nil
		}))
	}
	if a.natsConn != nil {
		nc := a.natsConn
		opts = append(opts, apihttp.WithHealthCheck("nats", func(context.Context) error {
			if s := nc.Status(); s != nats.CONNECTED {
				return fmt.Errorf("status %s", s)
			}
			return nil
		}))
	}

	a.server, err = apihttp.NewServer(a.tasks, a.ledger, logger, &apihttp.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		CallerHeader: cfg.Server.CallerHeader,
		BodyLimit:    "64K",
		RateLimit: apihttp.RateLimitConfig{
			Enabled:           cfg.RateLimit.Enabled,
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			ExpiresIn:         cfg.RateLimit.ExpiresIn.Duration(),
		},
		Gatherer: a.registry,
	}, opts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("http server: %w", err)
	}

	return a, nil
}

// initEvents builds the event sink: debug logging always, NATS when enabled.
func (a *app) initEvents() (events.Emitter, error) {
	cfg := a.cfg.NATS
	emitter := events.Multi{events.Log{Logger: a.logger}}
	if !cfg.Enabled {
		return emitter, nil
	}

	url := cfg.URL
	if cfg.Embedded {
		opts := &natsserver.Options{
			Host:   "127.0.0.1",
			Port:   -1,
			NoLog:  true,
			NoSigs: true,
		}
		if cfg.Token.IsSet() {
			opts.Authorization = cfg.Token.Value()
		}
		ns, err := natsserver.NewServer(opts)
		if err != nil {
			return nil, fmt.Errorf("embedded nats: %w", err)
		}
		go ns.Start()
		if !ns.ReadyForConnections(5 * time.Second) {
			ns.Shutdown()
			return nil, errors.New("embedded nats: not ready")
		}
		a.natsServer = ns
		url = ns.ClientURL()
		a.logger.Info("embedded nats started", zap.String("url", url))
	}

	natsOpts := []nats.Option{
		nats.Name("escrowd"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				a.logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			a.logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	if cfg.Token.IsSet() {
		natsOpts = append(natsOpts, nats.Token(cfg.Token.Value()))
	}

	nc, err := nats.Connect(url, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats at %s: %w", url, err)
	}
	a.natsConn = nc

	natsEmitter, err := events.NewNATSEmitter(nc, cfg.SubjectPrefix, a.logger)
	if err != nil {
		return nil, err
	}
	a.logger.Info("publishing events to nats",
		zap.String("url", url),
		zap.String("subject_prefix", cfg.SubjectPrefix))
	return append(emitter, natsEmitter), nil
}

// Close releases NATS resources. Safe to call more than once.
func (a *app) Close() {
	if a.natsConn != nil {
		if err := a.natsConn.FlushTimeout(time.Second); err != nil {
			a.logger.Warn("flush nats", zap.Error(err))
		}
		a.natsConn.Close()
		a.natsConn = nil
	}
	if a.natsServer != nil {
		a.natsServer.Shutdown()
		a.natsServer.WaitForShutdown()
		a.natsServer = nil
	}
}
