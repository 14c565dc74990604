package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hsklearn/vocab-auth/authenticate/internal/audit"
	"github.com/hsklearn/vocab-auth/authenticate/internal/config"
	"github.com/hsklearn/vocab-auth/authenticate/internal/locker"
	"github.com/hsklearn/vocab-auth/authenticate/internal/repository"
	"github.com/hsklearn/vocab-auth/authenticate/internal/service"
	"github.com/hsklearn/vocab-auth/common/logging"
	"github.com/hsklearn/vocab-auth/common/loginstats"
	"github.com/hsklearn/vocab-auth/common/messaging"
	natsclient "github.com/hsklearn/vocab-auth/common/messaging/nats"
)

// app holds the wired components shared by every subcommand.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	repo      repository.Repository
	auditLog  *audit.Log
	svc       *service.AuthService
	publisher messaging.Publisher

	closers []func() error
}

type appOptions struct {
	// sinks enables the NATS and OpenSearch audit sinks.
	sinks bool
	logTo io.Writer
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (_ *app, err error) {
	logger := logging.NewWithWriter(opts.logTo, logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format).
		With(logging.Service("authenticate"))

	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	repo, err := repository.Open(ctx, repository.Options{
		Type:        cfg.Database.Type,
		PostgresURL: cfg.Database.Postgres.ConnString(),
		SQLitePath:  cfg.Database.SQLite.Path,
		Admin: repository.AdminSeed{
			Username: cfg.Auth.AdminUsername,
			Secret:   cfg.Auth.AdminPassword,
		},
	}, logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	a.repo = repo
	a.closers = append(a.closers, repo.Close)

	var locks locker.Locker = locker.NewKeyedMutex()
	if cfg.Redis.Enabled {
		rl, err := locker.NewRedisLocker(ctx, locker.RedisConfig{
			URL:    cfg.Redis.URL,
			Prefix: cfg.Redis.Prefix,
			TTL:    cfg.Redis.LockTTL,
			Wait:   cfg.Redis.Wait,
		})
		if err != nil {
			return nil, fmt.Errorf("connect identity lock store: %w", err)
		}
		a.closers = append(a.closers, rl.Close)
		locks = rl
		logger.Info("identity locks held in redis", slog.String("prefix", cfg.Redis.Prefix))
	}

	var sinks []audit.Sink
	if opts.sinks {
		sinks, err = a.openSinks(ctx)
		if err != nil {
			return nil, err
		}
	}

	a.auditLog = audit.NewLog(repo, cfg.Auth.AuditSecret, logger.Logger, sinks...)
	a.svc = service.NewAuthService(repo, a.auditLog, locks, logger.Logger)
	return a, nil
}

func (a *app) openSinks(ctx context.Context) ([]audit.Sink, error) {
	var sinks []audit.Sink

	if a.cfg.NATS.Enabled {
		ncfg := natsclient.DefaultConfig()
		ncfg.URL = a.cfg.NATS.URL
		ncfg.MaxReconnects = a.cfg.NATS.MaxReconnects
		ncfg.ReconnectWait = a.cfg.NATS.ReconnectWait
		ncfg.Stream = a.cfg.NATS.Stream
		if a.cfg.NATS.StreamMaxAge > 0 {
			ncfg.StreamMaxAge = a.cfg.NATS.StreamMaxAge
		}
		client, err := natsclient.NewClient(ctx, ncfg, a.logger.Logger)
		if err != nil {
			return nil, fmt.Errorf("connect event bus: %w", err)
		}
		a.publisher = client
		a.closers = append(a.closers, client.Close)
		sinks = append(sinks, audit.NewNATSSink(client))
	}

	if a.cfg.OpenSearch.Enabled {
		search, err := audit.NewOpenSearchSink(audit.OpenSearchConfig{
			URL:      a.cfg.OpenSearch.URL,
			Username: a.cfg.OpenSearch.Username,
			Password: a.cfg.OpenSearch.Password,
			Insecure: a.cfg.OpenSearch.Insecure,
			Index:    a.cfg.OpenSearch.Index,
		})
		if err != nil {
			return nil, fmt.Errorf("create opensearch sink: %w", err)
		}
		sinks = append(sinks, search)
	}
	if a.cfg.Stats.Enabled {
		client, err := a.openStats(ctx)
		if err != nil {
			return nil, err
		}
		collector := loginstats.NewCollector(client, a.cfg.Stats.FlushInterval, a.logger.Logger)
		a.closers = append(a.closers, func() error { collector.Stop(); return nil })
		sinks = append(sinks, audit.NewStatsSink(collector))
	}
	return sinks, nil
}

// openStats connects the login statistics client. It is closed with the app.
func (a *app) openStats(ctx context.Context) (*loginstats.Client, error) {
	instanceID := a.cfg.Stats.InstanceID
	if instanceID == "" {
		instanceID, _ = os.Hostname()
	}
	client, err := loginstats.NewClient(ctx, a.cfg.Redis.URL, instanceID)
	if err != nil {
		return nil, fmt.Errorf("connect login stats: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	return client, nil
}

// Close flushes pending sink deliveries, then releases resources in reverse
// order of acquisition.
func (a *app) Close() error {
	if a.auditLog != nil {
		a.auditLog.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
