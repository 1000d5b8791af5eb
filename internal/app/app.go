// Package app assembles the service: device adapter, store, oracles,
// decision and scheduling tasks and the HTTP endpoints, all managed as one
// task group.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/clambin/go-common/taskmanager"
	"github.com/clambin/go-common/taskmanager/httpserver"
	promserver "github.com/clambin/go-common/taskmanager/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/collector"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/controller"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/controller/notifier"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/dispatcher"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/health"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/nest"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/oracle"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/poller"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/scheduler"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/server"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/store"
	"github.com/slack-go/slack"
	"github.com/spf13/viper"
)

func New(ctx context.Context, cfg *viper.Viper, registry prometheus.Registerer, logger *slog.Logger) (*taskmanager.Manager, error) {
	nestClient, err := nest.New(ctx, nest.Config{
		ProjectID:    cfg.GetString("nest.projectID"),
		ClientID:     cfg.GetString("nest.clientID"),
		ClientSecret: cfg.GetString("nest.clientSecret"),
		RefreshToken: cfg.GetString("nest.refreshToken"),
		Timeout:      cfg.GetDuration("nest.timeout"),
	}, registry, logger.With("component", "nest"))
	if err != nil {
		return nil, fmt.Errorf("nest: %w", err)
	}

	db, err := store.New(ctx, store.Config{
		URI:      cfg.GetString("database.uri"),
		Database: cfg.GetString("database.database"),
	}, logger.With("component", "store"))
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if err = db.Seed(ctx, cfg.GetString("database.seedFile")); err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	return taskmanager.New(makeTasks(cfg, nestClient, db, registry, logger)...), nil
}

func makeTasks(cfg *viper.Viper, nestClient *nest.Client, db *store.Store, registry prometheus.Registerer, l *slog.Logger) []taskmanager.Task {
	var tasks []taskmanager.Task

	// Poller
	p := poller.New(nestClient, cfg.GetDuration("poller.interval"), l.With("component", "poller"))
	tasks = append(tasks, p)

	// Collector
	coll := &collector.Collector{Poller: p, Logger: l.With("component", "collector")}
	if registry != nil {
		registry.MustRegister(coll)
	}
	tasks = append(tasks, coll)

	// Prometheus Server
	tasks = append(tasks, promserver.New(promserver.WithAddr(cfg.GetString("exporter.addr"))))

	// Health Endpoint
	h := health.New(p, l.With("component", "health"))
	tasks = append(tasks, h)
	r := http.NewServeMux()
	r.Handle("/health", h)
	tasks = append(tasks, httpserver.New(cfg.GetString("health.addr"), r))

	// Context oracles
	o := oracle.New(oracle.Config{
		WeatherURL:  cfg.GetString("oracle.weatherURL"),
		PresenceURL: cfg.GetString("oracle.presenceURL"),
		CalendarURL: cfg.GetString("oracle.calendarURL"),
		SensorsURL:  cfg.GetString("oracle.sensorsURL"),
		Timeout:     cfg.GetDuration("oracle.timeout"),
	}, registry, nil)

	// Notifiers
	notifiers := notifier.Notifiers{notifier.SLogNotifier{Logger: l.With("component", "notifier")}}
	if token := cfg.GetString("notifier.slack.token"); token != "" {
		notifiers = append(notifiers, &notifier.SlackNotifier{
			Logger:  l.With("component", "notifier"),
			Sender:  slack.New(token),
			Channel: cfg.GetString("notifier.slack.channel"),
		})
	}

	// Controller
	d := dispatcher.New(nestClient, registry, l.With("component", "dispatcher"))
	c := controller.New(db, o, d, nestClient, p, notifiers, l.With("component", "controller"))
	tasks = append(tasks, c)

	// Scheduler
	s := scheduler.New(db, o, c, l.With("component", "scheduler"))
	tasks = append(tasks, s)

	// REST API
	api := server.New(db, c, s, l.With("component", "server"))
	tasks = append(tasks, httpserver.New(cfg.GetString("server.addr"), api.Router()))

	return tasks
}
