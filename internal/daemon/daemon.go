// Package daemon implements the scheduler server lifecycle: boot, the
// master tick loop and graceful shutdown.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"firestige.xyz/chronod/internal/command"
	"firestige.xyz/chronod/internal/config"
	"firestige.xyz/chronod/internal/log"
	"firestige.xyz/chronod/internal/metrics"
	"firestige.xyz/chronod/internal/task"
)

// TickInterval is the cadence of the master scheduler loop.
const TickInterval = 500 * time.Millisecond

// Daemon wires the environment, the ingestion server and the optional
// metrics endpoint, and drives the tick loop.
type Daemon struct {
	config     *config.Config
	configPath string
	pidFile    string

	env           *task.Environment
	server        *command.Server
	metricsServer *metrics.Server

	sigChan  chan os.Signal
	stopChan chan struct{}
}

// New loads the configuration and builds the environment. Configuration
// errors, including unparseable schedule strings, abort startup.
func New(configPath, pidFile string) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Init(&cfg.Logger)

	groups := make([]*task.TaskGroup, 0, len(cfg.Groups))
	for _, gc := range cfg.Groups {
		g, err := task.NewTaskGroup(gc)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", configPath, err)
		}
		groups = append(groups, g)
	}

	env, err := task.NewEnvironment(cfg.Log, groups)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", configPath, err)
	}

	return &Daemon{
		config:     cfg,
		configPath: configPath,
		pidFile:    pidFile,
		env:        env,
		server:     command.NewServer(cfg.Listening, env),
		stopChan:   make(chan struct{}, 1),
	}, nil
}

// Start brings up the ingestion server and the metrics endpoint.
func (d *Daemon) Start() error {
	log.GetLogger().WithFields(map[string]interface{}{
		"config": d.configPath,
		"groups": d.env.NbGroups(),
	}).Info("starting scheduler daemon")

	if err := d.writePIDFile(); err != nil {
		return err
	}

	if d.config.Metrics.Enabled {
		d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
		if err := d.metricsServer.Start(); err != nil {
			return err
		}
	}

	return d.server.Start()
}

// Run drives the tick loop until a shutdown signal arrives.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT)

	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	log.GetLogger().Info("daemon started, scheduling")

	for {
		select {
		case <-ticker.C:
			d.env.Update()
		case sig := <-d.sigChan:
			log.GetLogger().WithField("signal", sig.String()).
				Info("received shutdown signal")
			d.Stop()
			return nil
		case <-d.stopChan:
			d.Stop()
			return nil
		}
	}
}

// Shutdown asks a running Run loop to stop. Used by tests.
func (d *Daemon) Shutdown() {
	select {
	case d.stopChan <- struct{}{}:
	default:
	}
}

// Env exposes the environment for inspection.
func (d *Daemon) Env() *task.Environment {
	return d.env
}

// Stop tears the daemon down: no new submissions, one final snapshot if
// the group list changed since the last write.
func (d *Daemon) Stop() {
	d.server.Stop()

	if d.metricsServer != nil {
		if err := d.metricsServer.Stop(context.Background()); err != nil {
			log.GetLogger().WithError(err).Error("error stopping metrics server")
		}
	}

	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	d.env.PersistIfDirty()

	if err := d.removePIDFile(); err != nil {
		log.GetLogger().WithError(err).Error("error removing PID file")
	}

	log.GetLogger().Info("daemon stopped gracefully")
}

func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}
	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(d.pidFile, []byte(pid), 0o644); err != nil {
		return fmt.Errorf("write PID file %s: %w", d.pidFile, err)
	}
	return nil
}

func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}
	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
