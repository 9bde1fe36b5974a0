package daemon

// Package daemon wires the unattended lab mode: a watcher over the footage
// drop directory, the upload queue drain, the media pruner, and a small
// local HTTP endpoint for health and Prometheus metrics. It implements
// service.Interface so the whole thing can run under the OS service manager.

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"vlab/internal/api"
	"vlab/internal/config"
	"vlab/internal/metrics"
	"vlab/internal/store"
	"vlab/internal/watcher"

	"github.com/go-chi/chi/v5"
	"github.com/kardianos/service"
)

// Daemon implements service.Interface and controls the lifecycle of the
// background workers.
type Daemon struct {
	Logger *slog.Logger
	Cfg    *config.Config

	DbStore     *store.Store
	Metrics     *metrics.Metrics
	UploaderSvc *Uploader
	PrunerSvc   *Pruner
	WatcherSvc  *watcher.Watcher

	httpSrv *http.Server
}

// Start is called when the service is started. It initializes configuration,
// the local database, and the background workers.
func (d *Daemon) Start(s service.Service) error {
	ex, err := os.Executable()
	if err != nil {
		return err
	}
	cfgPath := filepath.Join(filepath.Dir(ex), "config.json")

	if d.Cfg == nil {
		d.Cfg, err = config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %v", err)
		}
	}

	// Ensure the config file exists for user convenience.
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		config.Save(cfgPath, d.Cfg)
	}

	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	d.DbStore, err = store.NewStore(d.Cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init store at %s: %v", d.Cfg.DBPath, err)
	}

	d.Metrics = metrics.New()

	apic := api.NewClient(d.Cfg.APIBaseURL, d.Cfg.RequestTimeout)
	apic.Tokens = d.DbStore

	d.UploaderSvc = NewUploader(d.Cfg, d.DbStore, apic, d.Metrics, d.Logger)
	d.UploaderSvc.Start()

	d.PrunerSvc = NewPruner(d.Cfg, d.DbStore, d.Metrics, d.Logger)
	d.PrunerSvc.Start()

	if err := os.MkdirAll(d.Cfg.WatchPath, 0755); err != nil {
		return fmt.Errorf("failed to create watch dir: %v", err)
	}

	debounce := config.Duration(d.Cfg.DebounceDuration, 500*time.Millisecond)
	d.WatcherSvc, err = watcher.NewWatcher(d.Cfg.WatchPath, debounce, d.Cfg.AllowedExtensions, d.enqueueFile, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to start watcher: %v", err)
	}

	// Catch footage dropped while the daemon was offline.
	go d.scanExistingFiles()

	if d.Cfg.MetricsAddr != "" {
		d.startHTTP(d.Cfg.MetricsAddr)
	}

	d.Logger.Info("Validation lab daemon started")
	d.Logger.Info("Configuration", "watch_path", d.Cfg.WatchPath, "api_base_url", d.Cfg.APIBaseURL, "max_capacity", d.Cfg.MaxCapacity)
	return nil
}

// enqueueFile registers detected footage in the upload queue.
func (d *Daemon) enqueueFile(path string) {
	info, err := os.Stat(path)
	if err != nil {
		d.Logger.Error("stat error", "path", path, "error", err)
		return
	}
	if info.IsDir() {
		return
	}

	if err := d.DbStore.AddOrUpdateUpload(path, info.Size(), info.ModTime()); err != nil {
		d.Logger.Error("db error", "path", path, "error", err)
		return
	}
	d.Logger.Info("Detected", "path", path)
}

// scanExistingFiles walks the watch path and enqueues footage that matches
// the allowed extensions.
func (d *Daemon) scanExistingFiles() {
	d.Logger.Info("Performing initial scan", "path", d.Cfg.WatchPath)

	allowed := make(map[string]bool, len(d.Cfg.AllowedExtensions))
	for _, ext := range d.Cfg.AllowedExtensions {
		allowed[ext] = true
	}

	err := filepath.Walk(d.Cfg.WatchPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if len(allowed) > 0 && !allowed[filepath.Ext(path)] {
			return nil
		}
		d.enqueueFile(path)
		return nil
	})
	if err != nil {
		d.Logger.Error("Initial scan failed", "error", err)
	}
}

// startHTTP serves /healthz and /metrics on the configured address.
func (d *Daemon) startHTTP(addr string) {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", d.Metrics.Handler())

	d.httpSrv = &http.Server{Addr: addr, Handler: r}
	go func() {
		if err := d.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			d.Logger.Error("metrics endpoint failed", "addr", addr, "error", err)
		}
	}()
	d.Logger.Info("Metrics endpoint listening", "addr", addr)
}

// Stop is called when the service is being stopped.
func (d *Daemon) Stop(s service.Service) error {
	d.Logger.Info("Stopping validation lab daemon...")
	if d.WatcherSvc != nil {
		d.WatcherSvc.Close()
	}
	if d.UploaderSvc != nil {
		d.UploaderSvc.Stop()
	}
	if d.PrunerSvc != nil {
		d.PrunerSvc.Stop()
	}
	if d.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		d.httpSrv.Shutdown(ctx)
	}
	if d.DbStore != nil {
		d.DbStore.Close()
	}
	return nil
}
